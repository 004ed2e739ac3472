package waf

import "testing"

func TestRotationInverse(t *testing.T) {
	for r := 0; r < 8; r++ {
		for x := 0; x < 256; x++ {
			if got := rotl8(rotr8(x, r), r); got != x {
				t.Fatalf("rotl8(rotr8(%d, %d)) = %d", x, r, got)
			}
			if got := rotr8(rotl8(x, r), r); got != x {
				t.Fatalf("rotr8(rotl8(%d, %d)) = %d", x, r, got)
			}
		}
	}
}

func TestRotateKnownValues(t *testing.T) {
	tests := []struct {
		x, r        int
		left, right int
	}{
		{x: 0x01, r: 1, left: 0x02, right: 0x80},
		{x: 0x81, r: 1, left: 0x03, right: 0xC0},
		{x: 0xF0, r: 4, left: 0x0F, right: 0x0F},
		{x: 0x5A, r: 0, left: 0x5A, right: 0x5A},
		{x: 0x1FF, r: 3, left: 0xFF, right: 0xFF},
	}
	for _, tt := range tests {
		if got := rotl8(tt.x, tt.r); got != tt.left {
			t.Errorf("rotl8(%#x, %d) = %#x, want %#x", tt.x, tt.r, got, tt.left)
		}
		if got := rotr8(tt.x, tt.r); got != tt.right {
			t.Errorf("rotr8(%#x, %d) = %#x, want %#x", tt.x, tt.r, got, tt.right)
		}
	}
}

// The rotation branch is a closed form of the general formula only when the
// two shifts sum to eight.
func TestLoop1Branches_AgreeWhenShiftsSumToEight(t *testing.T) {
	for r := 0; r <= 8; r++ {
		l := 8 - r
		for x := 0; x < 256; x++ {
			general := ((x >> r) | ((x << l) & 0xFF)) & 0xFF
			if got := rotr8(x, r); got != general {
				t.Fatalf("rotr8(%d, %d) = %d, general formula gives %d", x, r, got, general)
			}
		}
	}
}
