package waf

import "strings"

// MinArrayLen is the shortest byte array the pipeline decodes.
const MinArrayLen = 6

func rotl8(x, r int) int {
	x &= 0xFF
	r &= 7
	return ((x << r) | (x >> (8 - r))) & 0xFF
}

func rotr8(x, r int) int {
	x &= 0xFF
	r &= 7
	return ((x >> r) | (x << (8 - r))) & 0xFF
}

// Decode replays the challenge script's byte transform on a copy of oo and
// returns the assembled text. Arrays shorter than MinArrayLen yield "".
// The four passes run in a fixed order; they do not commute.
func Decode(oo []int, wi int, p Params) string {
	n := len(oo)
	if n < MinArrayLen {
		return ""
	}
	buf := make([]int, n)
	for i, v := range oo {
		buf[i] = v & 0xFF
	}

	shr, shl := max(p.ShiftR, 0), max(p.ShiftL, 0)

	// Negate, rotate, subtract.
	for q := min(p.Loop1Start, n-2); q >= 2; q-- {
		v := -buf[q] & 0xFF
		if shr+shl == 8 {
			v = rotr8(v, shr) - p.Sub
		} else {
			v = ((v >> shr) | ((v << shl) & 0xFF)) - p.Sub
		}
		buf[q] = v & 0xFF
	}

	// Differential.
	for q := min(p.Loop2Start, n-3); q >= 3; q-- {
		buf[q] = (buf[q] - buf[q-1]) & 0xFF
	}

	// Add and rotate left.
	for q := 1; q <= min(p.Loop3Upper, n-2); q++ {
		buf[q] = rotl8(buf[q]+p.Add1+p.Add2, p.RotL)
	}

	// Unmask and assemble.
	mod := p.ModSkip
	if mod <= 0 {
		mod = DefaultModSkip
	}
	key := wi & 0xFF
	var sb strings.Builder
	sb.Grow(n)
	for q := 1; q <= n-2; q++ {
		if q%mod == 0 {
			continue
		}
		sb.WriteRune(rune(buf[q] ^ key))
	}
	return sb.String()
}
