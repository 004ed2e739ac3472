// Package waftest builds synthetic challenge pages for tests. The pages carry
// a script that a JavaScript engine can run and that the default grammar can
// parse, and both routes produce the same cookie.
package waftest

import (
	"fmt"
	"strings"

	"github.com/ytget/checkin/waf"
)

// DefaultSeed is the wi value used by Page.
const DefaultSeed = 203

// DefaultParams are the transform constants used by Page. Loop bounds are
// left zero so Encode sizes them to the array.
var DefaultParams = waf.Params{
	ShiftR:  3,
	ShiftL:  5,
	Sub:     17,
	Add1:    11,
	Add2:    29,
	RotL:    3,
	ModSkip: 7,
}

// Fragment returns the statement a challenge script decodes to.
func Fragment(cookie string) string {
	return "document.cookie='" + cookie + "';"
}

// Encode returns an array that waf.Decode turns back into fragment under
// seed and p. Zero loop bounds in p are set to the full array range, and a
// zero ModSkip to the default; the completed Params are returned.
func Encode(fragment string, seed int, p waf.Params) ([]int, waf.Params, error) {
	if p.ModSkip <= 0 {
		p.ModSkip = waf.DefaultModSkip
	}
	if p.ModSkip == 1 {
		return nil, p, fmt.Errorf("mod skip 1 leaves no output positions")
	}

	var chars []int
	for _, r := range fragment {
		if r > 0xFF {
			return nil, p, fmt.Errorf("character %q is outside 0-255", r)
		}
		chars = append(chars, int(r))
	}

	var positions []int
	for q := 1; len(positions) < len(chars); q++ {
		if q%p.ModSkip != 0 {
			positions = append(positions, q)
		}
	}
	n := waf.MinArrayLen
	if len(positions) > 0 {
		n = max(n, positions[len(positions)-1]+2)
	}
	if len(positions) == 0 || positions[len(positions)-1] != n-2 {
		return nil, p, fmt.Errorf("fragment of %d characters is too short", len(chars))
	}

	if p.Loop1Start == 0 {
		p.Loop1Start = n - 2
	}
	if p.Loop2Start == 0 {
		p.Loop2Start = n - 3
	}
	if p.Loop3Upper == 0 {
		p.Loop3Upper = n - 2
	}

	buf := make([]int, n)
	for q := range buf {
		buf[q] = (q*37 + 5) & 0xFF
	}
	key := seed & 0xFF
	for i, q := range positions {
		buf[q] = chars[i] ^ key
	}

	for q := 1; q <= min(p.Loop3Upper, n-2); q++ {
		buf[q] = (rotr8(buf[q], p.RotL) - p.Add1 - p.Add2) & 0xFF
	}

	for q := 3; q <= min(p.Loop2Start, n-3); q++ {
		buf[q] = (buf[q] + buf[q-1]) & 0xFF
	}

	inverse := make(map[int]int, 256)
	for x := 255; x >= 0; x-- {
		inverse[loop1(x, p)] = x
	}
	for q := 2; q <= min(p.Loop1Start, n-2); q++ {
		x, ok := inverse[buf[q]]
		if !ok {
			return nil, p, fmt.Errorf("value %d at index %d is unreachable with shifts %d/%d", buf[q], q, p.ShiftR, p.ShiftL)
		}
		buf[q] = x
	}
	return buf, p, nil
}

// Render writes an HTML challenge page for oo, seed and p.
func Render(oo []int, seed int, p waf.Params) string {
	toks := make([]string, len(oo))
	for i, v := range oo {
		if i%3 == 2 {
			toks[i] = fmt.Sprintf("0x%x", v)
		} else {
			toks[i] = fmt.Sprint(v)
		}
	}
	mod := p.ModSkip
	if mod <= 0 {
		mod = waf.DefaultModSkip
	}
	shr := 8 - (p.RotL & 7)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>Checking your browser</title></head><body>\n")
	sb.WriteString("<script type=\"text/javascript\">\n")
	fmt.Fprintf(&sb, "var oo=[%s],po=\"\",qo=0;\n", strings.Join(toks, ","))
	sb.WriteString("function go(wi){\n")
	fmt.Fprintf(&sb, "qo=%d;do{oo[qo]=(-oo[qo])&0xff;oo[qo]=(((oo[qo]>>%d)|((oo[qo]<<%d)&0xff))-%d)&0xff;}while(--qo>=2);\n",
		p.Loop1Start, p.ShiftR, p.ShiftL, p.Sub)
	fmt.Fprintf(&sb, "qo=%d;do{oo[qo]=(oo[qo]-oo[qo-1])&0xff;}while(--qo>=3);\n", p.Loop2Start)
	fmt.Fprintf(&sb, "qo=1;for(;;){if(qo>%d)break;oo[qo]=((((oo[qo]+%d)+%d)&0xff)<<%d|(((oo[qo]+%d)+%d)&0xff)>>%d)&0xff;qo++;}po=\"\";\n",
		p.Loop3Upper, p.Add1, p.Add2, p.RotL&7, p.Add1, p.Add2, shr)
	fmt.Fprintf(&sb, "for(qo=1;qo<oo.length-1;qo++){if(qo%%%d)po+=String.fromCharCode((oo[qo]^wi)&0xff);}\n", mod)
	sb.WriteString("eval(po);\n}\n")
	fmt.Fprintf(&sb, "setTimeout(\"go(%d)\",200);\n", seed)
	sb.WriteString("</script></body></html>\n")
	return sb.String()
}

// Page returns a challenge page that sets cookie using DefaultSeed and
// DefaultParams. It panics if cookie cannot be encoded.
func Page(cookie string) string {
	oo, p, err := Encode(Fragment(cookie), DefaultSeed, DefaultParams)
	if err != nil {
		panic(err)
	}
	return Render(oo, DefaultSeed, p)
}

func loop1(x int, p waf.Params) int {
	v := -x & 0xFF
	if p.ShiftR+p.ShiftL == 8 {
		v = rotr8(v, p.ShiftR) - p.Sub
	} else {
		v = ((v >> p.ShiftR) | ((v << p.ShiftL) & 0xFF)) - p.Sub
	}
	return v & 0xFF
}

func rotr8(x, r int) int {
	x &= 0xFF
	r &= 7
	return ((x >> r) | (x << (8 - r))) & 0xFF
}
