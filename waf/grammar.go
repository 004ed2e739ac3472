package waf

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultModSkip is used when a script has no index modulus check.
const DefaultModSkip = 7

// Loop1 holds the negate-rotate-subtract loop constants.
type Loop1 struct {
	Start  int
	ShiftR int
	ShiftL int
	Sub    int
}

// Loop3 holds the additive-rotate loop constants.
type Loop3 struct {
	Upper int
	Add1  int
	Add2  int
	RotL  int
}

// Params is the full set of constants the decode pipeline consumes.
type Params struct {
	Loop1Start int `json:"loop1_start"`
	ShiftR     int `json:"shift_r"`
	ShiftL     int `json:"shift_l"`
	Sub        int `json:"sub"`
	Loop2Start int `json:"loop2_start"`
	Loop3Upper int `json:"loop3_upper"`
	Add1       int `json:"add1"`
	Add2       int `json:"add2"`
	RotL       int `json:"rot_l"`
	ModSkip    int `json:"mod_skip"`
}

// Challenge is everything extracted from one challenge page.
type Challenge struct {
	Array  []int  `json:"oo"`
	Seed   int    `json:"wi"`
	Params Params `json:"params"`
}

// Grammar extracts challenge parameters from one family of challenge scripts.
// Implementations are pure and report absence through the ok result.
type Grammar interface {
	Name() string
	Detect(text string) bool
	ByteArray(text string) ([]int, bool)
	Seed(text string) (int, bool)
	Loop1(text string) (Loop1, bool)
	Loop2Start(text string) (int, bool)
	Loop3(text string) (Loop3, bool)
	ModSkip(text string) int
}

// ExtractAll runs every extractor of g against text. The first missing group,
// checked in the order array, seed, loop1, loop2, loop3, is returned as an
// extraction error.
func ExtractAll(g Grammar, text string) (Challenge, error) {
	oo, ok := g.ByteArray(text)
	if !ok {
		return Challenge{}, extractionError(GroupArray)
	}
	wi, ok := g.Seed(text)
	if !ok {
		return Challenge{}, extractionError(GroupSeed)
	}
	l1, ok := g.Loop1(text)
	if !ok {
		return Challenge{}, extractionError(GroupLoop1)
	}
	l2, ok := g.Loop2Start(text)
	if !ok {
		return Challenge{}, extractionError(GroupLoop2)
	}
	l3, ok := g.Loop3(text)
	if !ok {
		return Challenge{}, extractionError(GroupLoop3)
	}
	return Challenge{
		Array: oo,
		Seed:  wi,
		Params: Params{
			Loop1Start: l1.Start,
			ShiftR:     l1.ShiftR,
			ShiftL:     l1.ShiftL,
			Sub:        l1.Sub,
			Loop2Start: l2,
			Loop3Upper: l3.Upper,
			Add1:       l3.Add1,
			Add2:       l3.Add2,
			RotL:       l3.RotL,
			ModSkip:    g.ModSkip(text),
		},
	}, nil
}

var (
	markerRegex       = regexp.MustCompile(`\boo\s*=`)
	arrayRegex        = regexp.MustCompile(`oo\s*=\s*\[([^\]]+)\]`)
	arrayTokenRegex   = regexp.MustCompile(`0x[0-9a-fA-F]+|\d+`)
	seedRegex         = regexp.MustCompile(`setTimeout\("\w+\((\d+)\)"`)
	seedFallbackRegex = regexp.MustCompile(`\b\w+\((\d+)\)`)
	loop1Regex        = regexp.MustCompile(`(?s)qo\s*=\s*(\d+);\s*do\{.*?oo\[qo\]=\(-oo\[qo\]\)&0xff;.*?` +
		`oo\[qo\]=\(\(\(oo\[qo\]>>(\d+)\)\|\(\(oo\[qo\]<<(\d+)\)&0xff\)\)-(\d+)\)&0xff;.*?` +
		`\}\s*while\(--qo>=2\);`)
	loop2Regex = regexp.MustCompile(`(?s)qo\s*=\s*(\d+);\s*do\s*\{[^}]*?` +
		`oo\[qo\]\s*=\s*\(oo\[qo\]\s*-\s*oo\[qo\s*-\s*1\]\)\s*&\s*0xff;[^}]*?` +
		`\}\s*while\s*\(\s*--\s*qo\s*>=\s*3\s*\)`)
	loop3BlockRegex  = regexp.MustCompile(`(?s)qo\s*=\s*1;\s*for\s*\(.*?\)\s*\{(.*?)\}\s*po\s*=`)
	loop3UpperRegex  = regexp.MustCompile(`qo\s*>\s*(\d+)\)\s*break`)
	loop3AssignRegex = regexp.MustCompile(`(?s)oo\[qo\]\s*=\s*(.+?);`)
	loop3AddRegex    = regexp.MustCompile(`\+\s*(\d+)`)
	loop3ShiftRegex  = regexp.MustCompile(`<<\s*(\d+)|>>\s*(\d+)`)
	modSkipRegex     = regexp.MustCompile(`qo\s*%\s*(\d+)`)
)

// RegexGrammar is a Grammar driven by regular expressions. Every field must
// be set; DefaultGrammar returns the one matching the deployed script.
type RegexGrammar struct {
	Label string

	Marker       *regexp.Regexp
	Array        *regexp.Regexp
	ArrayToken   *regexp.Regexp
	Seed1        *regexp.Regexp
	SeedFallback *regexp.Regexp
	Loop1Re      *regexp.Regexp
	Loop2Re      *regexp.Regexp
	Loop3Block   *regexp.Regexp
	Loop3Upper   *regexp.Regexp
	Loop3Assign  *regexp.Regexp
	Loop3Add     *regexp.Regexp
	Loop3Shift   *regexp.Regexp
	Mod          *regexp.Regexp

	DefaultModSkip int
}

// DefaultGrammar returns the grammar for the current challenge script family.
func DefaultGrammar() *RegexGrammar {
	return &RegexGrammar{
		Label:          "ydclearance-v1",
		Marker:         markerRegex,
		Array:          arrayRegex,
		ArrayToken:     arrayTokenRegex,
		Seed1:          seedRegex,
		SeedFallback:   seedFallbackRegex,
		Loop1Re:        loop1Regex,
		Loop2Re:        loop2Regex,
		Loop3Block:     loop3BlockRegex,
		Loop3Upper:     loop3UpperRegex,
		Loop3Assign:    loop3AssignRegex,
		Loop3Add:       loop3AddRegex,
		Loop3Shift:     loop3ShiftRegex,
		Mod:            modSkipRegex,
		DefaultModSkip: DefaultModSkip,
	}
}

func (g *RegexGrammar) Name() string { return g.Label }

// Detect reports whether the challenge marker is assigned anywhere in text.
func (g *RegexGrammar) Detect(text string) bool {
	return g.Marker.MatchString(text)
}

func (g *RegexGrammar) ByteArray(text string) ([]int, bool) {
	m := g.Array.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil, false
	}
	var out []int
	for _, tok := range g.ArrayToken.FindAllString(m[1], -1) {
		v, ok := parseInt(tok)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func (g *RegexGrammar) Seed(text string) (int, bool) {
	if m := g.Seed1.FindStringSubmatch(text); len(m) == 2 {
		return parseInt(m[1])
	}
	if m := g.SeedFallback.FindStringSubmatch(text); len(m) == 2 {
		return parseInt(m[1])
	}
	return 0, false
}

func (g *RegexGrammar) Loop1(text string) (Loop1, bool) {
	m := g.Loop1Re.FindStringSubmatch(text)
	if len(m) != 5 {
		return Loop1{}, false
	}
	v, ok := parseInts(m[1:])
	if !ok {
		return Loop1{}, false
	}
	return Loop1{Start: v[0], ShiftR: v[1], ShiftL: v[2], Sub: v[3]}, true
}

func (g *RegexGrammar) Loop2Start(text string) (int, bool) {
	m := g.Loop2Re.FindStringSubmatch(text)
	if len(m) != 2 {
		return 0, false
	}
	return parseInt(m[1])
}

// Loop3 reads the upper bound from the break guard, then the first two
// additive constants and the first shift of the element assignment.
func (g *RegexGrammar) Loop3(text string) (Loop3, bool) {
	bm := g.Loop3Block.FindStringSubmatch(text)
	if len(bm) != 2 {
		return Loop3{}, false
	}
	block := bm[1]

	um := g.Loop3Upper.FindStringSubmatch(block)
	if len(um) != 2 {
		return Loop3{}, false
	}
	upper, ok := parseInt(um[1])
	if !ok {
		return Loop3{}, false
	}

	am := g.Loop3Assign.FindStringSubmatch(block)
	if len(am) != 2 {
		return Loop3{}, false
	}
	expr := am[1]

	adds := g.Loop3Add.FindAllStringSubmatch(expr, 2)
	if len(adds) < 2 {
		return Loop3{}, false
	}
	add1, ok1 := parseInt(adds[0][1])
	add2, ok2 := parseInt(adds[1][1])
	if !ok1 || !ok2 {
		return Loop3{}, false
	}

	// A rotate is written as a left and a right shift; both must be present.
	var shifts []int
	for _, sm := range g.Loop3Shift.FindAllStringSubmatch(expr, -1) {
		for _, s := range sm[1:] {
			if s == "" {
				continue
			}
			if v, ok := parseInt(s); ok {
				shifts = append(shifts, v)
			}
		}
	}
	if len(shifts) < 2 {
		return Loop3{}, false
	}

	return Loop3{Upper: upper, Add1: add1, Add2: add2, RotL: shifts[0]}, true
}

// ModSkip returns the modulus of the output skip check, or the default when
// the check is absent or zero.
func (g *RegexGrammar) ModSkip(text string) int {
	def := g.DefaultModSkip
	if def <= 0 {
		def = DefaultModSkip
	}
	m := g.Mod.FindStringSubmatch(text)
	if len(m) != 2 {
		return def
	}
	v, ok := parseInt(m[1])
	if !ok || v == 0 {
		return def
	}
	return v
}

func parseInt(tok string) (int, bool) {
	if len(tok) > 2 && (strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X")) {
		v, err := strconv.ParseInt(tok[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return int(v), true
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInts(toks []string) ([]int, bool) {
	out := make([]int, len(toks))
	for i, t := range toks {
		v, ok := parseInt(t)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
