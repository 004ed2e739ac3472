package waf

import (
	"regexp"
	"strings"

	"github.com/ytget/checkin/types"
)

var cookieAssignRegex = regexp.MustCompile(`document\.cookie=['"]([^'"]+)['"]`)

// CookieKV returns the name=value pair a decoded fragment assigns to
// document.cookie, without attributes.
func CookieKV(fragment string) (string, bool) {
	m := cookieAssignRegex.FindStringSubmatch(fragment)
	if len(m) != 2 {
		return "", false
	}
	return FirstPair(m[1])
}

// FirstPair trims a cookie string down to the text before its first ';'.
func FirstPair(raw string) (string, bool) {
	kv, _, _ := strings.Cut(raw, ";")
	kv = strings.TrimSpace(kv)
	return kv, kv != ""
}

type entry struct {
	name  string
	value string
}

// Jar is an ordered cookie list. The zero value is empty and every method
// that changes it returns a new Jar.
type Jar struct {
	entries []entry
}

// ParseJar reads a Cookie header. Segments without '=' are skipped.
func ParseJar(header string) Jar {
	var j Jar
	for _, seg := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		j.entries = append(j.entries, entry{name: strings.TrimSpace(name), value: strings.TrimSpace(value)})
	}
	return j
}

// Upsert sets kv ("name=value"). Existing entries with the same name keep
// their position; a new name is appended. A kv without '=' is ignored.
func (j Jar) Upsert(kv string) Jar {
	name, value, ok := strings.Cut(kv, "=")
	if !ok {
		return j
	}
	return j.set(strings.TrimSpace(name), strings.TrimSpace(value))
}

func (j Jar) set(name, value string) Jar {
	out := Jar{entries: make([]entry, len(j.entries), len(j.entries)+1)}
	copy(out.entries, j.entries)
	found := false
	for i := range out.entries {
		if out.entries[i].name == name {
			out.entries[i].value = value
			found = true
		}
	}
	if !found {
		out.entries = append(out.entries, entry{name: name, value: value})
	}
	return out
}

// Merge upserts response cookies in order.
func (j Jar) Merge(cookies []types.Cookie) Jar {
	for _, c := range cookies {
		j = j.set(c.Name, c.Value)
	}
	return j
}

// Get returns the value of the first entry named name.
func (j Jar) Get(name string) (string, bool) {
	for _, e := range j.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return "", false
}

func (j Jar) Len() int { return len(j.entries) }

// String serialises the jar as a Cookie header.
func (j Jar) String() string {
	parts := make([]string, len(j.entries))
	for i, e := range j.entries {
		parts[i] = e.name + "=" + e.value
	}
	return strings.Join(parts, "; ")
}

// Upsert applies kv to a Cookie header string and returns the new header.
// A kv without '=' returns header unchanged.
func Upsert(header, kv string) string {
	if !strings.Contains(kv, "=") {
		return header
	}
	return ParseJar(header).Upsert(kv).String()
}
