package enshan

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	formhashRegex = regexp.MustCompile(`member\.php\?mod=logging(?:&amp;|&)action=logout(?:&amp;|&)formhash=([0-9a-fA-F]+)`)
	hexRegex      = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// FindFormhash returns the anti-forgery token of a logged-in forum page. The
// logout link is preferred, then a hidden formhash input, then a raw text
// match for pages that do not parse cleanly.
func FindFormhash(body string) (string, bool) {
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		var hash string
		doc.Find(`a[href*="action=logout"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			u, err := url.Parse(href)
			if err != nil {
				return true
			}
			if v := u.Query().Get("formhash"); hexRegex.MatchString(v) {
				hash = v
				return false
			}
			return true
		})
		if hash == "" {
			if v, ok := doc.Find(`input[name="formhash"]`).First().Attr("value"); ok && hexRegex.MatchString(v) {
				hash = v
			}
		}
		if hash != "" {
			return hash, true
		}
	}
	if m := formhashRegex.FindStringSubmatch(body); len(m) == 2 {
		return m[1], true
	}
	return "", false
}
