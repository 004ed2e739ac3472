package jsvm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ytget/checkin/errs"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36"
	maxTimers        = 64
)

var (
	// ErrNoScripts is returned for pages without inline scripts.
	ErrNoScripts = errors.New("jsvm: page has no inline scripts")
	// ErrNoCookie is returned when the scripts ran but never set document.cookie.
	ErrNoCookie = errors.New("jsvm: script assigned no cookie")
)

// Engine evaluates a page's inline scripts and returns the last value
// assigned to document.cookie.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, page string) (string, error)
}

// Options configure the browser stubs and the run time limit.
type Options struct {
	UserAgent string
	PageURL   string
	Timeout   time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

func (o Options) userAgent() string {
	if o.UserAgent == "" {
		return defaultUserAgent
	}
	return o.UserAgent
}

// New returns the engine registered under name ("otto" or "goja").
func New(name string, opts Options) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "otto":
		return NewOtto(opts), nil
	case "goja":
		return NewGoja(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownEngine, name)
	}
}

// Scripts returns the inline JavaScript blocks of an HTML page in document order.
func Scripts(page string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			return
		}
		if typ, ok := s.Attr("type"); ok && !isJavaScript(typ) {
			return
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		return nil, ErrNoScripts
	}
	return out, nil
}

func isJavaScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "application/x-javascript", "text/ecmascript":
		return true
	}
	return false
}

// prelude defines the browser globals challenge scripts touch. Timers are
// queued and run by __drain after every inline script has executed.
const prelude = `
var window = this;
var self = this;
var __timers = [];
function setTimeout(fn, ms) { __timers.push(fn); return __timers.length; }
function clearTimeout(id) { if (id > 0 && id <= __timers.length) { __timers[id - 1] = null; } }
function setInterval() { return 0; }
function clearInterval() {}
var console = { log: function () {}, warn: function () {}, error: function () {} };
var navigator = { userAgent: __ua, language: "zh-CN", languages: ["zh-CN", "zh"], platform: "MacIntel", webdriver: false };
var location = {
  href: __href,
  reload: function () {},
  replace: function () {},
  assign: function () {}
};
var document = {
  cookie: "",
  referrer: "",
  location: location,
  getElementById: function () { return null; },
  getElementsByTagName: function () { return []; },
  createElement: function () { return { style: {}, setAttribute: function () {}, appendChild: function () {} }; },
  addEventListener: function () {}
};
function __drain(limit) {
  for (var i = 0; i < __timers.length && i < limit; i++) {
    var f = __timers[i];
    if (typeof f === "string") { eval(f); } else if (typeof f === "function") { f(); }
  }
}
`

var drainCall = fmt.Sprintf("__drain(%d)", maxTimers)

const cookieExpr = "String(document.cookie)"
