package enshan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/checkin/client"
	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/internal/logger"
	"github.com/ytget/checkin/internal/session"
	"github.com/ytget/checkin/waf"
)

const (
	// Site is the name used in configs and summaries.
	Site = "enshan"
	// DefaultBaseURL is the forum root.
	DefaultBaseURL = "https://www.right.com.cn/forum"
	// ClearanceCookie is the cookie set by the challenge script.
	ClearanceCookie = "https_ydclearance"

	signInPagePath = "/erling_qd-sign_in.html"
	signPath       = "/plugin.php?id=erling_qd:action&action=sign"

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36"
	secCHUA          = `"Not(A:Brand";v="8", "Chromium";v="144", "Brave";v="144"`
)

// Account is one forum login.
type Account struct {
	Name      string `json:"name" mapstructure:"name"`
	Cookies   string `json:"cookies" mapstructure:"cookies"`
	Formhash  string `json:"formhash" mapstructure:"formhash"`
	UserAgent string `json:"user_agent" mapstructure:"user_agent"`
}

// SignResult is the forum's answer to a sign-in request.
type SignResult struct {
	Formhash string
	Cookies  string
	Message  string
	Payload  map[string]any
}

// API signs one account in.
type API struct {
	account Account
	baseURL string
	client  *client.Client
	engine  waf.ScriptEngine
	store   session.Store
	ttl     time.Duration
	log     *logger.ComponentLogger
}

// Option configures an API.
type Option func(*API)

// WithBaseURL points the API at another forum root.
func WithBaseURL(base string) Option {
	return func(a *API) { a.baseURL = strings.TrimRight(base, "/") }
}

// WithScriptEngine enables the script fallback of the challenge solver.
func WithScriptEngine(e waf.ScriptEngine) Option {
	return func(a *API) { a.engine = e }
}

// WithSessionStore reuses cookies and formhash saved by an earlier sign-in
// for up to ttl. A ttl of zero keeps them until replaced.
func WithSessionStore(store session.Store, ttl time.Duration) Option {
	return func(a *API) {
		a.store = store
		a.ttl = ttl
	}
}

// New creates an API for account using c for every request.
func New(c *client.Client, account Account, opts ...Option) *API {
	if account.UserAgent == "" {
		account.UserAgent = defaultUserAgent
	}
	a := &API{
		account: account,
		baseURL: DefaultBaseURL,
		client:  c,
		log:     logger.WithComponent(logger.ComponentSite),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) signInPageURL() string { return a.baseURL + signInPagePath }
func (a *API) signURL() string       { return a.baseURL + signPath }

// Site implements checkin.Task.
func (a *API) Site() string { return Site }

// Account implements checkin.Task.
func (a *API) Account() string { return a.account.Name }

// Run implements checkin.Task.
func (a *API) Run(ctx context.Context) (string, error) {
	res, err := a.SignIn(ctx)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

func (a *API) clearanceHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", a.account.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")
	h.Set("sec-ch-ua", secCHUA)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"macOS"`)
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-GPC", "1")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Referer", a.signInPageURL())
	return h
}

func (a *API) signHeaders(cookies string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", a.account.UserAgent)
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("sec-ch-ua", secCHUA)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"macOS"`)
	h.Set("Sec-GPC", "1")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9")
	if u, err := url.Parse(a.baseURL); err == nil {
		h.Set("Origin", u.Scheme+"://"+u.Host)
	}
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Referer", a.signInPageURL())
	if cookies != "" {
		h.Set("Cookie", cookies)
	}
	return h
}

func (a *API) sessionKey() string { return session.Key(Site, a.account.Name) }

// startJar is the cookie jar a sign-in starts from. Saved cookies are
// overridden by configured ones, except for a saved clearance cookie.
func (a *API) startJar() (waf.Jar, session.Entry) {
	if a.store == nil {
		return waf.ParseJar(a.account.Cookies), session.Entry{}
	}
	saved, ok := a.store.Get(a.sessionKey())
	if !ok {
		return waf.ParseJar(a.account.Cookies), session.Entry{}
	}
	jar := waf.ParseJar(saved.Cookies)
	_, hasClearance := jar.Get(ClearanceCookie)
	for _, kv := range strings.Split(a.account.Cookies, ";") {
		kv = strings.TrimSpace(kv)
		if hasClearance && strings.HasPrefix(kv, ClearanceCookie+"=") {
			continue
		}
		jar = jar.Upsert(kv)
	}
	a.log.Debug("Using saved session", map[string]interface{}{
		"account":  a.account.Name,
		"saved_at": saved.SavedAt,
	})
	return jar, saved
}

// RefreshClearance solves the sign-in page challenge for the account's
// cookies. The returned Result is usable even when err is set.
func (a *API) RefreshClearance(ctx context.Context) (waf.Result, error) {
	jar, _ := a.startJar()
	return a.refresh(ctx, jar)
}

func (a *API) refresh(ctx context.Context, jar waf.Jar) (waf.Result, error) {
	opts := []waf.Option{
		waf.WithHeader(a.clearanceHeaders()),
		waf.WithTokenFinder(waf.TokenFinderFunc(FindFormhash)),
	}
	if a.engine != nil {
		opts = append(opts, waf.WithScriptEngine(a.engine))
	}
	solver := waf.NewSolver(a.client, opts...)
	return solver.Solve(ctx, a.signInPageURL(), jar)
}

// SignIn refreshes the clearance cookie, resolves the formhash and posts the
// sign-in form. A failed refresh is logged and the saved or configured
// cookies and formhash are tried instead.
func (a *API) SignIn(ctx context.Context) (*SignResult, error) {
	a.log.Info("Signing in", map[string]interface{}{"account": a.account.Name})

	jar, saved := a.startJar()
	res, solveErr := a.refresh(ctx, jar)
	if solveErr != nil {
		fields := map[string]interface{}{"account": a.account.Name, "error": solveErr}
		if g, ok := waf.MissingGroup(solveErr); ok {
			fields["group"] = string(g)
		}
		if p, ok := waf.FailedPhase(solveErr); ok {
			fields["phase"] = string(p)
		}
		a.log.Warn("Clearance refresh failed, sign-in may be rejected", fields)
	}
	cookies := res.Jar.String()

	formhash, tokErr := res.RequireToken()
	if tokErr != nil {
		formhash = saved.Formhash
	}
	if formhash == "" {
		formhash = a.account.Formhash
	}
	if formhash == "" {
		a.log.Error("Formhash not found, cannot sign in", map[string]interface{}{"account": a.account.Name})
		return nil, fmt.Errorf("enshan %s: %w", a.account.Name, errors.Join(tokErr, solveErr))
	}

	page, err := a.client.PostForm(ctx, a.signURL(), a.signHeaders(cookies), url.Values{"formhash": {formhash}})
	if err != nil {
		return nil, fmt.Errorf("enshan %s: post sign: %w", a.account.Name, err)
	}
	if page.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("enshan %s: %w: HTTP %d", a.account.Name, errs.ErrSignRejected, page.StatusCode)
	}

	out := &SignResult{Formhash: formhash, Cookies: cookies}
	var payload map[string]any
	if err := json.Unmarshal([]byte(page.Body), &payload); err == nil {
		out.Payload = payload
		out.Message = messageOf(payload)
	} else {
		out.Payload = map[string]any{"status": "success", "message": page.Body}
		out.Message = strings.TrimSpace(page.Body)
	}
	if a.store != nil {
		entry := session.Entry{Cookies: cookies, Formhash: formhash, SavedAt: time.Now()}
		if a.ttl > 0 {
			entry.ExpiresAt = entry.SavedAt.Add(a.ttl)
		}
		a.store.Set(a.sessionKey(), entry)
	}
	a.log.Info("Sign-in finished", map[string]interface{}{
		"account": a.account.Name,
		"message": out.Message,
	})
	return out, nil
}

func messageOf(payload map[string]any) string {
	for _, key := range []string{"message", "msg", "data"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	b, _ := json.Marshal(payload)
	return string(b)
}
