package waf

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ytget/checkin/internal/logger"
	"github.com/ytget/checkin/types"
)

// DefaultTimeout bounds every page fetch made by a Solver.
const DefaultTimeout = 30 * time.Second

// State is a step of one challenge-response cycle.
type State int

const (
	StateInit State = iota
	StateFetchedPage
	StateNoChallenge
	StateChallengeDetected
	StateParamsExtracted
	StateScriptEvaluated
	StateDecoded
	StateCookieMerged
	StateRevalidated
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:              "INIT",
	StateFetchedPage:       "FETCHED_PAGE",
	StateNoChallenge:       "NO_CHALLENGE",
	StateChallengeDetected: "CHALLENGE_DETECTED",
	StateParamsExtracted:   "PARAMS_EXTRACTED",
	StateScriptEvaluated:   "SCRIPT_EVALUATED",
	StateDecoded:           "DECODED",
	StateCookieMerged:      "COOKIE_MERGED",
	StateRevalidated:       "REVALIDATED",
	StateDone:              "DONE",
	StateFailed:            "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Transport fetches pages. client.Client satisfies it.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*types.Page, error)
}

// TokenFinder pulls a site's secondary token out of a page body.
type TokenFinder interface {
	FindToken(body string) (string, bool)
}

// TokenFinderFunc adapts a function to TokenFinder.
type TokenFinderFunc func(body string) (string, bool)

func (f TokenFinderFunc) FindToken(body string) (string, bool) { return f(body) }

// ScriptEngine evaluates a challenge page and returns the raw string it
// assigned to document.cookie.
type ScriptEngine interface {
	Name() string
	Evaluate(ctx context.Context, page string) (string, error)
}

// Session is the state threaded through one cycle.
type Session struct {
	Jar   Jar
	Token string
}

// Result is the outcome of one cycle. On failure Jar still carries every
// cookie merged before the failing step.
type Result struct {
	Jar   Jar
	Token string
	State State
	Path  []State
}

// RequireToken returns the secondary token or a TOKEN_MISSING error.
func (r Result) RequireToken() (string, error) {
	if r.Token == "" {
		return "", tokenMissingError()
	}
	return r.Token, nil
}

// Solver drives challenge detection, decoding and revalidation. It holds only
// configuration and may be shared between goroutines.
type Solver struct {
	transport Transport
	grammar   Grammar
	finder    TokenFinder
	engine    ScriptEngine
	header    http.Header
	timeout   time.Duration
}

// Option configures a Solver.
type Option func(*Solver)

// WithGrammar replaces DefaultGrammar.
func WithGrammar(g Grammar) Option {
	return func(s *Solver) { s.grammar = g }
}

// WithTokenFinder sets the secondary token lookup.
func WithTokenFinder(f TokenFinder) Option {
	return func(s *Solver) { s.finder = f }
}

// WithScriptEngine enables script evaluation when regex extraction or
// decoding does not produce a cookie.
func WithScriptEngine(e ScriptEngine) Option {
	return func(s *Solver) { s.engine = e }
}

// WithHeader sets headers sent with every fetch. Cookie is always replaced by the jar.
func WithHeader(h http.Header) Option {
	return func(s *Solver) { s.header = h.Clone() }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Solver) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSolver creates a Solver fetching pages through t.
func NewSolver(t Transport, opts ...Option) *Solver {
	s := &Solver{
		transport: t,
		grammar:   DefaultGrammar(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type cycle struct {
	session Session
	path    []State
	log     *logger.ComponentLogger
}

func (c *cycle) advance(s State) {
	c.path = append(c.path, s)
	c.log.Trace("State changed", map[string]interface{}{"state": s.String()})
}

func (c *cycle) result() Result {
	return Result{
		Jar:   c.session.Jar,
		Token: c.session.Token,
		State: c.path[len(c.path)-1],
		Path:  c.path,
	}
}

func (c *cycle) fail(err error) (Result, error) {
	c.advance(StateFailed)
	c.log.Warn("Challenge cycle failed", map[string]interface{}{"error": err})
	r := c.result()
	r.Token = ""
	return r, err
}

// Solve runs one cycle against pageURL starting from jar. Errors are always
// *Error values; the Result is valid in every case.
func (s *Solver) Solve(ctx context.Context, pageURL string, jar Jar) (Result, error) {
	c := &cycle{
		session: Session{Jar: jar},
		path:    []State{StateInit},
		log:     logger.WithComponent(logger.ComponentWAF),
	}

	page, err := s.fetch(ctx, pageURL, c.session.Jar)
	if err != nil {
		return c.fail(networkError(PhaseEntry, err))
	}
	c.session.Jar = c.session.Jar.Merge(page.Cookies)
	c.advance(StateFetchedPage)

	if !s.grammar.Detect(page.Body) {
		c.advance(StateNoChallenge)
		c.session.Token = s.findToken(page.Body)
		c.advance(StateDone)
		c.log.Debug("No challenge on page", map[string]interface{}{
			"url":   pageURL,
			"token": c.session.Token != "",
		})
		return c.result(), nil
	}
	c.advance(StateChallengeDetected)

	kv, err := s.clearance(ctx, page.Body, c)
	if err != nil {
		return c.fail(err)
	}
	c.session.Jar = c.session.Jar.Upsert(kv)
	c.advance(StateCookieMerged)
	name, _, _ := strings.Cut(kv, "=")
	c.log.Info("Clearance cookie merged", map[string]interface{}{
		"cookie":  name,
		"grammar": s.grammar.Name(),
	})

	page, err = s.fetch(ctx, pageURL, c.session.Jar)
	if err != nil {
		return c.fail(networkError(PhaseRevalidate, err))
	}
	c.session.Jar = c.session.Jar.Merge(page.Cookies)
	c.advance(StateRevalidated)

	c.session.Token = s.findToken(page.Body)
	c.advance(StateDone)
	return c.result(), nil
}

// clearance derives the cookie pair for a challenge page, falling back to the
// script engine when one is configured.
func (s *Solver) clearance(ctx context.Context, body string, c *cycle) (string, error) {
	ch, err := ExtractAll(s.grammar, body)
	if err == nil {
		c.advance(StateParamsExtracted)
		fragment := Decode(ch.Array, ch.Seed, ch.Params)
		c.advance(StateDecoded)
		if kv, ok := CookieKV(fragment); ok {
			return kv, nil
		}
		var cause error
		if len(ch.Array) < MinArrayLen {
			cause = decodeEmptyError(len(ch.Array))
		}
		err = cookieNotFoundError(cause)
	}
	if s.engine == nil {
		return "", err
	}

	c.log.Warn("Falling back to script engine", map[string]interface{}{
		"engine": s.engine.Name(),
		"reason": err,
	})
	raw, serr := s.engine.Evaluate(ctx, body)
	if serr != nil {
		return "", scriptError(s.engine.Name(), errors.Join(err, serr))
	}
	kv, ok := FirstPair(raw)
	if !ok {
		return "", scriptError(s.engine.Name(), errors.Join(err, errors.New("script assigned no cookie")))
	}
	c.advance(StateScriptEvaluated)
	return kv, nil
}

func (s *Solver) fetch(ctx context.Context, pageURL string, jar Jar) (*types.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	header := s.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del("Cookie")
	if jar.Len() > 0 {
		header.Set("Cookie", jar.String())
	}
	page, err := s.transport.Get(ctx, pageURL, header)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.New("transport returned no page")
	}
	return page, nil
}

func (s *Solver) findToken(body string) string {
	if s.finder == nil {
		return ""
	}
	tok, _ := s.finder.FindToken(body)
	return tok
}
