package enshan_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/checkin/client"
	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/internal/session"
	"github.com/ytget/checkin/sites/enshan"
	"github.com/ytget/checkin/waf"
	"github.com/ytget/checkin/waf/waftest"
)

const (
	clearance = "https_ydclearance=c0ffee01"
	formhash  = "9f8e7d6c"
	signedIn  = `<html><body><div id="um">
<a href="member.php?mod=logging&amp;action=logout&amp;formhash=` + formhash + `">退出</a>
</div></body></html>`
)

type forum struct {
	*httptest.Server
	signs      atomic.Int32
	challenges atomic.Int32
	signStatus int
	signBody   string
	challenge  bool

	mu       sync.Mutex
	lastSign http.Header
	lastForm string
}

func (f *forum) last() (http.Header, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSign, f.lastForm
}

func newForum(t *testing.T, challenge bool) *forum {
	t.Helper()
	f := &forum{
		signStatus: http.StatusOK,
		signBody:   `{"status":"success","message":"签到成功"}`,
		challenge:  challenge,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *forum) serve(w http.ResponseWriter, r *http.Request) {
	cookie := r.Header.Get("Cookie")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/erling_qd-sign_in.html":
		if f.challenge && !strings.Contains(cookie, clearance) {
			f.challenges.Add(1)
			_, _ = w.Write([]byte(waftest.Page(clearance + "; path=/")))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "lastvisit", Value: "1700000000"})
		_, _ = w.Write([]byte(signedIn))
	case r.Method == http.MethodPost && r.URL.Path == "/plugin.php":
		f.signs.Add(1)
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastSign = r.Header.Clone()
		f.lastForm = r.PostForm.Get("formhash")
		f.mu.Unlock()
		if r.URL.Query().Get("action") != "sign" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(f.signStatus)
		_, _ = w.Write([]byte(f.signBody))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newAPI(f *forum, acct enshan.Account) *enshan.API {
	c := client.NewWith(client.Config{Timeout: 5 * time.Second, Retries: 1})
	return enshan.New(c, acct, enshan.WithBaseURL(f.URL+"/"))
}

func TestSignIn_SolvesChallenge(t *testing.T) {
	f := newForum(t, true)
	api := newAPI(f, enshan.Account{Name: "alice", Cookies: "auth=xyz; https_ydclearance=stale"})

	res, err := api.SignIn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, formhash, res.Formhash)
	assert.Equal(t, "签到成功", res.Message)
	assert.Equal(t, "success", res.Payload["status"])
	assert.Contains(t, res.Cookies, clearance)
	assert.Contains(t, res.Cookies, "auth=xyz")
	assert.Contains(t, res.Cookies, "lastvisit=1700000000")
	assert.NotContains(t, res.Cookies, "stale")

	require.EqualValues(t, 1, f.signs.Load())
	h, form := f.last()
	assert.Equal(t, formhash, form)
	assert.Equal(t, "XMLHttpRequest", h.Get("X-Requested-With"))
	assert.Equal(t, f.URL+"/erling_qd-sign_in.html", h.Get("Referer"))
	assert.Equal(t, f.URL, h.Get("Origin"))
	assert.Contains(t, h.Get("Cookie"), clearance)
	assert.Contains(t, h.Get("User-Agent"), "Chrome/144")
}

func TestSignIn_NoChallenge(t *testing.T) {
	f := newForum(t, false)
	api := newAPI(f, enshan.Account{Name: "bob", Cookies: "auth=1"})

	res, err := api.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, formhash, res.Formhash)
	assert.NotContains(t, res.Cookies, "https_ydclearance")
}

func TestSignIn_PlainTextResponse(t *testing.T) {
	f := newForum(t, false)
	f.signBody = "  already signed today \n"
	api := newAPI(f, enshan.Account{Name: "bob"})

	res, err := api.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "already signed today", res.Message)
	assert.Equal(t, "success", res.Payload["status"])
}

func TestSignIn_HTTPErrorRejected(t *testing.T) {
	f := newForum(t, false)
	f.signStatus = http.StatusForbidden
	api := newAPI(f, enshan.Account{Name: "bob"})

	_, err := api.SignIn(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSignRejected))
	assert.Contains(t, err.Error(), "403")
}

func TestSignIn_ConfiguredFormhashFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
			return
		}
		_ = r.ParseForm()
		_, _ = w.Write([]byte(`{"status":"success","msg":"ok ` + r.PostForm.Get("formhash") + `"}`))
	}))
	defer srv.Close()

	c := client.NewWith(client.Config{Timeout: 5 * time.Second, Retries: 1})
	api := enshan.New(c, enshan.Account{Name: "carol", Formhash: "abc123"}, enshan.WithBaseURL(srv.URL))

	res, err := api.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.Formhash)
	assert.Equal(t, "ok abc123", res.Message)
}

func TestSignIn_MissingFormhash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Error("sign request must not be sent without a formhash")
		}
		_, _ = w.Write([]byte("<html><body>please log in</body></html>"))
	}))
	defer srv.Close()

	c := client.NewWith(client.Config{Timeout: 5 * time.Second, Retries: 1})
	api := enshan.New(c, enshan.Account{Name: "dave"}, enshan.WithBaseURL(srv.URL))

	_, err := api.SignIn(context.Background())
	require.Error(t, err)
	assert.True(t, waf.IsTokenMissing(err))
}

func TestSignIn_EntryFailureStillUsesConfiguredValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("hijack unsupported")
				return
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		assert.Equal(t, "auth=1", r.Header.Get("Cookie"))
		_, _ = w.Write([]byte(`{"status":"success","message":"done"}`))
	}))
	defer srv.Close()

	c := client.NewWith(client.Config{Timeout: 5 * time.Second, Retries: 1})
	api := enshan.New(c, enshan.Account{Name: "erin", Cookies: "auth=1", Formhash: "ff00"}, enshan.WithBaseURL(srv.URL))

	res, err := api.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res.Message)
}

func TestAPI_Task(t *testing.T) {
	f := newForum(t, true)
	api := newAPI(f, enshan.Account{Name: "alice"})

	assert.Equal(t, enshan.Site, api.Site())
	assert.Equal(t, "alice", api.Account())

	msg, err := api.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "签到成功", msg)
}

func TestRefreshClearance(t *testing.T) {
	f := newForum(t, true)
	api := newAPI(f, enshan.Account{Name: "alice"})

	res, err := api.RefreshClearance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, waf.StateDone, res.State)
	v, ok := res.Jar.Get(enshan.ClearanceCookie)
	require.True(t, ok)
	assert.Equal(t, "c0ffee01", v)
	assert.Equal(t, formhash, res.Token)
}

func TestSignIn_ReusesSavedSession(t *testing.T) {
	f := newForum(t, true)
	store := session.NewMemoryStore()
	acct := enshan.Account{Name: "alice", Cookies: "auth=xyz; https_ydclearance=stale"}
	c := client.NewWith(client.Config{Timeout: 5 * time.Second, Retries: 1})
	newAPI := func() *enshan.API {
		return enshan.New(c, acct, enshan.WithBaseURL(f.URL), enshan.WithSessionStore(store, time.Hour))
	}

	_, err := newAPI().SignIn(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, f.challenges.Load())

	saved, ok := store.Get(session.Key(enshan.Site, "alice"))
	require.True(t, ok)
	assert.Contains(t, saved.Cookies, clearance)
	assert.Equal(t, formhash, saved.Formhash)
	assert.False(t, saved.ExpiresAt.IsZero())

	res, err := newAPI().SignIn(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.challenges.Load(), "saved clearance must skip the challenge")
	assert.Contains(t, res.Cookies, clearance)
	assert.Contains(t, res.Cookies, "auth=xyz")
	assert.EqualValues(t, 2, f.signs.Load())
}
