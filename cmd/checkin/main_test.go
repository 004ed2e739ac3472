package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/checkin/waf/waftest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String() + errOut.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestSolve_Table(t *testing.T) {
	path := writeTemp(t, "page.html", waftest.Page("https_ydclearance=abc123; path=/"))
	out, err := execute(t, "solve", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ydclearance-v1")
	assert.Contains(t, out, "https_ydclearance=abc123")
	assert.Contains(t, out, "mod skip")
}

func TestSolve_JSONWithEngine(t *testing.T) {
	path := writeTemp(t, "page.html", waftest.Page("https_ydclearance=abc123; path=/"))
	out, err := execute(t, "solve", "--json", "--engine", "goja", path)
	require.NoError(t, err)

	var got solveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Detected)
	assert.Equal(t, "goja", got.Engine)
	assert.Equal(t, "https_ydclearance=abc123", got.Cookie)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.Challenge)
	assert.Equal(t, waftest.DefaultSeed, got.Challenge.Seed)
}

func TestSolve_Drift(t *testing.T) {
	path := writeTemp(t, "page.html", "<html><script>var oo=[0x1,0x2];</script></html>")
	out, err := execute(t, "solve", path)
	require.Error(t, err)
	assert.Contains(t, out, "EXTRACTION_FAILED")
}

func TestSolve_MissingFile(t *testing.T) {
	_, err := execute(t, "solve", filepath.Join(t.TempDir(), "nope.html"))
	assert.ErrorContains(t, err, "read page")
}

func newForum(t *testing.T, signBody string) *httptest.Server {
	t.Helper()
	const cookie = "https_ydclearance=feed01"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && !strings.Contains(r.Header.Get("Cookie"), cookie):
			_, _ = w.Write([]byte(waftest.Page(cookie + "; path=/")))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`<a href="member.php?mod=logging&amp;action=logout&amp;formhash=abcd1234">x</a>`))
		default:
			_, _ = w.Write([]byte(signBody))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runConfig(t *testing.T, baseURL string) string {
	return writeTemp(t, "token.json", `{
  "log": {"level": "ERROR", "output": "null"},
  "run": {"concurrency": 2, "rate": 0},
  "enshan": {
    "base_url": "`+baseURL+`",
    "accounts": [{"name": "alice", "cookies": "auth=a"}, {"name": "bob", "cookies": "auth=b"}]
  }
}`)
}

func TestRun(t *testing.T) {
	srv := newForum(t, `{"status":"success","message":"signed"}`)
	out, err := execute(t, "run", "-c", runConfig(t, srv.URL))
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "signed")
}

func TestRun_FailuresExitNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`<input type="hidden" name="formhash" value="abcd1234">`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "run", "-c", runConfig(t, srv.URL))
	assert.ErrorIs(t, err, errFailures)
	assert.Contains(t, strings.ToUpper(out), "FAIL")
}

func TestRun_NoAccounts(t *testing.T) {
	path := writeTemp(t, "token.json", `{"log": {"output": "null"}}`)
	out, err := execute(t, "run", "-c", path)
	require.Error(t, err)
	assert.Contains(t, out, "No accounts configured")
}

func TestRun_MissingExplicitConfig(t *testing.T) {
	_, err := execute(t, "run", "-c", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read config")
}
