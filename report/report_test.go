package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ytget/checkin/types"
)

func summary() types.Summary {
	start := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	return types.Summary{
		RunID:    "run-1",
		Started:  start,
		Finished: start.Add(2 * time.Second),
		Results: []types.Result{
			{Site: "enshan", Account: "alice", Success: true, Message: "签到成功", Duration: 1200 * time.Millisecond},
			{Site: "enshan", Account: "bob", Err: errors.New("TOKEN_MISSING: formhash not found"), Duration: 300 * time.Millisecond},
		},
	}
}

func TestHeadline(t *testing.T) {
	assert.Equal(t, "2 accounts: 1 ok, 1 failed", Headline(summary()))
	assert.Equal(t, "0 accounts: 0 ok, 0 failed", Headline(types.Summary{}))
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	Table(&buf, summary())
	// Header and footer casing depends on the table style.
	out := strings.ToUpper(buf.String())

	for _, want := range []string{"RUN RUN-1", "ACCOUNT", "ALICE", "BOB", "OK", "FAIL", "签到成功", "TOKEN_MISSING", "1/2", "1.2S", "╭"} {
		assert.Contains(t, out, want)
	}
}

func TestText(t *testing.T) {
	got := Text(summary())
	lines := strings.Split(got, "\n")
	assert.Equal(t, []string{
		"2 accounts: 1 ok, 1 failed",
		"[FAIL] enshan/bob: TOKEN_MISSING: formhash not found",
		"[OK] enshan/alice: 签到成功",
	}, lines)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\t c", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "恩山签…", truncate("恩山签到成功", 4))
}
