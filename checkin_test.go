package checkin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ytget/checkin/config"
	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/notify"
	"github.com/ytget/checkin/sites/enshan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTask struct {
	account string
	msg     string
	err     error
	delay   time.Duration
	panics  bool

	running *atomic.Int32
	peak    *atomic.Int32
}

func (f *fakeTask) Site() string    { return "fake" }
func (f *fakeTask) Account() string { return f.account }

func (f *fakeTask) Run(ctx context.Context) (string, error) {
	if f.running != nil {
		n := f.running.Add(1)
		defer f.running.Add(-1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if f.panics {
		panic("boom")
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.msg, f.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(ctx context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func TestRun_NoTasks(t *testing.T) {
	_, err := New().Run(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrNoAccounts)
}

func TestRun_CollectsResultsInOrder(t *testing.T) {
	tasks := []Task{
		&fakeTask{account: "a", msg: "ok a", delay: 30 * time.Millisecond},
		&fakeTask{account: "b", err: errors.New("rejected")},
		&fakeTask{account: "c", msg: "ok c"},
		&fakeTask{account: "d", panics: true},
	}
	s, err := New().WithConcurrency(4).Run(context.Background(), tasks)
	require.NoError(t, err)

	require.Len(t, s.Results, 4)
	assert.NotEmpty(t, s.RunID)
	assert.False(t, s.Finished.Before(s.Started))
	assert.Equal(t, 2, s.Succeeded())
	assert.Equal(t, 2, s.Failed())

	var accounts []string
	for _, r := range s.Results {
		accounts = append(accounts, r.Account)
		assert.Equal(t, "fake", r.Site)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, accounts)
	assert.Equal(t, "ok a", s.Results[0].Message)
	assert.EqualError(t, s.Results[1].Err, "rejected")
	assert.Contains(t, s.Results[3].Err.Error(), "panicked")
	assert.GreaterOrEqual(t, s.Results[0].Duration, 30*time.Millisecond)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var tasks []Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, &fakeTask{account: string(rune('a' + i)), delay: 20 * time.Millisecond, running: &running, peak: &peak})
	}
	s, err := New().WithConcurrency(2).Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 8, s.Succeeded())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRun_RateLimit(t *testing.T) {
	tasks := []Task{&fakeTask{account: "a"}, &fakeTask{account: "b"}, &fakeTask{account: "c"}}
	start := time.Now()
	s, err := New().WithConcurrency(3).WithRate(20, 1).Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Succeeded())
	// Three starts at 20/s with burst 1 need at least two 50ms intervals.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks := []Task{&fakeTask{account: "a", delay: time.Second}}
	s, err := New().WithRate(1, 1).Run(ctx, tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Failed())
	assert.Error(t, s.Results[0].Err)
}

func TestRun_Notifies(t *testing.T) {
	n := &recordingNotifier{err: errors.New("offline")}
	tasks := []Task{&fakeTask{account: "a", msg: "done"}, &fakeTask{account: "b", err: errors.New("no formhash")}}

	_, err := New().WithNotifier(n, "恩山").Run(context.Background(), tasks)
	require.NoError(t, err, "notification failures are not run failures")

	require.Len(t, n.msgs, 1)
	assert.Equal(t, "恩山: 2 accounts: 1 ok, 1 failed", n.msgs[0].Title)
	assert.True(t, strings.HasPrefix(n.msgs[0].Body, "2 accounts"))
	assert.Contains(t, n.msgs[0].Body, "[FAIL] fake/b: no formhash")
	assert.Contains(t, n.msgs[0].Body, "[OK] fake/a: done")
}

func TestWithers(t *testing.T) {
	r := New().WithConcurrency(0).WithRate(0, 0).WithNotifier(nil, "")
	assert.Equal(t, 1, r.concurrency)
	assert.Nil(t, r.limiter)
	assert.Equal(t, "Check-in", r.title)

	r.WithRate(5, 0)
	require.NotNil(t, r.limiter)
	assert.Equal(t, 1, r.limiter.Burst())
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Run.Concurrency = 3
	cfg.Enshan.FallbackEngine = "goja"
	cfg.Notify.Bark.Key = "k"
	cfg.Run.SessionDir = filepath.Join(t.TempDir(), "sessions")
	cfg.Enshan.Accounts = []enshan.Account{
		{Name: "alice", Cookies: "auth=a"},
		{Name: "bob", Cookies: "auth=b"},
	}

	r, tasks, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, r.concurrency)
	require.NotNil(t, r.notifier)
	require.Len(t, tasks, 2)
	assert.Equal(t, enshan.Site, tasks[0].Site())
	assert.Equal(t, "bob", tasks[1].Account())
	assert.DirExists(t, cfg.Run.SessionDir)

	cfg.Enshan.FallbackEngine = "v8"
	_, _, err = FromConfig(cfg)
	assert.ErrorIs(t, err, errs.ErrUnknownEngine)
}
