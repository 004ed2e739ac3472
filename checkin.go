package checkin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ytget/checkin/client"
	"github.com/ytget/checkin/config"
	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/internal/jsvm"
	"github.com/ytget/checkin/internal/logger"
	"github.com/ytget/checkin/internal/session"
	"github.com/ytget/checkin/notify"
	"github.com/ytget/checkin/report"
	"github.com/ytget/checkin/sites/enshan"
	"github.com/ytget/checkin/types"
)

const defaultConcurrency = 1

// Task signs one account in on one site.
type Task interface {
	Site() string
	Account() string
	// Run performs the check-in and returns the site's message.
	Run(ctx context.Context) (string, error)
}

// Runner processes tasks with bounded parallelism and reports the outcome.
type Runner struct {
	concurrency int
	limiter     *rate.Limiter
	notifier    notify.Notifier
	title       string
}

// startPprofServer starts a pprof server for debugging
func startPprofServer() {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		log := logger.WithComponent(logger.ComponentApp)
		log.Info("Starting pprof server", map[string]interface{}{"addr": ":6060"})
		if err := http.ListenAndServe(":6060", mux); err != nil {
			log.Error("pprof server stopped", map[string]interface{}{"error": err})
		}
	}()
}

// New creates a Runner that processes one task at a time without a rate
// limit or notifications.
func New() *Runner {
	if os.Getenv("CHECKIN_PPROF") == "1" {
		startPprofServer()
	}
	return &Runner{concurrency: defaultConcurrency, title: "Check-in"}
}

// WithConcurrency sets how many tasks run at once. Values below 1 mean 1.
func (r *Runner) WithConcurrency(n int) *Runner {
	if n < 1 {
		n = 1
	}
	r.concurrency = n
	return r
}

// WithRate limits how many tasks start per second. A rate of 0 removes the limit.
func (r *Runner) WithRate(perSecond float64, burst int) *Runner {
	if perSecond <= 0 {
		r.limiter = nil
		return r
	}
	if burst < 1 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return r
}

// WithNotifier sends the summary through n after every run.
func (r *Runner) WithNotifier(n notify.Notifier, title string) *Runner {
	r.notifier = n
	if title != "" {
		r.title = title
	}
	return r
}

// Run executes every task and returns the summary in task order. A failing
// task never stops the others; the returned error is set only when there is
// nothing to run.
func (r *Runner) Run(ctx context.Context, tasks []Task) (types.Summary, error) {
	log := logger.WithComponent(logger.ComponentApp)
	summary := types.Summary{RunID: uuid.NewString(), Started: time.Now()}
	if len(tasks) == 0 {
		summary.Finished = summary.Started
		return summary, errs.ErrNoAccounts
	}

	log.Info("Run started", map[string]interface{}{
		"run_id":      summary.RunID,
		"tasks":       len(tasks),
		"concurrency": r.concurrency,
	})

	results := make([]types.Result, len(tasks))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = r.runOne(ctx, task)
			return nil
		})
	}
	_ = g.Wait()

	summary.Results = results
	summary.Finished = time.Now()
	log.Info("Run finished", map[string]interface{}{
		"run_id":    summary.RunID,
		"succeeded": summary.Succeeded(),
		"failed":    summary.Failed(),
		"duration":  summary.Finished.Sub(summary.Started).String(),
	})

	if r.notifier != nil {
		msg := notify.Message{
			Title: r.title + ": " + report.Headline(summary),
			Body:  report.Text(summary),
		}
		if err := r.notifier.Send(ctx, msg); err != nil {
			log.Warn("Summary notification failed", map[string]interface{}{"error": err})
		}
	}
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, task Task) (res types.Result) {
	res = types.Result{Site: task.Site(), Account: task.Account()}
	start := time.Now()
	log := logger.WithComponent(logger.ComponentApp)
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Err = fmt.Errorf("task panicked: %v", p)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			log.Error("Task failed", map[string]interface{}{
				"site":    res.Site,
				"account": res.Account,
				"error":   res.Err,
			})
		}
	}()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}
	msg, err := task.Run(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Success = true
	res.Message = msg
	log.Info("Task succeeded", map[string]interface{}{
		"site":    res.Site,
		"account": res.Account,
		"message": msg,
	})
	return res
}

// FromConfig builds a Runner and its tasks from a loaded configuration.
func FromConfig(cfg *config.Config) (*Runner, []Task, error) {
	c := client.NewWith(client.Config{
		Timeout:   cfg.HTTP.Timeout,
		Retries:   cfg.HTTP.Retries,
		UserAgent: cfg.HTTP.UserAgent,
		ProxyURL:  cfg.HTTP.Proxy,
	})

	var opts []enshan.Option
	opts = append(opts, enshan.WithBaseURL(cfg.Enshan.BaseURL))
	if name := strings.TrimSpace(cfg.Enshan.FallbackEngine); name != "" {
		engine, err := jsvm.New(name, jsvm.Options{
			UserAgent: cfg.HTTP.UserAgent,
			PageURL:   cfg.Enshan.BaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, enshan.WithScriptEngine(engine))
	}

	if cfg.Run.SessionDir != "" {
		store, err := session.NewFileStore(cfg.Run.SessionDir)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		opts = append(opts, enshan.WithSessionStore(store, cfg.Run.SessionTTL))
	}

	tasks := make([]Task, 0, cfg.Accounts())
	for _, acct := range cfg.Enshan.Accounts {
		tasks = append(tasks, enshan.New(c, acct, opts...))
	}

	r := New().
		WithConcurrency(cfg.Run.Concurrency).
		WithRate(cfg.Run.Rate, cfg.Run.Burst)
	if channels := notify.FromConfig(cfg.Notify); len(channels) > 0 {
		r.WithNotifier(channels, cfg.Notify.Title)
	}
	return r, tasks, nil
}
