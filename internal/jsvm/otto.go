package jsvm

import (
	"context"
	"errors"
	"fmt"

	"github.com/robertkrimen/otto"

	"github.com/ytget/checkin/internal/logger"
)

var errHalt = errors.New("halt")

// OttoEngine runs challenge scripts on otto.
type OttoEngine struct {
	opts Options
}

func NewOtto(opts Options) *OttoEngine { return &OttoEngine{opts: opts} }

func (e *OttoEngine) Name() string { return "otto" }

func (e *OttoEngine) Evaluate(ctx context.Context, page string) (cookie string, err error) {
	scripts, err := Scripts(page)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout())
	defer cancel()

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt <- func() { panic(errHalt) }
		case <-done:
		}
	}()

	defer func() {
		if caught := recover(); caught != nil {
			if caught == errHalt {
				cookie, err = "", fmt.Errorf("otto: %w", ctx.Err())
				return
			}
			panic(caught)
		}
	}()

	if err := vm.Set("__ua", e.opts.userAgent()); err != nil {
		return "", fmt.Errorf("otto set globals: %w", err)
	}
	if err := vm.Set("__href", e.opts.PageURL); err != nil {
		return "", fmt.Errorf("otto set globals: %w", err)
	}
	if _, err := vm.Run(prelude); err != nil {
		return "", fmt.Errorf("otto prelude: %w", err)
	}

	log := logger.WithComponent(logger.ComponentJSVM)
	var lastErr error
	for i, src := range scripts {
		if _, err := vm.Run(src); err != nil {
			log.Debug("Inline script failed", map[string]interface{}{"engine": "otto", "index": i, "error": err})
			lastErr = err
		}
	}
	if _, err := vm.Run(drainCall); err != nil {
		lastErr = err
	}

	v, err := vm.Run(cookieExpr)
	if err != nil {
		return "", fmt.Errorf("otto read cookie: %w", err)
	}
	cookie = v.String()
	if cookie == "" {
		if lastErr != nil {
			return "", fmt.Errorf("%w: %v", ErrNoCookie, lastErr)
		}
		return "", ErrNoCookie
	}
	return cookie, nil
}
