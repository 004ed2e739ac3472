package jsvm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/ytget/checkin/internal/logger"
)

// GojaEngine runs challenge scripts on goja.
type GojaEngine struct {
	opts Options
}

func NewGoja(opts Options) *GojaEngine { return &GojaEngine{opts: opts} }

func (e *GojaEngine) Name() string { return "goja" }

func (e *GojaEngine) Evaluate(ctx context.Context, page string) (string, error) {
	scripts, err := Scripts(page)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout())
	defer cancel()

	vm := goja.New()

	// Interrupt the VM when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_ = vm.Set("__ua", e.opts.userAgent())
	_ = vm.Set("__href", e.opts.PageURL)
	if _, err := vm.RunString(prelude); err != nil {
		return "", fmt.Errorf("goja prelude: %w", err)
	}

	log := logger.WithComponent(logger.ComponentJSVM)
	var lastErr error
	for i, src := range scripts {
		if _, err := vm.RunScript(fmt.Sprintf("inline-%d.js", i), src); err != nil {
			if interrupted(err) {
				return "", fmt.Errorf("goja: %w", ctx.Err())
			}
			log.Debug("Inline script failed", map[string]interface{}{"engine": "goja", "index": i, "error": err})
			lastErr = err
		}
	}
	if _, err := vm.RunString(drainCall); err != nil {
		if interrupted(err) {
			return "", fmt.Errorf("goja: %w", ctx.Err())
		}
		lastErr = err
	}

	v, err := vm.RunString(cookieExpr)
	if err != nil {
		return "", fmt.Errorf("goja read cookie: %w", err)
	}
	cookie := v.String()
	if cookie == "" {
		if lastErr != nil {
			return "", fmt.Errorf("%w: %v", ErrNoCookie, lastErr)
		}
		return "", ErrNoCookie
	}
	return cookie, nil
}

func interrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}
