package registry

import (
	"context"

	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/diag"
)

// Initializer is the optional one-shot lifecycle hook a module value may
// implement. Init runs at most once per registry, on the first initialized
// request for the module, concurrently with the requester.
type Initializer interface {
	Init(ctx context.Context) error
}

// initRecord marks that the Init hook for one module name has been claimed.
// done closes when the hook returns, whatever the outcome.
type initRecord struct {
	done chan struct{}
}

// Get resolves name and, if the value implements Initializer, runs or joins
// its one-shot initialization, blocking until the hook has returned. The
// resolved value is returned whether or not initialization succeeded; a nil
// return means resolution itself failed.
func (r *Registry) Get(ctx context.Context, name string) any {
	v := r.Resolve(ctx, name)
	if v == nil {
		return nil
	}
	r.InitializeOnce(ctx, name, v)
	return v
}

// GetUninitialized resolves name without touching its Init hook. The module
// may still be initialized later by the first Get.
func (r *Registry) GetUninitialized(ctx context.Context, name string) any {
	return r.Resolve(ctx, name)
}

// InitializeOnce runs value's Init hook if it has one and it has not run
// before, then blocks until the hook returns. Later callers for the same
// name block on the original run rather than starting another. A hook that
// fails or panics is logged and still counts as complete. Cancelling ctx
// abandons this caller's wait; the hook keeps running.
func (r *Registry) InitializeOnce(ctx context.Context, name string, value any) {
	init, ok := value.(Initializer)
	if !ok {
		return
	}

	r.mu.Lock()
	rec, claimed := r.inits[name]
	if !claimed {
		rec = &initRecord{done: make(chan struct{})}
		r.inits[name] = rec
	}
	r.mu.Unlock()

	if !claimed {
		go r.runInit(context.WithoutCancel(ctx), rec, name, init)
	}

	logger := ctxlog.FromContext(ctx)
	stop := diag.Watch(logger, r.scaled(initSlowUnits),
		"Module is taking a long time to initialize.",
		"Module initialization finished after a long wait.",
		"name", name)
	defer stop()

	select {
	case <-rec.done:
	case <-ctx.Done():
	}
}

func (r *Registry) runInit(ctx context.Context, rec *initRecord, name string, init Initializer) {
	logger := ctxlog.FromContext(ctx).With("name", name)
	defer close(rec.done)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Module initialization panicked.", "panic", p)
		}
	}()

	if err := init.Init(ctx); err != nil {
		logger.Error("Module initialization failed.", "error", err)
		return
	}
	logger.Debug("Module initialized.")
}
