package registry

import (
	"context"

	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// LoadAll is a no-op kept for callers of the old eager-preload API.
//
// Deprecated: discovery already registers every module up front and modules
// import on first use; there is nothing left to preload.
func (r *Registry) LoadAll(ctx context.Context) {
	ctxlog.FromContext(ctx).Warn("LoadAll is deprecated and does nothing; modules now load on first use.")
}

// WhenReady invokes fn immediately.
//
// Deprecated: there is no longer a readiness phase to wait for; a module is
// ready as soon as Get returns it.
func (r *Registry) WhenReady(ctx context.Context, fn func()) {
	ctxlog.FromContext(ctx).Warn("WhenReady is deprecated; the callback runs immediately.")
	if fn != nil {
		fn()
	}
}
