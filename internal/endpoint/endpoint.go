// Package endpoint negotiates usable channel handles over a namespace and
// remembers them. The authoritative side creates channels on demand; clients
// wait for the authoritative side to have created them, re-identify each
// channel once under an opaque id, and cache the result. After the first
// successful negotiation for a name, the local cache is the only path taken.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/diag"
)

// waitSlowUnits is the client-side soft timeout, in time units, for a name
// the authoritative side has not created yet. Diagnostic only.
const waitSlowUnits = 10

// Defaults for the tunables, matching the registry's scale.
const (
	DefaultTimeUnit     = time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// Entry is one channel to pre-create during Reserve.
type Entry struct {
	Name string
	Kind channel.Kind
}

// Registry negotiates and caches endpoints for one peer. The cache is keyed
// by the original channel name: renames change what the handle answers to on
// the wire, never how callers ask for it.
type Registry struct {
	ns   channel.Namespace
	role channel.Role
	unit time.Duration
	poll time.Duration

	mu      sync.Mutex
	aliases map[string]channel.Handle
}

// Option tunes a Registry at construction time.
type Option func(*Registry)

// WithTimeUnit rescales the soft-timeout threshold. The default is one
// second.
func WithTimeUnit(d time.Duration) Option {
	return func(r *Registry) { r.unit = d }
}

// WithPollInterval sets the tick used while waiting for a channel to be
// created.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) { r.poll = d }
}

// New creates a Registry over ns acting as role.
func New(ns channel.Namespace, role channel.Role, opts ...Option) *Registry {
	r := &Registry{
		ns:      ns,
		role:    role,
		unit:    DefaultTimeUnit,
		poll:    DefaultPollInterval,
		aliases: make(map[string]channel.Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint returns a usable handle for name, negotiating it on first use.
//
// The authoritative side finds or creates the channel. A client waits for
// the channel to exist, warning once past the soft timeout and then waiting
// on since the authoritative side may create it at any moment, and finally
// renames it to a fresh opaque id in its own view, at most once per name.
//
// Any channel found under name with the wrong kind makes the endpoint
// unusable for this call: the mismatch is logged and (nil, false) returned.
// Cancelling ctx abandons the wait the same way.
func (r *Registry) Endpoint(ctx context.Context, name string, kind channel.Kind) (channel.Handle, bool) {
	logger := ctxlog.FromContext(ctx)

	if h, ok := r.cached(name); ok {
		if h.Kind() != kind {
			logger.Error("Endpoint kind mismatch.", "name", name, "want", kind.String(), "got", h.Kind().String())
			return nil, false
		}
		return h, true
	}

	if r.role == channel.RoleAuthoritative {
		return r.establish(ctx, name, kind)
	}
	return r.negotiate(ctx, name, kind)
}

// Reserve pre-creates every entry on the authoritative side, so that
// clients asking for them never have to wait. Failures are logged and
// collected; the remaining entries are still attempted.
func (r *Registry) Reserve(ctx context.Context, entries []Entry) error {
	logger := ctxlog.FromContext(ctx)
	if r.role != channel.RoleAuthoritative {
		return channel.ErrNotAuthoritative
	}

	var errs []error
	for _, e := range entries {
		if _, ok := r.establish(ctx, e.Name, e.Kind); !ok {
			errs = append(errs, fmt.Errorf("reserve %q: unusable", e.Name))
		}
	}
	logger.Info("Endpoint reservation finished.", "requested", len(entries), "failed", len(errs))
	return errors.Join(errs...)
}

// Peers lists the peers currently joined to the namespace. Only the
// authoritative side tracks membership; clients get an empty roster.
func (r *Registry) Peers() []channel.Peer {
	return r.ns.Peers()
}

func (r *Registry) cached(name string) (channel.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.aliases[name]
	return h, ok
}

// establish is the authoritative path: find or create, then cache.
func (r *Registry) establish(ctx context.Context, name string, kind channel.Kind) (channel.Handle, bool) {
	logger := ctxlog.FromContext(ctx)

	h, err := r.ns.Create(name, kind)
	if err != nil {
		logger.Error("Endpoint creation failed.", "name", name, "kind", kind.String(), "error", err)
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.aliases[name]; ok {
		return cached, true
	}
	r.aliases[name] = h
	logger.Debug("Endpoint established.", "name", name, "kind", kind.String())
	return h, true
}

// negotiate is the client path: wait for the channel, check its kind, then
// re-identify it under an opaque id exactly once.
func (r *Registry) negotiate(ctx context.Context, name string, kind channel.Kind) (channel.Handle, bool) {
	logger := ctxlog.FromContext(ctx)

	h, ok := r.await(ctx, name)
	if !ok {
		return nil, false
	}
	if h.Kind() != kind {
		logger.Error("Endpoint kind mismatch.", "name", name, "want", kind.String(), "got", h.Kind().String())
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.aliases[name]; ok {
		// Another goroutine finished the same negotiation first; its rename
		// already happened.
		return cached, true
	}
	opaque := uuid.NewString()
	if r.ns.Rename(h.ID(), opaque) {
		logger.Debug("Endpoint re-identified.", "name", name, "id", opaque)
	}
	r.aliases[name] = h
	return h, true
}

// await polls for name to appear in the namespace, warning once past the
// soft timeout and then waiting on.
func (r *Registry) await(ctx context.Context, name string) (channel.Handle, bool) {
	if h, ok := r.ns.Lookup(name); ok {
		return h, true
	}

	logger := ctxlog.FromContext(ctx)
	stop := diag.Watch(logger, time.Duration(waitSlowUnits)*r.unit,
		"Endpoint is not reserved; a possible infinite wait follows.",
		"Endpoint appeared after a long wait.",
		"name", name)
	defer stop()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, false
		}
		if h, ok := r.ns.Lookup(name); ok {
			return h, true
		}
	}
}
