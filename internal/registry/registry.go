package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/modtree"
)

// Soft-timeout thresholds, in registry time units. Diagnostics only; no wait
// in this package is ever aborted.
const (
	appearSlowUnits  = 5  // waiting for a name to be registered
	resolveSlowUnits = 1  // a single resolution, measured after completion
	batchSlowUnits   = 2  // each name of a batch resolution
	initSlowUnits    = 15 // waiting for an Init hook to return
)

// Defaults for the tunables. A one-second unit keeps the thresholds above at
// human scale; tests shrink both to keep themselves fast.
const (
	DefaultTimeUnit     = time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// Registry is the singleton store behind module discovery, resolution and
// initialization. All state transitions are one-shot: a name is registered
// once, imported once and initialized once, no matter how many goroutines
// ask for it.
type Registry struct {
	unit time.Duration
	poll time.Duration

	mu      sync.Mutex
	units   map[string]*modtree.Unit
	imports map[string]*importCell
	inits   map[string]*initRecord
}

// Option tunes a Registry at construction time.
type Option func(*Registry)

// WithTimeUnit rescales every soft-timeout threshold. The default is one
// second.
func WithTimeUnit(d time.Duration) Option {
	return func(r *Registry) { r.unit = d }
}

// WithPollInterval sets the tick used while waiting for a name to be
// registered.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) { r.poll = d }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		unit:    DefaultTimeUnit,
		poll:    DefaultPollInterval,
		units:   make(map[string]*modtree.Unit),
		imports: make(map[string]*importCell),
		inits:   make(map[string]*initRecord),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover walks the given collections and registers every module unit under
// its declared name. It returns the number of units registered. Passing a
// nil collection, or registering a name twice, is a programming error and
// panics.
func (r *Registry) Discover(ctx context.Context, roots ...*modtree.Collection) int {
	logger := ctxlog.FromContext(ctx)
	count := 0
	for _, root := range roots {
		if root == nil {
			panic("registry: Discover called with a nil collection")
		}
		modtree.Walk(root, func(u *modtree.Unit) {
			r.register(u)
			count++
			logger.Debug("Registered module.", "name", u.Name, "collection", root.Name)
		})
	}
	logger.Info("Module discovery finished.", "registered", count)
	return count
}

func (r *Registry) register(u *modtree.Unit) {
	if u.Load == nil {
		panic(fmt.Sprintf("registry: module '%s' has no load function", u.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[u.Name]; exists {
		panic(fmt.Sprintf("registry: module with name '%s' already registered", u.Name))
	}
	r.units[u.Name] = u
}

// Registered reports whether a name has been discovered, without waiting.
func (r *Registry) Registered(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.units[name]
	return ok
}

func (r *Registry) scaled(units int) time.Duration {
	return time.Duration(units) * r.unit
}
