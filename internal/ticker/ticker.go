// Package ticker drives the periodic work of a host: one loop, many
// subscribers, delivered in subscription order with the elapsed time since
// the previous beat.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// Func is called once per beat with the time elapsed since the previous one.
type Func func(ctx context.Context, dt time.Duration)

type subscriber struct {
	id   int
	name string
	fn   Func
}

// Ticker fans one time.Ticker out to named subscribers. A subscriber that
// panics is logged and skipped for that beat; it stays subscribed.
type Ticker struct {
	interval time.Duration

	mu     sync.Mutex
	subs   []subscriber
	nextID int
}

// New creates a Ticker beating at interval.
func New(interval time.Duration) *Ticker {
	if interval <= 0 {
		panic("ticker: interval must be positive")
	}
	return &Ticker{interval: interval}
}

// Subscribe attaches fn under name (used in diagnostics only; names need not
// be unique). The returned cancel detaches it and is safe to call twice.
func (t *Ticker) Subscribe(name string, fn Func) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs = append(t.subs, subscriber{id: id, name: name, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Run beats until ctx ends. Subscribers run synchronously on the loop
// goroutine, in subscription order; a slow subscriber therefore delays the
// beat for everyone after it.
func (t *Ticker) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Heartbeat started.", "interval", t.interval)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Heartbeat stopped.")
			return
		case now := <-tick.C:
			dt := now.Sub(last)
			last = now
			t.beat(ctx, dt)
		}
	}
}

func (t *Ticker) beat(ctx context.Context, dt time.Duration) {
	t.mu.Lock()
	subs := append([]subscriber(nil), t.subs...)
	t.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	for _, s := range subs {
		func() {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("Heartbeat subscriber panicked.", "subscriber", s.name, "panic", p)
				}
			}()
			s.fn(ctx, dt)
		}()
	}
}
