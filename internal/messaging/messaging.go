package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/future"
)

// invokeSlowUnits is the invocation soft timeout, in time units. Diagnostic
// only; the call keeps waiting.
const invokeSlowUnits = 10

// DefaultTimeUnit matches the registry's scale.
const DefaultTimeUnit = time.Second

// Option tunes a messenger at construction time.
type Option func(*core)

// WithTimeUnit rescales the invocation soft timeout.
func WithTimeUnit(d time.Duration) Option {
	return func(c *core) { c.unit = d }
}

// core carries what both messenger roles share: the endpoint registry and
// the diagnostic time scale.
type core struct {
	eps  *endpoint.Registry
	unit time.Duration
}

func newCore(eps *endpoint.Registry, opts []Option) core {
	c := core{eps: eps, unit: DefaultTimeUnit}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Endpoint negotiates the handle for name, kind. It is the messaging-level
// view of the endpoint registry, exposed for callers that need the raw
// handle rather than a signal or invocation.
func (c *core) Endpoint(ctx context.Context, name string, kind channel.Kind) (channel.Handle, bool) {
	return c.eps.Endpoint(ctx, name, kind)
}

// ObserveSignal attaches fn as a listener on the event channel name. The
// returned future resolves with the live subscription once the channel is
// confirmed to exist (on a client that may be an arbitrarily long wait) and
// fails if the channel turns out not to be usable as an event source.
func (c *core) ObserveSignal(ctx context.Context, name string, fn channel.EventFunc) *future.Future[*Subscription] {
	logger := ctxlog.FromContext(ctx)
	return future.Go(func() (*Subscription, error) {
		h, ok := c.eps.Endpoint(ctx, name, channel.KindEvent)
		if !ok {
			err := fmt.Errorf("messaging: channel %q is not usable for events", name)
			logger.Error("Signal observation failed.", "name", name, "error", err)
			return nil, err
		}
		src, ok := h.(channel.EventSource)
		if !ok {
			err := fmt.Errorf("messaging: channel %q cannot be observed from this side", name)
			logger.Error("Signal observation failed.", "name", name, "error", err)
			return nil, err
		}
		unsub, err := src.Observe(fn)
		if err != nil {
			logger.Error("Signal observation failed.", "name", name, "error", err)
			return nil, err
		}
		logger.Debug("Signal observation attached.", "name", name)
		return &Subscription{name: name, cancel: unsub}, nil
	})
}

// eventEndpoint resolves name as an event channel or reports why it cannot
// be used as one.
func (c *core) eventEndpoint(ctx context.Context, name string) (channel.Handle, error) {
	h, ok := c.eps.Endpoint(ctx, name, channel.KindEvent)
	if !ok {
		return nil, fmt.Errorf("messaging: channel %q is not usable for events", name)
	}
	return h, nil
}

// Subscription is one attached signal listener. Cancelling stops deliveries
// that have not been dispatched yet; it is safe to cancel more than once.
type Subscription struct {
	name   string
	cancel channel.Unsubscribe
}

// Name returns the channel name the subscription listens on.
func (s *Subscription) Name() string { return s.name }

// Cancel detaches the listener.
func (s *Subscription) Cancel() { s.cancel() }
