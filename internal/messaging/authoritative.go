package messaging

import (
	"context"
	"fmt"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/future"
)

// Authoritative is the server-side messenger: it addresses signals to peers,
// reserves channels ahead of client demand and owns the request handlers.
type Authoritative struct {
	core
}

// NewAuthoritative builds the server-side messenger over eps.
func NewAuthoritative(eps *endpoint.Registry, opts ...Option) *Authoritative {
	return &Authoritative{core: newCore(eps, opts)}
}

// Signal fires an event at one peer. Fire-and-forget: a nil return means the
// event was handed to the transport, not that anyone consumed it.
func (a *Authoritative) Signal(ctx context.Context, to channel.Peer, name string, args ...any) error {
	logger := ctxlog.FromContext(ctx)
	h, err := a.eventEndpoint(ctx, name)
	if err != nil {
		logger.Error("Signal failed.", "name", name, "to", string(to), "error", err)
		return err
	}
	addr, ok := h.(channel.EventAddresser)
	if !ok {
		err := fmt.Errorf("messaging: channel %q cannot address peers from this side", name)
		logger.Error("Signal failed.", "name", name, "to", string(to), "error", err)
		return err
	}
	if err := addr.FireTo(ctx, to, args); err != nil {
		logger.Error("Signal failed.", "name", name, "to", string(to), "error", err)
		return err
	}
	return nil
}

// SignalAll broadcasts an event to every connected peer.
func (a *Authoritative) SignalAll(ctx context.Context, name string, args ...any) error {
	logger := ctxlog.FromContext(ctx)
	h, err := a.eventEndpoint(ctx, name)
	if err != nil {
		logger.Error("Broadcast failed.", "name", name, "error", err)
		return err
	}
	addr, ok := h.(channel.EventAddresser)
	if !ok {
		err := fmt.Errorf("messaging: channel %q cannot address peers from this side", name)
		logger.Error("Broadcast failed.", "name", name, "error", err)
		return err
	}
	if err := addr.FireAll(ctx, args); err != nil {
		logger.Error("Broadcast failed.", "name", name, "error", err)
		return err
	}
	return nil
}

// SignalAsync is Signal wrapped in a future. The future reflects call-site
// success only; there is no response payload to wait for.
func (a *Authoritative) SignalAsync(ctx context.Context, to channel.Peer, name string, args ...any) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := a.Signal(ctx, to, name, args...); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Reserve pre-creates the listed channels so clients referencing them never
// stall on negotiation.
func (a *Authoritative) Reserve(ctx context.Context, entries []endpoint.Entry) error {
	return a.eps.Reserve(ctx, entries)
}

// Peers lists the peers currently joined to the transport.
func (a *Authoritative) Peers() []channel.Peer {
	return a.eps.Peers()
}

// OnInvoke installs handler as the single responder for the request channel
// name, creating the channel if this is its first use. The last writer wins:
// a replaced handler is logged, not rejected. The return reports whether the
// handler is actually installed.
func (a *Authoritative) OnInvoke(ctx context.Context, name string, handler channel.Handler) bool {
	logger := ctxlog.FromContext(ctx)
	h, ok := a.eps.Endpoint(ctx, name, channel.KindRequest)
	if !ok {
		logger.Error("Handler binding failed.", "name", name)
		return false
	}
	binder, ok := h.(channel.RequestBinder)
	if !ok {
		logger.Error("Handler binding failed.", "name", name, "error", "channel cannot bind handlers from this side")
		return false
	}
	if binder.Bind(handler) {
		logger.Warn("Replaced the existing request handler.", "name", name)
	} else {
		logger.Debug("Request handler bound.", "name", name)
	}
	return true
}
