package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/diag"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/future"
)

// Client is the client-side messenger: everything it sends goes to the
// authoritative peer.
type Client struct {
	core
}

// NewClient builds the client-side messenger over eps.
func NewClient(eps *endpoint.Registry, opts ...Option) *Client {
	return &Client{core: newCore(eps, opts)}
}

// Signal fires an event at the authoritative peer.
func (c *Client) Signal(ctx context.Context, name string, args ...any) error {
	logger := ctxlog.FromContext(ctx)
	h, err := c.eventEndpoint(ctx, name)
	if err != nil {
		logger.Error("Signal failed.", "name", name, "error", err)
		return err
	}
	sender, ok := h.(channel.EventSender)
	if !ok {
		err := fmt.Errorf("messaging: channel %q cannot reach the authority from this side", name)
		logger.Error("Signal failed.", "name", name, "error", err)
		return err
	}
	if err := sender.FireAuthority(ctx, args); err != nil {
		logger.Error("Signal failed.", "name", name, "error", err)
		return err
	}
	return nil
}

// SignalAsync is Signal wrapped in a future, reflecting call-site success
// only.
func (c *Client) SignalAsync(ctx context.Context, name string, args ...any) *future.Future[bool] {
	return future.Go(func() (bool, error) {
		if err := c.Signal(ctx, name, args...); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Invoke sends a request and blocks until the authoritative handler answers.
// There is no give-up point short of cancelling ctx: a handler that has not
// been bound yet simply keeps the call waiting, and the soft timeout only
// logs. A handler error comes back as (nil, error).
func (c *Client) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	logger := ctxlog.FromContext(ctx)
	h, ok := c.eps.Endpoint(ctx, name, channel.KindRequest)
	if !ok {
		err := fmt.Errorf("messaging: channel %q is not usable for requests", name)
		logger.Error("Invocation failed.", "name", name, "error", err)
		return nil, err
	}
	caller, ok := h.(channel.RequestCaller)
	if !ok {
		err := fmt.Errorf("messaging: channel %q cannot be invoked from this side", name)
		logger.Error("Invocation failed.", "name", name, "error", err)
		return nil, err
	}

	stop := diag.Watch(logger, time.Duration(invokeSlowUnits)*c.unit,
		"Invocation is taking a long time.",
		"Invocation resolved after a long wait.",
		"name", name)
	defer stop()

	result, err := caller.Call(ctx, args)
	if err != nil {
		logger.Error("Invocation failed.", "name", name, "error", err)
		return nil, err
	}
	return result, nil
}

// InvokeAsync is Invoke wrapped in a future.
func (c *Client) InvokeAsync(ctx context.Context, name string, args ...any) *future.Future[any] {
	return future.Go(func() (any, error) {
		return c.Invoke(ctx, name, args...)
	})
}
