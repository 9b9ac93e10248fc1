// Package stats is the heartbeat-driven demo service. The server answers
// `stats:ping` with its uptime, beat count, and peer roster size; the client
// pings on every heartbeat and keeps the latest snapshot.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/host"
	"github.com/stellar-lua/stellar/internal/modtree"
)

const pingChannel = "stats:ping"

// Snapshot is one answered ping, as seen from the client.
type Snapshot struct {
	UptimeMS int64
	Beats    int64
	Peers    int
	RTT      time.Duration
}

// Server counts its own heartbeats and answers pings.
type Server struct {
	host    *host.Host
	started time.Time

	mu    sync.Mutex
	beats int64
}

// ServerUnit declares the server-side stats service for discovery.
func ServerUnit(h *host.Host) *modtree.Unit {
	return &modtree.Unit{
		Name: "stats",
		Load: func(ctx context.Context) (any, error) {
			return &Server{host: h, started: time.Now()}, nil
		},
	}
}

// Init reserves the ping channel, binds its handler, and starts counting
// heartbeats when the host has one.
func (s *Server) Init(ctx context.Context) error {
	err := s.host.Auth.Reserve(ctx, []endpoint.Entry{
		{Name: pingChannel, Kind: channel.KindRequest},
	})
	if err != nil {
		return err
	}
	if !s.host.Auth.OnInvoke(ctx, pingChannel, s.handlePing) {
		return fmt.Errorf("stats: cannot bind the ping handler on %q", pingChannel)
	}
	if s.host.Heartbeat != nil {
		s.host.Heartbeat.Subscribe("stats", func(context.Context, time.Duration) {
			s.mu.Lock()
			s.beats++
			s.mu.Unlock()
		})
	}
	ctxlog.FromContext(ctx).Debug("Stats service ready.")
	return nil
}

// Beats returns how many heartbeats the server has seen.
func (s *Server) Beats() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beats
}

func (s *Server) handlePing(context.Context, channel.Peer, []any) (any, error) {
	return map[string]any{
		"uptime_ms": time.Since(s.started).Milliseconds(),
		"beats":     s.Beats(),
		"peers":     len(s.host.Auth.Peers()),
	}, nil
}

// Client pings the server on each heartbeat and remembers the last answer.
type Client struct {
	host *host.Host

	mu       sync.Mutex
	latest   *Snapshot
	pending  bool
	cancel   func()
	inflight sync.WaitGroup
}

// ClientUnit declares the client-side stats service for discovery.
func ClientUnit(h *host.Host) *modtree.Unit {
	return &modtree.Unit{
		Name: "stats",
		Load: func(ctx context.Context) (any, error) {
			return &Client{host: h}, nil
		},
	}
}

// Init primes the endpoint with one synchronous ping, which also waits out
// a server that has not bound the handler yet, then pings once per
// heartbeat, skipping beats while an answer is outstanding.
func (c *Client) Init(ctx context.Context) error {
	if _, err := c.Ping(ctx); err != nil {
		return err
	}
	if c.host.Heartbeat != nil {
		c.cancel = c.host.Heartbeat.Subscribe("stats", c.onBeat)
	}
	ctxlog.FromContext(ctx).Debug("Stats service ready.")
	return nil
}

// Ping invokes the server once and records the snapshot.
func (c *Client) Ping(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	res, err := c.host.Client.Invoke(ctx, pingChannel)
	if err != nil {
		return nil, err
	}
	snap, err := parseSnapshot(res, time.Since(start))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.latest = snap
	c.mu.Unlock()
	return snap, nil
}

// Latest returns the most recent snapshot, nil before the first answer.
func (c *Client) Latest() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Close detaches from the heartbeat and waits for any ping in flight.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.inflight.Wait()
}

// onBeat fires one ping per beat off the loop goroutine. Beats that land
// while the previous answer is outstanding are skipped, so a slow server
// never piles requests up.
func (c *Client) onBeat(ctx context.Context, _ time.Duration) {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = true
	c.inflight.Add(1)
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.pending = false
			c.mu.Unlock()
			c.inflight.Done()
		}()
		if _, err := c.Ping(ctx); err != nil {
			ctxlog.FromContext(ctx).Warn("Heartbeat ping failed.", "error", err)
		}
	}()
}

// parseSnapshot reads the handler's response map. Numbers arrive as int64
// in process and as float64 over a JSON transport; both are accepted.
func parseSnapshot(v any, rtt time.Duration) (*Snapshot, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("stats: unexpected response type %T", v)
	}
	return &Snapshot{
		UptimeMS: asInt64(m["uptime_ms"]),
		Beats:    asInt64(m["beats"]),
		Peers:    int(asInt64(m["peers"])),
		RTT:      rtt,
	}, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}
