// Package soundfx is the library-driven demo service. Both sides resolve
// the `soundfx` library manifest at initialization and build an effect
// table from its exports; the server broadcasts `sfx:play` events and
// clients keep a journal of what they were told to play.
package soundfx

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/host"
	"github.com/stellar-lua/stellar/internal/libload"
	"github.com/stellar-lua/stellar/internal/messaging"
	"github.com/stellar-lua/stellar/internal/modtree"
)

const (
	libraryName = "soundfx"
	playChannel = "sfx:play"
)

// Table maps effect names to asset ids.
type Table map[string]string

// tableFromLibrary extracts the string-valued exports. Non-string exports
// are skipped with a warning; a manifest is allowed to carry other data.
func tableFromLibrary(ctx context.Context, lib *libload.Library) Table {
	logger := ctxlog.FromContext(ctx)
	table := make(Table, len(lib.Exports))
	for name, v := range lib.Exports {
		asset, ok := v.(string)
		if !ok {
			logger.Warn("Skipping a non-string sound export.", "effect", name, "type", fmt.Sprintf("%T", v))
			continue
		}
		table[name] = asset
	}
	return table
}

// Server owns the effect table and the play broadcast.
type Server struct {
	host *host.Host

	mu    sync.RWMutex
	table Table
}

// ServerUnit declares the server-side soundfx service for discovery.
func ServerUnit(h *host.Host) *modtree.Unit {
	return &modtree.Unit{
		Name: "soundfx",
		Load: func(ctx context.Context) (any, error) {
			return &Server{host: h}, nil
		},
	}
}

// Init resolves the effect library and reserves the play channel.
func (s *Server) Init(ctx context.Context) error {
	lib, ok := s.host.Libraries.Library(ctx, libraryName)
	if !ok {
		return fmt.Errorf("soundfx: library %q not found", libraryName)
	}

	table := tableFromLibrary(ctx, lib)
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()

	err := s.host.Auth.Reserve(ctx, []endpoint.Entry{
		{Name: playChannel, Kind: channel.KindEvent},
	})
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Soundfx service ready.", "effects", len(table), "version", lib.Version)
	return nil
}

// Lookup returns the asset id for an effect name.
func (s *Server) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.table[name]
	return asset, ok
}

// Play broadcasts one effect to every connected peer. Unknown effects are
// an error at the call site, not on the wire.
func (s *Server) Play(ctx context.Context, name string) error {
	asset, ok := s.Lookup(name)
	if !ok {
		return fmt.Errorf("soundfx: unknown effect %q", name)
	}
	return s.host.Auth.SignalAll(ctx, playChannel, name, asset)
}

// Effect is one broadcast entry a client has received.
type Effect struct {
	Name    string
	AssetID string
}

// Client resolves the shared effect table and journals play broadcasts.
type Client struct {
	host *host.Host

	mu     sync.Mutex
	table  Table
	played []Effect
	sub    *messaging.Subscription
}

// ClientUnit declares the client-side soundfx service for discovery.
func ClientUnit(h *host.Host) *modtree.Unit {
	return &modtree.Unit{
		Name: "soundfx",
		Load: func(ctx context.Context) (any, error) {
			return &Client{host: h}, nil
		},
	}
}

// Init resolves the effect library and attaches to the play channel. The
// attach waits for the server to have reserved the channel first.
func (c *Client) Init(ctx context.Context) error {
	lib, ok := c.host.Libraries.Library(ctx, libraryName)
	if !ok {
		return fmt.Errorf("soundfx: library %q not found", libraryName)
	}
	table := tableFromLibrary(ctx, lib)

	sub, err := c.host.Client.ObserveSignal(ctx, playChannel, c.onPlay).Wait(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.table = table
	c.sub = sub
	c.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Soundfx service ready.", "effects", len(table), "version", lib.Version)
	return nil
}

// Lookup returns the asset id for an effect name.
func (c *Client) Lookup(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	asset, ok := c.table[name]
	return asset, ok
}

// onPlay journals one play broadcast. Malformed payloads are dropped with a
// log line.
func (c *Client) onPlay(ctx context.Context, _ channel.Peer, args []any) {
	logger := ctxlog.FromContext(ctx)
	if len(args) != 2 {
		logger.Warn("Dropping a malformed play event.", "args", len(args))
		return
	}
	name, nameOK := args[0].(string)
	asset, assetOK := args[1].(string)
	if !nameOK || !assetOK {
		logger.Warn("Dropping a malformed play event.")
		return
	}
	c.mu.Lock()
	c.played = append(c.played, Effect{Name: name, AssetID: asset})
	c.mu.Unlock()
}

// Played returns a copy of the journal, oldest first.
func (c *Client) Played() []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.played)
}

// Close detaches the play listener. Safe to call before Init or twice.
func (c *Client) Close() {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
