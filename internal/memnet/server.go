package memnet

import (
	"context"

	"github.com/stellar-lua/stellar/internal/channel"
)

// serverView is the authoritative namespace. It has no local overlay:
// lookups and creates go straight at the hub table, renames are refused.
type serverView struct {
	hub *Hub
}

func (v *serverView) Lookup(name string) (channel.Handle, bool) {
	core, ok := v.hub.lookupCore(name)
	if !ok {
		return nil, false
	}
	return serverHandleFor(core), true
}

func (v *serverView) Create(name string, kind channel.Kind) (channel.Handle, error) {
	core, err := v.hub.createCore(name, kind)
	if err != nil {
		return nil, err
	}
	return serverHandleFor(core), nil
}

// Rename is a client-view concept; the authoritative names are canonical.
func (v *serverView) Rename(name, id string) bool {
	return false
}

func (v *serverView) Peers() []channel.Peer {
	return v.hub.peerList()
}

// serverHandleFor wraps a core in the kind-appropriate authoritative handle,
// so that capability assertions reflect the channel's kind.
func serverHandleFor(core *chanCore) channel.Handle {
	if core.kind == channel.KindEvent {
		return &serverEventHandle{core: core}
	}
	return &serverRequestHandle{core: core}
}

// serverEventHandle can address events to one peer or all peers, and observe
// client-originated traffic.
type serverEventHandle struct {
	core *chanCore
}

func (h *serverEventHandle) ID() string         { return h.core.name }
func (h *serverEventHandle) Kind() channel.Kind { return h.core.kind }

func (h *serverEventHandle) FireTo(ctx context.Context, to channel.Peer, args []any) error {
	h.core.firePeer(ctx, to, args)
	return nil
}

func (h *serverEventHandle) FireAll(ctx context.Context, args []any) error {
	h.core.fireAllPeers(ctx, args)
	return nil
}

func (h *serverEventHandle) Observe(fn channel.EventFunc) (channel.Unsubscribe, error) {
	return h.core.attachAuth(fn), nil
}

// serverRequestHandle owns the handler slot of a request channel.
type serverRequestHandle struct {
	core *chanCore
}

func (h *serverRequestHandle) ID() string         { return h.core.name }
func (h *serverRequestHandle) Kind() channel.Kind { return h.core.kind }

func (h *serverRequestHandle) Bind(handler channel.Handler) (replaced bool) {
	return h.core.bind(handler)
}
