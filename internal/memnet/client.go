package memnet

import (
	"context"
	"sync"

	"github.com/stellar-lua/stellar/internal/channel"
)

// renameable is the extra edge client handles expose to their view: the
// view mutates the handle's local id in place so that handles already held
// by callers follow the rename.
type renameable interface {
	channel.Handle
	setID(id string)
}

// ClientView is one client's window onto the hub. Lookups materialize
// stable per-view handles; Rename swaps the handle's local id without
// touching the hub, so only this view is affected.
type ClientView struct {
	hub  *Hub
	peer channel.Peer

	mu      sync.Mutex
	byLocal map[string]renameable // current local id -> handle
	hidden  map[string]bool       // canonical names renamed away from
	closed  bool
}

// Peer returns the id this view joined the hub under.
func (v *ClientView) Peer() channel.Peer { return v.peer }

// Close disconnects the peer: its listeners are dropped and it disappears
// from the authoritative roster. Handles from this view stop receiving.
func (v *ClientView) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()
	v.hub.leave(v.peer)
}

func (v *ClientView) Lookup(name string) (channel.Handle, bool) {
	v.mu.Lock()
	if h, ok := v.byLocal[name]; ok {
		v.mu.Unlock()
		return h, true
	}
	hidden := v.hidden[name]
	v.mu.Unlock()
	if hidden {
		// Renamed away: the canonical name no longer resolves in this view.
		return nil, false
	}

	core, ok := v.hub.lookupCore(name)
	if !ok {
		return nil, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if h, ok := v.byLocal[name]; ok {
		return h, true
	}
	h := newClientHandle(v, core, name)
	v.byLocal[name] = h
	return h, true
}

// Create always fails here: channel creation is the authoritative side's
// privilege.
func (v *ClientView) Create(name string, kind channel.Kind) (channel.Handle, error) {
	return nil, channel.ErrNotAuthoritative
}

// Rename re-identifies the channel this view currently knows as name. The
// handle keeps its identity; only its local id changes. Unknown names
// report false.
func (v *ClientView) Rename(name, id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	h, ok := v.byLocal[name]
	if !ok {
		return false
	}
	if name == id {
		return true
	}
	delete(v.byLocal, name)
	v.byLocal[id] = h
	h.setID(id)
	v.hidden[name] = true
	return true
}

func (v *ClientView) Peers() []channel.Peer {
	return nil
}

func newClientHandle(v *ClientView, core *chanCore, id string) renameable {
	base := clientHandleBase{view: v, core: core, id: id}
	if core.kind == channel.KindEvent {
		return &clientEventHandle{clientHandleBase: base}
	}
	return &clientRequestHandle{clientHandleBase: base}
}

// clientHandleBase carries the mutable local id shared by both handle kinds.
type clientHandleBase struct {
	view *ClientView
	core *chanCore

	mu sync.Mutex
	id string
}

func (h *clientHandleBase) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id
}

func (h *clientHandleBase) Kind() channel.Kind { return h.core.kind }

func (h *clientHandleBase) setID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.id = id
}

// clientEventHandle fires toward the authoritative side and observes
// authoritative traffic addressed to this peer.
type clientEventHandle struct {
	clientHandleBase
}

func (h *clientEventHandle) FireAuthority(ctx context.Context, args []any) error {
	h.core.fireAuth(ctx, h.view.peer, args)
	return nil
}

func (h *clientEventHandle) Observe(fn channel.EventFunc) (channel.Unsubscribe, error) {
	return h.core.attachPeer(h.view.peer, fn), nil
}

// clientRequestHandle issues blocking calls against the authoritative
// handler slot.
type clientRequestHandle struct {
	clientHandleBase
}

func (h *clientRequestHandle) Call(ctx context.Context, args []any) (any, error) {
	return h.core.call(ctx, h.view.peer, args)
}
