package memnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/stellar-lua/stellar/internal/channel"
)

// chanCore is the single shared state of one channel: every view's handle
// for a name points at the same core. Event listeners are grouped by the
// side that attached them; the request handler is a single replaceable slot.
type chanCore struct {
	name string
	kind channel.Kind

	mu            sync.Mutex
	nextListener  int
	authListeners []listenerEntry                  // attached by the authoritative side
	peerListeners map[channel.Peer][]listenerEntry // attached by each client

	handler      channel.Handler
	handlerReady chan struct{} // closed when the first handler binds
}

type listenerEntry struct {
	id int
	fn channel.EventFunc
}

func newChanCore(name string, kind channel.Kind) *chanCore {
	if !kind.Valid() {
		panic(fmt.Sprintf("memnet: invalid kind value %d for channel '%s'", int(kind), name))
	}
	return &chanCore{
		name:          name,
		kind:          kind,
		peerListeners: make(map[channel.Peer][]listenerEntry),
		handlerReady:  make(chan struct{}),
	}
}

// attachAuth registers a listener on the authoritative side and returns its
// removal func.
func (c *chanCore) attachAuth(fn channel.EventFunc) channel.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.authListeners = append(c.authListeners, listenerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.authListeners = removeListener(c.authListeners, id)
	}
}

// attachPeer registers a listener on one client's side.
func (c *chanCore) attachPeer(peer channel.Peer, fn channel.EventFunc) channel.Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.peerListeners[peer] = append(c.peerListeners[peer], listenerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.peerListeners[peer] = removeListener(c.peerListeners[peer], id)
	}
}

func removeListener(entries []listenerEntry, id int) []listenerEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

// dropPeer removes every listener the peer attached, in one sweep.
func (c *chanCore) dropPeer(peer channel.Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peerListeners, peer)
}

// fireAuth delivers a client-originated event to the authoritative
// listeners. Fire-and-forget: each listener runs on its own goroutine,
// detached from the sender's cancellation.
func (c *chanCore) fireAuth(ctx context.Context, from channel.Peer, args []any) {
	c.mu.Lock()
	listeners := append([]listenerEntry(nil), c.authListeners...)
	c.mu.Unlock()
	dispatch(ctx, listeners, from, args)
}

// firePeer delivers an authoritative event to one client's listeners.
func (c *chanCore) firePeer(ctx context.Context, to channel.Peer, args []any) {
	c.mu.Lock()
	listeners := append([]listenerEntry(nil), c.peerListeners[to]...)
	c.mu.Unlock()
	dispatch(ctx, listeners, channel.Authority, args)
}

// fireAllPeers delivers an authoritative event to every client's listeners.
func (c *chanCore) fireAllPeers(ctx context.Context, args []any) {
	c.mu.Lock()
	var listeners []listenerEntry
	for _, entries := range c.peerListeners {
		listeners = append(listeners, entries...)
	}
	c.mu.Unlock()
	dispatch(ctx, listeners, channel.Authority, args)
}

func dispatch(ctx context.Context, listeners []listenerEntry, from channel.Peer, args []any) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range listeners {
		go e.fn(ctx, from, args)
	}
}

// bind installs the request handler, waking any calls parked on the empty
// slot. Later binds replace the handler in place.
func (c *chanCore) bind(h channel.Handler) (replaced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	replaced = c.handler != nil
	c.handler = h
	if !replaced {
		close(c.handlerReady)
	}
	return replaced
}

// call blocks until a handler is bound (calls made before the authoritative
// side binds one simply wait), then runs it on the caller's goroutine. A
// panicking handler is converted into an error for the caller.
func (c *chanCore) call(ctx context.Context, from channel.Peer, args []any) (result any, err error) {
	select {
	case <-c.handlerReady:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("memnet: handler for channel '%s' panicked: %v", c.name, p)
		}
	}()
	return h(ctx, from, args)
}
