package memnet

import (
	"fmt"
	"sync"

	"github.com/stellar-lua/stellar/internal/channel"
)

// Hub owns the canonical channel table and the peer roster. Views created
// from it share the cores; the Hub itself is never handed to callers of the
// channel boundary.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*chanCore
	peers    map[channel.Peer]*ClientView
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]*chanCore),
		peers:    make(map[channel.Peer]*ClientView),
	}
}

// Authoritative returns the server-side view of the namespace.
func (h *Hub) Authoritative() channel.Namespace {
	return &serverView{hub: h}
}

// Join connects a new client peer and returns its view. Peer ids must be
// unique for the life of the hub; reusing one is a programming error.
func (h *Hub) Join(peer channel.Peer) *ClientView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.peers[peer]; exists {
		panic(fmt.Sprintf("memnet: peer with id '%s' already joined", peer))
	}
	v := &ClientView{
		hub:     h,
		peer:    peer,
		byLocal: make(map[string]renameable),
		hidden:  make(map[string]bool),
	}
	h.peers[peer] = v
	return v
}

// leave removes the peer and all of its listeners.
func (h *Hub) leave(peer channel.Peer) {
	h.mu.Lock()
	delete(h.peers, peer)
	cores := make([]*chanCore, 0, len(h.channels))
	for _, c := range h.channels {
		cores = append(cores, c)
	}
	h.mu.Unlock()

	for _, c := range cores {
		c.dropPeer(peer)
	}
}

func (h *Hub) lookupCore(name string) (*chanCore, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.channels[name]
	return c, ok
}

// createCore makes the channel if it does not exist. Asking again with the
// same kind returns the existing core; the other kind is a mismatch.
func (h *Hub) createCore(name string, kind channel.Kind) (*chanCore, error) {
	if !kind.Valid() {
		panic(fmt.Sprintf("memnet: invalid kind value %d for channel '%s'", int(kind), name))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.channels[name]; ok {
		if c.kind != kind {
			return nil, fmt.Errorf("%w: channel '%s' is %s, requested %s",
				channel.ErrKindMismatch, name, c.kind, kind)
		}
		return c, nil
	}
	c := newChanCore(name, kind)
	h.channels[name] = c
	return c, nil
}

func (h *Hub) peerList() []channel.Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]channel.Peer, 0, len(h.peers))
	for p := range h.peers {
		out = append(out, p)
	}
	return out
}
