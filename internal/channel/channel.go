// Package channel defines the transport boundary between the messaging
// layer and whatever carries the traffic (the in-process hub or the
// socket.io hosts). Implementations provide a Namespace per peer plus
// capability interfaces on the handles it returns; everything above this
// package is transport-agnostic.
package channel

import (
	"context"
	"errors"
	"fmt"
)

// Kind distinguishes the two channel shapes: fire-and-forget events and
// request/response pairs.
type Kind int

const (
	// KindEvent is one-way, fire-and-forget delivery.
	KindEvent Kind = iota
	// KindRequest is request/response with exactly one reply per call.
	KindRequest
)

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k == KindEvent || k == KindRequest
}

// String panics on values outside the declared kinds; constructing a channel
// with an invalid kind is a programming error, not a runtime condition.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindRequest:
		return "request"
	default:
		panic(fmt.Sprintf("channel: invalid kind value %d", int(k)))
	}
}

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "event":
		return KindEvent, nil
	case "request":
		return KindRequest, nil
	default:
		return 0, fmt.Errorf("unknown channel kind %q (want \"event\" or \"request\")", s)
	}
}

// Role says which side of the namespace a host plays. Exactly one peer is
// authoritative; it owns channel creation and the peer roster.
type Role int

const (
	RoleAuthoritative Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleAuthoritative:
		return "server"
	case RoleClient:
		return "client"
	default:
		panic(fmt.Sprintf("channel: invalid role value %d", int(r)))
	}
}

// ParseRole converts a configuration string into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "server":
		return RoleAuthoritative, nil
	case "client":
		return RoleClient, nil
	default:
		return 0, fmt.Errorf("unknown role %q (want \"server\" or \"client\")", s)
	}
}

// Peer identifies one connected participant of the shared namespace. The
// authoritative side addresses clients by Peer; traffic arriving at a client
// always comes from Authority.
type Peer string

// Authority is the peer id every client observes as the sender of
// authoritative traffic.
const Authority Peer = "authority"

// Handle is one physical channel as seen by one peer. Delivery abilities
// are optional interfaces on the concrete handle (EventSender,
// EventAddresser, EventSource, RequestCaller, RequestBinder); the messaging
// layer asserts for the ones its role needs.
type Handle interface {
	// ID returns the name this peer currently knows the channel by. A
	// client-local rename changes it; other peers are unaffected.
	ID() string
	Kind() Kind
}

// Namespace is one peer's view of the shared channel table.
type Namespace interface {
	// Lookup finds a channel by the name this peer knows it by.
	Lookup(name string) (Handle, bool)

	// Create makes (or idempotently finds) a channel. Only the
	// authoritative peer may create; everyone else gets
	// ErrNotAuthoritative. An existing channel of a different kind is
	// ErrKindMismatch. An invalid kind panics.
	Create(name string, kind Kind) (Handle, error)

	// Rename re-identifies a channel in this peer's local view only: the
	// channel this peer knows as name becomes known as id, and Lookup(name)
	// stops finding it here. Implementations without a local view (the
	// authoritative side) report false.
	Rename(name, id string) bool

	// Peers enumerates the currently connected peers. Only the
	// authoritative view has one; clients return nil.
	Peers() []Peer
}

var (
	// ErrNotAuthoritative rejects channel creation from a non-authoritative
	// peer.
	ErrNotAuthoritative = errors.New("channel: only the authoritative peer can create channels")

	// ErrKindMismatch marks an existing channel found under the requested
	// name but with the other kind.
	ErrKindMismatch = errors.New("channel: kind mismatch")
)

// EventFunc consumes one delivered event occurrence.
type EventFunc func(ctx context.Context, from Peer, args []any)

// Handler computes the single response for one request.
type Handler func(ctx context.Context, from Peer, args []any) (any, error)

// Unsubscribe detaches the listener it was returned for. Safe to call more
// than once.
type Unsubscribe func()

// EventSender fires an event from a client toward the authoritative side.
type EventSender interface {
	FireAuthority(ctx context.Context, args []any) error
}

// EventAddresser fires an event from the authoritative side to one peer or
// to all of them.
type EventAddresser interface {
	FireTo(ctx context.Context, to Peer, args []any) error
	FireAll(ctx context.Context, args []any) error
}

// EventSource attaches listeners for events arriving at this peer.
type EventSource interface {
	Observe(fn EventFunc) (Unsubscribe, error)
}

// RequestCaller issues a request and blocks for its response.
type RequestCaller interface {
	Call(ctx context.Context, args []any) (any, error)
}

// RequestBinder installs the authoritative handler for a request channel.
// Binding replaces any previous handler; replaced lets the caller log that.
type RequestBinder interface {
	Bind(h Handler) (replaced bool)
}
