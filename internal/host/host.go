// Package host bundles the capabilities handed to service modules: the
// messenger for this process's role, the module registry, the external
// library resolver, and the heartbeat. Modules receive a *Host instead of
// importing the application wiring, which keeps the dependency direction
// one-way.
package host

import (
	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/libload"
	"github.com/stellar-lua/stellar/internal/messaging"
	"github.com/stellar-lua/stellar/internal/registry"
	"github.com/stellar-lua/stellar/internal/ticker"
)

// Host is the capability bundle for one process. Exactly one of Auth or
// Client is set, matching Role.
type Host struct {
	Role channel.Role
	// Peer is this process's identity on the transport. Servers run as
	// channel.Authority.
	Peer channel.Peer

	Auth   *messaging.Authoritative
	Client *messaging.Client

	Modules   *registry.Registry
	Libraries *libload.Resolver
	Heartbeat *ticker.Ticker
}

// Authoritative reports whether this process owns channel creation.
func (h *Host) Authoritative() bool {
	return h.Role == channel.RoleAuthoritative
}
