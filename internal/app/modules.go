package app

import (
	"github.com/stellar-lua/stellar/internal/host"
	"github.com/stellar-lua/stellar/internal/modtree"
	"github.com/stellar-lua/stellar/modules/chat"
	"github.com/stellar-lua/stellar/modules/soundfx"
	"github.com/stellar-lua/stellar/modules/stats"
)

// serverRoots is the definitive discovery tree of the services compiled
// into an authoritative host.
func serverRoots(h *host.Host) *modtree.Collection {
	return modtree.NewCollection("stellar",
		modtree.NewCollection("services",
			chat.ServerUnit(h),
			soundfx.ServerUnit(h),
			stats.ServerUnit(h),
		),
	)
}

// clientRoots mirrors serverRoots for client hosts.
func clientRoots(h *host.Host) *modtree.Collection {
	return modtree.NewCollection("stellar",
		modtree.NewCollection("services",
			chat.ClientUnit(h),
			soundfx.ClientUnit(h),
			stats.ClientUnit(h),
		),
	)
}
