// Package memnet is the in-process transport: a single Hub stands in for
// the shared channel namespace, the authoritative view and any number of
// client views hang off it, and delivery happens over goroutines instead of
// a network. Single-binary hosts and the messaging tests run on it; the
// socket.io transport implements the same boundary for real networks.
//
// Renames are strictly view-local. A client that re-identifies a channel
// changes only its own lookup table; the hub, the authoritative view and
// every other client keep using the canonical name.
package memnet
