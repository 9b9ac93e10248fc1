package config

import (
	"time"

	"github.com/stellar-lua/stellar/internal/channel"
)

// Defaults applied by loaders when the configuration leaves them out.
const (
	DefaultHeartbeat = time.Second
	DefaultTimeUnit  = time.Second
)

// Model is the unified, format-agnostic representation of one host's
// configuration.
type Model struct {
	Host         *Host
	Reservations []*Reservation
	Libraries    []*LibraryPath
}

// Host describes the peer this process runs as.
type Host struct {
	Role channel.Role
	// Name is the peer id a client joins under; ignored by the server.
	Name string
	// Listen is the server's bind address; ignored by clients.
	Listen string
	// URL is the server address a client connects to; empty means an
	// in-process host.
	URL       string
	Heartbeat time.Duration
	TimeUnit  time.Duration
	// Services are the module names resolved and initialized at startup.
	Services []string
}

// Reservation is one channel the server creates ahead of client demand.
type Reservation struct {
	Name string
	Kind channel.Kind
}

// LibraryPath is one library manifest directory, in search order.
type LibraryPath struct {
	Name    string
	Dir     string
	Private bool
}
