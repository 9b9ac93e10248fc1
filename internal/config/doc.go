// Package config defines the format-agnostic configuration model for a
// host, along with the Loader interface for reading it from various sources.
//
// The `config.Model` is the single source of truth for the `app` package:
// which role the host plays, where it listens or connects, the channels to
// reserve ahead of client demand, the library search paths and the service
// modules to start. Concrete implementations of Loader, such as for HCL,
// are provided in separate packages.
package config
