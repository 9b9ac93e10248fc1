// Package app contains the core host logic. It defines the App struct, its
// configuration, and the run lifecycle that wires the transport, messenger,
// module registry, library resolver and heartbeat for one configured role,
// decoupled from any specific entrypoint like a CLI.
package app
