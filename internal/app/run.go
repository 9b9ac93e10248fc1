package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/config"
	"github.com/stellar-lua/stellar/internal/ctxlog"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/host"
	"github.com/stellar-lua/stellar/internal/libload"
	"github.com/stellar-lua/stellar/internal/memnet"
	"github.com/stellar-lua/stellar/internal/messaging"
	"github.com/stellar-lua/stellar/internal/registry"
	"github.com/stellar-lua/stellar/internal/sionet"
	"github.com/stellar-lua/stellar/internal/ticker"
)

// Run wires the transport, messenger, registry, library resolver and
// heartbeat for the configured role, brings the configured services up, and
// blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hostCfg := a.model.Host

	var (
		ns       channel.Namespace
		peer     channel.Peer
		serveErr chan error
	)
	switch hostCfg.Role {
	case channel.RoleAuthoritative:
		peer = channel.Authority
		if hostCfg.Listen != "" {
			srv := sionet.NewServer(runCtx)
			ns = srv.Namespace()
			serveErr = make(chan error, 1)
			go func() { serveErr <- srv.Serve(runCtx, hostCfg.Listen) }()
		} else {
			// No listen address: the host runs on the in-process hub,
			// which is useful for smoke runs and tests but reaches no
			// remote clients.
			ns = memnet.NewHub().Authoritative()
			a.logger.Warn("No listen address configured; running on the in-process hub.")
		}
	case channel.RoleClient:
		if hostCfg.URL == "" {
			return errors.New("a client host needs a server url")
		}
		if hostCfg.Name == "" {
			return errors.New("a client host needs a peer name")
		}
		peer = channel.Peer(hostCfg.Name)
		cli, err := sionet.Dial(runCtx, hostCfg.URL, peer)
		if err != nil {
			return fmt.Errorf("failed to connect to the server: %w", err)
		}
		defer cli.Close()
		ns = cli
	}

	h := a.buildHost(ns, peer, hostCfg)

	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		h.Heartbeat.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-tickerDone
	}()

	var count int
	if h.Authoritative() {
		count = h.Modules.Discover(runCtx, serverRoots(h))
	} else {
		count = h.Modules.Discover(runCtx, clientRoots(h))
	}
	a.logger.Debug("Service modules discovered.", "count", count)

	if h.Authoritative() && len(a.model.Reservations) > 0 {
		entries := make([]endpoint.Entry, 0, len(a.model.Reservations))
		for _, res := range a.model.Reservations {
			entries = append(entries, endpoint.Entry{Name: res.Name, Kind: res.Kind})
		}
		if err := h.Auth.Reserve(runCtx, entries); err != nil {
			return fmt.Errorf("failed to reserve configured channels: %w", err)
		}
		a.logger.Info("Configured channels reserved.", "count", len(entries))
	}

	if err := a.startServices(runCtx, h, hostCfg.Services); err != nil {
		return err
	}

	a.logger.Info("🚀 Host running.", "role", hostCfg.Role.String(), "peer", string(peer))
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down.")
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("transport failed: %w", err)
		}
		return nil
	}
}

// buildHost assembles the capability bundle handed to every service module.
func (a *App) buildHost(ns channel.Namespace, peer channel.Peer, hostCfg *config.Host) *host.Host {
	eps := endpoint.New(ns, hostCfg.Role, endpoint.WithTimeUnit(hostCfg.TimeUnit))

	h := &host.Host{
		Role:      hostCfg.Role,
		Peer:      peer,
		Modules:   registry.New(registry.WithTimeUnit(hostCfg.TimeUnit)),
		Libraries: libload.New(hostCfg.Role, searchPaths(a.model.Libraries)),
		Heartbeat: ticker.New(hostCfg.Heartbeat),
	}
	if hostCfg.Role == channel.RoleAuthoritative {
		h.Auth = messaging.NewAuthoritative(eps, messaging.WithTimeUnit(hostCfg.TimeUnit))
	} else {
		h.Client = messaging.NewClient(eps, messaging.WithTimeUnit(hostCfg.TimeUnit))
	}
	return h
}

func searchPaths(libs []*config.LibraryPath) []libload.SearchPath {
	paths := make([]libload.SearchPath, 0, len(libs))
	for _, lib := range libs {
		paths = append(paths, libload.SearchPath{Name: lib.Name, Dir: lib.Dir, Private: lib.Private})
	}
	return paths
}

// startServices resolves the configured service list and runs each one's
// initialization. Individual failures are soft: the registry logs them and
// the host keeps running with whatever came up.
func (a *App) startServices(ctx context.Context, h *host.Host, names []string) error {
	if len(names) == 0 {
		a.logger.Warn("No services configured; the host only carries transport traffic.")
		return nil
	}
	for _, name := range names {
		if !h.Modules.Registered(name) {
			return fmt.Errorf("unknown service %q in configuration", name)
		}
	}

	h.Modules.ResolveMany(ctx, names...)

	ready := 0
	for _, name := range names {
		if h.Modules.Get(ctx, name) != nil {
			ready++
		}
	}
	a.logger.Info("Services ready.", "ready", ready, "configured", len(names))
	return nil
}
