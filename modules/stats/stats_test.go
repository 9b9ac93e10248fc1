package stats

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/endpoint"
	"github.com/stellar-lua/stellar/internal/host"
	"github.com/stellar-lua/stellar/internal/memnet"
	"github.com/stellar-lua/stellar/internal/messaging"
	"github.com/stellar-lua/stellar/internal/modtree"
	"github.com/stellar-lua/stellar/internal/registry"
	"github.com/stellar-lua/stellar/internal/testutil"
	"github.com/stellar-lua/stellar/internal/ticker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestPair wires a server host and one client host over an in-process
// hub, with thresholds shrunk to test scale. Heartbeats are left nil; tests
// that need one attach it before loading the service.
func newTestPair(t *testing.T) (*host.Host, *host.Host) {
	t.Helper()
	hub := memnet.NewHub()
	epOpts := []endpoint.Option{
		endpoint.WithTimeUnit(20 * time.Millisecond),
		endpoint.WithPollInterval(time.Millisecond),
	}
	regOpts := []registry.Option{
		registry.WithTimeUnit(20 * time.Millisecond),
		registry.WithPollInterval(time.Millisecond),
	}

	server := &host.Host{
		Role:    channel.RoleAuthoritative,
		Peer:    channel.Authority,
		Auth:    messaging.NewAuthoritative(endpoint.New(hub.Authoritative(), channel.RoleAuthoritative, epOpts...)),
		Modules: registry.New(regOpts...),
	}
	peer := channel.Peer("c1")
	client := &host.Host{
		Role:    channel.RoleClient,
		Peer:    peer,
		Client:  messaging.NewClient(endpoint.New(hub.Join(peer), channel.RoleClient, epOpts...)),
		Modules: registry.New(regOpts...),
	}
	return server, client
}

// runTicker starts tk and returns a stop function that blocks until the
// loop has exited.
func runTicker(ctx context.Context, tk *ticker.Ticker) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

// TestPingAnswersWithServerState covers the manual path: one ping, one
// snapshot carrying uptime, beat count, and the roster size.
func TestPingAnswersWithServerState(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()

	server.Modules.Discover(ctx, modtree.NewCollection("services", ServerUnit(server)))
	client.Modules.Discover(ctx, modtree.NewCollection("services", ClientUnit(client)))

	_, ok := server.Modules.Get(ctx, "stats").(*Server)
	require.True(t, ok)
	cli, ok := client.Modules.Get(ctx, "stats").(*Client)
	require.True(t, ok)
	defer cli.Close()

	snap, err := cli.Ping(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.UptimeMS, int64(0))
	assert.Equal(t, 1, snap.Peers, "exactly one client is joined")
	assert.Zero(t, snap.Beats, "no heartbeat is attached to the server")
	assert.Greater(t, snap.RTT, time.Duration(0))
	assert.Same(t, snap, cli.Latest())
}

// TestHeartbeatDrivesPings attaches a heartbeat to the client and checks
// snapshots keep arriving without manual pings.
func TestHeartbeatDrivesPings(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()
	client.Heartbeat = ticker.New(5 * time.Millisecond)

	server.Modules.Discover(ctx, modtree.NewCollection("services", ServerUnit(server)))
	client.Modules.Discover(ctx, modtree.NewCollection("services", ClientUnit(client)))

	_, ok := server.Modules.Get(ctx, "stats").(*Server)
	require.True(t, ok)

	stop := runTicker(ctx, client.Heartbeat)
	defer stop()

	cli, ok := client.Modules.Get(ctx, "stats").(*Client)
	require.True(t, ok)
	defer cli.Close()

	primed := cli.Latest()
	require.NotNil(t, primed, "Init pings once before subscribing")

	require.Eventually(t, func() bool {
		return cli.Latest() != primed
	}, time.Second, time.Millisecond, "no heartbeat-driven snapshot arrived")
}

// TestServerCountsBeats attaches a heartbeat to the server and checks the
// count flows back through the ping response.
func TestServerCountsBeats(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()
	server.Heartbeat = ticker.New(5 * time.Millisecond)

	server.Modules.Discover(ctx, modtree.NewCollection("services", ServerUnit(server)))
	client.Modules.Discover(ctx, modtree.NewCollection("services", ClientUnit(client)))

	srv, ok := server.Modules.Get(ctx, "stats").(*Server)
	require.True(t, ok)

	stop := runTicker(ctx, server.Heartbeat)
	defer stop()

	require.Eventually(t, func() bool {
		return srv.Beats() >= 3
	}, time.Second, time.Millisecond, "server heartbeat never counted")

	cli, ok := client.Modules.Get(ctx, "stats").(*Client)
	require.True(t, ok)
	defer cli.Close()

	snap, err := cli.Ping(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.Beats, int64(3))
}

// TestBeatsSkipWhileAnswerOutstanding rebinds the ping handler to a slow
// one and checks the client never has two pings in flight.
func TestBeatsSkipWhileAnswerOutstanding(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()
	client.Heartbeat = ticker.New(5 * time.Millisecond)

	server.Modules.Discover(ctx, modtree.NewCollection("services", ServerUnit(server)))
	client.Modules.Discover(ctx, modtree.NewCollection("services", ClientUnit(client)))

	_, ok := server.Modules.Get(ctx, "stats").(*Server)
	require.True(t, ok)

	var active, maxActive, calls atomic.Int32
	server.Auth.OnInvoke(ctx, pingChannel, func(context.Context, channel.Peer, []any) (any, error) {
		cur := active.Add(1)
		for {
			seen := maxActive.Load()
			if cur <= seen || maxActive.CompareAndSwap(seen, cur) {
				break
			}
		}
		defer active.Add(-1)
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		return map[string]any{"uptime_ms": int64(1), "beats": int64(0), "peers": 1}, nil
	})

	stop := runTicker(ctx, client.Heartbeat)

	cli, ok := client.Modules.Get(ctx, "stats").(*Client)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, time.Millisecond, "slow pings never accumulated")

	stop()
	cli.Close()

	assert.Equal(t, int32(1), maxActive.Load(), "pings overlapped despite the outstanding guard")
}
