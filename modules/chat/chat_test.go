package chat

import (
	"context"
	"strings"
	"sync"
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
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestPair wires a server host and one client host over an in-process
// hub, with thresholds shrunk to test scale.
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

// services loads and initializes the chat units on both sides, returning
// the live service values.
func services(t *testing.T, ctx context.Context, server, client *host.Host) (*Server, *Client) {
	t.Helper()
	server.Modules.Discover(ctx, modtree.NewCollection("services", ServerUnit(server)))
	client.Modules.Discover(ctx, modtree.NewCollection("services", ClientUnit(client)))

	srv, ok := server.Modules.Get(ctx, "chat").(*Server)
	require.True(t, ok, "server chat service failed to initialize")
	cli, ok := client.Modules.Get(ctx, "chat").(*Client)
	require.True(t, ok, "client chat service failed to load")
	t.Cleanup(cli.Close)
	return srv, cli
}

// TestSendRecordsAndBroadcasts is the full round trip: a client line is
// acknowledged, lands in the server history, and comes back on the
// broadcast channel tagged with its sender.
func TestSendRecordsAndBroadcasts(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()
	srv, cli := services(t, ctx, server, client)

	var mu sync.Mutex
	var seen [][]any
	sub, err := cli.Observe(ctx, func(_ context.Context, from channel.Peer, args []any) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, append([]any{string(from)}, args...))
	}).Wait(ctx)
	require.NoError(t, err)
	defer sub.Cancel()

	ack, err := cli.Send(ctx, "hello there")
	require.NoError(t, err)
	assert.Equal(t, 1, ack)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond, "broadcast never arrived")

	mu.Lock()
	assert.Equal(t, []any{string(channel.Authority), "c1", "hello there"}, seen[0])
	mu.Unlock()

	history := srv.History()
	require.Len(t, history, 1)
	assert.Equal(t, Message{From: "c1", Text: "hello there"}, history[0])

	// The client's own feed, attached at Init, saw the same line.
	require.Eventually(t, func() bool {
		return len(cli.Feed()) == 1
	}, time.Second, 5*time.Millisecond, "feed never filled")
	assert.Equal(t, Message{From: "c1", Text: "hello there"}, cli.Feed()[0])
}

// TestSendRejectsBadInput verifies validation errors surface through the
// invocation and leave no trace in the history.
func TestSendRejectsBadInput(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()
	srv, cli := services(t, ctx, server, client)

	_, err := cli.Send(ctx, "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blank")

	_, err = cli.host.Client.Invoke(ctx, "chat:send", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")

	_, err = cli.host.Client.Invoke(ctx, "chat:send", "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one argument")

	assert.Empty(t, srv.History())
}

// TestHistoryIsBounded fills the backlog past its limit and checks the
// oldest lines fall off.
func TestHistoryIsBounded(t *testing.T) {
	server, client := newTestPair(t)
	ctx, _ := testutil.LogContext()
	srv, cli := services(t, ctx, server, client)

	for i := 0; i < historyLimit+10; i++ {
		_, err := cli.Send(ctx, strings.Repeat("x", 1+i%3))
		require.NoError(t, err)
	}

	history := srv.History()
	assert.Len(t, history, historyLimit)
}

// TestServerInitIsIdempotent gets the service twice and checks the second
// call reuses the initialized value instead of re-reserving.
func TestServerInitIsIdempotent(t *testing.T) {
	server, _ := newTestPair(t)
	ctx, _ := testutil.LogContext()
	server.Modules.Discover(ctx, modtree.NewCollection("services", ServerUnit(server)))

	first := server.Modules.Get(ctx, "chat")
	second := server.Modules.Get(ctx, "chat")
	assert.Same(t, first, second)
}
