package endpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stellar-lua/stellar/internal/channel"
	"github.com/stellar-lua/stellar/internal/memnet"
	"github.com/stellar-lua/stellar/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastOpts() []Option {
	return []Option{WithTimeUnit(5 * time.Millisecond), WithPollInterval(time.Millisecond)}
}

func newPair(hub *memnet.Hub, peer channel.Peer) (auth, client *Registry) {
	auth = New(hub.Authoritative(), channel.RoleAuthoritative, fastOpts()...)
	client = New(hub.Join(peer), channel.RoleClient, fastOpts()...)
	return auth, client
}

func TestAuthoritativeEndpointCreatesOnDemand(t *testing.T) {
	hub := memnet.NewHub()
	auth, _ := newPair(hub, "c1")
	ctx, _ := testutil.LogContext()

	h, ok := auth.Endpoint(ctx, "chat:send", channel.KindRequest)
	require.True(t, ok)
	assert.Equal(t, "chat:send", h.ID())
	assert.Equal(t, channel.KindRequest, h.Kind())

	// Second ask is a cache hit returning the same handle.
	again, ok := auth.Endpoint(ctx, "chat:send", channel.KindRequest)
	require.True(t, ok)
	assert.Same(t, h, again)
}

func TestClientEndpointWaitsForReservation(t *testing.T) {
	hub := memnet.NewHub()
	auth, client := newPair(hub, "c1")
	ctx, buf := testutil.LogContext()

	type result struct {
		h  channel.Handle
		ok bool
	}
	got := make(chan result, 1)
	go func() {
		h, ok := client.Endpoint(ctx, "chat:message", channel.KindEvent)
		got <- result{h, ok}
	}()

	// Create well past the 10-unit threshold so the soft timeout fires.
	time.Sleep(120 * time.Millisecond)
	_, ok := auth.Endpoint(ctx, "chat:message", channel.KindEvent)
	require.True(t, ok)

	select {
	case res := <-got:
		require.True(t, res.ok)
		assert.Equal(t, channel.KindEvent, res.h.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("client endpoint never resolved")
	}

	assert.Equal(t, 1, buf.CountLine("Endpoint is not reserved; a possible infinite wait follows."))
	assert.Equal(t, 1, buf.CountLine("Endpoint appeared after a long wait."))
}

func TestClientRenamesEndpointOnce(t *testing.T) {
	hub := memnet.NewHub()
	auth, client := newPair(hub, "c1")
	ctx, _ := testutil.LogContext()

	_, ok := auth.Endpoint(ctx, "chat:send", channel.KindRequest)
	require.True(t, ok)

	h, ok := client.Endpoint(ctx, "chat:send", channel.KindRequest)
	require.True(t, ok)

	// The wire id is now an opaque uuid, not the negotiated name.
	assert.NotEqual(t, "chat:send", h.ID())
	_, err := uuid.Parse(h.ID())
	assert.NoError(t, err, "renamed id should be a uuid, got %q", h.ID())

	// Asking again hits the cache: same handle, same id, no second rename.
	again, ok := client.Endpoint(ctx, "chat:send", channel.KindRequest)
	require.True(t, ok)
	assert.Same(t, h, again)
	assert.Equal(t, h.ID(), again.ID())

	// The authoritative side is untouched by the client-local rename.
	sh, ok := auth.Endpoint(ctx, "chat:send", channel.KindRequest)
	require.True(t, ok)
	assert.Equal(t, "chat:send", sh.ID())
}

// TestConcurrentNegotiationRenamesOnce drives many goroutines through the
// first negotiation of one name and checks the rename happened exactly once:
// every caller ends up with the same handle under the same opaque id.
func TestConcurrentNegotiationRenamesOnce(t *testing.T) {
	hub := memnet.NewHub()
	auth, client := newPair(hub, "c1")
	ctx, _ := testutil.LogContext()

	_, ok := auth.Endpoint(ctx, "ev", channel.KindEvent)
	require.True(t, ok)

	const callers = 50
	handles := make([]channel.Handle, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			h, ok := client.Endpoint(ctx, "ev", channel.KindEvent)
			if ok {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	require.NotNil(t, handles[0])
	id := handles[0].ID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	for i := 1; i < callers; i++ {
		require.Same(t, handles[0], handles[i])
		require.Equal(t, id, handles[i].ID())
	}
}

func TestEndpointKindMismatchIsUnusable(t *testing.T) {
	hub := memnet.NewHub()
	auth, client := newPair(hub, "c1")
	ctx, buf := testutil.LogContext()

	_, ok := auth.Endpoint(ctx, "chat:message", channel.KindEvent)
	require.True(t, ok)

	// Authoritative side, cached entry of the other kind.
	h, ok := auth.Endpoint(ctx, "chat:message", channel.KindRequest)
	assert.False(t, ok)
	assert.Nil(t, h)

	// Client side, existing channel of the other kind.
	h, ok = client.Endpoint(ctx, "chat:message", channel.KindRequest)
	assert.False(t, ok)
	assert.Nil(t, h)

	assert.GreaterOrEqual(t, buf.CountLine("Endpoint kind mismatch."), 2)

	// The correct kind still negotiates fine afterwards.
	_, ok = client.Endpoint(ctx, "chat:message", channel.KindEvent)
	assert.True(t, ok)
}

func TestEndpointHonorsCancelledContext(t *testing.T) {
	hub := memnet.NewHub()
	_, client := newPair(hub, "c1")
	ctx, _ := testutil.LogContext()
	ctx, cancel := context.WithTimeout(ctx, 15*time.Millisecond)
	defer cancel()

	h, ok := client.Endpoint(ctx, "never-reserved", channel.KindEvent)
	assert.False(t, ok)
	assert.Nil(t, h)
}

func TestReserve(t *testing.T) {
	hub := memnet.NewHub()
	auth, client := newPair(hub, "c1")
	ctx, _ := testutil.LogContext()

	entries := []Entry{
		{Name: "chat:send", Kind: channel.KindRequest},
		{Name: "chat:message", Kind: channel.KindEvent},
		{Name: "sfx:play", Kind: channel.KindEvent},
	}
	require.NoError(t, auth.Reserve(ctx, entries))

	// Reserved channels resolve without waiting.
	for _, e := range entries {
		h, ok := client.Endpoint(ctx, e.Name, e.Kind)
		require.True(t, ok, "entry %q", e.Name)
		assert.Equal(t, e.Kind, h.Kind())
	}

	// Reserving again is idempotent; a conflicting kind is an error.
	require.NoError(t, auth.Reserve(ctx, entries))
	err := auth.Reserve(ctx, []Entry{{Name: "chat:send", Kind: channel.KindEvent}})
	require.Error(t, err)
}

func TestReserveRefusedForClients(t *testing.T) {
	hub := memnet.NewHub()
	_, client := newPair(hub, "c1")
	ctx, _ := testutil.LogContext()

	err := client.Reserve(ctx, []Entry{{Name: "x", Kind: channel.KindEvent}})
	require.ErrorIs(t, err, channel.ErrNotAuthoritative)
}
