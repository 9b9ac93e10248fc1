package ticker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stellar-lua/stellar/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribersReceiveBeats(t *testing.T) {
	tk := New(5 * time.Millisecond)
	ctx, _ := testutil.LogContext()
	ctx, cancel := context.WithCancel(ctx)

	beats := make(chan time.Duration, 16)
	tk.Subscribe("probe", func(_ context.Context, dt time.Duration) {
		select {
		case beats <- dt:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	select {
	case dt := <-beats:
		assert.Greater(t, dt, time.Duration(0), "dt carries the gap since the previous beat")
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received a beat")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop with its context")
	}
}

func TestCancelDetachesSubscriber(t *testing.T) {
	tk := New(5 * time.Millisecond)
	ctx, _ := testutil.LogContext()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var beats atomic.Int32
	cancel := tk.Subscribe("probe", func(context.Context, time.Duration) {
		beats.Add(1)
	})

	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return beats.Load() > 0 }, 2*time.Second, time.Millisecond)

	cancel()
	cancel() // twice is fine
	settled := beats.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, beats.Load(), settled+1, "subscriber kept receiving after cancel")

	stop()
	<-done
}

// TestPanickingSubscriberDoesNotKillTheLoop subscribes a broken callback
// ahead of a healthy one and checks both the loop and the healthy subscriber
// survive every beat.
func TestPanickingSubscriberDoesNotKillTheLoop(t *testing.T) {
	tk := New(5 * time.Millisecond)
	ctx, buf := testutil.LogContext()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	tk.Subscribe("broken", func(context.Context, time.Duration) {
		panic("subscriber bug")
	})
	var healthy atomic.Int32
	tk.Subscribe("healthy", func(context.Context, time.Duration) {
		healthy.Add(1)
	})

	done := make(chan struct{})
	go func() {
		tk.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return healthy.Load() >= 3 }, 2*time.Second, time.Millisecond,
		"the healthy subscriber should keep receiving beats")
	assert.GreaterOrEqual(t, buf.CountLine("Heartbeat subscriber panicked."), 1)
	assert.Contains(t, buf.String(), "subscriber=broken")

	stop()
	<-done
}

func TestNewPanicsOnNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-time.Second) })
}
