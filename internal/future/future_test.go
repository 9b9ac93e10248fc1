package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCompleteFirstWriteWins(t *testing.T) {
	f := New[int]()

	assert.True(t, f.Complete(7, nil))
	assert.False(t, f.Complete(9, errors.New("late")))

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestWaitBlocksUntilComplete(t *testing.T) {
	f := New[string]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.Complete("done", nil)
	}()

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestWaitHonorsContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The future is still usable by other waiters afterwards.
	f.Complete(3, nil)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestTryGet(t *testing.T) {
	f := New[int]()

	_, _, ok := f.TryGet()
	assert.False(t, ok)

	f.Complete(0, errors.New("boom"))
	_, err, ok := f.TryGet()
	assert.True(t, ok)
	assert.EqualError(t, err, "boom")
}

func TestGoCompletesFromFunc(t *testing.T) {
	f := Go(func() (int, error) { return 42, nil })
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestConcurrentWaiters(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup

	results := make([]int, 16)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			v, err := f.Wait(context.Background())
			require.NoError(t, err)
			results[slot] = v
		}(i)
	}

	f.Complete(11, nil)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 11, v)
	}
}

func TestResolvedAndFailed(t *testing.T) {
	v, err := Resolved("x").Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = Failed[string](errors.New("nope")).Wait(context.Background())
	assert.EqualError(t, err, "nope")
}
