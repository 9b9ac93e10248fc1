// Package future provides a single-assignment result cell.
//
// A Future is written exactly once by the task that owns the pending
// operation and read by any number of waiters. It is the process-local
// stand-in for the deferred results the messaging layer hands out: the
// spawned work completes the cell, everyone else blocks on Wait or selects
// on Done. Completing an already-completed future is a no-op, which keeps
// the single-writer discipline cheap to enforce at call sites.
package future

import (
	"context"
	"sync"
)

// Future holds one eventual (value, error) outcome.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// New returns an incomplete Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Go runs fn on its own goroutine and returns a Future completed by its
// outcome.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		f.Complete(fn())
	}()
	return f
}

// Resolved returns a Future already completed with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Complete(v, nil)
	return f
}

// Failed returns a Future already completed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	var zero T
	f.Complete(zero, err)
	return f
}

// Complete stores the outcome. Only the first call wins; later calls report
// false and change nothing.
func (f *Future[T]) Complete(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future has an outcome.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx ends. A ctx error is
// returned as-is; the future itself stays pending for other waiters.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet reports the outcome without blocking. ok is false while pending.
func (f *Future[T]) TryGet() (v T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
