// Package diag implements the slow-operation diagnostics used across the
// runtime: a watchdog that warns once when a wait outlives its threshold and
// logs a matching resolution line when the wait finally ends, plus an
// after-the-fact elapsed-time warning. None of these ever cancel or alter
// the operation they observe.
package diag

import (
	"log/slog"
	"sync"
	"time"
)

// Watch arms a watchdog for one blocking operation. If stop is not called
// within threshold, slowMsg is logged exactly once; when stop runs after
// that, resolvedMsg is logged with the total elapsed time. A fast operation
// (stopped before the threshold) logs nothing. Only the first stop call has
// any effect; later calls are no-ops.
func Watch(logger *slog.Logger, threshold time.Duration, slowMsg, resolvedMsg string, attrs ...any) (stop func()) {
	start := time.Now()
	stopCh := make(chan struct{})
	warnedCh := make(chan bool, 1)

	go func() {
		timer := time.NewTimer(threshold)
		defer timer.Stop()
		select {
		case <-timer.C:
			logger.Warn(slowMsg, withAttr(attrs, "waited", threshold)...)
			<-stopCh
			warnedCh <- true
		case <-stopCh:
			warnedCh <- false
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			if <-warnedCh {
				logger.Warn(resolvedMsg, withAttr(attrs, "elapsed", time.Since(start))...)
			}
		})
	}
}

// WarnIfSlow logs msg with the elapsed time when the operation that started
// at start took longer than threshold. Meant for completion-side timing
// diagnostics, so the warning carries the final measurement.
func WarnIfSlow(logger *slog.Logger, start time.Time, threshold time.Duration, msg string, attrs ...any) {
	if elapsed := time.Since(start); elapsed > threshold {
		logger.Warn(msg, withAttr(attrs, "elapsed", elapsed)...)
	}
}

// withAttr copies attrs before appending so the caller's slice is never
// shared between the warn and resolved lines.
func withAttr(attrs []any, key string, val any) []any {
	out := make([]any, 0, len(attrs)+2)
	out = append(out, attrs...)
	return append(out, key, val)
}
