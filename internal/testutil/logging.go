// Package testutil carries the small helpers shared by the package tests:
// log capture safe to use across goroutines, and contexts pre-wired with a
// capturing logger.
package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/stellar-lua/stellar/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// CountLine returns how many captured records carry exactly this message.
// The encoded msg token must end at the record boundary, which keeps
// prefixes like "slow" and "slow-resolved" apart.
func (b *SafeBuffer) CountLine(msg string) int {
	encoded := "msg=" + msg
	if strings.ContainsAny(msg, " =\"") {
		encoded = "msg=" + strconv.Quote(msg)
	}
	count := 0
	for _, line := range strings.Split(b.String(), "\n") {
		i := strings.Index(line, encoded)
		if i < 0 {
			continue
		}
		rest := line[i+len(encoded):]
		if rest == "" || strings.HasPrefix(rest, " ") {
			count++
		}
	}
	return count
}

// Logger builds the debug-level text logger the tests capture with.
func Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// LogContext returns a background context carrying a capturing logger, plus
// the buffer it captures into.
func LogContext() (context.Context, *SafeBuffer) {
	buf := &SafeBuffer{}
	return ctxlog.WithLogger(context.Background(), Logger(buf)), buf
}
