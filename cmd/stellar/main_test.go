package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stellar-lua/stellar/internal/testutil"
)

func TestMain(m *testing.M) {
	// The engine.io client library starts process-wide signal and network
	// watchers from its package init; they are owned by the library and
	// outlive any test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
		goleak.IgnoreTopFunction("github.com/zishang520/engine.io-client-go/engine.setupSignalHandling.func1"),
		goleak.IgnoreTopFunction("github.com/zishang520/engine.io/v2/utils.SetInterval.func1"),
	)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunRecoversStartupPanics(t *testing.T) {
	t.Parallel()

	// A syntax error in the configuration makes app.New panic during the
	// loading phase.
	path := writeConfig(t, `
		host "server" {
			services = [
	`)
	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{path})

	require.Error(t, err)
	require.Contains(t, err.Error(), "application startup panicked")
	require.Contains(t, err.Error(), "failed to parse")
}

func TestRunShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}

	// The "-h" flag makes cli.Parse report a clean exit.
	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err)
	require.Contains(t, out.String(), "Usage:")
}

func TestRunParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}

	err := run(context.Background(), out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRunServesUntilContextEnds(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
		host "server" {
			heartbeat = "20ms"
			services  = ["chat"]
		}
	`)
	// Module imports log from their own goroutines, so the plain buffer
	// would race here.
	out := &testutil.SafeBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := run(ctx, out, []string{"--log-format", "text", path})

	require.NoError(t, err)
	require.Contains(t, out.String(), "Host running.")
	require.Contains(t, out.String(), "Shutting down.")
}
