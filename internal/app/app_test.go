package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stellar-lua/stellar/internal/hcl"
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

// newTestApp builds an App over body with debug logging captured into the
// returned buffer.
func newTestApp(t *testing.T, body string, cfg Config) (*App, *testutil.SafeBuffer) {
	t.Helper()
	buf := &testutil.SafeBuffer{}
	cfg.ConfigPath = writeConfig(t, body)
	cfg.LogLevel = "debug"
	return New(buf, &cfg, hcl.NewLoader()), buf
}

// runFor runs the app under a deadline and returns its error.
func runFor(t *testing.T, a *App, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return a.Run(ctx)
}

func TestNewAppliesEntrypointOverrides(t *testing.T) {
	a, _ := newTestApp(t, `host "server" {}`, Config{
		Listen: ":7070",
		URL:    "http://example.test:7070",
	})

	assert.Equal(t, ":7070", a.Model().Host.Listen)
	assert.Equal(t, "http://example.test:7070", a.Model().Host.URL)
}

func TestNewPanicsOnUnloadableConfig(t *testing.T) {
	buf := &testutil.SafeBuffer{}
	cfg := &Config{
		ConfigPath: filepath.Join(t.TempDir(), "missing.hcl"),
		LogLevel:   "debug",
	}

	assert.Panics(t, func() { New(buf, cfg, hcl.NewLoader()) })
}

func TestRunServesInProcessHost(t *testing.T) {
	a, buf := newTestApp(t, `
		host "server" {
			heartbeat = "10ms"
			services  = ["chat", "stats"]
		}

		channel "announce" {
			kind = "event"
		}
	`, Config{})

	require.NoError(t, runFor(t, a, 300*time.Millisecond))

	assert.Equal(t, 1, buf.CountLine("No listen address configured; running on the in-process hub."))
	assert.Equal(t, 1, buf.CountLine("Configured channels reserved."))
	assert.Equal(t, 1, buf.CountLine("Services ready."))
	assert.Contains(t, buf.String(), "ready=2")
	assert.Equal(t, 1, buf.CountLine("🚀 Host running."))
	assert.Equal(t, 1, buf.CountLine("Shutting down."))
}

func TestRunLoadsConfiguredLibraries(t *testing.T) {
	libDir := t.TempDir()
	manifest := `
		library {
			name    = "soundfx"
			version = "1.0.0"
			exports = {
				click = "sfx/click.ogg"
			}
		}
	`
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "soundfx.hcl"), []byte(manifest), 0o600))

	a, buf := newTestApp(t, fmt.Sprintf(`
		host "server" {
			services = ["soundfx"]
		}

		library_path "assets" {
			dir = %q
		}
	`, libDir), Config{})

	require.NoError(t, runFor(t, a, 300*time.Millisecond))

	assert.Equal(t, 1, buf.CountLine("Soundfx service ready."))
	assert.Contains(t, buf.String(), "ready=1")
}

func TestRunWarnsWhenNoServicesConfigured(t *testing.T) {
	a, buf := newTestApp(t, `host "server" {}`, Config{})

	require.NoError(t, runFor(t, a, 100*time.Millisecond))

	assert.Equal(t, 1, buf.CountLine("No services configured; the host only carries transport traffic."))
}

func TestRunRejectsUnknownServiceNames(t *testing.T) {
	a, _ := newTestApp(t, `host "server" { services = ["ghost"] }`, Config{})

	err := runFor(t, a, 100*time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown service "ghost"`)
}

func TestRunRequiresClientEssentials(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		a, _ := newTestApp(t, `host "client" { name = "c1" }`, Config{})
		err := runFor(t, a, 100*time.Millisecond)
		require.EqualError(t, err, "a client host needs a server url")
	})

	t.Run("missing name", func(t *testing.T) {
		a, _ := newTestApp(t, `host "client" { url = "http://localhost:0" }`, Config{})
		err := runFor(t, a, 100*time.Millisecond)
		require.EqualError(t, err, "a client host needs a peer name")
	})
}
