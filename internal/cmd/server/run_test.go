package serverrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/BMDan/RocketSpeed/internal/config"
	pebblestore "github.com/BMDan/RocketSpeed/internal/storage/pebble"
)

func TestGetenvDefaultFallsBackWhenUnset(t *testing.T) {
	require.NoError(t, os.Unsetenv("ROCKETSPEED_TEST_VAR"))
	require.Equal(t, "fallback", getenvDefault("ROCKETSPEED_TEST_VAR", "fallback"))

	require.NoError(t, os.Setenv("ROCKETSPEED_TEST_VAR", "set"))
	t.Cleanup(func() { _ = os.Unsetenv("ROCKETSPEED_TEST_VAR") })
	require.Equal(t, "set", getenvDefault("ROCKETSPEED_TEST_VAR", "fallback"))
}

func TestFirstNonEmptyPrefersEarliestSetValue(t *testing.T) {
	require.Equal(t, "a", firstNonEmpty("a", "b"))
	require.Equal(t, "b", firstNonEmpty("", "b"))
	require.Equal(t, "", firstNonEmpty("", ""))
}

func TestBuildRouterRespectsShardingStrategy(t *testing.T) {
	consistent := buildRouter(cfgpkg.Config{Sharding: "consistent"}, 4)
	consistent.AddHost("host-a")
	_, err := consistent.GetHost(0)
	require.NoError(t, err)

	rendezvous := buildRouter(cfgpkg.Config{Sharding: "rendezvous"}, 4)
	rendezvous.AddHost("host-a")
	_, err = rendezvous.GetHost(0)
	require.NoError(t, err)
}

// TestRunIntegration is a minimal smoke test: Run should start every
// listener and shut down cleanly when its context is cancelled.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tempDir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.NumShards = 1
	opts := Options{
		DataDir:      filepath.Join(tempDir, "data"),
		ListenAddr:   "127.0.0.1:0",
		InternalAddr: "127.0.0.1:0",
		AdminAddr:    "127.0.0.1:0",
		Fsync:        pebblestore.FsyncModeNever,
		Config:       cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := Run(ctx, opts)
	if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		t.Errorf("expected a clean shutdown, got %v", err)
	}
}
