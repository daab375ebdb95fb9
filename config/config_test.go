package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecConstants(t *testing.T) {
	cfg := Default()
	require.Equal(t, 200*time.Millisecond, cfg.RequestRateLimit)
	require.Equal(t, 500*time.Millisecond, cfg.PoolSelectionRateLimit)
	require.Equal(t, 100, cfg.MaxSkippedFrames)
	require.Equal(t, 3, cfg.FailureThreshold)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := "NetworkID = \"testnet10\"\nFailureThreshold = 5\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "testnet10", cfg.NetworkID)
	require.Equal(t, 5, cfg.FailureThreshold)
	// untouched fields keep their defaults
	require.Equal(t, 200*time.Millisecond, cfg.RequestRateLimit)
}

func TestLoadFileRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("NotAField = 1\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissingPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
