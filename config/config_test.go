package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULTS
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	// GIVEN no config file and no environment overrides
	// WHEN loading from an empty directory
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	// THEN every documented default applies
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Server.CorsEnabled)
	assert.Equal(t, []string{"*"}, cfg.Server.CorsOrigins)
	assert.Equal(t, "./data/parts.db", cfg.Database.Path)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Audit.Interval)
	assert.Equal(t, 128, cfg.Sync.QueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestLoad_EnvOverrides(t *testing.T) {
	// GIVEN PARTS_* environment variables
	t.Setenv("PARTS_SERVER_ADDRESS", "127.0.0.1:3000")
	t.Setenv("PARTS_DATABASE_PATH", ":memory:")
	t.Setenv("PARTS_AUDIT_ENABLED", "false")
	t.Setenv("PARTS_AUDIT_INTERVAL", "90s")
	t.Setenv("PARTS_SYNC_QUEUE_SIZE", "16")
	t.Setenv("PARTS_LOGGING_LEVEL", "debug")

	// WHEN loading with no config file
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	// THEN each override wins over its default
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Address)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.False(t, cfg.Audit.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Audit.Interval)
	assert.Equal(t, 16, cfg.Sync.QueueSize)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// AND untouched keys keep their defaults
	assert.True(t, cfg.Server.CorsEnabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// =============================================================================
// CONFIG FILE
// =============================================================================

func TestLoad_ConfigFile(t *testing.T) {
	// GIVEN a config.yaml in the config directory
	dir := t.TempDir()
	yaml := []byte(`
server:
  address: "127.0.0.1:9999"
  cors_enabled: false
audit:
  interval: 1m
logging:
  format: console
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	// WHEN loading from that directory
	cfg, err := Load(dir)
	require.NoError(t, err)

	// THEN file values override defaults, the rest stay at defaults
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Address)
	assert.False(t, cfg.Server.CorsEnabled)
	assert.Equal(t, time.Minute, cfg.Audit.Interval)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "./data/parts.db", cfg.Database.Path)
	assert.Equal(t, 128, cfg.Sync.QueueSize)
}

func TestLoad_EnvBeatsConfigFile(t *testing.T) {
	// GIVEN a config.yaml and an environment variable for the same key
	dir := t.TempDir()
	yaml := []byte("database:\n  path: ./file.db\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))
	t.Setenv("PARTS_DATABASE_PATH", "./env.db")

	// WHEN loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// THEN the environment variable wins
	assert.Equal(t, "./env.db", cfg.Database.Path)
}
