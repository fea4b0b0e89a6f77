package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Queue.Workers)
	assert.Equal(t, 5, cfg.Queue.PollIntervalSeconds)
	assert.Equal(t, 2, cfg.Queue.MaxRetries)
	assert.Equal(t, 1, cfg.Scheduler.TickerIntervalSeconds)
	assert.True(t, cfg.Engine.UseFileHistory)
	assert.False(t, cfg.Entitlement.Enabled)
	assert.Equal(t, 60, cfg.Entitlement.MaxChecksPerMinute)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "pipewheel.toml")

	content := `
[database]
path = "/tmp/custom.db"

[queue]
workers = 4

[entitlement]
enabled = true
endpoint = "http://entitlements.internal/check"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.True(t, cfg.Entitlement.Enabled)
	assert.Equal(t, "http://entitlements.internal/check", cfg.Entitlement.Endpoint)

	// Defaults still apply for unset keys
	assert.Equal(t, 5, cfg.Queue.PollIntervalSeconds)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/pipewheel.toml")
	require.Error(t, err)
}

func TestGetDatabasePath(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "pipewheel.db", cfg.GetDatabasePath())

	cfg.Database.Path = "/data/pw.db"
	assert.Equal(t, "/data/pw.db", cfg.GetDatabasePath())
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("PIPEWHEEL_DATABASE_PATH", "/env/override.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/env/override.db", cfg.Database.Path)
}
