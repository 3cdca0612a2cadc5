package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  api_key: secret\n"))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, time.Minute, cfg.Scheduler.WorkerExpiration())
	assert.Equal(t, time.Minute, cfg.Scheduler.ReaperInterval())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Scheduler.GenerateOnRunCreated)
}

func TestParse_KeepsExplicitValues(t *testing.T) {
	data := []byte(`
server:
  port: 9100
store:
  driver: memory
  seed_file: fixtures/seed.yaml
scheduler:
  worker_expiration_seconds: 30
  reaper_interval_seconds: 10
  generate_on_run_created: true
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "fixtures/seed.yaml", cfg.Store.SeedFile)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.WorkerExpiration())
	assert.Equal(t, 10*time.Second, cfg.Scheduler.ReaperInterval())
	assert.True(t, cfg.Scheduler.GenerateOnRunCreated)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestInit_ReadsConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8123\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	require.NoError(t, Init())
	require.NotNil(t, GlobalConfig)
	assert.Equal(t, 8123, GlobalConfig.Server.Port)
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "config/seed.yaml", cfg.Store.SeedFile)
	assert.Empty(t, cfg.Redis.Addr)
	assert.True(t, cfg.Metrics.Enabled)
}
