package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Equal(t, "poekeeper", cfg.System.Appid)
	assert.Equal(t, 1829, cfg.Web.Port)
	assert.Equal(t, "sequential", cfg.Keepalive.Mode)
	assert.Equal(t, 30, cfg.Keepalive.HoldoffSeconds)
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
system:
  appid: poekeeper
  workdir: /tmp/poekeeper
web:
  host: 127.0.0.1
  port: 9090
  secret: testing-secret
database:
  type: sqlite
  name: poekeeper
keepalive:
  holdoff_seconds: 45
  mode: parallel
  simulate: true
`
	cfile := filepath.Join(t.TempDir(), "poekeeper.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0644))

	cfg := LoadConfig(cfile)
	assert.Equal(t, "127.0.0.1", cfg.Web.Host)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 45, cfg.Keepalive.HoldoffSeconds)
	assert.Equal(t, "parallel", cfg.Keepalive.Mode)
	assert.True(t, cfg.Keepalive.Simulate)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("POEKEEPER_WEB_PORT", "8181")
	t.Setenv("POEKEEPER_DB_TYPE", "sqlite")
	t.Setenv("POEKEEPER_KEEPALIVE_HOLDOFF", "120")
	t.Setenv("POEKEEPER_KEEPALIVE_SIMULATE", "on")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Equal(t, 8181, cfg.Web.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 120, cfg.Keepalive.HoldoffSeconds)
	assert.True(t, cfg.Keepalive.Simulate)
}
