package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 72*time.Hour, cfg.Membership.DelayedThreshold)
	assert.Equal(t, "file", cfg.Credentials.Backend)
	assert.False(t, cfg.OpenFGA.Enabled)
	assert.False(t, cfg.IsProduction())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://admin.example.org/api")
	t.Setenv("MEMBERSHIP_DELAYED_THRESHOLD", "48h")
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DEVSERVER_LOGIN_RATE_LIMIT", "not-a-number")

	cfg := NewConfig()

	assert.Equal(t, "https://admin.example.org/api", cfg.API.BaseURL)
	assert.Equal(t, 48*time.Hour, cfg.Membership.DelayedThreshold)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 3, cfg.Credentials.RedisDB)
	assert.Equal(t, 10, cfg.DevServer.LoginRateLimit)
	assert.Equal(t, time.Minute, cfg.DevServer.PurgeInterval)
}

func TestLoadOverlay(t *testing.T) {
	t.Setenv("API_TIMEOUT", "3s")
	path := filepath.Join(t.TempDir(), "console.yaml")
	err := os.WriteFile(path, []byte(`
server:
  environment: production
credentials:
  backend: redis
  redisAddr: cache:6379
membership:
  delayedThreshold: 24h
`), 0o600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "redis", cfg.Credentials.Backend)
	assert.Equal(t, "cache:6379", cfg.Credentials.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.Membership.DelayedThreshold)
	// untouched by the file
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
