package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"DATABASE_URL", "REDIS_URL", "SERVER_PORT", "FETCHER_USER_AGENT", "FETCHER_TIMEOUT",
	"FETCHER_MAX_RETRIES", "FETCHER_RATE", "FETCHER_BURST", "SYNC_ALL_KINDS",
	"SYNC_LOCK_TTL", "SYNC_INTERVAL", "LOG_LEVEL", "LOG_PRETTY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, defaultDatabaseURL, c.DatabaseURL)
	assert.Equal(t, "8080", c.ServerPort)
	assert.Equal(t, defaultTimeout, c.Timeout)
	assert.Zero(t, c.MaxRetries, "probing moves to the next endpoint without retrying")
	assert.False(t, c.SyncAllKinds)
	assert.Zero(t, c.SyncInterval)
	assert.Empty(t, c.RedisURL)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/iptv")
	t.Setenv("FETCHER_TIMEOUT", "5s")
	t.Setenv("SYNC_ALL_KINDS", "true")
	t.Setenv("SYNC_INTERVAL", "6h")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/iptv", c.DatabaseURL)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.True(t, c.SyncAllKinds)
	assert.Equal(t, 6*time.Hour, c.SyncInterval)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	c := Default()
	err := c.applyEnv(mapLookup(map[string]string{
		"FETCHER_TIMEOUT":     "soon",
		"FETCHER_MAX_RETRIES": "three",
		"FETCHER_RATE":        "2.5",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "FETCHER_TIMEOUT")
	assert.Contains(t, err.Error(), "FETCHER_MAX_RETRIES")
	assert.InDelta(t, 2.5, c.Rate, 0.0001)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, ErrMissingDatabaseURL},
		{"bad port", func(c *Config) { c.ServerPort = "70000" }, ErrInvalid},
		{"non-numeric port", func(c *Config) { c.ServerPort = "http" }, ErrInvalid},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalid},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, ErrInvalid},
		{"negative interval", func(c *Config) { c.SyncInterval = -time.Second }, ErrInvalid},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: /var/lib/iptv/catalog.db
redis_url: redis://localhost:6379/0
server_port: "9090"
timeout: 45s
sync_all_kinds: true
sync_interval: 30m
`), 0o600))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/iptv/catalog.db", c.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", c.RedisURL)
	assert.Equal(t, "9090", c.ServerPort)
	assert.Equal(t, 45*time.Second, c.Timeout)
	assert.True(t, c.SyncAllKinds)
	assert.Equal(t, 30*time.Minute, c.SyncInterval)
	assert.Equal(t, defaultUserAgent, c.UserAgent)
}

func TestLoadFromFileEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "7070")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: \"9090\"\n"), 0o600))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", c.ServerPort)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
