package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, 30*time.Second, cfg.Engine.ScriptTimeout)
	assert.Equal(t, 100, cfg.Engine.UserCacheSize)
	assert.Len(t, cfg.Engine.TokenSecretKey, 16)

	assert.Equal(t, "template", cfg.Source.RouteStrategy)
	assert.Equal(t, "Ext_", cfg.Extension.Prefix)
	assert.Contains(t, cfg.Extension.Patterns, "**/*.zip")

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9000",
		"HOST":               "127.0.0.1",
		"SCRIPT_TIMEOUT":     "2s",
		"USER_CACHE_SIZE":    "5",
		"ROUTE_STRATEGY":     "exact",
		"EXTENSION_DIR":      "/tmp/ext",
		"EXTENSION_PATTERNS": "*.zip,*.tgz",
		"LOG_LEVEL":          "debug",
		"LOG_DEVELOPMENT":    "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_ENABLED": "false",
		"BRIDGE_RPS":         "7.5",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Engine.ScriptTimeout)
	assert.Equal(t, 5, cfg.Engine.UserCacheSize)
	assert.Equal(t, "exact", cfg.Source.RouteStrategy)
	assert.Equal(t, "/tmp/ext", cfg.Extension.Dir)
	assert.Equal(t, []string{"*.zip", "*.tgz"}, cfg.Extension.Patterns)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.InDelta(t, 7.5, cfg.Bridge.RequestsPerSecond, 0.001)

	// untouched values keep their defaults
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.Equal(t, "Ext_", cfg.Extension.Prefix)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	content := `
[server]
port = "7000"
host = "10.0.0.1"

[engine]
user_cache_size = 42

[source]
route_strategy = "exact"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("HOST", "192.168.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "192.168.0.1", cfg.Server.Host)
	assert.Equal(t, 42, cfg.Engine.UserCacheSize)
	assert.Equal(t, "exact", cfg.Source.RouteStrategy)
	assert.Equal(t, 30*time.Second, cfg.Engine.ScriptTimeout)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"SCRIPT_TIMEOUT": "soon"}},
		{name: "zero cache", env: map[string]string{"USER_CACHE_SIZE": "0"}},
		{name: "unknown strategy", env: map[string]string{"ROUTE_STRATEGY": "regex"}},
		{name: "missing file", env: map[string]string{FileEnv: "/nonexistent/engine.toml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)

			cfg := LoadOrDefault()
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestWatchdogInterval(t *testing.T) {
	e := EngineConfig{ScriptTimeout: 10 * time.Second}
	assert.Equal(t, time.Second, e.WatchdogInterval())

	e.CheckInterval = 50 * time.Millisecond
	assert.Equal(t, 50*time.Millisecond, e.WatchdogInterval())
}
