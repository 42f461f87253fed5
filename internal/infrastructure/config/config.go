package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable pointing at an optional TOML file.
const FileEnv = "ENGINE_CONFIG_FILE"

// Config holds all engine configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Engine    EngineConfig    `toml:"engine"`
	Source    SourceConfig    `toml:"source"`
	Extension ExtensionConfig `toml:"extension"`
	Bridge    BridgeConfig    `toml:"bridge"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	CORS      CORSConfig      `toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" toml:"port"`
	Host            string        `envconfig:"HOST" toml:"host"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" toml:"shutdown_timeout"`
}

// EngineConfig holds script execution limits.
type EngineConfig struct {
	ScriptTimeout  time.Duration `envconfig:"SCRIPT_TIMEOUT" toml:"script_timeout"`
	CheckInterval  time.Duration `envconfig:"SCRIPT_CHECK_INTERVAL" toml:"check_interval"`
	UserCacheSize  int           `envconfig:"USER_CACHE_SIZE" toml:"user_cache_size"`
	MaxCallStack   int           `envconfig:"MAX_CALL_STACK" toml:"max_call_stack"`
	TokenSecretKey string        `envconfig:"TOKEN_SECRET_KEY" toml:"token_secret_key"`
	TokenTTL       time.Duration `envconfig:"TOKEN_TTL" toml:"token_ttl"`
}

// SourceConfig holds script source backend settings.
type SourceConfig struct {
	RouteStrategy string `envconfig:"ROUTE_STRATEGY" toml:"route_strategy"`
	FsRoot        string `envconfig:"FS_ROOT" toml:"fs_root"`
	TestDir       string `envconfig:"TEST_SOURCE_DIR" toml:"test_dir"`
	MaxBytes      int64  `envconfig:"SOURCE_MAX_BYTES" toml:"max_bytes"`
}

// ExtensionConfig holds extension loader settings.
type ExtensionConfig struct {
	Dir      string   `envconfig:"EXTENSION_DIR" toml:"dir"`
	Patterns []string `envconfig:"EXTENSION_PATTERNS" toml:"patterns"`
	Prefix   string   `envconfig:"EXTENSION_PREFIX" toml:"prefix"`
}

// BridgeConfig holds outbound HTTP settings for calls back into the unit.
type BridgeConfig struct {
	Timeout           time.Duration `envconfig:"BRIDGE_TIMEOUT" toml:"timeout"`
	Retries           int           `envconfig:"BRIDGE_RETRIES" toml:"retries"`
	RequestsPerSecond float64       `envconfig:"BRIDGE_RPS" toml:"requests_per_second"`
	UserAgent         string        `envconfig:"BRIDGE_USER_AGENT" toml:"user_agent"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level"`
	Development bool   `envconfig:"LOG_DEVELOPMENT" toml:"development"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string `envconfig:"CORS_ORIGINS" toml:"origins"`
}

// Load reads the optional TOML file named by ENGINE_CONFIG_FILE and then
// applies environment variables on top of it. Defaults live in Default, not
// in struct tags, so that envconfig leaves file values alone when a variable
// is unset.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or falls back to defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that envconfig cannot.
func (c *Config) Validate() error {
	if c.Engine.ScriptTimeout <= 0 {
		return fmt.Errorf("script timeout must be positive, got %s", c.Engine.ScriptTimeout)
	}
	if c.Engine.UserCacheSize <= 0 {
		return fmt.Errorf("user cache size must be positive, got %d", c.Engine.UserCacheSize)
	}
	switch c.Source.RouteStrategy {
	case "template", "exact":
	default:
		return fmt.Errorf("unknown route strategy %q", c.Source.RouteStrategy)
	}
	return nil
}

// WatchdogInterval returns the checkpoint interval for the script watchdog.
func (e EngineConfig) WatchdogInterval() time.Duration {
	if e.CheckInterval > 0 {
		return e.CheckInterval
	}
	return e.ScriptTimeout / 10
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			ScriptTimeout:  30 * time.Second,
			UserCacheSize:  100,
			MaxCallStack:   1024,
			TokenSecretKey: "0123456789abcdef",
			TokenTTL:       time.Hour,
		},
		Source: SourceConfig{
			RouteStrategy: "template",
			MaxBytes:      1 << 20,
		},
		Extension: ExtensionConfig{
			Dir:      "/personium/personium-engine/extensions",
			Patterns: []string{"**/*.zip", "**/*.tar.gz", "**/*.tgz", "**/*.tar.zst"},
			Prefix:   "Ext_",
		},
		Bridge: BridgeConfig{
			Timeout:           30 * time.Second,
			Retries:           2,
			RequestsPerSecond: 50,
			UserAgent:         "personium-engine",
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
	}
}
