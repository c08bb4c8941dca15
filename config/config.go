// Package config loads llmgate settings: defaults, then the YAML file, then
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/aschepis/backscratcher/llmgate/middleware"
	"github.com/aschepis/backscratcher/llmgate/quota"
)

// Quota ledger drivers.
const (
	QuotaDriverMemory = "memory"
	QuotaDriverSQLite = "sqlite"
)

// ServerCredentials are the operator-funded vendor keys.
type ServerCredentials struct {
	GeminiAPIKey string `yaml:"gemini_api_key,omitempty"`
}

// MiddlewareConfig selects the middleware preset and sizes its cache.
type MiddlewareConfig struct {
	Preset    string        `yaml:"preset,omitempty"`     // development, production, performance, privacy
	CacheSize int           `yaml:"cache_size,omitempty"` // Response cache entries
	CacheTTL  time.Duration `yaml:"cache_ttl,omitempty"`
}

// GenerationConfig sizes the generateText result cache.
type GenerationConfig struct {
	CacheSize int           `yaml:"cache_size,omitempty"`
	CacheTTL  time.Duration `yaml:"cache_ttl,omitempty"`
}

// QuotaConfig selects the quota ledger.
type QuotaConfig struct {
	Driver string         `yaml:"driver,omitempty"` // memory or sqlite
	DSN    string         `yaml:"dsn,omitempty"`    // SQLite file, used by the sqlite driver
	Limits map[string]int `yaml:"limits,omitempty"` // Feature code to monthly limit
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"` // Empty logs to stdout
	Pretty bool   `yaml:"pretty,omitempty"`
}

// Config is the llmgate configuration.
type Config struct {
	ServerCredentials   ServerCredentials `yaml:"server_credentials,omitempty"`
	AllowRemoteLMStudio bool              `yaml:"allow_remote_lmstudio,omitempty"`
	// BaseURLs overrides vendor endpoints, keyed by provider id.
	BaseURLs   map[string]string `yaml:"base_urls,omitempty"`
	Middleware MiddlewareConfig  `yaml:"middleware,omitempty"`
	Generation GenerationConfig  `yaml:"generation,omitempty"`
	Quota      QuotaConfig       `yaml:"quota,omitempty"`
	Log        LogConfig         `yaml:"log,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	limits := make(map[string]int, len(quota.DefaultLimits))
	for f, n := range quota.DefaultLimits {
		limits[string(f)] = n
	}
	return Config{
		Middleware: MiddlewareConfig{
			CacheSize: 1000,
			CacheTTL:  time.Hour,
		},
		Generation: GenerationConfig{
			CacheSize: 256,
			CacheTTL:  5 * time.Minute,
		},
		Quota: QuotaConfig{
			Driver: QuotaDriverMemory,
			DSN:    "~/.llmgate/quota.db",
			Limits: limits,
		},
		Log: LogConfig{Level: "info"},
	}
}

// GetConfigPath returns the config file path.
// Can be overridden via LLMGATE_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("LLMGATE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.llmgate/config.yaml"
	}
	return filepath.Join(homeDir, ".llmgate", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads the configuration at path. A missing file yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Quota.DSN = expandPath(cfg.Quota.DSN)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.ServerCredentials.GeminiAPIKey = v
	}
	if v := os.Getenv("ALLOW_REMOTE_LMSTUDIO"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ALLOW_REMOTE_LMSTUDIO %q: %w", v, err)
		}
		cfg.AllowRemoteLMStudio = allow
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks values that cannot be caught while parsing.
func (c *Config) Validate() error {
	if _, err := middleware.Preset(c.Middleware.Preset); err != nil {
		return err
	}
	switch c.Quota.Driver {
	case QuotaDriverMemory:
	case QuotaDriverSQLite:
		if c.Quota.DSN == "" {
			return fmt.Errorf("quota.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown quota driver: %q", c.Quota.Driver)
	}
	for feature, limit := range c.Quota.Limits {
		if limit < 0 {
			return fmt.Errorf("quota limit for %s must not be negative", feature)
		}
	}
	return nil
}

// MiddlewarePreset returns the configured preset, or nil when none is set.
func (c *Config) MiddlewarePreset() *middleware.Config {
	cfg, _ := middleware.Preset(c.Middleware.Preset)
	return cfg
}

// QuotaLimits returns the configured limits keyed by feature.
func (c *Config) QuotaLimits() quota.Limits {
	limits := make(quota.Limits, len(c.Quota.Limits))
	for f, n := range c.Quota.Limits {
		limits[quota.Feature(strings.ToUpper(f))] = n
	}
	return limits
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
