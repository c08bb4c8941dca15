package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmgate/middleware"
	"github.com/aschepis/backscratcher/llmgate/quota"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "ALLOW_REMOTE_LMSTUDIO", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, QuotaDriverMemory, cfg.Quota.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Generation.CacheTTL)
	assert.Equal(t, quota.DefaultLimits, cfg.QuotaLimits())
	assert.Nil(t, cfg.MiddlewarePreset())
	assert.False(t, cfg.AllowRemoteLMStudio)
}

func TestLoadMergesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server_credentials:
  gemini_api_key: AIza-from-file
middleware:
  preset: production
  cache_ttl: 10m
generation:
  cache_size: 16
quota:
  driver: sqlite
  dsn: /tmp/quota.db
  limits:
    dr: 3
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "AIza-from-file", cfg.ServerCredentials.GeminiAPIKey)
	assert.Equal(t, &middleware.Production, cfg.MiddlewarePreset())
	assert.Equal(t, 10*time.Minute, cfg.Middleware.CacheTTL)
	assert.Equal(t, 1000, cfg.Middleware.CacheSize)
	assert.Equal(t, 16, cfg.Generation.CacheSize)
	assert.Equal(t, 5*time.Minute, cfg.Generation.CacheTTL)
	assert.Equal(t, QuotaDriverSQLite, cfg.Quota.Driver)
	assert.Equal(t, "/tmp/quota.db", cfg.Quota.DSN)
	assert.Equal(t, 3, cfg.QuotaLimits()[quota.FeatureDeepResearch])
	assert.Equal(t, 50, cfg.QuotaLimits()[quota.FeatureProSearch])
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", " AIza-from-env ")
	t.Setenv("ALLOW_REMOTE_LMSTUDIO", "true")
	t.Setenv("LOG_LEVEL", "warn")

	path := writeConfig(t, "server_credentials:\n  gemini_api_key: AIza-from-file\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AIza-from-env", cfg.ServerCredentials.GeminiAPIKey)
	assert.True(t, cfg.AllowRemoteLMStudio)
	assert.Equal(t, "warn", cfg.Log.Level)

	t.Setenv("ALLOW_REMOTE_LMSTUDIO", "sometimes")
	_, err = Load(path)
	assert.ErrorContains(t, err, "ALLOW_REMOTE_LMSTUDIO")
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown preset", "middleware:\n  preset: turbo\n", "unknown middleware preset"},
		{"unknown driver", "quota:\n  driver: redis\n", "unknown quota driver"},
		{"negative limit", "quota:\n  limits:\n    PS: -1\n", "must not be negative"},
		{"bad yaml", "quota: [\n", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LLMGATE_CONFIG_PATH", "/etc/llmgate.yaml")
	assert.Equal(t, "/etc/llmgate.yaml", GetConfigPath())

	t.Setenv("LLMGATE_CONFIG_PATH", "")
	assert.Equal(t, filepath.Join(".llmgate", "config.yaml"), filepath.Join(filepath.Base(filepath.Dir(GetConfigPath())), "config.yaml"))
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Middleware.Preset = "privacy"
	require.NoError(t, Save(&cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &middleware.Privacy, loaded.MiddlewarePreset())
	assert.Equal(t, cfg.Generation, loaded.Generation)
}
