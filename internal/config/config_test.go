package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(LoadOptions{Getenv: envMap(nil)})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "shelfwise.yaml", `
database: /var/lib/shelfwise/data.db
log_level: debug
upstream:
  api_version: "2025-01"
  page_size: 100
  timeout: 10s
sync:
  page_cap: 5
  max_duration: 90s
  page_transactions: true
server:
  addr: ":9090"
`)

	cfg, err := Load(LoadOptions{Path: path, Getenv: envMap(nil)})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/shelfwise/data.db", cfg.Database)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "2025-01", cfg.Upstream.APIVersion)
	assert.Equal(t, 100, cfg.Upstream.PageSize)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 2.0, cfg.Upstream.RequestsPerSecond, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.Sync.PageCap)
	assert.Equal(t, 90*time.Second, cfg.Sync.MaxDuration)
	assert.True(t, cfg.Sync.PageTransactions)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoad_MissingYAML(t *testing.T) {
	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "nope.yaml"), Getenv: envMap(nil)})
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "sync: [1, 2\n")
	_, err := Load(LoadOptions{Path: path, Getenv: envMap(nil)})
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "shelfwise.yaml", "database: from-yaml.db\n")

	cfg, err := Load(LoadOptions{Path: path, Getenv: envMap(map[string]string{
		"SHELFWISE_DATABASE":       "from-env.db",
		"SHELFWISE_LOG_LEVEL":      "WARN",
		"SHELFWISE_PAGE_CAP":       "7",
		"SHELFWISE_MAX_DURATION":   "2m",
		"SHELFWISE_BASE_URL":       "http://localhost:9999",
		"SHELFWISE_RETRY_ATTEMPTS": "0",
	})})
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Database)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Sync.PageCap)
	assert.Equal(t, 2*time.Minute, cfg.Sync.MaxDuration)
	assert.Equal(t, "http://localhost:9999", cfg.Upstream.BaseURL)
	assert.Equal(t, 0, cfg.Sync.RetryAttempts)
}

func TestLoad_MalformedEnv(t *testing.T) {
	_, err := Load(LoadOptions{Getenv: envMap(map[string]string{"SHELFWISE_PAGE_CAP": "lots"})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHELFWISE_PAGE_CAP")
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "SHELFWISE_DATABASE=dotenv.db\nSHELFWISE_SERVER_ADDR=:7000\n")

	cfg, err := Load(LoadOptions{EnvFile: envFile, Getenv: envMap(map[string]string{
		"SHELFWISE_SERVER_ADDR": ":7777",
	})})
	require.NoError(t, err)

	assert.Equal(t, "dotenv.db", cfg.Database)
	assert.Equal(t, ":7777", cfg.Server.Addr, "process environment wins over dotenv")
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env"), Getenv: envMap(nil)})
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.Database = "" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
		{"page size too large", func(c *Config) { c.Upstream.PageSize = 500 }},
		{"page size zero", func(c *Config) { c.Upstream.PageSize = 0 }},
		{"bad api version", func(c *Config) { c.Upstream.APIVersion = "latest" }},
		{"negative rate", func(c *Config) { c.Upstream.RequestsPerSecond = -1 }},
		{"lookback bounds inverted", func(c *Config) { c.Sync.LookbackMinDays = 400 }},
		{"negative page cap", func(c *Config) { c.Sync.PageCap = -1 }},
		{"too many retries", func(c *Config) { c.Sync.RetryAttempts = 11 }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
