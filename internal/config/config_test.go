package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RefreshInterval)

	assert.Equal(t, "http://localhost:8080", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)

	assert.Equal(t, 1000, cfg.Analytics.BatchSize)
	assert.EqualValues(t, 5000, cfg.Analytics.SlowThresholdMs)
	assert.Equal(t, "24h", cfg.Analytics.DefaultPeriod)
	assert.Equal(t, "7d", cfg.Analytics.SecurityPeriod)
	assert.Equal(t, "7days", cfg.Analytics.StatisticsRange)

	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, []string{"localhost:9000"}, cfg.ClickHouse.Addresses)

	require.NoError(t, cfg.Validate())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing upstream", mutate: func(c *Config) { c.Upstream.BaseURL = "" }, wantErr: true},
		{name: "relative upstream", mutate: func(c *Config) { c.Upstream.BaseURL = "/api" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Upstream.Timeout = 0 }, wantErr: true},
		{name: "zero batch size", mutate: func(c *Config) { c.Analytics.BatchSize = 0 }, wantErr: true},
		{name: "zero slow threshold", mutate: func(c *Config) { c.Analytics.SlowThresholdMs = 0 }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Analytics.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "zero refresh interval", mutate: func(c *Config) { c.Server.RefreshInterval = 0 }, wantErr: true},
		{
			name: "archive disabled ignores clickhouse",
			mutate: func(c *Config) {
				c.ClickHouse.Addresses = nil
			},
		},
		{
			name: "archive enabled needs clickhouse addresses",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.ClickHouse.Addresses = nil
			},
			wantErr: true,
		},
		{
			name: "archive enabled needs database",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.ClickHouse.Database = ""
			},
			wantErr: true,
		},
		{
			name: "archive enabled needs workers",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.WorkerCount = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logdash.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9999
  refresh_interval: 15s

upstream:
  base_url: "https://leave.example.com"
  timeout: 5s

analytics:
  timezone: "Asia/Kolkata"
  batch_size: 500
  slow_threshold_ms: 3000

clickhouse:
  addresses:
    - "clickhouse:9000"
  database: "test_applogs"
  conn_max_lifetime: 2h

archive:
  enabled: true
  batch_size: 100
  batch_timeout: 2s
  worker_count: 2

monitoring:
  log_level: "debug"
  log_format: "console"
  trace_sample_rate: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RefreshInterval)
	// untouched values keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "https://leave.example.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 500, cfg.Analytics.BatchSize)
	assert.EqualValues(t, 3000, cfg.Analytics.SlowThresholdMs)
	assert.Equal(t, 20, cfg.Analytics.SlowOperationsSize)

	assert.Equal(t, "test_applogs", cfg.ClickHouse.Database)
	assert.Equal(t, 2*time.Hour, cfg.ClickHouse.ConnMaxLifetime)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Archive.BatchTimeout)
	assert.Equal(t, "console", cfg.Monitoring.LogFormat)
}

func TestLoadConfigWithInvalidFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analytics:\n  batch_size: -1\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LOGS_API_URL", "http://env-api:8080")
	t.Setenv("LOGS_API_TOKEN", "env-token")
	t.Setenv("CLICKHOUSE_HOST", "env-host:9000")
	t.Setenv("CLICKHOUSE_DATABASE", "env_db")
	t.Setenv("CLICKHOUSE_USERNAME", "env_user")
	t.Setenv("CLICKHOUSE_PASSWORD", "env_pass")
	t.Setenv("ARCHIVE_ENABLED", "true")
	t.Setenv("ANALYTICS_TIMEZONE", "Europe/Berlin")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("SERVER_PORT", "7000")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "http://env-api:8080", cfg.Upstream.BaseURL)
	assert.Equal(t, "env-token", cfg.Upstream.Token)
	assert.Equal(t, []string{"env-host:9000"}, cfg.ClickHouse.Addresses)
	assert.Equal(t, "env_db", cfg.ClickHouse.Database)
	assert.Equal(t, "env_user", cfg.ClickHouse.Username)
	assert.Equal(t, "env_pass", cfg.ClickHouse.Password)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "Europe/Berlin", cfg.Analytics.Timezone)
	assert.Equal(t, "debug", cfg.Monitoring.LogLevel)
	assert.Equal(t, "console", cfg.Monitoring.LogFormat)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestAnalyticsLocation(t *testing.T) {
	loc, err := AnalyticsConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = AnalyticsConfig{Timezone: "utc"}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = AnalyticsConfig{Timezone: "Nowhere/Special"}.Location()
	assert.Error(t, err)
}
