package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig contains server-specific settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// UpstreamConfig points at the Leave Scheduler application log API
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Token is used by CLI commands; HTTP callers forward their own.
	Token string `yaml:"token"`
}

// AnalyticsConfig tunes the fetch-and-aggregate views
type AnalyticsConfig struct {
	Timezone           string `yaml:"timezone"`
	BatchSize          int    `yaml:"batch_size"`
	SlowThresholdMs    int64  `yaml:"slow_threshold_ms"`
	DefaultPeriod      string `yaml:"default_period"`
	SecurityPeriod     string `yaml:"security_period"`
	StatisticsRange    string `yaml:"statistics_range"`
	SlowOperationsSize int    `yaml:"slow_operations_size"`
	AuthLogsSize       int    `yaml:"auth_logs_size"`
	CriticalOpsSize    int    `yaml:"critical_ops_size"`
	RecentFailuresSize int    `yaml:"recent_failures_size"`
}

// Location resolves the configured timezone
func (a AnalyticsConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || strings.EqualFold(a.Timezone, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// ClickHouseConfig contains ClickHouse connection settings
type ClickHouseConfig struct {
	Addresses       []string      `yaml:"addresses"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	Compression     string        `yaml:"compression"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	TLSSkipVerify   bool          `yaml:"tls_skip_verify"`
}

// ArchiveConfig controls mirroring of fetched records into ClickHouse
type ArchiveConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	QueueSize    int           `yaml:"queue_size"`
	WorkerCount  int           `yaml:"worker_count"`
}

// MonitoringConfig contains monitoring and observability settings
type MonitoringConfig struct {
	MetricsPort     int     `yaml:"metrics_port"`
	MetricsPath     string  `yaml:"metrics_path"`
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	HealthCheckPath string  `yaml:"health_check_path"`
	ReadyCheckPath  string  `yaml:"ready_check_path"`
	TracingEnabled  bool    `yaml:"tracing_enabled"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// LoadConfig loads configuration from a YAML file. Values missing from the
// file keep their defaults. An empty path uses defaults plus the environment.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base url cannot be empty")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream base url %q is not an absolute url", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream timeout must be positive")
	}
	if c.Analytics.BatchSize <= 0 {
		return fmt.Errorf("analytics batch size must be positive")
	}
	if c.Analytics.SlowThresholdMs <= 0 {
		return fmt.Errorf("slow threshold must be positive")
	}
	if _, err := c.Analytics.Location(); err != nil {
		return err
	}
	if c.Server.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.Archive.Enabled {
		if len(c.ClickHouse.Addresses) == 0 {
			return fmt.Errorf("clickhouse addresses cannot be empty")
		}
		if c.ClickHouse.Database == "" {
			return fmt.Errorf("clickhouse database cannot be empty")
		}
		if c.Archive.BatchSize <= 0 {
			return fmt.Errorf("archive batch size must be positive")
		}
		if c.Archive.WorkerCount <= 0 {
			return fmt.Errorf("archive worker count must be positive")
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) {
	if val := os.Getenv("LOGS_API_URL"); val != "" {
		config.Upstream.BaseURL = val
	}
	if val := os.Getenv("LOGS_API_TOKEN"); val != "" {
		config.Upstream.Token = val
	}
	if val := os.Getenv("CLICKHOUSE_HOST"); val != "" {
		config.ClickHouse.Addresses = []string{val}
	}
	if val := os.Getenv("CLICKHOUSE_DATABASE"); val != "" {
		config.ClickHouse.Database = val
	}
	if val := os.Getenv("CLICKHOUSE_USERNAME"); val != "" {
		config.ClickHouse.Username = val
	}
	if val := os.Getenv("CLICKHOUSE_PASSWORD"); val != "" {
		config.ClickHouse.Password = val
	}
	if val := os.Getenv("ARCHIVE_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			config.Archive.Enabled = enabled
		}
	}
	if val := os.Getenv("ANALYTICS_TIMEZONE"); val != "" {
		config.Analytics.Timezone = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Monitoring.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Monitoring.LogFormat = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &config.Server.Port)
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RefreshInterval: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Analytics: AnalyticsConfig{
			Timezone:           "UTC",
			BatchSize:          1000,
			SlowThresholdMs:    5000,
			DefaultPeriod:      "24h",
			SecurityPeriod:     "7d",
			StatisticsRange:    "7days",
			SlowOperationsSize: 20,
			AuthLogsSize:       50,
			CriticalOpsSize:    20,
			RecentFailuresSize: 5,
		},
		ClickHouse: ClickHouseConfig{
			Addresses:       []string{"localhost:9000"},
			Database:        "applogs",
			Username:        "default",
			Password:        "",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 1 * time.Hour,
			DialTimeout:     10 * time.Second,
			Compression:     "zstd",
		},
		Archive: ArchiveConfig{
			Enabled:      false,
			BatchSize:    5000,
			BatchTimeout: 10 * time.Second,
			QueueSize:    20000,
			WorkerCount:  1,
		},
		Monitoring: MonitoringConfig{
			MetricsPort:     9091,
			MetricsPath:     "/metrics",
			LogLevel:        "info",
			LogFormat:       "json",
			HealthCheckPath: "/health",
			ReadyCheckPath:  "/ready",
			TracingEnabled:  false,
			OTLPEndpoint:    "localhost:4317",
			TraceSampleRate: 0.1,
		},
	}
}
