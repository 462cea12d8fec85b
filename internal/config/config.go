package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alvmarrod/proxy-harvest/internal/fetch"
	"github.com/alvmarrod/proxy-harvest/internal/proxy"
	"github.com/sirupsen/logrus"
)

// Proxy sources.
const (
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
	SourceStatic   = "static"
)

// Environment variables that override the file.
const (
	EnvPGDSN      = "HARVEST_PG_DSN"
	EnvNumWorkers = "HARVEST_NUM_WORKERS"
	EnvItemCount  = "HARVEST_ITEM_COUNT"
)

// Config holds all runtime configuration parameters
type Config struct {
	ItemCount            int      `json:"item_count"`
	NumWorkers           int      `json:"num_workers"`
	ProxyUsageLimit      int      `json:"proxy_usage_limit"`
	MaxRetries           int      `json:"max_retries"`
	RequestTimeoutMs     int      `json:"request_timeout_ms"`
	CooldownMs           int      `json:"cooldown_ms"`
	EmptyPoolPauseMs     int      `json:"empty_pool_pause_ms"`
	BaseURL              string   `json:"base_url"`
	Method               string   `json:"method"`
	RequestBody          string   `json:"request_body"`
	ContentType          string   `json:"content_type"`
	UserAgent            string   `json:"user_agent"`
	MaxBodyBytes         int      `json:"max_body_bytes"`
	ReleaseOnSuccess     *bool    `json:"release_on_success"`
	MaxRequestsPerSecond float64  `json:"max_requests_per_second"`
	ProxySource          string   `json:"proxy_source"`
	DBPath               string   `json:"db_path"`
	PGDSN                string   `json:"pg_dsn"`
	PGMaxConns           int      `json:"pg_max_conns"`
	PGViaBouncer         bool     `json:"pg_via_bouncer"`
	Proxies              []string `json:"proxies"`
	MetricsPath          string   `json:"metrics_path"`
	OutputPath           string   `json:"output_path"`
	ProgressIntervalMs   int      `json:"progress_interval_ms"`
	LogLevel             string   `json:"log_level"`
}

// LoadConfig reads and validates configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyEnv(&cfg)

	// Apply defaults for missing values
	applyDefaults(&cfg)

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv lets the environment override secrets and sizing.
func applyEnv(cfg *Config) {
	cfg.PGDSN = envString(EnvPGDSN, cfg.PGDSN)
	cfg.NumWorkers = envInt(EnvNumWorkers, cfg.NumWorkers)
	cfg.ItemCount = envInt(EnvItemCount, cfg.ItemCount)
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("Ignoring %s=%q: not an integer", key, v)
		return def
	}
	return i
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.ItemCount == 0 {
		cfg.ItemCount = 5000
	}
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = 5
	}
	if cfg.ProxyUsageLimit == 0 {
		cfg.ProxyUsageLimit = proxy.DefaultUsageLimit
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 7000
	}
	if cfg.CooldownMs == 0 {
		cfg.CooldownMs = 15000
	}
	if cfg.EmptyPoolPauseMs == 0 {
		cfg.EmptyPoolPauseMs = 15000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://kaspi.kz/yml/offer-view/offers/"
	}
	if cfg.Method == "" {
		cfg.Method = "POST"
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	if cfg.ContentType == "" && cfg.RequestBody != "" {
		cfg.ContentType = "application/json"
	}
	if cfg.ReleaseOnSuccess == nil {
		release := true
		cfg.ReleaseOnSuccess = &release
	}
	if cfg.ProxySource == "" {
		cfg.ProxySource = SourceSQLite
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "proxies.db"
	}
	if cfg.PGMaxConns == 0 {
		cfg.PGMaxConns = 2
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.ProgressIntervalMs == 0 {
		cfg.ProgressIntervalMs = 10000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.ItemCount < 1 {
		return fmt.Errorf("item_count must be >= 1")
	}
	if cfg.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be >= 1")
	}
	if cfg.ProxyUsageLimit < 1 {
		return fmt.Errorf("proxy_usage_limit must be >= 1")
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1")
	}
	if cfg.RequestTimeoutMs < 100 {
		return fmt.Errorf("request_timeout_ms must be >= 100")
	}
	if cfg.CooldownMs < 0 || cfg.EmptyPoolPauseMs < 0 {
		return fmt.Errorf("cooldown_ms and empty_pool_pause_ms must not be negative")
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	if cfg.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("max_requests_per_second must not be negative")
	}
	if err := fetch.ValidateBaseURL(cfg.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	switch cfg.ProxySource {
	case SourceSQLite:
	case SourcePostgres:
		if cfg.PGDSN == "" {
			return fmt.Errorf("pg_dsn (or %s) is required for proxy_source %q", EnvPGDSN, SourcePostgres)
		}
	case SourceStatic:
		if len(cfg.Proxies) == 0 {
			return fmt.Errorf("proxies must not be empty for proxy_source %q", SourceStatic)
		}
		for i, line := range cfg.Proxies {
			if _, err := proxy.Parse(line); err != nil {
				return fmt.Errorf("proxies[%d]: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown proxy_source %q", cfg.ProxySource)
	}
	return nil
}

// RequestTimeout returns request_timeout_ms as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Cooldown returns cooldown_ms as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// EmptyPoolPause returns empty_pool_pause_ms as a duration.
func (c *Config) EmptyPoolPause() time.Duration {
	return time.Duration(c.EmptyPoolPauseMs) * time.Millisecond
}

// ProgressInterval returns progress_interval_ms as a duration.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// RetireOnSuccess reports whether a proxy is taken out of rotation after
// its first successful fetch.
func (c *Config) RetireOnSuccess() bool {
	return c.ReleaseOnSuccess != nil && !*c.ReleaseOnSuccess
}

// Level returns the parsed log level.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// StaticProxies parses the inline proxy list.
func (c *Config) StaticProxies() ([]*proxy.Proxy, error) {
	out := make([]*proxy.Proxy, 0, len(c.Proxies))
	for i, line := range c.Proxies {
		p, err := proxy.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("proxies[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
