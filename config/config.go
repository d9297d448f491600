// Package config loads the configuration of an anansi store and opens
// stores from it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// PostgresConfig configures the Postgres storage.
type PostgresConfig struct {
	DSN       string `yaml:"dsn"` // Overrides the connection fields when set
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	SSLMode   string `yaml:"sslmode"`
	MinConns  int32  `yaml:"min_conns"`
	MaxConns  int32  `yaml:"max_conns"`
	Namespace string `yaml:"namespace"` // Default table schema
	Locale    string `yaml:"locale"`    // Default translation locale
}

// CacheConfig configures the Redis read cache. The cache is disabled
// when Addr is empty.
type CacheConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// Enabled reports whether a cache is configured.
func (c CacheConfig) Enabled() bool { return c.Addr != "" }

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded, and ANANSI_* variables override its values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	ANANSI_POSTGRES_DSN        - Connection string (overrides the fields below)
//	ANANSI_POSTGRES_HOST       - Host (default: localhost)
//	ANANSI_POSTGRES_PORT       - Port (default: 5432)
//	ANANSI_POSTGRES_DATABASE   - Database name (required without a DSN)
//	ANANSI_POSTGRES_USER       - User
//	ANANSI_POSTGRES_PASSWORD   - Password
//	ANANSI_POSTGRES_SSLMODE    - SSL mode
//	ANANSI_POSTGRES_MAX_CONNS  - Pool size
//	ANANSI_POSTGRES_NAMESPACE  - Default table schema (default: public)
//	ANANSI_POSTGRES_LOCALE     - Default translation locale (default: en_US)
//	ANANSI_CACHE_ADDR          - Redis address (cache disabled when empty)
//	ANANSI_CACHE_PASSWORD      - Redis password
//	ANANSI_CACHE_DB            - Redis database
//	ANANSI_CACHE_TTL           - Cached read lifetime (default: 5m)
//	ANANSI_CACHE_PREFIX        - Redis key prefix (default: anansi:)
//	ANANSI_LOG_LEVEL           - debug, info, warn, error (default: info)
//	ANANSI_LOG_FORMAT          - json or text (default: json)
//	ANANSI_METRICS_ENABLED     - Record Prometheus metrics
//	ANANSI_METRICS_NAMESPACE   - Metric namespace (default: anansi)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	if HasEnvConfig() {
		return LoadFromEnv()
	}
	return nil, fmt.Errorf("no configuration found: provide config file or set ANANSI_POSTGRES_DSN or ANANSI_POSTGRES_DATABASE")
}

// HasEnvConfig returns true if the database is configured by the
// environment.
func HasEnvConfig() bool {
	return os.Getenv("ANANSI_POSTGRES_DSN") != "" || os.Getenv("ANANSI_POSTGRES_DATABASE") != ""
}

// applyEnvOverrides applies ANANSI_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("ANANSI_POSTGRES_DSN", &cfg.Postgres.DSN)
	str("ANANSI_POSTGRES_HOST", &cfg.Postgres.Host)
	str("ANANSI_POSTGRES_DATABASE", &cfg.Postgres.Database)
	str("ANANSI_POSTGRES_USER", &cfg.Postgres.User)
	str("ANANSI_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	str("ANANSI_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	str("ANANSI_POSTGRES_NAMESPACE", &cfg.Postgres.Namespace)
	str("ANANSI_POSTGRES_LOCALE", &cfg.Postgres.Locale)
	str("ANANSI_CACHE_ADDR", &cfg.Cache.Addr)
	str("ANANSI_CACHE_PASSWORD", &cfg.Cache.Password)
	str("ANANSI_CACHE_PREFIX", &cfg.Cache.Prefix)
	str("ANANSI_LOG_LEVEL", &cfg.Log.Level)
	str("ANANSI_LOG_FORMAT", &cfg.Log.Format)
	str("ANANSI_METRICS_NAMESPACE", &cfg.Metrics.Namespace)

	if v := os.Getenv("ANANSI_POSTGRES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANANSI_POSTGRES_PORT: %w", err)
		}
		cfg.Postgres.Port = port
	}
	if v := os.Getenv("ANANSI_POSTGRES_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("ANANSI_POSTGRES_MAX_CONNS: %w", err)
		}
		cfg.Postgres.MaxConns = int32(n)
	}
	if v := os.Getenv("ANANSI_CACHE_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANANSI_CACHE_DB: %w", err)
		}
		cfg.Cache.DB = db
	}
	if v := os.Getenv("ANANSI_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ANANSI_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = ttl
	}
	if v := os.Getenv("ANANSI_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.Namespace == "" {
		cfg.Postgres.Namespace = "public"
	}
	if cfg.Postgres.Locale == "" {
		cfg.Postgres.Locale = "en_US"
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "anansi:"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "anansi"
	}
}

func validate(cfg *Config) error {
	if cfg.Postgres.DSN == "" && cfg.Postgres.Database == "" {
		return fmt.Errorf("postgres.database is required without postgres.dsn")
	}
	if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
		return fmt.Errorf("postgres.port must be between 1 and 65535, got %d", cfg.Postgres.Port)
	}
	if cfg.Postgres.MinConns < 0 || cfg.Postgres.MaxConns < 0 {
		return fmt.Errorf("postgres pool sizes must not be negative")
	}
	if cfg.Postgres.MaxConns > 0 && cfg.Postgres.MinConns > cfg.Postgres.MaxConns {
		return fmt.Errorf("postgres.min_conns (%d) exceeds postgres.max_conns (%d)", cfg.Postgres.MinConns, cfg.Postgres.MaxConns)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log.format must be 'json' or 'text', got %q", cfg.Log.Format)
	}
	return nil
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", s)
	}
	return l, nil
}
