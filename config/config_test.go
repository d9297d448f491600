package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/anansi/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anansi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
postgres:
  host: db
  database: app
  user: anansi
  password: ${ANANSI_TEST_PASSWORD}
  max_conns: 8
cache:
  addr: localhost:6379
  ttl: 30s
log:
  level: debug
  format: text
metrics:
  enabled: true
`

// TestLoad tests loading a file with expansion and defaults.
func TestLoad(t *testing.T) {
	t.Setenv("ANANSI_TEST_PASSWORD", "s3cret")
	cfg, err := config.Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, int32(8), cfg.Postgres.MaxConns)
	assert.Equal(t, "public", cfg.Postgres.Namespace)
	assert.Equal(t, "en_US", cfg.Postgres.Locale)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "anansi:", cfg.Cache.Prefix)
	assert.True(t, cfg.Cache.Enabled())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "anansi", cfg.Metrics.Namespace)

	pg := cfg.StorageConfig()
	assert.Equal(t, "postgres://anansi:s3cret@db:5432/app", pg.ConnString())
}

// TestLoadEnvOverrides tests that ANANSI_* variables override the file.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANANSI_POSTGRES_HOST", "replica")
	t.Setenv("ANANSI_POSTGRES_PORT", "6432")
	t.Setenv("ANANSI_CACHE_TTL", "1m")
	t.Setenv("ANANSI_CACHE_DB", "2")
	t.Setenv("ANANSI_LOG_LEVEL", "warn")
	t.Setenv("ANANSI_METRICS_ENABLED", "off")

	cfg, err := config.Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "replica", cfg.Postgres.Host)
	assert.Equal(t, 6432, cfg.Postgres.Port)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2, cfg.Cache.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

// TestLoadErrors tests invalid files and values.
func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{name: "no database", content: "postgres:\n  host: db\n", wantErr: "postgres.database is required"},
		{name: "bad yaml", content: "postgres: [", wantErr: "parse config"},
		{name: "bad port", content: "postgres:\n  database: app\n  port: 70000\n", wantErr: "postgres.port"},
		{name: "pool sizes", content: "postgres:\n  database: app\n  min_conns: 9\n  max_conns: 2\n", wantErr: "min_conns"},
		{name: "log level", content: "postgres:\n  database: app\nlog:\n  level: loud\n", wantErr: "log.level"},
		{name: "log format", content: "postgres:\n  database: app\nlog:\n  format: xml\n", wantErr: "log.format"},
		{name: "env port", content: "postgres:\n  database: app\n", env: map[string]string{"ANANSI_POSTGRES_PORT": "x"}, wantErr: "ANANSI_POSTGRES_PORT"},
		{name: "env ttl", content: "postgres:\n  database: app\n", env: map[string]string{"ANANSI_CACHE_TTL": "soon"}, wantErr: "ANANSI_CACHE_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

// TestLoadFromEnv tests configuration without a file.
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ANANSI_POSTGRES_DSN", "postgres://localhost/app")
	t.Setenv("ANANSI_CACHE_ADDR", "redis:6379")

	assert.True(t, config.HasEnvConfig())
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", cfg.StorageConfig().ConnString())
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
}

// TestLoadWithFallback tests the file and environment fallbacks.
func TestLoadWithFallback(t *testing.T) {
	t.Setenv("ANANSI_POSTGRES_DSN", "")
	t.Setenv("ANANSI_POSTGRES_DATABASE", "")

	_, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "no configuration found")

	cfg, err := config.LoadWithFallback(writeConfig(t, "postgres:\n  database: file\n"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Postgres.Database)

	t.Setenv("ANANSI_POSTGRES_DATABASE", "env")
	cfg, err = config.LoadWithFallback("")
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Postgres.Database)
}
