package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/contrib/cache"
	"github.com/syssam/anansi/contrib/metrics"
	"github.com/syssam/anansi/dialect/sql/postgres"
)

// NewLogger returns a logger writing to w in the configured format. A
// nil level uses the configured level.
func NewLogger(cfg LogConfig, w io.Writer, level slog.Leveler) *slog.Logger {
	if level == nil {
		l, _ := ParseLevel(cfg.Level)
		level = l
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// StorageConfig returns the Postgres storage configuration of c.
func (c *Config) StorageConfig() postgres.Config {
	p := c.Postgres
	return postgres.Config{
		DSN:       p.DSN,
		Host:      p.Host,
		Port:      p.Port,
		Database:  p.Database,
		User:      p.User,
		Password:  p.Password,
		SSLMode:   p.SSLMode,
		MinConns:  p.MinConns,
		MaxConns:  p.MaxConns,
		Namespace: p.Namespace,
		Locale:    p.Locale,
	}
}

type openOptions struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	middleware []anansi.Middleware
	postgres   []postgres.Option
}

// OpenOption configures OpenStore.
type OpenOption func(*openOptions)

// WithLogger sets the logger of the store and its middleware.
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *openOptions) { o.logger = l }
}

// WithRegisterer sets the registerer of store metrics.
func WithRegisterer(reg prometheus.Registerer) OpenOption {
	return func(o *openOptions) { o.registerer = reg }
}

// WithMiddleware adds middleware ahead of the metrics and cache
// middleware, such as a privacy guard.
func WithMiddleware(ms ...anansi.Middleware) OpenOption {
	return func(o *openOptions) { o.middleware = append(o.middleware, ms...) }
}

// WithPostgresOptions sets options of the Postgres storage.
func WithPostgresOptions(opts ...postgres.Option) OpenOption {
	return func(o *openOptions) { o.postgres = append(o.postgres, opts...) }
}

// Opened is a store opened from a configuration, with the resources it
// holds.
type Opened struct {
	Store   *anansi.Store
	Storage *postgres.Storage
	Redis   *redis.Client
}

// Close releases the connections of the store.
func (o *Opened) Close() error {
	o.Storage.Close()
	if o.Redis != nil {
		return o.Redis.Close()
	}
	return nil
}

// OpenStore builds a store from cfg. The pipeline runs caller middleware
// first, then metrics and the Redis cache, ahead of the Postgres storage.
// The Redis connection is checked; Postgres connects on first use.
func OpenStore(ctx context.Context, cfg *Config, opts ...OpenOption) (*Opened, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NewLogger(cfg.Log, os.Stderr, nil)
	}

	storage := postgres.New(cfg.StorageConfig(), append([]postgres.Option{postgres.WithLogger(o.logger)}, o.postgres...)...)
	opened := &Opened{Storage: storage}

	ms := o.middleware
	if cfg.Metrics.Enabled {
		ms = append(ms, metrics.Middleware(o.registerer, metrics.WithNamespace(cfg.Metrics.Namespace)))
	}
	if cfg.Cache.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			storage.Close()
			return nil, errors.Join(fmt.Errorf("connect cache: %w", err), rdb.Close())
		}
		opened.Redis = rdb
		ms = append(ms, cache.Middleware(
			cache.NewRedis(rdb, cache.WithPrefix(cfg.Cache.Prefix)),
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(o.logger),
		))
	}

	opened.Store = anansi.NewStore(
		anansi.WithStorage(storage),
		anansi.WithMiddleware(ms...),
		anansi.WithNamespace(cfg.Postgres.Namespace),
		anansi.WithLogger(o.logger),
	)
	o.logger.InfoContext(ctx, "anansi: store opened",
		slog.String("database", cfg.Postgres.Database),
		slog.Bool("cache", cfg.Cache.Enabled()),
		slog.Bool("metrics", cfg.Metrics.Enabled),
	)
	return opened, nil
}
