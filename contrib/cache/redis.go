// Package cache provides a Redis implementation of anansi.Cache and a
// store middleware caching the results of read actions.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := anansi.NewStore(
//	    anansi.WithStorage(storage),
//	    anansi.WithMiddleware(cache.Middleware(cache.NewRedis(rdb), cache.WithTTL(time.Minute))),
//	)
//
// Reads are cached per table. Any mutation of a table drops every cached
// read of that table.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syssam/anansi"
)

// scanCount is the COUNT hint of SCAN batches.
const scanCount = 256

// Redis is an anansi.Cache stored in Redis. Keys are prefixed with the
// configured prefix, so several stores may share a database.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithPrefix sets the prefix of every key written by the cache.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis returns a cache stored in rdb.
func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: "anansi:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get implements anansi.Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

// Set implements anansi.Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Delete implements anansi.Cache.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

// DeletePrefix implements anansi.Cache.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	return r.deleteMatch(ctx, escapeGlob(r.prefix+prefix)+"*")
}

// Clear implements anansi.Cache. Only keys under the cache prefix are
// removed.
func (r *Redis) Clear(ctx context.Context) error {
	return r.deleteMatch(ctx, escapeGlob(r.prefix)+"*")
}

func (r *Redis) deleteMatch(ctx context.Context, match string) error {
	iter := r.rdb.Scan(ctx, 0, match, scanCount).Iterator()
	batch := make([]string, 0, scanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanCount {
			if err := r.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob escapes the pattern characters of SCAN MATCH.
func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}

var _ anansi.Cache = (*Redis)(nil)
