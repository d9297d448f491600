package cache

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/anansi"
)

// DefaultTTL is the lifetime of cached reads when no TTL is configured.
const DefaultTTL = 5 * time.Minute

type config struct {
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the cache middleware.
type Option func(*config)

// WithTTL sets the lifetime of cached reads. Zero keeps them until the
// table is mutated.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) { c.ttl = ttl }
}

// WithLogger sets the logger of cache failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

type skipKey struct{}

// Skip returns a context whose reads bypass the cache. Reads made inside
// an open transaction should use it.
func Skip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

func skipped(ctx context.Context) bool {
	v, _ := ctx.Value(skipKey{}).(bool)
	return v
}

// entry is the encoded result of a read action.
type entry struct {
	Rows  []map[string]any `msgpack:"r,omitempty"`
	Count int              `msgpack:"c,omitempty"`
}

// Middleware returns a store middleware serving GetRecords and GetCount
// from c. Concurrent misses of the same key share one storage read.
// Successful mutations drop the cached reads of their table. Cache
// failures are logged and never fail the action.
func Middleware(c anansi.Cache, opts ...Option) anansi.Middleware {
	cfg := &config{ttl: DefaultTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	m := &middleware{cache: c, cfg: cfg}
	return anansi.MiddlewareFunc(m.wrap)
}

type middleware struct {
	cache anansi.Cache
	cfg   *config
	group singleflight.Group
}

func (m *middleware) wrap(next anansi.Handler) anansi.Handler {
	return func(ctx context.Context, a anansi.Action) (any, error) {
		switch k := a.Kind(); {
		case k.IsMutation():
			out, err := next(ctx, a)
			if err == nil {
				m.invalidate(ctx, a)
			}
			return out, err
		case k == anansi.KindGetRecords || k == anansi.KindGetCount:
			if skipped(ctx) {
				return next(ctx, a)
			}
			key, ok := anansi.MakeCacheKey(a)
			if !ok {
				return next(ctx, a)
			}
			return m.read(ctx, a, key.String(), next)
		default:
			return next(ctx, a)
		}
	}
}

func (m *middleware) read(ctx context.Context, a anansi.Action, key string, next anansi.Handler) (any, error) {
	if out, ok := m.lookup(ctx, a.Kind(), key); ok {
		return out, nil
	}
	out, err, _ := m.group.Do(key, func() (any, error) {
		out, err := next(ctx, a)
		if err != nil {
			return nil, err
		}
		m.store(ctx, key, out)
		return out, nil
	})
	return out, err
}

func (m *middleware) lookup(ctx context.Context, kind anansi.ActionKind, key string) (any, bool) {
	b, err := m.cache.Get(ctx, key)
	if err != nil {
		m.cfg.logger.WarnContext(ctx, "anansi: cache get failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if b == nil {
		return nil, false
	}
	e, err := decode(b)
	if err != nil {
		m.cfg.logger.WarnContext(ctx, "anansi: cache entry corrupt", slog.String("key", key), slog.Any("error", err))
		return nil, false
	}
	if kind == anansi.KindGetCount {
		return e.Count, true
	}
	if e.Rows == nil {
		e.Rows = []map[string]any{}
	}
	return e.Rows, true
}

func (m *middleware) store(ctx context.Context, key string, out any) {
	var e entry
	switch v := out.(type) {
	case []map[string]any:
		e.Rows = v
	case int:
		e.Count = v
	default:
		return
	}
	b, err := msgpack.Marshal(&e)
	if err == nil {
		err = m.cache.Set(ctx, key, b, m.cfg.ttl)
	}
	if err != nil {
		m.cfg.logger.WarnContext(ctx, "anansi: cache set failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (m *middleware) invalidate(ctx context.Context, a anansi.Action) {
	s := a.Target()
	if s == nil {
		return
	}
	prefix := anansi.TablePrefix(anansi.ResolveNamespace(s, a.Options(), ""), s.ResourceName())
	if err := m.cache.DeletePrefix(ctx, prefix); err != nil {
		m.cfg.logger.WarnContext(ctx, "anansi: cache invalidation failed", slog.String("prefix", prefix), slog.Any("error", err))
	}
}

// decode reads an entry. Integers decode as int64 and floats as float64
// whatever their encoded width.
func decode(b []byte) (*entry, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var e entry
	if err := dec.Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}
