package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/contrib/cache"
	"github.com/syssam/anansi/schema/field"
)

func newRedis(t *testing.T, opts ...cache.RedisOption) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewRedis(rdb, opts...), mr
}

// countingStorage serves fixed rows and counts the calls it receives.
type countingStorage struct {
	rows    []map[string]any
	reads   atomic.Int32
	writes  atomic.Int32
	readErr error
	release chan struct{}
}

func (s *countingStorage) GetRecords(context.Context, *anansi.Schema, *anansi.Context) ([]map[string]any, error) {
	s.reads.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.rows, s.readErr
}

func (s *countingStorage) GetCount(context.Context, *anansi.Schema, *anansi.Context) (int, error) {
	s.reads.Add(1)
	return len(s.rows), s.readErr
}

func (s *countingStorage) SaveRecord(_ context.Context, m *anansi.Model, _ *anansi.Context) (map[string]any, error) {
	s.writes.Add(1)
	return m.FieldValues(), nil
}

func (s *countingStorage) SaveCollection(context.Context, *anansi.Collection, *anansi.Context) ([]map[string]any, error) {
	s.writes.Add(1)
	return nil, nil
}

func (s *countingStorage) DeleteRecord(context.Context, *anansi.Model, *anansi.Context) (int, error) {
	s.writes.Add(1)
	return 1, nil
}

func (s *countingStorage) DeleteCollection(context.Context, *anansi.Collection, *anansi.Context) (int, error) {
	s.writes.Add(1)
	return 0, nil
}

type fixture struct {
	storage *countingStorage
	store   *anansi.Store
	cache   *cache.Redis
	mr      *miniredis.Miniredis
	user    *anansi.Schema
	role    *anansi.Schema
}

func newFixture(t *testing.T, opts ...cache.Option) *fixture {
	t.Helper()
	f := &fixture{storage: &countingStorage{rows: []map[string]any{
		{"id": int64(1), "username": "bob", "score": 1.5, "active": true},
		{"id": int64(2), "username": "eve", "score": 2.0, "active": false},
	}}}
	f.cache, f.mr = newRedis(t)
	f.store = anansi.NewStore(
		anansi.WithStorage(f.storage),
		anansi.WithMiddleware(cache.Middleware(f.cache, opts...)),
	)
	reg := anansi.NewRegistry()
	f.user = anansi.NewSchema("User", anansi.InRegistry(reg), anansi.HasFields(
		field.Serial("id"),
		field.String("username"),
	))
	f.role = anansi.NewSchema("Role", anansi.InRegistry(reg), anansi.HasFields(
		field.Serial("id"),
	))
	return f
}

// TestRedis tests the Redis cache operations.
func TestRedis(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newRedis(t, cache.WithPrefix("app:"))

	b, err := c.Get(ctx, "users:a")
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, c.Set(ctx, "users:a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "users:b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "roles:a", []byte("3"), 0))
	require.NoError(t, mr.Set("other", "x"))
	assert.True(t, mr.Exists("app:users:a"))
	assert.Equal(t, time.Minute, mr.TTL("app:users:b"))

	b, err = c.Get(ctx, "users:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), b)

	require.NoError(t, c.Delete(ctx, "users:a"))
	assert.False(t, mr.Exists("app:users:a"))

	require.NoError(t, c.Set(ctx, "users:a", []byte("1"), 0))
	require.NoError(t, c.DeletePrefix(ctx, "users:"))
	assert.False(t, mr.Exists("app:users:a"))
	assert.False(t, mr.Exists("app:users:b"))
	assert.True(t, mr.Exists("app:roles:a"))

	require.NoError(t, c.Clear(ctx))
	assert.False(t, mr.Exists("app:roles:a"))
	assert.True(t, mr.Exists("other"))
}

// TestRedisDeletePrefixEscaped tests that pattern characters in prefixes
// match literally.
func TestRedisDeletePrefixEscaped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newRedis(t)
	require.NoError(t, c.Set(ctx, "a*:1", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "ab:1", []byte("1"), 0))
	require.NoError(t, c.DeletePrefix(ctx, "a*:"))
	assert.False(t, mr.Exists("anansi:a*:1"))
	assert.True(t, mr.Exists("anansi:ab:1"))
}

// TestRedisDeletePrefixBatches tests deleting more keys than one batch.
func TestRedisDeletePrefixBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := newRedis(t)
	for i := range 600 {
		require.NoError(t, mr.Set(fmt.Sprintf("anansi:users:%d", i), "x"))
	}
	require.NoError(t, c.DeletePrefix(ctx, "users:"))
	assert.Empty(t, mr.Keys())
}

// TestMiddlewareRecords tests cached record reads.
func TestMiddlewareRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, cache.WithTTL(time.Hour))
	c := anansi.MakeContext(anansi.Where(anansi.Q("username").Is("bob")))

	rows, err := f.store.GetRecords(ctx, f.user, c)
	require.NoError(t, err)
	assert.Equal(t, f.storage.rows, rows)

	rows, err = f.store.GetRecords(ctx, f.user, anansi.MakeContext(anansi.Where(anansi.Q("username").Is("bob"))))
	require.NoError(t, err)
	assert.Equal(t, f.storage.rows, rows)
	assert.Equal(t, int32(1), f.storage.reads.Load())

	k, ok := anansi.MakeCacheKey(&anansi.GetRecordsAction{Schema: f.user, Context: c})
	require.True(t, ok)
	assert.Equal(t, time.Hour, f.mr.TTL("anansi:"+k.String()))

	_, err = f.store.GetRecords(ctx, f.user, anansi.MakeContext(anansi.Where(anansi.Q("username").Is("eve"))))
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.storage.reads.Load())
}

// TestMiddlewareCount tests cached counts.
func TestMiddlewareCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	for range 3 {
		n, err := f.store.GetCount(ctx, f.user, anansi.MakeContext())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
	assert.Equal(t, int32(1), f.storage.reads.Load())
}

// TestMiddlewareInvalidation tests that mutations drop the reads of their
// table only.
func TestMiddlewareInvalidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	read := func(s *anansi.Schema) {
		t.Helper()
		_, err := f.store.GetRecords(ctx, s, anansi.MakeContext())
		require.NoError(t, err)
	}
	read(f.user)
	read(f.role)
	assert.Equal(t, int32(2), f.storage.reads.Load())

	m := anansi.New(f.user, anansi.State(map[string]any{"id": 1, "username": "bob"}))
	_, err := f.store.DeleteRecord(ctx, m, anansi.MakeContext())
	require.NoError(t, err)

	read(f.user)
	read(f.role)
	assert.Equal(t, int32(3), f.storage.reads.Load())

	_, err = f.store.SaveRecord(ctx, anansi.New(f.role, anansi.Values(map[string]any{"id": 9})), anansi.MakeContext())
	require.NoError(t, err)
	read(f.user)
	read(f.role)
	assert.Equal(t, int32(4), f.storage.reads.Load())
}

// TestMiddlewareSkip tests reads bypassing the cache.
func TestMiddlewareSkip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := cache.Skip(context.Background())
	for range 2 {
		_, err := f.store.GetRecords(ctx, f.user, anansi.MakeContext())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.storage.reads.Load())
	assert.Empty(t, f.mr.Keys())
}

// TestMiddlewareErrors tests that failed reads are not cached and cache
// failures fall through to the storage.
func TestMiddlewareErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("storage", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.storage.readErr = errors.New("connection reset")
		_, err := f.store.GetRecords(ctx, f.user, anansi.MakeContext())
		require.Error(t, err)
		assert.Empty(t, f.mr.Keys())
	})
	t.Run("redis down", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.mr.Close()
		rows, err := f.store.GetRecords(ctx, f.user, anansi.MakeContext())
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
	t.Run("corrupt entry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		c := anansi.MakeContext()
		_, err := f.store.GetRecords(ctx, f.user, c)
		require.NoError(t, err)
		k, _ := anansi.MakeCacheKey(&anansi.GetRecordsAction{Schema: f.user, Context: c})
		require.NoError(t, f.mr.Set("anansi:"+k.String(), "\xc1"))
		rows, err := f.store.GetRecords(ctx, f.user, anansi.MakeContext())
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Equal(t, int32(2), f.storage.reads.Load())
	})
}

// TestMiddlewareSingleFlight tests that concurrent misses share one read.
func TestMiddlewareSingleFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.storage.release = make(chan struct{})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := f.store.GetRecords(ctx, f.user, anansi.MakeContext())
			assert.NoError(t, err)
			assert.Len(t, rows, 2)
		}()
	}
	require.Eventually(t, func() bool { return f.storage.reads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.storage.release)
	wg.Wait()
	assert.Equal(t, int32(1), f.storage.reads.Load())
}
