// Package dataloader batches record lookups by key.
//
// Include preloading fetches the related records of a whole collection
// with one IN query and spreads the result back over the owners with
// OrderByKeys and GroupByKey. Loader does the same for lookups issued one
// at a time, such as resolvers fetching the author of each post:
//
//	authors := dataloader.New(func(ctx context.Context, ids []int64) ([]*anansi.Model, []error) {
//	    recs, err := Users.Select(anansi.Where(anansi.Q("id").IsIn(anys(ids)...))).Records(ctx)
//	    if err != nil {
//	        return nil, []error{err}
//	    }
//	    return dataloader.OrderByKeys(ids, models(recs), userID)
//	})
//	author, err := authors.Load(ctx, post.AuthorID)
package dataloader

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key has no record in a batch result.
var ErrNotFound = errors.New("dataloader: record not found")

// KeyFunc extracts a key from a record.
type KeyFunc[K comparable, V any] func(V) K

// BatchFunc loads the records of keys. It returns one value per key, in
// key order, and either one error per key or a single error for all.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) ([]V, []error)

// OrderByKeys reorders values to match keys. Keys without a value get
// the zero value and ErrNotFound.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError is OrderByKeys for optional references, where a
// missing value is not an error.
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values sharing a key, such as the records of a
// collector grouped by the owner they point back to.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the group of each key, in key order.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}

// Loader coalesces the keys requested within a short window into one
// call of its BatchFunc and caches the results per key.
type Loader[K comparable, V any] struct {
	fetch   BatchFunc[K, V]
	wait    time.Duration
	maxSize int

	mu    sync.Mutex
	cache map[K]*result[V]
	batch *batch[K, V]
}

type result[V any] struct {
	done  chan struct{}
	value V
	err   error
}

type batch[K comparable, V any] struct {
	keys    []K
	results []*result[V]
	full    chan struct{}
}

// Option configures a Loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	wait    time.Duration
	maxSize int
}

// WithWait sets how long a batch collects keys. Defaults to 2ms.
func WithWait(d time.Duration) Option {
	return func(o *loaderOptions) { o.wait = d }
}

// WithMaxBatch caps the keys of a batch. Zero means no limit.
func WithMaxBatch(n int) Option {
	return func(o *loaderOptions) { o.maxSize = n }
}

// New returns a Loader calling fetch.
func New[K comparable, V any](fetch BatchFunc[K, V], opts ...Option) *Loader[K, V] {
	o := loaderOptions{wait: 2 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[K, V]{
		fetch:   fetch,
		wait:    o.wait,
		maxSize: o.maxSize,
		cache:   make(map[K]*result[V]),
	}
}

// Load returns the value of key, waiting for the batch it joins.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	r := l.enqueue(ctx, key)
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// LoadMany returns the values of keys. Errors are reported per key.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, []error) {
	rs := make([]*result[V], len(keys))
	for i, key := range keys {
		rs[i] = l.enqueue(ctx, key)
	}
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, r := range rs {
		select {
		case <-r.done:
			values[i], errs[i] = r.value, r.err
		case <-ctx.Done():
			errs[i] = ctx.Err()
		}
	}
	return values, errs
}

// Prime stores value for key unless the key is already cached.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[key]; ok {
		return
	}
	r := &result[V]{done: make(chan struct{}), value: value}
	close(r.done)
	l.cache[key] = r
}

// Clear drops the cached value of keys, for example after they were
// saved or deleted.
func (l *Loader[K, V]) Clear(keys ...K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range keys {
		delete(l.cache, key)
	}
}

func (l *Loader[K, V]) enqueue(ctx context.Context, key K) *result[V] {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.cache[key]; ok {
		return r
	}
	r := &result[V]{done: make(chan struct{})}
	l.cache[key] = r
	if l.batch == nil {
		l.batch = &batch[K, V]{full: make(chan struct{})}
		go l.run(context.WithoutCancel(ctx), l.batch)
	}
	b := l.batch
	b.keys = append(b.keys, key)
	b.results = append(b.results, r)
	if l.maxSize > 0 && len(b.keys) >= l.maxSize {
		l.batch = nil
		close(b.full)
	}
	return r
}

func (l *Loader[K, V]) run(ctx context.Context, b *batch[K, V]) {
	timer := time.NewTimer(l.wait)
	select {
	case <-timer.C:
		l.mu.Lock()
		if l.batch == b {
			l.batch = nil
		}
		l.mu.Unlock()
	case <-b.full:
		timer.Stop()
	}

	values, errs := l.fetch(ctx, b.keys)
	for i, r := range b.results {
		switch {
		case len(errs) == 1 && len(b.keys) != 1 && errs[0] != nil:
			r.err = errs[0]
		case i < len(errs) && errs[i] != nil:
			r.err = errs[i]
		case i >= len(values):
			r.err = ErrNotFound
		default:
			r.value = values[i]
		}
	}
	// Failures are not cached.
	l.mu.Lock()
	for i, r := range b.results {
		if r.err != nil && l.cache[b.keys[i]] == r {
			delete(l.cache, b.keys[i])
		}
	}
	l.mu.Unlock()
	for _, r := range b.results {
		close(r.done)
	}
}

type ctxKey struct{}

// WithLoaders returns a context carrying request scoped loaders.
func WithLoaders[T any](ctx context.Context, loaders T) context.Context {
	return context.WithValue(ctx, ctxKey{}, loaders)
}

// For returns the loaders stored by WithLoaders.
func For[T any](ctx context.Context) T {
	v, _ := ctx.Value(ctxKey{}).(T)
	return v
}
