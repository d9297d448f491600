package anansi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Storage is a concrete backend that a Store dispatches actions to.
type Storage interface {
	GetRecords(ctx context.Context, s *Schema, c *Context) ([]map[string]any, error)
	GetCount(ctx context.Context, s *Schema, c *Context) (int, error)
	SaveRecord(ctx context.Context, m *Model, c *Context) (map[string]any, error)
	SaveCollection(ctx context.Context, coll *Collection, c *Context) ([]map[string]any, error)
	DeleteRecord(ctx context.Context, m *Model, c *Context) (int, error)
	DeleteCollection(ctx context.Context, coll *Collection, c *Context) (int, error)
}

// ValueMaker is implemented by storages that convert runtime values into
// storage native literals.
type ValueMaker interface {
	MakeStoreValue(ctx context.Context, value any, c *Context) (any, error)
}

// Store routes actions through a middleware pipeline to a storage.
type Store struct {
	name      string
	namespace string
	storage   Storage
	pipeline  *Pipeline
	logger    *slog.Logger
}

// StoreOption configures NewStore.
type StoreOption func(*Store)

// WithStorage sets the storage backend.
func WithStorage(s Storage) StoreOption {
	return func(st *Store) { st.storage = s }
}

// WithPipeline sets the middleware pipeline run ahead of the storage.
func WithPipeline(p *Pipeline) StoreOption {
	return func(st *Store) { st.pipeline = p }
}

// WithMiddleware appends middleware to the store pipeline.
func WithMiddleware(ms ...Middleware) StoreOption {
	return func(st *Store) { st.pipeline.Add(ms...) }
}

// WithNamespace sets the default namespace of the store.
func WithNamespace(ns string) StoreOption {
	return func(st *Store) { st.namespace = ns }
}

// WithName sets the store name.
func WithName(name string) StoreOption {
	return func(st *Store) { st.name = name }
}

// WithLogger sets the logger used for dispatch tracing.
func WithLogger(l *slog.Logger) StoreOption {
	return func(st *Store) { st.logger = l }
}

// NewStore returns a new store.
func NewStore(opts ...StoreOption) *Store {
	st := &Store{pipeline: NewPipeline(), logger: slog.Default()}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Namespace returns the default namespace of the store.
func (s *Store) Namespace() string { return s.namespace }

// Storage returns the storage backend.
func (s *Store) Storage() Storage { return s.storage }

// Pipeline returns the middleware pipeline.
func (s *Store) Pipeline() *Pipeline { return s.pipeline }

// ForNamespace returns a copy of the store using namespace ns. The copy
// shares the storage and pipeline.
func (s *Store) ForNamespace(ns string) *Store {
	cp := *s
	cp.namespace = ns
	return &cp
}

// Dispatch runs a through the pipeline and the storage. An action nobody
// handles is returned unchanged.
func (s *Store) Dispatch(ctx context.Context, a Action) (any, error) {
	if c := a.Options(); c != nil && c.Store == nil {
		c.Store = s
	}
	s.logger.DebugContext(ctx, "anansi: dispatch",
		slog.String("action", a.Kind().String()),
		slog.String("schema", a.Target().String()),
		slog.String("store", s.name),
	)
	next := Handler(identity)
	if s.storage != nil {
		next = StorageMiddleware(s.storage).Wrap(next)
	}
	return s.pipeline.Wrap(next)(ctx, a)
}

func identity(_ context.Context, a Action) (any, error) { return a, nil }

// GetRecords fetches the rows of s matching c.
func (s *Store) GetRecords(ctx context.Context, schema *Schema, c *Context) ([]map[string]any, error) {
	return dispatchAs[[]map[string]any](ctx, s, &GetRecordsAction{Schema: schema, Context: c})
}

// GetCount counts the rows of s matching c.
func (s *Store) GetCount(ctx context.Context, schema *Schema, c *Context) (int, error) {
	return dispatchAs[int](ctx, s, &GetCountAction{Schema: schema, Context: c})
}

// SaveRecord creates or updates m and returns the stored row.
func (s *Store) SaveRecord(ctx context.Context, m *Model, c *Context) (map[string]any, error) {
	return dispatchAs[map[string]any](ctx, s, &SaveRecordAction{Record: m, Context: c})
}

// SaveCollection saves every record of coll.
func (s *Store) SaveCollection(ctx context.Context, coll *Collection, c *Context) ([]map[string]any, error) {
	return dispatchAs[[]map[string]any](ctx, s, &SaveCollectionAction{Collection: coll, Context: c})
}

// DeleteRecord deletes m and returns the number of deleted rows.
func (s *Store) DeleteRecord(ctx context.Context, m *Model, c *Context) (int, error) {
	return dispatchAs[int](ctx, s, &DeleteRecordAction{Record: m, Context: c})
}

// DeleteCollection deletes the records of coll.
func (s *Store) DeleteCollection(ctx context.Context, coll *Collection, c *Context) (int, error) {
	return dispatchAs[int](ctx, s, &DeleteCollectionAction{Collection: coll, Context: c})
}

// MakeStoreValue converts v into a storage native value. Without a
// handler the value is returned unchanged.
func (s *Store) MakeStoreValue(ctx context.Context, v any, c *Context) (any, error) {
	a := &MakeStoreValueAction{Value: v, Context: c}
	out, err := s.Dispatch(ctx, a)
	if err != nil {
		return nil, err
	}
	if out == Action(a) {
		return v, nil
	}
	return out, nil
}

func dispatchAs[T any](ctx context.Context, s *Store, a Action) (T, error) {
	var zero T
	out, err := s.Dispatch(ctx, a)
	if err != nil {
		return zero, err
	}
	if v, ok := out.(T); ok {
		return v, nil
	}
	if out == nil {
		return zero, nil
	}
	if _, ok := out.(Action); ok {
		return zero, fmt.Errorf("%w: %s", ErrNotHandled, a.Kind())
	}
	return zero, fmt.Errorf("anansi: %s returned %T", a.Kind(), out)
}

type (
	storeBaseKey struct{}
	storeNodeKey struct{}
)

// storeBase is the base store of one request, set by SetCurrentStore
// when nothing is pushed.
type storeBase struct {
	mu sync.RWMutex
	st *Store
}

// storeNode is one pushed store. Nodes are immutable and linked to the
// node that was current when they were pushed, so every context derived
// by PushStore sees its own stack.
type storeNode struct {
	store  *Store
	parent *storeNode
}

func nodeFrom(ctx context.Context) *storeNode {
	n, _ := ctx.Value(storeNodeKey{}).(*storeNode)
	return n
}

// WithStoreStack returns a context carrying a new, empty store stack.
// Each request should get its own stack.
func WithStoreStack(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, storeBaseKey{}, &storeBase{})
	return context.WithValue(ctx, storeNodeKey{}, (*storeNode)(nil))
}

// PushStore returns a context in which st is the current store. The
// stack of ctx itself is unchanged.
func PushStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, storeNodeKey{}, &storeNode{store: st, parent: nodeFrom(ctx)})
}

// PopStore returns a context without the innermost pushed store of ctx,
// and that store. It returns ctx and nil when nothing is pushed.
func PopStore(ctx context.Context) (context.Context, *Store) {
	n := nodeFrom(ctx)
	if n == nil {
		return ctx, nil
	}
	return context.WithValue(ctx, storeNodeKey{}, n.parent), n.store
}

// UseStore runs fn with st as the current store. Only the context passed
// to fn sees st, so concurrent calls sharing ctx do not interleave.
func UseStore(ctx context.Context, st *Store, fn func(ctx context.Context) error) error {
	return fn(PushStore(ctx, st))
}

// SetCurrentStore replaces the innermost pushed store in the returned
// context, or sets the base store of the request when nothing is pushed.
// A nil store clears it.
func SetCurrentStore(ctx context.Context, st *Store) context.Context {
	if n := nodeFrom(ctx); n != nil {
		return context.WithValue(ctx, storeNodeKey{}, &storeNode{store: st, parent: n.parent})
	}
	if base, ok := ctx.Value(storeBaseKey{}).(*storeBase); ok {
		base.mu.Lock()
		base.st = st
		base.mu.Unlock()
		return ctx
	}
	return context.WithValue(ctx, storeBaseKey{}, &storeBase{st: st})
}

// CurrentStore returns the innermost active store.
func CurrentStore(ctx context.Context) (*Store, error) {
	for n := nodeFrom(ctx); n != nil; n = n.parent {
		if n.store != nil {
			return n.store, nil
		}
	}
	if base, ok := ctx.Value(storeBaseKey{}).(*storeBase); ok {
		base.mu.RLock()
		defer base.mu.RUnlock()
		if base.st != nil {
			return base.st, nil
		}
	}
	return nil, ErrStoreNotFound
}
