package anansi

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/inflect"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/anansi/schema/edge"
	"github.com/syssam/anansi/schema/field"
)

// Change is a pending modification of a field.
type Change struct {
	Old any
	New any
}

// Option configures a Model or a Collection.
type Option func(*options)

type options struct {
	values  map[string]any
	state   map[string]any
	records []any
	static  bool
	schema  *Schema
	ctx     *Context
	ctxOpts []ContextOption
	store   *Store
}

// Values sets uncommitted values. Each value is recorded as a change.
func Values(v map[string]any) Option {
	return func(o *options) { o.values = v }
}

// State sets committed values, as loaded from a store.
func State(v map[string]any) Option {
	return func(o *options) { o.state = v }
}

// Records makes a collection static over the given records.
func Records(records ...any) Option {
	return func(o *options) {
		o.records = records
		o.static = true
	}
}

// ForSchema sets the schema of a collection.
func ForSchema(s *Schema) Option {
	return func(o *options) { o.schema = s }
}

// WithContext sets the base context.
func WithContext(c *Context) Option {
	return func(o *options) { o.ctx = c }
}

// With merges context options into the base context.
func With(opts ...ContextOption) Option {
	return func(o *options) { o.ctxOpts = append(o.ctxOpts, opts...) }
}

// WithStore overrides the store resolution of a model or collection.
func WithStore(st *Store) Option {
	return func(o *options) { o.store = st }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) context() *Context {
	var c *Context
	switch {
	case o.ctx != nil && len(o.ctxOpts) == 0:
		c = o.ctx.Copy()
	default:
		c = MakeContext(append([]ContextOption{Base(o.ctx)}, o.ctxOpts...)...)
	}
	if o.store != nil {
		c.Store = o.store
	}
	return c
}

// Model is a record of a schema. It keeps the committed state and the net
// changes against it. A Model is safe for concurrent reads; concurrent
// writes to the same field are last-writer-wins.
type Model struct {
	schema  *Schema
	ctx     *Context
	mu      sync.RWMutex
	state   map[string]any
	changes map[string]Change
	related map[string]any
	loads   singleflight.Group
}

// New returns a new record of s.
func New(s *Schema, opts ...Option) *Model {
	o := newOptions(opts)
	m := &Model{
		schema:  s,
		ctx:     o.context(),
		state:   make(map[string]any),
		changes: make(map[string]Change),
		related: make(map[string]any),
	}
	for name, v := range normalizeRow(s, o.state) {
		if !m.relate(name, v) {
			m.state[name] = v
		}
	}
	for name, v := range normalizeRow(s, o.values) {
		if !m.relate(name, v) {
			m.setField(name, v)
		}
	}
	return m
}

// normalizeRow keys a storage row by field name. Unknown keys are kept.
func normalizeRow(s *Schema, row map[string]any) map[string]any {
	if len(row) == 0 {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		if _, ok := s.Field(k); ok {
			out[k] = v
			continue
		}
		if f, ok := s.FieldByCode(k); ok {
			out[f.Name()] = v
			continue
		}
		out[k] = v
	}
	return out
}

// relate stores v under a reference or collector name, converting plain
// maps and slices into records and collections. It reports whether name
// is a relation.
func (m *Model) relate(name string, v any) bool {
	if ref, ok := m.schema.Reference(name); ok {
		if row, ok := v.(map[string]any); ok {
			if target, err := m.schema.resolveModel(ref.Model()); err == nil {
				v = New(target, State(row), WithContext(m.ctx))
			}
		}
		m.related[name] = v
		return true
	}
	if coll, ok := m.schema.Collector(name); ok {
		if _, isColl := v.(*Collection); !isColl && v != nil {
			if records, ok := toSlice(v); ok {
				target, _ := m.schema.resolveModel(coll.Model())
				v = NewCollection(ForSchema(target), Records(wrapRecords(target, records, m.ctx)...), WithContext(m.ctx))
			}
		}
		m.related[name] = v
		return true
	}
	return false
}

func wrapRecords(s *Schema, records []any, c *Context) []any {
	if s == nil {
		return records
	}
	out := make([]any, len(records))
	for i, r := range records {
		if row, ok := r.(map[string]any); ok {
			out[i] = New(s, State(row), WithContext(c))
			continue
		}
		out[i] = r
	}
	return out
}

// Schema returns the schema of the record.
func (m *Model) Schema() *Schema { return m.schema }

// Context returns the context of the record.
func (m *Model) Context() *Context { return m.ctx }

// Get returns the value at a dotted path.
func (m *Model) Get(ctx context.Context, path string) (any, error) {
	head, rest, nested := strings.Cut(path, ".")
	v, err := m.getValue(ctx, head)
	if err != nil || !nested {
		return v, err
	}
	return getPath(ctx, v, rest)
}

// Gather resolves several paths concurrently and returns the values in
// path order.
func (m *Model) Gather(ctx context.Context, paths ...string) ([]any, error) {
	out := make([]any, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			v, err := m.Get(gctx, p)
			out[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Model) getValue(ctx context.Context, name string) (any, error) {
	if f, ok := m.schema.Field(name); ok {
		if fn := f.GetterFunc(); fn != nil {
			return fn(ctx, m)
		}
		v, _ := m.current(name)
		return v, nil
	}
	if ref, ok := m.schema.Reference(name); ok {
		if fn := ref.GetterFunc(); fn != nil {
			return fn(ctx, m)
		}
		return m.loadReference(ctx, ref)
	}
	if coll, ok := m.schema.Collector(name); ok {
		if fn := coll.GetterFunc(); fn != nil {
			return fn(ctx, m)
		}
		return m.loadCollector(ctx, coll)
	}
	return nil, NewPathError(PathField, m.schema.Name(), name)
}

// current returns the pending value of a field, falling back to the
// committed state.
func (m *Model) current(name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.changes[name]; ok {
		return c.New, true
	}
	v, ok := m.state[name]
	return v, ok
}

// Set assigns the value at a dotted path.
func (m *Model) Set(ctx context.Context, path string, value any) error {
	head, rest, nested := strings.Cut(path, ".")
	if nested {
		v, err := m.getValue(ctx, head)
		if err != nil {
			return err
		}
		return setPath(ctx, v, rest, value)
	}
	if f, ok := m.schema.Field(head); ok {
		if fn := f.SetterFunc(); fn != nil {
			return fn(ctx, m, value)
		}
		if f.HasFlag(field.ReadOnly) || (f.IsVirtual() && f.GetterFunc() != nil) {
			return NewReadOnlyError(m.schema.Name(), head)
		}
		m.setField(head, value)
		return nil
	}
	if ref, ok := m.schema.Reference(head); ok {
		if fn := ref.SetterFunc(); fn != nil {
			return fn(ctx, m, value)
		}
		return m.setReference(ctx, ref, value)
	}
	if coll, ok := m.schema.Collector(head); ok {
		if fn := coll.SetterFunc(); fn != nil {
			return fn(ctx, m, value)
		}
		m.mu.Lock()
		m.relate(head, value)
		m.mu.Unlock()
		return nil
	}
	return NewPathError(PathField, m.schema.Name(), head)
}

// setField records value as a change of name, keeping only the net diff
// against the committed state.
func (m *Model) setField(name string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.state[name]
	if isEqual(old, value) {
		delete(m.changes, name)
	} else {
		m.changes[name] = Change{Old: old, New: value}
	}
	for _, ref := range m.schema.References() {
		if ref.SourceField() == name {
			delete(m.related, ref.Name())
		}
	}
}

func (m *Model) setReference(ctx context.Context, ref *edge.Ref, value any) error {
	m.mu.Lock()
	m.relate(ref.Name(), value)
	record, _ := m.related[ref.Name()].(*Model)
	m.mu.Unlock()
	src := ref.SourceField()
	if src == "" {
		return nil
	}
	if value == nil {
		m.setField(src, nil)
		return nil
	}
	if record == nil {
		return nil
	}
	_, tf, err := m.referenceTarget(ref)
	if err != nil || tf == nil {
		return err
	}
	key, err := record.Get(ctx, tf.Name())
	if err != nil {
		return err
	}
	m.setField(src, key)
	// setField drops the memoized reference, so restore it.
	m.mu.Lock()
	m.related[ref.Name()] = record
	m.mu.Unlock()
	return nil
}

// Update sets several values, in key order.
func (m *Model) Update(ctx context.Context, values map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if err := m.Set(ctx, k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// LocalChanges returns a copy of the pending changes keyed by field name.
func (m *Model) LocalChanges() map[string]Change {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.changes)
}

// IsChanged reports whether the record has pending changes.
func (m *Model) IsChanged() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.changes) > 0
}

// LoadedState returns a copy of the committed field values.
func (m *Model) LoadedState() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.state)
}

// FieldValues returns the current value of every stored field, pending
// changes included. Fields without a value are omitted.
func (m *Model) FieldValues() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.state)+len(m.changes))
	for _, f := range m.schema.Fields() {
		if f.IsVirtual() {
			continue
		}
		if c, ok := m.changes[f.Name()]; ok {
			out[f.Name()] = c.New
		} else if v, ok := m.state[f.Name()]; ok {
			out[f.Name()] = v
		}
	}
	return out
}

// MarkLoaded commits the pending changes.
func (m *Model) MarkLoaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.changes {
		m.state[name] = c.New
	}
	clear(m.changes)
}

// Reset discards the pending changes.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.changes)
}

// IsNew reports whether the record has no committed key value.
func (m *Model) IsNew() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.schema.KeyFields()
	if len(keys) == 0 {
		return len(m.state) == 0
	}
	for _, f := range keys {
		if m.state[f.Name()] != nil {
			return false
		}
	}
	return true
}

// Key returns the current values of the key fields.
func (m *Model) Key() []any {
	keys := m.schema.KeyFields()
	out := make([]any, len(keys))
	for i, f := range keys {
		out[i], _ = m.current(f.Name())
	}
	return out
}

// LoadedKey returns the committed values of the key fields.
func (m *Model) LoadedKey() []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.schema.KeyFields()
	out := make([]any, len(keys))
	for i, f := range keys {
		out[i] = m.state[f.Name()]
	}
	return out
}

// KeyQuery returns the predicate matching the committed key of the record.
func (m *Model) KeyQuery() (Predicate, error) {
	return m.schema.MakeKeyQuery(m.LoadedKey()...)
}

// Store resolves the store of the record: the context override, then the
// named schema store, then the current store of ctx.
func (m *Model) Store(ctx context.Context) (*Store, error) {
	return resolveStore(ctx, m.schema, m.ctx)
}

func resolveStore(ctx context.Context, s *Schema, c *Context) (*Store, error) {
	if c != nil && c.Store != nil {
		return c.Store, nil
	}
	if s != nil && s.StoreName() != "" {
		if st, ok := s.registry().Store(s.StoreName()); ok {
			return st, nil
		}
	}
	return CurrentStore(ctx)
}

// Validate checks every stored field value.
func (m *Model) Validate() error {
	isNew := m.IsNew()
	values := m.FieldValues()
	for _, f := range m.schema.Fields() {
		if f.IsVirtual() {
			continue
		}
		v := values[f.Name()]
		if v == nil && isNew && f.HasFlag(field.AutoAssign) {
			continue
		}
		if err := f.Validate(v); err != nil {
			return NewValidationError(f.Name(), err)
		}
	}
	return nil
}

// autoAssign fills generated and default values of a new record.
func (m *Model) autoAssign() {
	values := m.FieldValues()
	for _, f := range m.schema.Fields() {
		if f.IsVirtual() || values[f.Name()] != nil {
			continue
		}
		if v, ok := f.Generate(); ok {
			m.setField(f.Name(), v)
		} else if v := f.DefaultValue(); v != nil {
			m.setField(f.Name(), v)
		}
	}
}

// Save creates or updates the record. It returns false when there was
// nothing to save.
func (m *Model) Save(ctx context.Context) (bool, error) {
	if m.schema.IsView() {
		return false, NewReadOnlyError(m.schema.Name(), "")
	}
	if !m.IsNew() && !m.IsChanged() {
		return false, nil
	}
	if err := m.Prepare(); err != nil {
		return false, err
	}
	st, err := m.Store(ctx)
	if err != nil {
		return false, err
	}
	row, err := st.SaveRecord(ctx, m, m.ctx.Copy())
	if err != nil {
		return false, err
	}
	m.Commit(row)
	return true, nil
}

// Prepare fills the generated and default values of a new record and
// validates it.
func (m *Model) Prepare() error {
	if m.IsNew() {
		m.autoAssign()
	}
	return m.Validate()
}

// Commit marks the record as loaded and merges the fields of a stored
// row into its state.
func (m *Model) Commit(row map[string]any) {
	m.MarkLoaded()
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, v := range normalizeRow(m.schema, row) {
		if _, ok := m.schema.Field(name); ok {
			m.state[name] = v
		}
	}
}

// Delete removes the record from its store and returns the number of
// deleted rows.
func (m *Model) Delete(ctx context.Context) (int, error) {
	if m.schema.IsView() {
		return 0, NewReadOnlyError(m.schema.Name(), "")
	}
	st, err := m.Store(ctx)
	if err != nil {
		return 0, err
	}
	return st.DeleteRecord(ctx, m, m.ctx.Copy())
}

// State serializes the record: every public field, plus the references
// and collectors named by the include tree of its context.
func (m *Model) State(ctx context.Context) (map[string]any, error) {
	return m.stateWith(ctx, m.ctx.Include, m.ctx.Fields)
}

func (m *Model) stateWith(ctx context.Context, include IncludeTree, fields []string) (map[string]any, error) {
	var names []string
	if len(fields) > 0 {
		for _, f := range fields {
			head, _, _ := strings.Cut(f, ".")
			if !slices.Contains(names, head) {
				names = append(names, head)
			}
		}
	} else {
		for _, f := range m.schema.Fields() {
			if !f.HasFlag(field.Private) {
				names = append(names, f.Name())
			}
		}
	}
	for _, name := range include.Names() {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		v, err := m.getValue(ctx, name)
		if err != nil {
			return nil, err
		}
		if v, err = stateOf(ctx, v, include.Sub(name)); err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func stateOf(ctx context.Context, v any, include IncludeTree) (any, error) {
	switch v := v.(type) {
	case *Model:
		if v == nil {
			return nil, nil
		}
		return v.stateWith(ctx, include, nil)
	case *Collection:
		if v == nil {
			return nil, nil
		}
		return v.State(ctx)
	}
	return v, nil
}

// referenceTarget resolves the target schema of ref and the target field
// matched by its source value.
func (m *Model) referenceTarget(ref *edge.Ref) (*Schema, *field.Field, error) {
	target, err := m.schema.resolveModel(ref.Model())
	if err != nil {
		return nil, nil, err
	}
	if src, ok := m.schema.Field(ref.SourceField()); ok && src.Target() != "" {
		ts, tf, err := m.schema.ResolveRefersTo(src)
		if err != nil {
			return nil, nil, err
		}
		if ts == target && tf != nil {
			return target, tf, nil
		}
	}
	if keys := target.KeyFields(); len(keys) == 1 {
		return target, keys[0], nil
	}
	if f, ok := target.Field("id"); ok {
		return target, f, nil
	}
	return target, nil, nil
}

func (m *Model) loadReference(ctx context.Context, ref *edge.Ref) (any, error) {
	name := ref.Name()
	if v, ok := m.relatedValue(name); ok {
		return v, nil
	}
	v, err, _ := m.loads.Do(name, func() (any, error) {
		if v, ok := m.relatedValue(name); ok {
			return v, nil
		}
		if ref.SourceField() == "" {
			return nil, nil
		}
		value, err := m.getValue(ctx, ref.SourceField())
		if err != nil || value == nil {
			return nil, err
		}
		target, tf, err := m.referenceTarget(ref)
		if err != nil {
			return nil, err
		}
		if tf == nil {
			return nil, NewPathError(PathReference, m.schema.Name(), name)
		}
		st, err := m.Store(ctx)
		if err != nil {
			return nil, err
		}
		c := MakeContext(Base(m.relationContext()), Where(Q(tf.Name()).Is(value)), Limit(1))
		rows, err := st.GetRecords(ctx, target, c)
		if err != nil {
			return nil, err
		}
		var record any
		if len(rows) > 0 {
			record = New(target, State(rows[0]), WithContext(m.relationContext()))
		}
		m.mu.Lock()
		m.related[name] = record
		m.mu.Unlock()
		return record, nil
	})
	return v, err
}

func (m *Model) loadCollector(ctx context.Context, coll *edge.Coll) (any, error) {
	name := coll.Name()
	if v, ok := m.relatedValue(name); ok {
		return v, nil
	}
	v, err, _ := m.loads.Do(name, func() (any, error) {
		if v, ok := m.relatedValue(name); ok {
			return v, nil
		}
		c, err := m.collectorCollection(coll)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.related[name] = c
		m.mu.Unlock()
		return c, nil
	})
	return v, err
}

// collectorCollection returns the store-backed collection of coll for the
// record. A record without a key yields an empty static collection.
func (m *Model) collectorCollection(coll *edge.Coll) (*Collection, error) {
	target, err := m.schema.resolveModel(coll.Model())
	if err != nil {
		return nil, err
	}
	base := m.relationContext()
	key := m.Key()
	if len(key) != 1 || key[0] == nil {
		return NewCollection(ForSchema(target), Records(), WithContext(base)), nil
	}
	source := coll.SourceField()
	if source == "" {
		source = inflect.Underscore(m.schema.Name()) + "_id"
	}
	if coll.ThroughModel() == nil {
		return NewCollection(ForSchema(target), WithContext(base), With(Where(Q(source).Is(key[0])))), nil
	}
	through, err := m.schema.resolveModel(coll.ThroughModel())
	if err != nil {
		return nil, err
	}
	tkeys := target.KeyFields()
	if len(tkeys) != 1 {
		return nil, &KeyArityError{Schema: target.Name(), Want: 1, Got: len(tkeys)}
	}
	targetField := coll.TargetField()
	if targetField == "" {
		targetField = inflect.Underscore(target.Name()) + "_id"
	}
	sub := through.Select(Using(base.Store), Where(Q(source).Is(key[0])), Fields(targetField))
	return NewCollection(ForSchema(target), WithContext(base), With(Where(Q(tkeys[0].Name()).IsIn(sub)))), nil
}

// relationContext is the context handed to related records: the store
// override and locale of the record.
func (m *Model) relationContext() *Context {
	return MakeContext(Using(m.ctx.Store), Locale(m.ctx.Locale), Namespace(m.ctx.Namespace))
}

func (m *Model) relatedValue(name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.related[name]
	return v, ok
}

// setRelated memoizes a preloaded relation.
func (m *Model) setRelated(name string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.related[name] = v
}

// getPath continues a dotted lookup into v.
func getPath(ctx context.Context, v any, path string) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *Model:
		if v == nil {
			return nil, nil
		}
		return v.Get(ctx, path)
	case *Collection:
		if v == nil {
			return nil, nil
		}
		return v.Get(ctx, path)
	case field.Record:
		return v.Get(ctx, path)
	case map[string]any:
		head, rest, nested := strings.Cut(path, ".")
		if !nested {
			return v[head], nil
		}
		return getPath(ctx, v[head], rest)
	}
	return nil, NewPathError(PathField, reflect.TypeOf(v).String(), path)
}

// setPath continues a dotted assignment into v.
func setPath(ctx context.Context, v any, path string, value any) error {
	switch v := v.(type) {
	case *Model:
		if v != nil {
			return v.Set(ctx, path, value)
		}
	case *Collection:
		if v != nil {
			return v.Set(ctx, path, value)
		}
	case field.Record:
		return v.Set(ctx, path, value)
	case map[string]any:
		head, rest, nested := strings.Cut(path, ".")
		if !nested {
			v[head] = value
			return nil
		}
		return setPath(ctx, v[head], rest, value)
	}
	return NewPathError(PathField, "<nil>", path)
}

// isEqual reports whether a and b are the same value. Scalars compare by
// value, times by instant, and everything else by identity.
func isEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Slice, reflect.Map:
		return va.Len() == vb.Len() && va.UnsafePointer() == vb.UnsafePointer()
	case reflect.Func, reflect.Chan:
		return false
	}
	if !va.Type().Comparable() {
		return false
	}
	defer func() { _ = recover() }()
	return a == b
}

func toSlice(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []map[string]any:
		out := make([]any, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out, true
	case []*Model:
		out := make([]any, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Select returns a store-backed collection of s.
func (s *Schema) Select(opts ...ContextOption) *Collection {
	return NewCollection(ForSchema(s), With(opts...))
}

// Fetch returns the record of s matching key, or nil when none matches.
// The key is a Predicate, a []any tuple for the key fields, or a value
// compared against every Key and Keyable field.
func (s *Schema) Fetch(ctx context.Context, key any, opts ...ContextOption) (*Model, error) {
	var where Predicate
	switch k := key.(type) {
	case Predicate:
		where = k
	case []any:
		p, err := s.MakeKeyQuery(k...)
		if err != nil {
			return nil, err
		}
		where = p
	default:
		where = s.MakeKeyableQuery(k)
	}
	opts = append(opts, Where(where), Limit(1))
	v, err := s.Select(opts...).First(ctx)
	if err != nil {
		return nil, err
	}
	record, _ := v.(*Model)
	return record, nil
}

// Create builds a record of s from values and saves it.
func (s *Schema) Create(ctx context.Context, values map[string]any, opts ...Option) (*Model, error) {
	if s.IsView() {
		return nil, NewReadOnlyError(s.Name(), "")
	}
	m := New(s, append(opts, Values(values))...)
	if _, err := m.Save(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// MakeRecords turns storage rows into records of s. With returning
// data the rows are returned as plain maps.
func MakeRecords(s *Schema, rows []map[string]any, c *Context) []any {
	out := make([]any, len(rows))
	if c != nil && c.Returning.Has(ReturnData) {
		for i, row := range rows {
			out[i] = row
		}
		return out
	}
	for i, row := range rows {
		out[i] = New(s, State(row), WithContext(c))
	}
	return out
}
