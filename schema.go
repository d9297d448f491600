package anansi

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/anansi/schema/edge"
	"github.com/syssam/anansi/schema/field"
	"github.com/syssam/anansi/schema/index"
)

// Mixin is a reusable set of schema members merged into the local members
// of every schema that lists it.
type Mixin interface {
	Fields() []*field.Field
	Indexes() []*index.Index
	References() []*edge.Ref
	Collectors() []*edge.Coll
}

// Schema is the static description of an entity type. It is built once by
// NewSchema and never changes afterwards.
type Schema struct {
	name         string
	namespace    string
	label        string
	resourceName string
	i18nName     string
	storeName    string
	view         bool
	abstract     bool
	inherits     []*Schema
	reg          *Registry

	localFields     []*field.Field
	localIndexes    []*index.Index
	localReferences []*edge.Ref
	localCollectors []*edge.Coll

	once       sync.Once
	fields     members[*field.Field]
	indexes    members[*index.Index]
	references members[*edge.Ref]
	collectors members[*edge.Coll]
	keyFields  []*field.Field
}

// members is an ordered name index over schema members.
type members[T interface{ Name() string }] struct {
	list   []T
	byName map[string]int
}

func (m *members[T]) put(v T) {
	if m.byName == nil {
		m.byName = make(map[string]int)
	}
	if i, ok := m.byName[v.Name()]; ok {
		m.list[i] = v
		return
	}
	m.byName[v.Name()] = len(m.list)
	m.list = append(m.list, v)
}

func (m *members[T]) get(name string) (T, bool) {
	i, ok := m.byName[name]
	if !ok {
		var zero T
		return zero, false
	}
	return m.list[i], true
}

// SchemaOption configures NewSchema.
type SchemaOption func(*Schema)

// HasFields adds local fields.
func HasFields(fields ...*field.Field) SchemaOption {
	return func(s *Schema) { s.localFields = append(s.localFields, fields...) }
}

// HasIndexes adds local indexes.
func HasIndexes(indexes ...*index.Index) SchemaOption {
	return func(s *Schema) { s.localIndexes = append(s.localIndexes, indexes...) }
}

// HasReferences adds local references.
func HasReferences(refs ...*edge.Ref) SchemaOption {
	return func(s *Schema) { s.localReferences = append(s.localReferences, refs...) }
}

// HasCollectors adds local collectors.
func HasCollectors(colls ...*edge.Coll) SchemaOption {
	return func(s *Schema) { s.localCollectors = append(s.localCollectors, colls...) }
}

// Mixins merges the members of each mixin into the local members.
func Mixins(ms ...Mixin) SchemaOption {
	return func(s *Schema) {
		for _, m := range ms {
			s.localFields = append(s.localFields, m.Fields()...)
			s.localIndexes = append(s.localIndexes, m.Indexes()...)
			s.localReferences = append(s.localReferences, m.References()...)
			s.localCollectors = append(s.localCollectors, m.Collectors()...)
		}
	}
}

// Inherits sets the parent schemas. Later parents and the schema's own
// members override same-named entries of earlier parents.
func Inherits(parents ...*Schema) SchemaOption {
	return func(s *Schema) { s.inherits = append(s.inherits, parents...) }
}

// InNamespace sets the storage namespace of the schema.
func InNamespace(ns string) SchemaOption {
	return func(s *Schema) { s.namespace = ns }
}

// Labeled overrides the generated display label.
func Labeled(label string) SchemaOption {
	return func(s *Schema) { s.label = label }
}

// Resource overrides the generated resource (table) name.
func Resource(name string) SchemaOption {
	return func(s *Schema) { s.resourceName = name }
}

// I18nResource overrides the generated translation table name.
func I18nResource(name string) SchemaOption {
	return func(s *Schema) { s.i18nName = name }
}

// AsView marks the schema as a read only view.
func AsView() SchemaOption {
	return func(s *Schema) { s.view = true }
}

// AsAbstract marks the schema as abstract: it can be inherited but is
// never found in a registry.
func AsAbstract() SchemaOption {
	return func(s *Schema) { s.abstract = true }
}

// StoreName binds the schema to a store registered under name.
func StoreName(name string) SchemaOption {
	return func(s *Schema) { s.storeName = name }
}

// InRegistry registers the schema in reg instead of DefaultRegistry.
func InRegistry(reg *Registry) SchemaOption {
	return func(s *Schema) { s.reg = reg }
}

// NewSchema builds a schema and registers it.
func NewSchema(name string, opts ...SchemaOption) *Schema {
	s := &Schema{name: name}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = DefaultRegistry
	}
	under := inflect.Underscore(name)
	if s.label == "" {
		s.label = field.Humanize(under)
	}
	if s.resourceName == "" {
		s.resourceName = inflect.Pluralize(under)
	}
	if s.i18nName == "" {
		s.i18nName = s.resourceName + "_i18n"
	}
	s.reg.Register(s)
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Namespace returns the declared storage namespace, if any.
func (s *Schema) Namespace() string { return s.namespace }

// Label returns the display label, e.g. "User Group".
func (s *Schema) Label() string { return s.label }

// ResourceName returns the storage resource name, e.g. "user_groups".
func (s *Schema) ResourceName() string { return s.resourceName }

// I18nName returns the translation resource name.
func (s *Schema) I18nName() string { return s.i18nName }

// StoreName returns the name of the store the schema is bound to.
func (s *Schema) StoreName() string { return s.storeName }

// IsView reports whether the schema is read only.
func (s *Schema) IsView() bool { return s.view }

// IsAbstract reports whether the schema is abstract.
func (s *Schema) IsAbstract() bool { return s.abstract }

// Inherited returns the parent schemas.
func (s *Schema) Inherited() []*Schema { return s.inherits }

// Registry returns the registry the schema belongs to.
func (s *Schema) Registry() *Registry { return s.registry() }

func (s *Schema) registry() *Registry {
	if s == nil || s.reg == nil {
		return DefaultRegistry
	}
	return s.reg
}

// LocalFields returns the fields declared on the schema itself.
func (s *Schema) LocalFields() []*field.Field { return s.localFields }

// LocalIndexes returns the indexes declared on the schema itself.
func (s *Schema) LocalIndexes() []*index.Index { return s.localIndexes }

// LocalReferences returns the references declared on the schema itself.
func (s *Schema) LocalReferences() []*edge.Ref { return s.localReferences }

// LocalCollectors returns the collectors declared on the schema itself.
func (s *Schema) LocalCollectors() []*edge.Coll { return s.localCollectors }

func (s *Schema) build() {
	s.once.Do(func() {
		for _, p := range s.inherits {
			p.build()
			for _, f := range p.fields.list {
				s.fields.put(f)
			}
			for _, i := range p.indexes.list {
				s.indexes.put(i)
			}
			for _, r := range p.references.list {
				s.references.put(r)
			}
			for _, c := range p.collectors.list {
				s.collectors.put(c)
			}
		}
		for _, f := range s.localFields {
			s.fields.put(f)
		}
		for _, i := range s.localIndexes {
			s.indexes.put(i)
		}
		for _, r := range s.localReferences {
			s.references.put(r)
		}
		for _, c := range s.localCollectors {
			s.collectors.put(c)
		}
		for _, f := range s.fields.list {
			if f.HasFlag(field.Key) {
				s.keyFields = append(s.keyFields, f)
			}
		}
		if len(s.keyFields) > 0 {
			return
		}
		for _, idx := range s.indexes.list {
			if !idx.HasFlag(field.Key) {
				continue
			}
			// Key values follow field declaration order, whatever the
			// order of the index columns.
			names := idx.FieldNames()
			for _, f := range s.fields.list {
				if slices.Contains(names, f.Name()) {
					s.keyFields = append(s.keyFields, f)
				}
			}
			return
		}
	})
}

// Fields returns the local and inherited fields in declaration order.
func (s *Schema) Fields() []*field.Field {
	s.build()
	return s.fields.list
}

// Indexes returns the local and inherited indexes.
func (s *Schema) Indexes() []*index.Index {
	s.build()
	return s.indexes.list
}

// References returns the local and inherited references.
func (s *Schema) References() []*edge.Ref {
	s.build()
	return s.references.list
}

// Collectors returns the local and inherited collectors.
func (s *Schema) Collectors() []*edge.Coll {
	s.build()
	return s.collectors.list
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (*field.Field, bool) {
	s.build()
	return s.fields.get(name)
}

// Index returns the index with the given name.
func (s *Schema) Index(name string) (*index.Index, bool) {
	s.build()
	return s.indexes.get(name)
}

// Reference returns the reference with the given name.
func (s *Schema) Reference(name string) (*edge.Ref, bool) {
	s.build()
	return s.references.get(name)
}

// Collector returns the collector with the given name.
func (s *Schema) Collector(name string) (*edge.Coll, bool) {
	s.build()
	return s.collectors.get(name)
}

// Get returns the field, index, reference or collector with the given
// name, or nil.
func (s *Schema) Get(name string) any {
	if f, ok := s.Field(name); ok {
		return f
	}
	if r, ok := s.Reference(name); ok {
		return r
	}
	if c, ok := s.Collector(name); ok {
		return c
	}
	if i, ok := s.Index(name); ok {
		return i
	}
	return nil
}

// FieldByCode returns the field stored under code.
func (s *Schema) FieldByCode(code string) (*field.Field, bool) {
	for _, f := range s.Fields() {
		if f.Code() == code {
			return f, true
		}
	}
	return nil, false
}

// KeyFields returns the primary key fields: the fields flagged Key or,
// failing that, the fields of the first index flagged Key.
func (s *Schema) KeyFields() []*field.Field {
	s.build()
	return s.keyFields
}

// TranslatableFields returns the fields flagged Translatable.
func (s *Schema) TranslatableFields() []*field.Field {
	var out []*field.Field
	for _, f := range s.Fields() {
		if f.HasFlag(field.Translatable) {
			out = append(out, f)
		}
	}
	return out
}

// HasTranslations reports whether any field is translatable.
func (s *Schema) HasTranslations() bool {
	for _, f := range s.Fields() {
		if f.HasFlag(field.Translatable) {
			return true
		}
	}
	return false
}

// MakeKeyQuery returns the equality predicate matching the given key
// values against the key fields.
func (s *Schema) MakeKeyQuery(key ...any) (Predicate, error) {
	fields := s.KeyFields()
	if len(key) != len(fields) {
		return nil, &KeyArityError{Schema: s.name, Want: len(fields), Got: len(key)}
	}
	pairs := make([]FieldValue, len(fields))
	for i, f := range fields {
		pairs[i] = FieldValue{Field: f, Value: key[i]}
	}
	return MakeQueryFromFields(pairs...), nil
}

// MakeKeyableQuery returns the OR of equality predicates over every field
// flagged Key or Keyable.
func (s *Schema) MakeKeyableQuery(v any) Predicate {
	var preds []Predicate
	for _, f := range s.Fields() {
		if f.FlagSet().Any(field.Key | field.Keyable) {
			preds = append(preds, Q(f.Name()).Is(v))
		}
	}
	return Or(preds...)
}

// ResolveRefersTo resolves the "<Model>.<field>" target of f.
func (s *Schema) ResolveRefersTo(f *field.Field) (*Schema, *field.Field, error) {
	target := f.Target()
	if target == "" {
		return nil, nil, nil
	}
	model, code, _ := strings.Cut(target, ".")
	ts, err := s.resolveModel(model)
	if err != nil {
		return nil, nil, err
	}
	if code == "" {
		if keys := ts.KeyFields(); len(keys) == 1 {
			return ts, keys[0], nil
		}
		return ts, nil, nil
	}
	if tf, ok := ts.FieldByCode(code); ok {
		return ts, tf, nil
	}
	if tf, ok := ts.Field(code); ok {
		return ts, tf, nil
	}
	return ts, nil, NewPathError(PathField, ts.name, code)
}

// resolveModel resolves a model reference: a registered name or *Schema.
func (s *Schema) resolveModel(model any) (*Schema, error) {
	switch m := model.(type) {
	case *Schema:
		return m, nil
	case string:
		if found, ok := s.FindModel(m); ok {
			return found, nil
		}
		if found, ok := s.registry().Find(m); ok {
			return found, nil
		}
		return nil, NewModelNotFoundError(m)
	}
	return nil, NewModelNotFoundError(fmt.Sprint(model))
}

// FindModel returns the schema named name among s and its registered
// descendants.
func (s *Schema) FindModel(name string) (*Schema, bool) {
	if s.name == name && !s.abstract {
		return s, true
	}
	for _, other := range s.registry().Schemas() {
		if other.name == name && other.InheritsFrom(s) {
			return other, true
		}
	}
	return nil, false
}

// InheritsFrom reports whether parent is an ancestor of s.
func (s *Schema) InheritsFrom(parent *Schema) bool {
	for _, p := range s.inherits {
		if p == parent || p.InheritsFrom(parent) {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (s *Schema) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.name
}

// Registry indexes schemas and named stores.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	order   []*Schema
	stores  map[string]*Store
}

// DefaultRegistry is the registry NewSchema uses unless InRegistry is given.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
		stores:  make(map[string]*Store),
	}
}

// Register adds s, replacing a schema with the same name.
func (r *Registry) Register(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.schemas[s.name]; ok {
		for i, o := range r.order {
			if o == old {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.schemas[s.name] = s
	r.order = append(r.order, s)
}

// Find returns the concrete schema with the given name. Abstract schemas
// are never found.
func (r *Registry) Find(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok || s.abstract {
		return nil, false
	}
	return s, true
}

// Schemas returns all registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Schema(nil), r.order...)
}

// RegisterStore registers a named store.
func (r *Registry) RegisterStore(name string, st *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[name] = st
}

// Store returns the store registered under name.
func (r *Registry) Store(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[name]
	return st, ok
}
