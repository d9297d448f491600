package anansi

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/syssam/anansi/contrib/dataloader"
)

// Reserved collection words.
const (
	WordCount   = "count"
	WordFirst   = "first"
	WordLast    = "last"
	WordRecords = "records"
)

func isReserved(word string) bool {
	switch word {
	case WordCount, WordFirst, WordLast, WordRecords:
		return true
	}
	return false
}

// Collection is a list of records. A static collection holds explicit
// records; a store-backed collection fetches its records from a store
// under its context on every read.
type Collection struct {
	schema  *Schema
	ctx     *Context
	records []any
	static  bool

	mu    sync.Mutex
	count *int
}

// NewCollection returns a new collection.
func NewCollection(opts ...Option) *Collection {
	o := newOptions(opts)
	return &Collection{
		schema:  o.schema,
		ctx:     o.context(),
		records: o.records,
		static:  o.static,
	}
}

// Schema returns the schema of the collection, or nil.
func (c *Collection) Schema() *Schema { return c.schema }

// Context returns the context of the collection.
func (c *Collection) Context() *Context { return c.ctx }

// IsStatic reports whether the collection holds explicit records.
func (c *Collection) IsStatic() bool { return c.static }

// IsNull reports whether the collection has neither records nor a schema.
func (c *Collection) IsNull() bool { return !c.static && c.schema == nil }

// Store resolves the store of the collection.
func (c *Collection) Store(ctx context.Context) (*Store, error) {
	return resolveStore(ctx, c.schema, c.ctx)
}

// Refine returns a new collection whose context is the collection context
// merged with opts. The receiver is not modified.
func (c *Collection) Refine(opts ...ContextOption) *Collection {
	return &Collection{
		schema:  c.schema,
		ctx:     MakeContext(append([]ContextOption{Base(c.ctx)}, opts...)...),
		records: c.records,
		static:  c.static,
	}
}

// Records returns the records of the collection. A store-backed
// collection fetches them and preloads the included relations.
func (c *Collection) Records(ctx context.Context) ([]any, error) {
	if c.static {
		return slices.Clone(c.records), nil
	}
	rows, cc, err := c.fetchRows(ctx, c.ctx)
	if err != nil {
		return nil, err
	}
	records := MakeRecords(c.schema, rows, cc)
	if err := c.preload(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Collection) fetchRows(ctx context.Context, cc *Context) ([]map[string]any, *Context, error) {
	st, err := resolveStore(ctx, c.schema, cc)
	if err != nil {
		return nil, nil, err
	}
	if c.schema == nil {
		return nil, nil, ErrCollectionIsNull
	}
	cc = cc.Copy()
	rows, err := st.GetRecords(ctx, c.schema, cc)
	if err != nil {
		return nil, nil, err
	}
	return rows, cc, nil
}

// Count returns the number of records. The result is cached.
func (c *Collection) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count != nil {
		return *c.count, nil
	}
	var n int
	if c.static {
		n = len(c.records)
	} else {
		st, err := c.Store(ctx)
		if err != nil {
			return 0, err
		}
		if c.schema == nil {
			return 0, ErrCollectionIsNull
		}
		if n, err = st.GetCount(ctx, c.schema, c.ctx.Copy()); err != nil {
			return 0, err
		}
	}
	c.count = &n
	return n, nil
}

// First returns the first record, or nil when the collection is empty.
func (c *Collection) First(ctx context.Context) (any, error) {
	if c.static {
		if len(c.records) == 0 {
			return nil, nil
		}
		return c.records[0], nil
	}
	records, err := c.Refine(Limit(1)).Records(ctx)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Last returns the last record, or nil when the collection is empty. A
// store-backed collection without a window reverses its order, or the
// key order, to fetch a single row. A windowed one fetches the last row
// of its window.
func (c *Collection) Last(ctx context.Context) (any, error) {
	if c.static {
		if len(c.records) == 0 {
			return nil, nil
		}
		return c.records[len(c.records)-1], nil
	}
	if c.ctx.Start == 0 && c.ctx.Limit == 0 {
		if reversed := c.reverseOrder(); len(reversed) > 0 {
			records, err := c.Refine(OrderByTerms(reversed...), Limit(1)).Records(ctx)
			if err != nil || len(records) == 0 {
				return nil, err
			}
			return records[0], nil
		}
	}
	if c.ctx.Limit > 0 && c.schema != nil {
		records, err := c.Refine(Start(c.ctx.Start+c.ctx.Limit-1), Limit(1)).Records(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records[0], nil
		}
	}
	// The window is shorter than its limit.
	records, err := c.Records(ctx)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[len(records)-1], nil
}

func (c *Collection) reverseOrder() []Order {
	order := c.ctx.OrderBy
	if len(order) == 0 && c.schema != nil {
		for _, f := range c.schema.KeyFields() {
			order = append(order, Order{Field: f.Name(), Direction: Asc})
		}
	}
	out := make([]Order, len(order))
	for i, o := range order {
		out[i] = Order{Field: o.Field, Direction: Asc}
		if o.Direction == Asc {
			out[i].Direction = Desc
		}
	}
	return out
}

// At returns the record at index i.
func (c *Collection) At(ctx context.Context, i int) (any, error) {
	if c.static {
		if i < 0 || i >= len(c.records) {
			return nil, &IndexError{Index: i, Len: len(c.records)}
		}
		return c.records[i], nil
	}
	if i < 0 || c.schema == nil {
		return nil, &IndexError{Index: i}
	}
	if c.ctx.Limit > 0 && i >= c.ctx.Limit {
		return nil, &IndexError{Index: i, Len: c.ctx.Limit}
	}
	records, err := c.Refine(Start(c.ctx.Start+i), Limit(1)).Records(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &IndexError{Index: i, Len: i}
	}
	return records[0], nil
}

// Get returns a reserved value (count, first, last, records) or maps
// path across the records. Dotted paths continue into the selected value.
func (c *Collection) Get(ctx context.Context, path string) (any, error) {
	head, rest, nested := strings.Cut(path, ".")
	var (
		v   any
		err error
	)
	switch head {
	case WordCount:
		v, err = c.Count(ctx)
	case WordFirst:
		v, err = c.First(ctx)
	case WordLast:
		v, err = c.Last(ctx)
	case WordRecords:
		v, err = c.Records(ctx)
	default:
		records, err := c.Records(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(records))
		for i, r := range records {
			if out[i], err = getPath(ctx, r, path); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err != nil || !nested {
		return v, err
	}
	if records, ok := v.([]any); ok {
		return NewCollection(ForSchema(c.schema), Records(records...)).Get(ctx, rest)
	}
	return getPath(ctx, v, rest)
}

// Set assigns path on every record. A slice value is assigned element by
// element. Reserved words are read only.
func (c *Collection) Set(ctx context.Context, path string, value any) error {
	head, _, _ := strings.Cut(path, ".")
	if isReserved(head) {
		return NewReadOnlyError("collection", head)
	}
	records, err := c.Records(ctx)
	if err != nil {
		return err
	}
	values, elementwise := toSlice(value)
	for i, r := range records {
		v := value
		if elementwise {
			if i >= len(values) {
				break
			}
			v = values[i]
		}
		if err := setPath(ctx, r, path, v); err != nil {
			return err
		}
	}
	return nil
}

// Gather returns the values of keys for every record, in order and with
// duplicates. Several keys yield one []any tuple per record. A
// store-backed collection only fetches the named fields.
func (c *Collection) Gather(ctx context.Context, keys ...string) ([]any, error) {
	if c.IsNull() {
		return nil, ErrCollectionIsNull
	}
	var records []any
	if c.static {
		records = c.records
	} else {
		rows, _, err := c.fetchRows(ctx, c.Refine(Fields(keys...)).ctx)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			records = append(records, normalizeRow(c.schema, row))
		}
	}
	out := make([]any, 0, len(records))
	for _, r := range records {
		if len(keys) == 1 {
			v, err := getPath(ctx, r, keys[0])
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			continue
		}
		tuple := make([]any, len(keys))
		for i, k := range keys {
			v, err := getPath(ctx, r, k)
			if err != nil {
				return nil, err
			}
			tuple[i] = v
		}
		out = append(out, tuple)
	}
	return out, nil
}

// Distinct is like Gather but drops duplicates, keeping first-seen order.
func (c *Collection) Distinct(ctx context.Context, keys ...string) ([]any, error) {
	values, err := c.Gather(ctx, keys...)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		k := distinctKey(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

func distinctKey(v any) string {
	if tuple, ok := v.([]any); ok {
		parts := make([]string, len(tuple))
		for i, t := range tuple {
			parts[i] = distinctKey(t)
		}
		return strings.Join(parts, "\x00")
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// Update sets values on every record and saves each one.
func (c *Collection) Update(ctx context.Context, values map[string]any) error {
	if c.IsNull() {
		return ErrCollectionIsNull
	}
	records, err := c.Records(ctx)
	if err != nil {
		return err
	}
	keys := slices.Sorted(maps.Keys(values))
	for _, r := range records {
		switch r := r.(type) {
		case *Model:
			if err := r.Update(ctx, values); err != nil {
				return err
			}
			if _, err := r.Save(ctx); err != nil {
				return err
			}
		case map[string]any:
			for _, k := range keys {
				r[k] = values[k]
			}
		}
	}
	return nil
}

// Save saves every record through the store.
func (c *Collection) Save(ctx context.Context) ([]map[string]any, error) {
	if c.schema != nil && c.schema.IsView() {
		return nil, NewReadOnlyError(c.schema.Name(), "")
	}
	st, err := c.Store(ctx)
	if err != nil {
		return nil, err
	}
	return st.SaveCollection(ctx, c, c.ctx.Copy())
}

// Delete deletes the records through the store and returns the number of
// deleted rows.
func (c *Collection) Delete(ctx context.Context) (int, error) {
	if c.schema != nil && c.schema.IsView() {
		return 0, NewReadOnlyError(c.schema.Name(), "")
	}
	st, err := c.Store(ctx)
	if err != nil {
		return 0, err
	}
	return st.DeleteCollection(ctx, c, c.ctx.Copy())
}

// State serializes the collection. The reserved words named by the
// include tree, together with count, first and last from returning,
// select a map of those values. Otherwise, or when records is the only
// word, the result is the list of record states.
func (c *Collection) State(ctx context.Context) (any, error) {
	var words []string
	for _, w := range []string{WordCount, WordFirst, WordLast, WordRecords} {
		if c.ctx.Include.Has(w) {
			words = append(words, w)
		}
	}
	for _, w := range []struct {
		word string
		rt   ReturnType
	}{{WordCount, ReturnCount}, {WordFirst, ReturnFirst}, {WordLast, ReturnLast}} {
		if c.ctx.Returning.Has(w.rt) && !slices.Contains(words, w.word) {
			words = append(words, w.word)
		}
	}
	if len(words) == 0 || (len(words) == 1 && words[0] == WordRecords) {
		return c.recordStates(ctx)
	}
	out := make(map[string]any, len(words))
	for _, w := range words {
		var (
			v   any
			err error
		)
		switch w {
		case WordCount:
			v, err = c.Count(ctx)
		case WordFirst:
			if v, err = c.First(ctx); err == nil {
				v, err = stateOf(ctx, v, c.recordInclude())
			}
		case WordLast:
			if v, err = c.Last(ctx); err == nil {
				v, err = stateOf(ctx, v, c.recordInclude())
			}
		case WordRecords:
			v, err = c.recordStates(ctx)
		}
		if err != nil {
			return nil, err
		}
		out[w] = v
	}
	return out, nil
}

// recordInclude is the include tree without the reserved words.
func (c *Collection) recordInclude() IncludeTree {
	if len(c.ctx.Include) == 0 {
		return nil
	}
	out := make(IncludeTree, len(c.ctx.Include))
	for name, sub := range c.ctx.Include {
		if !isReserved(name) {
			out[name] = sub
		}
	}
	if sub, ok := c.ctx.Include[WordRecords]; ok {
		mergeInclude(out, sub)
	}
	return out
}

func (c *Collection) recordStates(ctx context.Context) ([]any, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	include := c.recordInclude()
	out := make([]any, len(records))
	for i, r := range records {
		if out[i], err = stateOf(ctx, r, include); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// preload batch-fetches the included relations of records: one IsIn
// query per reference, and one per collector keyed by its source field.
func (c *Collection) preload(ctx context.Context, records []any) error {
	if c.schema == nil || len(records) == 0 {
		return nil
	}
	models := make([]*Model, 0, len(records))
	for _, r := range records {
		if m, ok := r.(*Model); ok {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return nil
	}
	for _, name := range c.recordInclude().Names() {
		if ref, ok := c.schema.Reference(name); ok && !ref.IsVirtual() && ref.SourceField() != "" {
			if err := c.preloadReference(ctx, models, ref.Name()); err != nil {
				return err
			}
			continue
		}
		if coll, ok := c.schema.Collector(name); ok && !coll.IsVirtual() && coll.ThroughModel() == nil {
			if err := c.preloadCollector(ctx, models, coll.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Collection) preloadReference(ctx context.Context, models []*Model, name string) error {
	ref, _ := c.schema.Reference(name)
	target, tf, err := models[0].referenceTarget(ref)
	if err != nil || tf == nil {
		return err
	}
	var (
		values []any
		keys   []string
		seen   = map[string]bool{}
	)
	for _, m := range models {
		v, _ := m.current(ref.SourceField())
		if v == nil {
			continue
		}
		k := fmt.Sprint(v)
		if !seen[k] {
			seen[k] = true
			values = append(values, v)
		}
		keys = append(keys, k)
	}
	if len(values) == 0 {
		return nil
	}
	sub := c.ctx.Include.Sub(name)
	related, err := target.Select(Using(c.ctx.Store), Where(Q(tf.Name()).IsIn(values...)), Include(sub.Paths()...)).Records(ctx)
	if err != nil {
		return err
	}
	keyFn := func(r any) string {
		m, _ := r.(*Model)
		if m == nil {
			return ""
		}
		v, _ := m.current(tf.Name())
		return fmt.Sprint(v)
	}
	ordered := dataloader.OrderByKeysNoError(keys, related, keyFn)
	i := 0
	for _, m := range models {
		if v, _ := m.current(ref.SourceField()); v == nil {
			continue
		}
		m.setRelated(name, ordered[i])
		i++
	}
	return nil
}

func (c *Collection) preloadCollector(ctx context.Context, models []*Model, name string) error {
	coll, _ := c.schema.Collector(name)
	target, err := c.schema.resolveModel(coll.Model())
	if err != nil {
		return err
	}
	source := coll.SourceField()
	if source == "" {
		return nil
	}
	var (
		values []any
		keys   []string
	)
	for _, m := range models {
		key := m.Key()
		if len(key) != 1 || key[0] == nil {
			continue
		}
		values = append(values, key[0])
		keys = append(keys, fmt.Sprint(key[0]))
	}
	if len(values) == 0 {
		return nil
	}
	sub := c.ctx.Include.Sub(name)
	related, err := target.Select(Using(c.ctx.Store), Where(Q(source).IsIn(values...)), Include(sub.Paths()...)).Records(ctx)
	if err != nil {
		return err
	}
	groups := dataloader.GroupByKey(related, func(r any) string {
		m, _ := r.(*Model)
		if m == nil {
			return ""
		}
		v, _ := m.current(source)
		return fmt.Sprint(v)
	})
	ordered := dataloader.OrderGroupsByKeys(keys, groups)
	i := 0
	for _, m := range models {
		key := m.Key()
		if len(key) != 1 || key[0] == nil {
			continue
		}
		m.setRelated(name, NewCollection(ForSchema(target), Records(ordered[i]...), WithContext(m.relationContext())))
		i++
	}
	return nil
}
