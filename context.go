package anansi

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
)

// DefaultLocale is the locale of a context that does not set one.
const DefaultLocale = "en_US"

// Direction is the sort direction of an Order.
type Direction uint8

// Sort directions.
const (
	Asc Direction = iota
	Desc
)

// String returns "ASC" or "DESC".
func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Order is a single ORDER BY term.
type Order struct {
	Field     string
	Direction Direction
}

// ParseOrderBy parses terms like "+a,-b" into orders. A term without a
// sigil sorts ascending.
func ParseOrderBy(terms ...string) []Order {
	var orders []Order
	for _, name := range splitNames(terms) {
		switch name[0] {
		case '-':
			orders = append(orders, Order{Field: name[1:], Direction: Desc})
		case '+':
			orders = append(orders, Order{Field: name[1:], Direction: Asc})
		default:
			orders = append(orders, Order{Field: name, Direction: Asc})
		}
	}
	return orders
}

// ReturnType is the shape of a collection result. Words may be combined.
type ReturnType uint8

// Result shapes.
const (
	ReturnRecords ReturnType = 1 << iota
	ReturnData
	ReturnCount
	ReturnFirst
	ReturnLast
)

var returnWords = []struct {
	word string
	typ  ReturnType
}{
	{"count", ReturnCount},
	{"data", ReturnData},
	{"first", ReturnFirst},
	{"last", ReturnLast},
	{"records", ReturnRecords},
}

// ParseReturnType parses a comma separated list such as "count,records".
func ParseReturnType(words ...string) (ReturnType, error) {
	var r ReturnType
	for _, w := range splitNames(words) {
		found := false
		for _, rw := range returnWords {
			if rw.word == w {
				r |= rw.typ
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("anansi: unknown return type %q", w)
		}
	}
	return r, nil
}

// Has reports whether every word of w is part of r.
func (r ReturnType) Has(w ReturnType) bool { return w != 0 && r&w == w }

// Words returns the words of r in alphabetical order.
func (r ReturnType) Words() []string {
	var words []string
	for _, rw := range returnWords {
		if r&rw.typ != 0 {
			words = append(words, rw.word)
		}
	}
	return words
}

// String returns the comma joined words.
func (r ReturnType) String() string { return strings.Join(r.Words(), ",") }

// IncludeTree is a nested set of reference and collector names to load
// alongside records.
type IncludeTree map[string]IncludeTree

// ParseInclude builds a tree from comma separated dotted paths.
func ParseInclude(paths ...string) IncludeTree {
	t := IncludeTree{}
	for _, p := range splitNames(paths) {
		t.add(strings.Split(p, "."))
	}
	return t
}

func (t IncludeTree) add(parts []string) {
	node := t
	for _, part := range parts {
		next, ok := node[part]
		if !ok || next == nil {
			next = IncludeTree{}
			node[part] = next
		}
		node = next
	}
}

// Has reports whether name is included at the top level.
func (t IncludeTree) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// Sub returns the subtree under name.
func (t IncludeTree) Sub(name string) IncludeTree { return t[name] }

// Names returns the top level names in sorted order.
func (t IncludeTree) Names() []string {
	return slices.Sorted(maps.Keys(t))
}

// Paths returns the leaf paths of the tree in dotted form, sorted.
func (t IncludeTree) Paths() []string {
	var out []string
	for _, name := range t.Names() {
		sub := t[name].Paths()
		if len(sub) == 0 {
			out = append(out, name)
			continue
		}
		for _, p := range sub {
			out = append(out, name+"."+p)
		}
	}
	return out
}

func mergeInclude(dst, src IncludeTree) {
	for k, sub := range src {
		next, ok := dst[k]
		if !ok || next == nil {
			next = IncludeTree{}
			dst[k] = next
		}
		mergeInclude(next, sub)
	}
}

// DistinctSet selects distinct rows, either on all columns or on a set
// of field names.
type DistinctSet struct {
	All   bool
	Names []string
}

// IsZero reports whether no distinct selection is requested.
func (d DistinctSet) IsZero() bool { return !d.All && len(d.Names) == 0 }

func mergeDistinct(a, b DistinctSet) DistinctSet {
	seen := make(map[string]struct{}, len(a.Names)+len(b.Names))
	for _, n := range a.Names {
		seen[n] = struct{}{}
	}
	for _, n := range b.Names {
		seen[n] = struct{}{}
	}
	if len(seen) > 0 {
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		return DistinctSet{Names: names}
	}
	return DistinctSet{All: a.All || b.All}
}

// Context holds the options of a lookup or mutation. Build it with
// MakeContext so that inherited options merge consistently.
type Context struct {
	Distinct  DistinctSet
	Fields    []string
	Include   IncludeTree
	Limit     int // 0 means no limit
	Start     int
	Page      int
	PageSize  int
	Locale    string
	Namespace string
	OrderBy   []Order
	Returning ReturnType
	Scope     map[string]any
	Timezone  string
	Where     Predicate
	Store     *Store
}

// ContextOption configures MakeContext.
type ContextOption func(*contextArgs)

type contextArgs struct {
	base      *Context
	distinct  DistinctSet
	fields    []string
	include   []string
	limit     *int
	start     *int
	page      *int
	pageSize  *int
	locale    *string
	namespace *string
	timezone  *string
	orderBy   []Order
	orderSet  bool
	returning ReturnType
	scope     map[string]any
	where     Predicate
	store     *Store
	err       error
}

// Base sets the context the new context inherits from.
func Base(c *Context) ContextOption {
	return func(a *contextArgs) { a.base = c }
}

// Distinct adds comma separated field names to the distinct set.
func Distinct(names ...string) ContextOption {
	return func(a *contextArgs) {
		a.distinct = mergeDistinct(a.distinct, DistinctSet{Names: splitNames(names)})
	}
}

// DistinctAll selects distinct rows on all columns.
func DistinctAll() ContextOption {
	return func(a *contextArgs) { a.distinct.All = true }
}

// Fields restricts the selected fields. Names may be comma separated and
// dotted paths include their references.
func Fields(names ...string) ContextOption {
	return func(a *contextArgs) { a.fields = append(a.fields, splitNames(names)...) }
}

// Include loads the given dotted reference/collector paths with records.
func Include(paths ...string) ContextOption {
	return func(a *contextArgs) { a.include = append(a.include, paths...) }
}

// Limit sets the maximum number of records. Limit(0) clears an inherited limit.
func Limit(n int) ContextOption {
	return func(a *contextArgs) { a.limit = &n }
}

// Start sets the record offset.
func Start(n int) ContextOption {
	return func(a *contextArgs) { a.start = &n }
}

// Page sets the 1-based page number used with PageSize.
func Page(n int) ContextOption {
	return func(a *contextArgs) { a.page = &n }
}

// PageSize sets the number of records per page.
func PageSize(n int) ContextOption {
	return func(a *contextArgs) { a.pageSize = &n }
}

// Locale sets the locale of translatable fields.
func Locale(l string) ContextOption {
	return func(a *contextArgs) { a.locale = &l }
}

// Namespace sets the storage namespace.
func Namespace(ns string) ContextOption {
	return func(a *contextArgs) { a.namespace = &ns }
}

// Timezone sets the timezone of datetime values.
func Timezone(tz string) ContextOption {
	return func(a *contextArgs) { a.timezone = &tz }
}

// OrderBy replaces the sort order, e.g. OrderBy("+last_name,-first_name").
func OrderBy(terms ...string) ContextOption {
	return func(a *contextArgs) {
		a.orderBy = ParseOrderBy(terms...)
		a.orderSet = true
	}
}

// OrderByTerms replaces the sort order with parsed terms.
func OrderByTerms(orders ...Order) ContextOption {
	return func(a *contextArgs) {
		a.orderBy = orders
		a.orderSet = true
	}
}

// Returning sets the result shape, e.g. Returning("count,records").
func Returning(words ...string) ContextOption {
	return func(a *contextArgs) {
		r, err := ParseReturnType(words...)
		if err != nil {
			a.err = err
			return
		}
		a.returning = r
	}
}

// ReturningType sets the result shape.
func ReturningType(r ReturnType) ContextOption {
	return func(a *contextArgs) { a.returning = r }
}

// Scope merges values into the context scope.
func Scope(values map[string]any) ContextOption {
	return func(a *contextArgs) {
		if a.scope == nil {
			a.scope = make(map[string]any, len(values))
		}
		maps.Copy(a.scope, values)
	}
}

// Where narrows the context filter. It is AND-ed with inherited filters.
func Where(p Predicate) ContextOption {
	return func(a *contextArgs) { a.where = And(a.where, p) }
}

// Using sets the store the context resolves to.
func Using(st *Store) ContextOption {
	return func(a *contextArgs) { a.store = st }
}

// MakeContext builds a new context from options, merging with the Base
// context when given.
func MakeContext(opts ...ContextOption) *Context {
	c, _ := BuildContext(opts...)
	return c
}

// BuildContext is like MakeContext but reports invalid options.
func BuildContext(opts ...ContextOption) (*Context, error) {
	var a contextArgs
	for _, opt := range opts {
		opt(&a)
	}
	base := a.base
	if base == nil {
		base = &Context{}
	}
	c := &Context{
		Distinct:  mergeDistinct(a.distinct, base.Distinct),
		Fields:    mergeFields(a.fields, base.Fields),
		Locale:    pick(a.locale, base.Locale),
		Namespace: pick(a.namespace, base.Namespace),
		Timezone:  pick(a.timezone, base.Timezone),
		Where:     And(a.where, base.Where),
		Store:     base.Store,
		Returning: base.Returning,
		OrderBy:   base.OrderBy,
		Page:      pick(a.page, base.Page),
		PageSize:  pick(a.pageSize, base.PageSize),
		Start:     pick(a.start, base.Start),
		Limit:     pick(a.limit, base.Limit),
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if a.store != nil {
		c.Store = a.store
	}
	if a.returning != 0 {
		c.Returning = a.returning
	}
	if c.Returning == 0 {
		c.Returning = ReturnRecords
	}
	if a.orderSet {
		c.OrderBy = a.orderBy
	}
	// Inherited start and limit stay as they are, even when they diverged
	// from the inherited page.
	pageGiven := a.page != nil || a.pageSize != nil
	if pageGiven && c.Page > 0 && c.PageSize > 0 {
		c.Start = (c.Page - 1) * c.PageSize
		c.Limit = c.PageSize
	}
	if len(base.Scope) > 0 || len(a.scope) > 0 {
		c.Scope = make(map[string]any, len(base.Scope)+len(a.scope))
		maps.Copy(c.Scope, base.Scope)
		maps.Copy(c.Scope, a.scope)
	} else {
		c.Scope = map[string]any{}
	}
	include := ParseInclude(a.include...)
	mergeInclude(include, base.Include)
	for _, f := range a.fields {
		if parts := strings.Split(f, "."); len(parts) > 1 {
			include.add(parts[:len(parts)-1])
		}
	}
	if len(include) > 0 {
		c.Include = include
	}
	return c, a.err
}

// Copy returns a shallow copy of c with its own slices and maps.
func (c *Context) Copy() *Context {
	cp := *c
	cp.Fields = slices.Clone(c.Fields)
	cp.OrderBy = slices.Clone(c.OrderBy)
	cp.Scope = maps.Clone(c.Scope)
	if c.Include != nil {
		cp.Include = IncludeTree{}
		mergeInclude(cp.Include, c.Include)
	}
	return &cp
}

// ResolveNamespace returns the first non-empty namespace among the
// context, the context store, the schema and def.
func ResolveNamespace(s *Schema, c *Context, def string) string {
	if c != nil {
		if c.Namespace != "" {
			return c.Namespace
		}
		if c.Store != nil && c.Store.Namespace() != "" {
			return c.Store.Namespace()
		}
	}
	if s != nil && s.Namespace() != "" {
		return s.Namespace()
	}
	return def
}

func mergeFields(override, base []string) []string {
	if len(override) == 0 && len(base) == 0 {
		return nil
	}
	out := make([]string, 0, len(override)+len(base))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{override, base} {
		for _, f := range list {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func pick[T any](override *T, base T) T {
	if override != nil {
		return *override
	}
	return base
}

// splitNames flattens comma separated lists and trims blanks.
func splitNames(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
