package sql

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/schema/field"
)

const (
	// DefaultNamespace is used for schemas, contexts and stores that name
	// no namespace.
	DefaultNamespace = "public"
	// DefaultLocale is used for translations when the context names no
	// locale.
	DefaultLocale = anansi.DefaultLocale
)

// i18nAlias is the alias of the joined translation table.
const i18nAlias = "i18n"

var queryOps = map[anansi.Op]string{
	anansi.OpIs:                  "=",
	anansi.OpIsNot:               "!=",
	anansi.OpGreaterThan:         ">",
	anansi.OpGreaterThanOrEqual:  ">=",
	anansi.OpLessThan:            "<",
	anansi.OpLessThanOrEqual:     "<=",
	anansi.OpAfter:               ">",
	anansi.OpBefore:              "<",
	anansi.OpIsIn:                "IN",
	anansi.OpIsNotIn:             "NOT IN",
	anansi.OpContains:            "LIKE",
	anansi.OpContainsInsensitive: "ILIKE",
	anansi.OpMatches:             "~",
}

var groupOps = map[anansi.GroupOp]string{
	anansi.OpAnd: "AND",
	anansi.OpOr:  "OR",
}

// ResolveOp returns the SQL operator of a query op.
func ResolveOp(op anansi.Op) (string, bool) {
	s, ok := queryOps[op]
	return s, ok
}

// ResolveGroupOp returns the SQL operator of a group op.
func ResolveGroupOp(op anansi.GroupOp) (string, bool) {
	s, ok := groupOps[op]
	return s, ok
}

// Quoter quotes identifier parts and joins them with dots.
type Quoter func(parts ...string) string

// QuoteIdent quotes PostgreSQL identifiers.
func QuoteIdent(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(quoted, ".")
}

// Pair is a column and the value written to it.
type Pair struct {
	Column string
	Value  any
}

func placeholder(n int) string { return "$" + strconv.Itoa(n) }

// GenerateArgLists returns the quoted columns, the value markers and the
// bound args of pairs. Markers are numbered from offset+1; Literal values
// are written verbatim and bind nothing.
func GenerateArgLists(pairs []Pair, quote Quoter, offset int) (columns, values []string, args []any) {
	for _, p := range pairs {
		columns = append(columns, quote(p.Column))
		if lit, ok := p.Value.(anansi.Literal); ok {
			values = append(values, string(lit))
			continue
		}
		args = append(args, p.Value)
		values = append(values, placeholder(offset+len(args)))
	}
	return columns, values, args
}

// GenerateArgPairs returns "column"=$n assignments of pairs.
func GenerateArgPairs(pairs []Pair, quote Quoter, offset int) ([]string, []any) {
	columns, values, args := GenerateArgLists(pairs, quote, offset)
	out := make([]string, len(columns))
	for i := range columns {
		out[i] = columns[i] + "=" + values[i]
	}
	return out, args
}

// Compiler turns schemas, contexts and predicates into PostgreSQL
// statements with positional parameters.
type Compiler struct {
	Quote     Quoter
	Namespace string
	Locale    string
}

// NewCompiler returns a compiler using the default namespace and locale.
func NewCompiler() *Compiler {
	return &Compiler{Quote: QuoteIdent, Namespace: DefaultNamespace, Locale: DefaultLocale}
}

func (cp *Compiler) namespace(s *anansi.Schema, c *anansi.Context) string {
	return anansi.ResolveNamespace(s, c, cmp.Or(cp.Namespace, DefaultNamespace))
}

// Table returns the qualified base table of s.
func (cp *Compiler) Table(s *anansi.Schema, c *anansi.Context) string {
	return cp.Quote(cp.namespace(s, c), s.ResourceName())
}

// I18nTable returns the qualified translation table of s.
func (cp *Compiler) I18nTable(s *anansi.Schema, c *anansi.Context) string {
	return cp.Quote(cp.namespace(s, c), s.I18nName())
}

func (cp *Compiler) locale(c *anansi.Context) string {
	if c != nil && c.Locale != "" {
		return c.Locale
	}
	return cmp.Or(cp.Locale, DefaultLocale)
}

// column renders the column of f. Translatable fields live in the joined
// translation table; base columns are qualified once a join is present.
func (cp *Compiler) column(s *anansi.Schema, f *field.Field, joined bool) string {
	switch {
	case f.HasFlag(field.Translatable):
		return i18nAlias + "." + cp.Quote(f.I18nCode())
	case joined:
		return cp.Quote(s.ResourceName(), f.Code())
	default:
		return cp.Quote(f.Code())
	}
}

// keyCodes returns the storage codes of the key fields, or id.
func keyCodes(s *anansi.Schema) []string {
	keys := s.KeyFields()
	if len(keys) == 0 {
		return []string{"id"}
	}
	codes := make([]string, len(keys))
	for i, f := range keys {
		codes[i] = f.Code()
	}
	return codes
}

// selectedFields returns the stored fields named by c.Fields, or every
// stored field sorted by name.
func selectedFields(s *anansi.Schema, c *anansi.Context) []*field.Field {
	var out []*field.Field
	for _, name := range c.Fields {
		if f, ok := s.Field(name); ok && !f.IsVirtual() {
			out = append(out, f)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, f := range s.Fields() {
		if !f.IsVirtual() {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b *field.Field) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// predicateFields returns the fields of s named on the left of p.
func predicateFields(s *anansi.Schema, p anansi.Predicate) []*field.Field {
	var out []*field.Field
	switch p := p.(type) {
	case *anansi.Query:
		if p == nil {
			return nil
		}
		if f, ok := p.LeftForSchema(s).(*field.Field); ok {
			out = append(out, f)
		}
		if f, ok := p.RightForSchema(s).(*field.Field); ok {
			out = append(out, f)
		}
	case *anansi.QueryGroup:
		if p == nil {
			return nil
		}
		for _, q := range p.Queries {
			out = append(out, predicateFields(s, q)...)
		}
	}
	return out
}

// referenced returns every field a select over s and c touches.
func referenced(s *anansi.Schema, c *anansi.Context) []*field.Field {
	var out []*field.Field
	if !c.Returning.Has(anansi.ReturnCount) {
		out = append(out, selectedFields(s, c)...)
		for _, o := range c.OrderBy {
			if f, ok := s.Field(o.Field); ok {
				out = append(out, f)
			}
		}
		for _, name := range c.Distinct.Names {
			if f, ok := s.Field(name); ok {
				out = append(out, f)
			}
		}
	}
	return append(out, predicateFields(s, c.Where)...)
}

func hasTranslatable(fields []*field.Field) bool {
	return slices.ContainsFunc(fields, func(f *field.Field) bool { return f.HasFlag(field.Translatable) })
}

// joins reports whether a select over s and c needs the translation join.
func joins(s *anansi.Schema, c *anansi.Context) bool {
	return s.HasTranslations() && hasTranslatable(referenced(s, c))
}

// GenerateSelectColumns returns the column list of a select and the
// selected fields. A count select renders COUNT(*).
func (cp *Compiler) GenerateSelectColumns(s *anansi.Schema, c *anansi.Context) (string, []*field.Field) {
	return cp.selectColumns(s, c, joins(s, c))
}

func (cp *Compiler) selectColumns(s *anansi.Schema, c *anansi.Context, joined bool) (string, []*field.Field) {
	if c.Returning.Has(anansi.ReturnCount) {
		return "COUNT(*) AS " + cp.Quote("count"), nil
	}
	fields := selectedFields(s, c)
	columns := make([]string, len(fields))
	for i, f := range fields {
		col := cp.column(s, f, joined)
		if f.HasFlag(field.Translatable) || joined || f.Code() != f.Name() {
			col += " AS " + cp.Quote(f.Name())
		}
		columns[i] = col
	}
	return strings.Join(columns, ", "), fields
}

// GenerateSelectDistinct returns the DISTINCT clause of a select,
// including its trailing space, or "".
func (cp *Compiler) GenerateSelectDistinct(s *anansi.Schema, c *anansi.Context) string {
	return cp.selectDistinct(s, c, joins(s, c))
}

func (cp *Compiler) selectDistinct(s *anansi.Schema, c *anansi.Context, joined bool) string {
	switch {
	case c.Distinct.IsZero():
		return ""
	case c.Distinct.All:
		return "DISTINCT "
	}
	names := slices.Sorted(slices.Values(c.Distinct.Names))
	columns := make([]string, len(names))
	for i, name := range names {
		columns[i] = cp.nameColumn(s, name, joined)
	}
	return "DISTINCT ON (" + strings.Join(columns, ", ") + ") "
}

func (cp *Compiler) nameColumn(s *anansi.Schema, name string, joined bool) string {
	if f, ok := s.Field(name); ok {
		return cp.column(s, f, joined)
	}
	return cp.Quote(name)
}

// GenerateSelectOrder returns the ORDER BY clause of a select, or "".
func (cp *Compiler) GenerateSelectOrder(s *anansi.Schema, c *anansi.Context) string {
	return cp.selectOrder(s, c, joins(s, c))
}

func (cp *Compiler) selectOrder(s *anansi.Schema, c *anansi.Context, joined bool) string {
	if len(c.OrderBy) == 0 {
		return ""
	}
	terms := make([]string, len(c.OrderBy))
	for i, o := range c.OrderBy {
		terms[i] = cp.nameColumn(s, o.Field, joined) + " " + o.Direction.String()
	}
	return "ORDER BY " + strings.Join(terms, ", ")
}

// GenerateSelectTranslation returns the join of the translation table
// when any of fields is translatable, binding the context locale.
func (cp *Compiler) GenerateSelectTranslation(s *anansi.Schema, c *anansi.Context, fields []*field.Field, offset int) (string, []any) {
	if !hasTranslatable(fields) {
		return "", nil
	}
	b := cp.builder(s, c, true, offset)
	return b.translation(), b.args
}

// GenerateSelectQuery compiles the where predicate of c.
func (cp *Compiler) GenerateSelectQuery(ctx context.Context, s *anansi.Schema, c *anansi.Context, offset int) (string, []any, error) {
	b := cp.builder(s, c, joins(s, c), offset)
	sql, err := b.predicate(ctx, c.Where)
	return sql, b.args, err
}

// MakeStoreValue renders a single right-hand value: nil as null, lists
// and records as parenthesized markers, collections as subqueries and
// literals verbatim.
func (cp *Compiler) MakeStoreValue(ctx context.Context, s *anansi.Schema, c *anansi.Context, v any, offset int) (string, []any, error) {
	b := cp.builder(s, c, false, offset)
	sql, err := b.value(ctx, v, nil)
	return sql, b.args, err
}

// GenerateSelectStatement compiles a complete select of s for c.
func (cp *Compiler) GenerateSelectStatement(ctx context.Context, s *anansi.Schema, c *anansi.Context, offset int) (string, []any, error) {
	b := cp.builder(s, c, joins(s, c), offset)
	sql, err := b.selectStatement(ctx)
	return sql, b.args, err
}

func (cp *Compiler) builder(s *anansi.Schema, c *anansi.Context, joined bool, offset int) *builder {
	if c == nil {
		c = anansi.MakeContext()
	}
	return &builder{cp: cp, schema: s, ctx: c, joined: joined, offset: offset}
}

// builder compiles one statement, collecting its args in order.
type builder struct {
	cp     *Compiler
	schema *anansi.Schema
	ctx    *anansi.Context
	joined bool
	offset int
	args   []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return placeholder(b.offset + len(b.args))
}

func (b *builder) selectStatement(ctx context.Context) (string, error) {
	c := b.ctx
	count := c.Returning.Has(anansi.ReturnCount)
	columns, _ := b.cp.selectColumns(b.schema, c, b.joined)
	distinct := ""
	if !count {
		distinct = b.cp.selectDistinct(b.schema, c, b.joined)
	}
	lines := []string{
		"SELECT " + distinct + columns,
		"FROM " + b.cp.Table(b.schema, c),
	}
	if b.joined {
		lines = append(lines, b.translation())
	}
	where, err := b.predicate(ctx, c.Where)
	if err != nil {
		return "", err
	}
	if where != "" {
		lines = append(lines, "WHERE "+where)
	}
	if !count {
		if order := b.cp.selectOrder(b.schema, c, b.joined); order != "" {
			lines = append(lines, order)
		}
		if c.Limit > 0 {
			lines = append(lines, "LIMIT "+strconv.Itoa(c.Limit))
		}
		if c.Start > 0 {
			lines = append(lines, "OFFSET "+strconv.Itoa(c.Start))
		}
	}
	return strings.Join(lines, "\n") + ";", nil
}

func (b *builder) translation() string {
	q, table := b.cp.Quote, b.schema.ResourceName()
	var conds []string
	for _, code := range keyCodes(b.schema) {
		conds = append(conds, i18nAlias+"."+q(code)+" = "+q(table, code))
	}
	conds = append(conds, i18nAlias+"."+q("locale")+" = "+b.arg(b.cp.locale(b.ctx)))
	return "LEFT JOIN " + b.cp.I18nTable(b.schema, b.ctx) + " AS " + i18nAlias + " ON (" + strings.Join(conds, " AND ") + ")"
}

func (b *builder) predicate(ctx context.Context, p anansi.Predicate) (string, error) {
	switch p := p.(type) {
	case nil:
		return "", nil
	case *anansi.Query:
		if p.IsEmpty() {
			return "", nil
		}
		return b.query(ctx, p)
	case *anansi.QueryGroup:
		if p.IsEmpty() {
			return "", nil
		}
		var parts []string
		for _, q := range p.Queries {
			sql, err := b.predicate(ctx, q)
			if err != nil {
				return "", err
			}
			if sql != "" {
				parts = append(parts, sql)
			}
		}
		op, ok := groupOps[p.Op]
		if !ok {
			return "", fmt.Errorf("dialect/sql: unsupported group op %s", p.Op)
		}
		switch len(parts) {
		case 0:
			return "", nil
		case 1:
			return parts[0], nil
		}
		return "(" + strings.Join(parts, " "+op+" ") + ")", nil
	}
	return "", fmt.Errorf("dialect/sql: unsupported predicate %T", p)
}

func (b *builder) query(ctx context.Context, q *anansi.Query) (string, error) {
	var (
		left string
		dump field.Converter
	)
	switch l := q.LeftForSchema(b.schema).(type) {
	case *field.Field:
		if fn := l.QuerierFunc(); fn != nil {
			out, err := fn(l, q.Op.String(), q.Right)
			if err != nil {
				return "", err
			}
			p, ok := out.(anansi.Predicate)
			if !ok {
				return "", fmt.Errorf("dialect/sql: querier of %s returned %T", l.Name(), out)
			}
			return b.predicate(ctx, p)
		}
		if l.IsVirtual() {
			return "", fmt.Errorf("dialect/sql: virtual field %s has no querier", l.Name())
		}
		left, dump = b.cp.column(b.schema, l, b.joined), l.DumpValue
	case *anansi.Query:
		col, err := b.foreign(l)
		if err != nil {
			return "", err
		}
		left = col
	default:
		val, err := b.value(ctx, l, nil)
		if err != nil {
			return "", err
		}
		left = val
	}
	op, ok := queryOps[q.Op]
	if !ok {
		return "", fmt.Errorf("dialect/sql: unsupported op %s", q.Op)
	}
	var right string
	switch r := q.RightForSchema(b.schema).(type) {
	case nil:
		switch q.Op {
		case anansi.OpIs:
			return left + " is null", nil
		case anansi.OpIsNot:
			return left + " is not null", nil
		}
		right = "null"
	case *field.Field:
		right = b.cp.column(b.schema, r, b.joined)
	case *anansi.Query:
		col, err := b.foreign(r)
		if err != nil {
			return "", err
		}
		right = col
	default:
		v := any(r)
		if s, ok := r.(string); ok && (q.Op == anansi.OpContains || q.Op == anansi.OpContainsInsensitive) {
			v = "%" + s + "%"
		}
		val, err := b.value(ctx, v, dump)
		if err != nil {
			return "", err
		}
		right = val
	}
	return left + " " + op + " " + right, nil
}

// foreign renders a field of another schema, qualified by its table.
func (b *builder) foreign(q *anansi.Query) (string, error) {
	s := q.ModelSchema(b.schema.Registry())
	if s == nil {
		return "", anansi.NewModelNotFoundError(q.ModelName())
	}
	name, _ := q.Left.(string)
	f, ok := s.Field(name)
	if !ok {
		return "", anansi.NewPathError(anansi.PathField, s.Name(), name)
	}
	return b.cp.Quote(s.ResourceName(), f.Code()), nil
}

func (b *builder) value(ctx context.Context, v any, dump field.Converter) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case anansi.Literal:
		return string(v), nil
	case *anansi.Model:
		key := v.Key()
		if len(key) == 1 {
			return b.arg(key[0]), nil
		}
		return b.list(ctx, key, nil)
	case *anansi.Collection:
		return b.subquery(ctx, v)
	case []byte:
		return b.arg(v), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return b.list(ctx, items, dump)
	}
	if dump != nil {
		dumped, err := dump(v)
		if err != nil {
			return "", err
		}
		v = dumped
	}
	return b.arg(v), nil
}

func (b *builder) list(ctx context.Context, items []any, dump field.Converter) (string, error) {
	if len(items) == 0 {
		return "(NULL)", nil
	}
	parts := make([]string, len(items))
	for i, item := range items {
		sql, err := b.value(ctx, item, dump)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

// subquery renders a store backed collection as a nested select of its
// fields, or of its keys when it names none. Static collections render
// the keys of their records.
func (b *builder) subquery(ctx context.Context, coll *anansi.Collection) (string, error) {
	if coll.IsStatic() {
		records, err := coll.Records(ctx)
		if err != nil {
			return "", err
		}
		keys := make([]any, len(records))
		for i, r := range records {
			if m, ok := r.(*anansi.Model); ok && len(m.Key()) == 1 {
				keys[i] = m.Key()[0]
				continue
			}
			keys[i] = r
		}
		return b.list(ctx, keys, nil)
	}
	if coll.IsNull() {
		return "", anansi.ErrCollectionIsNull
	}
	s, c := coll.Schema(), coll.Context().Copy()
	if len(c.Fields) == 0 {
		for _, f := range s.KeyFields() {
			c.Fields = append(c.Fields, f.Name())
		}
	}
	sub := b.cp.builder(s, c, joins(s, c), b.offset+len(b.args))
	sql, err := sub.selectStatement(ctx)
	if err != nil {
		return "", err
	}
	b.args = append(b.args, sub.args...)
	return "(" + strings.TrimSuffix(sql, ";") + ")", nil
}
