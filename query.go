package anansi

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"

	"github.com/syssam/anansi/schema/field"
)

// Op is a comparison operator of a Query.
type Op uint8

// Comparison operators.
const (
	OpIs Op = iota
	OpIsNot
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpBefore
	OpAfter
	OpIsIn
	OpIsNotIn
	OpContains
	OpContainsInsensitive
	OpMatches
)

var opNames = [...]string{
	OpIs:                  "is",
	OpIsNot:               "is_not",
	OpGreaterThan:         "greater_than",
	OpGreaterThanOrEqual:  "greater_than_or_equal",
	OpLessThan:            "less_than",
	OpLessThanOrEqual:     "less_than_or_equal",
	OpBefore:              "before",
	OpAfter:               "after",
	OpIsIn:                "is_in",
	OpIsNotIn:             "is_not_in",
	OpContains:            "contains",
	OpContainsInsensitive: "contains_insensitive",
	OpMatches:             "matches",
}

// String returns the snake case operator name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

// ParseOp returns the operator with the given name.
func ParseOp(name string) (Op, error) {
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("anansi: unknown query op %q", name)
}

// GroupOp joins the members of a QueryGroup.
type GroupOp uint8

// Group operators.
const (
	OpAnd GroupOp = iota
	OpOr
)

// String returns "and" or "or".
func (o GroupOp) String() string {
	if o == OpOr {
		return "or"
	}
	return "and"
}

// ParseGroupOp returns the group operator with the given name.
func ParseGroupOp(name string) (GroupOp, error) {
	switch name {
	case "and":
		return OpAnd, nil
	case "or":
		return OpOr, nil
	}
	return 0, fmt.Errorf("anansi: unknown group op %q", name)
}

// Predicate is a filter expression: a *Query or a *QueryGroup.
type Predicate interface {
	// And joins the predicate with other using a logical AND.
	And(other Predicate) Predicate
	// Or joins the predicate with other using a logical OR.
	Or(other Predicate) Predicate
	// IsEmpty reports whether the predicate filters nothing.
	IsEmpty() bool
	// Map returns the serializable form of the predicate.
	Map() map[string]any

	predicate()
}

// Query is a single comparison. Left and Right hold literal values or
// nested queries; a string Left names a field of the queried schema.
type Query struct {
	Left  any
	Op    Op
	Right any
	// Model is a schema name or *Schema the query is bound to.
	Model any
}

// Q returns an equality query on left with a nil right side.
func Q(left any) *Query {
	return &Query{Left: left, Op: OpIs}
}

func (q *Query) with(op Op, right any) *Query {
	c := *q
	c.Op, c.Right = op, right
	return &c
}

// Is returns a copy of q comparing for equality with v.
func (q *Query) Is(v any) *Query { return q.with(OpIs, v) }

// IsNot returns a copy of q comparing for inequality with v.
func (q *Query) IsNot(v any) *Query { return q.with(OpIsNot, v) }

// GreaterThan returns a copy of q with the > operator.
func (q *Query) GreaterThan(v any) *Query { return q.with(OpGreaterThan, v) }

// GreaterThanOrEqual returns a copy of q with the >= operator.
func (q *Query) GreaterThanOrEqual(v any) *Query { return q.with(OpGreaterThanOrEqual, v) }

// LessThan returns a copy of q with the < operator.
func (q *Query) LessThan(v any) *Query { return q.with(OpLessThan, v) }

// LessThanOrEqual returns a copy of q with the <= operator.
func (q *Query) LessThanOrEqual(v any) *Query { return q.with(OpLessThanOrEqual, v) }

// Before returns a copy of q matching values before v.
func (q *Query) Before(v any) *Query { return q.with(OpBefore, v) }

// After returns a copy of q matching values after v.
func (q *Query) After(v any) *Query { return q.with(OpAfter, v) }

// IsIn returns a copy of q matching any of values. A single slice,
// Collection or Query argument is used as the right side as is.
func (q *Query) IsIn(values ...any) *Query { return q.with(OpIsIn, inValues(values)) }

// IsNotIn returns a copy of q matching none of values.
func (q *Query) IsNotIn(values ...any) *Query { return q.with(OpIsNotIn, inValues(values)) }

// Contains returns a copy of q matching values containing v.
func (q *Query) Contains(v any) *Query { return q.with(OpContains, v) }

// ContainsInsensitive returns a case insensitive Contains.
func (q *Query) ContainsInsensitive(v any) *Query { return q.with(OpContainsInsensitive, v) }

// Matches returns a copy of q matching the regular expression v.
func (q *Query) Matches(v any) *Query { return q.with(OpMatches, v) }

// For returns a copy of q bound to model.
func (q *Query) For(model any) *Query {
	c := *q
	c.Model = model
	return &c
}

func inValues(values []any) any {
	if len(values) == 1 {
		switch v := values[0].(type) {
		case []any, *Collection, *Query:
			return v
		}
		if rv := reflect.ValueOf(values[0]); rv.Kind() == reflect.Slice {
			out := make([]any, rv.Len())
			for i := range out {
				out[i] = rv.Index(i).Interface()
			}
			return out
		}
	}
	return values
}

// And implements Predicate.
func (q *Query) And(other Predicate) Predicate { return combine(OpAnd, q, other) }

// Or implements Predicate.
func (q *Query) Or(other Predicate) Predicate { return combine(OpOr, q, other) }

// IsEmpty reports whether the query has no left side.
func (q *Query) IsEmpty() bool { return q == nil || q.Left == nil }

// ModelName returns the name of the bound model, or "".
func (q *Query) ModelName() string {
	switch m := q.Model.(type) {
	case string:
		return m
	case *Schema:
		return m.Name()
	}
	return ""
}

// ModelSchema resolves the bound model against reg. It returns nil when
// the query is unbound or the name is unknown.
func (q *Query) ModelSchema(reg *Registry) *Schema {
	switch m := q.Model.(type) {
	case *Schema:
		return m
	case string:
		if reg == nil {
			reg = DefaultRegistry
		}
		s, _ := reg.Find(m)
		return s
	}
	return nil
}

// LeftForSchema resolves the left side against s: a field name yields the
// *field.Field, a nested query is resolved recursively and anything else
// is returned as a literal.
func (q *Query) LeftForSchema(s *Schema) any {
	return resolveSide(q.Left, s, true)
}

// RightForSchema resolves the right side against s. Plain values are
// literals; only nested queries are resolved.
func (q *Query) RightForSchema(s *Schema) any {
	return resolveSide(q.Right, s, false)
}

func resolveSide(v any, s *Schema, names bool) any {
	switch v := v.(type) {
	case string:
		if names && s != nil {
			if f, ok := s.Field(v); ok {
				return f
			}
		}
		return v
	case *Query:
		if s == nil {
			return v
		}
		if v.Model != nil && v.ModelSchema(s.registry()) != s {
			return v
		}
		return v.LeftForSchema(s)
	}
	return v
}

// Map implements Predicate.
func (q *Query) Map() map[string]any {
	var model any
	if name := q.ModelName(); name != "" {
		model = name
	}
	return map[string]any{
		"type":  "query",
		"model": model,
		"op":    q.Op.String(),
		"left":  mapSide(q.Left),
		"right": mapSide(q.Right),
	}
}

// MarshalJSON encodes the Map form of the query.
func (q *Query) MarshalJSON() ([]byte, error) { return json.Marshal(q.Map()) }

func (*Query) predicate() {}

func mapSide(v any) any {
	switch v := v.(type) {
	case Predicate:
		return v.Map()
	case *field.Field:
		return v.Name()
	}
	return v
}

// QueryGroup joins queries with a single group operator.
type QueryGroup struct {
	Op      GroupOp
	Queries []Predicate
}

// And implements Predicate.
func (g *QueryGroup) And(other Predicate) Predicate { return combine(OpAnd, g, other) }

// Or implements Predicate.
func (g *QueryGroup) Or(other Predicate) Predicate { return combine(OpOr, g, other) }

// IsEmpty reports whether the group has no members.
func (g *QueryGroup) IsEmpty() bool { return g == nil || len(g.Queries) == 0 }

// Map implements Predicate.
func (g *QueryGroup) Map() map[string]any {
	queries := make([]any, len(g.Queries))
	for i, q := range g.Queries {
		queries[i] = q.Map()
	}
	return map[string]any{
		"type":    "group",
		"op":      g.Op.String(),
		"queries": queries,
	}
}

// MarshalJSON encodes the Map form of the group.
func (g *QueryGroup) MarshalJSON() ([]byte, error) { return json.Marshal(g.Map()) }

func (*QueryGroup) predicate() {}

// isNilPredicate reports whether p is nil or a typed nil pointer.
func isNilPredicate(p Predicate) bool {
	switch p := p.(type) {
	case nil:
		return true
	case *Query:
		return p == nil
	case *QueryGroup:
		return p == nil
	}
	return false
}

func combine(op GroupOp, a, b Predicate) Predicate {
	switch {
	case isNilPredicate(b):
		return a
	case a.IsEmpty():
		return b
	case b.IsEmpty():
		return a
	}
	ga, aok := a.(*QueryGroup)
	gb, bok := b.(*QueryGroup)
	aok = aok && ga.Op == op
	bok = bok && gb.Op == op
	switch {
	case aok && bok:
		return &QueryGroup{Op: op, Queries: slices.Concat(ga.Queries, gb.Queries)}
	case aok:
		return &QueryGroup{Op: op, Queries: append(slices.Clip(ga.Queries), b)}
	case bok:
		return &QueryGroup{Op: op, Queries: append([]Predicate{a}, gb.Queries...)}
	default:
		return &QueryGroup{Op: op, Queries: []Predicate{a, b}}
	}
}

// And joins predicates with AND, skipping nil and empty ones. It returns
// nil when nothing remains.
func And(preds ...Predicate) Predicate {
	return join(OpAnd, preds)
}

// Or joins predicates with OR, skipping nil and empty ones.
func Or(preds ...Predicate) Predicate {
	return join(OpOr, preds)
}

func join(op GroupOp, preds []Predicate) Predicate {
	var out Predicate
	for _, p := range preds {
		if isNilPredicate(p) || p.IsEmpty() {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		out = combine(op, out, p)
	}
	return out
}

// ParsePredicate rebuilds a predicate from its Map form.
func ParsePredicate(m map[string]any) (Predicate, error) {
	switch m["type"] {
	case "query":
		op, err := ParseOp(fmt.Sprint(m["op"]))
		if err != nil {
			return nil, err
		}
		q := &Query{Op: op}
		if q.Left, err = parseSide(m["left"]); err != nil {
			return nil, err
		}
		if q.Right, err = parseSide(m["right"]); err != nil {
			return nil, err
		}
		if model, ok := m["model"].(string); ok && model != "" {
			q.Model = model
		}
		return q, nil
	case "group":
		op, err := ParseGroupOp(fmt.Sprint(m["op"]))
		if err != nil {
			return nil, err
		}
		raw, _ := m["queries"].([]any)
		g := &QueryGroup{Op: op, Queries: make([]Predicate, 0, len(raw))}
		for _, r := range raw {
			sub, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("anansi: invalid group member %T", r)
			}
			p, err := ParsePredicate(sub)
			if err != nil {
				return nil, err
			}
			g.Queries = append(g.Queries, p)
		}
		return g, nil
	}
	return nil, fmt.Errorf("anansi: unknown predicate type %v", m["type"])
}

func parseSide(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		if _, typed := m["type"]; typed {
			return ParsePredicate(m)
		}
	}
	return v, nil
}

// UnmarshalPredicate decodes a JSON encoded predicate.
func UnmarshalPredicate(data []byte) (Predicate, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return ParsePredicate(m)
}

// MakeQueryFromValues returns the AND of equality queries over values, in
// sorted key order. It returns nil for an empty map.
func MakeQueryFromValues(values map[string]any) Predicate {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]FieldValue, len(keys))
	for i, k := range keys {
		pairs[i] = FieldValue{Field: k, Value: values[k]}
	}
	return MakeQueryFromFields(pairs...)
}

// FieldValue pairs a field (a name or *field.Field) with a value.
type FieldValue struct {
	Field any
	Value any
}

// MakeQueryFromFields returns the AND of equality queries over pairs, in
// the given order.
func MakeQueryFromFields(pairs ...FieldValue) Predicate {
	preds := make([]Predicate, 0, len(pairs))
	for _, p := range pairs {
		left := p.Field
		if f, ok := left.(*field.Field); ok {
			left = f.Name()
		}
		preds = append(preds, Q(left).Is(p.Value))
	}
	return And(preds...)
}
