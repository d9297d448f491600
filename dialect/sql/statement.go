package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/anansi"
)

// ErrUnboundDelete is returned when a collection delete has no predicate.
var ErrUnboundDelete = errors.New("dialect/sql: refusing to delete without a predicate")

const indent = "   "

// keyPairs pairs the key columns of s with key.
func keyPairs(s *anansi.Schema, key []any) ([]Pair, error) {
	fields := s.KeyFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("dialect/sql: schema %s has no key", s.Name())
	}
	if len(key) != len(fields) {
		return nil, &anansi.KeyArityError{Schema: s.Name(), Want: len(fields), Got: len(key)}
	}
	pairs := make([]Pair, len(fields))
	for i, f := range fields {
		if key[i] == nil {
			return nil, fmt.Errorf("dialect/sql: %s has no value for key %s", s.Name(), f.Name())
		}
		pairs[i] = Pair{Column: f.Code(), Value: key[i]}
	}
	return pairs, nil
}

func (cp *Compiler) insertLines(table string, pairs []Pair, offset int, prefix string) ([]string, []any) {
	if len(pairs) == 0 {
		return []string{
			prefix + "INSERT INTO " + table,
			prefix + "DEFAULT VALUES",
			prefix + "RETURNING *",
		}, nil
	}
	columns, values, args := GenerateArgLists(pairs, cp.Quote, offset)
	return []string{
		prefix + "INSERT INTO " + table + " (",
		prefix + indent + strings.Join(columns, ", "),
		prefix + ")",
		prefix + "VALUES(" + strings.Join(values, ", ") + ")",
		prefix + "RETURNING *",
	}, args
}

// InsertStatement inserts pairs into the base table of s and returns the
// stored row.
func (cp *Compiler) InsertStatement(s *anansi.Schema, c *anansi.Context, pairs []Pair) (string, []any) {
	lines, args := cp.insertLines(cp.Table(s, c), pairs, 0, "")
	return strings.Join(lines, "\n") + ";", args
}

// InsertI18nStatement inserts a record together with its translation in
// the context locale. The translation takes its key from the inserted
// base row.
func (cp *Compiler) InsertI18nStatement(s *anansi.Schema, c *anansi.Context, base, i18n []Pair) (string, []any) {
	lines, args := cp.insertLines(cp.Table(s, c), base, 0, indent)
	pairs := append(append([]Pair(nil), i18n...), Pair{Column: "locale", Value: cp.locale(c)})
	columns, values, i18nArgs := GenerateArgLists(pairs, cp.Quote, len(args))
	for _, code := range keyCodes(s) {
		columns = append(columns, cp.Quote(code))
		values = append(values, "standard."+cp.Quote(code))
	}
	out := []string{"WITH standard AS ("}
	out = append(out, lines...)
	out = append(out,
		"), i18n AS (",
		indent+"INSERT INTO "+cp.I18nTable(s, c)+" (",
		indent+indent+strings.Join(columns, ", "),
		indent+")",
		indent+"SELECT "+strings.Join(values, ", ")+" FROM standard",
		indent+"RETURNING *",
		")",
		"SELECT standard.*, i18n.* FROM standard, i18n;",
	)
	return strings.Join(out, "\n"), append(args, i18nArgs...)
}

// InsertTranslationStatement inserts the translation of an existing
// record in the context locale.
func (cp *Compiler) InsertTranslationStatement(s *anansi.Schema, c *anansi.Context, i18n, key []Pair) (string, []any) {
	pairs := append(append([]Pair(nil), i18n...), Pair{Column: "locale", Value: cp.locale(c)})
	lines, args := cp.insertLines(cp.I18nTable(s, c), append(pairs, key...), 0, "")
	return strings.Join(lines, "\n") + ";", args
}

func (cp *Compiler) update(table string, pairs, where []Pair) (string, []any) {
	sets, args := GenerateArgPairs(pairs, cp.Quote, 0)
	conds, whereArgs := GenerateArgPairs(where, cp.Quote, len(args))
	return "UPDATE " + table + " SET\n" +
		indent + strings.Join(sets, ", ") + "\n" +
		"WHERE " + strings.Join(conds, " AND ") + "\n" +
		"RETURNING *;", append(args, whereArgs...)
}

// UpdateStatement updates the base row of s matching key.
func (cp *Compiler) UpdateStatement(s *anansi.Schema, c *anansi.Context, pairs, key []Pair) (string, []any) {
	return cp.update(cp.Table(s, c), pairs, key)
}

// UpdateI18nStatement updates the translation of the row matching key in
// the context locale.
func (cp *Compiler) UpdateI18nStatement(s *anansi.Schema, c *anansi.Context, pairs, key []Pair) (string, []any) {
	where := append(append([]Pair(nil), key...), Pair{Column: "locale", Value: cp.locale(c)})
	return cp.update(cp.I18nTable(s, c), pairs, where)
}

func (cp *Compiler) delete(table string, key []Pair) (string, []any) {
	conds, args := GenerateArgPairs(key, cp.Quote, 0)
	return "DELETE FROM " + table + "\nWHERE " + strings.Join(conds, " AND ") + ";", args
}

// DeleteStatement deletes the base row of s matching key.
func (cp *Compiler) DeleteStatement(s *anansi.Schema, c *anansi.Context, key []Pair) (string, []any) {
	return cp.delete(cp.Table(s, c), key)
}

// DeleteI18nStatement deletes every translation of the row matching key.
func (cp *Compiler) DeleteI18nStatement(s *anansi.Schema, c *anansi.Context, key []Pair) (string, []any) {
	return cp.delete(cp.I18nTable(s, c), key)
}

// DeleteWhereStatement deletes the base rows of s matching the where
// predicate of c. Predicates over translatable fields are not supported.
func (cp *Compiler) DeleteWhereStatement(ctx context.Context, s *anansi.Schema, c *anansi.Context) (string, []any, error) {
	where, args, err := cp.deleteWhere(ctx, s, c)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + cp.Table(s, c) + "\nWHERE " + where + ";", args, nil
}

// DeleteI18nWhereStatement deletes the translations of the base rows of
// s matching the where predicate of c.
func (cp *Compiler) DeleteI18nWhereStatement(ctx context.Context, s *anansi.Schema, c *anansi.Context) (string, []any, error) {
	where, args, err := cp.deleteWhere(ctx, s, c)
	if err != nil {
		return "", nil, err
	}
	codes := keyCodes(s)
	columns := make([]string, len(codes))
	for i, code := range codes {
		columns[i] = cp.Quote(code)
	}
	keys := strings.Join(columns, ", ")
	if len(columns) > 1 {
		keys = "(" + keys + ")"
	}
	return "DELETE FROM " + cp.I18nTable(s, c) + "\n" +
		"WHERE " + keys + " IN (SELECT " + strings.Join(columns, ", ") + " FROM " + cp.Table(s, c) + " WHERE " + where + ");", args, nil
}

func (cp *Compiler) deleteWhere(ctx context.Context, s *anansi.Schema, c *anansi.Context) (string, []any, error) {
	if c == nil || c.Where == nil || c.Where.IsEmpty() {
		return "", nil, ErrUnboundDelete
	}
	if hasTranslatable(predicateFields(s, c.Where)) {
		return "", nil, fmt.Errorf("dialect/sql: delete of %s filters on translatable fields", s.Name())
	}
	b := cp.builder(s, c, false, 0)
	where, err := b.predicate(ctx, c.Where)
	if err != nil {
		return "", nil, err
	}
	if where == "" {
		return "", nil, ErrUnboundDelete
	}
	return where, b.args, nil
}
