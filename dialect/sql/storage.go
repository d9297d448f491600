package sql

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/schema/field"
)

// Storage is an anansi.Storage backed by PostgreSQL.
type Storage struct {
	exec     Executor
	compiler *Compiler
	logger   *slog.Logger
}

// Option configures a Storage.
type Option func(*Storage)

// WithCompiler sets the statement compiler.
func WithCompiler(cp *Compiler) Option {
	return func(s *Storage) { s.compiler = cp }
}

// WithNamespace sets the namespace of schemas that name none.
func WithNamespace(ns string) Option {
	return func(s *Storage) { s.compiler.Namespace = ns }
}

// WithLocale sets the translation locale of contexts that name none.
func WithLocale(locale string) Option {
	return func(s *Storage) { s.compiler.Locale = locale }
}

// WithLogger sets the logger of compiled statements.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) { s.logger = l }
}

// NewStorage returns a storage running statements on ex.
func NewStorage(ex Executor, opts ...Option) *Storage {
	s := &Storage{exec: ex, compiler: NewCompiler(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compiler returns the statement compiler.
func (s *Storage) Compiler() *Compiler { return s.compiler }

// Executor returns the statement executor.
func (s *Storage) Executor() Executor { return s.exec }

func (s *Storage) fetch(ctx context.Context, ex Executor, query string, args []any) ([]map[string]any, error) {
	s.logger.DebugContext(ctx, "anansi: query", slog.String("sql", query), slog.Any("args", args))
	rows, err := ex.Fetch(ctx, query, args...)
	return rows, wrapError(err)
}

func (s *Storage) execute(ctx context.Context, ex Executor, query string, args []any) (int64, error) {
	s.logger.DebugContext(ctx, "anansi: exec", slog.String("sql", query), slog.Any("args", args))
	n, err := ex.Exec(ctx, query, args...)
	return n, wrapError(err)
}

// GetRecords implements anansi.Storage.
func (s *Storage) GetRecords(ctx context.Context, sc *anansi.Schema, c *anansi.Context) ([]map[string]any, error) {
	c = copyContext(c)
	c.Returning = anansi.ReturnRecords
	query, args, err := s.compiler.GenerateSelectStatement(ctx, sc, c, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.fetch(ctx, s.exec, query, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// GetCount implements anansi.Storage.
func (s *Storage) GetCount(ctx context.Context, sc *anansi.Schema, c *anansi.Context) (int, error) {
	c = copyContext(c)
	c.Returning = anansi.ReturnCount
	query, args, err := s.compiler.GenerateSelectStatement(ctx, sc, c, 0)
	if err != nil {
		return 0, err
	}
	rows, err := s.fetch(ctx, s.exec, query, args)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return toInt(rows[0]["count"])
}

func copyContext(c *anansi.Context) *anansi.Context {
	if c == nil {
		return anansi.MakeContext()
	}
	return c.Copy()
}

func toInt(v any) (int, error) {
	switch v := v.(type) {
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case int:
		return v, nil
	case []byte:
		return strconv.Atoi(string(v))
	case string:
		return strconv.Atoi(v)
	}
	return 0, fmt.Errorf("dialect/sql: unexpected count %T", v)
}

// SaveRecord implements anansi.Storage. New records are inserted, others
// are updated with their pending changes.
func (s *Storage) SaveRecord(ctx context.Context, m *anansi.Model, c *anansi.Context) (map[string]any, error) {
	if err := writable(m.Schema()); err != nil {
		return nil, err
	}
	return s.save(ctx, s.exec, m, c)
}

// writable fails with a ReadOnlyError for view schemas.
func writable(sc *anansi.Schema) error {
	if sc != nil && sc.IsView() {
		return anansi.NewReadOnlyError(sc.Name(), "")
	}
	return nil
}

func (s *Storage) save(ctx context.Context, ex Executor, m *anansi.Model, c *anansi.Context) (map[string]any, error) {
	if m.IsNew() {
		return s.create(ctx, ex, m, c)
	}
	return s.update(ctx, ex, m, c)
}

// split divides values into base and translation pairs in field order.
// Generated fields without a value are left to the database.
func split(sc *anansi.Schema, values map[string]any) (base, i18n []Pair, err error) {
	for _, f := range sc.Fields() {
		v, ok := values[f.Name()]
		if !ok || f.IsVirtual() || (v == nil && f.HasFlag(field.AutoAssign)) {
			continue
		}
		if v, err = f.DumpValue(v); err != nil {
			return nil, nil, anansi.NewValidationError(f.Name(), err)
		}
		if f.HasFlag(field.Translatable) {
			i18n = append(i18n, Pair{Column: f.I18nCode(), Value: v})
		} else {
			base = append(base, Pair{Column: f.Code(), Value: v})
		}
	}
	return base, i18n, nil
}

// translated copies translation columns to their field names.
func translated(sc *anansi.Schema, row map[string]any) map[string]any {
	for _, f := range sc.TranslatableFields() {
		if v, ok := row[f.I18nCode()]; ok && f.I18nCode() != f.Name() {
			row[f.Name()] = v
		}
	}
	return row
}

func first(rows []map[string]any) map[string]any {
	if len(rows) == 0 {
		return map[string]any{}
	}
	return rows[0]
}

func (s *Storage) create(ctx context.Context, ex Executor, m *anansi.Model, c *anansi.Context) (map[string]any, error) {
	sc := m.Schema()
	base, i18n, err := split(sc, m.FieldValues())
	if err != nil {
		return nil, err
	}
	var (
		query string
		args  []any
	)
	if len(i18n) == 0 {
		query, args = s.compiler.InsertStatement(sc, c, base)
	} else {
		query, args = s.compiler.InsertI18nStatement(sc, c, base, i18n)
	}
	rows, err := s.fetch(ctx, ex, query, args)
	if err != nil {
		return nil, err
	}
	return translated(sc, first(rows)), nil
}

func (s *Storage) update(ctx context.Context, ex Executor, m *anansi.Model, c *anansi.Context) (map[string]any, error) {
	sc := m.Schema()
	changes := m.LocalChanges()
	values := make(map[string]any, len(changes))
	for name, ch := range changes {
		values[name] = ch.New
	}
	base, i18n, err := split(sc, values)
	if err != nil {
		return nil, err
	}
	key, err := keyPairs(sc, m.LoadedKey())
	if err != nil {
		return nil, err
	}
	if len(base)+len(i18n) == 0 {
		return map[string]any{}, nil
	}
	if len(i18n) == 0 {
		query, args := s.compiler.UpdateStatement(sc, c, base, key)
		rows, err := s.fetch(ctx, ex, query, args)
		if err != nil {
			return nil, err
		}
		return first(rows), nil
	}
	row := map[string]any{}
	err = ex.Tx(ctx, func(tx Executor) error {
		if len(base) > 0 {
			query, args := s.compiler.UpdateStatement(sc, c, base, key)
			rows, err := s.fetch(ctx, tx, query, args)
			if err != nil {
				return err
			}
			maps.Copy(row, first(rows))
		}
		query, args := s.compiler.UpdateI18nStatement(sc, c, i18n, key)
		rows, err := s.fetch(ctx, tx, query, args)
		if err != nil {
			return err
		}
		// No translation in this locale yet.
		if len(rows) == 0 {
			query, args = s.compiler.InsertTranslationStatement(sc, c, i18n, key)
			if rows, err = s.fetch(ctx, tx, query, args); err != nil {
				return err
			}
		}
		maps.Copy(row, translated(sc, first(rows)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// SaveCollection implements anansi.Storage. Changed and new records are
// saved in one transaction and committed once it succeeds.
func (s *Storage) SaveCollection(ctx context.Context, coll *anansi.Collection, c *anansi.Context) ([]map[string]any, error) {
	if err := writable(coll.Schema()); err != nil {
		return nil, err
	}
	records, err := coll.Records(ctx)
	if err != nil {
		return nil, err
	}
	var (
		saved []*anansi.Model
		rows  []map[string]any
	)
	err = s.exec.Tx(ctx, func(tx Executor) error {
		for _, r := range records {
			m, ok := r.(*anansi.Model)
			if !ok || (!m.IsNew() && !m.IsChanged()) {
				continue
			}
			if err := m.Prepare(); err != nil {
				return err
			}
			row, err := s.save(ctx, tx, m, c)
			if err != nil {
				return err
			}
			saved, rows = append(saved, m), append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, m := range saved {
		m.Commit(rows[i])
	}
	return rows, nil
}

// DeleteRecord implements anansi.Storage. Translations are deleted
// before the base row.
func (s *Storage) DeleteRecord(ctx context.Context, m *anansi.Model, c *anansi.Context) (int, error) {
	sc := m.Schema()
	if err := writable(sc); err != nil {
		return 0, err
	}
	key, err := keyPairs(sc, m.LoadedKey())
	if err != nil {
		return 0, err
	}
	if !sc.HasTranslations() {
		query, args := s.compiler.DeleteStatement(sc, c, key)
		n, err := s.execute(ctx, s.exec, query, args)
		return int(n), err
	}
	var n int64
	err = s.exec.Tx(ctx, func(tx Executor) error {
		query, args := s.compiler.DeleteI18nStatement(sc, c, key)
		if _, err := s.execute(ctx, tx, query, args); err != nil {
			return err
		}
		query, args = s.compiler.DeleteStatement(sc, c, key)
		n, err = s.execute(ctx, tx, query, args)
		return err
	})
	return int(n), err
}

// DeleteCollection implements anansi.Storage. A static collection deletes
// its records by key; otherwise the context predicate selects the rows.
func (s *Storage) DeleteCollection(ctx context.Context, coll *anansi.Collection, c *anansi.Context) (int, error) {
	sc := coll.Schema()
	if err := writable(sc); err != nil {
		return 0, err
	}
	c = copyContext(c)
	if coll.IsStatic() {
		where, err := staticKeys(ctx, sc, coll)
		if err != nil {
			return 0, err
		}
		c.Where = where
	}
	query, args, err := s.compiler.DeleteWhereStatement(ctx, sc, c)
	if err != nil {
		return 0, err
	}
	if !sc.HasTranslations() {
		n, err := s.execute(ctx, s.exec, query, args)
		return int(n), err
	}
	i18nQuery, i18nArgs, err := s.compiler.DeleteI18nWhereStatement(ctx, sc, c)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.exec.Tx(ctx, func(tx Executor) error {
		if _, err := s.execute(ctx, tx, i18nQuery, i18nArgs); err != nil {
			return err
		}
		n, err = s.execute(ctx, tx, query, args)
		return err
	})
	return int(n), err
}

// staticKeys returns the predicate matching the committed keys of the
// records of a static collection.
func staticKeys(ctx context.Context, sc *anansi.Schema, coll *anansi.Collection) (anansi.Predicate, error) {
	records, err := coll.Records(ctx)
	if err != nil {
		return nil, err
	}
	keys := sc.KeyFields()
	var (
		values []any
		preds  []anansi.Predicate
	)
	for _, r := range records {
		m, ok := r.(*anansi.Model)
		if !ok || m.IsNew() {
			continue
		}
		if len(keys) == 1 {
			values = append(values, m.LoadedKey()[0])
			continue
		}
		p, err := m.KeyQuery()
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(values) > 0 {
		return anansi.Q(keys[0].Name()).IsIn(values...), nil
	}
	return anansi.Or(preds...), nil
}

// MakeStoreValue implements anansi.ValueMaker. It renders v as a
// PostgreSQL literal.
func (s *Storage) MakeStoreValue(ctx context.Context, v any, c *anansi.Context) (any, error) {
	lit, err := literal(v)
	if err != nil {
		return nil, err
	}
	return anansi.Literal(lit), nil
}

func literal(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case anansi.Literal:
		return string(v), nil
	case string:
		return pq.QuoteLiteral(v), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	case time.Time:
		return pq.QuoteLiteral(v.Format(time.RFC3339Nano)), nil
	case []byte:
		return `'\x` + hex.EncodeToString(v) + `'`, nil
	case *anansi.Model:
		key := v.Key()
		if len(key) == 1 {
			return literal(key[0])
		}
		return literal(key)
	case fmt.Stringer:
		return pq.QuoteLiteral(v.String()), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		if rv.Len() == 0 {
			return "(NULL)", nil
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			lit, err := literal(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			parts[i] = lit
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	}
	return "", fmt.Errorf("dialect/sql: no literal for %T", v)
}

var (
	_ anansi.Storage    = (*Storage)(nil)
	_ anansi.ValueMaker = (*Storage)(nil)
)
