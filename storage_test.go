package anansi_test

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/syssam/anansi"
)

// memStorage is an in-memory Storage keyed by schema name. Rows are stored
// by field name and filtered with a small predicate evaluator.
type memStorage struct {
	mu      sync.Mutex
	rows    map[string][]map[string]any
	nextID  int
	calls   map[anansi.ActionKind]int
	last    *anansi.Context
	saved   []*anansi.Model
	deleted []*anansi.Model
	err     error
}

func newMemStorage() *memStorage {
	return &memStorage{
		rows:  make(map[string][]map[string]any),
		calls: make(map[anansi.ActionKind]int),
	}
}

func (s *memStorage) add(schema string, rows ...map[string]any) *memStorage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[schema] = append(s.rows[schema], rows...)
	return s
}

func (s *memStorage) count(k anansi.ActionKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[k]
}

func (s *memStorage) table(schema *anansi.Schema) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows[schema.Name()])
}

func (s *memStorage) record(k anansi.ActionKind, c *anansi.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[k]++
	s.last = c
	return s.err
}

func (s *memStorage) GetRecords(ctx context.Context, schema *anansi.Schema, c *anansi.Context) ([]map[string]any, error) {
	if err := s.record(anansi.KindGetRecords, c); err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, row := range s.table(schema) {
		if matches(ctx, c.Where, row) {
			out = append(out, row)
		}
	}
	for i := len(c.OrderBy) - 1; i >= 0; i-- {
		o := c.OrderBy[i]
		slices.SortStableFunc(out, func(a, b map[string]any) int {
			r := compare(a[o.Field], b[o.Field])
			if o.Direction == anansi.Desc {
				return -r
			}
			return r
		})
	}
	if c.Start > 0 {
		out = out[min(c.Start, len(out)):]
	}
	if c.Limit > 0 {
		out = out[:min(c.Limit, len(out))]
	}
	if len(c.Fields) > 0 {
		trimmed := make([]map[string]any, len(out))
		for i, row := range out {
			trimmed[i] = make(map[string]any, len(c.Fields))
			for _, f := range c.Fields {
				trimmed[i][f] = row[f]
			}
		}
		out = trimmed
	}
	return out, nil
}

func (s *memStorage) GetCount(ctx context.Context, schema *anansi.Schema, c *anansi.Context) (int, error) {
	if err := s.record(anansi.KindGetCount, c); err != nil {
		return 0, err
	}
	n := 0
	for _, row := range s.table(schema) {
		if matches(ctx, c.Where, row) {
			n++
		}
	}
	return n, nil
}

func (s *memStorage) SaveRecord(_ context.Context, m *anansi.Model, c *anansi.Context) (map[string]any, error) {
	if err := s.record(anansi.KindSaveRecord, c); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, m)
	row := m.FieldValues()
	if m.IsNew() {
		if _, ok := m.Schema().Field("id"); ok && row["id"] == nil {
			s.nextID++
			row["id"] = s.nextID
		}
		s.rows[m.Schema().Name()] = append(s.rows[m.Schema().Name()], row)
		return row, nil
	}
	for i, old := range s.rows[m.Schema().Name()] {
		if fmt.Sprint(old["id"]) == fmt.Sprint(row["id"]) {
			s.rows[m.Schema().Name()][i] = row
		}
	}
	return row, nil
}

func (s *memStorage) SaveCollection(ctx context.Context, coll *anansi.Collection, c *anansi.Context) ([]map[string]any, error) {
	if err := s.record(anansi.KindSaveCollection, c); err != nil {
		return nil, err
	}
	records, err := coll.Records(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if m, ok := r.(*anansi.Model); ok {
			out = append(out, m.FieldValues())
		}
	}
	return out, nil
}

func (s *memStorage) DeleteRecord(_ context.Context, m *anansi.Model, c *anansi.Context) (int, error) {
	if err := s.record(anansi.KindDeleteRecord, c); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, m)
	return 1, nil
}

func (s *memStorage) DeleteCollection(ctx context.Context, coll *anansi.Collection, c *anansi.Context) (int, error) {
	if err := s.record(anansi.KindDeleteCollection, c); err != nil {
		return 0, err
	}
	return coll.Count(ctx)
}

func matches(ctx context.Context, p anansi.Predicate, row map[string]any) bool {
	switch p := p.(type) {
	case nil:
		return true
	case *anansi.QueryGroup:
		for _, q := range p.Queries {
			ok := matches(ctx, q, row)
			if p.Op == anansi.OpOr && ok {
				return true
			}
			if p.Op == anansi.OpAnd && !ok {
				return false
			}
		}
		return p.Op == anansi.OpAnd
	case *anansi.Query:
		left := row[fmt.Sprint(p.Left)]
		switch p.Op {
		case anansi.OpIs:
			return fmt.Sprint(left) == fmt.Sprint(p.Right)
		case anansi.OpIsNot:
			return fmt.Sprint(left) != fmt.Sprint(p.Right)
		case anansi.OpIsIn:
			values, _ := p.Right.([]any)
			if sub, ok := p.Right.(*anansi.Collection); ok {
				values, _ = sub.Gather(ctx, sub.Context().Fields...)
			}
			for _, v := range values {
				if fmt.Sprint(left) == fmt.Sprint(v) {
					return true
				}
			}
			return false
		}
	}
	return false
}

func compare(a, b any) int {
	ai, aok := a.(int)
	bi, bok := b.(int)
	if aok && bok {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
