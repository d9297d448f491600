package anansi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Cache is the interface for caching fetched rows.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies the result of a read action.
type CacheKey struct {
	Namespace  string
	Table      string
	Operation  string
	Predicates string
	OrderBy    string
	Fields     string
	Locale     string
	Limit      int
	Offset     int
}

// String returns the string representation of the cache key. The part
// after the table prefix is hashed to keep keys short.
func (k CacheKey) String() string {
	h := sha256.New()
	for _, part := range []string{k.Operation, k.Predicates, k.OrderBy, k.Fields, k.Locale, strconv.Itoa(k.Limit), strconv.Itoa(k.Offset)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return k.Prefix() + hex.EncodeToString(h.Sum(nil))[:32]
}

// Prefix returns the prefix shared by every key of the same table.
func (k CacheKey) Prefix() string {
	return TablePrefix(k.Namespace, k.Table)
}

// TablePrefix returns the cache key prefix of a table.
func TablePrefix(namespace, table string) string {
	if namespace == "" {
		return table + ":"
	}
	return namespace + "." + table + ":"
}

// MakeCacheKey returns the cache key of a GetRecords or GetCount action.
// It reports false for other actions and for predicates whose operands
// cannot be keyed, so such reads bypass the cache.
func MakeCacheKey(a Action) (CacheKey, bool) {
	switch a.Kind() {
	case KindGetRecords, KindGetCount:
	default:
		return CacheKey{}, false
	}
	s, c := a.Target(), a.Options()
	if s == nil {
		return CacheKey{}, false
	}
	return makeCacheKey(s, c, a.Kind().String())
}

func makeCacheKey(s *Schema, c *Context, op string) (CacheKey, bool) {
	if c == nil {
		c = MakeContext()
	}
	k := CacheKey{
		Namespace: ResolveNamespace(s, c, ""),
		Table:     s.ResourceName(),
		Operation: op,
		Fields:    strings.Join(c.Fields, ","),
		Locale:    c.Locale,
		Limit:     c.Limit,
		Offset:    c.Start,
	}
	if c.Where != nil && !c.Where.IsEmpty() {
		material, ok := keyMaterial(c.Where.Map())
		if !ok {
			return CacheKey{}, false
		}
		b, err := json.Marshal(material)
		if err != nil {
			return CacheKey{}, false
		}
		k.Predicates = string(b)
	}
	orders := make([]string, len(c.OrderBy))
	for i, o := range c.OrderBy {
		orders[i] = o.Field + " " + o.Direction.String()
	}
	k.OrderBy = strings.Join(orders, ",")
	if !c.Distinct.IsZero() {
		k.Fields += "|distinct:" + strings.Join(c.Distinct.Names, ",")
		if c.Distinct.All {
			k.Fields += "*"
		}
	}
	if len(c.Include) > 0 {
		k.Fields += "|include:" + strings.Join(c.Include.Paths(), ",")
	}
	return k, true
}

// keyMaterial replaces the model and collection operands of a predicate
// map with values that identify them. A model is keyed by its schema and
// primary key, a store-backed collection by the key of the query it runs.
func keyMaterial(v any) (any, bool) {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for name, x := range v {
			m, ok := keyMaterial(x)
			if !ok {
				return nil, false
			}
			out[name] = m
		}
		return out, true
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			m, ok := keyMaterial(x)
			if !ok {
				return nil, false
			}
			out[i] = m
		}
		return out, true
	case Predicate:
		if isNilPredicate(v) {
			return nil, true
		}
		return keyMaterial(v.Map())
	case *Model:
		if v == nil {
			return nil, true
		}
		key := v.Key()
		if len(key) == 0 || slices.Contains(key, nil) {
			// Unsaved records share a nil key.
			return nil, false
		}
		return map[string]any{"model": v.Schema().Name(), "key": key}, true
	case *Collection:
		if v == nil {
			return nil, true
		}
		if v.static {
			records, ok := keyMaterial(v.records)
			if !ok {
				return nil, false
			}
			return map[string]any{"records": records}, true
		}
		if v.schema == nil {
			return nil, false
		}
		k, ok := makeCacheKey(v.schema, v.ctx, "select")
		if !ok {
			return nil, false
		}
		return map[string]any{"collection": v.schema.Name(), "key": k.String()}, true
	}
	return v, true
}
