// Package index provides the builder for named groups of schema fields.
//
// An index carrying the Key flag over several fields defines a composite
// primary key:
//
//	index.Fields("tenant_id", "code").PrimaryKey()
//	index.Fields("email").Unique().StorageKey("users_email_idx")
package index

import (
	"strings"

	"github.com/syssam/anansi/schema/field"
)

// Index is a named group of fields.
type Index struct {
	name   string
	fields []string
	flags  field.Flag
}

// Fields returns a new index over the given field names.
func Fields(names ...string) *Index {
	return &Index{fields: names}
}

// StorageKey sets the index name.
func (i *Index) StorageKey(name string) *Index {
	i.name = name
	return i
}

// Flags adds flags to the index.
func (i *Index) Flags(flags ...field.Flag) *Index {
	for _, f := range flags {
		i.flags |= f
	}
	return i
}

// Unique is a shortcut for Flags(field.Unique).
func (i *Index) Unique() *Index { return i.Flags(field.Unique) }

// PrimaryKey is a shortcut for Flags(field.Key).
func (i *Index) PrimaryKey() *Index { return i.Flags(field.Key) }

// Name returns the index name. It defaults to the field names joined by "_".
func (i *Index) Name() string {
	if i.name != "" {
		return i.name
	}
	return strings.Join(i.fields, "_")
}

// FieldNames returns the indexed field names in declaration order.
func (i *Index) FieldNames() []string { return i.fields }

// FlagSet returns the flags of the index.
func (i *Index) FlagSet() field.Flag { return i.flags }

// HasFlag reports whether all flags in mask are set.
func (i *Index) HasFlag(mask field.Flag) bool { return i.flags.Has(mask) }
