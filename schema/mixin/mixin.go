package mixin

import (
	"github.com/syssam/anansi"
	"github.com/syssam/anansi/schema/edge"
	"github.com/syssam/anansi/schema/field"
	"github.com/syssam/anansi/schema/index"
)

// Schema is the default implementation for the anansi.Mixin interface.
// It should be embedded in all custom mixin definitions.
//
// Example:
//
//	type Audit struct {
//	    mixin.Schema
//	}
//
//	func (Audit) Fields() []*field.Field {
//	    return []*field.Field{
//	        field.String("created_by"),
//	    }
//	}
type Schema struct{}

// Fields returns the fields of the mixin.
func (Schema) Fields() []*field.Field { return nil }

// Indexes returns the indexes of the mixin.
func (Schema) Indexes() []*index.Index { return nil }

// References returns the references of the mixin.
func (Schema) References() []*edge.Ref { return nil }

// Collectors returns the collectors of the mixin.
func (Schema) Collectors() []*edge.Coll { return nil }

// schema mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*Schema)(nil)

// FlagFields wraps a mixin and adds flags to all its fields.
//
//	mixin.FlagFields(Audit{}, field.ReadOnly, field.Private)
func FlagFields(m anansi.Mixin, flags ...field.Flag) anansi.Mixin {
	return fieldFlagger{Mixin: m, flags: flags}
}

// FlagRelations wraps a mixin and adds flags to all its references and
// collectors.
func FlagRelations(m anansi.Mixin, flags ...field.Flag) anansi.Mixin {
	return relationFlagger{Mixin: m, flags: flags}
}

// Merge returns a mixin whose members are the members of ms, in order.
func Merge(ms ...anansi.Mixin) anansi.Mixin {
	return merged(ms)
}

type fieldFlagger struct {
	anansi.Mixin
	flags []field.Flag
}

func (f fieldFlagger) Fields() []*field.Field {
	fields := f.Mixin.Fields()
	for _, fd := range fields {
		fd.Flags(f.flags...)
	}
	return fields
}

type relationFlagger struct {
	anansi.Mixin
	flags []field.Flag
}

func (r relationFlagger) References() []*edge.Ref {
	refs := r.Mixin.References()
	for _, ref := range refs {
		ref.Flags(r.flags...)
	}
	return refs
}

func (r relationFlagger) Collectors() []*edge.Coll {
	colls := r.Mixin.Collectors()
	for _, c := range colls {
		c.Flags(r.flags...)
	}
	return colls
}

type merged []anansi.Mixin

func (ms merged) Fields() (out []*field.Field) {
	for _, m := range ms {
		out = append(out, m.Fields()...)
	}
	return out
}

func (ms merged) Indexes() (out []*index.Index) {
	for _, m := range ms {
		out = append(out, m.Indexes()...)
	}
	return out
}

func (ms merged) References() (out []*edge.Ref) {
	for _, m := range ms {
		out = append(out, m.References()...)
	}
	return out
}

func (ms merged) Collectors() (out []*edge.Coll) {
	for _, m := range ms {
		out = append(out, m.Collectors()...)
	}
	return out
}
