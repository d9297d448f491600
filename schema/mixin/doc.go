// Package mixin provides the base mixin implementation for anansi schemas.
//
// A mixin is a reusable set of fields, indexes, references and collectors
// merged into the local members of every schema that lists it. Members of
// later mixins and of the schema itself replace same-named earlier ones.
//
// To create a custom mixin, embed Schema and override the methods you need:
//
//	type Audit struct {
//	    mixin.Schema
//	}
//
//	func (Audit) Fields() []*field.Field {
//	    return []*field.Field{
//	        field.String("created_by"),
//	        field.String("updated_by"),
//	    }
//	}
//
//	func (Audit) Indexes() []*index.Index {
//	    return []*index.Index{
//	        index.Fields("created_by"),
//	    }
//	}
//
// Using mixins:
//
//	users := anansi.NewSchema("User",
//	    anansi.Mixins(Audit{}, mixin.FlagFields(Owner{}, field.Private)),
//	    anansi.HasFields(field.String("email")),
//	)
//
// Mixin methods are called once per schema, so they must return fresh
// members on every call.
//
// For timestamps, soft deletion and tenant keys, see the contrib/mixin
// package.
package mixin
