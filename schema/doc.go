// Package schema groups the building blocks used to describe anansi
// schemas:
//
//   - [field]: scalar attributes, their flags and validation
//   - [index]: named sets of fields, including composite keys
//   - [edge]: references to one record and collectors of many
//   - [mixin]: reusable member sets
//
// # Quick Start
//
//	users := anansi.NewSchema("User",
//	    anansi.Mixins(mixin.Time{}),
//	    anansi.HasFields(
//	        field.Serial("id"),
//	        field.String("email").Required().Unique().MaxLen(255),
//	        field.Integer("role_id").RefersTo("Role.id"),
//	    ),
//	    anansi.HasReferences(edge.Reference("role", "Role").Source("role_id")),
//	    anansi.HasCollectors(edge.Collector("posts", "Post").Source("user_id")),
//	)
//
// Schemas are immutable once built. Fields, indexes, references and
// collectors are matched by name: members inherited from parent schemas
// come first, followed by mixin members and local members, and a later
// member replaces an earlier one in place.
package schema
