// Package field provides fluent builders for the scalar attributes of an
// anansi schema.
//
// Field names are the runtime names used in dotted paths and queries. The
// storage column defaults to the name and can be overridden:
//
//	field.String("username").StorageKey("user")   // column: user
//	field.String("display_name").Translatable()    // column in <resource>_i18n
//
// # Field Types
//
//	// String fields
//	field.String("name").MaxLen(200)
//	field.Text("description")
//	field.Regex("pattern")
//
//	// Numeric fields
//	field.Serial("id")
//	field.Integer("count")
//	field.Float("price")
//
//	// Boolean fields
//	field.Bool("is_active")
//
//	// Time fields
//	field.Date("birthday")
//	field.Datetime("created_at").UTC()
//	field.Time("opens_at")
//
//	// UUID and JSON fields
//	field.UUID("id").Flags(field.Key)
//	field.Object("metadata")
//
// # Flags
//
// Behavior is controlled by a flag bit set:
//
//	field.String("email").Flags(field.Unique, field.Required)
//	field.Integer("code").FlagNames("Keyable")
//
// # Virtual Fields
//
// A field with a Getter is computed from the record instead of stored:
//
//	field.String("full_name").
//	    Getter(func(ctx context.Context, r field.Record) (any, error) {
//	        v, err := r.Gather(ctx, "first_name", "last_name")
//	        ...
//	    })
//
// # Validation
//
// Validate checks nil/required, data type, MaxLen, Match and any custom
// validators, in that order. Failures wrap ErrRequired, ErrType,
// ErrMaxLength, ErrPattern or ErrInvalid.
package field
