// Package mixin provides common mixin implementations for anansi schemas.
//
// These mixins are OPTIONAL and provided as convenient starting points.
// Users are encouraged to create their own mixins tailored to their needs.
//
// Available mixins:
//   - CreateTime: Adds created_at timestamp field
//   - UpdateTime: Adds updated_at timestamp field
//   - Time: Combines CreateTime and UpdateTime
//   - ID: Adds UUID primary key with auto-generation
//   - SerialID: Adds auto-assigned integer primary key
//   - SoftDelete: Adds deleted_at field for soft deletion
//   - TenantID: Adds tenant_id field for multi-tenancy
//   - TimeSoftDelete: Combines Time and SoftDelete
//
// The fields are maintained at runtime by middleware installed on a store:
//
//	st := anansi.NewStore(
//	    anansi.WithStorage(storage),
//	    anansi.WithMiddleware(mixin.Touch(nil), mixin.SoftDeletes(nil)),
//	)
package mixin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/schema/field"
	"github.com/syssam/anansi/schema/mixin"
)

// Field names maintained by the mixins of this package.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
	DeletedAt = "deleted_at"
	Tenant    = "tenant_id"
)

// WithDeleted is the scope key that disables the soft delete filter.
const WithDeleted = "with_deleted"

func now(*field.Field) any { return time.Now().UTC() }

// CreateTime adds created_at time field.
// The field is read-only and defaults to the current UTC time.
type CreateTime struct{ mixin.Schema }

// Fields of the create time mixin.
func (CreateTime) Fields() []*field.Field {
	return []*field.Field{
		field.Datetime(CreatedAt).
			UTC().
			DefaultFunc(now).
			Flags(field.ReadOnly),
	}
}

// create time mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*CreateTime)(nil)

// UpdateTime adds updated_at time field.
// The field is refreshed on every save by the Touch middleware.
type UpdateTime struct{ mixin.Schema }

// Fields of the update time mixin.
func (UpdateTime) Fields() []*field.Field {
	return []*field.Field{
		field.Datetime(UpdatedAt).
			UTC().
			DefaultFunc(now),
	}
}

// update time mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*UpdateTime)(nil)

// Time composes CreateTime and UpdateTime mixins.
// Provides both created_at and updated_at fields.
type Time struct{ mixin.Schema }

// Fields of the time mixin.
func (Time) Fields() []*field.Field {
	return append(
		CreateTime{}.Fields(),
		UpdateTime{}.Fields()...,
	)
}

// time mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*Time)(nil)

// ID adds a UUID primary key field with auto-generation.
// Uses github.com/google/uuid for UUID generation.
//
// For custom ID types, create your own mixin:
//
//	type SnowflakeID struct{ mixin.Schema }
//
//	func (SnowflakeID) Fields() []*field.Field {
//	    return []*field.Field{
//	        field.Integer("id").Flags(field.Key).Generator(snowflake.Next),
//	    }
//	}
type ID struct{ mixin.Schema }

// Fields of the ID mixin.
func (ID) Fields() []*field.Field {
	return []*field.Field{
		field.UUID("id").
			Generator(func() any { return uuid.New() }).
			Flags(field.Key, field.Required, field.ReadOnly),
	}
}

// id mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*ID)(nil)

// SerialID adds an integer primary key assigned by the storage.
type SerialID struct{ mixin.Schema }

// Fields of the SerialID mixin.
func (SerialID) Fields() []*field.Field {
	return []*field.Field{field.Serial("id")}
}

// serial id mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*SerialID)(nil)

// SoftDelete adds a deleted_at field for soft deletion.
// Records are not physically deleted but marked with a deletion timestamp
// when the SoftDeletes middleware is installed.
type SoftDelete struct{ mixin.Schema }

// Fields of the SoftDelete mixin.
func (SoftDelete) Fields() []*field.Field {
	return []*field.Field{
		field.Datetime(DeletedAt).UTC(),
	}
}

// soft delete mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*SoftDelete)(nil)

// TenantID adds a tenant_id field for multi-tenancy support.
// Combined with privacy.TenantRule, this enables row-level tenant isolation.
//
// The field is read-only to prevent moving records across tenants.
type TenantID struct{ mixin.Schema }

// Fields of the TenantID mixin.
func (TenantID) Fields() []*field.Field {
	return []*field.Field{
		field.String(Tenant).
			Required().
			Flags(field.ReadOnly),
	}
}

// tenant id mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*TenantID)(nil)

// TimeSoftDelete composes Time and SoftDelete mixins.
// Provides created_at, updated_at, and deleted_at fields.
type TimeSoftDelete struct{ mixin.Schema }

// Fields of the TimeSoftDelete mixin.
func (TimeSoftDelete) Fields() []*field.Field {
	return append(
		Time{}.Fields(),
		SoftDelete{}.Fields()...,
	)
}

// time soft delete mixin must implement `Mixin` interface.
var _ anansi.Mixin = (*TimeSoftDelete)(nil)

// Touch returns a middleware setting updated_at on every update of a
// schema that has the field. A nil clock uses time.Now.
func Touch(clock func() time.Time) anansi.Middleware {
	if clock == nil {
		clock = time.Now
	}
	return anansi.On(anansi.KindSaveRecord, func(ctx context.Context, a anansi.Action, next anansi.Handler) (any, error) {
		rec := a.(*anansi.SaveRecordAction).Record
		if _, ok := rec.Schema().Field(UpdatedAt); ok && !rec.IsNew() {
			if err := rec.Set(ctx, UpdatedAt, clock().UTC()); err != nil {
				return nil, err
			}
		}
		return next(ctx, a)
	})
}

// SoftDeletes returns a middleware for schemas with a deleted_at field.
// Lookups skip deleted records unless the context scope sets WithDeleted,
// and record deletes become saves of the deletion time. A nil clock uses
// time.Now.
func SoftDeletes(clock func() time.Time) anansi.Middleware {
	if clock == nil {
		clock = time.Now
	}
	return anansi.MiddlewareFunc(func(next anansi.Handler) anansi.Handler {
		return func(ctx context.Context, a anansi.Action) (any, error) {
			if !softDeletable(a.Target()) {
				return next(ctx, a)
			}
			switch a := a.(type) {
			case *anansi.GetRecordsAction, *anansi.GetCountAction:
				c := a.Options()
				if deleted, _ := c.Scope[WithDeleted].(bool); !deleted {
					c.Where = anansi.And(c.Where, anansi.Q(DeletedAt).Is(nil))
				}
			case *anansi.DeleteRecordAction:
				if err := a.Record.Set(ctx, DeletedAt, clock().UTC()); err != nil {
					return nil, err
				}
				if _, err := next(ctx, &anansi.SaveRecordAction{Record: a.Record, Context: a.Options()}); err != nil {
					return nil, err
				}
				a.Record.MarkLoaded()
				return 1, nil
			}
			return next(ctx, a)
		}
	})
}

func softDeletable(s *anansi.Schema) bool {
	if s == nil {
		return false
	}
	_, ok := s.Field(DeletedAt)
	return ok
}
