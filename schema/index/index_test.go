package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/anansi/schema/field"
	"github.com/syssam/anansi/schema/index"
)

func TestIndexFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *index.Index
		validate func(t *testing.T, idx *index.Index)
	}{
		{
			name:  "single_field",
			build: func() *index.Index { return index.Fields("name") },
			validate: func(t *testing.T, idx *index.Index) {
				assert.Equal(t, []string{"name"}, idx.FieldNames())
				assert.Equal(t, "name", idx.Name())
				assert.Equal(t, field.Flag(0), idx.FlagSet())
			},
		},
		{
			name:  "multiple_fields",
			build: func() *index.Index { return index.Fields("first", "last") },
			validate: func(t *testing.T, idx *index.Index) {
				assert.Equal(t, []string{"first", "last"}, idx.FieldNames())
				assert.Equal(t, "first_last", idx.Name())
			},
		},
		{
			name:  "storage_key",
			build: func() *index.Index { return index.Fields("email").StorageKey("by_email").Unique() },
			validate: func(t *testing.T, idx *index.Index) {
				assert.Equal(t, "by_email", idx.Name())
				assert.True(t, idx.HasFlag(field.Unique))
				assert.False(t, idx.HasFlag(field.Key))
			},
		},
		{
			name:  "composite_key",
			build: func() *index.Index { return index.Fields("tenant_id", "code").PrimaryKey() },
			validate: func(t *testing.T, idx *index.Index) {
				assert.True(t, idx.HasFlag(field.Key))
				assert.Len(t, idx.FieldNames(), 2)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, tt.build())
		})
	}
}
