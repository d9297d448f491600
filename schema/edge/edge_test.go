package edge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/anansi/schema/edge"
	"github.com/syssam/anansi/schema/field"
)

func TestReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *edge.Ref
		validate func(t *testing.T, r *edge.Ref)
	}{
		{
			name:  "basic",
			build: func() *edge.Ref { return edge.Reference("parent", "Page").Source("parent_id") },
			validate: func(t *testing.T, r *edge.Ref) {
				assert.Equal(t, "parent", r.Name())
				assert.Equal(t, "Page", r.Model())
				assert.Equal(t, "parent_id", r.SourceField())
				assert.Equal(t, "Parent", r.Label())
				assert.False(t, r.IsVirtual())
			},
		},
		{
			name:  "without_source",
			build: func() *edge.Ref { return edge.Reference("user", "User") },
			validate: func(t *testing.T, r *edge.Ref) {
				assert.Empty(t, r.SourceField())
			},
		},
		{
			name: "virtual",
			build: func() *edge.Ref {
				return edge.Reference("owner", "User").
					WithLabel("Owned By").
					Getter(func(context.Context, field.Record) (any, error) { return nil, nil })
			},
			validate: func(t *testing.T, r *edge.Ref) {
				assert.True(t, r.IsVirtual())
				assert.NotNil(t, r.GetterFunc())
				assert.Nil(t, r.SetterFunc())
				assert.Equal(t, "Owned By", r.Label())
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

func TestCollector(t *testing.T) {
	t.Parallel()

	c := edge.Collector("comments", "Comment").Source("user_id")
	assert.Equal(t, "comments", c.Name())
	assert.Equal(t, "Comment", c.Model())
	assert.Equal(t, "user_id", c.SourceField())
	assert.Nil(t, c.ThroughModel())
	assert.Equal(t, "Comments", c.Label())

	c = edge.Collector("groups", "Group").
		Through("GroupUser").
		Source("user_id").
		Target("group_id").
		Flags(field.Private)
	assert.Equal(t, "GroupUser", c.ThroughModel())
	assert.Equal(t, "group_id", c.TargetField())
	assert.True(t, c.HasFlag(field.Private))
	assert.False(t, c.IsVirtual())

	c.Setter(func(context.Context, field.Record, any) error { return nil })
	assert.NotNil(t, c.SetterFunc())
}
