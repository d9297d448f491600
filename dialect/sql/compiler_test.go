package sql_test

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/dialect/sql"
	"github.com/syssam/anansi/schema/field"
)

type schemas struct {
	reg       *anansi.Registry
	user      *anansi.Schema
	content   *anansi.Schema
	groupUser *anansi.Schema
}

func newSchemas() *schemas {
	reg := anansi.NewRegistry()
	return &schemas{
		reg: reg,
		user: anansi.NewSchema("User", anansi.InRegistry(reg), anansi.InNamespace("test"), anansi.HasFields(
			field.Serial("id"),
			field.String("username").StorageKey("user"),
			field.String("first_name"),
			field.String("last_name"),
			field.String("display").Translatable().I18nStorageKey("display_name"),
		)),
		content: anansi.NewSchema("Content", anansi.InRegistry(reg), anansi.HasFields(
			field.Serial("id"),
			field.String("code"),
			field.String("title").Translatable(),
		)),
		groupUser: anansi.NewSchema("GroupUser", anansi.InRegistry(reg), anansi.HasFields(
			field.Integer("group_id").Flags(field.Key),
			field.Integer("user_id").Flags(field.Key),
		)),
	}
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden.sql"),
	)
}

// TestGenerateArgLists tests column, marker and arg generation.
func TestGenerateArgLists(t *testing.T) {
	t.Parallel()
	pairs := []sql.Pair{
		{Column: "a", Value: 1},
		{Column: "b", Value: anansi.Literal("now()")},
		{Column: "c", Value: "x"},
	}

	tests := []struct {
		name   string
		offset int
		values []string
	}{
		{"from one", 0, []string{"$1", "now()", "$2"}},
		{"with offset", 2, []string{"$3", "now()", "$4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			columns, values, args := sql.GenerateArgLists(pairs, sql.QuoteIdent, tt.offset)
			assert.Equal(t, []string{`"a"`, `"b"`, `"c"`}, columns)
			assert.Equal(t, tt.values, values)
			assert.Equal(t, []any{1, "x"}, args)
		})
	}

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		columns, values, args := sql.GenerateArgLists(nil, sql.QuoteIdent, 0)
		assert.Empty(t, columns)
		assert.Empty(t, values)
		assert.Empty(t, args)
	})
}

// TestGenerateArgPairs tests assignment generation.
func TestGenerateArgPairs(t *testing.T) {
	t.Parallel()
	pairs, args := sql.GenerateArgPairs([]sql.Pair{
		{Column: "a", Value: 1},
		{Column: "b", Value: anansi.Literal("DEFAULT")},
		{Column: "c", Value: 2},
	}, sql.QuoteIdent, 1)
	assert.Equal(t, []string{`"a"=$2`, `"b"=DEFAULT`, `"c"=$3`}, pairs)
	assert.Equal(t, []any{1, 2}, args)
}

// TestResolveOp tests the operator tables.
func TestResolveOp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		op   anansi.Op
		want string
	}{
		{anansi.OpIs, "="},
		{anansi.OpIsNot, "!="},
		{anansi.OpGreaterThan, ">"},
		{anansi.OpAfter, ">"},
		{anansi.OpGreaterThanOrEqual, ">="},
		{anansi.OpLessThan, "<"},
		{anansi.OpBefore, "<"},
		{anansi.OpLessThanOrEqual, "<="},
		{anansi.OpIsIn, "IN"},
		{anansi.OpIsNotIn, "NOT IN"},
		{anansi.OpContains, "LIKE"},
		{anansi.OpContainsInsensitive, "ILIKE"},
		{anansi.OpMatches, "~"},
	}
	for _, tt := range tests {
		got, ok := sql.ResolveOp(tt.op)
		require.True(t, ok, tt.op.String())
		assert.Equal(t, tt.want, got, tt.op.String())
	}
	and, _ := sql.ResolveGroupOp(anansi.OpAnd)
	or, _ := sql.ResolveGroupOp(anansi.OpOr)
	assert.Equal(t, "AND", and)
	assert.Equal(t, "OR", or)
}

// TestGenerateSelectColumns tests the column list of selects.
func TestGenerateSelectColumns(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()

	tests := []struct {
		name string
		ctx  *anansi.Context
		want string
	}{
		{
			name: "all fields sorted and joined",
			ctx:  anansi.MakeContext(),
			want: `i18n."display_name" AS "display", "users"."first_name" AS "first_name", "users"."id" AS "id", "users"."last_name" AS "last_name", "users"."user" AS "username"`,
		},
		{
			name: "selected fields",
			ctx:  anansi.MakeContext(anansi.Fields("first_name", "username")),
			want: `"first_name", "user" AS "username"`,
		},
		{
			name: "count",
			ctx:  anansi.MakeContext(anansi.Returning("count")),
			want: `COUNT(*) AS "count"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, _ := cp.GenerateSelectColumns(s.user, tt.ctx)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestGenerateSelectDistinct tests DISTINCT and DISTINCT ON clauses.
func TestGenerateSelectDistinct(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()

	tests := []struct {
		name string
		ctx  *anansi.Context
		want string
	}{
		{"none", anansi.MakeContext(), ""},
		{"all", anansi.MakeContext(anansi.DistinctAll()), "DISTINCT "},
		{
			"sorted names",
			anansi.MakeContext(anansi.Fields("first_name", "last_name"), anansi.Distinct("last_name", "first_name")),
			`DISTINCT ON ("first_name", "last_name") `,
		},
		{
			"translated",
			anansi.MakeContext(anansi.Fields("display"), anansi.Distinct("display")),
			`DISTINCT ON (i18n."display_name") `,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cp.GenerateSelectDistinct(s.user, tt.ctx))
		})
	}
}

// TestGenerateSelectOrder tests ORDER BY clauses.
func TestGenerateSelectOrder(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()

	assert.Empty(t, cp.GenerateSelectOrder(s.user, anansi.MakeContext()))
	c := anansi.MakeContext(anansi.Fields("first_name", "last_name"), anansi.OrderBy("first_name", "-last_name"))
	assert.Equal(t, `ORDER BY "first_name" ASC, "last_name" DESC`, cp.GenerateSelectOrder(s.user, c))
	c = anansi.MakeContext(anansi.Fields("username"), anansi.OrderBy("-username"))
	assert.Equal(t, `ORDER BY "user" DESC`, cp.GenerateSelectOrder(s.user, c))
}

// TestGenerateSelectTranslation tests the translation join.
func TestGenerateSelectTranslation(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()

	t.Run("default locale", func(t *testing.T) {
		t.Parallel()
		join, args := cp.GenerateSelectTranslation(s.user, anansi.MakeContext(), s.user.Fields(), 0)
		assert.Equal(t, `LEFT JOIN "test"."users_i18n" AS i18n ON (i18n."id" = "users"."id" AND i18n."locale" = $1)`, join)
		assert.Equal(t, []any{"en_US"}, args)
	})
	t.Run("locale with offset", func(t *testing.T) {
		t.Parallel()
		join, args := cp.GenerateSelectTranslation(s.user, anansi.MakeContext(anansi.Locale("fr_FR")), s.user.Fields(), 2)
		assert.Contains(t, join, `i18n."locale" = $3`)
		assert.Equal(t, []any{"fr_FR"}, args)
	})
	t.Run("no translatable fields", func(t *testing.T) {
		t.Parallel()
		id, _ := s.user.Field("id")
		join, args := cp.GenerateSelectTranslation(s.user, anansi.MakeContext(), []*field.Field{id}, 0)
		assert.Empty(t, join)
		assert.Nil(t, args)
	})
}

// TestGenerateSelectQuery tests compiling where predicates.
func TestGenerateSelectQuery(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()

	tests := []struct {
		name  string
		where anansi.Predicate
		want  string
		args  []any
	}{
		{"is null", anansi.Q("username").Is(nil), `"user" is null`, nil},
		{"is not null", anansi.Q("username").IsNot(nil), `"user" is not null`, nil},
		{"equal", anansi.Q("username").Is("bob"), `"user" = $1`, []any{"bob"}},
		{
			"group",
			anansi.And(anansi.Q("first_name").Is("a"), anansi.Q("last_name").Is("b")),
			`("first_name" = $1 AND "last_name" = $2)`,
			[]any{"a", "b"},
		},
		{
			"nested groups",
			anansi.Or(anansi.Q("id").Is(1), anansi.And(anansi.Q("first_name").Is("a"), anansi.Q("last_name").Is("b"))),
			`("id" = $1 OR ("first_name" = $2 AND "last_name" = $3))`,
			[]any{1, "a", "b"},
		},
		{"in", anansi.Q("id").IsIn(1, 2, 3), `"id" IN ($1, $2, $3)`, []any{1, 2, 3}},
		{"in empty", anansi.Q("id").IsIn([]int{}), `"id" IN (NULL)`, nil},
		{"contains", anansi.Q("first_name").Contains("jo"), `"first_name" LIKE $1`, []any{"%jo%"}},
		{"contains insensitive", anansi.Q("first_name").ContainsInsensitive("jo"), `"first_name" ILIKE $1`, []any{"%jo%"}},
		{"matches", anansi.Q("last_name").Matches("^D"), `"last_name" ~ $1`, []any{"^D"}},
		{"field to field", anansi.Q("first_name").Is(anansi.Q("last_name")), `"first_name" = "last_name"`, nil},
		{"literal", anansi.Q("id").GreaterThan(anansi.Literal("10")), `"id" > 10`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := anansi.MakeContext(anansi.Fields("id"), anansi.Where(tt.where))
			got, args, err := cp.GenerateSelectQuery(context.Background(), s.user, c, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, args)
		})
	}

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		got, args, err := cp.GenerateSelectQuery(context.Background(), s.user, anansi.MakeContext(), 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Nil(t, args)
	})
	t.Run("querier", func(t *testing.T) {
		t.Parallel()
		reg := anansi.NewRegistry()
		person := anansi.NewSchema("Person", anansi.InRegistry(reg), anansi.HasFields(
			field.Serial("id"),
			field.String("first_name"),
			field.String("name").
				Getter(func(context.Context, field.Record) (any, error) { return nil, nil }).
				Querier(func(_ *field.Field, _ string, v any) (any, error) {
					return anansi.Q("first_name").Is(v), nil
				}),
		))
		c := anansi.MakeContext(anansi.Where(anansi.Q("name").Is("ann")))
		got, args, err := cp.GenerateSelectQuery(context.Background(), person, c, 0)
		require.NoError(t, err)
		assert.Equal(t, `"first_name" = $1`, got)
		assert.Equal(t, []any{"ann"}, args)
	})
	t.Run("virtual without querier", func(t *testing.T) {
		t.Parallel()
		reg := anansi.NewRegistry()
		person := anansi.NewSchema("Person", anansi.InRegistry(reg), anansi.HasFields(
			field.Serial("id"),
			field.String("name").Getter(func(context.Context, field.Record) (any, error) { return nil, nil }),
		))
		c := anansi.MakeContext(anansi.Where(anansi.Q("name").Is("ann")))
		_, _, err := cp.GenerateSelectQuery(context.Background(), person, c, 0)
		require.Error(t, err)
	})
}

// TestMakeStoreValue tests rendering right-hand values.
func TestMakeStoreValue(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()
	ctx := context.Background()

	tests := []struct {
		name   string
		value  any
		offset int
		want   string
		args   []any
	}{
		{"nil", nil, 0, "null", nil},
		{"literal", anansi.Literal("now()"), 0, "now()", nil},
		{"list", []any{1, 2, 3}, 0, "($1, $2, $3)", []any{1, 2, 3}},
		{"empty list", []string{}, 0, "(NULL)", nil},
		{"scalar", "x", 4, "$5", []any{"x"}},
		{
			"record",
			anansi.New(s.user, anansi.State(map[string]any{"id": 5})),
			0, "$1", []any{5},
		},
		{
			"composite record",
			anansi.New(s.groupUser, anansi.State(map[string]any{"group_id": 1, "user_id": 2})),
			1, "($2, $3)", []any{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, args, err := cp.MakeStoreValue(ctx, s.user, anansi.MakeContext(), tt.value, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, args)
		})
	}

	t.Run("collection", func(t *testing.T) {
		t.Parallel()
		users := s.user.Select(anansi.Fields("id"), anansi.Where(anansi.Q("username").Is("bob")))
		got, args, err := cp.MakeStoreValue(ctx, s.user, anansi.MakeContext(), users, 1)
		require.NoError(t, err)
		assert.Equal(t, "(SELECT \"id\"\nFROM \"test\".\"users\"\nWHERE \"user\" = $2)", got)
		assert.Equal(t, []any{"bob"}, args)
	})
	t.Run("static collection", func(t *testing.T) {
		t.Parallel()
		users := anansi.NewCollection(anansi.ForSchema(s.user), anansi.Records(
			anansi.New(s.user, anansi.State(map[string]any{"id": 1})),
			anansi.New(s.user, anansi.State(map[string]any{"id": 2})),
		))
		got, args, err := cp.MakeStoreValue(ctx, s.user, anansi.MakeContext(), users, 0)
		require.NoError(t, err)
		assert.Equal(t, "($1, $2)", got)
		assert.Equal(t, []any{1, 2}, args)
	})
	t.Run("null collection", func(t *testing.T) {
		t.Parallel()
		_, _, err := cp.MakeStoreValue(ctx, s.user, anansi.MakeContext(), anansi.NewCollection(), 0)
		require.ErrorIs(t, err, anansi.ErrCollectionIsNull)
	})
}

// TestGenerateSelectStatement tests complete selects against golden files.
func TestGenerateSelectStatement(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()

	tests := []struct {
		name   string
		schema *anansi.Schema
		ctx    *anansi.Context
		args   []any
	}{
		{
			name:   "select_users",
			schema: s.user,
			ctx: anansi.MakeContext(
				anansi.Fields("id", "username"),
				anansi.Where(anansi.Q("id").IsIn(1, 2)),
				anansi.OrderBy("username"),
				anansi.Limit(10),
				anansi.Start(20),
			),
			args: []any{1, 2},
		},
		{
			name:   "count_users",
			schema: s.user,
			ctx: anansi.MakeContext(
				anansi.Returning("count"),
				anansi.Where(anansi.Q("last_name").Is("doe")),
				anansi.OrderBy("last_name"),
				anansi.Limit(10),
			),
			args: []any{"doe"},
		},
		{
			name:   "select_users_i18n",
			schema: s.user,
			ctx: anansi.MakeContext(
				anansi.Fields("id", "display"),
				anansi.Locale("fr_FR"),
				anansi.Where(anansi.Q("display").Contains("jo")),
			),
			args: []any{"fr_FR", "%jo%"},
		},
		{
			name:   "select_contents_namespace",
			schema: s.content,
			ctx: anansi.MakeContext(
				anansi.Fields("code"),
				anansi.Namespace("tenant"),
				anansi.DistinctAll(),
			),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, args, err := cp.GenerateSelectStatement(context.Background(), tt.schema, tt.ctx, 0)
			require.NoError(t, err)
			golden(t).Assert(t, tt.name, []byte(got))
			assert.Equal(t, tt.args, args)
		})
	}
}

// TestMutationStatements tests insert, update and delete statements
// against golden files.
func TestMutationStatements(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	cp := sql.NewCompiler()
	c := anansi.MakeContext()
	key := []sql.Pair{{Column: "id", Value: 7}}

	t.Run("insert_content", func(t *testing.T) {
		t.Parallel()
		got, args := cp.InsertStatement(s.content, c, []sql.Pair{{Column: "code", Value: "test"}})
		golden(t).Assert(t, "insert_content", []byte(got))
		assert.Equal(t, []any{"test"}, args)
	})
	t.Run("insert_default", func(t *testing.T) {
		t.Parallel()
		got, args := cp.InsertStatement(s.content, c, nil)
		assert.Equal(t, "INSERT INTO \"public\".\"contents\"\nDEFAULT VALUES\nRETURNING *;", got)
		assert.Nil(t, args)
	})
	t.Run("insert_content_i18n", func(t *testing.T) {
		t.Parallel()
		got, args := cp.InsertI18nStatement(s.content, c,
			[]sql.Pair{{Column: "code", Value: "test"}},
			[]sql.Pair{{Column: "title", Value: "Test"}},
		)
		golden(t).Assert(t, "insert_content_i18n", []byte(got))
		assert.Equal(t, []any{"test", "Test", "en_US"}, args)
	})
	t.Run("update_content", func(t *testing.T) {
		t.Parallel()
		got, args := cp.UpdateStatement(s.content, c, []sql.Pair{{Column: "code", Value: "x"}}, key)
		golden(t).Assert(t, "update_content", []byte(got))
		assert.Equal(t, []any{"x", 7}, args)
	})
	t.Run("update_content_i18n", func(t *testing.T) {
		t.Parallel()
		got, args := cp.UpdateI18nStatement(s.content, c, []sql.Pair{{Column: "title", Value: "X"}}, key)
		golden(t).Assert(t, "update_content_i18n", []byte(got))
		assert.Equal(t, []any{"X", 7, "en_US"}, args)
	})
	t.Run("delete", func(t *testing.T) {
		t.Parallel()
		got, args := cp.DeleteStatement(s.content, c, key)
		assert.Equal(t, "DELETE FROM \"public\".\"contents\"\nWHERE \"id\"=$1;", got)
		assert.Equal(t, []any{7}, args)
		got, _ = cp.DeleteI18nStatement(s.content, c, key)
		assert.Equal(t, "DELETE FROM \"public\".\"contents_i18n\"\nWHERE \"id\"=$1;", got)
	})
	t.Run("delete_contents_i18n", func(t *testing.T) {
		t.Parallel()
		dc := anansi.MakeContext(anansi.Where(anansi.Q("id").IsIn(1, 2)))
		got, args, err := cp.DeleteI18nWhereStatement(context.Background(), s.content, dc)
		require.NoError(t, err)
		golden(t).Assert(t, "delete_contents_i18n", []byte(got))
		assert.Equal(t, []any{1, 2}, args)
	})
	t.Run("unbound delete", func(t *testing.T) {
		t.Parallel()
		_, _, err := cp.DeleteWhereStatement(context.Background(), s.content, anansi.MakeContext())
		require.ErrorIs(t, err, sql.ErrUnboundDelete)
	})
	t.Run("delete on translation", func(t *testing.T) {
		t.Parallel()
		dc := anansi.MakeContext(anansi.Where(anansi.Q("title").Is("x")))
		_, _, err := cp.DeleteWhereStatement(context.Background(), s.content, dc)
		require.Error(t, err)
	})
}
