package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/dialect"
	"github.com/syssam/anansi/dialect/sql"
	"github.com/syssam/anansi/schema/field"
)

func newMockStore(t *testing.T) (*anansi.Store, *sql.Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	storage := sql.NewStorage(sql.NewDriverExecutor(sql.OpenDB(dialect.Postgres, db)))
	return anansi.NewStore(anansi.WithStorage(storage)), storage, mock
}

// TestStorageCreate tests inserting records.
func TestStorageCreate(t *testing.T) {
	t.Parallel()

	t.Run("translatable", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectQuery(`WITH standard AS (
   INSERT INTO "public"."contents" (
      "code"
   )
   VALUES($1)
   RETURNING *
), i18n AS (
   INSERT INTO "public"."contents_i18n" (
      "title", "locale", "id"
   )
   SELECT $2, $3, standard."id" FROM standard
   RETURNING *
)
SELECT standard.*, i18n.* FROM standard, i18n;`).
			WithArgs("test", "Test", "en_US").
			WillReturnRows(sqlmock.NewRows([]string{"id", "code", "title", "locale"}).AddRow(1, "test", "Test", "en_US"))

		m := anansi.New(s.content, anansi.WithStore(store), anansi.Values(map[string]any{"code": "test", "title": "Test"}))
		saved, err := m.Save(context.Background())
		require.NoError(t, err)
		assert.True(t, saved)
		assert.False(t, m.IsNew())
		assert.False(t, m.IsChanged())
		assert.EqualValues(t, 1, m.LoadedKey()[0])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("standard", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO \"test\".\"users\" (\n   \"user\", \"first_name\"\n)\nVALUES($1, $2)\nRETURNING *;").
			WithArgs("jdoe", "John").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user", "first_name"}).AddRow(3, "jdoe", "John"))

		m := anansi.New(s.user, anansi.WithStore(store), anansi.Values(map[string]any{"username": "jdoe", "first_name": "John"}))
		_, err := m.Save(context.Background())
		require.NoError(t, err)
		v, err := m.Get(context.Background(), "username")
		require.NoError(t, err)
		assert.Equal(t, "jdoe", v)
		assert.EqualValues(t, 3, m.LoadedKey()[0])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectQuery("INSERT INTO \"public\".\"contents\" (\n   \"code\"\n)\nVALUES($1)\nRETURNING *;").
			WithArgs("dup").
			WillReturnError(&pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "contents_code_key"`})

		m := anansi.New(s.content, anansi.WithStore(store), anansi.Values(map[string]any{"code": "dup"}))
		_, err := m.Save(context.Background())
		require.Error(t, err)
		assert.True(t, anansi.IsConstraintError(err))
		assert.True(t, sql.IsUniqueConstraintError(err))
		assert.True(t, m.IsNew())
		assert.True(t, m.IsChanged())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestStorageUpdate tests updating records.
func TestStorageUpdate(t *testing.T) {
	t.Parallel()
	state := map[string]any{"id": 7, "code": "a", "title": "T"}

	t.Run("standard", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE \"public\".\"contents\" SET\n   \"code\"=$1\nWHERE \"id\"=$2\nRETURNING *;").
			WithArgs("b", 7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(7, "b"))

		m := anansi.New(s.content, anansi.WithStore(store), anansi.State(state))
		require.NoError(t, m.Set(context.Background(), "code", "b"))
		saved, err := m.Save(context.Background())
		require.NoError(t, err)
		assert.True(t, saved)
		assert.Equal(t, "b", m.LoadedState()["code"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unchanged", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		m := anansi.New(s.content, anansi.WithStore(store), anansi.State(state))
		saved, err := m.Save(context.Background())
		require.NoError(t, err)
		assert.False(t, saved)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("translation inserted when missing", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE \"public\".\"contents_i18n\" SET\n   \"title\"=$1\nWHERE \"id\"=$2 AND \"locale\"=$3\nRETURNING *;").
			WithArgs("X", 7, "en_US").
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "locale"}))
		mock.ExpectQuery("INSERT INTO \"public\".\"contents_i18n\" (\n   \"title\", \"locale\", \"id\"\n)\nVALUES($1, $2, $3)\nRETURNING *;").
			WithArgs("X", "en_US", 7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "title", "locale"}).AddRow(7, "X", "en_US"))
		mock.ExpectCommit()

		m := anansi.New(s.content, anansi.WithStore(store), anansi.State(state))
		require.NoError(t, m.Set(context.Background(), "title", "X"))
		_, err := m.Save(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "X", m.LoadedState()["title"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolled back", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE \"public\".\"contents\" SET\n   \"code\"=$1\nWHERE \"id\"=$2\nRETURNING *;").
			WithArgs("b", 7).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		m := anansi.New(s.content, anansi.WithStore(store), anansi.State(state))
		require.NoError(t, m.Update(context.Background(), map[string]any{"code": "b", "title": "X"}))
		_, err := m.Save(context.Background())
		require.Error(t, err)
		assert.True(t, m.IsChanged())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestStorageDelete tests deleting records and collections.
func TestStorageDelete(t *testing.T) {
	t.Parallel()

	t.Run("record with translations", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM \"public\".\"contents_i18n\"\nWHERE \"id\"=$1;").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM \"public\".\"contents\"\nWHERE \"id\"=$1;").
			WithArgs(7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		m := anansi.New(s.content, anansi.WithStore(store), anansi.State(map[string]any{"id": 7}))
		n, err := m.Delete(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("record", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM \"public\".\"group_users\"\nWHERE \"group_id\"=$1 AND \"user_id\"=$2;").
			WithArgs(1, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		m := anansi.New(s.groupUser, anansi.WithStore(store), anansi.State(map[string]any{"group_id": 1, "user_id": 2}))
		n, err := m.Delete(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("static collection", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM \"test\".\"users_i18n\"\nWHERE \"id\" IN (SELECT \"id\" FROM \"test\".\"users\" WHERE \"id\" IN ($1, $2));").
			WithArgs(1, 2).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("DELETE FROM \"test\".\"users\"\nWHERE \"id\" IN ($1, $2);").
			WithArgs(1, 2).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		users := anansi.NewCollection(anansi.ForSchema(s.user), anansi.WithStore(store), anansi.Records(
			anansi.New(s.user, anansi.State(map[string]any{"id": 1})),
			anansi.New(s.user, anansi.State(map[string]any{"id": 2})),
		))
		n, err := users.Delete(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unbound collection", func(t *testing.T) {
		t.Parallel()
		s := newSchemas()
		store, _, mock := newMockStore(t)
		_, err := s.user.Select(anansi.Using(store)).Delete(context.Background())
		require.ErrorIs(t, err, sql.ErrUnboundDelete)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestStorageSelect tests fetching records and counts.
func TestStorageSelect(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	store, _, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \"id\", \"code\"\nFROM \"public\".\"contents\"\nWHERE \"code\" != $1;").
		WithArgs("draft").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code"}).AddRow(1, "a").AddRow(2, "b"))
	mock.ExpectQuery("SELECT COUNT(*) AS \"count\"\nFROM \"public\".\"contents\"\nWHERE \"code\" != $1;").
		WithArgs("draft").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	contents := s.content.Select(
		anansi.Using(store),
		anansi.Fields("id", "code"),
		anansi.Where(anansi.Q("code").IsNot("draft")),
	)
	records, err := contents.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	code, err := records[1].(*anansi.Model).Get(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, "b", code)

	n, err := contents.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStorageSaveCollection tests saving changed records in one transaction.
func TestStorageSaveCollection(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	store, _, mock := newMockStore(t)

	changed := anansi.New(s.user, anansi.State(map[string]any{"id": 1, "last_name": "a"}))
	require.NoError(t, changed.Set(context.Background(), "last_name", "b"))
	untouched := anansi.New(s.user, anansi.State(map[string]any{"id": 2, "last_name": "c"}))

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE \"test\".\"users\" SET\n   \"last_name\"=$1\nWHERE \"id\"=$2\nRETURNING *;").
		WithArgs("b", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "last_name"}).AddRow(1, "b"))
	mock.ExpectCommit()

	users := anansi.NewCollection(anansi.ForSchema(s.user), anansi.WithStore(store), anansi.Records(changed, untouched))
	rows, err := users.Save(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, changed.IsChanged())
	assert.Equal(t, "b", changed.LoadedState()["last_name"])
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStorageViewReadOnly tests that views refuse every mutation.
func TestStorageViewReadOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	view := anansi.NewSchema("ActiveUser", anansi.InRegistry(anansi.NewRegistry()), anansi.AsView(),
		anansi.HasFields(field.Serial("id"), field.String("name")))
	_, storage, mock := newMockStore(t)

	m := anansi.New(view, anansi.State(map[string]any{"id": 1, "name": "a"}))
	coll := anansi.NewCollection(anansi.ForSchema(view), anansi.Records(m))

	_, err := storage.SaveRecord(ctx, m, anansi.MakeContext())
	assert.True(t, anansi.IsReadOnly(err))
	_, err = storage.SaveCollection(ctx, coll, anansi.MakeContext())
	assert.True(t, anansi.IsReadOnly(err))
	_, err = storage.DeleteRecord(ctx, m, anansi.MakeContext())
	assert.True(t, anansi.IsReadOnly(err))
	_, err = storage.DeleteCollection(ctx, coll, anansi.MakeContext())
	assert.True(t, anansi.IsReadOnly(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStorageMakeStoreValue tests rendering values as literals.
func TestStorageMakeStoreValue(t *testing.T) {
	t.Parallel()
	s := newSchemas()
	_, storage, _ := newMockStore(t)

	tests := []struct {
		name  string
		value any
		want  anansi.Literal
	}{
		{"nil", nil, "null"},
		{"string", "it's", `'it''s'`},
		{"int", 42, "42"},
		{"float", 1.5, "1.5"},
		{"bool", true, "TRUE"},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), `'2024-01-02T03:04:05Z'`},
		{"list", []any{1, "a"}, `(1, 'a')`},
		{"empty list", []int{}, "(NULL)"},
		{"literal", anansi.Literal("now()"), "now()"},
		{"record", anansi.New(s.user, anansi.State(map[string]any{"id": 9})), "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := storage.MakeStoreValue(context.Background(), tt.value, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := storage.MakeStoreValue(context.Background(), struct{}{}, nil)
	require.Error(t, err)
}
