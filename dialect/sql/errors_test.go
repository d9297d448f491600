package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/syssam/anansi"
)

type stateError string

func (e stateError) Error() string    { return "state " + string(e) }
func (e stateError) SQLState() string { return string(e) }

// TestSQLState tests reading SQLSTATE codes from driver errors.
func TestSQLState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), ""},
		{"pq", &pq.Error{Code: "23505"}, "23505"},
		{"pq wrapped", fmt.Errorf("exec: %w", &pq.Error{Code: "23503"}), "23503"},
		{"pgx", &pgconn.PgError{Code: "23514"}, "23514"},
		{"state", stateError("23502"), "23502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SQLState(tt.err))
		})
	}
}

// TestConstraintErrors tests classifying constraint violations.
func TestConstraintErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		constraint bool
		unique     bool
		foreign    bool
		check      bool
		notNull    bool
	}{
		{name: "unique", err: &pq.Error{Code: "23505"}, constraint: true, unique: true},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, constraint: true, foreign: true},
		{name: "check", err: &pq.Error{Code: "23514"}, constraint: true, check: true},
		{name: "not null", err: &pgconn.PgError{Code: "23502"}, constraint: true, notNull: true},
		{name: "exclusion", err: &pq.Error{Code: "23P01"}, constraint: true},
		{name: "syntax", err: &pq.Error{Code: "42601"}},
		{name: "message only", err: errors.New(`insert: duplicate key value violates unique constraint "users_pkey"`), unique: true},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.constraint, IsConstraintError(tt.err))
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.foreign, IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.check, IsCheckConstraintError(tt.err))
			assert.Equal(t, tt.notNull, IsNotNullConstraintError(tt.err))
		})
	}
}

// TestWrapError tests converting violations into anansi errors.
func TestWrapError(t *testing.T) {
	t.Parallel()
	assert.NoError(t, wrapError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, wrapError(plain))

	pqErr := &pq.Error{Code: "23505", Message: "duplicate key"}
	err := wrapError(fmt.Errorf("dialect/sql: query: %w", pqErr))
	assert.True(t, anansi.IsConstraintError(err))
	var target *pq.Error
	assert.ErrorAs(t, err, &target)
	assert.True(t, IsUniqueConstraintError(err))

	already := anansi.NewConstraintError("exists", pqErr)
	assert.Equal(t, already, wrapError(already))
}
