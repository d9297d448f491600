package sql

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/syssam/anansi"
)

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgIntegrityClass      = "23"
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// sqlStateError is implemented by driver errors exposing a SQLSTATE code.
type sqlStateError interface {
	SQLState() string
}

// SQLState returns the SQLSTATE code of a lib/pq or pgx error in the
// chain of err, or "".
func SQLState(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var se sqlStateError
	if errors.As(err, &se) {
		return se.SQLState()
	}
	return ""
}

// IsConstraintError returns true if the error resulted from a database
// integrity constraint violation.
func IsConstraintError(err error) bool {
	return anansi.IsConstraintError(err) ||
		strings.HasPrefix(SQLState(err), pgIntegrityClass)
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness
// constraint violation, e.g. a duplicate value in a unique index.
func IsUniqueConstraintError(err error) bool {
	return isViolation(err, pgUniqueViolation, "violates unique constraint")
}

// IsForeignKeyConstraintError reports if the error resulted from a
// foreign-key constraint violation, e.g. the parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return isViolation(err, pgForeignKeyViolation, "violates foreign key constraint")
}

// IsCheckConstraintError reports if the error resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	return isViolation(err, pgCheckViolation, "violates check constraint")
}

// IsNotNullConstraintError reports if the error resulted from writing
// null into a not-null column.
func IsNotNullConstraintError(err error) bool {
	return isViolation(err, pgNotNullViolation, "violates not-null constraint")
}

func isViolation(err error, code, text string) bool {
	if err == nil {
		return false
	}
	if SQLState(err) == code {
		return true
	}
	// Drivers that do not expose the code.
	return strings.Contains(err.Error(), text)
}

// wrapError converts integrity violations into anansi constraint errors.
// Other errors are returned unchanged.
func wrapError(err error) error {
	if err == nil || anansi.IsConstraintError(err) || !IsConstraintError(err) {
		return err
	}
	return anansi.NewConstraintError(err.Error(), err)
}
