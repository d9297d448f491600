package sql

import (
	"context"
	"errors"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/dialect"
)

// Executor runs compiled statements. Fetch returns the rows of a
// statement, Exec the number of affected rows. Tx runs fn with an
// executor bound to a single transaction; an executor already inside a
// transaction runs fn on itself.
type Executor interface {
	Fetch(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Tx(ctx context.Context, fn func(Executor) error) error
}

// DriverExecutor is an Executor over a dialect.Driver.
type DriverExecutor struct {
	drv dialect.Driver
	ex  dialect.ExecQuerier
}

// NewDriverExecutor returns an executor running statements on drv.
func NewDriverExecutor(drv dialect.Driver) *DriverExecutor {
	return &DriverExecutor{drv: drv, ex: drv}
}

// Fetch implements Executor.
func (e *DriverExecutor) Fetch(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	var rows Rows
	if err := e.ex.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	return ScanMaps(rows)
}

// Exec implements Executor.
func (e *DriverExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	var res Result
	if err := e.ex.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Tx implements Executor. The transaction is rolled back when fn fails.
func (e *DriverExecutor) Tx(ctx context.Context, fn func(Executor) error) error {
	if e.drv == nil {
		return fn(e)
	}
	tx, err := e.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(&DriverExecutor{ex: tx}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, &anansi.RollbackError{Err: rerr})
		}
		return err
	}
	return tx.Commit()
}

var _ Executor = (*DriverExecutor)(nil)
