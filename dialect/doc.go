// Package dialect defines the database driver abstraction used by the SQL
// storages of anansi.
//
// Only PostgreSQL is supported: the statement compiler emits positional
// $n parameters, DISTINCT ON, ILIKE and data-modifying common table
// expressions.
//
//	dialect.Postgres = "postgres"
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// Tx adds Commit and Rollback to ExecQuerier:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// # ExecQuerier Interface
//
// The ExecQuerier interface is implemented by both Driver and Tx:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
// # Usage
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	st := anansi.NewStore(anansi.WithStorage(sql.NewStorage(sql.NewDriverExecutor(drv))))
//
// # Sub-packages
//
//   - dialect/sql: statement compiler, database/sql driver and storage
//   - dialect/sql/postgres: pgx connection pool storage
package dialect
