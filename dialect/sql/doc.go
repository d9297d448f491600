// Package sql provides the PostgreSQL storage of anansi stores.
//
// The package has three layers:
//
//   - Driver: a dialect.Driver over database/sql, registering lib/pq.
//     StatsDriver wraps any driver with statement statistics and slow
//     query logging.
//   - Compiler: turns schemas, contexts and predicates into statements
//     with positional parameters.
//   - Storage: an anansi.Storage running compiled statements through an
//     Executor.
//
// # Storage
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    return err
//	}
//	storage := sql.NewStorage(sql.NewDriverExecutor(drv),
//	    sql.WithNamespace("app"),
//	    sql.WithLogger(logger),
//	)
//	store := anansi.NewStore(anansi.WithStorage(storage))
//
// # Translations
//
// Fields flagged Translatable are stored in a sibling table named by
// Schema.I18nName, keyed by the record key and a locale column. Selects
// join it when a translatable field is selected, filtered or ordered:
//
//	SELECT "users"."id" AS "id", i18n."display_name" AS "display"
//	FROM "public"."users"
//	LEFT JOIN "public"."users_i18n" AS i18n ON (i18n."id" = "users"."id" AND i18n."locale" = $1)
//
// Creating a record with translations runs one statement with two data
// modifying CTEs, so the base row and its translation are inserted
// together. Updates and deletes touching both tables run in a
// transaction.
//
// # Errors
//
// Integrity violations reported by lib/pq or pgx are returned as
// anansi constraint errors. IsUniqueConstraintError and its siblings
// classify them further.
package sql
