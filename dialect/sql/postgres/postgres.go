// Package postgres provides a PostgreSQL storage running on a pgx
// connection pool.
//
//	storage := postgres.New(postgres.Config{Host: "db", Database: "app"})
//	defer storage.Close()
//	store := anansi.NewStore(anansi.WithStorage(storage))
//
// The pool is created on first use. Statements run inside a transaction
// on a pooled connection, unless the context carries a connection set
// with WithConn:
//
//	conn, _ := pgx.Connect(ctx, dsn)
//	users, err := schema.Select().Records(postgres.WithConn(ctx, conn))
package postgres

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syssam/anansi"
	"github.com/syssam/anansi/dialect/sql"
)

// DefaultPort is the port of a Config that names none.
const DefaultPort = 5432

// ErrClosed is returned by statements run after Close.
var ErrClosed = errors.New("postgres: storage closed")

// Config holds the connection settings of a Storage.
type Config struct {
	// DSN, when set, is used as is and the connection fields are ignored.
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	// MinConns and MaxConns size the pool. Zero keeps the pgxpool defaults.
	MinConns int32
	MaxConns int32
	// Namespace is the schema of tables whose schema names none.
	Namespace string
	// Locale is the translation locale of contexts that name none.
	Locale string
}

// WithDefaults returns c with the default host, port, namespace and
// locale filled in.
func (c Config) WithDefaults() Config {
	c.Host = cmp.Or(c.Host, "localhost")
	c.Port = cmp.Or(c.Port, DefaultPort)
	c.Namespace = cmp.Or(c.Namespace, sql.DefaultNamespace)
	c.Locale = cmp.Or(c.Locale, sql.DefaultLocale)
	return c
}

// ConnString returns the connection URL of c.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	c = c.WithDefaults()
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	switch {
	case c.User != "" && c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Conn is a connection or transaction statements can run on. *pgx.Conn,
// *pgxpool.Conn and pgx.Tx implement it.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Pool is the connection pool of a Storage. *pgxpool.Pool implements it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PoolFunc creates the pool of a Storage.
type PoolFunc func(ctx context.Context, cfg Config) (Pool, error)

// NewPool creates a pgxpool pool for cfg.
func NewPool(ctx context.Context, cfg Config) (Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Storage is an anansi.Storage over a lazily created pgx pool.
type Storage struct {
	*sql.Storage
	cfg     Config
	newPool PoolFunc
	logger  *slog.Logger

	mu     sync.Mutex
	pool   Pool
	closed bool
}

// Option configures a Storage.
type Option func(*Storage)

// WithPoolFunc sets the function creating the pool.
func WithPoolFunc(fn PoolFunc) Option {
	return func(s *Storage) { s.newPool = fn }
}

// WithLogger sets the logger of compiled statements.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) { s.logger = l }
}

// New returns a storage for cfg. No connection is made until the first
// statement runs.
func New(cfg Config, opts ...Option) *Storage {
	s := &Storage{cfg: cfg.WithDefaults(), newPool: NewPool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.Storage = sql.NewStorage(&poolExecutor{s: s},
		sql.WithNamespace(s.cfg.Namespace),
		sql.WithLocale(s.cfg.Locale),
		sql.WithLogger(s.logger),
	)
	return s
}

// Config returns the configuration of the storage.
func (s *Storage) Config() Config { return s.cfg }

// Pool returns the pool of the storage, creating it on first use. A
// failed creation is retried by the next call.
func (s *Storage) Pool(ctx context.Context) (Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := s.newPool(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.logger.InfoContext(ctx, "anansi: postgres pool created",
		slog.String("host", s.cfg.Host),
		slog.Int("port", s.cfg.Port),
		slog.String("database", s.cfg.Database),
	)
	return pool, nil
}

// Close closes the pool, if it was created. Statements run after Close
// fail with ErrClosed.
func (s *Storage) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

type ctxConnKey struct{}

// WithConn returns a context whose statements run on conn.
func WithConn(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, ctxConnKey{}, conn)
}

// ConnFromContext returns the connection set with WithConn, or nil.
func ConnFromContext(ctx context.Context) Conn {
	conn, _ := ctx.Value(ctxConnKey{}).(Conn)
	return conn
}

// poolExecutor runs statements on the context connection, or in a
// transaction on a pooled connection.
type poolExecutor struct {
	s *Storage
}

func (e *poolExecutor) run(ctx context.Context, fn func(sql.Executor) error) error {
	if conn := ConnFromContext(ctx); conn != nil {
		return fn(&connExecutor{conn: conn})
	}
	pool, err := e.s.Pool(ctx)
	if err != nil {
		return err
	}
	return inTx(ctx, pool, fn)
}

func (e *poolExecutor) Fetch(ctx context.Context, query string, args ...any) (rows []map[string]any, err error) {
	err = e.run(ctx, func(ex sql.Executor) error {
		rows, err = ex.Fetch(ctx, query, args...)
		return err
	})
	return rows, err
}

func (e *poolExecutor) Exec(ctx context.Context, query string, args ...any) (n int64, err error) {
	err = e.run(ctx, func(ex sql.Executor) error {
		n, err = ex.Exec(ctx, query, args...)
		return err
	})
	return n, err
}

func (e *poolExecutor) Tx(ctx context.Context, fn func(sql.Executor) error) error {
	if conn := ConnFromContext(ctx); conn != nil {
		return (&connExecutor{conn: conn}).Tx(ctx, fn)
	}
	return e.run(ctx, fn)
}

// connExecutor runs statements on a single connection or transaction.
type connExecutor struct {
	conn Conn
}

func (e *connExecutor) Fetch(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := e.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToMap)
}

func (e *connExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := e.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e *connExecutor) Tx(ctx context.Context, fn func(sql.Executor) error) error {
	if _, ok := e.conn.(pgx.Tx); ok {
		return fn(e)
	}
	return inTx(ctx, e.conn, fn)
}

type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// inTx runs fn in a transaction begun on b. A pooled transaction releases
// its connection on commit or rollback.
func inTx(ctx context.Context, b beginner, fn func(sql.Executor) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(&connExecutor{conn: tx}); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			err = errors.Join(err, &anansi.RollbackError{Err: rerr})
		}
		return err
	}
	return tx.Commit(ctx)
}

var (
	_ anansi.Storage    = (*Storage)(nil)
	_ anansi.ValueMaker = (*Storage)(nil)
	_ sql.Executor      = (*poolExecutor)(nil)
	_ Pool              = (*pgxpool.Pool)(nil)
	_ Conn              = (*pgx.Conn)(nil)
	_ Conn              = (*pgxpool.Conn)(nil)
)
