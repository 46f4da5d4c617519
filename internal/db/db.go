// Package db wraps database/sql into the small surface the loaders need: a
// Session pinned to one physical connection and a Tx that knows its dialect.
//
// Design goals:
//   - One connection per run. The pool is capped at one so session state
//     (SQLite pragmas, Postgres savepoints) is never split across connections.
//   - Callers never look at the driver. Id read-back and placeholder style
//     come from the dialect.Dialect stored in the Session.
//   - Errors are wrapped with the operation that failed; driver-specific
//     detail is exposed through ErrAttrs for logging.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/lib/pq"                // registers "postgres"
	"modernc.org/sqlite"               // registers "sqlite"

	"aflload/internal/dialect"
)

// ErrConnect reports that the store could not be opened or reached.
var ErrConnect = errors.New("database connection failed")

// DefaultConnectTimeout bounds the initial ping when Options leaves it unset.
const DefaultConnectTimeout = 10 * time.Second

// Options selects a driver and target.
type Options struct {
	Driver         string // "pgx", "postgres" or "sqlite"
	DSN            string
	Dialect        dialect.Dialect
	ConnectTimeout time.Duration
}

// Session is one open store.
type Session struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// Open connects and pings. Failures wrap ErrConnect.
func Open(ctx context.Context, opts Options) (*Session, error) {
	conn, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnect, opts.Driver, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnect, opts.Driver, err)
	}

	if opts.Dialect.Name == dialect.SQLite.Name {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: enable foreign keys: %w", ErrConnect, err)
		}
	}
	return New(conn, opts.Dialect), nil
}

// New wraps an already opened *sql.DB. The pool is capped at one connection.
func New(conn *sql.DB, d dialect.Dialect) *Session {
	conn.SetMaxOpenConns(1)
	return &Session{db: conn, dialect: d}
}

// Dialect returns the dialect chosen at open time.
func (s *Session) Dialect() dialect.Dialect { return s.dialect }

// DB exposes the underlying handle for read-only inspection.
func (s *Session) DB() *sql.DB { return s.db }

// Close releases the connection.
func (s *Session) Close() error { return s.db.Close() }

// Begin starts a transaction.
func (s *Session) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx, dialect: s.dialect}, nil
}

// Tx is a transaction bound to its session's dialect.
type Tx struct {
	tx      *sql.Tx
	dialect dialect.Dialect
}

// Dialect returns the dialect of the owning session.
func (t *Tx) Dialect() dialect.Dialect { return t.dialect }

// Exec runs q and returns the number of affected rows.
func (t *Tx) Exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some statements (DDL, SAVEPOINT) carry no count.
		return 0, nil
	}
	return n, nil
}

// InsertReturningID inserts one row into table and returns its generated id.
func (t *Tx) InsertReturningID(ctx context.Context, table string, cols []string, args ...any) (int64, error) {
	q := t.dialect.InsertReturningID(table, cols)
	switch t.dialect.IDStrategy {
	case dialect.IDReturning:
		var id int64
		if err := t.tx.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		return id, nil
	case dialect.IDLastInsert:
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("insert %s: last insert id: %w", table, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("insert %s: unsupported id strategy %s", table, t.dialect.IDStrategy)
	}
}

// Savepoint marks a point the transaction can later roll back to without
// aborting. Postgres needs this to keep going after a failed statement.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

// RollbackTo undoes everything after the named savepoint.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

// Release forgets the named savepoint, keeping its work.
func (t *Tx) Release(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// ErrAttrs returns slog key/value pairs describing a driver error: the
// SQLSTATE and constraint for Postgres, the result code for SQLite. Unknown
// errors yield nil.
func ErrAttrs(err error) []any {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		attrs := []any{"sqlstate", pgErr.Code}
		if pgErr.ConstraintName != "" {
			attrs = append(attrs, "constraint", pgErr.ConstraintName)
		}
		return attrs
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		attrs := []any{"sqlstate", string(pqErr.Code)}
		if pqErr.Constraint != "" {
			attrs = append(attrs, "constraint", pqErr.Constraint)
		}
		return attrs
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return []any{"sqlite_code", liteErr.Code()}
	}
	return nil
}
