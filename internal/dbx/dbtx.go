// Package dbx provides the small DB abstractions shared by repositories and
// services: DBTX (satisfied by *sql.DB and *sql.Tx), WithTx, and Database,
// which lets services run against SQL or in-memory stores alike.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc is the unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx DBTX) error

// Database hands out a non-transactional handle and runs units of work
// atomically. Repositories obtained for the tx handle see the same
// transaction.
type Database interface {
	Conn() DBTX
	WithTx(ctx context.Context, fn TxFunc) error
	PingContext(ctx context.Context) error
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// SQLDatabase is the *sql.DB-backed Database.
type SQLDatabase struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewSQLDatabase wraps db; opts (may be nil) apply to every transaction.
func NewSQLDatabase(db *sql.DB, opts *sql.TxOptions) *SQLDatabase {
	return &SQLDatabase{db: db, opts: opts}
}

func (d *SQLDatabase) Conn() DBTX { return d.db }

func (d *SQLDatabase) WithTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, d.db, d.opts, fn)
}

func (d *SQLDatabase) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the underlying pool.
func (d *SQLDatabase) Close() error {
	return d.db.Close()
}
