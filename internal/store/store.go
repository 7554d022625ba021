// Package store is the Postgres session layer. A Session is one transaction over
// the broker entities; orchestrators obtain sessions from DB and commit once per
// unit of work. Entity accessors return nil, nil for missing rows and errors only
// for database failures.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB opens transactional sessions against the broker database.
type DB struct {
	pool *pgxpool.Pool
}

// New returns a session factory over the given pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Begin opens a new transactional session. The caller must Commit or Rollback.
func (d *DB) Begin(ctx context.Context) (*Session, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{tx: tx}, nil
}

// Session is a single transaction over the broker entities.
type Session struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (s *Session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

// Rollback aborts the transaction. Safe to call after Commit; the error from a
// finished transaction is discarded so Rollback can be deferred unconditionally.
func (s *Session) Rollback(ctx context.Context) {
	_ = s.tx.Rollback(ctx)
}
