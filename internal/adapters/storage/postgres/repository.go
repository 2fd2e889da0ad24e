// Package postgres implements the PaymentLedger, RewardStore and CardStore
// ports on PostgreSQL via pgx. Read-then-decide operations are serialized
// with transactions plus per-user advisory locks, so no two concurrent
// writers can both slip under a cap or both credit the same attempt.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository holds the shared connection pool for all postgres-backed ports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the pool and verifies the connection actually works.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// lockUser takes a transaction-scoped advisory lock keyed by the user id.
// Released automatically at commit/rollback.
func lockUser(ctx context.Context, tx pgx.Tx, userID fmt.Stringer) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String()); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}
