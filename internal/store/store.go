// Package store is the durable Postgres boundary: auctions, users, bids, and
// the settlement-side dedup ledgers. Connection setup follows the teacher's
// db.Connect (simple protocol, required behind poolers that don't support
// server-side prepared statements); query style stays raw SQL via pgx/v5,
// one method per operation, following the teacher's handlers.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgxpool.Pool. Unlike the teacher's package-level db.Pool
// global, it's a value passed to every component explicitly, since three
// separate binaries (api/timer/settlement) each own their own pool lifetime.
type Store struct {
	Pool *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: DATABASE_URL is not set")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() { s.Pool.Close() }
