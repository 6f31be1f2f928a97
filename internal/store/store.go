// Package store is the relational persistence layer: schema bootstrap,
// batched create/delete for posts and follows, hour-partitioned post
// storage, and partition lifecycle. See SPEC_FULL.md §4.A.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the feed generator's queries.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to Postgres, verifies the connection, and bootstraps
// the schema. Mirrors the teacher's pgxpool.ParseConfig/Ping/bootstrap
// sequence in internal/database.OpenManagement.
func Open(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: bootstrap schema: %w", err)
	}

	return &Store{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.Pool.Close()
}
