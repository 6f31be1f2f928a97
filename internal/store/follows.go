package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Follow is one edge of the follow graph.
type Follow struct {
	URI      string
	Follower string
	Followee string
}

// InsertFollows batch-inserts organic firehose follow-creates inside an
// existing transaction. Rows for a not-yet-primed follower are silently
// skipped by the check_follows_primed_trigger (see schema.go); this is
// not an error and does not abort the tick.
func (s *Store) InsertFollows(ctx context.Context, tx pgx.Tx, follows []Follow) error {
	for _, f := range follows {
		_, err := tx.Exec(ctx,
			`INSERT INTO follows (uri, follower, followee) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			f.URI, f.Follower, f.Followee,
		)
		if err != nil {
			return fmt.Errorf("store: insert follow %s: %w", f.URI, err)
		}
	}
	return nil
}

// DeleteFollows batch-deletes follows by uri inside an existing transaction.
func (s *Store) DeleteFollows(ctx context.Context, tx pgx.Tx, uris []string) error {
	for _, uri := range uris {
		if _, err := tx.Exec(ctx, `DELETE FROM follows WHERE uri = $1`, uri); err != nil {
			return fmt.Errorf("store: delete follow %s: %w", uri, err)
		}
	}
	return nil
}

// IsPrimed reports whether follower has a completed follow-graph backfill.
func (s *Store) IsPrimed(ctx context.Context, follower string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM follows WHERE follower = $1)`, follower,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check primed %s: %w", follower, err)
	}
	return exists, nil
}

// PrimeFollows performs the follow primer's bulk backfill insert
// (spec.md §4.E): it marks follower as primed, temporarily disables the
// priming trigger, bulk-inserts every follow edge, then re-enables the
// trigger — all in one transaction.
func (s *Store) PrimeFollows(ctx context.Context, follower string, follows []Follow) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: prime follows begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO follows_primed (did) VALUES ($1) ON CONFLICT DO NOTHING`, follower); err != nil {
		return fmt.Errorf("store: prime follows mark: %w", err)
	}

	if len(follows) > 0 {
		if _, err := tx.Exec(ctx, `ALTER TABLE follows DISABLE TRIGGER check_follows_primed_trigger`); err != nil {
			return fmt.Errorf("store: prime follows disable trigger: %w", err)
		}
		for _, f := range follows {
			_, err := tx.Exec(ctx,
				`INSERT INTO follows (uri, follower, followee) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				f.URI, f.Follower, f.Followee,
			)
			if err != nil {
				return fmt.Errorf("store: prime follows insert %s: %w", f.URI, err)
			}
		}
		if _, err := tx.Exec(ctx, `ALTER TABLE follows ENABLE TRIGGER check_follows_primed_trigger`); err != nil {
			return fmt.Errorf("store: prime follows enable trigger: %w", err)
		}
	}

	return tx.Commit(ctx)
}
