package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
)

// Post is one row of the posts table — an original or a repost.
type Post struct {
	URI       string
	CIDRev    string
	RepostURI string // empty for originals
	CreatedAt time.Time
	Author    string
}

// partitionName encodes the hour exactly as spec.md §4.A requires:
// posts_y{YYYY}m{MM}d{DD}h{HH}.
func partitionName(hour time.Time) string {
	return fmt.Sprintf("posts_y%04dm%02dd%02dh%02d",
		hour.Year(), hour.Month(), hour.Day(), hour.Hour())
}

var partitionNamePattern = regexp.MustCompile(`^posts_y(\d{4})m(\d{2})d(\d{2})h(\d{2})$`)

// parsePartitionHour parses a partition name back to its hour, or
// returns ok=false if the name doesn't match the expected shape
// (e.g. an unrelated table under pg_inherits).
func parsePartitionHour(name string) (hour time.Time, ok bool) {
	m := partitionNamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006 01 02 15 -0700", fmt.Sprintf("%s %s %s %s +0000", m[1], m[2], m[3], m[4]))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EnsurePartition creates the hourly partition owning hour if it
// doesn't already exist. Idempotent and safe to call concurrently from
// multiple writer ticks (CREATE TABLE IF NOT EXISTS).
func (s *Store) EnsurePartition(ctx context.Context, tx pgx.Tx, hour time.Time) error {
	hour = hour.Truncate(time.Hour)
	name := partitionName(hour)
	next := hour.Add(time.Hour)

	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF posts FOR VALUES FROM ('%s') TO ('%s')`,
		name, hour.UTC().Format(time.RFC3339), next.UTC().Format(time.RFC3339),
	)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure partition %s: %w", name, err)
	}
	return nil
}

// InsertPosts batch-inserts posts (originals and reposts alike) inside
// an existing transaction. Callers must have already ensured a
// partition exists for every distinct hour among posts. Uses
// ON CONFLICT DO NOTHING so re-ingesting the same create op is a no-op.
func (s *Store) InsertPosts(ctx context.Context, tx pgx.Tx, posts []Post) error {
	for _, p := range posts {
		var repostURI any
		if p.RepostURI != "" {
			repostURI = p.RepostURI
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO posts (uri, cid_rev, repost_uri, created_at, author)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (uri, created_at) DO NOTHING`,
			p.URI, p.CIDRev, repostURI, p.CreatedAt, p.Author,
		)
		if err != nil {
			return fmt.Errorf("store: insert post %s: %w", p.URI, err)
		}
	}
	return nil
}

// DeletePosts batch-deletes posts by uri inside an existing transaction.
func (s *Store) DeletePosts(ctx context.Context, tx pgx.Tx, uris []string) error {
	for _, uri := range uris {
		if _, err := tx.Exec(ctx, `DELETE FROM posts WHERE uri = $1`, uri); err != nil {
			return fmt.Errorf("store: delete post %s: %w", uri, err)
		}
	}
	return nil
}

// ListPartitionsTx returns the names of every child partition of posts,
// queried from the system catalogs exactly as
// original_source/firehose.py's retention sweep does.
func (s *Store) ListPartitionsTx(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT child.relname
		FROM pg_inherits
		JOIN pg_class parent ON pg_inherits.inhparent = parent.oid
		JOIN pg_class child ON pg_inherits.inhrelid = child.oid
		JOIN pg_namespace ns ON child.relnamespace = ns.oid
		WHERE parent.relname = 'posts' AND ns.nspname = 'public'
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scan partition name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DropPartitionTx drops a partition table by name. name must come from
// ListPartitionsTx — never from unsanitized external input.
func (s *Store) DropPartitionTx(ctx context.Context, tx pgx.Tx, name string) error {
	if _, ok := parsePartitionHour(name); !ok {
		return fmt.Errorf("store: refusing to drop non-partition table %q", name)
	}
	_, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name))
	if err != nil {
		return fmt.Errorf("store: drop partition %s: %w", name, err)
	}
	return nil
}

// SweepExpiredPartitionsTx drops every partition whose hour is strictly
// older than cutoff, returning the names dropped, as part of the
// caller's transaction. See spec.md §4.D.
func (s *Store) SweepExpiredPartitionsTx(ctx context.Context, tx pgx.Tx, cutoff time.Time) ([]string, error) {
	names, err := s.ListPartitionsTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, name := range names {
		hour, ok := parsePartitionHour(name)
		if !ok {
			continue
		}
		if hour.Before(cutoff) {
			if err := s.DropPartitionTx(ctx, tx, name); err != nil {
				return dropped, err
			}
			dropped = append(dropped, name)
		}
	}
	return dropped, nil
}

// CandidatePosts runs the feed materializer's candidate query
// (spec.md §4.F): posts authored by the reader's followees, optionally
// excluding reposts, ordered by cid_rev, capped at 1000.
func (s *Store) CandidatePosts(ctx context.Context, follower string, includeReposts bool) ([]Post, error) {
	query := `
		SELECT uri, repost_uri, cid_rev
		FROM posts
		WHERE author IN (SELECT followee FROM follows WHERE follower = $1)`
	if !includeReposts {
		query += ` AND repost_uri IS NULL`
	}
	query += ` ORDER BY cid_rev LIMIT 1000`

	rows, err := s.Pool.Query(ctx, query, follower)
	if err != nil {
		return nil, fmt.Errorf("store: candidate posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var p Post
		var repostURI *string
		if err := rows.Scan(&p.URI, &repostURI, &p.CIDRev); err != nil {
			return nil, fmt.Errorf("store: scan candidate post: %w", err)
		}
		if repostURI != nil {
			p.RepostURI = *repostURI
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
