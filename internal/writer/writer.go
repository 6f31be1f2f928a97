// Package writer implements the Writer Loop: cadence-driven draining of
// the Event Queue into the Store, hour-partition maintenance, retention
// sweeps, and the staleness watchdog. See SPEC_FULL.md §4.D.
package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedgen/feedgen/internal/model"
	"github.com/feedgen/feedgen/internal/queue"
	"github.com/feedgen/feedgen/internal/store"
)

const (
	tickInterval     = 2 * time.Second
	sweepInterval    = 45 * time.Minute
	retentionHorizon = 13 * time.Hour
	minCreatedAt     = -13 * time.Hour
	maxCreatedAt     = 10 * time.Minute
	watchdogTimeout  = 30 * time.Second
)

// Loop owns the cadence ticker, the per-tick transaction, and the
// watchdog clock.
type Loop struct {
	store *store.Store
	queue chan model.Event
	log   zerolog.Logger

	lastSuccessfulCommit time.Time
	lastSweep            time.Time
}

// New builds a Loop draining queue into store.
func New(s *store.Store, q chan model.Event, log zerolog.Logger) *Loop {
	return &Loop{
		store:                s,
		queue:                q,
		log:                  log,
		lastSuccessfulCommit: time.Now(),
	}
}

// Run blocks, ticking every tickInterval, and returns only when ctx is
// cancelled. A watchdog timeout calls exitFn(1) directly, matching
// spec.md §4.D's "process exits non-zero" contract; a failed tick is
// logged and abandoned, so repeated failures end in that watchdog exit.
func (l *Loop) Run(ctx context.Context, exitFn func(code int)) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, exitFn)
		}
	}
}

// tick drains whatever is currently buffered and, if non-empty or a
// retention sweep is due, flushes it plus the sweep in one transaction.
// An empty queue at wake with no sweep due skips the tick without
// touching the watchdog clock; an empty queue with a sweep due still
// commits the sweep and resets the watchdog clock.
func (l *Loop) tick(ctx context.Context, exitFn func(code int)) {
	if time.Since(l.lastSuccessfulCommit) >= watchdogTimeout {
		l.log.Error().
			Time("last_successful_commit", l.lastSuccessfulCommit).
			Msg("writer watchdog timeout, exiting for supervisor restart")
		exitFn(1)
		return
	}

	events := queue.Drain(l.queue)
	dueSweep := time.Since(l.lastSweep) >= sweepInterval
	if len(events) == 0 && !dueSweep {
		return
	}

	if err := l.flush(ctx, events, dueSweep); err != nil {
		l.log.Error().Err(err).Msg("writer tick failed, abandoning tick")
		return
	}

	l.lastSuccessfulCommit = time.Now()
	if dueSweep {
		l.lastSweep = time.Now()
	}
}

type bucket struct {
	postsCreate   []store.Post
	postsDelete   []string
	followsCreate []store.Follow
	followsDelete []string
}

// flush groups events into per-kind/per-action buckets, applies the
// temporal and reply/subject filters, and commits everything — plus
// the retention sweep when due — in one transaction.
func (l *Loop) flush(ctx context.Context, events []model.Event, dueSweep bool) error {
	now := time.Now().UTC()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	for _, ev := range events {
		switch ev.Kind {
		case model.KindPost:
			l.bucketPost(ev, now, &b, hours)
		case model.KindRepost:
			l.bucketRepost(ev, now, &b, hours)
		case model.KindFollow:
			l.bucketFollow(ev, &b)
		case model.KindLike:
			// Tracked for forward-compatibility only; never persisted.
		}
	}

	tx, err := l.store.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("writer: begin tick tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for hour := range hours {
		if err := l.store.EnsurePartition(ctx, tx, hour); err != nil {
			return err
		}
	}
	if err := l.store.InsertPosts(ctx, tx, b.postsCreate); err != nil {
		return err
	}
	if err := l.store.DeletePosts(ctx, tx, b.postsDelete); err != nil {
		return err
	}
	if err := l.store.InsertFollows(ctx, tx, b.followsCreate); err != nil {
		return err
	}
	if err := l.store.DeleteFollows(ctx, tx, b.followsDelete); err != nil {
		return err
	}

	if dueSweep {
		cutoff := now.Add(-retentionHorizon)
		dropped, err := l.store.SweepExpiredPartitionsTx(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			l.log.Info().Strs("partitions", dropped).Msg("retention sweep dropped expired partitions")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("writer: commit tick: %w", err)
	}
	return nil
}

func (l *Loop) bucketPost(ev model.Event, now time.Time, b *bucket, hours map[time.Time]struct{}) {
	if ev.Action == model.ActionDeleted {
		b.postsDelete = append(b.postsDelete, ev.URI)
		return
	}
	if ev.Post == nil {
		return
	}
	if ev.Post.Reply != nil {
		l.log.Debug().Str("uri", ev.URI).Msg("dropping reply post at ingest")
		return
	}
	createdAt, ok := parseTime(ev.Post.CreatedAt)
	if !ok || !withinWindow(createdAt, now) {
		l.log.Debug().Str("uri", ev.URI).Str("created_at", ev.Post.CreatedAt).Msg("dropping post outside temporal window")
		return
	}

	hour := createdAt.Truncate(time.Hour)
	hours[hour] = struct{}{}
	b.postsCreate = append(b.postsCreate, store.Post{
		URI:       ev.URI,
		CIDRev:    reverseString(ev.CID),
		CreatedAt: createdAt,
		Author:    ev.Author,
	})
}

func (l *Loop) bucketRepost(ev model.Event, now time.Time, b *bucket, hours map[time.Time]struct{}) {
	if ev.Action == model.ActionDeleted {
		b.postsDelete = append(b.postsDelete, ev.URI)
		return
	}
	if ev.Repost == nil || ev.Repost.Subject == nil || ev.Repost.Subject.Uri == "" {
		l.log.Debug().Str("uri", ev.URI).Msg("dropping repost with null subject")
		return
	}
	createdAt, ok := parseTime(ev.Repost.CreatedAt)
	if !ok || !withinWindow(createdAt, now) {
		l.log.Debug().Str("uri", ev.URI).Str("created_at", ev.Repost.CreatedAt).Msg("dropping repost outside temporal window")
		return
	}

	hour := createdAt.Truncate(time.Hour)
	hours[hour] = struct{}{}
	b.postsCreate = append(b.postsCreate, store.Post{
		URI: ev.URI,
		// The repost's own cid_rev, not the original post's — the
		// source reused a stale cid variable here, see SPEC_FULL.md's
		// redesign flag.
		CIDRev:    reverseString(ev.CID),
		RepostURI: ev.Repost.Subject.Uri,
		CreatedAt: createdAt,
		Author:    ev.Author,
	})
}

func (l *Loop) bucketFollow(ev model.Event, b *bucket) {
	if ev.Action == model.ActionDeleted {
		b.followsDelete = append(b.followsDelete, ev.URI)
		return
	}
	if ev.Follow == nil || ev.Follow.Subject == "" {
		return
	}
	b.followsCreate = append(b.followsCreate, store.Follow{
		URI:      ev.URI,
		Follower: ev.Author,
		Followee: ev.Follow.Subject,
	})
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func withinWindow(createdAt, now time.Time) bool {
	return !createdAt.Before(now.Add(minCreatedAt)) && !createdAt.After(now.Add(maxCreatedAt))
}

// reverseString reverses a string byte-for-byte, matching spec.md
// §3's "reversed byte-for-byte" requirement for cid_rev (the cid is
// ASCII base32/base58, so byte and rune reversal coincide).
func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
