// Package subscriber connects to the upstream firehose, decodes commit
// frames, classifies interesting ops, and pushes them onto the Event
// Queue. See SPEC_FULL.md §4.B.
package subscriber

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/repo"
	"github.com/bluesky-social/indigo/events"
	"github.com/bluesky-social/indigo/events/schedulers/sequential"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/feedgen/feedgen/internal/model"
)

// Subscriber dials the upstream subscribeRepos endpoint and classifies
// every create/delete op against the fixed interest table.
type Subscriber struct {
	url   string
	queue chan<- model.Event
	log   zerolog.Logger

	dialer *websocket.Dialer

	statWindowStart time.Time
	statCount       int
}

// New builds a Subscriber that pushes classified events onto queue.
func New(firehoseURL string, queue chan<- model.Event, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		url:    firehoseURL,
		queue:  queue,
		log:    log,
		dialer: websocket.DefaultDialer,
		statWindowStart: time.Now(),
	}
}

// Run dials the firehose and processes frames until ctx is cancelled or
// the connection fails unrecoverably, at which point it returns an
// error. A failed connection (dial error or dropped stream) is retried
// with a doubling backoff capped at 30s; after 8 failures it returns an
// error so the caller can terminate the process per spec.md §4.B's
// error handler. The failure count and backoff are kept for the whole
// Run and are not reset by a successful connection.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	const maxAttempts = 8

	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.connectOnce(ctx)
		if err == nil {
			// Clean shutdown via context cancellation.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		s.log.Error().Err(err).Int("attempt", attempts).Msg("firehose connection failed")
		if attempts >= maxAttempts {
			return fmt.Errorf("subscriber: giving up after %d attempts: %w", attempts, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connectOnce performs one dial-and-stream cycle. It returns nil only
// when ctx was cancelled; any other return is a transport failure.
func (s *Subscriber) connectOnce(ctx context.Context) error {
	header := http.Header{}
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("subscriber: dial %s: %w", s.url, err)
	}
	defer conn.Close()

	s.log.Info().Str("url", s.url).Msg("firehose connected")

	callbacks := &events.RepoStreamCallbacks{
		RepoCommit: func(evt *comatproto.SyncSubscribeRepos_Commit) error {
			s.handleCommit(evt)
			return nil
		},
	}

	sched := sequential.NewScheduler("feedgen-subscriber", callbacks.EventHandler)
	return events.HandleRepoStream(ctx, conn, sched, nil)
}

// handleCommit decodes one commit frame's block map and classifies
// every create/delete op against the interest table.
func (s *Subscriber) handleCommit(evt *comatproto.SyncSubscribeRepos_Commit) {
	if evt == nil || len(evt.Blocks) == 0 {
		return
	}

	r, err := repo.ReadRepoFromCar(context.Background(), bytes.NewReader(evt.Blocks))
	if err != nil {
		s.log.Debug().Err(err).Str("repo", evt.Repo).Msg("failed to read commit CAR, skipping frame")
		return
	}

	for _, op := range evt.Ops {
		switch op.Action {
		case "update":
			continue
		case "create":
			s.handleCreate(r, evt.Repo, op)
		case "delete":
			s.handleDelete(evt.Repo, op)
		}
	}

	s.recordThroughput(len(evt.Ops))
}

func (s *Subscriber) handleCreate(r *repo.Repo, did string, op *comatproto.SyncSubscribeRepos_RepoOp) {
	collection, _, ok := splitPath(op.Path)
	if !ok {
		return
	}
	kind, interested := model.KindForNSID(collection)
	if !interested {
		return
	}

	recCID, recBytes, err := r.GetRecordBytes(context.Background(), op.Path)
	if err != nil {
		s.log.Debug().Err(err).Str("path", op.Path).Msg("record lookup failed, skipping op")
		return
	}

	ev := model.Event{
		Kind:       kind,
		Action:     model.ActionCreated,
		URI:        "at://" + did + "/" + op.Path,
		CID:        recCID.String(),
		Author:     did,
		ReceivedAt: time.Now(),
	}

	switch kind {
	case model.KindPost:
		var rec bsky.FeedPost
		if err := rec.UnmarshalCBOR(bytes.NewReader(recBytes)); err != nil {
			s.log.Debug().Err(err).Msg("malformed post record, skipping")
			return
		}
		ev.Post = &rec
	case model.KindRepost:
		var rec bsky.FeedRepost
		if err := rec.UnmarshalCBOR(bytes.NewReader(recBytes)); err != nil {
			s.log.Debug().Err(err).Msg("malformed repost record, skipping")
			return
		}
		ev.Repost = &rec
	case model.KindFollow:
		var rec bsky.GraphFollow
		if err := rec.UnmarshalCBOR(bytes.NewReader(recBytes)); err != nil {
			s.log.Debug().Err(err).Msg("malformed follow record, skipping")
			return
		}
		ev.Follow = &rec
	case model.KindLike:
		var rec bsky.FeedLike
		if err := rec.UnmarshalCBOR(bytes.NewReader(recBytes)); err != nil {
			return
		}
		ev.Like = &rec
	}

	s.queue <- ev
}

func (s *Subscriber) handleDelete(did string, op *comatproto.SyncSubscribeRepos_RepoOp) {
	collection, _, ok := splitPath(op.Path)
	if !ok {
		return
	}
	kind, interested := model.KindForNSID(collection)
	if !interested {
		return
	}

	s.queue <- model.Event{
		Kind:       kind,
		Action:     model.ActionDeleted,
		URI:        "at://" + did + "/" + op.Path,
		Author:     did,
		ReceivedAt: time.Now(),
	}
}

func splitPath(path string) (collection, rkey string, ok bool) {
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

// recordThroughput logs, roughly every second, the events/sec rate of
// the window that just ended (ops counted per frame, including updates
// and uninteresting collections). No history of past windows is kept,
// so unlike original_source/main.py's 20-sample figure it is not a
// rolling average.
func (s *Subscriber) recordThroughput(opsInFrame int) {
	s.statCount += opsInFrame
	if time.Since(s.statWindowStart) < time.Second {
		return
	}
	elapsed := time.Since(s.statWindowStart).Seconds()
	rate := float64(s.statCount) / elapsed
	s.log.Info().Float64("events_per_sec", rate).Msg("firehose throughput")
	s.statCount = 0
	s.statWindowStart = time.Now()
}
