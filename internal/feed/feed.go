// Package feed implements the Feed Materializer: cursor decode, seed
// management, candidate selection, per-post rand_id computation, sort,
// and cursor-slice pagination. See SPEC_FULL.md §4.F.
package feed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/feedgen/feedgen/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 600
	chaosSuffix  = "chaos"
)

// ErrMalformedCursor is returned when the cursor string doesn't parse.
var ErrMalformedCursor = errors.New("feed: malformed cursor")

// ErrCursorDIDMismatch is returned when the cursor's embedded did
// doesn't match the authenticated reader.
var ErrCursorDIDMismatch = errors.New("feed: cursor/reader mismatch")

// Item is one entry of a feed skeleton response.
type Item struct {
	Post   string `json:"post"`
	Reason *Reason `json:"reason,omitempty"`
}

// Reason marks a skeleton item as a repost.
type Reason struct {
	Type   string `json:"$type"`
	Repost string `json:"repost"`
}

// Skeleton is the getFeedSkeleton response body.
type Skeleton struct {
	Cursor string `json:"cursor"`
	Feed   []Item `json:"feed"`
}

// Materializer holds the candidate store and the process-local
// last_seed map, guarded by a mutex per spec.md §5's serving-process
// concurrency model.
type Materializer struct {
	store *store.Store

	mu       sync.Mutex
	lastSeed map[string]int64
}

// New builds a Materializer.
func New(s *store.Store) *Materializer {
	return &Materializer{store: s, lastSeed: make(map[string]int64)}
}

// Request is the decoded, validated input to Materialize.
type Request struct {
	FeedID string
	Cursor string // raw, possibly empty
	Limit  int
	Reader string // authenticated did
}

// Materialize runs the full feed materialization pipeline for one
// request: candidate selection, rand_id computation under the
// reader's seed, sort, and cursor-slice pagination.
func (m *Materializer) Materialize(ctx context.Context, req Request) (*Skeleton, error) {
	includeReposts := strings.HasSuffix(req.FeedID, chaosSuffix)

	var cursorRandID *int64
	if req.Cursor != "" {
		randID, did, err := decodeCursor(req.Cursor)
		if err != nil {
			return nil, err
		}
		if did != req.Reader {
			return nil, ErrCursorDIDMismatch
		}
		cursorRandID = &randID
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	seed := m.seedFor(req.Reader, req.Cursor == "", limit)

	candidates, err := m.store.CandidatePosts(ctx, req.Reader, includeReposts)
	if err != nil {
		return nil, fmt.Errorf("feed: candidate posts: %w", err)
	}

	rng := rand.New(rand.NewSource(seed))
	feedItems := make([]scoredPost, len(candidates))
	for i, p := range candidates {
		feedItems[i] = scoredPost{post: p, randID: randID(p.CIDRev, rng)}
	}

	sort.Slice(feedItems, func(i, j int) bool { return feedItems[i].randID < feedItems[j].randID })

	position := 0
	if cursorRandID != nil {
		for position < len(feedItems) && feedItems[position].randID <= *cursorRandID {
			position++
		}
	}

	end := position + limit
	if end > len(feedItems) {
		end = len(feedItems)
	}
	page := feedItems[position:end]

	nextRandID := int64(0)
	if cursorRandID != nil {
		nextRandID = *cursorRandID
	}
	items := make([]Item, 0, len(page))
	for _, s := range page {
		items = append(items, toItem(s.post))
		nextRandID = s.randID
	}

	return &Skeleton{
		Cursor: fmt.Sprintf("%d::%s", nextRandID, req.Reader),
		Feed:   items,
	}, nil
}

// seedFor returns the reader's current seed, bumping it first when
// this request is a full refresh: cursor==null and limit>20 (spec.md
// §4.F's documented client-behavior heuristic).
func (m *Materializer) seedFor(reader string, cursorIsNull bool, limit int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cursorIsNull && limit > defaultLimit {
		m.lastSeed[reader]++
	}
	return m.lastSeed[reader]
}

func toItem(p store.Post) Item {
	if p.RepostURI != "" {
		return Item{
			Post: p.RepostURI,
			Reason: &Reason{
				Type:   "app.bsky.feed.defs#skeletonReasonRepost",
				Repost: p.URI,
			},
		}
	}
	return Item{Post: p.URI}
}

// scoredPost pairs a candidate post with its computed rand_id for
// this request.
type scoredPost struct {
	post   store.Post
	randID int64
}

// decodeCursor parses a "{rand_id}::{did}" cursor string.
func decodeCursor(cursor string) (randID int64, did string, err error) {
	parts := strings.SplitN(cursor, "::", 2)
	if len(parts) != 2 {
		return 0, "", ErrMalformedCursor
	}
	randID, convErr := strconv.ParseInt(parts[0], 10, 64)
	if convErr != nil {
		return 0, "", ErrMalformedCursor
	}
	return randID, parts[1], nil
}

// randID computes spec.md §4.F's hashcode(cid_rev, reader_rng): a
// Fisher-Yates shuffle of cid_rev's bytes under rng, then a pure hash
// of the shuffled bytes. Go has no built-in equivalent of Python's
// hash(str), so FNV-1a is the deterministic substitute — it is a pure
// function of its input, which is all the determinism property
// (spec.md §8 invariant 6) requires. rng must be reused across every
// candidate in one request, consuming it in iteration order, exactly
// as the source's single shared Random instance does.
func randID(cidRev string, rng *rand.Rand) int64 {
	b := []byte(cidRev)
	for i := len(b) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		b[i], b[j] = b[j], b[i]
	}
	h := fnv.New64a()
	h.Write(b)
	return int64(h.Sum64())
}
