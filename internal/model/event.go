// Package model holds the types shared between the Firehose Subscriber,
// the Event Queue, and the Writer Loop: the classified event shape and
// the fixed interest table mapping collection NSIDs to record kinds.
package model

import (
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
)

// Kind identifies which of the interested record types an event carries.
type Kind int

const (
	KindPost Kind = iota
	KindLike
	KindFollow
	KindRepost
)

func (k Kind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindLike:
		return "like"
	case KindFollow:
		return "follow"
	case KindRepost:
		return "repost"
	default:
		return "unknown"
	}
}

// Action is whether the event is a creation or a deletion.
type Action int

const (
	ActionCreated Action = iota
	ActionDeleted
)

// NSID interest table: the fixed set of collections the subscriber
// classifies. Likes are tracked for forward compatibility but never
// persisted by the writer (see spec.md §4.B).
const (
	NSIDPost   = "app.bsky.feed.post"
	NSIDLike   = "app.bsky.feed.like"
	NSIDFollow = "app.bsky.graph.follow"
	NSIDRepost = "app.bsky.feed.repost"
)

// KindForNSID returns the Kind for a collection NSID and whether it is
// one of the interested collections at all.
func KindForNSID(nsid string) (Kind, bool) {
	switch nsid {
	case NSIDPost:
		return KindPost, true
	case NSIDLike:
		return KindLike, true
	case NSIDFollow:
		return KindFollow, true
	case NSIDRepost:
		return KindRepost, true
	default:
		return 0, false
	}
}

// Event is a single classified op pulled off the firehose, destined for
// the Event Queue and then the Writer Loop.
type Event struct {
	Kind   Kind
	Action Action

	URI    string // at://{repo}/{collection}/{rkey}
	CID    string // op's content identifier, as a string
	Author string // repo DID

	// Populated only for Action == ActionCreated.
	Post   *bsky.FeedPost
	Repost *bsky.FeedRepost
	Follow *bsky.GraphFollow
	// Like carries no fields the writer persists; its presence alone
	// is what forward-compatibility requires.
	Like *bsky.FeedLike

	// ReceivedAt is when the subscriber observed the op. Nothing reads
	// it: throughput logging counts ops per frame, and the temporal
	// filters in §4.D use the record's own created_at.
	ReceivedAt time.Time
}
