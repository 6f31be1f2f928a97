package writer

import (
	"testing"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgen/feedgen/internal/model"
)

func newTestLoop() *Loop {
	return &Loop{log: zerolog.Nop()}
}

func TestReverseStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "bafkreigh2akiscaildcqabsyg", "12345"}
	for _, c := range cases {
		reversed := reverseString(c)
		assert.Equal(t, c, reverseString(reversed), "reversing twice must return the original")
		if len(c) > 1 {
			assert.NotEqual(t, c, reversed)
		}
	}
}

func TestWithinWindow(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	assert.True(t, withinWindow(now, now), "exactly now is in range")
	assert.True(t, withinWindow(now.Add(-13*time.Hour), now), "13h in the past is the inclusive boundary")
	assert.False(t, withinWindow(now.Add(-13*time.Hour-time.Second), now), "just past 13h in the past is out of range")
	assert.True(t, withinWindow(now.Add(10*time.Minute), now), "10m in the future is the inclusive boundary")
	assert.False(t, withinWindow(now.Add(10*time.Minute+time.Second), now), "just past 10m in the future is out of range")
}

func TestParseTime(t *testing.T) {
	ts, ok := parseTime("2026-07-31T12:00:00Z")
	require.True(t, ok)
	assert.Equal(t, 2026, ts.Year())

	_, ok = parseTime("")
	assert.False(t, ok)

	_, ok = parseTime("not-a-timestamp")
	assert.False(t, ok)
}

func TestBucketPostDropsReplies(t *testing.T) {
	l := newTestLoop()
	now := time.Now().UTC()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	ev := model.Event{
		Kind: model.KindPost,
		URI:  "at://did:plc:a/app.bsky.feed.post/1",
		CID:  "cid1",
		Post: &bsky.FeedPost{
			CreatedAt: now.Format(time.RFC3339),
			Reply:     &bsky.FeedPost_ReplyRef{},
		},
	}
	l.bucketPost(ev, now, &b, hours)

	assert.Empty(t, b.postsCreate, "a reply must never be bucketed")
}

func TestBucketPostDropsOutsideWindow(t *testing.T) {
	l := newTestLoop()
	now := time.Now().UTC()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	ev := model.Event{
		Kind: model.KindPost,
		URI:  "at://did:plc:a/app.bsky.feed.post/1",
		CID:  "cid1",
		Post: &bsky.FeedPost{
			CreatedAt: now.Add(-24 * time.Hour).Format(time.RFC3339),
		},
	}
	l.bucketPost(ev, now, &b, hours)

	assert.Empty(t, b.postsCreate, "a post outside the temporal window must be dropped")
}

func TestBucketPostKeepsValidOriginal(t *testing.T) {
	l := newTestLoop()
	now := time.Now().UTC()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	ev := model.Event{
		Kind:   model.KindPost,
		URI:    "at://did:plc:a/app.bsky.feed.post/1",
		CID:    "cid1",
		Author: "did:plc:a",
		Post: &bsky.FeedPost{
			CreatedAt: now.Format(time.RFC3339),
		},
	}
	l.bucketPost(ev, now, &b, hours)

	require.Len(t, b.postsCreate, 1)
	assert.Equal(t, ev.URI, b.postsCreate[0].URI)
	assert.Equal(t, reverseString("cid1"), b.postsCreate[0].CIDRev)
	assert.Empty(t, b.postsCreate[0].RepostURI)
	assert.Len(t, hours, 1, "the post's hour must be tracked for partition creation")
}

func TestBucketPostDelete(t *testing.T) {
	l := newTestLoop()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	ev := model.Event{
		Kind:   model.KindPost,
		Action: model.ActionDeleted,
		URI:    "at://did:plc:a/app.bsky.feed.post/1",
	}
	l.bucketPost(ev, time.Now(), &b, hours)

	assert.Equal(t, []string{ev.URI}, b.postsDelete)
	assert.Empty(t, hours, "a delete never touches partition bookkeeping")
}

func TestBucketRepostUsesItsOwnCID(t *testing.T) {
	l := newTestLoop()
	now := time.Now().UTC()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	ev := model.Event{
		Kind:   model.KindRepost,
		URI:    "at://did:plc:reposter/app.bsky.feed.repost/1",
		CID:    "repost-own-cid",
		Author: "did:plc:reposter",
		Repost: &bsky.FeedRepost{
			CreatedAt: now.Format(time.RFC3339),
			Subject: &atproto.RepoStrongRef{
				Uri: "at://did:plc:original/app.bsky.feed.post/1",
				Cid: "original-post-cid",
			},
		},
	}
	l.bucketRepost(ev, now, &b, hours)

	require.Len(t, b.postsCreate, 1)
	got := b.postsCreate[0]
	assert.Equal(t, reverseString("repost-own-cid"), got.CIDRev,
		"cid_rev must derive from the repost op's own cid, not the subject post's")
	assert.Equal(t, "at://did:plc:original/app.bsky.feed.post/1", got.RepostURI)
}

func TestBucketRepostDropsNullSubject(t *testing.T) {
	l := newTestLoop()
	now := time.Now().UTC()
	b := bucket{}
	hours := map[time.Time]struct{}{}

	ev := model.Event{
		Kind:   model.KindRepost,
		URI:    "at://did:plc:reposter/app.bsky.feed.repost/1",
		CID:    "repost-own-cid",
		Author: "did:plc:reposter",
		Repost: &bsky.FeedRepost{
			CreatedAt: now.Format(time.RFC3339),
		},
	}
	l.bucketRepost(ev, now, &b, hours)

	assert.Empty(t, b.postsCreate, "a repost with no subject must be dropped")
}

func TestBucketFollow(t *testing.T) {
	l := newTestLoop()
	b := bucket{}

	create := model.Event{
		Kind:   model.KindFollow,
		URI:    "at://did:plc:a/app.bsky.graph.follow/1",
		Author: "did:plc:a",
		Follow: &bsky.GraphFollow{Subject: "did:plc:b"},
	}
	l.bucketFollow(create, &b)
	require.Len(t, b.followsCreate, 1)
	assert.Equal(t, "did:plc:a", b.followsCreate[0].Follower)
	assert.Equal(t, "did:plc:b", b.followsCreate[0].Followee)

	del := model.Event{
		Kind:   model.KindFollow,
		Action: model.ActionDeleted,
		URI:    "at://did:plc:a/app.bsky.graph.follow/1",
	}
	l.bucketFollow(del, &b)
	assert.Equal(t, []string{del.URI}, b.followsDelete)
}

func TestBucketFollowDropsEmptySubject(t *testing.T) {
	l := newTestLoop()
	b := bucket{}

	ev := model.Event{
		Kind:   model.KindFollow,
		URI:    "at://did:plc:a/app.bsky.graph.follow/1",
		Author: "did:plc:a",
		Follow: &bsky.GraphFollow{},
	}
	l.bucketFollow(ev, &b)

	assert.Empty(t, b.followsCreate)
}
