package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForNSIDInterestTable(t *testing.T) {
	cases := []struct {
		nsid string
		kind Kind
	}{
		{NSIDPost, KindPost},
		{NSIDLike, KindLike},
		{NSIDFollow, KindFollow},
		{NSIDRepost, KindRepost},
	}
	for _, c := range cases {
		kind, ok := KindForNSID(c.nsid)
		assert.True(t, ok, c.nsid)
		assert.Equal(t, c.kind, kind, c.nsid)
	}
}

func TestKindForNSIDRejectsUninterestedCollections(t *testing.T) {
	uninterested := []string{
		"app.bsky.actor.profile",
		"app.bsky.feed.threadgate",
		"app.bsky.graph.block",
		"",
	}
	for _, nsid := range uninterested {
		_, ok := KindForNSID(nsid)
		assert.False(t, ok, nsid)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "post", KindPost.String())
	assert.Equal(t, "like", KindLike.String())
	assert.Equal(t, "follow", KindFollow.String())
	assert.Equal(t, "repost", KindRepost.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
