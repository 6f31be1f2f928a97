package subscriber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPath(t *testing.T) {
	collection, rkey, ok := splitPath("app.bsky.feed.post/3k2abc123")
	assert.True(t, ok)
	assert.Equal(t, "app.bsky.feed.post", collection)
	assert.Equal(t, "3k2abc123", rkey)
}

func TestSplitPathRejectsPathWithoutSeparator(t *testing.T) {
	_, _, ok := splitPath("noslash")
	assert.False(t, ok)
}

func TestSplitPathHandlesEmptyRkey(t *testing.T) {
	collection, rkey, ok := splitPath("app.bsky.feed.post/")
	assert.True(t, ok)
	assert.Equal(t, "app.bsky.feed.post", collection)
	assert.Equal(t, "", rkey)
}
