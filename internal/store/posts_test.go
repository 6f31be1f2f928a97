package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionNameFormat(t *testing.T) {
	hour := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "posts_y2026m07d31h09", partitionName(hour))
}

func TestPartitionNameRoundTrip(t *testing.T) {
	hour := time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)
	name := partitionName(hour)

	got, ok := parsePartitionHour(name)
	require.True(t, ok)
	assert.True(t, hour.Equal(got), "expected %v, got %v", hour, got)
}

func TestPartitionNameTruncatesSubHourComponents(t *testing.T) {
	hour := time.Date(2026, 7, 31, 9, 45, 30, 0, time.UTC)
	name := partitionName(hour)
	got, ok := parsePartitionHour(name)
	require.True(t, ok)
	assert.Equal(t, 0, got.Minute())
	assert.Equal(t, 0, got.Second())
}

func TestParsePartitionHourRejectsUnrelatedTables(t *testing.T) {
	cases := []string{
		"posts",
		"follows",
		"follows_primed",
		"posts_y2026m07d31",
		"some_other_table",
		"",
	}
	for _, name := range cases {
		_, ok := parsePartitionHour(name)
		assert.False(t, ok, name)
	}
}
