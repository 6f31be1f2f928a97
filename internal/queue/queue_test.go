package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgen/feedgen/internal/model"
)

func TestNewUsesDefaultCapacityForNonPositiveInput(t *testing.T) {
	ch := New(0)
	assert.Equal(t, DefaultCapacity, cap(ch))

	ch = New(-5)
	assert.Equal(t, DefaultCapacity, cap(ch))
}

func TestNewHonorsExplicitCapacity(t *testing.T) {
	ch := New(4)
	assert.Equal(t, 4, cap(ch))
}

func TestDrainPreservesFIFOOrder(t *testing.T) {
	ch := New(8)
	ch <- model.Event{URI: "at://a"}
	ch <- model.Event{URI: "at://b"}
	ch <- model.Event{URI: "at://c"}

	events := Drain(ch)

	require.Len(t, events, 3)
	assert.Equal(t, "at://a", events[0].URI)
	assert.Equal(t, "at://b", events[1].URI)
	assert.Equal(t, "at://c", events[2].URI)
}

func TestDrainOnEmptyChannelDoesNotBlock(t *testing.T) {
	ch := New(8)
	events := Drain(ch)
	assert.Empty(t, events)
}

func TestDrainEmptiesTheChannel(t *testing.T) {
	ch := New(8)
	ch <- model.Event{URI: "at://a"}

	first := Drain(ch)
	require.Len(t, first, 1)

	second := Drain(ch)
	assert.Empty(t, second, "a second drain immediately after must see nothing new")
}
