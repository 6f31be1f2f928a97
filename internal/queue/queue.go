// Package queue provides the Event Queue: the FIFO buffer between the
// Firehose Subscriber and the Writer Loop. See SPEC_FULL.md §4.C.
package queue

import "github.com/feedgen/feedgen/internal/model"

// DefaultCapacity is a large fixed buffer standing in for the "unbounded"
// queue spec.md describes — Go channels have no unbounded variant, so a
// generous buffer is the practical realization (see DESIGN.md's Open
// Question resolution). Under sustained overload the buffer fills and
// the subscriber's send blocks, which is the same "memory growth is the
// signal" backpressure spec.md accepts, just bounded rather than
// unbounded.
const DefaultCapacity = 1 << 16

// New returns a buffered channel of the given capacity. A single
// producer (the subscriber) sends on it; a single consumer (the
// writer) drains it — per-uri create-then-delete ordering is preserved
// because Go channels are FIFO.
func New(capacity int) chan model.Event {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return make(chan model.Event, capacity)
}

// Drain removes everything currently buffered in ch without blocking,
// used by the Writer Loop at each cadence tick (spec.md §4.D).
func Drain(ch chan model.Event) []model.Event {
	var events []model.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}
