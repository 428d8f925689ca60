// Package ops provides a non-blocking publisher for operational audit events.
// Events go onto a bounded channel drained by the audit worker; when the
// channel is full the event is dropped and counted.
package ops

import (
	"context"
	"sync/atomic"
	"time"

	audit "vitalproof/pkg/platform/audit"
)

type Tracker struct {
	out     chan audit.Event
	dropped atomic.Int64
}

// New returns a tracker with the given buffer size.
func New(buffer int) *Tracker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Tracker{out: make(chan audit.Event, buffer)}
}

// Track enqueues the event without blocking.
func (t *Tracker) Track(_ context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryOperations
	select {
	case t.out <- event:
	default:
		t.dropped.Add(1)
	}
}

// Events is the channel the worker drains.
func (t *Tracker) Events() <-chan audit.Event {
	return t.out
}

// Dropped returns how many events were discarded because the buffer was full.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}
