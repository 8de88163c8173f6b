// Package history implements the bounded, ordered outcome buffer owned by a
// session. Appends are O(1); reads hand out copies so detectors can never
// observe a mutation mid-evaluation.
package history

import (
	"github.com/sells-group/signal-engine/internal/model"
)

// Buffer is a bounded append-only sequence of outcome events. It is not safe
// for concurrent use; the owning session serializes access.
type Buffer struct {
	events  []model.OutcomeEvent
	cap     int
	lastSeq int64
}

// New creates a buffer bounded to capacity events. Capacity must be > 0.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{cap: capacity}
}

// Append adds an event to the buffer, evicting the oldest event when full.
// Events with a sequence number not greater than the last appended one are
// rejected.
func (b *Buffer) Append(ev model.OutcomeEvent) bool {
	if ev.Sequence <= b.lastSeq {
		return false
	}
	b.lastSeq = ev.Sequence
	if len(b.events) == b.cap {
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = ev
		return true
	}
	b.events = append(b.events, ev)
	return true
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int { return len(b.events) }

// LastSequence returns the sequence number of the most recent event, or 0
// when nothing has been appended yet.
func (b *Buffer) LastSequence() int64 { return b.lastSeq }

// Window returns a copy of the last n events (all events when n <= 0 or
// n exceeds the buffer length), oldest first.
func (b *Buffer) Window(n int) []model.OutcomeEvent {
	if n <= 0 || n > len(b.events) {
		n = len(b.events)
	}
	out := make([]model.OutcomeEvent, n)
	copy(out, b.events[len(b.events)-n:])
	return out
}

// Last returns the most recent event, or false when the buffer is empty.
func (b *Buffer) Last() (model.OutcomeEvent, bool) {
	if len(b.events) == 0 {
		return model.OutcomeEvent{}, false
	}
	return b.events[len(b.events)-1], true
}

// TruncateTo drops all but the last keep events. keep <= 0 is clamped to 1
// so the resolving event always remains as the next cycle's starting point.
func (b *Buffer) TruncateTo(keep int) {
	if keep <= 0 {
		keep = 1
	}
	if keep >= len(b.events) {
		return
	}
	remaining := make([]model.OutcomeEvent, keep)
	copy(remaining, b.events[len(b.events)-keep:])
	b.events = remaining
}
