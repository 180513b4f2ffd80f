package outbound

import (
	"sync"

	"github.com/ashureev/agentrelay/internal/protocol"
)

// History is a fixed-capacity ring of recently sent events, keyed by
// their sequence number, used to satisfy reconnect/replay requests. It
// generalizes a byte-oriented ring buffer to an event-keyed one: once
// full, the oldest event is overwritten rather than grown past.
type History struct {
	mu    sync.Mutex
	buf   []protocol.Event
	head  int
	count int
}

// NewHistory builds a History retaining at most capacity events.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &History{buf: make([]protocol.Event, capacity)}
}

// Append records e as the most recently sent event, evicting the
// oldest retained event if the ring is full.
func (h *History) Append(e protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := (h.head + h.count) % len(h.buf)
	h.buf[idx] = e
	if h.count < len(h.buf) {
		h.count++
	} else {
		h.head = (h.head + 1) % len(h.buf)
	}
}

// Since returns, in order, every retained event with Seq strictly
// greater than afterSeq, capped at limit entries (0 means unlimited).
// truncated reports whether more events were available than limit
// allowed — the cap lands at the oldest limit events, so the caller
// knows a replay stopped short rather than silently skipping a gap in
// the middle. ok is false if a non-zero afterSeq predates everything
// still retained (the caller should treat this as a gap and fall back
// to a full resync); afterSeq 0 always returns every retained event
// with ok true.
func (h *History) Since(afterSeq uint64, limit int) (events []protocol.Event, truncated bool, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return nil, false, true
	}
	oldest := h.buf[h.head]
	if afterSeq > 0 && afterSeq < oldest.Seq-1 {
		return nil, false, false
	}
	for i := 0; i < h.count; i++ {
		e := h.buf[(h.head+i)%len(h.buf)]
		if e.Seq > afterSeq {
			events = append(events, e)
		}
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
		truncated = true
	}
	return events, truncated, true
}

// TrimThrough releases every retained entry with Seq <= seq, per the
// acknowledgement handling in spec.md §4.2. Entries are zeroed as
// they're released so the ring doesn't pin their Content behind a
// stale reference.
func (h *History) TrimThrough(seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.count > 0 && h.buf[h.head].Seq <= seq {
		h.buf[h.head] = protocol.Event{}
		h.head = (h.head + 1) % len(h.buf)
		h.count--
	}
}

// Latest returns the most recently appended event's sequence number,
// or 0 if History is empty.
func (h *History) Latest() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.buf[(h.head+h.count-1)%len(h.buf)].Seq
}

// Len reports how many events are currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
