package outbound

import (
	"testing"

	"github.com/ashureev/agentrelay/internal/protocol"
)

func TestHistorySinceReturnsOrderedTail(t *testing.T) {
	h := NewHistory(10)
	for i := uint64(1); i <= 5; i++ {
		h.Append(protocol.Event{Tag: protocol.TagAgentFinalAnswer, Seq: i})
	}
	events, _, ok := h.Since(2, 0)
	if !ok {
		t.Fatal("expected ok=true, history fully covers the request")
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(3+i) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, 3+i)
		}
	}
}

func TestHistoryEvictsOldestOnOverflow(t *testing.T) {
	h := NewHistory(3)
	for i := uint64(1); i <= 5; i++ {
		h.Append(protocol.Event{Tag: protocol.TagAgentThinking, Seq: i})
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	events, _, ok := h.Since(0, 0)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if events[0].Seq != 3 {
		t.Errorf("oldest retained Seq = %d, want 3", events[0].Seq)
	}
}

func TestHistorySinceGapReportsNotOK(t *testing.T) {
	h := NewHistory(3)
	for i := uint64(10); i <= 12; i++ {
		h.Append(protocol.Event{Tag: protocol.TagAgentThinking, Seq: i})
	}
	_, _, ok := h.Since(1, 0)
	if ok {
		t.Fatal("expected ok=false when requested seq predates retained history")
	}
}

func TestHistorySinceRespectsLimit(t *testing.T) {
	h := NewHistory(10)
	for i := uint64(1); i <= 8; i++ {
		h.Append(protocol.Event{Tag: protocol.TagAgentThinking, Seq: i})
	}
	events, truncated, ok := h.Since(0, 3)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !truncated {
		t.Error("expected truncated=true when more events were available than limit")
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Seq != 1 {
		t.Errorf("first event Seq = %d, want 1 (cap lands at the oldest entries)", events[0].Seq)
	}
}

func TestHistoryTrimThroughReleasesAckedEntries(t *testing.T) {
	h := NewHistory(10)
	for i := uint64(1); i <= 5; i++ {
		h.Append(protocol.Event{Tag: protocol.TagAgentThinking, Seq: i})
	}
	h.TrimThrough(3)
	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after trimming through seq 3", h.Len())
	}
	events, _, ok := h.Since(0, 0)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(events) != 2 || events[0].Seq != 4 {
		t.Fatalf("events = %v, want [seq=4, seq=5]", events)
	}
}
