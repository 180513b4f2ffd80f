package outbound

import (
	"time"

	"github.com/ashureev/agentrelay/internal/protocol"
)

// coalescer batches a run of same-tag streaming events (e.g.
// agent.partial_answer chunks) arriving faster than the coalescing
// window, merging their content and flushing once no new event has
// arrived for the window duration.
type coalescer struct {
	window  time.Duration
	timer   *time.Timer
	latest  protocol.Event
	onFlush func(protocol.Event)
}

func newCoalescer(first protocol.Event, window time.Duration, onFlush func(protocol.Event)) *coalescer {
	co := &coalescer{window: window, latest: first, onFlush: onFlush}
	co.timer = time.AfterFunc(window, co.fire)
	return co
}

// merge folds next into the pending event and restarts the window
// timer. Per spec.md §4.2: string content is concatenated, metadata is
// shallow-merged with next's keys taking precedence, coalesced=true is
// set, and the first event's step_id is preserved (co.latest already
// carries it, and is never overwritten from next).
func (co *coalescer) merge(next protocol.Event) {
	merged := co.latest
	merged.Content = concatContent(co.latest.Content, next.Content)
	merged.Metadata = mergeMetadata(co.latest.Metadata, next.Metadata)
	merged.Metadata["coalesced"] = true
	merged.Timestamp = next.Timestamp
	co.latest = merged
	co.timer.Reset(co.window)
}

// concatContent concatenates a and b when both are strings (the usual
// case for streaming text chunks); otherwise b simply replaces a.
func concatContent(a, b any) any {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as + bs
	}
	return b
}

// mergeMetadata shallow-merges next over base, allocating a fresh map
// so neither input is mutated.
func mergeMetadata(base, next map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(next)+1)
	for k, v := range base {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

func (co *coalescer) fire() {
	co.onFlush(co.latest)
}

func (co *coalescer) stop() {
	co.timer.Stop()
}
