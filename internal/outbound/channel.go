// Package outbound implements the per-connection send path: a bounded,
// single-writer queue that stamps sequence numbers, coalesces bursts of
// streaming events, and retains a replay ring for reconnects. It
// generalizes the dual-destination backpressure scheme of an async
// writer into a single-destination, per-tag overflow policy.
package outbound

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/agentrelay/internal/protocol"
)

// Writer is anything capable of sending a single already-sequenced
// event. The gateway's connection implements this by framing and
// writing onto the underlying websocket.
type Writer interface {
	WriteEvent(ctx context.Context, e protocol.Event) error
}

// Config controls queue depth, coalescing, and history retention. Zero
// values are replaced with sane defaults in New.
type Config struct {
	QueueCapacity   int
	CoalesceWindow  time.Duration
	HistorySize     int
	ReplayCap       int
	OnOverflowDrop  func(tag protocol.Tag)
	OnSlowConsumer  func()
}

const (
	defaultQueueCapacity  = 1000
	defaultCoalesceWindow = 75 * time.Millisecond
	defaultHistorySize    = 1000
	defaultReplayCap      = 200
)

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.CoalesceWindow <= 0 {
		c.CoalesceWindow = defaultCoalesceWindow
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	if c.ReplayCap <= 0 {
		c.ReplayCap = defaultReplayCap
	}
	return c
}

// Channel is the single-writer send path for one connection. Producers
// call Send from any goroutine; a single internal goroutine drains the
// queue in order, coalescing streaming tags and writing everything else
// through unchanged. Every event that is actually written is also
// appended to History so a reconnect can replay it.
type Channel struct {
	cfg     Config
	writer  Writer
	history *History

	mu       sync.Mutex
	nextSeq  uint64
	queue    []protocol.Event
	notEmpty chan struct{}
	closed   bool

	pendingCoalesce map[protocol.Tag]*coalescer

	done chan struct{}
}

// New builds a Channel writing sequenced, coalesced events to w.
func New(w Writer, cfg Config) *Channel {
	cfg = cfg.withDefaults()
	ch := &Channel{
		cfg:             cfg,
		writer:          w,
		history:         NewHistory(cfg.HistorySize),
		notEmpty:        make(chan struct{}, 1),
		pendingCoalesce: make(map[protocol.Tag]*coalescer),
		done:            make(chan struct{}),
	}
	return ch
}

// Run drives the Channel's drain loop until ctx is cancelled or Close
// is called. It must be run in its own goroutine; Send is safe to call
// concurrently from other goroutines for the Channel's lifetime.
func (c *Channel) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.drainRemaining(context.Background())
			return
		case <-c.notEmpty:
			c.drainAvailable(ctx)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Send enqueues e for delivery, stamping it with the next sequence
// number. Streaming tags are merged with any pending event of the same
// tag still sitting in the coalescing window; all other tags are
// queued directly. When the queue is full, streaming (droppable) tags
// are dropped with OnOverflowDrop called; non-droppable tags block the
// caller until space frees up or ctx is done.
func (c *Channel) Send(ctx context.Context, e protocol.Event) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	if protocol.IsStreamingTag(e.Tag) {
		if co, ok := c.pendingCoalesce[e.Tag]; ok {
			co.merge(e)
			c.mu.Unlock()
			return nil
		}
		co := newCoalescer(e, c.cfg.CoalesceWindow, func(merged protocol.Event) {
			c.mu.Lock()
			delete(c.pendingCoalesce, merged.Tag)
			if !c.closed {
				c.enqueueLocked(merged, true)
			}
			c.mu.Unlock()
		})
		c.pendingCoalesce[e.Tag] = co
		c.mu.Unlock()
		return nil
	}

	// A directly-queued event marks forward progress past anything still
	// sitting in a coalescing window; flush those now so they keep
	// their place ahead of e instead of arriving out of order later.
	c.flushPendingCoalesceLocked()

	for len(c.queue) >= c.cfg.QueueCapacity && !c.closed {
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		c.mu.Lock()
	}
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.enqueueLocked(e, false)
	c.mu.Unlock()
	return nil
}

// flushPendingCoalesceLocked immediately enqueues every coalescer's
// latest merged event and clears the pending set. Must be called with
// c.mu held.
func (c *Channel) flushPendingCoalesceLocked() {
	for tag, co := range c.pendingCoalesce {
		co.stop()
		c.enqueueLocked(co.latest, true)
		delete(c.pendingCoalesce, tag)
	}
}

// enqueueLocked appends e to the queue under c.mu, dropping it instead
// if the queue is full and e came from a droppable (streaming) path.
func (c *Channel) enqueueLocked(e protocol.Event, droppable bool) {
	if droppable && len(c.queue) >= c.cfg.QueueCapacity {
		if c.cfg.OnOverflowDrop != nil {
			c.cfg.OnOverflowDrop(e.Tag)
		}
		return
	}
	c.nextSeq++
	e.Seq = c.nextSeq
	c.queue = append(c.queue, e)
	select {
	case c.notEmpty <- struct{}{}:
	default:
	}
}

func (c *Channel) drainAvailable(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}
		e := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		if err := c.writer.WriteEvent(ctx, e); err != nil {
			if c.cfg.OnSlowConsumer != nil {
				c.cfg.OnSlowConsumer()
			}
			return
		}
		c.history.Append(e)
	}
}

func (c *Channel) drainRemaining(ctx context.Context) {
	c.mu.Lock()
	remaining := c.queue
	c.queue = nil
	c.mu.Unlock()
	for _, e := range remaining {
		if err := c.writer.WriteEvent(ctx, e); err != nil {
			return
		}
		c.history.Append(e)
	}
}

// Close flushes any coalescing timers still pending and stops accepting
// new sends. It does not wait for Run to observe ctx cancellation; call
// Close alongside cancelling the context passed to Run.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.flushPendingCoalesceLocked()
	c.closed = true
	c.pendingCoalesce = nil
	c.mu.Unlock()
}

// History returns the replay ring backing this channel.
func (c *Channel) History() *History {
	return c.history
}

// Done is closed once Run returns.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}
