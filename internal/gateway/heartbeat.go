package gateway

import (
	"context"
	"time"

	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/protocol"
)

// Heartbeat periodically fans a system.heartbeat event out to every
// live connection, letting clients detect a dead connection faster
// than their own read timeout would. It also reaps sessions whose
// connection dropped and was never reconnected within the grace
// period, since the registry keeps them around past disconnect to let
// user.reconnect find them.
type Heartbeat struct {
	registry       *Registry
	interval       time.Duration
	reconnectGrace time.Duration
}

// NewHeartbeat builds a Heartbeat broadcasting every interval and
// reaping orphaned sessions older than reconnectGrace.
func NewHeartbeat(registry *Registry, interval, reconnectGrace time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if reconnectGrace <= 0 {
		reconnectGrace = 120 * time.Second
	}
	return &Heartbeat{registry: registry, interval: interval, reconnectGrace: reconnectGrace}
}

// Run broadcasts on a ticker until ctx is done.
func (hb *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb.registry.Broadcast(func(ch *outbound.Channel) {
				ch.Send(ctx, protocol.Event{
					Tag:       protocol.TagSystemHeartbeat,
					Timestamp: time.Now(),
				})
			})
			hb.registry.ReapOrphanedSessions(hb.reconnectGrace)
		}
	}
}
