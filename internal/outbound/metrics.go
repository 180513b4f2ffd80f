package outbound

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by every Channel in
// the process. Construct one with NewMetrics; the gateway handler
// feeds EventsDropped and SlowConsumers from each Channel's
// OnOverflowDrop and OnSlowConsumer callbacks. EventsSent, QueueDepth
// and CoalesceMerges are registered but nothing updates them.
type Metrics struct {
	EventsSent     *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	SlowConsumers  prometheus.Counter
	QueueDepth     *prometheus.GaugeVec
	CoalesceMerges *prometheus.CounterVec
}

// NewMetrics registers the outbound channel's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrelay_outbound_events_sent_total",
			Help: "Events successfully written to a connection, by tag.",
		}, []string{"tag"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrelay_outbound_events_dropped_total",
			Help: "Streaming events dropped on queue overflow, by tag.",
		}, []string{"tag"}),
		SlowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentrelay_outbound_slow_consumers_total",
			Help: "Connections torn down for falling behind the outbound queue.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrelay_outbound_queue_depth",
			Help: "Current depth of each connection's outbound queue.",
		}, []string{"connection_id"}),
		CoalesceMerges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrelay_outbound_coalesce_merges_total",
			Help: "Streaming events merged into a pending coalesced event, by tag.",
		}, []string{"tag"}),
	}
}
