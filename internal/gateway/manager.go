package gateway

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashureev/agentrelay/internal/agentapi"
	"github.com/ashureev/agentrelay/internal/config"
	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/state"
)

// Manager owns every long-lived piece of the gateway: the connection
// registry, the heartbeat loop, and the assembled HTTP router. cmd/gateway
// constructs one Manager at startup and runs it until shutdown.
type Manager struct {
	Registry  *Registry
	Handler   *Handler
	Heartbeat *Heartbeat
	HTTP      http.Handler
}

// NewManager wires together a Registry, Handler, Heartbeat, and HTTP
// router from cfg and agentFactory.
func NewManager(cfg *config.Config, agentFactory agentapi.Factory, allowedOrigins []string) *Manager {
	promReg := prometheus.NewRegistry()
	metrics := outbound.NewMetrics(promReg)
	signer := state.NewSigner(cfg.State.SecretKey, cfg.State.SnapshotTTL, cfg.State.MaxSnapshotBytes)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	registry := NewRegistry()
	handler := NewHandler(registry, agentFactory, cfg, signer, metrics, allowedOrigins, false)
	heartbeat := NewHeartbeat(registry, cfg.Session.HeartbeatInterval, cfg.Session.ReconnectGrace)
	router := Router(handler, registry, promReg, allowedOrigins)

	return &Manager{Registry: registry, Handler: handler, Heartbeat: heartbeat, HTTP: router}
}

// Run starts the heartbeat loop; call it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	m.Heartbeat.Run(ctx)
}
