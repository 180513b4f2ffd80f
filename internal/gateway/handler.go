package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ashureev/agentrelay/internal/agentapi"
	"github.com/ashureev/agentrelay/internal/config"
	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/pipeline"
	"github.com/ashureev/agentrelay/internal/protocol"
	"github.com/ashureev/agentrelay/internal/session"
	"github.com/ashureev/agentrelay/internal/state"
)

// Handler upgrades incoming HTTP requests to WebSocket connections and
// runs each connection's read loop for its lifetime.
type Handler struct {
	registry       *Registry
	agentFactory   agentapi.Factory
	cfg            *config.Config
	signer         *state.Signer
	metrics        *outbound.Metrics
	allowedOrigins []string
	isDev          bool

	pipelinesMu sync.Mutex
	pipelines   map[string]*pipeline.Pipeline
}

// NewHandler builds a Handler. An allowedOrigins list containing "*"
// disables the origin check (suitable for local development).
func NewHandler(registry *Registry, agentFactory agentapi.Factory, cfg *config.Config, signer *state.Signer, metrics *outbound.Metrics, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		registry:       registry,
		agentFactory:   agentFactory,
		cfg:            cfg,
		signer:         signer,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		pipelines:      make(map[string]*pipeline.Pipeline),
	}
}

// pipelineFor returns the pipeline bound to sessionID, if any.
func (h *Handler) pipelineFor(sessionID string) (*pipeline.Pipeline, bool) {
	h.pipelinesMu.Lock()
	defer h.pipelinesMu.Unlock()
	p, ok := h.pipelines[sessionID]
	return p, ok
}

// bindPipeline registers p as the active pipeline for sessionID.
func (h *Handler) bindPipeline(sessionID string, p *pipeline.Pipeline) {
	h.pipelinesMu.Lock()
	defer h.pipelinesMu.Unlock()
	h.pipelines[sessionID] = p
}

// ServeHTTP implements http.Handler for the WebSocket upgrade endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		slog.Error("gateway: failed to accept websocket", "error", err)
		return
	}

	connectionID := uuid.NewString()
	conn := NewConnection(connectionID, ws)
	defer conn.Close()

	channel := outbound.New(conn, outbound.Config{
		QueueCapacity:  h.cfg.Outbound.QueueCapacity,
		CoalesceWindow: h.cfg.Outbound.CoalesceWindow,
		HistorySize:    h.cfg.Outbound.HistorySize,
		ReplayCap:      h.cfg.Outbound.ReplayCap,
		OnOverflowDrop: func(tag protocol.Tag) {
			if h.metrics != nil {
				h.metrics.EventsDropped.WithLabelValues(string(tag)).Inc()
			}
		},
		OnSlowConsumer: func() {
			if h.metrics != nil {
				h.metrics.SlowConsumers.Inc()
			}
		},
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go channel.Run(ctx)
	defer channel.Close()

	h.registry.Register(conn, channel)
	defer h.registry.Unregister(connectionID)

	channel.Send(ctx, protocol.Event{
		Tag:          protocol.TagSystemConnected,
		Timestamp:    time.Now(),
		ConnectionID: connectionID,
	})

	limiter := rate.NewLimiter(rate.Limit(50), 100)

	slog.Info("gateway: connection accepted", "connection_id", connectionID, "remote", r.RemoteAddr)
	h.readLoop(ctx, connectionID, conn, channel, limiter)
	slog.Info("gateway: connection closed", "connection_id", connectionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("gateway: websocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) readLoop(ctx context.Context, connectionID string, conn *Connection, channel *outbound.Channel, limiter *rate.Limiter) {
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Warn("gateway: websocket read error", "connection_id", connectionID, "error", err)
			}
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		ev, err := protocol.Decode(raw, h.cfg.Session.MaxInboundFrameBytes)
		if err != nil {
			kind := protocol.ErrorInvalidFrame
			if protocol.IsUnknownTagError(err) {
				kind = protocol.ErrorUnknownEvent
			}
			channel.Send(ctx, protocol.NewSystemError(kind, err.Error()))
			continue
		}
		ev.ConnectionID = connectionID

		h.dispatch(ctx, connectionID, channel, ev)
	}
}

func (h *Handler) dispatch(ctx context.Context, connectionID string, channel *outbound.Channel, ev protocol.Event) {
	if protocol.RequiresSession(ev.Tag) {
		sess, ok := h.registry.Session(connectionID)
		if !ok {
			channel.Send(ctx, protocol.NewSystemError(protocol.ErrorBadSession, "no session bound to this connection"))
			return
		}
		if ev.SessionID != sess.ID {
			channel.Send(ctx, protocol.NewSystemError(protocol.ErrorBadSession, "session_id does not match the session bound to this connection"))
			return
		}
		h.dispatchSessionEvent(ctx, connectionID, sess, channel, ev)
		return
	}

	switch ev.Tag {
	case protocol.TagUserCreateSession:
		h.handleCreateSession(ctx, connectionID, channel)
	case protocol.TagUserReconnect:
		h.handleReconnect(ctx, connectionID, channel, ev)
	case protocol.TagUserReconnectWithState:
		h.handleReconnectWithState(ctx, connectionID, channel, ev)
	case protocol.TagUserRequestState:
		h.handleRequestState(ctx, connectionID, channel, ev)
	case protocol.TagUserAck:
		h.handleAck(connectionID, channel, ev)
	default:
		channel.Send(ctx, protocol.NewSystemError(protocol.ErrorUnknownEvent, string(ev.Tag)))
	}
}

func (h *Handler) dispatchSessionEvent(ctx context.Context, connectionID string, sess *session.Session, channel *outbound.Channel, ev protocol.Event) {
	switch ev.Tag {
	case protocol.TagUserMessage:
		text, _ := ev.Content.(string)
		go sess.HandleMessage(ctx, text, ev.Metadata)
	case protocol.TagUserResponse:
		confirmed := false
		reason := ""
		if m, ok := ev.Content.(map[string]any); ok {
			confirmed, _ = m["confirmed"].(bool)
			reason, _ = m["reason"].(string)
		}
		sess.RespondToConfirmation(ctx, ev.StepID, confirmed, reason)
	case protocol.TagUserCancel:
		sess.Cancel()
	case protocol.TagUserSolveTasks, protocol.TagUserCancelTask, protocol.TagUserRestartTask,
		protocol.TagUserCancelPlan, protocol.TagUserReplan:
		h.dispatchPipelineEvent(ctx, connectionID, sess, channel, ev)
	default:
		channel.Send(ctx, protocol.NewSystemError(protocol.ErrorUnknownEvent, string(ev.Tag)))
	}
}
