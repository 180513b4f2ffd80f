package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/protocol"
	"github.com/ashureev/agentrelay/internal/session"
	"github.com/ashureev/agentrelay/internal/state"
)

func (h *Handler) newSession(sessionID, connectionID string, channel *outbound.Channel) (*session.Session, error) {
	agent, err := h.agentFactory()
	if err != nil {
		return nil, err
	}
	return session.New(sessionID, connectionID, agent, channel, session.Config{
		ConfirmationTimeout: h.cfg.Session.ConfirmationTimeout,
		SendLLMMessage:      h.cfg.Session.SendLLMMessage,
	}), nil
}

func (h *Handler) handleCreateSession(ctx context.Context, connectionID string, channel *outbound.Channel) {
	sessionID := uuid.NewString()
	sess, err := h.newSession(sessionID, connectionID, channel)
	if err != nil {
		channel.Send(ctx, protocol.NewSystemError(protocol.ErrorInternal, err.Error()))
		return
	}
	h.registry.BindSession(connectionID, sess)
	channel.Send(ctx, protocol.Event{
		Tag:          protocol.TagAgentSessionCreated,
		Timestamp:    time.Now(),
		SessionID:    sessionID,
		ConnectionID: connectionID,
	})
}

// handleReconnect rebinds the connection to an already in-memory
// session (the common case: the same process, a dropped socket) and
// replays whatever history survives, capped at ReplayCap. The session
// is looked up by its own ID, not the (brand new) connection ID, since
// the registry keeps a disconnected session's record — and the replay
// history of whichever channel last served it — alive for the
// reconnect grace period.
func (h *Handler) handleReconnect(ctx context.Context, connectionID string, channel *outbound.Channel, ev protocol.Event) {
	sess, ok := h.registry.SessionByID(ev.SessionID)
	if !ok {
		channel.Send(ctx, protocol.NewAgentError(ev.SessionID, protocol.ErrorBadSession, "no in-memory session to reconnect to; use user.reconnect_with_state"))
		return
	}
	oldHistory, _ := h.registry.HistoryByID(ev.SessionID)

	sess.Rebind(channel, connectionID)
	h.registry.BindSession(connectionID, sess)

	_, afterSeq, _ := protocol.ParseCheckpoint(ev.Content)
	if oldHistory == nil {
		channel.Send(ctx, protocol.Event{
			Tag:       protocol.TagSystemNotice,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"recovery": "no_history"},
		})
		return
	}
	h.replayFromHistory(ctx, channel, oldHistory, afterSeq)
}

// handleReconnectWithState restores a session from a signed snapshot
// (spec.md §9 Open Question (b)): it works even after a process
// restart. The restored session keeps the snapshot's session ID and
// gets a fresh agent from the factory; the snapshot's Memory is only
// counted in metadata.memory_messages and is not handed to the agent
// (handleRequestState exports no memory). Whatever session-level
// history, if any, is still retained is then replayed.
func (h *Handler) handleReconnectWithState(ctx context.Context, connectionID string, channel *outbound.Channel, ev protocol.Event) {
	blob, _ := ev.Content.(string)
	restored, err := state.Restore(h.signer, blob, time.Now())
	if err != nil {
		kind := errKindForStateError(err)
		channel.Send(ctx, protocol.NewSystemError(kind, err.Error()))
		return
	}

	// Look up whatever session-level history still exists for this
	// session ID *before* rebinding, since BindSession repoints the
	// registry's history index at the new (empty) channel.
	oldHistory, _ := h.registry.HistoryByID(restored.SessionID)

	sess, err := h.newSession(restored.SessionID, connectionID, channel)
	if err != nil {
		channel.Send(ctx, protocol.NewSystemError(protocol.ErrorInternal, err.Error()))
		return
	}
	h.registry.BindSession(connectionID, sess)

	channel.Send(ctx, protocol.Event{
		Tag:          protocol.TagAgentStateRestored,
		Timestamp:    time.Now(),
		SessionID:    restored.SessionID,
		ConnectionID: connectionID,
		Metadata:     map[string]any{"previous_session_id": restored.SessionID, "memory_messages": len(restored.Memory)},
	})

	if oldHistory != nil && oldHistory.Len() > 0 {
		h.replayFromHistory(ctx, channel, oldHistory, restored.ResumeAfterSeq)
		return
	}
	channel.Send(ctx, protocol.Event{
		Tag:       protocol.TagSystemNotice,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"recovery": "no_history"},
	})
}

func errKindForStateError(err error) protocol.ErrorKind {
	switch err {
	case state.ErrExpired:
		return protocol.ErrorStateExpired
	case state.ErrSignatureMismatch:
		return protocol.ErrorSignatureMismatch
	case state.ErrChecksumMismatch:
		return protocol.ErrorChecksumMismatch
	case state.ErrVersionUnsupported:
		return protocol.ErrorVersionUnsupported
	default:
		return protocol.ErrorInternal
	}
}

// handleRequestState exports the current session into a signed
// snapshot the client can hold and later present to
// user.reconnect_with_state.
func (h *Handler) handleRequestState(ctx context.Context, connectionID string, channel *outbound.Channel, ev protocol.Event) {
	sess, ok := h.registry.Session(connectionID)
	if !ok {
		channel.Send(ctx, protocol.NewSystemError(protocol.ErrorBadSession, "no session bound to this connection"))
		return
	}
	ch, _ := h.registry.Channel(connectionID)
	var lastSeq uint64
	if ch != nil {
		lastSeq = ch.History().Latest()
	}

	now := time.Now()
	payload := state.Payload{
		SessionID:  sess.ID,
		CreatedAt:  now,
		ExportedAt: now,
		LastSeq:    lastSeq,
	}
	payload.Truncate(h.cfg.State.MaxMemoryMessages)

	blob, err := h.signer.Export(payload)
	if err != nil {
		channel.Send(ctx, protocol.NewAgentError(sess.ID, protocol.ErrorInternal, err.Error()))
		return
	}
	channel.Send(ctx, protocol.Event{
		Tag:       protocol.TagAgentStateExported,
		Timestamp: now,
		SessionID: sess.ID,
		Content:   blob,
	})
}

// replayFromHistory resends every event after afterSeq from src into
// dest, capped at ReplayCap. If afterSeq predates everything src still
// retains, it emits a gap notice instead of silently skipping events.
// If more events were available than the cap allowed, it first emits a
// system.notice{recovery:"partial"} so the client knows replay ended
// early rather than silently handing back a suffix with a hole in it.
func (h *Handler) replayFromHistory(ctx context.Context, dest *outbound.Channel, src *outbound.History, afterSeq uint64) {
	events, truncated, ok := src.Since(afterSeq, h.cfg.Outbound.ReplayCap)
	if !ok {
		dest.Send(ctx, protocol.Event{
			Tag:       protocol.TagSystemNotice,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"recovery": "gap_exceeds_history"},
		})
		return
	}
	if truncated {
		dest.Send(ctx, protocol.Event{
			Tag:       protocol.TagSystemNotice,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"recovery": "partial"},
		})
	}
	for _, e := range events {
		dest.Send(ctx, e)
	}
}

// handleAck releases history entries the client has confirmed
// receiving (spec.md §4.2 "Acknowledgement and trimming"). A
// last_event_id whose connection id doesn't match this connection is
// stale — the ack raced a reconnect — so it's ignored for trimming
// here; the next reconnect's replay is what picks up the slack.
func (h *Handler) handleAck(connectionID string, channel *outbound.Channel, ev protocol.Event) {
	connID, seq, ok := protocol.ParseCheckpoint(ev.Content)
	if !ok {
		return
	}
	if connID != "" && connID != connectionID {
		return
	}
	channel.History().TrimThrough(seq)
}
