// Package session drives a single conversational session: turning
// inbound user events into calls against an agentapi.Agent, streaming
// the Agent's Steps back out as protocol Events, and tracking the
// confirmation-gate state needed to correlate a later user.response
// with the tool call it answers.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/agentrelay/internal/agentapi"
	"github.com/ashureev/agentrelay/internal/protocol"
	"github.com/google/uuid"
)

// Sender is the minimal outbound surface a Session needs; satisfied by
// outbound.Channel's Send method.
type Sender interface {
	Send(ctx context.Context, e protocol.Event) error
}

// Clock abstracts time.Now so tests can control confirmation timeouts
// deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Config controls per-session timeouts.
type Config struct {
	ConfirmationTimeout time.Duration
	SendLLMMessage      bool
	Clock               Clock
}

// Session is the single owner of one agentapi.Agent for the lifetime
// of a logical conversation. All mutation happens on the goroutine
// running a request; Cancel and RespondToConfirmation may be called
// from any goroutine.
type Session struct {
	ID           string
	ConnectionID string

	agent  agentapi.Agent
	out    Sender
	cfg    Config
	clock  Clock

	mu           sync.Mutex
	running      bool
	cancelCurrent context.CancelFunc
	pending      map[string]*pendingConfirm

	stats agentapi.Stats
}

type pendingConfirm struct {
	toolName string
	token    string
	deadline time.Time
}

// New builds a Session bound to connectionID and backed by agent,
// sending all resulting events through out.
func New(sessionID, connectionID string, agent agentapi.Agent, out Sender, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 300 * time.Second
	}
	return &Session{
		ID:           sessionID,
		ConnectionID: connectionID,
		agent:        agent,
		out:          out,
		cfg:          cfg,
		clock:        cfg.Clock,
		pending:      make(map[string]*pendingConfirm),
	}
}

// Busy reports whether a run is currently in flight on this session.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Rebind points the session at a new outbound sender and connection,
// used when a client reconnects to a session that survived the drop
// (the old connection's channel is gone; any events from a turn still
// in flight must go out through the new one instead).
func (s *Session) Rebind(out Sender, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = out
	s.ConnectionID = connectionID
}

// HandleMessage starts a new agent turn for text, streaming every Step
// out as a sequenced event. It returns once the turn concludes (final
// answer, error, timeout, or cancellation) or ctx is done.
func (s *Session) HandleMessage(ctx context.Context, text string, metadata map[string]any) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return s.out.Send(ctx, protocol.NewAgentError(s.ID, protocol.ErrorBusy, "a request is already in flight on this session"))
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancelCurrent = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.cancelCurrent = nil
		s.mu.Unlock()
		cancel()
	}()

	input := agentapi.Input{SessionID: s.ID, Text: text, Metadata: metadata}
	var terminated bool
	for step, err := range s.agent.Run(runCtx, input) {
		if err != nil {
			if runCtx.Err() != nil {
				return s.out.Send(ctx, s.event(protocol.TagAgentInterrupted, nil, ""))
			}
			return s.out.Send(ctx, protocol.NewAgentError(s.ID, protocol.ErrorInternal, err.Error()))
		}
		if err := s.emitStep(ctx, runCtx, step); err != nil {
			return err
		}
		if step.Kind == agentapi.StepFinalAnswer {
			terminated = true
		}
	}
	if !terminated {
		return s.out.Send(ctx, s.event(protocol.TagAgentSessionEnd, nil, ""))
	}
	return nil
}

// emitStep translates a single agentapi.Step into its matching
// outbound event(s), minting a step_id for confirmation gates. runCtx
// is the run's own cancellable context (distinct from ctx, the
// connection-scoped context events are sent through), used to tie the
// confirmation-timeout watchdog to Session.Cancel rather than to
// however long the connection itself happens to stay open.
func (s *Session) emitStep(ctx, runCtx context.Context, step agentapi.Step) error {
	switch step.Kind {
	case agentapi.StepThinking:
		return s.out.Send(ctx, s.event(protocol.TagAgentThinking, step.Content, ""))
	case agentapi.StepToolCall:
		return s.out.Send(ctx, s.event(protocol.TagAgentToolCall, toolCallContent(step), ""))
	case agentapi.StepToolResult:
		return s.out.Send(ctx, s.event(protocol.TagAgentToolResult, step.Content, ""))
	case agentapi.StepConfirm:
		stepID := s.mintConfirmStepID(step.ToolName)
		s.mu.Lock()
		s.pending[stepID] = &pendingConfirm{toolName: step.ToolName, token: step.ConfirmToken, deadline: s.clock.Now().Add(s.cfg.ConfirmationTimeout)}
		s.mu.Unlock()
		go s.watchConfirmTimeout(runCtx, stepID)
		return s.out.Send(ctx, s.event(protocol.TagAgentUserConfirm, toolCallContent(step), stepID))
	case agentapi.StepPartialAnswer:
		return s.out.Send(ctx, s.event(protocol.TagAgentPartialAnswer, step.Content, ""))
	case agentapi.StepLLMMessage:
		if !s.cfg.SendLLMMessage {
			return nil
		}
		return s.out.Send(ctx, s.event(protocol.TagAgentLLMMessage, step.Content, ""))
	case agentapi.StepFinalAnswer:
		s.stats = s.agent.Stats()
		s.stats.SchemaVersion = protocol.StatisticsSchemaVersion
		final := s.event(protocol.TagAgentFinalAnswer, step.Content, "")
		final.Metadata = map[string]any{"statistics": s.stats}
		return s.out.Send(ctx, final)
	default:
		return fmt.Errorf("session: unknown step kind %q", step.Kind)
	}
}

func toolCallContent(step agentapi.Step) map[string]any {
	return map[string]any{"tool_name": step.ToolName, "tool_args": step.ToolArgs}
}

func (s *Session) mintConfirmStepID(toolName string) string {
	return fmt.Sprintf("confirm_%s_%s", uuid.NewString(), toolName)
}

func (s *Session) event(tag protocol.Tag, content any, stepID string) protocol.Event {
	return protocol.Event{
		Tag:          tag,
		Timestamp:    s.clock.Now(),
		SessionID:    s.ID,
		ConnectionID: s.ConnectionID,
		StepID:       stepID,
		Content:      content,
	}
}

// RespondToConfirmation delivers the user's decision for a pending
// confirmation identified by stepID. It is a no-op error if stepID is
// not (or is no longer) pending.
func (s *Session) RespondToConfirmation(ctx context.Context, stepID string, approved bool, reason string) error {
	s.mu.Lock()
	pc, ok := s.pending[stepID]
	if ok {
		delete(s.pending, stepID)
	}
	s.mu.Unlock()
	if !ok {
		return s.out.Send(ctx, protocol.NewAgentError(s.ID, protocol.ErrorBadSession, "no pending confirmation for step_id "+stepID))
	}
	return s.agent.Confirm(ctx, pc.token, agentapi.ConfirmDecision{Approved: approved, Reason: reason})
}

func (s *Session) watchConfirmTimeout(ctx context.Context, stepID string) {
	s.mu.Lock()
	pc, ok := s.pending[stepID]
	s.mu.Unlock()
	if !ok {
		return
	}
	wait := pc.deadline.Sub(s.clock.Now())
	select {
	case <-s.clock.After(wait):
		s.mu.Lock()
		_, stillPending := s.pending[stepID]
		if stillPending {
			delete(s.pending, stepID)
		}
		s.mu.Unlock()
		if stillPending {
			s.agent.Confirm(ctx, pc.token, agentapi.ConfirmDecision{Approved: false, Reason: "confirmation_timeout"})
			s.out.Send(ctx, protocol.NewAgentError(s.ID, protocol.ErrorConfirmationTime, "no response within the confirmation window"))
		}
	case <-ctx.Done():
	}
}

// Cancel aborts the run currently in flight, if any, and resolves any
// confirmation still awaiting a user.response with a cancellation
// signal rather than leaving it to fire its timeout against a turn
// that has already ended. It is idempotent.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancelCurrent
	pending := s.pending
	s.pending = make(map[string]*pendingConfirm)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, pc := range pending {
		s.agent.Confirm(context.Background(), pc.token, agentapi.ConfirmDecision{Approved: false, Reason: "cancelled"})
	}
}

// Close releases the underlying agent.
func (s *Session) Close() error {
	s.Cancel()
	return s.agent.Close()
}

// Stats returns the most recently observed agent statistics.
func (s *Session) Stats() agentapi.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Agent returns the agentapi.Agent backing this session, for
// components (such as the plan-solve pipeline) that need to drive
// additional turns against the same underlying agent.
func (s *Session) Agent() agentapi.Agent {
	return s.agent
}
