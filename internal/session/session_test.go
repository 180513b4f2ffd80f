package session

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentrelay/internal/agentapi"
	"github.com/ashureev/agentrelay/internal/protocol"
)

type fakeSender struct {
	mu   sync.Mutex
	got  []protocol.Event
}

func (f *fakeSender) Send(ctx context.Context, e protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return nil
}

func (f *fakeSender) tags() []protocol.Tag {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Tag, len(f.got))
	for i, e := range f.got {
		out[i] = e.Tag
	}
	return out
}

func TestHandleMessageEmitsOrderedEvents(t *testing.T) {
	agent := agentapi.NewScriptedAgent([]agentapi.Step{
		{Kind: agentapi.StepThinking, Content: "hmm"},
		{Kind: agentapi.StepFinalAnswer, Content: "42"},
	})
	out := &fakeSender{}
	s := New("sess-1", "conn-1", agent, out, Config{})

	if err := s.HandleMessage(context.Background(), "what is the answer", nil); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	tags := out.tags()
	if len(tags) != 2 || tags[0] != protocol.TagAgentThinking || tags[1] != protocol.TagAgentFinalAnswer {
		t.Fatalf("tags = %v, want [agent.thinking agent.final_answer]", tags)
	}
}

func TestHandleMessageRejectsConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	agent := &blockingAgent{unblock: block}
	out := &fakeSender{}
	s := New("sess-1", "conn-1", agent, out, Config{})

	go s.HandleMessage(context.Background(), "first", nil)
	time.Sleep(20 * time.Millisecond)

	err := s.HandleMessage(context.Background(), "second", nil)
	if err != nil {
		t.Fatalf("second HandleMessage returned transport error: %v", err)
	}
	close(block)

	time.Sleep(20 * time.Millisecond)
	tags := out.tags()
	found := false
	for _, tag := range tags {
		if tag == protocol.TagAgentError {
			found = true
		}
	}
	if !found {
		t.Errorf("tags = %v, want an agent.error for the busy session", tags)
	}
}

// blockingAgent yields one step then blocks on unblock before finishing.
type blockingAgent struct {
	unblock chan struct{}
}

func (a *blockingAgent) Run(ctx context.Context, input agentapi.Input) iter.Seq2[agentapi.Step, error] {
	return func(yield func(agentapi.Step, error) bool) {
		if !yield(agentapi.Step{Kind: agentapi.StepThinking}, nil) {
			return
		}
		select {
		case <-a.unblock:
		case <-ctx.Done():
			return
		}
		yield(agentapi.Step{Kind: agentapi.StepFinalAnswer, Content: "done"}, nil)
	}
}

func (a *blockingAgent) Confirm(ctx context.Context, token string, decision agentapi.ConfirmDecision) error {
	return nil
}
func (a *blockingAgent) Stats() agentapi.Stats { return agentapi.Stats{} }
func (a *blockingAgent) Close() error          { return nil }

func TestCancelWhileAwaitingConfirmationEndsTheRun(t *testing.T) {
	agent := agentapi.NewScriptedAgent([]agentapi.Step{
		{Kind: agentapi.StepConfirm, ConfirmToken: "tok-1", ToolName: "delete_file"},
		{Kind: agentapi.StepToolResult, Content: "deleted"},
		{Kind: agentapi.StepFinalAnswer, Content: "done"},
	})
	out := &fakeSender{}
	s := New("sess-1", "conn-1", agent, out, Config{ConfirmationTimeout: time.Minute})

	done := make(chan error, 1)
	go func() { done <- s.HandleMessage(context.Background(), "delete it", nil) }()

	time.Sleep(20 * time.Millisecond)
	s.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out: Cancel while awaiting confirmation should end the run promptly")
	}

	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending confirmations = %d, want 0 after Cancel", pending)
	}
}

func TestConfirmationRoundTrip(t *testing.T) {
	agent := agentapi.NewScriptedAgent([]agentapi.Step{
		{Kind: agentapi.StepConfirm, ConfirmToken: "tok-1", ToolName: "delete_file"},
		{Kind: agentapi.StepFinalAnswer, Content: "done"},
	})
	out := &fakeSender{}
	s := New("sess-1", "conn-1", agent, out, Config{ConfirmationTimeout: time.Second})

	done := make(chan error, 1)
	go func() { done <- s.HandleMessage(context.Background(), "delete it", nil) }()

	time.Sleep(20 * time.Millisecond)
	out.mu.Lock()
	var stepID string
	for _, e := range out.got {
		if e.Tag == protocol.TagAgentUserConfirm {
			stepID = e.StepID
		}
	}
	out.mu.Unlock()
	if stepID == "" {
		t.Fatal("no agent.user_confirm event observed")
	}

	if err := s.RespondToConfirmation(context.Background(), stepID, true, ""); err != nil {
		t.Fatalf("RespondToConfirmation: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for HandleMessage to finish")
	}
}
