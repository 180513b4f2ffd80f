package agentapi

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ScriptedAgent is a deterministic Agent used by tests: it yields a
// fixed sequence of Steps and, if the script includes a StepConfirm,
// blocks until the matching Confirm call arrives.
type ScriptedAgent struct {
	mu       sync.Mutex
	script   []Step
	stats    Stats
	confirms map[string]chan ConfirmDecision
	closed   bool
}

// NewScriptedAgent builds a ScriptedAgent that yields script in order
// on every call to Run.
func NewScriptedAgent(script []Step) *ScriptedAgent {
	return &ScriptedAgent{
		script:   script,
		confirms: make(map[string]chan ConfirmDecision),
	}
}

var ErrScriptedAgentClosed = errors.New("agentapi: scripted agent is closed")

func (a *ScriptedAgent) Run(ctx context.Context, input Input) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		for _, step := range a.script {
			a.mu.Lock()
			if a.closed {
				a.mu.Unlock()
				yield(Step{}, ErrScriptedAgentClosed)
				return
			}
			a.mu.Unlock()

			if step.Kind == StepToolCall {
				a.mu.Lock()
				a.stats.ToolCalls++
				a.mu.Unlock()
			}

			if step.Kind == StepConfirm {
				ch := make(chan ConfirmDecision, 1)
				a.mu.Lock()
				a.confirms[step.ConfirmToken] = ch
				a.mu.Unlock()

				if !yield(step, nil) {
					return
				}

				select {
				case decision := <-ch:
					if !decision.Approved {
						yield(Step{Kind: StepFinalAnswer, Content: "cancelled: " + decision.Reason}, nil)
						return
					}
					continue
				case <-ctx.Done():
					yield(Step{}, ctx.Err())
					return
				}
			}

			if !yield(step, nil) {
				return
			}
		}
	}
}

func (a *ScriptedAgent) Confirm(ctx context.Context, token string, decision ConfirmDecision) error {
	a.mu.Lock()
	ch, ok := a.confirms[token]
	if ok {
		delete(a.confirms, token)
	}
	a.mu.Unlock()
	if !ok {
		return errors.New("agentapi: no pending confirmation for token " + token)
	}
	select {
	case ch <- decision:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *ScriptedAgent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.stats
	stats.SchemaVersion = 1
	return stats
}

func (a *ScriptedAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
