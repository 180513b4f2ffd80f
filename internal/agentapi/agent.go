// Package agentapi defines the contract a concrete agent implementation
// must satisfy to be driven by a session. It generalizes an
// iterator-based terminal/chat processor interface into a single
// step-streaming contract that covers both plain chat turns and
// confirmation-gated tool execution.
package agentapi

import (
	"context"
	"iter"
)

// StepKind identifies what a Step represents; the session engine maps
// each kind onto the matching outbound event tag.
type StepKind string

const (
	StepThinking      StepKind = "thinking"
	StepToolCall      StepKind = "tool_call"
	StepToolResult    StepKind = "tool_result"
	StepConfirm       StepKind = "confirm"
	StepPartialAnswer StepKind = "partial_answer"
	StepLLMMessage    StepKind = "llm_message"
	StepFinalAnswer   StepKind = "final_answer"
)

// Step is one unit of agent progress. An agent implementation yields a
// sequence of Steps in response to Run; the session engine stamps each
// one with session/connection/step identifiers before it is sent.
type Step struct {
	Kind StepKind

	// Content carries the step's payload: a thought fragment, a tool
	// invocation descriptor, a tool result, or the text of an answer.
	Content any

	// ToolName and ToolArgs are populated for StepToolCall and
	// StepConfirm; ToolName is also echoed on the matching
	// StepToolResult.
	ToolName string
	ToolArgs map[string]any

	// ConfirmToken is set on StepConfirm; the session engine mints a
	// step_id from a fresh UUID and the tool name, records the token
	// against that step_id, and supplies it back to Agent.Confirm.
	ConfirmToken string
}

// ConfirmDecision is the client's answer to a StepConfirm step.
type ConfirmDecision struct {
	Approved bool
	Reason   string
}

// Input is a single user turn handed to Run.
type Input struct {
	SessionID string
	Text      string
	Metadata  map[string]any
}

// Agent drives one conversational session end to end. Implementations
// are expected to block internally on confirmation gates: Run's
// returned iterator yields a StepConfirm and then does not advance
// until the session engine calls Confirm with the user's decision.
type Agent interface {
	// Run starts (or continues) processing Input and streams Steps
	// until the turn concludes with a StepFinalAnswer, an error, or ctx
	// is cancelled. Iteration must stop cleanly if the consumer breaks
	// out of the range loop early (e.g. on user.cancel).
	Run(ctx context.Context, input Input) iter.Seq2[Step, error]

	// Confirm supplies the user's decision for the most recently
	// yielded StepConfirm carrying this token. It is safe to call from
	// a different goroutine than the one ranging over Run's iterator.
	Confirm(ctx context.Context, token string, decision ConfirmDecision) error

	// Stats returns a snapshot of this agent's usage counters for the
	// session, used to populate metadata.statistics.
	Stats() Stats

	// Close releases any resources held for this agent's session.
	Close() error
}

// Stats mirrors the per-call statistics an agent implementation tracks
// internally (token counts, tool invocations, elapsed wall time).
type Stats struct {
	SchemaVersion int   `json:"schema_version"`
	ToolCalls     int   `json:"tool_calls"`
	PromptTokens  int   `json:"prompt_tokens,omitempty"`
	CompletionTok int   `json:"completion_tokens,omitempty"`
	ElapsedMillis int64 `json:"elapsed_ms"`
}

// Factory builds a fresh Agent for a newly created session. The
// session engine calls it exactly once per session's lifetime; Agent
// implementations that need external setup (API keys, tool registries)
// should capture them in the Factory's closure.
type Factory func() (Agent, error)
