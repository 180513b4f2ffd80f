// Package protocol defines the closed set of gateway event tags, their
// validation rules, and the JSON wire framing used between a client and
// an agentrelay connection.
package protocol

// Category groups event tags by direction and origin, as spec.md §4.1
// describes: user events flow client→server, agent and plan-solve
// events flow server→client bound to a session, system events flow
// server→client unbound to any session.
type Category string

const (
	CategoryUser      Category = "user"
	CategoryAgent     Category = "agent"
	CategoryPlanSolve Category = "plan_solve"
	CategorySystem    Category = "system"
	categoryUnknown   Category = ""
)

// Tag is one member of the closed event-tag set. Unknown tags on
// ingress are rejected before ever becoming a Tag value.
type Tag string

// User category (client→server).
const (
	TagUserCreateSession       Tag = "user.create_session"
	TagUserMessage             Tag = "user.message"
	TagUserResponse            Tag = "user.response"
	TagUserCancel              Tag = "user.cancel"
	TagUserAck                 Tag = "user.ack"
	TagUserReconnect           Tag = "user.reconnect"
	TagUserReconnectWithState  Tag = "user.reconnect_with_state"
	TagUserRequestState        Tag = "user.request_state"
	TagUserSolveTasks          Tag = "user.solve_tasks"
	TagUserCancelTask          Tag = "user.cancel_task"
	TagUserRestartTask         Tag = "user.restart_task"
	TagUserCancelPlan          Tag = "user.cancel_plan"
	TagUserReplan              Tag = "user.replan"
)

// Agent category (server→client).
const (
	TagAgentSessionCreated Tag = "agent.session_created"
	TagAgentThinking       Tag = "agent.thinking"
	TagAgentToolCall       Tag = "agent.tool_call"
	TagAgentToolResult     Tag = "agent.tool_result"
	TagAgentUserConfirm    Tag = "agent.user_confirm"
	TagAgentPartialAnswer  Tag = "agent.partial_answer"
	TagAgentLLMMessage     Tag = "agent.llm_message"
	TagAgentFinalAnswer    Tag = "agent.final_answer"
	TagAgentStateExported  Tag = "agent.state_exported"
	TagAgentStateRestored  Tag = "agent.state_restored"
	TagAgentError          Tag = "agent.error"
	TagAgentTimeout        Tag = "agent.timeout"
	TagAgentInterrupted    Tag = "agent.interrupted"
	TagAgentSessionEnd     Tag = "agent.session_end"
)

// Plan-solve category (server→client).
const (
	TagPlanStart          Tag = "plan.start"
	TagPlanCompleted      Tag = "plan.completed"
	TagPlanCancelled      Tag = "plan.cancelled"
	TagPlanCoercionError  Tag = "plan.coercion_error"
	TagSolverStart        Tag = "solver.start"
	TagSolverCompleted    Tag = "solver.completed"
	TagSolverCancelled    Tag = "solver.cancelled"
	TagSolverRestarted    Tag = "solver.restarted"
	TagAggregateStart     Tag = "aggregate.start"
	TagAggregateCompleted Tag = "aggregate.completed"
	TagPipelineCompleted  Tag = "pipeline.completed"
)

// System category (server→client, never carries session_id).
const (
	TagSystemConnected Tag = "system.connected"
	TagSystemHeartbeat Tag = "system.heartbeat"
	TagSystemNotice    Tag = "system.notice"
	TagSystemError     Tag = "system.error"
)

var userTags = map[Tag]bool{
	TagUserCreateSession:      true,
	TagUserMessage:            true,
	TagUserResponse:           true,
	TagUserCancel:             true,
	TagUserAck:                true,
	TagUserReconnect:          true,
	TagUserReconnectWithState: true,
	TagUserRequestState:       true,
	TagUserSolveTasks:         true,
	TagUserCancelTask:         true,
	TagUserRestartTask:        true,
	TagUserCancelPlan:         true,
	TagUserReplan:             true,
}

var sessionExemptTags = map[Tag]bool{
	TagUserCreateSession:      true,
	TagUserReconnect:          true,
	TagUserReconnectWithState: true,
	TagUserRequestState:       true,
	TagUserAck:                true,
}

// Category reports which of the four closed categories tag belongs to.
// It returns categoryUnknown for any tag outside the closed set. It
// does not look at direction: whether a tag is legal on ingress is
// IsUserTag's job.
func (t Tag) Category() Category {
	switch {
	case userTags[t]:
		return CategoryUser
	case isAgentTag(t):
		return CategoryAgent
	case isPlanSolveTag(t):
		return CategoryPlanSolve
	case isSystemTag(t):
		return CategorySystem
	default:
		return categoryUnknown
	}
}

func isAgentTag(t Tag) bool {
	switch t {
	case TagAgentSessionCreated, TagAgentThinking, TagAgentToolCall, TagAgentToolResult,
		TagAgentUserConfirm, TagAgentPartialAnswer, TagAgentLLMMessage, TagAgentFinalAnswer,
		TagAgentStateExported, TagAgentStateRestored, TagAgentError, TagAgentTimeout,
		TagAgentInterrupted, TagAgentSessionEnd:
		return true
	default:
		return false
	}
}

func isPlanSolveTag(t Tag) bool {
	switch t {
	case TagPlanStart, TagPlanCompleted, TagPlanCancelled, TagPlanCoercionError,
		TagSolverStart, TagSolverCompleted, TagSolverCancelled, TagSolverRestarted,
		TagAggregateStart, TagAggregateCompleted, TagPipelineCompleted:
		return true
	default:
		return false
	}
}

func isSystemTag(t Tag) bool {
	switch t {
	case TagSystemConnected, TagSystemHeartbeat, TagSystemNotice, TagSystemError:
		return true
	default:
		return false
	}
}

// IsUserTag reports whether t is a legal inbound (client→server) tag.
func IsUserTag(t Tag) bool {
	return userTags[t]
}

// RequiresSession reports whether an inbound event of this tag must
// carry a session_id bound to the current connection (spec.md §4.1).
func RequiresSession(t Tag) bool {
	return IsUserTag(t) && !sessionExemptTags[t]
}

// CarriesSessionID reports whether outbound events of this tag always
// carry session_id (agent/plan-solve categories do, system never does).
func CarriesSessionID(t Tag) bool {
	switch t.Category() {
	case CategoryAgent, CategoryPlanSolve:
		return true
	default:
		return false
	}
}

// Streaming tags are eligible for the outbound channel's coalescing
// policy (spec.md §4.2). All other tags must never be dropped on
// overflow.
var streamingTags = map[Tag]bool{
	TagAgentPartialAnswer: true,
	TagAgentLLMMessage:    true,
	TagAgentThinking:      true,
}

// IsStreamingTag reports whether events of this tag may be merged by
// the outbound channel's coalescing window.
func IsStreamingTag(t Tag) bool {
	return streamingTags[t]
}

// terminatingTags end a single session.run request (spec.md §8: exactly
// one is emitted per request). Coalescing must never merge across one
// of these.
var terminatingTags = map[Tag]bool{
	TagAgentFinalAnswer: true,
	TagAgentTimeout:     true,
	TagAgentInterrupted: true,
	TagAgentError:       true,
}

// IsTerminatingTag reports whether tag ends a session request.
func IsTerminatingTag(t Tag) bool {
	return terminatingTags[t]
}

// ErrorKind is a stable identifier surfaced in metadata.error_kind
// (spec.md §7).
type ErrorKind string

const (
	ErrorInvalidFrame       ErrorKind = "invalid_frame"
	ErrorUnknownEvent       ErrorKind = "unknown_event"
	ErrorBadSession         ErrorKind = "bad_session"
	ErrorBusy               ErrorKind = "busy"
	ErrorConfirmationTime   ErrorKind = "confirmation_timeout"
	ErrorStateExpired       ErrorKind = "state_expired"
	ErrorSignatureMismatch  ErrorKind = "signature_mismatch"
	ErrorChecksumMismatch   ErrorKind = "checksum_mismatch"
	ErrorVersionUnsupported ErrorKind = "version_unsupported"
	ErrorPlanFailed         ErrorKind = "plan_failed"
	ErrorAggregateFailed    ErrorKind = "aggregate_failed"
	ErrorCoercionError      ErrorKind = "coercion_error"
	ErrorSlowConsumer       ErrorKind = "slow_consumer"
	ErrorInternal           ErrorKind = "internal_error"
)

// StatisticsSchemaVersion is stamped onto every metadata.statistics
// object this implementation produces (spec.md §9, Open Question (c)).
const StatisticsSchemaVersion = 1
