package protocol

import "time"

// Event is the single wire and in-memory representation of everything
// that crosses a connection, in either direction (spec.md §3). Inbound
// frames are decoded into an Event before dispatch; outbound Events are
// what the Channel stamps with Seq and hands to the codec.
type Event struct {
	Tag          Tag            `json:"event"`
	EventID      string         `json:"event_id,omitempty"`
	Seq          uint64         `json:"seq,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	SessionID    string         `json:"session_id,omitempty"`
	ConnectionID string         `json:"connection_id,omitempty"`
	StepID       string         `json:"step_id,omitempty"`
	Content      any            `json:"content,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// MetaString returns metadata[key] coerced to a string, or "" if absent
// or not a string.
func (e Event) MetaString(key string) string {
	v, ok := e.Metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// WithMeta returns a copy of e with key set in its metadata map.
func (e Event) WithMeta(key string, value any) Event {
	out := e
	out.Metadata = make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}

// NewSystemError builds a system.error event carrying the given error
// kind and human-readable detail, per spec.md §7.
func NewSystemError(kind ErrorKind, detail string) Event {
	return Event{
		Tag: TagSystemError,
		Metadata: map[string]any{
			"error_kind": string(kind),
			"detail":     detail,
		},
	}
}

// NewAgentError builds a session-scoped agent.error event.
func NewAgentError(sessionID string, kind ErrorKind, detail string) Event {
	return Event{
		Tag:       TagAgentError,
		SessionID: sessionID,
		Metadata: map[string]any{
			"error_kind": string(kind),
			"detail":     detail,
		},
	}
}
