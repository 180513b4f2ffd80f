// Package state implements client-held session snapshots: exporting a
// Session's resumable state into a signed, opaque blob the client
// stores, and restoring a Session from one. No session state is ever
// persisted server-side (spec.md §6).
package state

import "time"

// SnapshotSchemaVersion is embedded in every snapshot and checked on
// restore so a future incompatible format can be rejected cleanly
// rather than silently misread.
const SnapshotSchemaVersion = 1

// Message is one turn of conversation history carried in a snapshot.
// It holds only role, text and timestamp; Export applies no
// sensitive-field filtering to Text.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload is the structured content of a snapshot, before signing.
type Payload struct {
	SchemaVersion     int       `json:"schema_version"`
	SessionID         string    `json:"session_id"`
	CreatedAt         time.Time `json:"created_at"`
	ExportedAt        time.Time `json:"exported_at"`
	Memory            []Message `json:"memory"`
	PendingConfirm    string    `json:"pending_confirm,omitempty"`
	LastSeq           uint64    `json:"last_seq"`
}

// Truncate drops the oldest memory entries so Memory has at most max
// entries, keeping the most recent conversation turns.
func (p *Payload) Truncate(max int) {
	if max <= 0 || len(p.Memory) <= max {
		return
	}
	p.Memory = p.Memory[len(p.Memory)-max:]
}
