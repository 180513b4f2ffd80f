package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxInboundFrameBytes is the fallback inbound frame size cap
// (spec.md §6); internal/config overrides this per deployment.
const DefaultMaxInboundFrameBytes = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by Decode when an inbound frame exceeds
// the configured byte limit.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum inbound size")

// wireEvent mirrors Event's JSON shape but keeps Tag as a bare string so
// Decode can validate it against the closed tag set before the rest of
// the struct is accepted.
type wireEvent struct {
	Tag          string         `json:"event"`
	EventID      string         `json:"event_id,omitempty"`
	Seq          uint64         `json:"seq,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	ConnectionID string         `json:"connection_id,omitempty"`
	StepID       string         `json:"step_id,omitempty"`
	Content      any            `json:"content,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Decode parses a single inbound client frame, enforcing maxBytes and
// rejecting unknown or non-user tags. Oversized frames return
// ErrFrameTooLarge and rejected tags return an error matched by
// IsUnknownTagError, so the caller can choose the right error_kind;
// malformed JSON is returned as a wrapped decoder error.
func Decode(raw []byte, maxBytes int) (Event, error) {
	if maxBytes > 0 && len(raw) > maxBytes {
		return Event{}, ErrFrameTooLarge
	}
	var w wireEvent
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Event{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if dec.More() {
		return Event{}, fmt.Errorf("protocol: decode frame: trailing data after JSON value")
	}
	tag := Tag(w.Tag)
	if !IsUserTag(tag) {
		return Event{}, fmt.Errorf("protocol: %w: %q", errUnknownTag, w.Tag)
	}
	return Event{
		Tag:          tag,
		EventID:      w.EventID,
		SessionID:    w.SessionID,
		ConnectionID: w.ConnectionID,
		StepID:       w.StepID,
		Content:      w.Content,
		Metadata:     w.Metadata,
	}, nil
}

var errUnknownTag = errors.New("unrecognized event tag")

// IsUnknownTagError reports whether err originated from Decode
// rejecting an event tag outside the closed user-tag set.
func IsUnknownTagError(err error) bool {
	return errors.Is(err, errUnknownTag)
}

// Encode renders an outbound Event as a single JSON frame.
func Encode(e Event) ([]byte, error) {
	buf, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode event: %w", err)
	}
	return buf, nil
}

// EncodeTo writes an outbound Event as JSON to w, used by the codec
// when writing directly onto a websocket message writer.
func EncodeTo(w io.Writer, e Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("protocol: encode event: %w", err)
	}
	return nil
}
