package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeValidUserEvent(t *testing.T) {
	raw := []byte(`{"event":"user.message","session_id":"sess-1","content":{"text":"hi"}}`)
	ev, err := Decode(raw, DefaultMaxInboundFrameBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Tag != TagUserMessage {
		t.Errorf("Tag = %q, want %q", ev.Tag, TagUserMessage)
	}
	if ev.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", ev.SessionID)
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	raw := []byte(`{"event":"agent.final_answer","session_id":"sess-1"}`)
	_, err := Decode(raw, DefaultMaxInboundFrameBytes)
	if err == nil {
		t.Fatal("expected error decoding a server-only tag from the client")
	}
	if !IsUnknownTagError(err) {
		t.Errorf("expected unknown tag error, got %v", err)
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	raw := make([]byte, 100)
	_, err := Decode(raw, 10)
	if err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"event":"user.message","bogus_field":true}`)
	_, err := Decode(raw, DefaultMaxInboundFrameBytes)
	if err == nil {
		t.Fatal("expected error for unrecognized field")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Event{
		Tag:       TagAgentFinalAnswer,
		SessionID: "sess-1",
		Seq:       42,
		Content:   map[string]any{"text": "done"},
	}
	buf, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(buf) == 0 {
		t.Fatal("Encode produced empty output")
	}
	var out Event
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Tag != in.Tag || out.SessionID != in.SessionID || out.Seq != in.Seq {
		t.Errorf("round trip = %+v, want tag/session/seq of %+v", out, in)
	}
}
