package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/agentrelay/internal/config"
	"github.com/ashureev/agentrelay/internal/protocol"
	"github.com/ashureev/agentrelay/internal/testkit"
)

func decodeOutbound(data []byte) (protocol.Event, error) {
	var e protocol.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return protocol.Event{}, err
	}
	return e, nil
}

func sendEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, e protocol.Event) {
	t.Helper()
	buf, err := protocol.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Port: "0",
		Outbound: config.OutboundConfig{QueueCapacity: 100, CoalesceWindow: 10 * time.Millisecond, HistorySize: 100, ReplayCap: 50},
		Session: config.SessionConfig{HeartbeatInterval: time.Hour, ConfirmationTimeout: 5 * time.Second, MaxInboundFrameBytes: 1 << 20},
		State:   config.StateConfig{SecretKey: "test-secret", SnapshotTTL: time.Hour, MaxMemoryMessages: 100},
		Pipeline: config.PipelineConfig{MaxConcurrentTasks: 4},
	}
}

func TestEndToEndMessageFlow(t *testing.T) {
	cfg := testConfig()
	mgr := NewManager(cfg, testkit.SimpleAnswer("42"), []string{"*"})
	srv := httptest.NewServer(mgr.HTTP)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	readEvent := func() protocol.Event {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		ev, err := decodeOutbound(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	}

	connected := readEvent()
	if connected.Tag != protocol.TagSystemConnected {
		t.Fatalf("first event tag = %q, want system.connected", connected.Tag)
	}

	sendEvent(t, ctx, conn, protocol.Event{Tag: protocol.TagUserCreateSession})
	created := readEvent()
	if created.Tag != protocol.TagAgentSessionCreated {
		t.Fatalf("tag = %q, want agent.session_created", created.Tag)
	}
	sessionID := created.SessionID

	sendEvent(t, ctx, conn, protocol.Event{Tag: protocol.TagUserMessage, SessionID: sessionID, Content: "what is the answer"})

	thinking := readEvent()
	if thinking.Tag != protocol.TagAgentThinking {
		t.Fatalf("tag = %q, want agent.thinking", thinking.Tag)
	}
	final := readEvent()
	if final.Tag != protocol.TagAgentFinalAnswer {
		t.Fatalf("tag = %q, want agent.final_answer", final.Tag)
	}
	if final.Seq <= thinking.Seq {
		t.Errorf("final.Seq = %d, want > thinking.Seq %d", final.Seq, thinking.Seq)
	}
}

func TestEndToEndConfirmationFlow(t *testing.T) {
	cfg := testConfig()
	mgr := NewManager(cfg, testkit.ConfirmGated("delete_file", "deleted"), []string{"*"})
	srv := httptest.NewServer(mgr.HTTP)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	readEvent := func() protocol.Event {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		ev, err := decodeOutbound(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return ev
	}

	readEvent() // system.connected

	sendEvent(t, ctx, conn, protocol.Event{Tag: protocol.TagUserCreateSession})
	created := readEvent()
	sessionID := created.SessionID

	sendEvent(t, ctx, conn, protocol.Event{Tag: protocol.TagUserMessage, SessionID: sessionID, Content: "delete it"})

	confirmEvent := readEvent()
	if confirmEvent.Tag != protocol.TagAgentUserConfirm {
		t.Fatalf("tag = %q, want agent.user_confirm", confirmEvent.Tag)
	}

	sendEvent(t, ctx, conn, protocol.Event{
		Tag: protocol.TagUserResponse, SessionID: sessionID, StepID: confirmEvent.StepID,
		Content: map[string]any{"confirmed": true},
	})

	final := readEvent()
	if final.Tag != protocol.TagAgentFinalAnswer {
		t.Fatalf("tag = %q, want agent.final_answer", final.Tag)
	}
}
