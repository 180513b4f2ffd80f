package gateway

import (
	"context"
	"testing"

	"github.com/ashureev/agentrelay/internal/outbound"
	"github.com/ashureev/agentrelay/internal/protocol"
)

type nopWriter struct{}

func (nopWriter) WriteEvent(ctx context.Context, e protocol.Event) error { return nil }

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}

	conn := &Connection{ID: "conn-1"}
	ch := outbound.New(nopWriter{}, outbound.Config{})
	r.Register(conn, ch)

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	got, ok := r.Channel("conn-1")
	if !ok || got != ch {
		t.Fatal("expected to retrieve the registered channel")
	}

	r.Unregister("conn-1")
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after unregister", r.Len())
	}
}
