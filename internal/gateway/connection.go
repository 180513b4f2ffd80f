// Package gateway implements the WebSocket front door: accepting
// connections, dispatching inbound events to the right session or
// pipeline, and writing sequenced outbound events back onto the wire.
package gateway

import (
	"context"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/ashureev/agentrelay/internal/protocol"
)

// Connection owns one accepted WebSocket. The outbound Channel writing
// to it is paired with it in the Registry, where it is registered
// under its ID for the lifetime of the socket.
type Connection struct {
	ID  string
	ws  *websocket.Conn
}

// NewConnection wraps an accepted websocket.Conn.
func NewConnection(id string, ws *websocket.Conn) *Connection {
	return &Connection{ID: id, ws: ws}
}

// WriteEvent implements outbound.Writer: it frames e as JSON text and
// writes it onto the socket. Context cancellation during write is
// treated as an expected disconnect, not an error worth logging loudly.
func (c *Connection) WriteEvent(ctx context.Context, e protocol.Event) error {
	buf, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	if err := c.ws.Write(context.Background(), websocket.MessageText, buf); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("gateway: websocket write error", "connection_id", c.ID, "error", err)
		return err
	}
	return nil
}

// Read blocks until the next inbound frame arrives or ctx/the socket
// closes.
func (c *Connection) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

// Close closes the underlying socket with a normal-closure status.
func (c *Connection) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "connection closed")
}
