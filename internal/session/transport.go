// ABOUTME: Transport abstraction for the session channel plus the websocket implementation
// ABOUTME: Frames travel as JSON text messages; one transport per connection attempt

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// Transport is one live connection to the conversation backend. A transport
// is single-use: once Receive or Send returns an error the channel discards
// it and dials a fresh one.
type Transport interface {
	Send(ctx context.Context, frame *protocol.Frame) error
	Receive(ctx context.Context) (*protocol.Frame, error)
	Close() error
}

// Dialer establishes transports. The channel owns reconnect policy; dialers
// only know how to produce a single connection.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// WebSocketDialer dials the backend over websockets.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial connects to the given endpoint and wraps the connection as a Transport.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (t *wsTransport) Send(ctx context.Context, frame *protocol.Frame) error {
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (t *wsTransport) Receive(ctx context.Context) (*protocol.Frame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return protocol.DecodeFrame(data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
