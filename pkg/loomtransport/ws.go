package loomtransport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// WSTransport is a Transport backed by a WebSocket connection, carrying
// loom frames as binary messages.
type WSTransport struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// DialWS connects to a ws:// or wss:// URL and returns a ready WSTransport.
func DialWS(ctx context.Context, rawurl string) (*WSTransport, error) {
	opts := &websocket.DialOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	conn, _, err := websocket.Dial(ctx, rawurl, opts)
	if err != nil {
		return nil, fmt.Errorf("loomtransport: dial %s: %w", rawurl, err)
	}
	return NewWSTransport(conn), nil
}

// NewWSTransport wraps an already-established connection, such as one
// accepted by websocket.Accept in a server handler.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	conn.SetReadLimit(32 * 1024 * 1024)
	return &WSTransport{conn: conn}
}

// Send writes data as a single binary WebSocket message.
func (t *WSTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()
	return t.conn.Write(ctx, websocket.MessageBinary, data)
}

// Recv returns the payload of the next WebSocket message; the message type
// (binary or text) is not checked.
func (t *WSTransport) Recv(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("loomtransport: ws read: %w", err)
	}
	return data, nil
}

// Close closes the WebSocket connection with a normal-closure status.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close(websocket.StatusNormalClosure, "loomtransport: closing")
}
