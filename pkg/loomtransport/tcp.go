package loomtransport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPTransport is a Transport backed by a plain net.Conn.
type TCPTransport struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// DialTCP connects to addr and returns a ready TCPTransport.
func DialTCP(ctx context.Context, addr string) (*TCPTransport, error) {
	d := &net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("loomtransport: dial %s: %w", addr, err)
	}
	return NewTCPTransport(conn), nil
}

// NewTCPTransport wraps an already-established connection (e.g. one
// accepted by a net.Listener) as a Transport.
func NewTCPTransport(conn net.Conn) *TCPTransport {
	return &TCPTransport{conn: conn}
}

// Send writes data, honoring ctx's deadline if it has one.
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err := t.conn.Write(data)
	return err
}

// Recv reads whatever is available in a single read, up to a fixed
// internal buffer size, and returns it.
func (t *TCPTransport) Recv(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	// Unblock a pending Read promptly if ctx is cancelled without a
	// deadline of its own.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.conn.SetReadDeadline(time.Now())
		case <-readDone:
		}
	}()

	buf := make([]byte, 64*1024)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close shuts down the underlying connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
