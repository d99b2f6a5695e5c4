// Package loomtransport carries loomframe's encoded bytes between peers.
// It knows nothing about opcodes or sequence numbers — that is
// loomframe's and loomstream's job — it only moves byte chunks and
// reports the connection's lifecycle.
package loomtransport

import "context"

// Transport is the abstract byte-stream transport a loomsession.Session
// reads from and writes to. Send and Recv need not be message-aligned:
// callers feed whatever Recv returns straight into a loomstream.Handler,
// which tolerates arbitrary chunking.
type Transport interface {
	// Send writes data to the peer. The context may carry a deadline.
	Send(ctx context.Context, data []byte) error

	// Recv blocks until at least one byte of data has arrived, or the
	// connection is closed, or ctx is done.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the transport's resources. Safe to call more than
	// once and concurrently with Send/Recv; blocked calls return an
	// error.
	Close() error
}
