// Package loomsession is a reference session layer: it owns one
// loomstream.Handler and one loomtransport.Transport, runs the read loop,
// and correlates requests with their responses into a concrete, usable
// object.
// The core packages (loombuf, loomframe, loomstream) have no dependency
// on this package; applications that want a different session shape are
// free to drive loomstream.Handler themselves.
package loomsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loom-rpc/loom/pkg/loomframe"
	"github.com/loom-rpc/loom/pkg/loomstream"
	"github.com/loom-rpc/loom/pkg/loomtransport"
)

// ErrSessionClosed is returned by Call when the session shuts down while
// the call is waiting for its reply and no more specific cause was
// recorded.
var ErrSessionClosed = errors.New("loomsession: session is closed")

// ErrGoAway is wrapped by the error Call returns when the session was
// shut down because the peer sent a GOAWAY frame.
var ErrGoAway = errors.New("loomsession: peer sent goaway")

// RemoteError reports a peer-sent ERROR frame in response to a Call.
type RemoteError struct {
	Code    byte
	Payload []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("loomsession: peer error code=%d payload=%q", e.Code, e.Payload)
}

// RequestHandler answers an incoming REQUEST frame. Returning a non-nil
// error sends back an ERROR frame with code 1 and the error's text as
// payload instead of a RESPONSE.
type RequestHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Session pairs a loomstream.Handler with a loomtransport.Transport and
// runs the read loop that keeps them both moving.
type Session struct {
	id        string
	transport loomtransport.Transport
	log       zerolog.Logger

	mu      sync.Mutex // guards handler and pending; handler is not reentrant on its own
	handler *loomstream.Handler
	pending map[uint32]chan callResult

	onPush    func(payload []byte)
	onRequest RequestHandler

	pingInterval time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

type callResult struct {
	payload []byte
	err     error
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithPushHandler registers a callback invoked for every PUSH event the
// peer sends.
func WithPushHandler(fn func(payload []byte)) Option {
	return func(s *Session) { s.onPush = fn }
}

// WithRequestHandler registers a callback invoked for every REQUEST event
// the peer sends; its return value is sent back as RESPONSE or ERROR.
func WithRequestHandler(fn RequestHandler) Option {
	return func(s *Session) { s.onRequest = fn }
}

// WithPingInterval overrides the default outgoing ping cadence. A HELLO
// received from the peer with a non-zero PingInterval overrides this in
// turn once the handshake completes.
func WithPingInterval(d time.Duration) Option {
	return func(s *Session) { s.pingInterval = d }
}

// New creates a Session over an already-connected Transport. maxPayloadLen
// bounds incoming frame payloads the same way loomstream.New does.
func New(transport loomtransport.Transport, maxPayloadLen uint32, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		transport:    transport,
		handler:      loomstream.New(maxPayloadLen),
		pending:      make(map[uint32]chan callResult),
		pingInterval: 30 * time.Second,
		closed:       make(chan struct{}),
	}
	s.log = log.With().Str("session", s.id).Logger()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's randomly generated identifier.
func (s *Session) ID() string { return s.id }

// Run drives the read loop until the transport errors, the peer sends
// GOAWAY, or ctx is done. It blocks the calling goroutine; callers
// typically invoke it with `go`.
func (s *Session) Run(ctx context.Context) error {
	defer s.shutdown(nil)
	for {
		data, err := s.transport.Recv(ctx)
		if err != nil {
			if errors.Is(err, loomtransport.ErrTransportClosed) {
				return nil
			}
			s.shutdown(err)
			return err
		}

		events, err := s.feed(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("loomsession: discarding batch after decode error")
			continue
		}

		for _, ev := range events {
			if stop := s.dispatch(ctx, ev); stop {
				return nil
			}
		}

		if err := s.flush(ctx); err != nil {
			s.shutdown(err)
			return err
		}
	}
}

// feed hands received bytes to the Handler under the session's mutex,
// the same mutex Call, Push, Hello, PingLoop and Close hold when they
// touch the Handler from other goroutines.
func (s *Session) feed(data []byte) ([]loomframe.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler.OnBytesReceived(data)
}

// flush drains anything the handler queued (outgoing pings, auto-pongs,
// replies) onto the transport.
func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	n := s.handler.WriteBufferLen()
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	data := s.handler.WriteBufferGetBytes(n, true)
	s.mu.Unlock()
	return s.transport.Send(ctx, data)
}

// dispatch routes one decoded Event to its handler. It returns true if
// the session loop should stop (GOAWAY received).
func (s *Session) dispatch(ctx context.Context, ev loomframe.Event) bool {
	switch ev.Opcode {
	case loomframe.OpResponse:
		s.deliver(ev.Seq, callResult{payload: ev.Payload})
	case loomframe.OpError:
		s.deliver(ev.Seq, callResult{err: &RemoteError{Code: ev.Code, Payload: ev.Payload}})
	case loomframe.OpPush:
		if s.onPush != nil {
			s.onPush(ev.Payload)
		}
	case loomframe.OpRequest:
		s.handleRequest(ctx, ev)
	case loomframe.OpHello:
		if ev.PingInterval > 0 {
			s.mu.Lock()
			s.pingInterval = time.Duration(ev.PingInterval) * time.Millisecond
			s.mu.Unlock()
		}
	case loomframe.OpGoAway:
		s.shutdown(fmt.Errorf("%w: code=%d reason=%q", ErrGoAway, ev.Code, ev.Reason))
		return true
	case loomframe.OpPing, loomframe.OpPong, loomframe.OpSelectEncoding:
		// PING is answered automatically by the handler; PONG and
		// SELECT_ENCODING carry no action at this layer.
	}
	return false
}

func (s *Session) handleRequest(ctx context.Context, ev loomframe.Event) {
	if s.onRequest == nil {
		s.sendError(ctx, ev.Seq, 0, nil)
		return
	}
	resp, err := s.onRequest(ctx, ev.Payload)
	if err != nil {
		s.sendError(ctx, ev.Seq, 1, []byte(err.Error()))
		return
	}
	s.mu.Lock()
	sendErr := s.handler.SendResponse(ev.Seq, resp)
	s.mu.Unlock()
	if sendErr != nil {
		s.log.Warn().Err(sendErr).Msg("loomsession: queue response")
	}
}

func (s *Session) sendError(ctx context.Context, seq uint32, code byte, payload []byte) {
	s.mu.Lock()
	err := s.handler.SendError(code, seq, payload)
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("loomsession: queue error reply")
	}
}

func (s *Session) deliver(seq uint32, res callResult) {
	s.mu.Lock()
	ch, ok := s.pending[seq]
	if ok {
		delete(s.pending, seq)
	}
	s.mu.Unlock()
	if ok {
		ch <- res
	}
}

// Call sends a REQUEST and blocks until the matching RESPONSE or ERROR
// arrives, ctx is done, or the session closes.
func (s *Session) Call(ctx context.Context, payload []byte) ([]byte, error) {
	ch := make(chan callResult, 1)

	s.mu.Lock()
	seq, err := s.handler.SendRequest(payload)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("loomsession: send request: %w", err)
	}
	s.pending[seq] = ch
	s.mu.Unlock()

	if err := s.flush(ctx); err != nil {
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return nil, ctx.Err()
	case <-s.closed:
		return nil, s.closeErrOrDefault()
	}
}

// Push sends a PUSH frame; there is no response to wait for.
func (s *Session) Push(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	err := s.handler.SendPush(payload)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("loomsession: send push: %w", err)
	}
	return s.flush(ctx)
}

// Hello sends this session's HELLO, advertising pingInterval and the
// given encodings.
func (s *Session) Hello(ctx context.Context, pingInterval time.Duration, encodings []string) error {
	enc := make([][]byte, len(encodings))
	for i, e := range encodings {
		enc[i] = []byte(e)
	}
	s.mu.Lock()
	err := s.handler.SendHello(uint32(pingInterval.Milliseconds()), enc)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("loomsession: send hello: %w", err)
	}
	return s.flush(ctx)
}

// PingLoop sends periodic PINGs on the session's current ping interval
// until ctx is done or the session closes. Call it in its own goroutine
// alongside Run.
func (s *Session) PingLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		interval := s.pingInterval
		s.mu.Unlock()
		if interval <= 0 {
			interval = 30 * time.Second
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			s.mu.Lock()
			s.handler.SendPing()
			s.mu.Unlock()
			if err := s.flush(ctx); err != nil {
				s.log.Warn().Err(err).Msg("loomsession: ping flush failed")
				return
			}
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.closed:
			timer.Stop()
			return
		}
	}
}

// Close sends GOAWAY (best-effort) and closes the transport.
func (s *Session) Close(ctx context.Context, code byte, reason []byte) error {
	s.mu.Lock()
	_ = s.handler.SendGoAway(code, reason)
	s.mu.Unlock()
	_ = s.flush(ctx)
	s.shutdown(nil)
	return s.transport.Close()
}

func (s *Session) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.closed)
		s.mu.Lock()
		pending := s.pending
		s.pending = make(map[uint32]chan callResult)
		s.mu.Unlock()
		for seq, ch := range pending {
			delete(pending, seq)
			ch <- callResult{err: s.closeErrOrDefault()}
		}
	})
}

func (s *Session) closeErrOrDefault() error {
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrSessionClosed
}
