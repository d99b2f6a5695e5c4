// Package loomstream provides the Stream Handler: the single stateful
// object per connection endpoint that owns one outgoing write buffer and
// one incoming decode buffer, issues sequence numbers, and turns bytes
// into Events and Events into bytes. It does not schedule I/O, spawn
// concurrency, or validate event ordering — those are the transport's and
// the session layer's jobs, implemented in pkg/loomtransport and
// pkg/loomsession.
//
// Handler is single-threaded and not reentrant: exactly one goroutine may
// call its methods at a time. Confine it to one task or guard it with a
// mutex at the session layer if that is not already true.
package loomstream

import (
	"fmt"

	"github.com/loom-rpc/loom/pkg/loombuf"
	"github.com/loom-rpc/loom/pkg/loomframe"
)

// Handler is one connection endpoint's codec state: an outgoing write
// buffer, an incoming decode buffer, and the sequence counter.
type Handler struct {
	write   loombuf.WriteBuffer
	decoder *loomframe.Decoder
	seq     uint32
}

// New returns a Handler with empty buffers. MaxPayloadLen, if non-zero,
// bounds the payload length this Handler will accept while decoding;
// frames exceeding it fail with loomframe.ErrFrameTooLarge.
func New(maxPayloadLen uint32) *Handler {
	d := loomframe.NewDecoder()
	d.MaxPayloadLen = maxPayloadLen
	return &Handler{decoder: d}
}

// CurrentSeq returns the last sequence number this Handler emitted, or 0
// if it has never allocated one.
func (h *Handler) CurrentSeq() uint32 {
	return h.seq
}

// nextSeq pre-increments and wraps at loomframe.SeqMax, returning the
// post-update value. The first issued sequence is 1.
func (h *Handler) nextSeq() uint32 {
	h.seq++
	if h.seq >= loomframe.SeqMax {
		h.seq = 0
	}
	return h.seq
}

// SendPing allocates a new sequence, encodes a PING, and returns the
// allocated sequence.
func (h *Handler) SendPing() uint32 {
	seq := h.nextSeq()
	// A write-buffer growth failure here would mean the process is out of
	// memory; there is nothing a caller of SendPing's non-error signature
	// can usefully do about it, so it is not surfaced — matching the
	// spec's fire-and-forget sequence-allocating sends. SendRequest and
	// every payload-carrying send do return the error, since payload size
	// is caller-controlled and a failure there is actionable.
	_ = loomframe.AppendPing(&h.write, seq)
	return seq
}

// SendPong encodes a PONG echoing the peer-supplied seq.
func (h *Handler) SendPong(seq uint32) error {
	return wrapEncode("send pong", loomframe.AppendPong(&h.write, seq))
}

// SendRequest allocates a new sequence, encodes a REQUEST carrying
// payload, and returns the allocated sequence.
func (h *Handler) SendRequest(payload []byte) (uint32, error) {
	seq := h.nextSeq()
	if err := loomframe.AppendRequest(&h.write, seq, payload); err != nil {
		return seq, wrapEncode("send request", err)
	}
	return seq, nil
}

// SendPush encodes a PUSH carrying payload. PUSH carries no sequence.
func (h *Handler) SendPush(payload []byte) error {
	return wrapEncode("send push", loomframe.AppendPush(&h.write, payload))
}

// SendResponse encodes a RESPONSE echoing seq. It does not validate that
// seq was ever received — that correlation is the session layer's job.
func (h *Handler) SendResponse(seq uint32, payload []byte) error {
	return wrapEncode("send response", loomframe.AppendResponse(&h.write, seq, payload))
}

// SendError encodes an ERROR echoing seq, with an optional payload (nil
// is encoded as an empty payload).
func (h *Handler) SendError(code byte, seq uint32, payload []byte) error {
	return wrapEncode("send error", loomframe.AppendError(&h.write, code, seq, payload))
}

// SendHello encodes a HELLO advertising this Handler's protocol version,
// the given ping interval (milliseconds), and the given ordered list of
// supported encodings (joined with a comma on the wire).
func (h *Handler) SendHello(pingInterval uint32, encodings [][]byte) error {
	return wrapEncode("send hello", loomframe.AppendHello(&h.write, loomframe.ProtocolVersion, pingInterval, encodings))
}

// SendSelectEncoding encodes a SELECT_ENCODING choosing encoding.
func (h *Handler) SendSelectEncoding(encoding []byte) error {
	return wrapEncode("send select_encoding", loomframe.AppendSelectEncoding(&h.write, encoding))
}

// SendGoAway encodes a GOAWAY with the given code and an optional reason
// (nil is encoded as an empty reason).
func (h *Handler) SendGoAway(code byte, reason []byte) error {
	return wrapEncode("send goaway", loomframe.AppendGoAway(&h.write, code, reason))
}

// WriteBufferLen returns the number of unsent bytes currently queued.
func (h *Handler) WriteBufferLen() int {
	return h.write.Len()
}

// WriteBufferGetBytes returns a copy of up to n unsent bytes. If consume
// is true, the returned bytes are advanced past.
func (h *Handler) WriteBufferGetBytes(n int, consume bool) []byte {
	return h.write.GetBytes(n, consume)
}

// WriteBufferConsumeBytes advances the write buffer's position by up to n
// bytes and returns the number of unsent bytes remaining.
func (h *Handler) WriteBufferConsumeBytes(n int) int {
	return h.write.Consume(n)
}

// OnBytesReceived feeds data to the decoder, returning every frame
// completed by this call in stream order. On the first decode error, it
// resets the decode buffer and returns the error, discarding any events
// already assembled during this call — a deliberate "raise without
// return" choice; callers that need per-frame error isolation should feed
// smaller chunks. A PING event additionally causes a matching PONG to be
// queued on the write buffer before OnBytesReceived returns.
func (h *Handler) OnBytesReceived(data []byte) ([]loomframe.Event, error) {
	var events []loomframe.Event
	for len(data) > 0 {
		status, consumed, err := h.decoder.Feed(data)
		data = data[consumed:]
		if err != nil {
			return nil, fmt.Errorf("loomstream: decode: %w", err)
		}
		if status != loomframe.StatusComplete {
			if consumed == 0 {
				break
			}
			continue
		}

		ev := h.decoder.Event()
		h.decoder.Reset()
		events = append(events, ev)

		if ev.Opcode == loomframe.OpPing {
			_ = h.SendPong(ev.Seq)
		}
	}
	return events, nil
}

func wrapEncode(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("loomstream: %s: %w", op, err)
}
