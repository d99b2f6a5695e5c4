package loomframe

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/loom-rpc/loom/pkg/loombuf"
)

// Status is the outcome of a single Decoder.Feed call.
type Status int

const (
	// StatusNeedsMore means all input passed to Feed was consumed and the
	// decoder is still assembling the current frame.
	StatusNeedsMore Status = iota
	// StatusComplete means exactly one frame is fully assembled; the caller
	// must extract it (via the accessor methods or Event) and call Reset
	// before feeding more bytes.
	StatusComplete
)

type phase int

const (
	phaseAwaitingHeader phase = iota
	phaseAwaitingPayload
	phaseComplete
)

// headerLens gives, for each recognised opcode, the number of fixed-header
// bytes following the opcode byte.
var headerLens = map[Opcode]int{
	OpPing:           4,
	OpPong:           4,
	OpRequest:        8,
	OpResponse:       8,
	OpPush:           4,
	OpError:          9,
	OpGoAway:         5,
	OpHello:          9,
	OpSelectEncoding: 4,
}

// opcodesWithoutPayload never carry a payload_len field; their header is
// complete as soon as the fixed header bytes are read.
var opcodesWithoutPayload = map[Opcode]bool{
	OpPing: true,
	OpPong: true,
}

// Decoder is a restartable pull-parser over a loombuf.DecodeBuffer. It is
// fed byte slices of any size via Feed and never blocks; frames may be
// split across arbitrarily many Feed calls.
type Decoder struct {
	buf *loombuf.DecodeBuffer

	// MaxPayloadLen caps a frame's declared payload length; 0 means
	// unbounded. Exceeding it yields ErrFrameTooLarge.
	MaxPayloadLen uint32

	phase phase

	opcode     Opcode
	haveOpcode bool
	headerLen  int // fixed-header bytes after the opcode, once known

	seq          uint32
	code         byte
	version      uint8
	pingInterval uint32
	payloadLen   uint32
	headerSize   int // offset in buf at which payload begins, once known
}

// NewDecoder returns a Decoder ready to accept input via Feed.
func NewDecoder() *Decoder {
	return &Decoder{buf: &loombuf.DecodeBuffer{}}
}

// Feed absorbs as much of data as needed to make progress on the current
// frame. consumed is always set, even on NEEDS_MORE or error. On error the
// decoder has already been reset and must not be used again until the
// caller has handled the error (calling Feed again is safe — it begins a
// fresh frame).
func (d *Decoder) Feed(data []byte) (status Status, consumed int, err error) {
	for len(data) > 0 {
		switch d.phase {
		case phaseAwaitingHeader:
			n, perr := d.feedHeader(data)
			consumed += n
			data = data[n:]
			if perr != nil {
				d.Reset()
				return StatusNeedsMore, consumed, perr
			}
		case phaseAwaitingPayload:
			n, perr := d.feedPayload(data)
			consumed += n
			data = data[n:]
			if perr != nil {
				d.Reset()
				return StatusNeedsMore, consumed, perr
			}
		case phaseComplete:
			return StatusComplete, consumed, nil
		}
		if d.phase == phaseComplete {
			return StatusComplete, consumed, nil
		}
	}
	if d.phase == phaseComplete {
		return StatusComplete, consumed, nil
	}
	return StatusNeedsMore, consumed, nil
}

// feedHeader consumes as much of data as is needed to complete the opcode
// byte and fixed header, returning the number of bytes it absorbed.
func (d *Decoder) feedHeader(data []byte) (int, error) {
	need := d.headerNeeded()
	take := len(data)
	if take > need {
		take = need
	}
	if err := d.buf.Append(data[:take]); err != nil {
		return take, fmt.Errorf("loomframe: grow decode buffer: %w", err)
	}

	if !d.haveOpcode && d.buf.Len() >= 1 {
		op := Opcode(d.buf.Bytes()[0])
		if !op.isKnown() {
			return take, &DecodeError{Opcode: byte(op), Err: ErrBadOpcode}
		}
		d.opcode = op
		d.headerLen = headerLens[op]
		d.haveOpcode = true
	}

	if d.haveOpcode && d.buf.Len() >= 1+d.headerLen {
		if err := d.parseHeader(); err != nil {
			return take, err
		}
	}
	return take, nil
}

// headerNeeded returns how many more bytes are required to complete the
// opcode byte plus fixed header.
func (d *Decoder) headerNeeded() int {
	total := 1
	if d.haveOpcode {
		total = 1 + d.headerLen
	}
	n := total - d.buf.Len()
	if n < 0 {
		return 0
	}
	return n
}

// parseHeader extracts the fixed-header fields once they are fully
// present, and decides whether the frame has a payload to await.
func (d *Decoder) parseHeader() error {
	hdr := d.buf.Bytes()[1 : 1+d.headerLen]
	switch d.opcode {
	case OpPing, OpPong:
		d.seq = binary.BigEndian.Uint32(hdr[0:4])
	case OpRequest, OpResponse:
		d.seq = binary.BigEndian.Uint32(hdr[0:4])
		d.payloadLen = binary.BigEndian.Uint32(hdr[4:8])
	case OpPush, OpSelectEncoding:
		d.payloadLen = binary.BigEndian.Uint32(hdr[0:4])
	case OpError:
		d.code = hdr[0]
		d.seq = binary.BigEndian.Uint32(hdr[1:5])
		d.payloadLen = binary.BigEndian.Uint32(hdr[5:9])
	case OpGoAway:
		d.code = hdr[0]
		d.payloadLen = binary.BigEndian.Uint32(hdr[1:5])
	case OpHello:
		d.version = hdr[0]
		d.pingInterval = binary.BigEndian.Uint32(hdr[1:5])
		d.payloadLen = binary.BigEndian.Uint32(hdr[5:9])
	}

	if d.MaxPayloadLen > 0 && d.payloadLen > d.MaxPayloadLen {
		return &DecodeError{Opcode: byte(d.opcode), Err: ErrFrameTooLarge}
	}

	d.headerSize = d.buf.Len()
	if opcodesWithoutPayload[d.opcode] || d.payloadLen == 0 {
		d.phase = phaseComplete
	} else {
		d.phase = phaseAwaitingPayload
	}
	return nil
}

// feedPayload consumes as much of data as is needed to complete the
// payload, returning the number of bytes absorbed.
func (d *Decoder) feedPayload(data []byte) (int, error) {
	total := d.headerSize + int(d.payloadLen)
	need := total - d.buf.Len()
	take := len(data)
	if take > need {
		take = need
	}
	if err := d.buf.Append(data[:take]); err != nil {
		return take, fmt.Errorf("loomframe: grow decode buffer: %w", err)
	}
	if d.buf.Len() >= total {
		d.phase = phaseComplete
	}
	return take, nil
}

// Reset returns the decoder to its initial state, discarding any partial
// frame. Call it after extracting a StatusComplete frame or after an
// error.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.phase = phaseAwaitingHeader
	d.opcode = 0
	d.haveOpcode = false
	d.headerLen = 0
	d.seq = 0
	d.code = 0
	d.version = 0
	d.pingInterval = 0
	d.payloadLen = 0
	d.headerSize = 0
}

// The accessors below are valid only once Feed has returned StatusComplete.

func (d *Decoder) Opcode() Opcode       { return d.opcode }
func (d *Decoder) Seq() uint32          { return d.seq }
func (d *Decoder) Code() byte           { return d.code }
func (d *Decoder) Version() uint8       { return d.version }
func (d *Decoder) PingInterval() uint32 { return d.pingInterval }

// Payload returns the frame's payload bytes, copied out of the decode
// buffer so they remain valid after Reset.
func (d *Decoder) Payload() []byte {
	return d.buf.Slice(d.headerSize, d.headerSize+int(d.payloadLen))
}

// Event builds the decoded Event for the completed frame.
func (d *Decoder) Event() Event {
	ev := Event{
		Opcode:       d.opcode,
		Seq:          d.seq,
		Code:         d.code,
		Version:      d.version,
		PingInterval: d.pingInterval,
	}
	switch d.opcode {
	case OpRequest, OpResponse, OpPush, OpError:
		ev.Payload = d.Payload()
	case OpGoAway:
		ev.Reason = d.Payload()
	case OpSelectEncoding:
		ev.Encoding = d.Payload()
	case OpHello:
		ev.SupportedEncodings = splitEncodings(d.Payload())
	}
	return ev
}

// splitEncodings splits a HELLO payload on the comma byte. An empty
// payload yields a single empty element, matching literal split semantics.
func splitEncodings(payload []byte) [][]byte {
	parts := strings.Split(string(payload), ",")
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
