package loomframe

import (
	"bytes"
	"errors"
	"testing"

	"github.com/loom-rpc/loom/pkg/loombuf"
)

// decodeOne feeds data to a fresh Decoder one byte at a time (the hardest
// chunking a caller could choose) and returns the completed Event.
func decodeOne(t *testing.T, data []byte) Event {
	t.Helper()
	d := NewDecoder()
	for i := 0; i < len(data); i++ {
		status, consumed, err := d.Feed(data[i : i+1])
		if err != nil {
			t.Fatalf("Feed at byte %d: %v", i, err)
		}
		if consumed != 1 {
			t.Fatalf("Feed consumed = %d, want 1", consumed)
		}
		if status == StatusComplete {
			if i != len(data)-1 {
				t.Fatalf("decoder completed early at byte %d of %d", i, len(data))
			}
			return d.Event()
		}
	}
	t.Fatalf("decoder never completed")
	return Event{}
}

func TestRequestRoundTrip(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	if err := AppendRequest(w, 1, []byte("hello")); err != nil {
		t.Fatalf("AppendRequest: %v", err)
	}
	got := w.GetBytes(w.Len(), false)
	want := append([]byte{byte(OpRequest), 0, 0, 0, 1, 0, 0, 0, 5}, "hello"...)
	if !bytes.Equal(got, want) {
		t.Fatalf("wire bytes = %x, want %x", got, want)
	}

	ev := decodeOne(t, got)
	if ev.Opcode != OpRequest || ev.Seq != 1 || string(ev.Payload) != "hello" {
		t.Fatalf("decoded event = %+v", ev)
	}
}

func TestPingTriggersPongOnWire(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	if err := AppendPing(w, 42); err != nil {
		t.Fatalf("AppendPing: %v", err)
	}
	frame := w.GetBytes(w.Len(), false)

	d := NewDecoder()
	status, consumed, err := d.Feed(frame)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if status != StatusComplete || consumed != len(frame) {
		t.Fatalf("status=%v consumed=%d", status, consumed)
	}
	ev := d.Event()
	if ev.Opcode != OpPing || ev.Seq != 42 {
		t.Fatalf("decoded event = %+v", ev)
	}
}

func TestSplitFeedPush(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	if err := AppendPush(w, []byte("xyz")); err != nil {
		t.Fatalf("AppendPush: %v", err)
	}
	frame := w.GetBytes(w.Len(), false)
	if len(frame) != 9 {
		t.Fatalf("frame length = %d, want 9", len(frame))
	}

	d := NewDecoder()
	for i := 0; i < 8; i++ {
		status, consumed, err := d.Feed(frame[i : i+1])
		if err != nil {
			t.Fatalf("Feed at %d: %v", i, err)
		}
		if consumed != 1 || status != StatusNeedsMore {
			t.Fatalf("byte %d: status=%v consumed=%d, want NeedsMore/1", i, status, consumed)
		}
	}
	status, consumed, err := d.Feed(frame[8:9])
	if err != nil {
		t.Fatalf("Feed final byte: %v", err)
	}
	if status != StatusComplete || consumed != 1 {
		t.Fatalf("final byte: status=%v consumed=%d", status, consumed)
	}
	ev := d.Event()
	if ev.Opcode != OpPush || string(ev.Payload) != "xyz" {
		t.Fatalf("decoded event = %+v", ev)
	}
}

func TestHelloWithEncodings(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	if err := AppendHello(w, ProtocolVersion, 30000, [][]byte{[]byte("json"), []byte("cbor")}); err != nil {
		t.Fatalf("AppendHello: %v", err)
	}
	frame := w.GetBytes(w.Len(), false)

	ev := decodeOne(t, frame)
	if ev.Opcode != OpHello || ev.Version != ProtocolVersion || ev.PingInterval != 30000 {
		t.Fatalf("decoded event = %+v", ev)
	}
	want := [][]byte{[]byte("json"), []byte("cbor")}
	if len(ev.SupportedEncodings) != 2 ||
		!bytes.Equal(ev.SupportedEncodings[0], want[0]) ||
		!bytes.Equal(ev.SupportedEncodings[1], want[1]) {
		t.Fatalf("SupportedEncodings = %q, want %q", ev.SupportedEncodings, want)
	}
}

func TestHelloEmptyEncodingsYieldsEmptyPayload(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	if err := AppendHello(w, ProtocolVersion, 1000, nil); err != nil {
		t.Fatalf("AppendHello: %v", err)
	}
	frame := w.GetBytes(w.Len(), false)
	// opcode(1) + version(1) + ping_interval(4) + payload_len(4) = 10 bytes, no payload.
	if len(frame) != 10 {
		t.Fatalf("frame length = %d, want 10", len(frame))
	}
}

func TestGoAwayWithEmptyReason(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	if err := AppendGoAway(w, 3, nil); err != nil {
		t.Fatalf("AppendGoAway: %v", err)
	}
	got := w.GetBytes(w.Len(), false)
	want := []byte{byte(OpGoAway), 0x03, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("wire bytes = %x, want %x", got, want)
	}

	ev := decodeOne(t, got)
	if ev.Opcode != OpGoAway || ev.Code != 3 || len(ev.Reason) != 0 {
		t.Fatalf("decoded event = %+v", ev)
	}
}

func TestBadOpcode(t *testing.T) {
	d := NewDecoder()
	_, _, err := d.Feed([]byte{0xFF})
	if err == nil {
		t.Fatalf("expected error for unknown opcode")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error is not *DecodeError: %v", err)
	}
	if !errors.Is(err, ErrBadOpcode) {
		t.Fatalf("error does not wrap ErrBadOpcode: %v", err)
	}

	// Decoder must be usable again after an error, starting clean.
	w := &loombuf.WriteBuffer{}
	_ = AppendPing(w, 7)
	status, _, err := d.Feed(w.GetBytes(w.Len(), false))
	if err != nil || status != StatusComplete {
		t.Fatalf("decoder not usable after error: status=%v err=%v", status, err)
	}
	ev := d.Event()
	if ev.Opcode != OpPing || ev.Seq != 7 {
		t.Fatalf("decoder not usable after error: %+v", ev)
	}
}

func TestFrameTooLarge(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	_ = AppendPush(w, make([]byte, 100))
	frame := w.GetBytes(w.Len(), false)

	d := NewDecoder()
	d.MaxPayloadLen = 10
	_, _, err := d.Feed(frame)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestChunkIndependence(t *testing.T) {
	w := &loombuf.WriteBuffer{}
	_ = AppendRequest(w, 1, []byte("abc"))
	_ = AppendPush(w, []byte("xyz"))
	frame := w.GetBytes(w.Len(), false)

	baseline := decodeAll(t, [][]byte{frame})
	for split := 0; split <= len(frame); split++ {
		got := decodeAll(t, [][]byte{frame[:split], frame[split:]})
		if !eventsEqual(baseline, got) {
			t.Fatalf("split at %d produced different events:\n got=%+v\nwant=%+v", split, got, baseline)
		}
	}
}

// decodeAll feeds chunks through one Decoder, resetting after every
// complete frame, and returns all events in stream order.
func decodeAll(t *testing.T, chunks [][]byte) []Event {
	t.Helper()
	d := NewDecoder()
	var events []Event
	for _, chunk := range chunks {
		for len(chunk) > 0 {
			status, consumed, err := d.Feed(chunk)
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			chunk = chunk[consumed:]
			if status == StatusComplete {
				events = append(events, d.Event())
				d.Reset()
			} else if consumed == 0 {
				break
			}
		}
	}
	return events
}

func eventsEqual(a, b []Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Opcode != b[i].Opcode || a[i].Seq != b[i].Seq || !bytes.Equal(a[i].Payload, b[i].Payload) {
			return false
		}
	}
	return true
}
