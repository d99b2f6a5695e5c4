package loombuf

import (
	"bytes"
	"testing"
)

func TestWriteBufferAppendAndConsume(t *testing.T) {
	w := &WriteBuffer{}
	if err := w.AppendByte(0xAB); err != nil {
		t.Fatalf("AppendByte: %v", err)
	}
	if err := w.AppendUint32(0x01020304); err != nil {
		t.Fatalf("AppendUint32: %v", err)
	}
	if err := w.AppendBytes([]byte("hello")); err != nil {
		t.Fatalf("AppendBytes: %v", err)
	}

	want := append([]byte{0xAB, 0x01, 0x02, 0x03, 0x04}, "hello"...)
	if w.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", w.Len(), len(want))
	}
	got := w.GetBytes(w.Len(), false)
	if !bytes.Equal(got, want) {
		t.Fatalf("GetBytes(peek) = %x, want %x", got, want)
	}
	if w.Len() != len(want) {
		t.Fatalf("peek consumed bytes: Len() = %d", w.Len())
	}

	remaining := w.Consume(6)
	if remaining != len(want)-6 {
		t.Fatalf("Consume remaining = %d, want %d", remaining, len(want)-6)
	}
	got = w.GetBytes(w.Len(), true)
	if !bytes.Equal(got, want[6:]) {
		t.Fatalf("tail = %x, want %x", got, want[6:])
	}
	if w.Len() != 0 {
		t.Fatalf("Len() after full drain = %d, want 0", w.Len())
	}
}

func TestWriteBufferConservation(t *testing.T) {
	w := &WriteBuffer{}
	appended := 0
	for i := 1; i <= 50; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, i)
		if err := w.AppendBytes(chunk); err != nil {
			t.Fatalf("AppendBytes: %v", err)
		}
		appended += len(chunk)
	}

	drained := 0
	for w.Len() > 0 {
		n := 7
		if n > w.Len() {
			n = w.Len()
		}
		before := w.Len()
		after := w.Consume(n)
		drained += before - after
	}
	if drained != appended {
		t.Fatalf("drained %d bytes, want %d", drained, appended)
	}
	if w.Len() != 0 {
		t.Fatalf("Len() after full drain = %d, want 0", w.Len())
	}
}

func TestWriteBufferDrainedReset(t *testing.T) {
	w := &WriteBuffer{}
	if err := w.AppendBytes(bytes.Repeat([]byte{1}, 10)); err != nil {
		t.Fatalf("AppendBytes: %v", err)
	}
	w.Consume(10)
	if w.position != 0 || w.length != 0 {
		t.Fatalf("drained buffer not reset: position=%d length=%d", w.position, w.length)
	}
}

func TestWriteBufferBigAllocReclaimed(t *testing.T) {
	w := &WriteBuffer{}
	big := make([]byte, BigAllocThreshold+1)
	if err := w.AppendBytes(big); err != nil {
		t.Fatalf("AppendBytes: %v", err)
	}
	if cap(w.buf) < BigAllocThreshold {
		t.Fatalf("expected big allocation, cap=%d", cap(w.buf))
	}
	w.Consume(w.Len())
	if w.buf != nil {
		t.Fatalf("expected big buffer to be freed after full drain, cap=%d", cap(w.buf))
	}
}

func TestWriteBufferCompactionMidpoint(t *testing.T) {
	// Construct a buffer directly in the shape resetOrCompact cares about:
	// position past the midpoint of the allocation, with an unread tail
	// remaining, and check the tail survives compaction at offset 0.
	w := &WriteBuffer{
		buf:      make([]byte, 100, 100),
		length:   90,
		position: 60,
	}
	for i := range w.buf {
		w.buf[i] = byte(i)
	}
	wantTail := append([]byte{}, w.buf[60:90]...)

	w.resetOrCompact()

	if w.position != 0 {
		t.Fatalf("expected compaction to reset position to 0, got %d", w.position)
	}
	if w.length != 30 {
		t.Fatalf("length after compaction = %d, want 30", w.length)
	}
	if !bytes.Equal(w.buf[:w.length], wantTail) {
		t.Fatalf("tail mismatch after compaction: got %x want %x", w.buf[:w.length], wantTail)
	}
}

func TestWriteBufferLeavesUntouchedBelowMidpoint(t *testing.T) {
	w := &WriteBuffer{
		buf:      make([]byte, 100, 100),
		length:   90,
		position: 40,
	}
	w.resetOrCompact()
	if w.position != 40 || w.length != 90 {
		t.Fatalf("expected no compaction below midpoint, got position=%d length=%d", w.position, w.length)
	}
}
