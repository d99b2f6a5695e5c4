package loombuf

import "encoding/binary"

// WriteBuffer is the outgoing byte queue for one connection direction.
// Encoders append to it; a transport drains it from position onward.
// Unsent bytes are buf[position:length]. WriteBuffer is not safe for
// concurrent use — it is owned exclusively by one Handler.
type WriteBuffer struct {
	buf      []byte
	length   int
	position int
}

// Len returns the number of unread (unsent) bytes.
func (w *WriteBuffer) Len() int {
	return w.length - w.position
}

// grow reserves n bytes at the end of the buffer and returns the offset at
// which the caller should write them.
func (w *WriteBuffer) grow(n int) (int, error) {
	fresh, off, err := growBuffer(w.buf, w.length, n)
	if err != nil {
		return 0, err
	}
	w.buf = fresh
	w.length = off + n
	return off, nil
}

// AppendByte appends a single byte.
func (w *WriteBuffer) AppendByte(v byte) error {
	off, err := w.grow(1)
	if err != nil {
		return err
	}
	w.buf[off] = v
	return nil
}

// AppendUint32 appends a big-endian uint32.
func (w *WriteBuffer) AppendUint32(v uint32) error {
	off, err := w.grow(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(w.buf[off:], v)
	return nil
}

// AppendBytes appends raw bytes with no length prefix.
func (w *WriteBuffer) AppendBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	off, err := w.grow(len(p))
	if err != nil {
		return err
	}
	copy(w.buf[off:], p)
	return nil
}

// Mark returns a snapshot of the buffer's current length, for use with
// Rollback to undo a sequence of Append calls that only partly succeeded.
func (w *WriteBuffer) Mark() int {
	return w.length
}

// Rollback truncates the buffer back to a mark obtained from Mark,
// discarding any bytes appended since. position is untouched.
func (w *WriteBuffer) Rollback(mark int) {
	w.length = mark
}

// Peek copies up to n unread bytes starting at position without consuming
// them. It returns fewer than n bytes if fewer are available.
func (w *WriteBuffer) Peek(n int) []byte {
	avail := w.Len()
	if n > avail {
		n = avail
	}
	out := make([]byte, n)
	copy(out, w.buf[w.position:w.position+n])
	return out
}

// Consume advances position by min(n, Len()) and returns the number of
// unread bytes remaining afterward. It runs the compaction policy.
func (w *WriteBuffer) Consume(n int) int {
	avail := w.Len()
	if n > avail {
		n = avail
	}
	w.position += n
	w.resetOrCompact()
	return w.Len()
}

// GetBytes returns a copy of up to n unread bytes. If consume is true the
// returned bytes are advanced past and the compaction policy runs; if
// false the position is left untouched.
func (w *WriteBuffer) GetBytes(n int, consume bool) []byte {
	out := w.Peek(n)
	if consume {
		w.Consume(len(out))
	}
	return out
}

// resetOrCompact implements the three-way drain/compact/leave policy: a
// fully drained buffer is reset (and its allocation freed if it had grown
// to BigAllocThreshold or beyond); a buffer whose read position has moved past the
// midpoint of its allocation, with unread data remaining, is compacted by
// sliding the unread tail down to offset 0; otherwise it is left alone.
// The compaction arithmetic deliberately subtracts the pre-reset position
// from length before position is zeroed.
func (w *WriteBuffer) resetOrCompact() {
	switch {
	case w.position == w.length:
		if cap(w.buf) >= BigAllocThreshold {
			w.buf = nil
		}
		w.length = 0
		w.position = 0
	case w.position > cap(w.buf)/2 && w.length > w.position:
		copy(w.buf[:w.length-w.position], w.buf[w.position:w.length])
		w.length -= w.position
		w.position = 0
	}
}
