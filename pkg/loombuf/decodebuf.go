package loombuf

// DecodeBuffer is the growable assembly area a decoder accumulates partial
// frame bytes into. It knows nothing about frame structure — that is the
// decoder's job — it only owns the growable storage and the lifecycle
// (grow on Append, shrink back to nothing on Reset once a frame has been
// consumed).
type DecodeBuffer struct {
	buf    []byte
	length int
}

// Len returns the number of bytes currently assembled.
func (d *DecodeBuffer) Len() int {
	return d.length
}

// Append copies p into the buffer, growing as needed.
func (d *DecodeBuffer) Append(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	fresh, off, err := growBuffer(d.buf, d.length, len(p))
	if err != nil {
		return err
	}
	d.buf = fresh
	d.length = off + len(p)
	copy(d.buf[off:d.length], p)
	return nil
}

// Bytes returns the assembled bytes so far. The returned slice aliases the
// buffer's storage and is only valid until the next Append or Reset.
func (d *DecodeBuffer) Bytes() []byte {
	return d.buf[:d.length]
}

// Slice returns a sub-range [start:end) of the assembled bytes, copied out
// so it survives a subsequent Reset.
func (d *DecodeBuffer) Slice(start, end int) []byte {
	out := make([]byte, end-start)
	copy(out, d.buf[start:end])
	return out
}

// Reset discards all assembled bytes. If the backing allocation had grown
// to BigAllocThreshold or beyond it is released rather than retained, so a single
// oversized frame does not permanently inflate steady-state memory use.
func (d *DecodeBuffer) Reset() {
	if cap(d.buf) >= BigAllocThreshold {
		d.buf = nil
	}
	d.length = 0
}
