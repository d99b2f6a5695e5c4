// Package loombuf provides the two buffer primitives shared by the wire
// codec: a growable, append-only write queue with a consume cursor, and a
// growable decode assembly area. Both amortise allocation by doubling and
// give back large allocations once drained, so a connection that handles an
// occasional big payload does not carry that allocation forever.
package loombuf

import "errors"

// InitialAlloc is the capacity a buffer is given on its first growth.
const InitialAlloc = 512 * 1024

// BigAllocThreshold is the capacity at or above which a drained buffer is
// freed rather than kept around for reuse.
const BigAllocThreshold = 2 * 1024 * 1024

// ErrOutOfMemory is returned when a buffer cannot grow to the requested size.
var ErrOutOfMemory = errors.New("loombuf: buffer allocation failed")

// growBuffer ensures buf has room for n more bytes starting at length,
// growing by doubling (or to fit, whichever is larger) when necessary. It
// returns the (possibly reallocated) slice truncated to length+n and the
// offset at which the caller should write. The original slice is left
// untouched until the new one is ready, so a failed or aborted grow never
// corrupts data already appended.
func growBuffer(buf []byte, length, n int) ([]byte, int, error) {
	need := length + n
	if need <= cap(buf) {
		return buf[:need], length, nil
	}
	newCap := cap(buf) * 2
	if newCap < need {
		newCap = need
	}
	if newCap < InitialAlloc {
		newCap = InitialAlloc
	}
	fresh, err := safeMake(newCap)
	if err != nil {
		return buf, 0, err
	}
	copy(fresh, buf[:length])
	return fresh[:need], length, nil
}

// safeMake isolates the only allocation in this package that could in
// principle fail (an absurd requested size), so growBuffer has a single
// place to translate a panic into ErrOutOfMemory.
func safeMake(n int) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, ErrOutOfMemory
		}
	}()
	return make([]byte, n), nil
}
