// Package ring implements the fixed-capacity byte FIFO shared between
// the port arrival pump (producer) and the protocol logic (consumer).
package ring

import "sync/atomic"

// Buffer is a circular byte FIFO for exactly one producer and one
// consumer. The producer only calls Push; the consumer owns Clear,
// Drain and DrainUntil. Cursors and flags are atomic, so neither side
// takes a lock and the producer may interrupt the consumer at any
// point.
//
// When a push takes the last free slot the buffer latches overflow:
// that byte is still stored, and every later push is dropped until a
// drain clears the latch. After the latching write both cursors
// coincide, which is why the drain operations copy one byte
// unconditionally while the latch is set.
type Buffer struct {
	buf  []byte
	widx atomic.Uint32 // write cursor, advanced only by the producer
	ridx atomic.Uint32 // read cursor, advanced only by the consumer
	size atomic.Int32  // unread bytes
	full atomic.Bool   // overflow latch
}

// New creates a Buffer with the given capacity. The capacity must be
// at least 2; the overflow rule needs one slot of look-ahead.
func New(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Len returns the number of unread bytes. Advisory: the producer may
// be mid-push when it is read.
func (b *Buffer) Len() int {
	if n := int(b.size.Load()); n > 0 {
		return n
	}
	return 0
}

// Overflowed reports whether the overflow latch is set. Advisory in
// the same way as Len.
func (b *Buffer) Overflowed() bool {
	return b.full.Load()
}

// Clear resets cursors, count and the overflow latch. Consumer side
// only; a push racing the clear may leave one stale byte behind.
func (b *Buffer) Clear() {
	b.widx.Store(0)
	b.ridx.Store(0)
	b.size.Store(0)
	b.full.Store(false)
}

// Push appends one byte. It reports false when the byte was dropped
// because the overflow latch is set. The write that takes the last
// free slot sets the latch but is itself still accepted.
func (b *Buffer) Push(c byte) bool {
	if b.full.Load() {
		return false
	}
	w := b.widx.Load()
	if b.next(w) == b.ridx.Load() {
		b.full.Store(true)
	}
	b.buf[w] = c
	b.widx.Store(b.next(w))
	b.size.Add(1)
	return true
}

// Drain copies queued bytes into dst, oldest first, until the
// snapshot of the write cursor is reached or dst is full. It returns
// the number of bytes copied and clears the overflow latch so pushes
// resume.
func (b *Buffer) Drain(dst []byte) int {
	if b.size.Load() == 0 {
		return 0
	}
	// Freeze the bound: the producer may advance the live write
	// cursor at any instant during the copy.
	w := b.widx.Load()
	n := 0
	if b.full.Load() {
		// The byte written while full must come out even though the
		// cursors coincide.
		n = b.take(dst, n)
	}
	for b.ridx.Load() != w && n < len(dst) {
		n = b.take(dst, n)
	}
	b.full.Store(false)
	return n
}

// DrainUntil copies queued bytes into dst, stopping after the first
// byte equal to term. Bytes that do not fit in dst are still
// consumed, so an oversized message is truncated rather than left to
// poison the next call. When the snapshot bound or dst is exhausted
// before term shows up, the caller infers that from the returned
// count. Clears the overflow latch.
func (b *Buffer) DrainUntil(dst []byte, term byte) int {
	if b.size.Load() == 0 {
		return 0
	}
	w := b.widx.Load()
	n := 0
	more := true
	if b.full.Load() {
		if b.peek() == term {
			more = false
		}
		n = b.take(dst, n)
	}
	for more && b.ridx.Load() != w {
		if b.peek() == term {
			more = false
		}
		n = b.take(dst, n)
	}
	b.full.Store(false)
	return n
}

// take copies the byte at the read cursor into dst when there is
// room, and consumes it either way.
func (b *Buffer) take(dst []byte, n int) int {
	r := b.ridx.Load()
	if n < len(dst) {
		dst[n] = b.buf[r]
		n++
	}
	b.ridx.Store(b.next(r))
	b.size.Add(-1)
	return n
}

func (b *Buffer) peek() byte {
	return b.buf[b.ridx.Load()]
}

func (b *Buffer) next(i uint32) uint32 {
	if i++; i == uint32(len(b.buf)) {
		return 0
	}
	return i
}
