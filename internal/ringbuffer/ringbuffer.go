// Package ringbuffer implements a lock-free single-producer/single-consumer
// byte-message queue, used to cross the JACK realtime callback boundary
// without allocating or locking inside the callback (spec.md §4.5).
package ringbuffer

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by Write when the buffer has no room for the message.
var ErrFull = errors.New("ringbuffer: full")

// maxMessage bounds a single entry; JACK MIDI messages are at most 3 bytes
// for channel-voice events and rarely exceed a SysEx dump in the low
// hundreds, but callers may write up to this many bytes per message.
const maxMessage = 256

// slot holds one message: a length-prefixed fixed array, avoiding any heap
// allocation on the hot path in Write/Read.
type slot struct {
	len  uint32
	data [maxMessage]byte
}

// Ring is a fixed-capacity circular buffer of message slots. One goroutine
// must call Write exclusively; one (possibly different) goroutine must call
// Read exclusively. Capacity must be a power of two.
type Ring struct {
	mask uint64
	buf  []slot

	// head is the next slot index the writer will fill; tail is the next
	// slot index the reader will consume. Both only move forward and wrap
	// via the mask, so no slot is ever written and read concurrently.
	head atomic.Uint64
	tail atomic.Uint64
}

// New creates a Ring with room for `capacity` messages, rounded up to the
// next power of two.
func New(capacity int) *Ring {
	n := nextPowerOfTwo(capacity)
	return &Ring{
		mask: uint64(n - 1),
		buf:  make([]slot, n),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Write enqueues msg. Returns ErrFull if the buffer has no free slot, or an
// error if msg exceeds the per-message size limit. Safe to call from the
// single producer goroutine only.
func (r *Ring) Write(msg []byte) error {
	if len(msg) > maxMessage {
		return errors.New("ringbuffer: message too large")
	}
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint64(len(r.buf)) {
		return ErrFull
	}
	s := &r.buf[head&r.mask]
	s.len = uint32(copy(s.data[:], msg))
	// Publish the slot before advancing head so a concurrent reader never
	// observes an index it can claim before the payload is visible.
	r.head.Store(head + 1)
	return nil
}

// Read dequeues the oldest message into dst, returning the number of bytes
// written and true, or (0, false) if the buffer is empty. Safe to call from
// the single consumer goroutine only.
func (r *Ring) Read(dst []byte) (int, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return 0, false
	}
	s := &r.buf[tail&r.mask]
	n := copy(dst, s.data[:s.len])
	r.tail.Store(tail + 1)
	return n, true
}

// Len reports the number of messages currently queued. Approximate if
// called concurrently with Write/Read, but never negative or overstated
// beyond capacity.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap reports the buffer's message capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}
