// Package ring provides a bounded, channel-backed event buffer with
// drop-oldest overflow semantics. Producers never block: when the buffer is
// full the oldest element is discarded to make room. It decouples signal
// producers (bus routers, dispatchers) from consumers that may lag.
package ring

import "sync/atomic"

// Channel is a bounded buffer that behaves like a Go channel on the read
// side. Writers use Send/TrySend; readers range over C() until Close.
type Channel[T any] struct {
	ch      chan T
	written atomic.Int64
	dropped atomic.Int64
}

// New creates a Channel with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("ring: capacity must be > 0")
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers can range over it until Close.
func (c *Channel[T]) C() <-chan T {
	return c.ch
}

// Send inserts v, discarding the oldest buffered element if the buffer is
// full. It never blocks. The return value reports whether an element was
// dropped to make room.
func (c *Channel[T]) Send(v T) bool {
	dropped := false
	select {
	case c.ch <- v:
	default:
		select {
		case <-c.ch:
			c.dropped.Add(1)
			dropped = true
		default:
			// a consumer drained concurrently; the send below has room
		}
		c.ch <- v
	}
	c.written.Add(1)
	return dropped
}

// TrySend inserts v only if there is room. Returns false when full.
func (c *Channel[T]) TrySend(v T) bool {
	select {
	case c.ch <- v:
		c.written.Add(1)
		return true
	default:
		return false
	}
}

// Len returns the number of buffered elements.
func (c *Channel[T]) Len() int {
	return len(c.ch)
}

// Cap returns the buffer capacity.
func (c *Channel[T]) Cap() int {
	return cap(c.ch)
}

// Close closes the read side. Send after Close panics.
func (c *Channel[T]) Close() {
	close(c.ch)
}

// Stats returns the lifetime written and dropped counters.
func (c *Channel[T]) Stats() (written, dropped int64) {
	return c.written.Load(), c.dropped.Load()
}
