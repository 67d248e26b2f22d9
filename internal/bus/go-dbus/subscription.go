package godbus

import (
	"sync"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/ring"
)

// subscription is one object's signal stream: a drop-oldest buffer fed by
// the router.
type subscription struct {
	ring     *ring.Channel[bus.Signal]
	cancelFn func()

	cancelOnce sync.Once
	closeOnce  sync.Once
}

func newSubscription(buffer int) *subscription {
	return &subscription{ring: ring.New[bus.Signal](buffer)}
}

func (s *subscription) C() <-chan bus.Signal {
	return s.ring.C()
}

// Cancel removes the bus match rule and ends the stream. Safe to call more
// than once, and safe concurrently with connection close.
func (s *subscription) Cancel() {
	s.cancelOnce.Do(func() {
		if s.cancelFn != nil {
			s.cancelFn()
		}
	})
}

// closeStream closes the ring exactly once. Called by the router with its
// write lock held, from either Cancel or connection close.
func (s *subscription) closeStream() {
	s.closeOnce.Do(s.ring.Close)
}
