package godbus

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/bus"
)

// router fans converted signals out to the subscriptions registered for
// their object path. Dispatch runs on the single router goroutine; add and
// remove come from caller goroutines.
type router struct {
	log *logrus.Logger

	mu   sync.RWMutex
	subs map[string][]*subscription
}

func newRouter(log *logrus.Logger) *router {
	return &router{
		log:  log,
		subs: make(map[string][]*subscription),
	}
}

func (r *router) dispatch(sig bus.Signal) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.subs[sig.Path] {
		if s.ring.Send(sig) {
			r.log.WithFields(logrus.Fields{
				"path":   sig.Path,
				"member": sig.Member,
			}).Warn("Subscription buffer full, dropped oldest signal")
		}
	}
}

func (r *router) add(path string, s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[path] = append(r.subs[path], s)
}

// remove detaches s from path's route and closes its stream. Closing under
// the write lock keeps dispatch from sending on a closed channel.
func (r *router) remove(path string, s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[path]
	for i, cur := range list {
		if cur == s {
			r.subs[path] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.subs[path]) == 0 {
		delete(r.subs, path)
	}
	s.closeStream()
}

// closeAll runs when the connection closes: every stream ends.
func (r *router) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path, list := range r.subs {
		for _, s := range list {
			s.closeStream()
		}
		delete(r.subs, path)
	}
}
