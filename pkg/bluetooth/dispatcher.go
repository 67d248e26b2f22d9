package bluetooth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/groutine"
)

// dispatcher drains every bound handle's signal subscription on its own
// goroutine and routes signals into the handle. One dispatcher per
// Manager; closing it cancels all subscriptions and waits for the drains
// to finish.
type dispatcher struct {
	log *logrus.Logger

	seq     atomic.Uint64
	watches *hashmap.Map[uint64, *dispatcherWatch]
	wg      sync.WaitGroup
}

type dispatcherWatch struct {
	path string
	sub  bus.Subscription
}

func newDispatcher(log *logrus.Logger) *dispatcher {
	return &dispatcher{
		log:     log,
		watches: hashmap.New[uint64, *dispatcherWatch](),
	}
}

// watch drains sub into handle until the stream ends, either by Cancel
// (handle unbind, dispatcher close) or by the connection closing.
func (d *dispatcher) watch(path string, sub bus.Subscription, handle func(bus.Signal)) {
	id := d.seq.Add(1)
	d.watches.Set(id, &dispatcherWatch{path: path, sub: sub})

	d.wg.Add(1)
	groutine.Go(context.Background(), "bluetooth/watch:"+path, func(ctx context.Context) {
		defer d.wg.Done()
		defer d.watches.Del(id)

		for sig := range sub.C() {
			handle(sig)
		}
		d.log.WithField("path", path).Debug("Signal stream ended")
	})
}

// active reports how many subscription drains are running.
func (d *dispatcher) active() int {
	return d.watches.Len()
}

// close cancels every subscription and waits for the drain goroutines.
func (d *dispatcher) close() {
	d.watches.Range(func(_ uint64, w *dispatcherWatch) bool {
		w.sub.Cancel()
		return true
	})
	d.wg.Wait()
}
