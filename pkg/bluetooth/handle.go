package bluetooth

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/bus"
)

// applyStatus is the outcome of routing one property onto its cache slot.
type applyStatus int

const (
	applyApplied applyStatus = iota
	applyUnknown
	applyMalformed
)

// remoteCore is the lazily-bound half of every handle. Identity lives in
// the owning entity; the core owns binding state, the single-fetch flag,
// the entity's cache mutex and the observer list.
//
// Lock discipline: mu guards obj, sub, fetched, detached, the observer
// list AND the owning entity's property struct. Methods suffixed Locked
// expect mu held for writing.
type remoteCore struct {
	mu  sync.RWMutex
	log *logrus.Entry

	obj      bus.Object
	sub      bus.Subscription
	fetched  bool
	detached bool

	// resolve locates or creates the remote object. Runs with mu held, so
	// binding serializes; it must not call back into this handle.
	resolve func(ctx context.Context) (bus.Object, error)

	// applyLocked routes one property onto its typed slot. Runs with mu
	// held. The Change carries the coerced value observers see.
	applyLocked func(name string, value any) (Change, applyStatus)

	// onSignal receives this object's non-property signals on the
	// dispatcher goroutine, without mu held. May be nil.
	onSignal func(sig bus.Signal)

	disp *dispatcher

	obsSeq    uint64
	observers []observer
}

type observer struct {
	id uint64
	fn func(Change)
}

// bound returns the remote object, or nil while unbound.
func (c *remoteCore) bound() bus.Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.obj
}

// boundPath returns the bound object's path, or "" while unbound.
func (c *remoteCore) boundPath() string {
	if obj := c.bound(); obj != nil {
		return obj.Path()
	}
	return ""
}

// ensureBoundLocked resolves and subscribes on first need. Idempotent: a
// bound handle returns immediately, and a failed attempt leaves the handle
// unbound so the next access retries.
func (c *remoteCore) ensureBoundLocked(ctx context.Context) (bus.Object, error) {
	if c.obj != nil {
		return c.obj, nil
	}
	if c.detached {
		return nil, ErrReleased
	}

	obj, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := obj.Subscribe(bus.DefaultSignalBuffer)
	if err != nil {
		return nil, err
	}

	c.obj = obj
	c.sub = sub
	c.disp.watch(obj.Path(), sub, c.handleSignal)

	c.log.WithField("path", obj.Path()).Debug("Bound to remote object")
	return obj, nil
}

// ensureFetchedLocked pulls the one property snapshot this handle gets.
// On failure the flag stays clear and the next remote read retries.
func (c *remoteCore) ensureFetchedLocked(ctx context.Context, obj bus.Object) error {
	if c.fetched {
		return nil
	}

	props, err := obj.GetProperties(ctx)
	if err != nil {
		return err
	}

	malformed := 0
	for name, value := range props {
		if _, st := c.applyLocked(name, value); st == applyMalformed {
			malformed++
		}
	}
	if malformed > 0 {
		c.log.WithField("count", malformed).Warn("Property snapshot carried malformed values")
	}

	c.fetched = true
	c.log.WithField("properties", len(props)).Debug("Property snapshot cached")
	return nil
}

// remoteRead is the read-through path: bind and fetch, then the caller
// reads the cache. Callers absorb the error into a stale read.
func (c *remoteCore) remoteRead(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, err := c.ensureBoundLocked(ctx)
	if err != nil {
		return err
	}
	return c.ensureFetchedLocked(ctx, obj)
}

// degradedRead runs remoteRead and logs the degradation instead of
// surfacing it, the contract for plain property getters.
func (c *remoteCore) degradedRead(ctx context.Context) {
	if err := c.remoteRead(ctx); err != nil {
		c.log.WithError(err).Debug("Remote read degraded to cached value")
	}
}

// setRemoteProperty writes one property. The cache is left alone; the
// daemon's confirming change signal updates it.
func (c *remoteCore) setRemoteProperty(ctx context.Context, prop Property, value any) error {
	c.mu.Lock()
	obj, err := c.ensureBoundLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return obj.SetProperty(ctx, string(prop), value)
}

// invoke binds if needed, then calls method on the remote object.
func (c *remoteCore) invoke(ctx context.Context, method string, args ...any) ([]any, error) {
	c.mu.Lock()
	obj, err := c.ensureBoundLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return obj.Call(ctx, method, args...)
}

// invokeIfBound calls method only when the handle is already bound; on an
// unbound handle it is a no-op. Used by operations that would be
// meaningless to bind for (cancel, disconnect).
func (c *remoteCore) invokeIfBound(ctx context.Context, method string, args ...any) error {
	obj := c.bound()
	if obj == nil {
		c.log.WithField("method", method).Debug("Skipped, handle not bound")
		return nil
	}
	_, err := obj.Call(ctx, method, args...)
	return err
}

// handleSignal runs on the dispatcher goroutine for every signal of the
// bound object.
func (c *remoteCore) handleSignal(sig bus.Signal) {
	if sig.Member != signalPropertyChanged {
		if c.onSignal != nil {
			c.onSignal(sig)
		}
		return
	}

	name, value, ok := sig.NameValue()
	if !ok {
		c.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (name, value)"}).
			Warn("Dropped signal")
		return
	}
	c.applyChange(name, value)
}

// applyChange updates the cache slot for one property and notifies
// observers outside the lock, each exactly once, in registration order.
func (c *remoteCore) applyChange(name string, value any) {
	c.mu.Lock()
	change, st := c.applyLocked(name, value)
	var fns []func(Change)
	if st == applyApplied {
		fns = make([]func(Change), len(c.observers))
		for i, o := range c.observers {
			fns[i] = o.fn
		}
	}
	c.mu.Unlock()

	switch st {
	case applyUnknown:
		c.log.WithField("property", name).Debug("Ignored unknown property")
	case applyMalformed:
		c.log.WithError(&bus.MalformedSignalError{Member: signalPropertyChanged, Reason: "value shape"}).
			WithField("property", name).Warn("Dropped signal")
	default:
		for _, fn := range fns {
			fn(change)
		}
	}
}

// watch registers an observer for property changes. The returned func
// removes it; calling the remover more than once is harmless. Observers
// run on the dispatcher goroutine and must not block on further remote
// operations.
func (c *remoteCore) watch(fn func(Change)) func() {
	c.mu.Lock()
	c.obsSeq++
	id := c.obsSeq
	c.observers = append(c.observers, observer{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// unbind drops the binding and its subscription. The cache stays readable;
// the fetch flag clears so a later rebind snapshots fresh state.
func (c *remoteCore) unbind() {
	c.mu.Lock()
	sub := c.sub
	c.obj = nil
	c.sub = nil
	c.fetched = false
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// detach permanently unbinds: release semantics. Cached values keep
// serving; binds fail with ErrReleased from here on.
func (c *remoteCore) detach() {
	c.mu.Lock()
	sub := c.sub
	c.obj = nil
	c.sub = nil
	c.detached = true
	c.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
