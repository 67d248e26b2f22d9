package bluetooth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bluekit/internal/bus"
)

// AdapterEventType classifies root-level adapter notifications.
type AdapterEventType int

const (
	AdapterEventAdded AdapterEventType = iota
	AdapterEventRemoved
	AdapterEventDefaultChanged
	// AdapterEventAllRemoved fires after the removal that empties the
	// adapter registry.
	AdapterEventAllRemoved
)

// AdapterEvent is one root-level notification.
type AdapterEvent struct {
	Type    AdapterEventType
	Path    string
	Adapter *Adapter // nil for AdapterEventAllRemoved
}

type adapterObserver struct {
	id uint64
	fn func(AdapterEvent)
}

// Manager is the entry point to the daemon. It holds the root object,
// tracks the daemon's adapters, and hands out handles. Handles are cheap:
// nothing binds until an operation needs the remote side.
//
// The bus connection belongs to the caller; Close releases the manager's
// subscriptions and handles but leaves the connection open.
type Manager struct {
	conn bus.Connection
	log  *logrus.Logger
	disp *dispatcher

	root    bus.Object
	rootSub bus.Subscription

	mu          sync.Mutex
	adapters    *orderedmap.OrderedMap[string, *Adapter] // keyed by object path
	lazy        map[string]*Adapter                      // keyed by caller-supplied id
	defaultPath string
	obsSeq      uint64
	observers   []adapterObserver
	closed      bool
}

// NewManager binds the daemon's root object and subscribes to its adapter
// signals. The initial adapter listing is best-effort: a daemon that is
// unreachable now leaves the registry empty, and later operations resolve
// on demand.
func NewManager(ctx context.Context, conn bus.Connection, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	m := &Manager{
		conn:     conn,
		log:      logger,
		disp:     newDispatcher(logger),
		adapters: orderedmap.New[string, *Adapter](),
		lazy:     make(map[string]*Adapter),
	}

	m.root = conn.Object(RootPath, managerIface)
	sub, err := m.root.Subscribe(bus.DefaultSignalBuffer)
	if err != nil {
		return nil, err
	}
	m.rootSub = sub
	m.disp.watch(RootPath, sub, m.handleRootSignal)

	if err := m.prime(ctx); err != nil {
		logger.WithError(err).Warn("Adapter listing unavailable, starting empty")
	}
	return m, nil
}

// prime seeds the adapter registry from the daemon's current listing.
func (m *Manager) prime(ctx context.Context) error {
	ret, err := m.root.Call(ctx, methodListAdapters)
	if err != nil {
		return err
	}
	var paths []string
	if len(ret) > 0 {
		var ok bool
		if paths, ok = bus.AsStrings(ret[0]); !ok {
			return &bus.CallError{Op: methodListAdapters, Path: RootPath, Err: errors.New("unexpected reply shape")}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, path := range paths {
		m.adapterForPathLocked(path)
	}
	m.log.WithField("adapter_count", len(paths)).Debug("Adapter registry primed")
	return nil
}

func adapterIDFromPath(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// adapterForPathLocked returns the materialized handle for a daemon-listed
// path, creating it on first sight. The handle carries its path up front,
// so binding skips the lookup call.
func (m *Manager) adapterForPathLocked(path string) *Adapter {
	if a, ok := m.adapters.Get(path); ok {
		return a
	}
	a := m.newAdapter(adapterIDFromPath(path), path)
	if m.closed {
		a.core.detached = true
	}
	m.adapters.Set(path, a)
	return a
}

func (m *Manager) handleRootSignal(sig bus.Signal) {
	switch sig.Member {
	case signalAdapterAdded:
		path, ok := sig.StringArg(0)
		if !ok {
			m.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (path)"}).
				Warn("Dropped signal")
			return
		}
		m.mu.Lock()
		a := m.adapterForPathLocked(path)
		fns := m.observerSnapshotLocked()
		m.mu.Unlock()

		m.log.WithField("path", path).Info("Adapter added")
		for _, fn := range fns {
			fn(AdapterEvent{Type: AdapterEventAdded, Path: path, Adapter: a})
		}

	case signalAdapterRemoved:
		path, ok := sig.StringArg(0)
		if !ok {
			m.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (path)"}).
				Warn("Dropped signal")
			return
		}
		m.mu.Lock()
		removed, had := m.adapters.Get(path)
		if had {
			m.adapters.Delete(path)
		}
		unbinds := make([]*Adapter, 0, 1)
		if had {
			unbinds = append(unbinds, removed)
		}
		for _, la := range m.lazy {
			if la.Path() == path {
				unbinds = append(unbinds, la)
			}
		}
		last := had && m.adapters.Len() == 0
		if m.defaultPath == path {
			m.defaultPath = ""
		}
		fns := m.observerSnapshotLocked()
		m.mu.Unlock()

		for _, a := range unbinds {
			a.unbindAll()
		}
		m.log.WithField("path", path).Info("Adapter removed")
		for _, fn := range fns {
			fn(AdapterEvent{Type: AdapterEventRemoved, Path: path, Adapter: removed})
		}
		if last {
			m.log.Info("All adapters removed")
			for _, fn := range fns {
				fn(AdapterEvent{Type: AdapterEventAllRemoved})
			}
		}

	case signalDefaultAdapterChanged:
		path, ok := sig.StringArg(0)
		if !ok {
			m.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (path)"}).
				Warn("Dropped signal")
			return
		}
		m.mu.Lock()
		m.defaultPath = path
		a := m.adapterForPathLocked(path)
		fns := m.observerSnapshotLocked()
		m.mu.Unlock()

		m.log.WithField("path", path).Info("Default adapter changed")
		for _, fn := range fns {
			fn(AdapterEvent{Type: AdapterEventDefaultChanged, Path: path, Adapter: a})
		}

	default:
		m.log.WithField("member", sig.Member).Debug("Ignored signal")
	}
}

func (m *Manager) observerSnapshotLocked() []func(AdapterEvent) {
	fns := make([]func(AdapterEvent), len(m.observers))
	for i, o := range m.observers {
		fns[i] = o.fn
	}
	return fns
}

// resolveAdapter turns an adapter id or address into an object reference
// through the daemon's lookup. An empty id resolves the default adapter.
func (m *Manager) resolveAdapter(ctx context.Context, id string) (bus.Object, error) {
	method := methodFindAdapter
	args := []any{id}
	if id == "" {
		method = methodDefaultAdapter
		args = nil
	}
	ret, err := m.root.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	path, ok := bus.First(ret)
	if !ok {
		return nil, &bus.CallError{Op: method, Path: RootPath, Err: errors.New("unexpected reply shape")}
	}
	return m.conn.Object(path, adapterIface), nil
}

// Adapter returns a lazy handle for an adapter id ("hci0"), an adapter
// address, or "" for whatever the daemon considers default at bind time.
// The same id always yields the same handle. No daemon traffic.
func (m *Manager) Adapter(id string) *Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.lazy[id]; ok {
		return a
	}
	a := m.newAdapter(id, "")
	if m.closed {
		a.core.detached = true
	}
	m.lazy[id] = a
	return a
}

func (m *Manager) released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// DefaultAdapter asks the daemon for its default adapter and returns the
// materialized handle.
func (m *Manager) DefaultAdapter(ctx context.Context) (*Adapter, error) {
	if m.released() {
		return nil, ErrReleased
	}
	ret, err := m.root.Call(ctx, methodDefaultAdapter)
	if err != nil {
		return nil, err
	}
	path, ok := bus.First(ret)
	if !ok {
		return nil, &bus.CallError{Op: methodDefaultAdapter, Path: RootPath, Err: errors.New("unexpected reply shape")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPath = path
	return m.adapterForPathLocked(path), nil
}

// Adapters lists the daemon's adapters, materializing a handle per entry.
func (m *Manager) Adapters(ctx context.Context) ([]*Adapter, error) {
	if m.released() {
		return nil, ErrReleased
	}
	ret, err := m.root.Call(ctx, methodListAdapters)
	if err != nil {
		return nil, err
	}
	var paths []string
	if len(ret) > 0 {
		var ok bool
		if paths, ok = bus.AsStrings(ret[0]); !ok {
			return nil, &bus.CallError{Op: methodListAdapters, Path: RootPath, Err: errors.New("unexpected reply shape")}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Adapter, 0, len(paths))
	for _, path := range paths {
		out = append(out, m.adapterForPathLocked(path))
	}
	return out, nil
}

// KnownAdapters snapshots the materialized adapter handles in first-seen
// order. No daemon traffic.
func (m *Manager) KnownAdapters() []*Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Adapter, 0, m.adapters.Len())
	for pair := m.adapters.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// WatchAdapters registers an observer for root-level adapter events. The
// returned func removes it. Callbacks run on the dispatcher goroutine and
// must not block on further remote operations.
func (m *Manager) WatchAdapters(fn func(AdapterEvent)) func() {
	m.mu.Lock()
	m.obsSeq++
	id := m.obsSeq
	m.observers = append(m.observers, adapterObserver{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// Close releases the manager: all subscriptions are cancelled and every
// outstanding handle is permanently unbound. Cached values keep serving;
// binds from here on fail with ErrReleased. The caller's bus connection
// stays open. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	handles := make([]*Adapter, 0, m.adapters.Len()+len(m.lazy))
	for pair := m.adapters.Oldest(); pair != nil; pair = pair.Next() {
		handles = append(handles, pair.Value)
	}
	for _, a := range m.lazy {
		handles = append(handles, a)
	}
	m.mu.Unlock()

	for _, a := range handles {
		a.detachAll()
	}
	m.rootSub.Cancel()
	m.disp.close()
	m.log.Debug("Manager released")
}
