package bluetooth

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/bus"
)

// Device is a handle to one remote device of an adapter, addressed by MAC.
// Constructing one is free: the daemon is first contacted when an
// operation genuinely needs the remote object.
type Device struct {
	address string
	adapter *Adapter
	core    *remoteCore
	props   deviceProps

	// fixedPath is set for handles materialized from a daemon listing,
	// where resolution needs no lookup call.
	fixedPath string

	discMu  sync.Mutex
	discSeq uint64
	discObs []disconnectObserver
}

type disconnectObserver struct {
	id uint64
	fn func()
}

func (a *Adapter) newDevice(address string) *Device {
	d := &Device{address: address, adapter: a}
	d.core = &remoteCore{
		log: a.m.log.WithFields(logrus.Fields{
			"entity":  "device",
			"address": address,
		}),
		disp: a.m.disp,
	}
	d.core.resolve = d.resolveRemote
	d.core.applyLocked = d.applyPropertyLocked
	d.core.onSignal = d.handleSignal
	return d
}

// resolveRemote locates the daemon object for this address: a known path
// from a listing wins, otherwise lookup-then-create through the parent
// adapter.
func (d *Device) resolveRemote(ctx context.Context) (bus.Object, error) {
	if d.fixedPath != "" {
		return d.adapter.m.conn.Object(d.fixedPath, deviceIface), nil
	}
	path, err := d.adapter.findOrCreateDevice(ctx, d.address)
	if err != nil {
		return nil, err
	}
	return d.adapter.m.conn.Object(path, deviceIface), nil
}

func (d *Device) applyPropertyLocked(name string, value any) (Change, applyStatus) {
	slot, ok := deviceSlots[Property(name)]
	if !ok {
		return Change{}, applyUnknown
	}
	v, ok := slot(&d.props, value)
	if !ok {
		return Change{}, applyMalformed
	}
	return Change{Property: Property(name), Value: v}, applyApplied
}

func (d *Device) handleSignal(sig bus.Signal) {
	switch sig.Member {
	case signalDisconnectRequested:
		d.discMu.Lock()
		fns := make([]func(), len(d.discObs))
		for i, o := range d.discObs {
			fns[i] = o.fn
		}
		d.discMu.Unlock()
		for _, fn := range fns {
			fn()
		}
	default:
		d.core.log.WithField("member", sig.Member).Debug("Ignored signal")
	}
}

// seed populates cache slots from a discovery report without notifying
// observers, the same standing constructor-supplied values have.
func (d *Device) seed(props map[string]any) {
	d.core.mu.Lock()
	defer d.core.mu.Unlock()
	for name, value := range props {
		d.applyPropertyLocked(name, value)
	}
}

// refresh applies a discovery report to an already-known handle, with
// observer notifications for every changed slot.
func (d *Device) refresh(props map[string]any) {
	for name, value := range props {
		d.core.applyChange(name, value)
	}
}

// Address returns the device identity. Never touches the daemon.
func (d *Device) Address() string {
	return d.address
}

// Adapter returns the owning adapter handle.
func (d *Device) Adapter() *Adapter {
	return d.adapter
}

// Bound reports whether the handle currently holds its remote object.
func (d *Device) Bound() bool {
	return d.core.bound() != nil
}

// Bind resolves the remote object now instead of on first use: lookup by
// address, creation when the daemon does not know the device yet. No-op
// when already bound.
func (d *Device) Bind(ctx context.Context) error {
	d.core.mu.Lock()
	defer d.core.mu.Unlock()
	_, err := d.core.ensureBoundLocked(ctx)
	return err
}

// Fetch ensures the one-time property snapshot is cached, binding first if
// needed. Unlike the plain getters it surfaces the failure.
func (d *Device) Fetch(ctx context.Context) error {
	return d.core.remoteRead(ctx)
}

// Cached getters: served from the seeded slots, never any daemon traffic.

func (d *Device) Name() string {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.name
}

func (d *Device) Alias() string {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.alias
}

func (d *Device) Icon() string {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.icon
}

func (d *Device) Class() uint32 {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.class
}

func (d *Device) LegacyPairing() bool {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.legacyPairing
}

func (d *Device) Paired() bool {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.paired
}

// Remote-backed getters: the first access binds and snapshots; failures
// degrade to the cached value.

func (d *Device) Connected(ctx context.Context) bool {
	d.core.degradedRead(ctx)
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.connected
}

func (d *Device) Trusted(ctx context.Context) bool {
	d.core.degradedRead(ctx)
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.trusted
}

func (d *Device) Blocked(ctx context.Context) bool {
	d.core.degradedRead(ctx)
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return d.props.blocked
}

func (d *Device) UUIDs(ctx context.Context) []string {
	d.core.degradedRead(ctx)
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return append([]string(nil), d.props.uuids...)
}

// cachedUUIDs reads the UUID slot without triggering a remote fetch.
// Discovery filtering uses it against report-seeded values.
func (d *Device) cachedUUIDs() []string {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return append([]string(nil), d.props.uuids...)
}

// Writes go to the daemon only; the cache follows when the confirming
// change signal arrives.

func (d *Device) SetTrusted(ctx context.Context, trusted bool) error {
	return d.core.setRemoteProperty(ctx, PropTrusted, trusted)
}

func (d *Device) SetBlocked(ctx context.Context, blocked bool) error {
	return d.core.setRemoteProperty(ctx, PropBlocked, blocked)
}

func (d *Device) SetAlias(ctx context.Context, alias string) error {
	return d.core.setRemoteProperty(ctx, PropAlias, alias)
}

// DiscoverServices asks the daemon for the device's service records,
// optionally filtered by pattern. Binds first; a handle that cannot bind
// returns the bind failure.
func (d *Device) DiscoverServices(ctx context.Context, pattern string) (map[uint32]string, error) {
	ret, err := d.core.invoke(ctx, methodDiscoverServices, pattern)
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return map[uint32]string{}, nil
	}
	records, ok := bus.AsUint32Map(ret[0])
	if !ok {
		return nil, &bus.CallError{
			Op:   methodDiscoverServices,
			Path: d.core.boundPath(),
			Err:  errors.New("unexpected reply shape"),
		}
	}
	return records, nil
}

// CancelDiscovery stops an in-flight service discovery. A handle that was
// never bound has nothing to cancel; that is a no-op.
func (d *Device) CancelDiscovery(ctx context.Context) error {
	return d.core.invokeIfBound(ctx, methodCancelDiscovery)
}

// Disconnect asks the daemon to drop the link. No-op on an unbound handle.
func (d *Device) Disconnect(ctx context.Context) error {
	return d.core.invokeIfBound(ctx, methodDisconnect)
}

// Watch registers an observer for property changes. Observers run on the
// dispatcher goroutine; they must not block on further remote operations.
// The returned func removes the observer.
func (d *Device) Watch(fn func(Change)) func() {
	return d.core.watch(fn)
}

// OnDisconnectRequested registers an observer for the daemon's disconnect
// warning, sent ~2 seconds before the link drops.
func (d *Device) OnDisconnectRequested(fn func()) func() {
	d.discMu.Lock()
	d.discSeq++
	id := d.discSeq
	d.discObs = append(d.discObs, disconnectObserver{id: id, fn: fn})
	d.discMu.Unlock()

	return func() {
		d.discMu.Lock()
		defer d.discMu.Unlock()
		for i, o := range d.discObs {
			if o.id == id {
				d.discObs = append(d.discObs[:i:i], d.discObs[i+1:]...)
				return
			}
		}
	}
}

// DeviceInfo is a point-in-time copy of a device's cache.
type DeviceInfo struct {
	Address       string   `json:"address"`
	Name          string   `json:"name,omitempty"`
	Alias         string   `json:"alias,omitempty"`
	Icon          string   `json:"icon,omitempty"`
	Class         uint32   `json:"class,omitempty"`
	LegacyPairing bool     `json:"legacyPairing"`
	Paired        bool     `json:"paired"`
	Connected     bool     `json:"connected"`
	Trusted       bool     `json:"trusted"`
	Blocked       bool     `json:"blocked"`
	UUIDs         []string `json:"uuids,omitempty"`
}

// Info snapshots the cache. Call Fetch first when remote-backed fields
// must be populated.
func (d *Device) Info() DeviceInfo {
	d.core.mu.RLock()
	defer d.core.mu.RUnlock()
	return DeviceInfo{
		Address:       d.address,
		Name:          d.props.name,
		Alias:         d.props.alias,
		Icon:          d.props.icon,
		Class:         d.props.class,
		LegacyPairing: d.props.legacyPairing,
		Paired:        d.props.paired,
		Connected:     d.props.connected,
		Trusted:       d.props.trusted,
		Blocked:       d.props.blocked,
		UUIDs:         append([]string(nil), d.props.uuids...),
	}
}
