package bluetooth

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/ring"
)

// Adapter is a handle to one local Bluetooth adapter managed by the
// daemon. Like Device it binds lazily; its whole property cache is
// remote-sourced.
type Adapter struct {
	id    string
	m     *Manager
	core  *remoteCore
	props adapterProps

	devMu   sync.Mutex
	devices *orderedmap.OrderedMap[string, *Device]

	events *ring.Channel[DiscoveryEvent]

	discoveryMu  sync.Mutex
	discoverySeq uint64
	discoveryObs []discoveryObserver
}

// discoveryObserver receives this adapter's discovery reports.
type discoveryObserver struct {
	id    uint64
	found func(d *Device, rssi int16)
	lost  func(address string)
}

func (m *Manager) newAdapter(id, fixedPath string) *Adapter {
	a := &Adapter{
		id:      id,
		m:       m,
		devices: orderedmap.New[string, *Device](),
		events:  ring.New[DiscoveryEvent](discoveryEventBuffer),
	}
	a.core = &remoteCore{
		log: m.log.WithFields(logrus.Fields{
			"entity":  "adapter",
			"adapter": id,
		}),
		disp: m.disp,
	}
	a.core.resolve = func(ctx context.Context) (bus.Object, error) {
		if fixedPath != "" {
			return m.conn.Object(fixedPath, adapterIface), nil
		}
		return m.resolveAdapter(ctx, id)
	}
	a.core.applyLocked = a.applyPropertyLocked
	a.core.onSignal = a.handleSignal
	return a
}

func (a *Adapter) applyPropertyLocked(name string, value any) (Change, applyStatus) {
	slot, ok := adapterSlots[Property(name)]
	if !ok {
		return Change{}, applyUnknown
	}
	v, ok := slot(&a.props, value)
	if !ok {
		return Change{}, applyMalformed
	}
	return Change{Property: Property(name), Value: v}, applyApplied
}

func (a *Adapter) handleSignal(sig bus.Signal) {
	switch sig.Member {
	case signalDeviceFound:
		address, okA := sig.StringArg(0)
		props, okP := sig.MapArg(1)
		if !okA || !okP {
			a.core.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (address, properties)"}).
				Warn("Dropped signal")
			return
		}
		a.handleDeviceFound(address, props)

	case signalDeviceDisappeared:
		address, ok := sig.StringArg(0)
		if !ok {
			a.core.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (address)"}).
				Warn("Dropped signal")
			return
		}
		a.notifyLost(address)

	case signalDeviceRemoved:
		path, ok := sig.StringArg(0)
		if !ok {
			a.core.log.WithError(&bus.MalformedSignalError{Member: sig.Member, Reason: "body is not (path)"}).
				Warn("Dropped signal")
			return
		}
		if address, ok := addressFromPath(path); ok {
			a.dropDevice(address)
		}

	case signalDeviceCreated:
		path, _ := sig.StringArg(0)
		a.core.log.WithField("path", path).Debug("Device object created")

	default:
		a.core.log.WithField("member", sig.Member).Debug("Ignored signal")
	}
}

// handleDeviceFound materializes (or refreshes) the reported device and
// fans the report out to discovery observers. A first report seeds the
// handle silently, the way constructor-supplied values would; later
// reports notify the device's observers like any other change.
func (a *Adapter) handleDeviceFound(address string, props map[string]any) {
	if normalized, err := NormalizeAddress(address); err == nil {
		address = normalized
	}

	a.devMu.Lock()
	d, existed := a.devices.Get(address)
	if !existed {
		d = a.newDevice(address)
		a.devices.Set(address, d)
	}
	a.devMu.Unlock()

	if existed {
		d.refresh(props)
	} else {
		d.seed(props)
	}

	rssi, _ := bus.AsInt16(props["RSSI"])

	a.discoveryMu.Lock()
	fns := make([]func(*Device, int16), 0, len(a.discoveryObs))
	for _, o := range a.discoveryObs {
		if o.found != nil {
			fns = append(fns, o.found)
		}
	}
	a.discoveryMu.Unlock()
	for _, fn := range fns {
		fn(d, rssi)
	}
}

func (a *Adapter) notifyLost(address string) {
	if normalized, err := NormalizeAddress(address); err == nil {
		address = normalized
	}

	a.discoveryMu.Lock()
	fns := make([]func(string), 0, len(a.discoveryObs))
	for _, o := range a.discoveryObs {
		if o.lost != nil {
			fns = append(fns, o.lost)
		}
	}
	a.discoveryMu.Unlock()
	for _, fn := range fns {
		fn(address)
	}
}

// observeDiscovery registers discovery callbacks; the returned func
// removes them.
func (a *Adapter) observeDiscovery(found func(*Device, int16), lost func(string)) func() {
	a.discoveryMu.Lock()
	a.discoverySeq++
	id := a.discoverySeq
	a.discoveryObs = append(a.discoveryObs, discoveryObserver{id: id, found: found, lost: lost})
	a.discoveryMu.Unlock()

	return func() {
		a.discoveryMu.Lock()
		defer a.discoveryMu.Unlock()
		for i, o := range a.discoveryObs {
			if o.id == id {
				a.discoveryObs = append(a.discoveryObs[:i:i], a.discoveryObs[i+1:]...)
				return
			}
		}
	}
}

// detachAll permanently unbinds this adapter and every device handle it
// has materialized. Manager release path.
func (a *Adapter) detachAll() {
	a.core.detach()
	for _, d := range a.KnownDevices() {
		d.core.detach()
	}
}

// unbindAll drops this adapter's binding and its devices' bindings. Daemon
// removal path: caches stay readable and handles may bind again later.
func (a *Adapter) unbindAll() {
	a.core.unbind()
	for _, d := range a.KnownDevices() {
		d.core.unbind()
	}
}

// dropDevice forgets a device the daemon removed: out of the registry,
// binding dropped. The handle's cache stays readable for holders.
func (a *Adapter) dropDevice(address string) {
	a.devMu.Lock()
	d, ok := a.devices.Get(address)
	if ok {
		a.devices.Delete(address)
	}
	a.devMu.Unlock()

	if ok {
		d.core.unbind()
		a.core.log.WithField("address", address).Debug("Device removed by daemon")
	}
}

// findOrCreateDevice resolves an address to a daemon object path: lookup
// first, then creation, the daemon registering the device on the fly.
func (a *Adapter) findOrCreateDevice(ctx context.Context, address string) (string, error) {
	ret, err := a.core.invoke(ctx, methodFindDevice, address)
	if err == nil {
		if path, ok := bus.First(ret); ok {
			return path, nil
		}
		return "", &bus.CallError{Op: methodFindDevice, Path: a.Path(), Err: errors.New("unexpected reply shape")}
	}

	a.core.log.WithField("address", address).WithError(err).Debug("Device lookup missed, creating")

	ret, cerr := a.core.invoke(ctx, methodCreateDevice, address)
	if cerr != nil {
		return "", cerr
	}
	path, ok := bus.First(ret)
	if !ok {
		return "", &bus.CallError{Op: methodCreateDevice, Path: a.Path(), Err: errors.New("unexpected reply shape")}
	}
	return path, nil
}

// ID returns the identity this handle was created with: an adapter id or
// address pattern, or the object path when materialized from a daemon
// listing.
func (a *Adapter) ID() string {
	return a.id
}

// Path returns the bound object path, or "" while unbound.
func (a *Adapter) Path() string {
	if obj := a.core.bound(); obj != nil {
		return obj.Path()
	}
	return ""
}

// Bound reports whether the handle currently holds its remote object.
func (a *Adapter) Bound() bool {
	return a.core.bound() != nil
}

// Bind resolves the remote object now. Adapters are hardware: there is no
// creation fallback, only lookup.
func (a *Adapter) Bind(ctx context.Context) error {
	a.core.mu.Lock()
	defer a.core.mu.Unlock()
	_, err := a.core.ensureBoundLocked(ctx)
	return err
}

// Fetch ensures the one-time property snapshot is cached, binding first
// if needed.
func (a *Adapter) Fetch(ctx context.Context) error {
	return a.core.remoteRead(ctx)
}

// Property getters; all remote-backed with degrade-to-cache semantics.

func (a *Adapter) Address(ctx context.Context) string {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.address
}

func (a *Adapter) Name(ctx context.Context) string {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.name
}

func (a *Adapter) Class(ctx context.Context) uint32 {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.class
}

func (a *Adapter) Powered(ctx context.Context) bool {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.powered
}

func (a *Adapter) Discoverable(ctx context.Context) bool {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.discoverable
}

func (a *Adapter) Pairable(ctx context.Context) bool {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.pairable
}

func (a *Adapter) Discovering(ctx context.Context) bool {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return a.props.discovering
}

// DevicePaths returns the object paths of the daemon's known devices for
// this adapter, from the cached property bag.
func (a *Adapter) DevicePaths(ctx context.Context) []string {
	a.core.degradedRead(ctx)
	a.core.mu.RLock()
	defer a.core.mu.RUnlock()
	return append([]string(nil), a.props.devices...)
}

// Property writes.

func (a *Adapter) SetName(ctx context.Context, name string) error {
	return a.core.setRemoteProperty(ctx, PropName, name)
}

func (a *Adapter) SetPowered(ctx context.Context, powered bool) error {
	return a.core.setRemoteProperty(ctx, PropPowered, powered)
}

func (a *Adapter) SetDiscoverable(ctx context.Context, discoverable bool) error {
	return a.core.setRemoteProperty(ctx, PropDiscoverable, discoverable)
}

func (a *Adapter) SetPairable(ctx context.Context, pairable bool) error {
	return a.core.setRemoteProperty(ctx, PropPairable, pairable)
}

// Watch registers an observer for adapter property changes.
func (a *Adapter) Watch(fn func(Change)) func() {
	return a.core.watch(fn)
}

// Device returns the handle for address, creating an unbound one on first
// use. The same normalized address always yields the same handle.
func (a *Adapter) Device(address string) (*Device, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	a.devMu.Lock()
	defer a.devMu.Unlock()
	if d, ok := a.devices.Get(normalized); ok {
		return d, nil
	}
	d := a.newDevice(normalized)
	a.devices.Set(normalized, d)
	return d, nil
}

// Devices lists the daemon's known devices for this adapter, materializing
// a handle per entry. Handles gain their object path up front, so their
// first remote read skips the lookup call.
func (a *Adapter) Devices(ctx context.Context) ([]*Device, error) {
	ret, err := a.core.invoke(ctx, methodListDevices)
	if err != nil {
		return nil, err
	}
	var paths []string
	if len(ret) > 0 {
		var ok bool
		if paths, ok = bus.AsStrings(ret[0]); !ok {
			return nil, &bus.CallError{Op: methodListDevices, Path: a.Path(), Err: errors.New("unexpected reply shape")}
		}
	}

	out := make([]*Device, 0, len(paths))
	a.devMu.Lock()
	defer a.devMu.Unlock()
	for _, path := range paths {
		address, ok := addressFromPath(path)
		if !ok {
			a.core.log.WithField("path", path).Warn("Skipping device with unrecognized path")
			continue
		}
		d, ok := a.devices.Get(address)
		if !ok {
			d = a.newDevice(address)
			d.fixedPath = path
			a.devices.Set(address, d)
		}
		out = append(out, d)
	}
	return out, nil
}

// KnownDevices snapshots the handles this adapter has materialized, in
// first-seen order. No daemon traffic.
func (a *Adapter) KnownDevices() []*Device {
	a.devMu.Lock()
	defer a.devMu.Unlock()

	out := make([]*Device, 0, a.devices.Len())
	for pair := a.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// RemoveDevice asks the daemon to forget a device. The registry entry is
// dropped immediately; the daemon's removal signal does the same for
// other holders of the adapter.
func (a *Adapter) RemoveDevice(ctx context.Context, address string) error {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	path := ""
	a.devMu.Lock()
	if d, ok := a.devices.Get(normalized); ok {
		path = d.core.boundPath()
	}
	a.devMu.Unlock()

	if path == "" {
		ret, err := a.core.invoke(ctx, methodFindDevice, normalized)
		if err != nil {
			return err
		}
		var ok bool
		if path, ok = bus.First(ret); !ok {
			return &bus.CallError{Op: methodFindDevice, Path: a.Path(), Err: errors.New("unexpected reply shape")}
		}
	}

	if _, err := a.core.invoke(ctx, methodRemoveDevice, path); err != nil {
		return err
	}
	a.dropDevice(normalized)
	return nil
}

// StartDiscovery asks the daemon to begin scanning. Prefer Discover for a
// bounded session with events.
func (a *Adapter) StartDiscovery(ctx context.Context) error {
	_, err := a.core.invoke(ctx, methodStartDiscovery)
	return err
}

// StopDiscovery asks the daemon to stop scanning.
func (a *Adapter) StopDiscovery(ctx context.Context) error {
	_, err := a.core.invoke(ctx, methodStopDiscovery)
	return err
}
