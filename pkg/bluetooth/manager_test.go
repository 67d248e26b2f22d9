package bluetooth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/testutils"
)

type adapterEventLog struct {
	mu     sync.Mutex
	events []AdapterEvent
}

func (l *adapterEventLog) add(e AdapterEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *adapterEventLog) snapshot() []AdapterEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AdapterEvent(nil), l.events...)
}

func (l *adapterEventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func TestManager_PrimesRegistryOnConstruction(t *testing.T) {
	// GOAL: Verify construction lists the daemon's adapters once and
	// subscribes to the root object
	//
	// TEST SCENARIO: NewManager → one known adapter, one ListAdapters, one root subscription

	rig := newTestRig(t)

	known := rig.m.KnownAdapters()
	require.Len(t, known, 1)
	assert.Equal(t, "hci0", known[0].ID())
	assert.False(t, known[0].Bound(), "priming MUST NOT bind adapters")

	assert.Equal(t, 1, rig.daemon.Root.CallCount("ListAdapters"))
	assert.Equal(t, 1, rig.daemon.Root.SubscribeCount())
	assert.Zero(t, rig.daemon.Adapter.TotalCalls())
}

func TestManager_PrimeFailureStartsEmpty(t *testing.T) {
	// GOAL: Verify an unreachable listing degrades construction instead of
	// failing it
	//
	// TEST SCENARIO: Root answers nothing → NewManager succeeds with an empty registry and logs the miss

	th := testutils.NewTestHelper(t)
	fb := testutils.NewFakeBus()

	m, err := NewManager(context.Background(), fb, th.Logger)
	require.NoError(t, err)
	defer m.Close()

	assert.Empty(t, m.KnownAdapters())
	assert.True(t, th.HasLogged("Adapter listing unavailable"))
}

func TestManager_SubscribeFailureFailsConstruction(t *testing.T) {
	// GOAL: Verify a manager that cannot watch the root object refuses to
	// start
	//
	// TEST SCENARIO: Root subscription fails → NewManager returns the error

	th := testutils.NewTestHelper(t)
	fb := testutils.NewFakeBus()
	fb.Install(RootPath, managerIface).
		WithSubscribeError(&bus.CallError{Op: "Subscribe", Path: RootPath, Err: bus.ErrUnavailable})

	m, err := NewManager(context.Background(), fb, th.Logger)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, bus.ErrUnavailable)
}

func TestManager_AdapterEvents(t *testing.T) {
	// GOAL: Verify root signals drive the registry and the watcher event
	// stream, ending with the all-removed marker
	//
	// TEST SCENARIO: Added → DefaultChanged → Removed ×2 → Added/DefaultChanged/Removed/Removed/AllRemoved observed in order

	rig := newTestRig(t)
	log := &adapterEventLog{}
	defer rig.m.WatchAdapters(log.add)()

	const hci1 = "/org/bluez/hci1"

	rig.daemon.Root.Emit("AdapterAdded", hci1)
	require.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rig.m.KnownAdapters(), 2)

	rig.daemon.Root.Emit("DefaultAdapterChanged", hci1)
	require.Eventually(t, func() bool { return log.len() == 2 }, time.Second, 5*time.Millisecond)

	rig.daemon.Root.Emit("AdapterRemoved", hci1)
	require.Eventually(t, func() bool { return log.len() == 3 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rig.m.KnownAdapters(), 1)

	rig.daemon.Root.Emit("AdapterRemoved", "/org/bluez/hci0")
	require.Eventually(t, func() bool { return log.len() == 5 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rig.m.KnownAdapters())

	events := log.snapshot()
	assert.Equal(t, AdapterEventAdded, events[0].Type)
	assert.Equal(t, hci1, events[0].Path)
	require.NotNil(t, events[0].Adapter)
	assert.Equal(t, "hci1", events[0].Adapter.ID())

	assert.Equal(t, AdapterEventDefaultChanged, events[1].Type)
	assert.Same(t, events[0].Adapter, events[1].Adapter, "events MUST reference the registry handle")

	assert.Equal(t, AdapterEventRemoved, events[2].Type)
	assert.Equal(t, hci1, events[2].Path)

	assert.Equal(t, AdapterEventRemoved, events[3].Type)
	assert.Equal(t, AdapterEventAllRemoved, events[4].Type)
	assert.Nil(t, events[4].Adapter)
}

func TestManager_RemovedWatcherStaysSilent(t *testing.T) {
	// GOAL: Verify watcher removal stops delivery
	//
	// TEST SCENARIO: Remove the watcher → further signals produce no events

	rig := newTestRig(t)
	log := &adapterEventLog{}
	remove := rig.m.WatchAdapters(log.add)

	rig.daemon.Root.Emit("AdapterAdded", "/org/bluez/hci1")
	require.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)

	remove()
	rig.daemon.Root.Emit("AdapterAdded", "/org/bluez/hci2")
	require.Eventually(t, func() bool { return len(rig.m.KnownAdapters()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, log.len(), "removed watcher MUST NOT be notified")
}

func TestManager_DefaultAdapterSharesRegistryHandle(t *testing.T) {
	// GOAL: Verify default and listing lookups resolve to the primed handle
	// instead of minting duplicates
	//
	// TEST SCENARIO: DefaultAdapter and Adapters return the KnownAdapters pointer

	rig := newTestRig(t)
	ctx := context.Background()

	known := rig.m.KnownAdapters()
	require.Len(t, known, 1)

	def, err := rig.m.DefaultAdapter(ctx)
	require.NoError(t, err)
	assert.Same(t, known[0], def)
	assert.Equal(t, 1, rig.daemon.Root.CallCount("DefaultAdapter"))

	all, err := rig.m.Adapters(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Same(t, known[0], all[0])
}

func TestManager_AdapterByIDReturnsSameHandle(t *testing.T) {
	// GOAL: Verify id-keyed lookup is stable without daemon traffic
	//
	// TEST SCENARIO: Same id twice → same pointer, zero calls

	rig := newTestRig(t)
	rootCalls := rig.daemon.Root.TotalCalls()

	a1 := rig.m.Adapter("hci0")
	a2 := rig.m.Adapter("hci0")
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, rig.m.Adapter("hci1"))
	assert.Equal(t, rootCalls, rig.daemon.Root.TotalCalls())
}

func TestManager_CloseDetachesEverything(t *testing.T) {
	// GOAL: Verify release semantics: cache keeps serving, remote paths
	// fail typed, pass-through no-ops stay silent
	//
	// TEST SCENARIO: Fetch handles → Close → reads cached, binds and writes ErrReleased, cancel/disconnect nil

	rig := newTestRig(t)
	ctx := context.Background()

	rig.daemon.InstallDevice(testAddr, testutils.CreateDeviceProps("headset", testAddr).Build())
	a := rig.m.Adapter("hci0")
	dev, err := a.Device(testAddr)
	require.NoError(t, err)
	require.NoError(t, a.Fetch(ctx))
	require.NoError(t, dev.Fetch(ctx))

	rig.m.Close()

	assert.False(t, a.Bound())
	assert.False(t, dev.Bound())

	// Cached values keep serving without daemon traffic
	adapterCalls := rig.daemon.Adapter.TotalCalls()
	assert.Equal(t, "testbox-0", a.Name(ctx))
	assert.Equal(t, "headset", dev.Name())
	assert.False(t, dev.Connected(ctx))
	assert.Equal(t, adapterCalls, rig.daemon.Adapter.TotalCalls())

	// Remote needs fail typed
	assert.ErrorIs(t, dev.Bind(ctx), ErrReleased)
	assert.ErrorIs(t, dev.SetTrusted(ctx, true), ErrReleased)
	_, err = dev.DiscoverServices(ctx, "")
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, a.StartDiscovery(ctx), ErrReleased)
	_, err = rig.m.Adapters(ctx)
	assert.ErrorIs(t, err, ErrReleased)

	// Pass-through operations on unbound handles stay no-ops
	assert.NoError(t, dev.CancelDiscovery(ctx))
	assert.NoError(t, dev.Disconnect(ctx))

	// Handles minted after Close are born released
	late := rig.m.Adapter("hci7")
	assert.ErrorIs(t, late.Bind(ctx), ErrReleased)

	rig.m.Close() // idempotent
	assert.Zero(t, rig.m.disp.active(), "all signal pumps MUST have drained")

	rig.daemon.Adapter.Emit("PropertyChanged", "Powered", false)
	rig.daemon.Root.Emit("AdapterAdded", "/org/bluez/hci1")
	assert.Equal(t, "testbox-0", a.Name(ctx), "signals after release MUST be inert")
}

func TestManager_AdapterRemovalUnbindsDevices(t *testing.T) {
	// GOAL: Verify losing an adapter also drops its devices' bindings
	//
	// TEST SCENARIO: Bound adapter with a bound device → AdapterRemoved
	// signal → both handles unbound, cached reads still served

	rig := newTestRig(t)
	rig.daemon.InstallDevice(testAddr, testutils.CreateDeviceProps("headset", testAddr).Build())

	ctx := context.Background()
	a := rig.m.Adapter("hci0")
	dev, err := a.Device(testAddr)
	require.NoError(t, err)
	require.NoError(t, dev.Fetch(ctx))
	require.True(t, a.Bound())
	require.True(t, dev.Bound())

	rig.daemon.Root.Emit("AdapterRemoved", "/org/bluez/hci0")

	require.Eventually(t, func() bool { return !a.Bound() && !dev.Bound() },
		time.Second, 5*time.Millisecond, "removal MUST unbind the adapter and its devices")

	assert.Equal(t, "headset", dev.Name(), "cached reads MUST survive the removal")
}
