package bluetooth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/testutils"
)

func TestAdapter_FirstReadBindsOnce(t *testing.T) {
	// GOAL: Verify adapter binding mirrors device binding: one lookup, one
	// subscribe, one snapshot, cache afterwards
	//
	// TEST SCENARIO: Read several properties → exactly one FindAdapter + Subscribe + GetProperties

	rig := newTestRig(t)
	ctx := context.Background()

	a := rig.m.Adapter("hci0")
	assert.False(t, a.Bound())

	assert.Equal(t, "testbox-0", a.Name(ctx))
	assert.True(t, a.Bound())
	assert.Equal(t, 1, rig.daemon.Root.CallCount("FindAdapter"))
	assert.Equal(t, 1, rig.daemon.Adapter.SubscribeCount())
	assert.Equal(t, 1, rig.daemon.Adapter.GetPropertiesCount())

	assert.Equal(t, "AA:BB:CC:DD:EE:00", a.Address(ctx))
	assert.Equal(t, uint32(0x0c010c), a.Class(ctx))
	assert.True(t, a.Powered(ctx))
	assert.False(t, a.Discoverable(ctx))
	assert.True(t, a.Pairable(ctx))
	assert.False(t, a.Discovering(ctx))
	assert.Empty(t, a.DevicePaths(ctx))

	assert.Equal(t, 1, rig.daemon.Root.CallCount("FindAdapter"), "later reads MUST serve from cache")
	assert.Equal(t, 1, rig.daemon.Adapter.GetPropertiesCount())
	assert.Equal(t, 1, rig.daemon.Adapter.SubscribeCount())
}

func TestAdapter_WriteThenReadIsStaleUntilConfirmed(t *testing.T) {
	// GOAL: Verify adapter writes follow the same confirm-by-signal rule as
	// device writes
	//
	// TEST SCENARIO: SetDiscoverable(true) → cache still false → PropertyChanged → cache true, observer notified

	rig := newTestRig(t)
	ctx := context.Background()

	a := rig.m.Adapter("hci0")
	log := &changeLog{}
	defer a.Watch(log.add)()

	require.NoError(t, a.SetDiscoverable(ctx, true))
	assert.Equal(t, []testutils.SetRecord{{Name: "Discoverable", Value: true}}, rig.daemon.Adapter.Sets())
	assert.False(t, a.Discoverable(ctx), "cache MUST stay stale until the daemon confirms")

	rig.daemon.Adapter.Emit("PropertyChanged", "Discoverable", true)

	require.Eventually(t, func() bool { return a.Discoverable(ctx) }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PropDiscoverable, log.snapshot()[0].Property)
	assert.Equal(t, true, log.snapshot()[0].Value)
}

func TestAdapter_DeviceFoundSeedsRegistry(t *testing.T) {
	// GOAL: Verify discovery reports materialize cached, unbound handles,
	// and repeat reports refresh them with observer notification
	//
	// TEST SCENARIO: DeviceFound → handle appears with seeded cache, no device traffic → second report updates it

	rig := newTestRig(t)
	ctx := context.Background()

	a := rig.m.Adapter("hci0")
	require.NoError(t, a.Bind(ctx))

	rig.daemon.Adapter.Emit("DeviceFound", "12:34:56:78:9a:bc", map[string]any{
		"Address": "12:34:56:78:9A:BC",
		"Name":    "beacon",
		"RSSI":    int16(-60),
	})

	require.Eventually(t, func() bool { return len(a.KnownDevices()) == 1 }, time.Second, 5*time.Millisecond)
	dev := a.KnownDevices()[0]

	assert.Equal(t, "12:34:56:78:9A:BC", dev.Address())
	assert.Equal(t, "beacon", dev.Name(), "seeded cache MUST be readable")
	assert.False(t, dev.Bound(), "seeding MUST NOT bind the handle")
	assert.Zero(t, rig.daemon.Adapter.CallCount("FindDevice"))

	log := &changeLog{}
	defer dev.Watch(log.add)()

	rig.daemon.Adapter.Emit("DeviceFound", "12:34:56:78:9A:BC", map[string]any{
		"Name": "beacon-renamed",
		"RSSI": int16(-58),
	})

	require.Eventually(t, func() bool { return log.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PropName, log.snapshot()[0].Property)
	assert.Equal(t, "beacon-renamed", dev.Name())
	assert.Same(t, dev, a.KnownDevices()[0], "repeat reports MUST reuse the handle")
}

func TestAdapter_DeviceRemovedDropsRegistryEntry(t *testing.T) {
	// GOAL: Verify the daemon-side removal signal evicts the handle but
	// leaves existing holders with their cache
	//
	// TEST SCENARIO: Bind a device → DeviceRemoved for its path → registry empty, old handle unbound yet readable

	rig := newTestRig(t)
	ctx := context.Background()

	rig.daemon.InstallDevice(testAddr, testutils.CreateDeviceProps("headset", testAddr).Build())
	a := rig.m.Adapter("hci0")
	dev, err := a.Device(testAddr)
	require.NoError(t, err)
	require.NoError(t, dev.Fetch(ctx))
	require.True(t, dev.Bound())

	rig.daemon.Adapter.Emit("DeviceRemoved", testutils.DevicePath(testAddr))

	require.Eventually(t, func() bool { return len(a.KnownDevices()) == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, dev.Bound(), "removal MUST unbind the handle")
	assert.Equal(t, "headset", dev.Name(), "cache MUST survive removal")
}

func TestAdapter_DevicesPresetsObjectPaths(t *testing.T) {
	// GOAL: Verify listing hands out handles that already know their object
	// path, so binding them skips the lookup call
	//
	// TEST SCENARIO: Devices() → handles per path → first read on one binds without FindDevice

	rig := newTestRig(t)
	ctx := context.Background()

	devObj := rig.daemon.InstallDevice(testAddr, testutils.CreateDeviceProps("headset", testAddr).Build())
	rig.daemon.Adapter.WithReply("ListDevices", []string{testutils.DevicePath(testAddr)})

	a := rig.m.Adapter("hci0")
	devices, err := a.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, testAddr, devices[0].Address())
	assert.False(t, devices[0].Bound())

	assert.False(t, devices[0].Paired(), "cache is empty before the first remote read")
	assert.False(t, devices[0].Connected(ctx))
	assert.True(t, devices[0].Paired(), "snapshot fills the cached slots")
	assert.Zero(t, rig.daemon.Adapter.CallCount("FindDevice"), "preset path MUST skip the lookup")
	assert.Equal(t, 1, devObj.GetPropertiesCount())

	again, err := a.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Same(t, devices[0], again[0], "listing twice MUST reuse handles")
}

func TestAdapter_RemoveDeviceLooksUpUnboundHandles(t *testing.T) {
	// GOAL: Verify removal resolves the path for unbound handles and skips
	// the lookup for bound ones
	//
	// TEST SCENARIO: Remove unbound → FindDevice + RemoveDevice; remove bound → RemoveDevice with the bound path only

	rig := newTestRig(t)
	ctx := context.Background()

	rig.daemon.InstallDevice(testAddr, testutils.CreateDeviceProps("headset", testAddr).Build())
	rig.daemon.Adapter.WithReply("RemoveDevice")

	a := rig.m.Adapter("hci0")
	_, err := a.Device(testAddr)
	require.NoError(t, err)

	require.NoError(t, a.RemoveDevice(ctx, testAddr))
	assert.Equal(t, 1, rig.daemon.Adapter.CallCount("FindDevice"))
	assert.Equal(t, [][]any{{testutils.DevicePath(testAddr)}}, rig.daemon.Adapter.Calls("RemoveDevice"))
	assert.Empty(t, a.KnownDevices())

	// Bound handle: the path is known, no lookup needed
	other := "11:22:33:44:55:66"
	rig.daemon.InstallDevice(other, testutils.CreateDeviceProps("speaker", other).Build())
	dev, err := a.Device(other)
	require.NoError(t, err)
	require.NoError(t, dev.Bind(ctx))
	finds := rig.daemon.Adapter.CallCount("FindDevice")

	require.NoError(t, a.RemoveDevice(ctx, other))
	assert.Equal(t, finds, rig.daemon.Adapter.CallCount("FindDevice"), "bound path MUST be reused")
	assert.Equal(t, 2, rig.daemon.Adapter.CallCount("RemoveDevice"))
	assert.Empty(t, a.KnownDevices())
}

func TestAdapter_RemoveDeviceRejectsBadAddress(t *testing.T) {
	// GOAL: Verify address validation happens before any daemon traffic
	//
	// TEST SCENARIO: RemoveDevice with garbage → ErrInvalidAddress, zero calls

	rig := newTestRig(t)

	err := rig.m.Adapter("hci0").RemoveDevice(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Zero(t, rig.daemon.Adapter.TotalCalls())
}

func TestAdapter_BindFailureRetries(t *testing.T) {
	// GOAL: Verify a missing adapter degrades reads and the next read
	// retries the lookup
	//
	// TEST SCENARIO: FindAdapter fails once → read returns zero value unbound → next read binds

	rig := newTestRig(t)
	ctx := context.Background()

	rig.daemon.Root.WithErrorOnce("FindAdapter",
		&bus.CallError{Op: "FindAdapter", Path: "/", Err: bus.ErrNotFound})

	a := rig.m.Adapter("hci9")
	assert.Empty(t, a.Name(ctx))
	assert.False(t, a.Bound())

	assert.Equal(t, "testbox-0", a.Name(ctx), "next read MUST retry the lookup")
	assert.True(t, a.Bound())
}
