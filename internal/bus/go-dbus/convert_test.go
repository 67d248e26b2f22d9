package godbus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bluekit/internal/bus"
)

// GOAL: Verify library types unwrap into the plain values the contract
// promises, including nested variants inside property maps.
func TestFromDBus(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"variant bool", dbus.MakeVariant(true), true},
		{"nested variant", dbus.MakeVariant(dbus.MakeVariant("x")), "x"},
		{"object path", dbus.ObjectPath("/org/bluez/hci0"), "/org/bluez/hci0"},
		{
			"path slice",
			[]dbus.ObjectPath{"/org/bluez/hci0", "/org/bluez/hci1"},
			[]string{"/org/bluez/hci0", "/org/bluez/hci1"},
		},
		{
			"variant map",
			map[string]dbus.Variant{
				"Name":   dbus.MakeVariant("headset"),
				"Paired": dbus.MakeVariant(false),
				"Class":  dbus.MakeVariant(uint32(0x240404)),
			},
			map[string]any{"Name": "headset", "Paired": false, "Class": uint32(0x240404)},
		},
		{"plain string slice", []string{"110b", "110e"}, []string{"110b", "110e"}},
		{"service records", map[uint32]string{1: "<record/>"}, map[uint32]string{1: "<record/>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fromDBus(tt.in))
		})
	}
}

func TestConvertSignal(t *testing.T) {
	sig := convertSignal(&dbus.Signal{
		Path: "/org/bluez/hci0/dev_00_11_22_33_44_55",
		Name: "org.bluez.Device.PropertyChanged",
		Body: []any{"Connected", dbus.MakeVariant(true)},
	})

	assert.Equal(t, "/org/bluez/hci0/dev_00_11_22_33_44_55", sig.Path)
	assert.Equal(t, "PropertyChanged", sig.Member)

	name, value, ok := sig.NameValue()
	require.True(t, ok)
	assert.Equal(t, "Connected", name)
	assert.Equal(t, true, value)
}

// GOAL: Verify the router delivers by path only, drops nothing while
// buffers have room, and ends streams exactly once on remove and closeAll.
func TestRouterDispatch(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	r := newRouter(log)

	a := newSubscription(4)
	b := newSubscription(4)
	r.add("/org/bluez/hci0", a)
	r.add("/org/bluez/hci1", b)

	r.dispatch(bus.Signal{Path: "/org/bluez/hci0", Member: "PropertyChanged", Body: []any{"Powered", true}})

	select {
	case sig := <-a.C():
		assert.Equal(t, "PropertyChanged", sig.Member)
	default:
		t.Fatal("expected signal on hci0 subscription")
	}
	assert.Equal(t, 0, b.ring.Len(), "hci1 subscription must not see hci0 signals")

	// remove closes the stream; a second close via closeAll must not panic
	r.remove("/org/bluez/hci0", a)
	_, open := <-a.C()
	assert.False(t, open)

	r.closeAll()
	_, open = <-b.C()
	assert.False(t, open)
}
