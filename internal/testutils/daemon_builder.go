package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/bluekit/internal/bus"
)

const (
	daemonRootPath    = "/"
	daemonAdapterPath = "/org/bluez/hci0"

	managerIface = "org.bluez.Manager"
	adapterIface = "org.bluez.Adapter"
	deviceIface  = "org.bluez.Device"
)

// PropsBuilder assembles a daemon property bag with a fluent API, for
// scripting GetProperties and for DeviceFound / PropertyChanged bodies.
type PropsBuilder struct {
	m map[string]any
}

func NewProps() *PropsBuilder {
	return &PropsBuilder{m: make(map[string]any)}
}

// With sets one property.
func (b *PropsBuilder) With(name string, value any) *PropsBuilder {
	b.m[name] = value
	return b
}

// WithJSON merges a JSON object into the bag. Numbers arrive as float64
// from the decoder and are folded back to integers, and homogeneous string
// arrays become []string, matching the plain values the bus boundary
// carries.
func (b *PropsBuilder) WithJSON(jsonStrFmt string, args ...any) *PropsBuilder {
	var m map[string]any
	s := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		panic(fmt.Sprintf("testutils: invalid props JSON %q: %v", s, err))
	}
	for k, v := range m {
		b.m[k] = normalizeJSONValue(v)
	}
	return b
}

// Build returns the accumulated bag. The builder can keep being used; each
// Build returns an independent copy.
func (b *PropsBuilder) Build() map[string]any {
	out := make(map[string]any, len(b.m))
	for k, v := range b.m {
		out[k] = v
	}
	return out
}

func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case []any:
		strs := make([]string, 0, len(val))
		for _, e := range val {
			s, ok := e.(string)
			if !ok {
				out := make([]any, len(val))
				for i, x := range val {
					out[i] = normalizeJSONValue(x)
				}
				return out
			}
			strs = append(strs, s)
		}
		return strs
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeJSONValue(e)
		}
		return out
	default:
		return v
	}
}

// CreateDeviceProps returns a realistic device bag: a paired classic
// headset. Callers override whatever the test cares about.
func CreateDeviceProps(name, address string) *PropsBuilder {
	return NewProps().
		With("Address", address).
		With("Name", name).
		With("Alias", name).
		With("Class", int64(0x240404)).
		With("Icon", "audio-card").
		With("Paired", true).
		With("Connected", false).
		With("Trusted", false).
		With("Blocked", false).
		With("LegacyPairing", false).
		With("UUIDs", []string{
			"0000110b-0000-1000-8000-00805f9b34fb",
			"0000111e-0000-1000-8000-00805f9b34fb",
		})
}

// CreateAdapterProps returns a realistic adapter bag.
func CreateAdapterProps(address string) *PropsBuilder {
	return NewProps().
		With("Address", address).
		With("Name", "testbox-0").
		With("Class", int64(0x0c010c)).
		With("Powered", true).
		With("Discoverable", false).
		With("Pairable", true).
		With("Discovering", false).
		With("Devices", []string{})
}

// DevicePath returns the daemon object path for a device address under the
// scripted adapter.
func DevicePath(address string) string {
	return daemonAdapterPath + "/dev_" + strings.ReplaceAll(address, ":", "_")
}

// Daemon is the common scripted topology: one root object and one adapter,
// with lookups wired so FindDevice resolves installed devices and
// CreateDevice materializes unknown ones, the way the real daemon does.
type Daemon struct {
	Bus     *FakeBus
	Root    *FakeObject
	Adapter *FakeObject

	mu          sync.Mutex
	devicePaths map[string]string // address -> path
}

func NewDaemon() *Daemon {
	d := &Daemon{
		Bus:         NewFakeBus(),
		devicePaths: make(map[string]string),
	}

	d.Root = d.Bus.Install(daemonRootPath, managerIface).
		WithReply("ListAdapters", []string{daemonAdapterPath}).
		WithReply("DefaultAdapter", daemonAdapterPath).
		WithReply("FindAdapter", daemonAdapterPath)

	d.Adapter = d.Bus.Install(daemonAdapterPath, adapterIface).
		WithProps(CreateAdapterProps("AA:BB:CC:DD:EE:00").Build()).
		WithReply("StartDiscovery").
		WithReply("StopDiscovery").
		WithReplyFunc("FindDevice", d.findDevice).
		WithReplyFunc("CreateDevice", d.createDevice)

	return d
}

// InstallDevice scripts a device object the adapter's FindDevice resolves.
func (d *Daemon) InstallDevice(address string, props map[string]any) *FakeObject {
	path := DevicePath(address)
	obj := d.Bus.Install(path, deviceIface).WithProps(props)
	d.mu.Lock()
	d.devicePaths[address] = path
	d.mu.Unlock()
	return obj
}

// RemoveDevicePath makes FindDevice miss for address again.
func (d *Daemon) RemoveDevicePath(address string) {
	d.mu.Lock()
	delete(d.devicePaths, address)
	d.mu.Unlock()
}

func (d *Daemon) findDevice(args []any) ([]any, error) {
	address, _ := args[0].(string)
	d.mu.Lock()
	path, ok := d.devicePaths[address]
	d.mu.Unlock()
	if ok {
		return []any{path}, nil
	}
	return nil, &bus.CallError{Op: "FindDevice", Path: daemonAdapterPath, Err: bus.ErrNotFound}
}

// createDevice registers an empty device object on the fly, like the
// daemon materializing an unpaired device.
func (d *Daemon) createDevice(args []any) ([]any, error) {
	address, _ := args[0].(string)
	path := DevicePath(address)
	d.mu.Lock()
	d.devicePaths[address] = path
	d.mu.Unlock()
	d.Bus.Install(path, deviceIface).WithProps(NewProps().With("Address", address).Build())
	return []any{path}, nil
}
