// Package bluetooth exposes the objects of a Bluetooth management daemon
// as local handles. A handle is constructed from a stable identity (device
// MAC address, adapter id) without touching the daemon; the first operation
// that needs the remote object binds it, subscribes to its change signals,
// and fetches the full property bag exactly once. From then on the cache is
// kept current by the daemon's property-change signals.
//
// Reads of cached properties never fail: when the daemon is unreachable
// they degrade to the last known (or zero) value. Writes and pass-through
// operations report failures as typed errors. Writes never update the
// cache directly; the daemon's confirming change signal does.
package bluetooth

import (
	"fmt"
	"strings"
)

// ServiceName is the well-known bus name of the management daemon.
const ServiceName = "org.bluez"

// RootPath is where the daemon's manager object lives.
const RootPath = "/"

const (
	managerIface = "org.bluez.Manager"
	adapterIface = "org.bluez.Adapter"
	deviceIface  = "org.bluez.Device"
)

// Daemon methods.
const (
	methodListAdapters     = "ListAdapters"
	methodDefaultAdapter   = "DefaultAdapter"
	methodFindAdapter      = "FindAdapter"
	methodFindDevice       = "FindDevice"
	methodCreateDevice     = "CreateDevice"
	methodRemoveDevice     = "RemoveDevice"
	methodListDevices      = "ListDevices"
	methodStartDiscovery   = "StartDiscovery"
	methodStopDiscovery    = "StopDiscovery"
	methodDiscoverServices = "DiscoverServices"
	methodCancelDiscovery  = "CancelDiscovery"
	methodDisconnect       = "Disconnect"
)

// Daemon signals.
const (
	signalPropertyChanged       = "PropertyChanged"
	signalDeviceFound           = "DeviceFound"
	signalDeviceDisappeared     = "DeviceDisappeared"
	signalDeviceCreated         = "DeviceCreated"
	signalDeviceRemoved         = "DeviceRemoved"
	signalDisconnectRequested   = "DisconnectRequested"
	signalAdapterAdded          = "AdapterAdded"
	signalAdapterRemoved        = "AdapterRemoved"
	signalDefaultAdapterChanged = "DefaultAdapterChanged"
)

// NormalizeAddress canonicalizes a device MAC address: uppercase hex,
// colon-separated. Dash separators are accepted on input.
func NormalizeAddress(address string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(address))
	s = strings.ReplaceAll(s, "-", ":")

	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for _, p := range parts {
		if len(p) != 2 || !isHexByte(p) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	return strings.Join(parts, ":"), nil
}

// ValidateAddress reports whether address is a MAC address NormalizeAddress
// accepts.
func ValidateAddress(address string) error {
	_, err := NormalizeAddress(address)
	return err
}

func isHexByte(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// addressFromPath derives a device MAC address from its daemon object path
// (".../dev_00_11_22_33_44_55"). Returns false for paths that do not carry
// one.
func addressFromPath(path string) (string, bool) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", false
	}
	leaf := path[i+1:]
	if !strings.HasPrefix(leaf, "dev_") {
		return "", false
	}
	addr, err := NormalizeAddress(strings.ReplaceAll(strings.TrimPrefix(leaf, "dev_"), "_", ":"))
	if err != nil {
		return "", false
	}
	return addr, true
}
