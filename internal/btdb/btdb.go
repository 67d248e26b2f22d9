// Package btdb maps Bluetooth service-class UUIDs to their assigned names.
// The table covers the classic profiles a management daemon reports in
// device UUID lists; unknown UUIDs simply have no name.
package btdb

import "strings"

// sigBasePrefix/sigBaseSuffix frame the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb in normalized (dashless) form.
const (
	sigBasePrefix = "0000"
	sigBaseSuffix = "00001000800000805f9b34fb"
)

// serviceNames is keyed by normalized short-form UUID.
var serviceNames = map[string]string{
	"1000": "Service Discovery Server",
	"1101": "Serial Port",
	"1103": "Dialup Networking",
	"1105": "OBEX Object Push",
	"1106": "OBEX File Transfer",
	"1108": "Headset",
	"110a": "Audio Source",
	"110b": "Audio Sink",
	"110c": "A/V Remote Control Target",
	"110e": "A/V Remote Control",
	"1112": "Headset Audio Gateway",
	"1115": "PANU",
	"1116": "NAP",
	"1117": "GN",
	"111e": "Handsfree",
	"111f": "Handsfree Audio Gateway",
	"1124": "Human Interface Device",
	"112d": "SIM Access",
	"112f": "Phonebook Access Server",
	"1132": "Message Access Server",
	"1200": "PnP Information",
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1812": "HID over GATT",
}

// NormalizeUUID converts a UUID string to lookup form: lowercase, no
// dashes, no braces, no 0x prefix. Full 128-bit UUIDs on the Bluetooth SIG
// base collapse to their 16-bit short form; other 128-bit UUIDs stay full.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, sigBasePrefix) && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the assigned name for a service-class UUID in any
// accepted form, or "" when the UUID is not in the table.
func LookupService(uuid string) string {
	return serviceNames[NormalizeUUID(uuid)]
}

// Annotate renders a UUID with its assigned name when one is known:
// "110b (Audio Sink)". Unknown UUIDs render normalized, bare.
func Annotate(uuid string) string {
	n := NormalizeUUID(uuid)
	if name := serviceNames[n]; name != "" {
		return n + " (" + name + ")"
	}
	return n
}

// ShortName returns just the assigned name when one is known, the
// normalized form otherwise. Suited to compact table cells.
func ShortName(uuid string) string {
	n := NormalizeUUID(uuid)
	if name := serviceNames[n]; name != "" {
		return name
	}
	return n
}
