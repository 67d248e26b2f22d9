package bluetooth

import "github.com/srg/bluekit/internal/bus"

// Property identifies a cached slot by the name the daemon uses on the
// wire.
type Property string

// Device properties.
const (
	PropName          Property = "Name"
	PropAlias         Property = "Alias"
	PropIcon          Property = "Icon"
	PropClass         Property = "Class"
	PropLegacyPairing Property = "LegacyPairing"
	PropPaired        Property = "Paired"
	PropConnected     Property = "Connected"
	PropTrusted       Property = "Trusted"
	PropBlocked       Property = "Blocked"
	PropUUIDs         Property = "UUIDs"
)

// Adapter properties.
const (
	PropAddress      Property = "Address"
	PropPowered      Property = "Powered"
	PropDiscoverable Property = "Discoverable"
	PropPairable     Property = "Pairable"
	PropDiscovering  Property = "Discovering"
	PropDevices      Property = "Devices"
)

// Change is one observed property update. Value holds the coerced new
// value, already in the cache by the time observers run.
type Change struct {
	Property Property
	Value    any
}

// deviceProps is a Device's cache. The first group is seeded at
// construction or by discovery reports and never touches the daemon; the
// second is fetched once on first access, then kept current by signals.
type deviceProps struct {
	name          string
	alias         string
	icon          string
	class         uint32
	legacyPairing bool
	paired        bool

	connected bool
	trusted   bool
	blocked   bool
	uuids     []string
}

// adapterProps is an Adapter's cache; everything is remote-sourced.
type adapterProps struct {
	address      string
	name         string
	class        uint32
	powered      bool
	discoverable bool
	pairable     bool
	discovering  bool
	devices      []string
}

// Slot tables route a property name onto its typed cache slot. The second
// return is the coerced value observers see; ok=false marks the value
// malformed for that slot. Names absent from a table are ignored.
// A table must cover its entity's full known property set; tests check
// the tables against the constant lists above.

var deviceSlots = map[Property]func(*deviceProps, any) (any, bool){
	PropName: func(p *deviceProps, v any) (any, bool) {
		s, ok := bus.AsString(v)
		if ok {
			p.name = s
		}
		return s, ok
	},
	PropAlias: func(p *deviceProps, v any) (any, bool) {
		s, ok := bus.AsString(v)
		if ok {
			p.alias = s
		}
		return s, ok
	},
	PropIcon: func(p *deviceProps, v any) (any, bool) {
		s, ok := bus.AsString(v)
		if ok {
			p.icon = s
		}
		return s, ok
	},
	PropClass: func(p *deviceProps, v any) (any, bool) {
		n, ok := bus.AsUint32(v)
		if ok {
			p.class = n
		}
		return n, ok
	},
	PropLegacyPairing: func(p *deviceProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.legacyPairing = b
		}
		return b, ok
	},
	PropPaired: func(p *deviceProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.paired = b
		}
		return b, ok
	},
	PropConnected: func(p *deviceProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.connected = b
		}
		return b, ok
	},
	PropTrusted: func(p *deviceProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.trusted = b
		}
		return b, ok
	},
	PropBlocked: func(p *deviceProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.blocked = b
		}
		return b, ok
	},
	PropUUIDs: func(p *deviceProps, v any) (any, bool) {
		s, ok := bus.AsStrings(v)
		if ok {
			p.uuids = s
		}
		return s, ok
	},
}

var adapterSlots = map[Property]func(*adapterProps, any) (any, bool){
	PropAddress: func(p *adapterProps, v any) (any, bool) {
		s, ok := bus.AsString(v)
		if ok {
			p.address = s
		}
		return s, ok
	},
	PropName: func(p *adapterProps, v any) (any, bool) {
		s, ok := bus.AsString(v)
		if ok {
			p.name = s
		}
		return s, ok
	},
	PropClass: func(p *adapterProps, v any) (any, bool) {
		n, ok := bus.AsUint32(v)
		if ok {
			p.class = n
		}
		return n, ok
	},
	PropPowered: func(p *adapterProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.powered = b
		}
		return b, ok
	},
	PropDiscoverable: func(p *adapterProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.discoverable = b
		}
		return b, ok
	},
	PropPairable: func(p *adapterProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.pairable = b
		}
		return b, ok
	},
	PropDiscovering: func(p *adapterProps, v any) (any, bool) {
		b, ok := bus.AsBool(v)
		if ok {
			p.discovering = b
		}
		return b, ok
	},
	PropDevices: func(p *adapterProps, v any) (any, bool) {
		s, ok := bus.AsStrings(v)
		if ok {
			p.devices = s
		}
		return s, ok
	},
}
