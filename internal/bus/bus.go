// Package bus defines the client-side contract to an inter-process object
// bus: a connection exposing remote objects addressable by path and
// interface, with method calls, a one-shot property snapshot, property
// writes, and signal subscriptions.
//
// Implementations adapt a concrete transport (see go-dbus); consumers stay
// transport-agnostic. Values crossing this boundary are plain Go values:
// string, bool, numeric types, []string, map[string]any, map[uint32]string.
// Transports unwrap their variant and object-path types at the edge.
package bus

import "context"

// DefaultSignalBuffer is the subscription buffer used when callers have no
// reason to pick another size.
const DefaultSignalBuffer = 32

// Connection is an open session to the bus.
type Connection interface {
	// Object returns a reference to the remote object at path, speaking
	// iface. The reference is cheap; no remote traffic happens until a call.
	Object(path, iface string) Object

	// Close terminates the session. All subscriptions are cancelled and
	// their channels closed.
	Close() error
}

// Object is a remote object reference bound to a single interface.
type Object interface {
	// Path returns the object path this reference points at.
	Path() string

	// Interface returns the interface name calls are issued against.
	Interface() string

	// Call invokes a method and returns its reply values.
	Call(ctx context.Context, method string, args ...any) ([]any, error)

	// GetProperties fetches the full property bag in one round trip.
	GetProperties(ctx context.Context) (map[string]any, error)

	// SetProperty writes a single property. The write is confirmed by a
	// later change signal, not by this call returning.
	SetProperty(ctx context.Context, name string, value any) error

	// Subscribe opens a signal stream for this object. buffer bounds the
	// stream; the oldest signal is dropped on overflow so emitters never
	// block.
	Subscribe(buffer int) (Subscription, error)
}

// Subscription is a live signal stream. C is closed by Cancel and by
// Connection.Close.
type Subscription interface {
	C() <-chan Signal
	Cancel()
}

// Signal is one emission from a remote object.
type Signal struct {
	Path   string
	Member string
	Body   []any
}

// NameValue decodes a property-change shaped body: a property name followed
// by its new value.
func (s Signal) NameValue() (name string, value any, ok bool) {
	if len(s.Body) < 2 {
		return "", nil, false
	}
	name, ok = s.Body[0].(string)
	if !ok {
		return "", nil, false
	}
	return name, s.Body[1], true
}

// StringArg returns body argument i as a string.
func (s Signal) StringArg(i int) (string, bool) {
	if i < 0 || i >= len(s.Body) {
		return "", false
	}
	v, ok := s.Body[i].(string)
	return v, ok
}

// MapArg returns body argument i as a property map.
func (s Signal) MapArg(i int) (map[string]any, bool) {
	if i < 0 || i >= len(s.Body) {
		return nil, false
	}
	v, ok := s.Body[i].(map[string]any)
	return v, ok
}
