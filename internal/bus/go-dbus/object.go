package godbus

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/bus"
)

// object is a bus.Object bound to one path and interface. Stateless; the
// connection and router own everything live.
type object struct {
	c     *Conn
	path  dbus.ObjectPath
	iface string
}

func (o *object) Path() string {
	return string(o.path)
}

func (o *object) Interface() string {
	return o.iface
}

func (o *object) busObject() dbus.BusObject {
	return o.c.conn.Object(o.c.service, o.path)
}

// Call invokes iface.method and returns the reply values as plain Go
// values.
func (o *object) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	call := o.busObject().CallWithContext(ctx, o.iface+"."+method, 0, args...)
	if call.Err != nil {
		o.c.log.WithFields(logrus.Fields{
			"path":   o.path,
			"method": method,
		}).WithError(call.Err).Debug("Remote call failed")
		return nil, &bus.CallError{Op: method, Path: string(o.path), Err: bus.Normalize(call.Err)}
	}

	out := make([]any, len(call.Body))
	for i, v := range call.Body {
		out[i] = fromDBus(v)
	}
	return out, nil
}

// GetProperties fetches the object's property bag in one round trip.
func (o *object) GetProperties(ctx context.Context) (map[string]any, error) {
	call := o.busObject().CallWithContext(ctx, o.iface+".GetProperties", 0)
	if call.Err != nil {
		return nil, &bus.CallError{Op: "GetProperties", Path: string(o.path), Err: bus.Normalize(call.Err)}
	}

	var props map[string]dbus.Variant
	if err := call.Store(&props); err != nil {
		return nil, &bus.CallError{Op: "GetProperties", Path: string(o.path), Err: err}
	}

	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = fromDBus(v)
	}
	return out, nil
}

// SetProperty writes one property. The daemon confirms the write with a
// later change signal; the reply only acknowledges acceptance.
func (o *object) SetProperty(ctx context.Context, name string, value any) error {
	call := o.busObject().CallWithContext(ctx, o.iface+".SetProperty", 0, name, dbus.MakeVariant(value))
	if call.Err != nil {
		return &bus.CallError{Op: "SetProperty", Path: string(o.path), Err: bus.Normalize(call.Err)}
	}
	return nil
}

// Subscribe opens a signal stream for this object: one bus match rule plus
// a router entry feeding a drop-oldest buffer.
func (o *object) Subscribe(buffer int) (bus.Subscription, error) {
	if buffer <= 0 {
		buffer = bus.DefaultSignalBuffer
	}

	opts := []dbus.MatchOption{
		dbus.WithMatchSender(o.c.service),
		dbus.WithMatchObjectPath(o.path),
		dbus.WithMatchInterface(o.iface),
	}
	if err := o.c.conn.AddMatchSignal(opts...); err != nil {
		return nil, &bus.CallError{Op: "Subscribe", Path: string(o.path), Err: bus.Normalize(err)}
	}

	s := newSubscription(buffer)
	s.cancelFn = func() {
		if err := o.c.conn.RemoveMatchSignal(opts...); err != nil {
			o.c.log.WithField("path", o.path).WithError(err).Debug("Match rule removal failed")
		}
		o.c.router.remove(string(o.path), s)
	}
	o.c.router.add(string(o.path), s)

	o.c.log.WithFields(logrus.Fields{
		"path":  o.path,
		"iface": o.iface,
	}).Debug("Subscribed to object signals")
	return s, nil
}
