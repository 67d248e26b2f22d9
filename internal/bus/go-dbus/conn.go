// Package godbus implements the bus contract over the D-Bus message bus
// using github.com/godbus/dbus/v5. One Conn wraps one bus connection,
// scopes calls to a single service, and routes that service's signals to
// per-object subscriptions.
package godbus

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/bus"
	"github.com/srg/bluekit/internal/groutine"
)

// signalChanBuffer sizes the raw signal channel registered with the
// connection. The router drains it into per-subscription ring buffers, so
// it only needs to absorb short bursts.
const signalChanBuffer = 128

// Conn is a bus.Connection over D-Bus.
type Conn struct {
	conn    *dbus.Conn
	service string
	log     *logrus.Logger
	router  *router

	mu     sync.Mutex
	closed bool
	sigCh  chan *dbus.Signal
}

// ConnectSystem opens the system bus and scopes calls to service.
func ConnectSystem(service string, logger *logrus.Logger) (*Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, bus.Normalize(err)
	}
	return newConn(conn, service, logger), nil
}

// ConnectSession opens the session bus and scopes calls to service.
func ConnectSession(service string, logger *logrus.Logger) (*Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, bus.Normalize(err)
	}
	return newConn(conn, service, logger), nil
}

// Connect opens the bus at the given address and scopes calls to service.
func Connect(address, service string, logger *logrus.Logger) (*Conn, error) {
	conn, err := dbus.Connect(address)
	if err != nil {
		return nil, bus.Normalize(err)
	}
	return newConn(conn, service, logger), nil
}

func newConn(conn *dbus.Conn, service string, logger *logrus.Logger) *Conn {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Conn{
		conn:    conn,
		service: service,
		log:     logger,
		router:  newRouter(logger),
		sigCh:   make(chan *dbus.Signal, signalChanBuffer),
	}
	conn.Signal(c.sigCh)

	// The signal channel is closed by the D-Bus library when the connection
	// closes; the router then closes every subscription stream.
	groutine.Go(context.Background(), "dbus-signal-router", func(ctx context.Context) {
		for sig := range c.sigCh {
			c.router.dispatch(convertSignal(sig))
		}
		c.router.closeAll()
	})

	return c
}

// Object returns a reference to the object at path speaking iface. No
// remote traffic happens until a call.
func (c *Conn) Object(path, iface string) bus.Object {
	return &object{c: c, path: dbus.ObjectPath(path), iface: iface}
}

// Close terminates the connection. All subscription channels close.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.log.WithField("service", c.service).Debug("Closing bus connection")
	return c.conn.Close()
}
