package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/bluekit/internal/bus"
)

// FakeBus is an in-process object bus for tests. Objects are installed and
// scripted with canned replies and property bags; every call is recorded,
// and signals are injected with Emit. It implements bus.Connection.
type FakeBus struct {
	mu      sync.Mutex
	objects map[objectKey]*FakeObject
	closed  bool
}

type objectKey struct {
	path  string
	iface string
}

func NewFakeBus() *FakeBus {
	return &FakeBus{objects: make(map[objectKey]*FakeObject)}
}

// Install returns the scriptable object at path/iface, creating it empty on
// first use. Tests script through the returned *FakeObject; code under test
// reaches the same object through Connection.Object.
func (b *FakeBus) Install(path, iface string) *FakeObject {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := objectKey{path: path, iface: iface}
	if o, ok := b.objects[key]; ok {
		return o
	}
	o := &FakeObject{
		bus:        b,
		path:       path,
		iface:      iface,
		sticky:     make(map[string]scriptedReply),
		queued:     make(map[string][]scriptedReply),
		replyFuncs: make(map[string]ReplyFunc),
	}
	b.objects[key] = o
	return o
}

// Object implements bus.Connection.
func (b *FakeBus) Object(path, iface string) bus.Object {
	return b.Install(path, iface)
}

// Close implements bus.Connection: every subscription channel closes and
// later operations fail with ErrClosed.
func (b *FakeBus) Close() error {
	b.mu.Lock()
	objects := make([]*FakeObject, 0, len(b.objects))
	for _, o := range b.objects {
		objects = append(objects, o)
	}
	b.closed = true
	b.mu.Unlock()

	for _, o := range objects {
		o.cancelAllSubs()
	}
	return nil
}

func (b *FakeBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// ReplyFunc computes a reply from the call arguments, for methods whose
// result depends on input (lookups keyed by address).
type ReplyFunc func(args []any) ([]any, error)

type scriptedReply struct {
	values []any
	err    error
}

// CallRecord is one recorded method invocation.
type CallRecord struct {
	Method string
	Args   []any
}

// SetRecord is one recorded property write.
type SetRecord struct {
	Name  string
	Value any
}

// FakeObject is a scripted remote object. Reply precedence per method:
// queued one-shots, then the reply func, then the sticky reply, then a
// not-found call error.
type FakeObject struct {
	bus   *FakeBus
	path  string
	iface string

	mu         sync.Mutex
	props      map[string]any
	propsErr   error
	setErr     error
	subErr     error
	sticky     map[string]scriptedReply
	queued     map[string][]scriptedReply
	replyFuncs map[string]ReplyFunc

	calls      []CallRecord
	sets       []SetRecord
	propsCalls int
	subsMade   int
	subs       []*fakeSubscription
}

// Scripting.

// WithProps sets the bag GetProperties serves.
func (o *FakeObject) WithProps(props map[string]any) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.props = props
	return o
}

// WithPropsError makes GetProperties fail until cleared with nil.
func (o *FakeObject) WithPropsError(err error) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.propsErr = err
	return o
}

// WithSetError makes SetProperty fail until cleared with nil.
func (o *FakeObject) WithSetError(err error) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setErr = err
	return o
}

// WithSubscribeError makes Subscribe fail until cleared with nil.
func (o *FakeObject) WithSubscribeError(err error) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subErr = err
	return o
}

// WithReply scripts a sticky reply for method, served on every call.
func (o *FakeObject) WithReply(method string, values ...any) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sticky[method] = scriptedReply{values: values}
	return o
}

// WithError scripts a sticky error for method.
func (o *FakeObject) WithError(method string, err error) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sticky[method] = scriptedReply{err: err}
	return o
}

// WithReplyOnce queues a reply consumed by a single call, ahead of any
// sticky script.
func (o *FakeObject) WithReplyOnce(method string, values ...any) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued[method] = append(o.queued[method], scriptedReply{values: values})
	return o
}

// WithErrorOnce queues an error consumed by a single call.
func (o *FakeObject) WithErrorOnce(method string, err error) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queued[method] = append(o.queued[method], scriptedReply{err: err})
	return o
}

// WithReplyFunc scripts a computed reply for method.
func (o *FakeObject) WithReplyFunc(method string, fn ReplyFunc) *FakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replyFuncs[method] = fn
	return o
}

// Recording accessors.

// CallCount returns how many times method was invoked.
func (o *FakeObject) CallCount(method string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Calls returns the recorded arguments of every invocation of method.
func (o *FakeObject) Calls(method string) [][]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out [][]any
	for _, c := range o.calls {
		if c.Method == method {
			out = append(out, c.Args)
		}
	}
	return out
}

// TotalCalls returns the number of method invocations of any name.
func (o *FakeObject) TotalCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

// GetPropertiesCount returns how many snapshots were served or attempted.
func (o *FakeObject) GetPropertiesCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.propsCalls
}

// SubscribeCount returns how many subscriptions were opened.
func (o *FakeObject) SubscribeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subsMade
}

// Sets returns the recorded property writes in order.
func (o *FakeObject) Sets() []SetRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SetRecord(nil), o.sets...)
}

// Emit injects a signal to every live subscription of this object. The
// per-subscription buffer drops its oldest entry on overflow, like the real
// transport.
func (o *FakeObject) Emit(member string, body ...any) {
	sig := bus.Signal{Path: o.path, Member: member, Body: body}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.subs {
		if s.cancelled {
			continue
		}
		select {
		case s.ch <- sig:
		default:
			select {
			case <-s.ch:
			default:
			}
			s.ch <- sig
		}
	}
}

// bus.Object implementation.

func (o *FakeObject) Path() string      { return o.path }
func (o *FakeObject) Interface() string { return o.iface }

func (o *FakeObject) Call(_ context.Context, method string, args ...any) ([]any, error) {
	if o.bus.isClosed() {
		return nil, &bus.CallError{Op: method, Path: o.path, Err: bus.ErrClosed}
	}

	o.mu.Lock()
	o.calls = append(o.calls, CallRecord{Method: method, Args: args})

	if q := o.queued[method]; len(q) > 0 {
		reply := q[0]
		o.queued[method] = q[1:]
		o.mu.Unlock()
		return reply.values, reply.err
	}
	fn := o.replyFuncs[method]
	reply, scripted := o.sticky[method]
	o.mu.Unlock()

	if fn != nil {
		return fn(args)
	}
	if scripted {
		return reply.values, reply.err
	}
	return nil, &bus.CallError{Op: method, Path: o.path, Err: bus.ErrNotFound}
}

func (o *FakeObject) GetProperties(_ context.Context) (map[string]any, error) {
	if o.bus.isClosed() {
		return nil, &bus.CallError{Op: "GetProperties", Path: o.path, Err: bus.ErrClosed}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.propsCalls++
	if o.propsErr != nil {
		return nil, o.propsErr
	}
	out := make(map[string]any, len(o.props))
	for k, v := range o.props {
		out[k] = v
	}
	return out, nil
}

func (o *FakeObject) SetProperty(_ context.Context, name string, value any) error {
	if o.bus.isClosed() {
		return &bus.CallError{Op: "SetProperty", Path: o.path, Err: bus.ErrClosed}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.sets = append(o.sets, SetRecord{Name: name, Value: value})
	return o.setErr
}

func (o *FakeObject) Subscribe(buffer int) (bus.Subscription, error) {
	if o.bus.isClosed() {
		return nil, fmt.Errorf("subscribe %s: %w", o.path, bus.ErrClosed)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subErr != nil {
		return nil, o.subErr
	}
	if buffer <= 0 {
		buffer = bus.DefaultSignalBuffer
	}
	s := &fakeSubscription{obj: o, ch: make(chan bus.Signal, buffer)}
	o.subs = append(o.subs, s)
	o.subsMade++
	return s, nil
}

func (o *FakeObject) cancelAllSubs() {
	o.mu.Lock()
	subs := append([]*fakeSubscription(nil), o.subs...)
	o.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
}

type fakeSubscription struct {
	obj       *FakeObject
	ch        chan bus.Signal
	cancelled bool // guarded by obj.mu
}

func (s *fakeSubscription) C() <-chan bus.Signal { return s.ch }

func (s *fakeSubscription) Cancel() {
	s.obj.mu.Lock()
	defer s.obj.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	for i, cur := range s.obj.subs {
		if cur == s {
			s.obj.subs = append(s.obj.subs[:i:i], s.obj.subs[i+1:]...)
			break
		}
	}
	close(s.ch)
}
