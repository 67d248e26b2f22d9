package bluetooth

import (
	"context"
	"errors"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluekit/internal/btdb"
)

// discoveryEventBuffer bounds the per-adapter event stream; the oldest
// entry is dropped when a consumer lags.
const discoveryEventBuffer = 100

// ProgressCallback is called when the discovery phase changes.
type ProgressCallback func(phase string)

// DiscoveryEventType marks whether a report is for a newly seen device, a
// repeat sighting, or a device that went quiet.
type DiscoveryEventType int

const (
	EventNew DiscoveryEventType = iota
	EventUpdated
	EventLost
)

// DiscoveryEvent is one entry in the discovery stream.
type DiscoveryEvent struct {
	Type    DiscoveryEventType
	Address string
	RSSI    int16
	Device  *Device // nil for EventLost
}

// DiscoverOptions configures a discovery session.
type DiscoverOptions struct {
	Duration     time.Duration
	AllowList    []string // admit only these addresses
	BlockList    []string // reject these addresses
	ServiceUUIDs []string // require at least one advertised service to match
}

// DefaultDiscoverOptions returns the options Discover uses when given nil.
func DefaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{
		Duration: 10 * time.Second,
	}
}

// Discover drives one bounded discovery session: StartDiscovery, collect
// the daemon's reports for the configured duration (or until ctx ends),
// StopDiscovery. Filtered reports stream out on DiscoveryEvents; the
// returned map holds the final snapshot keyed by address. Context
// cancellation ends the session early without error.
func (a *Adapter) Discover(ctx context.Context, opts *DiscoverOptions, progress ProgressCallback) (map[string]DeviceInfo, error) {
	if opts == nil {
		opts = DefaultDiscoverOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}

	filter := newDiscoveryFilter(opts)
	seen := hashmap.New[string, *Device]()

	remove := a.observeDiscovery(
		func(d *Device, rssi int16) {
			if !filter.admit(d) {
				return
			}
			event := DiscoveryEvent{Address: d.Address(), RSSI: rssi, Device: d}
			if _, existed := seen.GetOrInsert(d.Address(), d); existed {
				event.Type = EventUpdated
			} else {
				event.Type = EventNew
				a.core.log.WithFields(logrus.Fields{
					"address": d.Address(),
					"name":    d.Name(),
					"rssi":    rssi,
				}).Info("Discovered device")
			}
			a.events.Send(event)
		},
		func(address string) {
			if _, ok := seen.Get(address); ok {
				a.events.Send(DiscoveryEvent{Type: EventLost, Address: address})
			}
		},
	)
	defer remove()

	a.core.log.WithField("duration", opts.Duration).Info("Starting discovery")
	progress("Discovering")

	if err := a.StartDiscovery(ctx); err != nil {
		return nil, err
	}

	select {
	case <-time.After(opts.Duration):
	case <-ctx.Done():
	}

	// Stop must go through even when the session context is already done.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.StopDiscovery(stopCtx); err != nil {
		a.core.log.WithError(err).Warn("Discovery stop failed")
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	a.core.log.WithField("device_count", seen.Len()).Info("Discovery completed")
	progress("Processing results")

	results := make(map[string]DeviceInfo, seen.Len())
	seen.Range(func(address string, d *Device) bool {
		results[address] = d.Info()
		return true
	})
	return results, nil
}

// DiscoveryEvents returns the adapter's discovery stream. The buffer drops
// its oldest entry under backpressure; the channel never closes.
func (a *Adapter) DiscoveryEvents() <-chan DiscoveryEvent {
	return a.events.C()
}

// discoveryFilter applies allow/block/service admission rules.
type discoveryFilter struct {
	allow    map[string]struct{}
	block    map[string]struct{}
	services map[string]struct{}
}

func newDiscoveryFilter(opts *DiscoverOptions) *discoveryFilter {
	f := &discoveryFilter{}
	if len(opts.AllowList) > 0 {
		f.allow = make(map[string]struct{}, len(opts.AllowList))
		for _, a := range opts.AllowList {
			if normalized, err := NormalizeAddress(a); err == nil {
				f.allow[normalized] = struct{}{}
			}
		}
	}
	if len(opts.BlockList) > 0 {
		f.block = make(map[string]struct{}, len(opts.BlockList))
		for _, a := range opts.BlockList {
			if normalized, err := NormalizeAddress(a); err == nil {
				f.block[normalized] = struct{}{}
			}
		}
	}
	if len(opts.ServiceUUIDs) > 0 {
		f.services = make(map[string]struct{}, len(opts.ServiceUUIDs))
		for _, u := range opts.ServiceUUIDs {
			f.services[btdb.NormalizeUUID(u)] = struct{}{}
		}
	}
	return f
}

func (f *discoveryFilter) admit(d *Device) bool {
	address := d.Address()
	if _, blocked := f.block[address]; blocked {
		return false
	}
	if f.allow != nil {
		if _, allowed := f.allow[address]; !allowed {
			return false
		}
	}
	if f.services != nil {
		matched := false
		for _, u := range d.cachedUUIDs() {
			if _, ok := f.services[btdb.NormalizeUUID(u)]; ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
