// Package store owns the device registry and publishes immutable
// snapshots after every reducer step. Grounded on the teacher's single
// goroutine-per-stage worker style (internal/pipeline's discoveryWorker)
// and the original's property_changed_reducer.rs "unknown device/property
// => log and drop" recovery model.
package store

import (
	"context"
	"sync"

	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/domain/property"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
)

// Publisher is a single-writer, many-reader "latest wins" broadcaster —
// equivalent to a watch channel. Subscribers that are slow only ever see
// the newest snapshot, never a backlog; this is the coalescing behavior
// spec.md §5 requires of the reactive pipeline's snapshot watcher.
type Publisher struct {
	mu      sync.RWMutex
	current device.Snapshot
	subs    map[int]chan device.Snapshot
	nextID  int
}

func NewPublisher(initial device.Snapshot) *Publisher {
	return &Publisher{current: initial, subs: make(map[int]chan device.Snapshot)}
}

// Latest returns the most recently published snapshot.
func (p *Publisher) Latest() device.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel that always holds at most the latest
// snapshot: a non-blocking send drains a stale pending value before
// pushing the new one, so subscribers coalesce rather than queue.
func (p *Publisher) Subscribe() (id int, ch <-chan device.Snapshot, cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id = p.nextID
	p.nextID++
	c := make(chan device.Snapshot, 1)
	c <- p.current
	p.subs[id] = c
	return id, c, func() { p.unsubscribe(id) }
}

func (p *Publisher) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.subs[id]; ok {
		close(c)
		delete(p.subs, id)
	}
}

func (p *Publisher) publish(snapshot device.Snapshot) {
	p.mu.Lock()
	p.current = snapshot
	subs := make([]chan device.Snapshot, 0, len(p.subs))
	for _, c := range p.subs {
		subs = append(subs, c)
	}
	p.mu.Unlock()

	for _, c := range subs {
		select {
		case c <- snapshot:
		default:
			select {
			case <-c:
			default:
			}
			select {
			case c <- snapshot:
			default:
			}
		}
	}
}

// Store serializes all reducer steps on a single goroutine; no external
// lock is exposed, per spec.md §4.1/§5.
type Store struct {
	publisher *Publisher
	logger    logging.Logger
}

func New(publisher *Publisher, logger logging.Logger) *Store {
	return &Store{publisher: publisher, logger: logger}
}

// Run consumes events until ctx is cancelled or events is closed.
func (s *Store) Run(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) apply(ctx context.Context, ev bus.Event) {
	snapshot := s.publisher.Latest()
	switch ev.Kind {
	case bus.EventDiscoveredDevices:
		next := snapshot
		for _, d := range ev.Devices {
			next = next.WithDevice(d.ID, d)
		}
		s.publisher.publish(next)
		s.logger.InfoCtx(ctx, "registered devices", "count", len(ev.Devices))
	case bus.EventBooleanPropertyChanged:
		s.applyPropertyChange(ctx, snapshot, ev.DeviceID, ev.PropertyID, func(p property.Property) (property.Property, error) {
			return p.SetBooleanObserved(ev.Bool)
		})
	case bus.EventNumberPropertyChanged:
		s.applyPropertyChange(ctx, snapshot, ev.DeviceID, ev.PropertyID, func(p property.Property) (property.Property, error) {
			return p.SetNumberObserved(ev.Number)
		})
	case bus.EventColorPropertyChanged:
		s.applyPropertyChange(ctx, snapshot, ev.DeviceID, ev.PropertyID, func(p property.Property) (property.Property, error) {
			return p.SetColorObserved(ev.Color)
		})
	}
}

// applyPropertyChange locates the device and property, applies the typed
// setter, and publishes a new snapshot regardless of outcome (spec.md
// §4.1: "After every applied event (success or ignored), publish a new
// snapshot"). Unknown device/property or wrong variant is logged and the
// event dropped; the reducer never terminates on bad data.
func (s *Store) applyPropertyChange(ctx context.Context, snapshot device.Snapshot, deviceID, propertyID string, set func(property.Property) (property.Property, error)) {
	// A dropped event is published as the next version over the same devices.
	ignored := snapshot
	ignored.Version++
	d, ok := snapshot.Device(deviceID)
	if !ok {
		s.logger.ErrorCtx(ctx, "property changed event for unknown device", "device_id", deviceID)
		s.publisher.publish(ignored)
		return
	}
	prop, ok := d.Properties[propertyID]
	if !ok {
		s.logger.ErrorCtx(ctx, "unknown property for device", "device_id", deviceID, "property_id", propertyID)
		s.publisher.publish(ignored)
		return
	}
	updated, err := set(prop)
	if err != nil {
		s.logger.ErrorCtx(ctx, "could not set property value", "device_id", deviceID, "property_id", propertyID, "error", err)
		s.publisher.publish(ignored)
		return
	}
	clone := d.Clone()
	clone.Properties[propertyID] = updated
	s.publisher.publish(snapshot.WithDevice(deviceID, clone))
}
