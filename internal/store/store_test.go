package store

import (
	"context"
	"log/slog"
	"testing"

	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/domain/number"
	"github.com/flowmesh/flowmesh/internal/domain/property"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger { return logging.New(slog.Default()) }

func testDevice(id string) *device.Device {
	return &device.Device{
		ID: id,
		Properties: map[string]property.Property{
			"on":         property.NewBoolean("on", property.On, false, false),
			"brightness": property.NewNumber("brightness", property.Brightness, false, number.PositiveInt(0), "%", nil, nil),
		},
	}
}

func TestApplyDiscoveredDevicesPublishesASnapshotContainingThem(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	s := New(publisher, testLogger())

	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))

	d, ok := publisher.Latest().Device("d1")
	require.True(t, ok)
	assert.Equal(t, "d1", d.ID)
}

func TestApplyBooleanPropertyChangedUpdatesOnlyTheTargetedProperty(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	s := New(publisher, testLogger())
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))

	s.apply(context.Background(), bus.BooleanPropertyChanged("d1", "on", true))

	d, _ := publisher.Latest().Device("d1")
	on, _ := d.Properties["on"].BoolValue()
	assert.True(t, on)
	brightness, _ := d.Properties["brightness"].NumberValue()
	assert.True(t, brightness.Equal(number.PositiveInt(0)))
}

func TestApplyPropertyChangedOnUnknownDeviceIsANoOpThatStillPublishes(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	s := New(publisher, testLogger())
	before := publisher.Latest()

	s.apply(context.Background(), bus.BooleanPropertyChanged("missing", "on", true))

	after := publisher.Latest()
	assert.Equal(t, before.Version+1, after.Version)
	_, ok := after.Device("missing")
	assert.False(t, ok)
}

func TestApplyPropertyChangedOnUnknownPropertyIsANoOp(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	s := New(publisher, testLogger())
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))
	before, _ := publisher.Latest().Device("d1")

	s.apply(context.Background(), bus.BooleanPropertyChanged("d1", "missing", true))

	after, _ := publisher.Latest().Device("d1")
	assert.Equal(t, before, after)
}

func TestApplyBooleanEventAgainstANumberPropertyIsDroppedNotApplied(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	s := New(publisher, testLogger())
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))
	before, _ := publisher.Latest().Device("d1")
	beforeBrightness, _ := before.Properties["brightness"].NumberValue()

	s.apply(context.Background(), bus.BooleanPropertyChanged("d1", "brightness", true))

	after, _ := publisher.Latest().Device("d1")
	afterBrightness, _ := after.Properties["brightness"].NumberValue()
	assert.True(t, beforeBrightness.Equal(afterBrightness))
}

// Reducer idempotence: re-applying the same observed value produces a
// snapshot whose device state is unchanged (spec.md §8).
func TestApplyTheSameBooleanValueTwiceIsIdempotent(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	s := New(publisher, testLogger())
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))

	s.apply(context.Background(), bus.BooleanPropertyChanged("d1", "on", true))
	first, _ := publisher.Latest().Device("d1")

	s.apply(context.Background(), bus.BooleanPropertyChanged("d1", "on", true))
	second, _ := publisher.Latest().Device("d1")

	assert.Equal(t, first.Properties["on"], second.Properties["on"])
}

// Snapshot immutability: WithDevice never mutates the snapshot it was
// called on, and unaffected devices keep the same pointer (structural
// sharing), per spec.md §4.1/§8.
func TestWithDeviceLeavesThePriorSnapshotUntouchedAndSharesOtherDevices(t *testing.T) {
	original := device.Empty()
	d1 := testDevice("d1")
	d2 := testDevice("d2")
	withD1 := original.WithDevice("d1", d1)
	withBoth := withD1.WithDevice("d2", d2)

	_, ok := withD1.Device("d2")
	assert.False(t, ok, "mutating withBoth must not retroactively affect withD1")

	gotD1, _ := withBoth.Device("d1")
	assert.Same(t, d1, gotD1, "unchanged device must be structurally shared, not copied")
}

func TestPublisherSubscribeReceivesTheLatestSnapshotOnSubscribeAndOnEachPublish(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	_, ch, cancel := publisher.Subscribe()
	defer cancel()

	initial := <-ch
	assert.Equal(t, uint64(0), initial.Version)

	s := New(publisher, testLogger())
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))

	updated := <-ch
	_, ok := updated.Device("d1")
	assert.True(t, ok)
}

func TestPublisherSubscribeCoalescesBackloggedPublishesToTheLatestOnly(t *testing.T) {
	publisher := NewPublisher(device.Empty())
	_, ch, cancel := publisher.Subscribe()
	defer cancel()
	<-ch // drain the initial snapshot

	s := New(publisher, testLogger())
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d1")}))
	s.apply(context.Background(), bus.DiscoveredDevices([]*device.Device{testDevice("d2")}))

	latest := <-ch
	_, hasD1 := latest.Device("d1")
	_, hasD2 := latest.Device("d2")
	assert.True(t, hasD1)
	assert.True(t, hasD2)

	select {
	case <-ch:
		t.Fatal("expected only one coalesced value on the channel")
	default:
	}
}
