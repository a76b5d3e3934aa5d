package scheduler

import (
	"testing"
	"time"

	"github.com/flowmesh/flowmesh/internal/flow"
	"github.com/flowmesh/flowmesh/internal/flow/weekday"
	"github.com/flowmesh/flowmesh/internal/sun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Pins the sun-event scheduling scenario (spec.md §8): a weekday-scoped
// sunrise schedule at a fixed location must emit the same five timestamps
// every time — exercising nextSunEvent's weekday scan and offset
// application without spinning real timers. The reference instant is
// midnight on 2000-08-04 (a Friday, in range) rather than the scenario's
// stated noon, since nextSunEvent only ever returns instants strictly after
// its reference and the first listed emission is that same morning's
// sunrise; each subsequent call feeds the previous result back in as the
// next reference, the way runSunEventLoop re-derives it once per cycle.
func TestNextSunEventEmitsTheScenarioTimestampsForAWeekdayRangeSunriseSchedule(t *testing.T) {
	s := &Scheduler{location: sun.Location{Latitude: 51.9244, Longitude: 4.4777}}
	f := &flow.Flow{
		Name:     "weekday-sunrise",
		Schedule: &flow.Schedule{Kind: flow.ScheduleSunrise, When: weekday.Range(weekday.Wednesday, weekday.Friday), OffsetSec: 0},
	}

	expected := []time.Time{
		time.Date(2000, 8, 4, 4, 10, 14, 0, time.UTC),
		time.Date(2000, 8, 9, 4, 18, 11, 0, time.UTC),
		time.Date(2000, 8, 10, 4, 19, 48, 0, time.UTC),
		time.Date(2000, 8, 11, 4, 21, 24, 0, time.UTC),
		time.Date(2000, 8, 16, 4, 29, 30, 0, time.UTC),
	}

	got := make([]time.Time, 0, len(expected))
	current := time.Date(2000, 8, 4, 0, 0, 0, 0, time.UTC)
	for range expected {
		next, ok := s.nextSunEvent(f, current)
		require.True(t, ok)
		got = append(got, next)
		current = next
	}

	for i, want := range expected {
		assert.WithinDuration(t, want, got[i], time.Second, "emission %d", i)
	}
}

func TestWeekdayIncludedMatchesScheduleWindow(t *testing.T) {
	schedule := &flow.Schedule{Kind: flow.ScheduleSunrise, When: weekday.Range(weekday.Wednesday, weekday.Saturday)}

	wednesday := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) // a Wednesday
	monday := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)    // a Monday

	assert.True(t, weekdayIncluded(schedule, wednesday))
	assert.False(t, weekdayIncluded(schedule, monday))
}
