// Package scheduler runs scheduled and sleep-resumed flows, grounded on
// the original's flow_engine/scheduler.rs "one spawned job loop per
// command" pattern, translated from tokio::spawn to goroutines and from
// the tokio::time sleep_until idiom to context-aware timers.
package scheduler

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/controller"
	"github.com/flowmesh/flowmesh/internal/dispatch"
	"github.com/flowmesh/flowmesh/internal/engine"
	"github.com/flowmesh/flowmesh/internal/flow"
	"github.com/flowmesh/flowmesh/internal/flow/weekday"
	"github.com/flowmesh/flowmesh/internal/store"
	"github.com/flowmesh/flowmesh/internal/sun"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler consumes bus.SchedulerCommand and spawns one long-lived job
// goroutine per command — a cron iterator, a sun-event iterator, or a
// one-shot sleep timer for a flow resuming from a Sleep node.
type Scheduler struct {
	commands    chan bus.SchedulerCommand
	publisher   *store.Publisher
	registry    *flow.Registry
	controllers *controller.Registry
	location    sun.Location
	logger      logging.Logger
	observer    engine.RunObserver
	now         func() time.Time
}

func New(commands chan bus.SchedulerCommand, publisher *store.Publisher, registry *flow.Registry, controllers *controller.Registry, location sun.Location, logger logging.Logger, observer engine.RunObserver) *Scheduler {
	return &Scheduler{commands: commands, publisher: publisher, registry: registry, controllers: controllers, location: location, logger: logger, observer: observer, now: time.Now}
}

// Commands returns the channel other components (the reactive pipeline,
// flow engine sleep nodes) send bus.SchedulerCommand values on.
func (s *Scheduler) Commands() chan<- bus.SchedulerCommand { return s.commands }

func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.commands:
			s.dispatch(ctx, cmd)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, cmd bus.SchedulerCommand) {
	switch cmd.Kind {
	case bus.CommandSchedule:
		s.scheduleRecurring(ctx, cmd.FlowID)
	case bus.CommandScheduleOnce:
		s.scheduleOnce(ctx, cmd.FlowID, cmd.NodeID, cmd.Delay)
	}
}

func (s *Scheduler) scheduleRecurring(ctx context.Context, flowID string) {
	f, ok := s.registry.Get(flowID)
	if !ok {
		s.logger.WarnCtx(ctx, "scheduling flow failed, flow not found", "flow_id", flowID)
		return
	}
	if f.Schedule == nil {
		s.logger.ErrorCtx(ctx, "scheduling flow failed, not a scheduled flow", "flow", f.Name)
		return
	}

	switch f.Schedule.Kind {
	case flow.ScheduleCron:
		schedule, err := cronParser.Parse(f.Schedule.Cron)
		if err != nil {
			s.logger.WarnCtx(ctx, "scheduling flow failed, invalid cron expression", "flow", f.Name, "cron", f.Schedule.Cron, "error", err)
			return
		}
		go s.runCronLoop(ctx, f, schedule)
	default: // ScheduleSunrise, ScheduleSunset
		go s.runSunEventLoop(ctx, f)
	}
	s.logger.InfoCtx(ctx, "scheduled flow", "flow", f.Name)
}

func (s *Scheduler) runCronLoop(ctx context.Context, f *flow.Flow, schedule cron.Schedule) {
	next := schedule.Next(s.now())
	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runFlow(ctx, f, nil)
			next = schedule.Next(s.now())
		}
	}
}

// runSunEventLoop derives the next sunrise or sunset, sleeps until that
// instant, runs the flow, and repeats, honoring the schedule's weekday
// condition and offset (spec.md §4.6).
func (s *Scheduler) runSunEventLoop(ctx context.Context, f *flow.Flow) {
	for {
		from := s.now()
		next, ok := s.nextSunEvent(f, from)
		if !ok {
			// No event in the scanned days (polar day/night, or an empty
			// weekday set): check again after a day rather than busy-looping.
			next = from.Add(24 * time.Hour)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if ok {
				s.runFlow(ctx, f, nil)
			}
		}
	}
}

// nextSunEvent finds the next sunrise or sunset after from matching f's
// weekday condition, scanning up to 8 days ahead to cover a full
// weekday-range schedule. from is an explicit parameter (rather than reading
// the clock internally) so it can be pinned exactly in a test.
func (s *Scheduler) nextSunEvent(f *flow.Flow, from time.Time) (time.Time, bool) {
	for dayOffset := 0; dayOffset < 8; dayOffset++ {
		day := from.AddDate(0, 0, dayOffset)
		if !weekdayIncluded(f.Schedule, day) {
			continue
		}
		var eventTime time.Time
		var ok bool
		switch f.Schedule.Kind {
		case flow.ScheduleSunrise:
			eventTime, ok = sun.Sunrise(day, s.location)
		default:
			eventTime, ok = sun.Sunset(day, s.location)
		}
		if !ok {
			continue
		}
		eventTime = eventTime.Add(time.Duration(f.Schedule.OffsetSec) * time.Second)
		if eventTime.After(from) {
			return eventTime, true
		}
	}
	return time.Time{}, false
}

func (s *Scheduler) scheduleOnce(ctx context.Context, flowID, nodeID string, delay time.Duration) {
	f, ok := s.registry.Get(flowID)
	if !ok {
		s.logger.WarnCtx(ctx, "scheduling flow resume failed, flow not found", "flow_id", flowID)
		return
	}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runFlow(ctx, f, &nodeID)
		}
	}()
}

func (s *Scheduler) runFlow(ctx context.Context, f *flow.Flow, resumeNodeID *string) {
	runID := uuid.NewString()
	snapshot := s.publisher.Latest()
	now := s.now()
	sunrise, _ := sun.Sunrise(now, s.location)
	sunset, _ := sun.Sunset(now, s.location)
	execCtx := engine.NewContext(ctx, snapshot, now, sunrise, sunset)

	s.logger.DebugCtx(ctx, "running scheduled flow", "flow", f.Name, "run_id", runID)
	report, err := engine.Execute(f, resumeNodeID, execCtx, s.commands, s.logger, engine.DefaultOptions(), s.observer)
	if err != nil {
		s.logger.WarnCtx(ctx, "scheduled flow execution failed", "flow", f.Name, "run_id", runID, "error", err)
		return
	}

	commandMap := dispatch.MergeReports(ctx, []engine.Report{report}, s.logger)
	dispatch.Dispatch(ctx, snapshot, commandMap, s.controllers, s.logger)
}

func weekdayIncluded(schedule *flow.Schedule, day time.Time) bool {
	today := weekday.FromTime(day)
	for _, d := range schedule.When.IncludedDays() {
		if d == today {
			return true
		}
	}
	return false
}
