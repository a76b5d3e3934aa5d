// Package reactive runs every unscheduled flow whenever the device
// snapshot changes, grounded on the original's execute_flows.rs
// (FuturesUnordered-based concurrent fan-out) and the teacher's
// internal/pipeline worker-pool/ctx-cancellation idiom, replacing
// FuturesUnordered with golang.org/x/sync/errgroup.
package reactive

import (
	"context"
	"time"

	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/controller"
	"github.com/flowmesh/flowmesh/internal/dispatch"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/engine"
	"github.com/flowmesh/flowmesh/internal/flow"
	"github.com/flowmesh/flowmesh/internal/store"
	"github.com/flowmesh/flowmesh/internal/sun"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
	"golang.org/x/sync/errgroup"
)

// Pipeline watches the store's published snapshots and, on every change,
// evaluates every reactive (unscheduled) flow concurrently.
type Pipeline struct {
	publisher   *store.Publisher
	registry    *flow.Registry
	controllers *controller.Registry
	scheduler   chan<- bus.SchedulerCommand
	location    sun.Location
	logger      logging.Logger
	observer    engine.RunObserver
}

func New(publisher *store.Publisher, registry *flow.Registry, controllers *controller.Registry, scheduler chan<- bus.SchedulerCommand, location sun.Location, logger logging.Logger, observer engine.RunObserver) *Pipeline {
	return &Pipeline{publisher: publisher, registry: registry, controllers: controllers, scheduler: scheduler, location: location, logger: logger, observer: observer}
}

// Run registers every scheduled flow with the scheduler once, then blocks
// evaluating reactive flows on every subsequent snapshot until ctx is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, f := range p.registry.Scheduled() {
		if err := bus.Send(ctx, p.scheduler, bus.Schedule(f.ID)); err != nil {
			return err
		}
	}

	_, snapshots, cancel := p.publisher.Subscribe()
	defer cancel()

	reactiveFlows := p.registry.Reactive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot := <-snapshots:
			p.runOnce(ctx, snapshot, reactiveFlows)
		}
	}
}

func (p *Pipeline) runOnce(ctx context.Context, snapshot device.Snapshot, flows []*flow.Flow) {
	if len(flows) == 0 {
		return
	}

	now := time.Now()
	sunrise, _ := sun.Sunrise(now, p.location)
	sunset, _ := sun.Sunset(now, p.location)
	execCtx := engine.NewContext(ctx, snapshot, now, sunrise, sunset)

	reports := make([]engine.Report, len(flows))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, f := range flows {
		i, f := i, f
		group.Go(func() error {
			report, err := engine.Execute(f, nil, execCtx, p.scheduler, p.logger, engine.DefaultOptions(), p.observer)
			if err != nil {
				p.logger.WarnCtx(groupCtx, "flow execution failed", "flow", f.Name, "error", err)
				return nil // one flow's failure never aborts the others
			}
			reports[i] = report
			return nil
		})
	}
	_ = group.Wait()

	commandMap := dispatch.MergeReports(ctx, reports, p.logger)
	dispatch.Dispatch(ctx, snapshot, commandMap, p.controllers, p.logger)
}
