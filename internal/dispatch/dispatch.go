// Package dispatch merges flow-execution reports into a single per-device
// command map and hands each device's merged write to its controller
// (spec.md §4.8/§4.9), grounded on the original's execute_flows.rs
// merge_command_maps/dispatch_commands pair.
package dispatch

import (
	"context"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/controller"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/engine"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
)

// MergeReports combines the command maps of reports that ran concurrently,
// in arrival order. A later report's write to the same device+property
// overwrites an earlier one; spec.md §4.8 calls this inherently
// non-deterministic across flows and asks only that it be observable, so
// every override is logged as a warning naming both flows.
func MergeReports(ctx context.Context, reports []engine.Report, logger logging.Logger) action.CommandMap {
	merged := action.CommandMap{}
	owner := map[string]map[string]string{} // device -> property -> owning flow id

	for _, report := range reports {
		if report.Scope == nil {
			continue
		}
		for deviceID, properties := range report.Scope.CommandMap() {
			target, ok := merged[deviceID]
			if !ok {
				target = map[string]action.PropertyValue{}
				merged[deviceID] = target
				owner[deviceID] = map[string]string{}
			}
			for propertyID, pv := range properties {
				if previousFlow, exists := owner[deviceID][propertyID]; exists {
					logger.WarnCtx(ctx, "command map override across flows", "device_id", deviceID, "property", propertyID, "previous_flow", previousFlow, "next_flow", report.FlowID)
				}
				target[propertyID] = pv
				owner[deviceID][propertyID] = report.FlowID
			}
		}
	}
	return merged
}

// Dispatch resolves each device's controller from the current snapshot and
// fires its merged command. A device with no controller, or an unknown
// device id, is logged and skipped rather than failing the whole batch.
func Dispatch(ctx context.Context, snapshot device.Snapshot, commandMap action.CommandMap, controllers *controller.Registry, logger logging.Logger) {
	for deviceID, properties := range commandMap {
		d, ok := snapshot.Device(deviceID)
		if !ok {
			logger.WarnCtx(ctx, "dispatch: unknown device", "device_id", deviceID)
			continue
		}
		if d.ControllerID == nil {
			logger.WarnCtx(ctx, "dispatch: device is not tied to a controller", "device_id", deviceID)
			continue
		}
		ctrl, ok := controllers.Get(*d.ControllerID)
		if !ok {
			logger.WarnCtx(ctx, "dispatch: unknown controller", "device_id", deviceID, "controller_id", *d.ControllerID)
			continue
		}
		cmd := controller.Command{DeviceID: deviceID, Properties: properties}
		if err := ctrl.Execute(ctx, cmd); err != nil {
			logger.ErrorCtx(ctx, "dispatch: controller execution failed", "device_id", deviceID, "controller_id", *d.ControllerID, "error", err)
		}
	}
}
