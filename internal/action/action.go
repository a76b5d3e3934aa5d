// Package action implements the two built-in flow actions (spec.md §4.5)
// and the Scope they mutate. Grounded on the original's action.rs/
// action_registry.rs discriminated-union shape, reworked per spec.md §9 to
// avoid both the original's process-wide LazyLock registry and a
// type-erased scope: the registry is an explicit constructed handle, and
// Scope is a concrete struct with a named CommandMap field rather than a
// map[string]any.
package action

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/internal/domain/color"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/domain/number"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
)

// Context is the minimal view an action needs of the current execution:
// the device snapshot to validate against.
type Context interface {
	Snapshot() device.Snapshot
	GoContext() context.Context
}

// PropertyValueKind discriminates the PropertyValue sum (spec.md §3).
type PropertyValueKind int

const (
	SetBoolean PropertyValueKind = iota
	ToggleBoolean
	SetNumber
	IncrementNumber
	DecrementNumber
	SetColor
)

// PropertyValue is the closed sum a ControlDevice command carries per
// property.
type PropertyValue struct {
	Kind   PropertyValueKind
	Bool   bool
	Number number.Number
	Color  color.Color
}

func (v PropertyValue) String() string {
	switch v.Kind {
	case SetBoolean:
		return fmt.Sprintf("SetBoolean(%v)", v.Bool)
	case ToggleBoolean:
		return "ToggleBoolean"
	case SetNumber:
		return fmt.Sprintf("SetNumber(%s)", v.Number)
	case IncrementNumber:
		return fmt.Sprintf("IncrementNumber(%s)", v.Number)
	case DecrementNumber:
		return fmt.Sprintf("DecrementNumber(%s)", v.Number)
	default:
		return fmt.Sprintf("SetColor(%s)", v.Color)
	}
}

// CommandMap is the scope's accumulator: device id -> property name ->
// proposed write, exactly as spec.md §3/§4.5 describes it.
type CommandMap map[string]map[string]PropertyValue

// Scope is the per-execution typed accumulator actions write into. It
// replaces the original's type-erased map per spec.md §9.
type Scope struct {
	commandMap CommandMap
}

func NewScope() *Scope { return &Scope{commandMap: CommandMap{}} }

func (s *Scope) CommandMap() CommandMap { return s.commandMap }

// Action is the sealed interface flow nodes invoke.
type Action interface {
	Kind() string
	Execute(ctx Context, scope *Scope, logger logging.Logger) error
}

// LogAction is a side-effect-only action: it emits an informational log
// line and never touches the scope.
type LogAction struct{ Message string }

func (LogAction) Kind() string { return "log" }

func (a LogAction) Execute(ctx Context, _ *Scope, logger logging.Logger) error {
	logger.InfoCtx(ctx.GoContext(), a.Message)
	return nil
}

// ControlDeviceAction proposes property writes for a single device; its
// accumulated effect lives in the scope's CommandMap until the reactive
// pipeline merges it with other flows' reports (spec.md §4.8).
type ControlDeviceAction struct {
	DeviceID   string
	Properties map[string]PropertyValue
}

func (ControlDeviceAction) Kind() string { return "controlDevice" }

func (a ControlDeviceAction) Execute(ctx Context, scope *Scope, logger logging.Logger) error {
	if _, ok := ctx.Snapshot().Device(a.DeviceID); !ok {
		return fmt.Errorf("control device action: unknown device '%s'", a.DeviceID)
	}
	perDevice, ok := scope.commandMap[a.DeviceID]
	if !ok {
		perDevice = map[string]PropertyValue{}
		scope.commandMap[a.DeviceID] = perDevice
	}
	for name, pv := range a.Properties {
		if previous, exists := perDevice[name]; exists {
			logger.WarnCtx(ctx.GoContext(), "command map override", "device_id", a.DeviceID, "property", name, "previous", previous.String(), "next", pv.String())
		}
		perDevice[name] = pv
	}
	return nil
}
