// Package controller defines the boundary between a dispatched command and
// the device integration that carries it out (spec.md §4.9), grounded on
// the original's domain/controller.rs trait + hue/controller.rs impl.
package controller

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/internal/action"
)

// Command is a merged, ready-to-send write for a single device.
type Command struct {
	DeviceID   string
	Properties map[string]action.PropertyValue
}

// Controller executes commands against one concrete device integration.
type Controller interface {
	ID() string
	Execute(ctx context.Context, cmd Command) error
}

// Registry is an immutable, explicitly constructed handle threaded into
// the dispatcher at startup (spec.md §9) — not the original's process-wide
// LazyLock<RwLock<...>> registry.
type Registry struct {
	byID map[string]Controller
}

func NewRegistry(controllers ...Controller) *Registry {
	r := &Registry{byID: make(map[string]Controller, len(controllers))}
	for _, c := range controllers {
		r.byID[c.ID()] = c
	}
	return r
}

func (r *Registry) Get(id string) (Controller, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// LoggingController is a trivial controller that logs the command it
// receives instead of reaching an external device, grounded on
// hue/controller.rs's HueController (which, in the original, only logs
// too). It is useful as a default/fallback controller and in tests.
type LoggingController struct {
	IDValue string
	Log     func(format string, args ...any)
}

func (c LoggingController) ID() string { return c.IDValue }

func (c LoggingController) Execute(_ context.Context, cmd Command) error {
	if c.Log != nil {
		c.Log("controller %s: %s", c.IDValue, fmt.Sprintf("%+v", cmd))
	}
	return nil
}
