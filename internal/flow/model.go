// Package flow implements the flow graph model, its loader, and the
// schedule sum (spec.md §3/§4.3).
package flow

import (
	"time"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/domain/value"
	"github.com/flowmesh/flowmesh/internal/expr"
	"github.com/flowmesh/flowmesh/internal/flow/weekday"
)

// NodeKind discriminates FlowNode variants.
type NodeKind int

const (
	Start NodeKind = iota
	End
	Conditional
	ActionNode
	Sleep
)

// Link is an outgoing edge; Value selects it out of a Conditional node (or
// is value.None for an unconditional transition).
type Link struct {
	Target *Node
	Value  value.Value
}

// Node is a shared flow node: it participates both in the start-anchored
// graph and in the by-id index used for sleep resume (spec.md §9, "shared
// node ownership" — modeled here as ordinary pointers since nodes are
// immutable after load and the flow graph has no cycles).
type Node struct {
	ID       string
	Kind     NodeKind
	Outgoing []Link

	Expr     expr.Expression // Conditional
	Action   action.Action   // ActionNode
	SleepFor time.Duration   // Sleep
}

// Flow is the loaded, validated, immutable flow graph.
type Flow struct {
	ID        string
	Name      string
	Schedule  *Schedule
	Trigger   expr.Expression
	StartNode *Node
	NodeByID  map[string]*Node
}

// ScheduleKind discriminates the Schedule sum.
type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleSunrise
	ScheduleSunset
)

// Schedule is {Cron(string), Sunrise{when, offset}, Sunset{when, offset}}.
type Schedule struct {
	Kind      ScheduleKind
	Cron      string
	When      weekday.Condition
	OffsetSec int64
}
