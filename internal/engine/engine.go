// Package engine walks a loaded flow graph (spec.md §4.4), grounded on
// the original's flow_engine/engine.rs node-walk loop, extended here for
// Conditional and Sleep nodes, trigger (re-)evaluation, and resume.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/domain/value"
	"github.com/flowmesh/flowmesh/internal/expr"
	"github.com/flowmesh/flowmesh/internal/flow"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
)

// Context is the read-only execution environment threaded through a
// single flow run. It satisfies both expr.Context and action.Context,
// letting the engine hand the same value to the evaluator and to actions
// without either package depending back on engine.
type Context struct {
	goCtx    context.Context
	snapshot device.Snapshot
	now      time.Time
	sunrise  time.Time
	sunset   time.Time
}

func NewContext(goCtx context.Context, snapshot device.Snapshot, now, sunrise, sunset time.Time) Context {
	return Context{goCtx: goCtx, snapshot: snapshot, now: now, sunrise: sunrise, sunset: sunset}
}

func (c Context) Snapshot() device.Snapshot  { return c.snapshot }
func (c Context) Now() time.Time             { return c.now }
func (c Context) Sunrise() time.Time         { return c.sunrise }
func (c Context) Sunset() time.Time          { return c.sunset }
func (c Context) GoContext() context.Context { return c.goCtx }

// Report is the outcome of a single flow run: the accumulated property
// writes (spec.md §4.8 merges these across concurrently executed flows)
// and how long the run took.
type Report struct {
	FlowID   string
	Scope    *action.Scope
	Duration time.Duration
}

// Error is the engine's typed error taxonomy (spec.md §7), extending the
// original's single MissingOutgoingNode variant with the cases the
// richer node set and resume protocol introduce.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

type ErrorKind int

const (
	MissingOutgoingNode ErrorKind = iota
	FailedTriggerEvaluation
	FailedConditionalEvaluation
	UnknownResumeNode
)

func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ReEvaluateTriggerOnResume controls whether a sleep-resumed run
// re-evaluates the flow's trigger before continuing. spec.md §4.4's prose
// states the trigger IS re-evaluated on resume; this is kept as an
// explicit option (defaulting to that behavior) rather than hardcoded, so
// a caller can opt out without forking the engine — see DESIGN.md's open
// question writeup.
type Options struct {
	ReEvaluateTriggerOnResume bool
}

func DefaultOptions() Options { return Options{ReEvaluateTriggerOnResume: true} }

// RunObserver is notified after every Execute completes, successfully or
// not. Grounded on the original's execute_flows.rs run-reporting hook and
// the homenavi reference's RunEventHub; cmd/flowmesh wires a single observer
// that both logs failed runs and feeds a Prometheus counter/histogram pair.
type RunObserver func(report Report, err error)

// Execute runs f starting at its start node, or at resumeNodeID when a
// sleeping flow is waking up. schedulerSink receives ScheduleOnce commands
// emitted by Sleep nodes; Execute itself never blocks on the sleep. observer
// may be nil.
func Execute(f *flow.Flow, resumeNodeID *string, ctx Context, schedulerSink chan<- bus.SchedulerCommand, logger logging.Logger, opts Options, observer RunObserver) (report Report, err error) {
	if observer != nil {
		defer func() { observer(report, err) }()
	}

	started := time.Now()
	scope := action.NewScope()

	shouldEvaluateTrigger := resumeNodeID == nil || opts.ReEvaluateTriggerOnResume
	if f.Trigger != nil && shouldEvaluateTrigger {
		result, err := expr.Evaluate(f.Trigger, ctx)
		if err != nil {
			return Report{FlowID: f.ID, Scope: scope}, newErr(FailedTriggerEvaluation, "flow '%s': trigger evaluation failed: %v", f.Name, err)
		}
		triggered, ok := result.AsBool()
		if !ok || !triggered {
			return Report{FlowID: f.ID, Scope: scope, Duration: time.Since(started)}, nil
		}
	}

	var current *flowNode
	if resumeNodeID == nil {
		current = &flowNode{f.StartNode}
	} else {
		n, ok := f.NodeByID[*resumeNodeID]
		if !ok {
			return Report{FlowID: f.ID, Scope: scope}, newErr(UnknownResumeNode, "flow '%s': unknown resume node '%s'", f.Name, *resumeNodeID)
		}
		if n.Kind == flow.End {
			return Report{FlowID: f.ID, Scope: scope, Duration: time.Since(started)}, nil
		}
		current = &flowNode{n}
	}

	for {
		switch current.Kind {
		case flow.End:
			return Report{FlowID: f.ID, Scope: scope, Duration: time.Since(started)}, nil

		case flow.Conditional:
			result, err := expr.Evaluate(current.Expr, ctx)
			if err != nil {
				return Report{FlowID: f.ID, Scope: scope}, newErr(FailedConditionalEvaluation, "flow '%s' node '%s': %v", f.Name, current.ID, err)
			}
			next, ok := selectLink(current.Outgoing, result)
			if !ok {
				return Report{FlowID: f.ID, Scope: scope}, newErr(MissingOutgoingNode, "flow '%s' node '%s': no outgoing link matches %s", f.Name, current.ID, result)
			}
			current = &flowNode{next}

		case flow.ActionNode:
			if err := current.Action.Execute(ctx, scope, logger); err != nil {
				logger.WarnCtx(ctx.GoContext(), "action failed", "flow", f.Name, "node", current.ID, "error", err)
			}
			next, ok := firstLink(current.Outgoing)
			if !ok {
				return Report{FlowID: f.ID, Scope: scope}, newErr(MissingOutgoingNode, "flow '%s' node '%s' has no outgoing node", f.Name, current.ID)
			}
			current = &flowNode{next}

		case flow.Sleep:
			next, ok := firstLink(current.Outgoing)
			if !ok {
				return Report{FlowID: f.ID, Scope: scope}, newErr(MissingOutgoingNode, "flow '%s' node '%s' has no outgoing node", f.Name, current.ID)
			}
			if schedulerSink != nil {
				cmd := bus.ScheduleOnce(f.ID, next.ID, current.SleepFor)
				select {
				case schedulerSink <- cmd:
				case <-ctx.GoContext().Done():
				}
			}
			return Report{FlowID: f.ID, Scope: scope, Duration: time.Since(started)}, nil

		default: // Start
			next, ok := firstLink(current.Outgoing)
			if !ok {
				return Report{FlowID: f.ID, Scope: scope}, newErr(MissingOutgoingNode, "flow '%s' node '%s' has no outgoing node", f.Name, current.ID)
			}
			current = &flowNode{next}
		}
	}
}

// flowNode is a tiny indirection so current can be reassigned to a
// *flow.Node each iteration without repeating the field access chain.
type flowNode struct{ *flow.Node }

func firstLink(links []flow.Link) (*flow.Node, bool) {
	if len(links) == 0 {
		return nil, false
	}
	return links[0].Target, true
}

// selectLink finds the conditional outgoing link whose Value equals the
// evaluated expression result. Value's cross-kind Equal is strict (spec.md
// §8 scenario 2): a Number result never matches a Boolean link value.
func selectLink(links []flow.Link, result value.Value) (*flow.Node, bool) {
	for _, link := range links {
		if link.Value.Equal(result) {
			return link.Target, true
		}
	}
	return nil, false
}
