package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/bus"
	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/domain/number"
	"github.com/flowmesh/flowmesh/internal/domain/value"
	"github.com/flowmesh/flowmesh/internal/expr"
	"github.com/flowmesh/flowmesh/internal/flow"
	"github.com/flowmesh/flowmesh/internal/telemetry/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger { return logging.New(slog.Default()) }

func testContext() Context {
	return NewContext(context.Background(), device.Empty(), time.Now(), time.Time{}, time.Time{})
}

func TestExecuteRunsALogActionAndReachesEnd(t *testing.T) {
	end := &flow.Node{ID: "end", Kind: flow.End}
	logNode := &flow.Node{ID: "log", Kind: flow.ActionNode, Action: action.LogAction{Message: "hi"}, Outgoing: []flow.Link{{Target: end}}}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: logNode}}}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start, NodeByID: map[string]*flow.Node{"start": start, "log": logNode, "end": end}}

	report, err := Execute(f, nil, testContext(), nil, testLogger(), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Scope.CommandMap())
}

func TestExecuteFailsWithoutOutgoingNode(t *testing.T) {
	start := &flow.Node{ID: "start", Kind: flow.Start}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start, NodeByID: map[string]*flow.Node{"start": start}}

	_, err := Execute(f, nil, testContext(), nil, testLogger(), DefaultOptions(), nil)
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, MissingOutgoingNode, engineErr.Kind)
}

func TestExecuteFollowsTheMatchingConditionalLink(t *testing.T) {
	end := &flow.Node{ID: "end", Kind: flow.End}
	onTrue := &flow.Node{ID: "onTrue", Kind: flow.ActionNode, Action: action.ControlDeviceAction{DeviceID: "lamp", Properties: map[string]action.PropertyValue{"on": {Kind: action.SetBoolean, Bool: true}}}, Outgoing: []flow.Link{{Target: end}}}
	onFalse := &flow.Node{ID: "onFalse", Kind: flow.ActionNode, Action: action.ControlDeviceAction{DeviceID: "lamp", Properties: map[string]action.PropertyValue{"on": {Kind: action.SetBoolean, Bool: false}}}, Outgoing: []flow.Link{{Target: end}}}
	cond := &flow.Node{
		ID: "cond", Kind: flow.Conditional,
		Expr: expr.Literal{Value: value.Boolean(true)},
		Outgoing: []flow.Link{
			{Target: onFalse, Value: value.Boolean(false)},
			{Target: onTrue, Value: value.Boolean(true)},
		},
	}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: cond}}}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start}
	ctx := NewContext(context.Background(), device.Empty().WithDevice("lamp", &device.Device{ID: "lamp"}), time.Now(), time.Time{}, time.Time{})

	report, err := Execute(f, nil, ctx, nil, testLogger(), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.True(t, report.Scope.CommandMap()["lamp"]["on"].Bool)
}

func TestExecuteStopsAtAConditionalWithNoMatchingLink(t *testing.T) {
	// spec.md §8 scenario 2: a conditional expression yielding Number(42)
	// never equals a Boolean link value.
	end := &flow.Node{ID: "end", Kind: flow.End}
	onTrue := &flow.Node{ID: "onTrue", Kind: flow.End}
	cond := &flow.Node{
		ID: "cond", Kind: flow.Conditional,
		Expr:     expr.Literal{Value: value.Num(number.Float(42))},
		Outgoing: []flow.Link{{Target: onTrue, Value: value.Boolean(true)}, {Target: end, Value: value.Boolean(false)}},
	}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: cond}}}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start}

	_, err := Execute(f, nil, testContext(), nil, testLogger(), DefaultOptions(), nil)
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, MissingOutgoingNode, engineErr.Kind)
}

func TestExecuteOnSleepNodeSchedulesResumeAndStops(t *testing.T) {
	end := &flow.Node{ID: "end", Kind: flow.End}
	sleepNode := &flow.Node{ID: "sleep", Kind: flow.Sleep, SleepFor: time.Minute, Outgoing: []flow.Link{{Target: end}}}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: sleepNode}}}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start}

	sink := make(chan bus.SchedulerCommand, 1)
	_, err := Execute(f, nil, testContext(), sink, testLogger(), DefaultOptions(), nil)
	require.NoError(t, err)

	select {
	case cmd := <-sink:
		assert.Equal(t, "f1", cmd.FlowID)
		assert.Equal(t, "end", cmd.NodeID)
		assert.Equal(t, time.Minute, cmd.Delay)
	default:
		t.Fatal("expected a ScheduleOnce command")
	}
}

func TestExecuteResumingAtAnEndNodeStopsImmediately(t *testing.T) {
	end := &flow.Node{ID: "end", Kind: flow.End}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: end}}}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start, NodeByID: map[string]*flow.Node{"start": start, "end": end}}

	resumeAt := "end"
	report, err := Execute(f, &resumeAt, testContext(), nil, testLogger(), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Scope.CommandMap())
}

func TestExecuteInvokesTheRunObserverOnSuccessAndFailure(t *testing.T) {
	end := &flow.Node{ID: "end", Kind: flow.End}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: end}}}
	ok := &flow.Flow{ID: "ok", Name: "ok", StartNode: start}

	var gotReport Report
	var gotErr error
	observed := 0
	observer := func(report Report, err error) {
		observed++
		gotReport, gotErr = report, err
	}

	_, err := Execute(ok, nil, testContext(), nil, testLogger(), DefaultOptions(), observer)
	require.NoError(t, err)
	assert.Equal(t, 1, observed)
	assert.Equal(t, "ok", gotReport.FlowID)
	assert.NoError(t, gotErr)

	broken := &flow.Node{ID: "start", Kind: flow.Start}
	failing := &flow.Flow{ID: "broken", Name: "broken", StartNode: broken}
	_, err = Execute(failing, nil, testContext(), nil, testLogger(), DefaultOptions(), observer)
	require.Error(t, err)
	assert.Equal(t, 2, observed)
	assert.Equal(t, "broken", gotReport.FlowID)
	assert.Error(t, gotErr)
}

func TestExecuteSkipsAFlowWhoseTriggerIsFalse(t *testing.T) {
	end := &flow.Node{ID: "end", Kind: flow.End}
	start := &flow.Node{ID: "start", Kind: flow.Start, Outgoing: []flow.Link{{Target: end}}}
	f := &flow.Flow{ID: "f1", Name: "test", StartNode: start, Trigger: expr.Literal{Value: value.Boolean(false)}}

	report, err := Execute(f, nil, testContext(), nil, testLogger(), DefaultOptions(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Scope.CommandMap())
}
