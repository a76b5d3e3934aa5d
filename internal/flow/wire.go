package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowmesh/flowmesh/internal/action"
	"github.com/flowmesh/flowmesh/internal/domain/number"
	"github.com/flowmesh/flowmesh/internal/domain/value"
	"github.com/flowmesh/flowmesh/internal/expr"
	"github.com/flowmesh/flowmesh/internal/flow/weekday"
)

// wireFlow mirrors the flow file's top-level JSON shape (spec.md §6).
type wireFlow struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Schedule json.RawMessage   `json:"schedule"`
	Trigger  json.RawMessage   `json:"trigger"`
	Nodes    []json.RawMessage `json:"nodes"`
}

// wireNodeHeader peeks at a node's discriminator and id before the node is
// fully decoded into its concrete shape.
type wireNodeHeader struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type wireLink struct {
	Node  string          `json:"node"`
	Value json.RawMessage `json:"value"`
}

// decodeLink accepts both wire shapes from spec.md §6: a bare node id
// string, or an object with "node" and an optional "value".
func decodeLink(raw json.RawMessage) (wireLink, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return wireLink{Node: asString}, nil
	}
	var l wireLink
	if err := json.Unmarshal(raw, &l); err != nil {
		return wireLink{}, err
	}
	if l.Node == "" {
		return wireLink{}, fmt.Errorf("link: missing or invalid field 'node'")
	}
	return l, nil
}

func decodeLinkValue(raw json.RawMessage) (value.Value, error) {
	if len(raw) == 0 {
		return value.None, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return value.Boolean(b), nil
	}
	n, err := decodeWireNumber(raw)
	if err != nil {
		return value.None, fmt.Errorf("link value: expected a boolean or a number: %w", err)
	}
	return value.Num(n), nil
}

// decodeWireNumber mirrors action's wire number decoding; duplicated here
// (rather than exported from action) since flow's dependency on action is
// already one-directional and action has no reason to depend back on flow.
func decodeWireNumber(raw json.RawMessage) (number.Number, error) {
	var lit json.Number
	if err := json.Unmarshal(raw, &lit); err != nil {
		return number.Number{}, err
	}
	s := lit.String()
	if !strings.ContainsAny(s, ".eE") {
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return number.PositiveInt(u), nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return number.NegativeInt(i), nil
		}
	}
	f, err := lit.Float64()
	if err != nil {
		return number.Number{}, err
	}
	return number.Float(f), nil
}

// decodeWeekdayCondition accepts the wire grammar from spec.md §6: "Mon",
// "Monday-Friday", "weekdays", "weekend", or an array of day names.
func decodeWeekdayCondition(raw json.RawMessage) (weekday.Condition, error) {
	var asArray []string
	if err := json.Unmarshal(raw, &asArray); err == nil {
		days := make([]weekday.Day, 0, len(asArray))
		for _, s := range asArray {
			d, err := weekday.ParseDay(s)
			if err != nil {
				return weekday.Condition{}, err
			}
			days = append(days, d)
		}
		return weekday.Set(dedupeDays(days)), nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return weekday.Condition{}, fmt.Errorf("weekday condition: expected a string or an array: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(asString)) {
	case "weekdays":
		return weekday.Weekdays(), nil
	case "weekend":
		return weekday.Weekend(), nil
	}
	if start, end, ok := strings.Cut(asString, "-"); ok {
		startDay, err := weekday.ParseDay(start)
		if err != nil {
			return weekday.Condition{}, err
		}
		endDay, err := weekday.ParseDay(end)
		if err != nil {
			return weekday.Condition{}, err
		}
		return weekday.Range(startDay, endDay), nil
	}
	d, err := weekday.ParseDay(asString)
	if err != nil {
		return weekday.Condition{}, err
	}
	return weekday.Specific(d), nil
}

func dedupeDays(days []weekday.Day) []weekday.Day {
	seen := make(map[weekday.Day]bool, len(days))
	for _, d := range days {
		seen[d] = true
	}
	out := make([]weekday.Day, 0, len(seen))
	for _, d := range weekday.All() {
		if seen[d] {
			out = append(out, d)
		}
	}
	return out
}

// decodeSchedule accepts a bare cron string or an object describing a
// sun-event schedule (spec.md §6).
func decodeSchedule(raw json.RawMessage) (*Schedule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if _, err := cronParser.Parse(asString); err != nil {
			return nil, fmt.Errorf("schedule: invalid cron expression '%s': %w", asString, err)
		}
		return &Schedule{Kind: ScheduleCron, Cron: asString}, nil
	}

	var wire struct {
		Event  string          `json:"event"`
		When   json.RawMessage `json:"when"`
		Offset *int64          `json:"offset"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("schedule: expected a cron string or an object with 'event', 'when' and 'offset': %w", err)
	}
	if wire.Event == "" {
		return nil, fmt.Errorf("schedule: missing or invalid field 'event'")
	}
	if len(wire.When) == 0 {
		return nil, fmt.Errorf("schedule: missing or invalid field 'when'")
	}
	when, err := decodeWeekdayCondition(wire.When)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	var offset int64
	if wire.Offset != nil {
		offset = *wire.Offset
	}
	switch wire.Event {
	case "sunrise":
		return &Schedule{Kind: ScheduleSunrise, When: when, OffsetSec: offset}, nil
	case "sunset":
		return &Schedule{Kind: ScheduleSunset, When: when, OffsetSec: offset}, nil
	default:
		return nil, fmt.Errorf("schedule: unknown schedule event '%s'", wire.Event)
	}
}

// decodeExpression recursively decodes the expression DSL (spec.md §6); the
// "type" discriminator selects the concrete Expression variant.
func decodeExpression(raw json.RawMessage) (expr.Expression, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var header wireNodeHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}

	switch header.Type {
	case "greaterThanOrEqualTo", "greaterThan", "lessThan", "lessThanOrEqualTo":
		lhs, rhs, err := decodeBinaryOperands(raw)
		if err != nil {
			return nil, err
		}
		ops := map[string]expr.ComparisonOp{
			"greaterThanOrEqualTo": expr.GreaterThanOrEqualTo,
			"greaterThan":          expr.GreaterThan,
			"lessThan":             expr.LessThan,
			"lessThanOrEqualTo":    expr.LessThanOrEqualTo,
		}
		return expr.Comparison{Op: ops[header.Type], LHS: lhs, RHS: rhs}, nil
	case "equalTo", "notEqualTo":
		lhs, rhs, err := decodeBinaryOperands(raw)
		if err != nil {
			return nil, err
		}
		op := expr.EqualTo
		if header.Type == "notEqualTo" {
			op = expr.NotEqualTo
		}
		return expr.Equality{Op: op, LHS: lhs, RHS: rhs}, nil
	case "and", "or":
		lhs, rhs, err := decodeBinaryOperands(raw)
		if err != nil {
			return nil, err
		}
		if header.Type == "and" {
			return expr.And{LHS: lhs, RHS: rhs}, nil
		}
		return expr.Or{LHS: lhs, RHS: rhs}, nil
	case "not":
		var wire struct {
			Expression json.RawMessage `json:"expression"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		inner, err := decodeExpression(wire.Expression)
		if err != nil {
			return nil, err
		}
		return expr.Not{Expr: inner}, nil
	case "literal":
		var wire struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		v, err := decodeLinkValue(wire.Value)
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return expr.Literal{Value: v}, nil
	case "propertyValue":
		var wire struct {
			DeviceID   string `json:"deviceId"`
			PropertyID string `json:"propertyId"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return expr.PropertyValue{DeviceID: wire.DeviceID, PropertyID: wire.PropertyID}, nil
	case "temporal":
		var wire struct {
			Expression json.RawMessage `json:"expression"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return decodeTemporalExpression(wire.Expression)
	default:
		return nil, fmt.Errorf("expression: unknown type '%s'", header.Type)
	}
}

func decodeBinaryOperands(raw json.RawMessage) (expr.Expression, expr.Expression, error) {
	var wire struct {
		LHS json.RawMessage `json:"lhs"`
		RHS json.RawMessage `json:"rhs"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, nil, err
	}
	lhs, err := decodeExpression(wire.LHS)
	if err != nil {
		return nil, nil, err
	}
	rhs, err := decodeExpression(wire.RHS)
	if err != nil {
		return nil, nil, err
	}
	return lhs, rhs, nil
}

func decodeTemporalExpression(raw json.RawMessage) (expr.Expression, error) {
	var header wireNodeHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("temporal expression: %w", err)
	}
	switch header.Type {
	case "isToday":
		var wire struct {
			When json.RawMessage `json:"when"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		when, err := decodeWeekdayCondition(wire.When)
		if err != nil {
			return nil, fmt.Errorf("isToday: %w", err)
		}
		return expr.Temporal{Kind: expr.IsToday, When: when}, nil
	case "isBeforeTime", "isAfterTime":
		var wire struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		t, err := decodeClockTime(wire.Time)
		if err != nil {
			return nil, err
		}
		kind := expr.IsBeforeTime
		if header.Type == "isAfterTime" {
			kind = expr.IsAfterTime
		}
		return expr.Temporal{Kind: kind, Time: t}, nil
	case "hasSunRisen":
		return expr.Temporal{Kind: expr.HasSunRisen}, nil
	case "hasSunSet":
		return expr.Temporal{Kind: expr.HasSunSet}, nil
	case "isDaytime":
		return expr.Temporal{Kind: expr.IsDaytime}, nil
	case "isNighttime":
		return expr.Temporal{Kind: expr.IsNighttime}, nil
	default:
		return nil, fmt.Errorf("temporal expression: unknown type '%s'", header.Type)
	}
}

// decodeClockTime parses "HH:MM" into an expr.ClockTime.
func decodeClockTime(s string) (expr.ClockTime, error) {
	hourPart, minutePart, ok := strings.Cut(s, ":")
	if !ok || len(minutePart) != 2 {
		return expr.ClockTime{}, fmt.Errorf("time: expected HH:MM, got '%s'", s)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return expr.ClockTime{}, fmt.Errorf("time: invalid hour in '%s'", s)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return expr.ClockTime{}, fmt.Errorf("time: invalid minute in '%s'", s)
	}
	return expr.ClockTime{Hour: hour, Minute: minute}, nil
}

// decodeAction delegates the action body to the registry keyed on its own
// "type" discriminator (spec.md §4.5); the registry's Decode already
// implements the "unknown type" error.
func decodeAction(raw json.RawMessage, registry *action.Registry) (action.Action, error) {
	return registry.Decode(raw)
}
