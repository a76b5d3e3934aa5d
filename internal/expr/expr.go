// Package expr implements the pure expression evaluator over the closed
// DSL sum described in spec.md §3/§4.2: comparisons, equality, logic,
// literals, property reads, and temporal predicates. Evaluate is a total
// function: every input produces either a Value or a typed Error.
package expr

import (
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/internal/domain/device"
	"github.com/flowmesh/flowmesh/internal/domain/property"
	"github.com/flowmesh/flowmesh/internal/domain/value"
	"github.com/flowmesh/flowmesh/internal/flow/weekday"
)

// Context is the read-only view an expression evaluates against. It is
// satisfied by internal/engine.Context; expr does not depend on engine to
// avoid an import cycle (engine wires the flow executor, which depends on
// expr).
type Context interface {
	Snapshot() device.Snapshot
	Now() time.Time
	Sunrise() time.Time
	Sunset() time.Time
}

// Expression is the sealed DSL sum. Only the types in this package
// implement it.
type Expression interface{ isExpression() }

type ComparisonOp int

const (
	GreaterThanOrEqualTo ComparisonOp = iota
	GreaterThan
	LessThan
	LessThanOrEqualTo
)

type Comparison struct {
	Op       ComparisonOp
	LHS, RHS Expression
}

type EqualityOp int

const (
	EqualTo EqualityOp = iota
	NotEqualTo
)

type Equality struct {
	Op       EqualityOp
	LHS, RHS Expression
}

type And struct{ LHS, RHS Expression }
type Or struct{ LHS, RHS Expression }
type Not struct{ Expr Expression }

type Literal struct{ Value value.Value }

type PropertyValue struct{ DeviceID, PropertyID string }

type TemporalKind int

const (
	IsToday TemporalKind = iota
	IsBeforeTime
	IsAfterTime
	HasSunRisen
	HasSunSet
	IsDaytime
	IsNighttime
)

// ClockTime is an hour/minute time-of-day, compared against ctx.Now()'s
// time-of-day only (spec.md §4.2).
type ClockTime struct{ Hour, Minute int }

type Temporal struct {
	Kind TemporalKind
	When weekday.Condition // IsToday
	Time ClockTime         // IsBeforeTime / IsAfterTime
}

func (Comparison) isExpression()    {}
func (Equality) isExpression()      {}
func (And) isExpression()           {}
func (Or) isExpression()            {}
func (Not) isExpression()           {}
func (Literal) isExpression()       {}
func (PropertyValue) isExpression() {}
func (Temporal) isExpression()      {}

// Error is the evaluator's typed error taxonomy (spec.md §7).
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

type ErrorKind int

const (
	OperandTypeMismatch ErrorKind = iota
	UnaryOperandTypeMismatch
	UnknownDevice
	UnknownProperty
	UnsupportedPropertyType
	ComparisonFailed
)

func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Evaluate is the pure total function (Expression, Context) -> Value | Error.
func Evaluate(expr Expression, ctx Context) (value.Value, error) {
	switch e := expr.(type) {
	case Comparison:
		return evalComparison(e, ctx)
	case Equality:
		return evalEquality(e, ctx)
	case And:
		return evalAnd(e, ctx)
	case Or:
		return evalOr(e, ctx)
	case Not:
		return evalNot(e, ctx)
	case Literal:
		return e.Value, nil
	case PropertyValue:
		return evalPropertyValue(e, ctx)
	case Temporal:
		return evalTemporal(e, ctx)
	default:
		return value.None, newErr(OperandTypeMismatch, "unknown expression type %T", expr)
	}
}

func evalComparison(e Comparison, ctx Context) (value.Value, error) {
	lhs, err := Evaluate(e.LHS, ctx)
	if err != nil {
		return value.None, err
	}
	rhs, err := Evaluate(e.RHS, ctx)
	if err != nil {
		return value.None, err
	}
	a, aok := lhs.AsNumber()
	b, bok := rhs.AsNumber()
	if !aok || !bok {
		return value.None, newErr(OperandTypeMismatch, "comparison requires Number operands, got %s and %s", lhs, rhs)
	}
	cmp, ok := a.Compare(b)
	if !ok {
		return value.None, newErr(ComparisonFailed, "unable to compare %s and %s", lhs, rhs)
	}
	var result bool
	switch e.Op {
	case GreaterThanOrEqualTo:
		result = cmp != -1
	case GreaterThan:
		result = cmp == 1
	case LessThan:
		result = cmp == -1
	case LessThanOrEqualTo:
		result = cmp != 1
	}
	return value.Boolean(result), nil
}

// evalEquality evaluates both operands strictly (spec.md §4.2: "Evaluation
// is strict... short-circuiting is permissible only if it preserves error
// semantics"); evaluating both sides unconditionally trivially satisfies
// that rule.
func evalEquality(e Equality, ctx Context) (value.Value, error) {
	lhs, err := Evaluate(e.LHS, ctx)
	if err != nil {
		return value.None, err
	}
	rhs, err := Evaluate(e.RHS, ctx)
	if err != nil {
		return value.None, err
	}
	if lhs.Kind() != rhs.Kind() {
		return value.None, newErr(OperandTypeMismatch, "equality requires matching operand kinds, got %s and %s", lhs, rhs)
	}
	equal := lhs.Equal(rhs)
	if e.Op == NotEqualTo {
		equal = !equal
	}
	return value.Boolean(equal), nil
}

func evalAnd(e And, ctx Context) (value.Value, error) {
	lhs, err := Evaluate(e.LHS, ctx)
	if err != nil {
		return value.None, err
	}
	rhs, err := Evaluate(e.RHS, ctx)
	if err != nil {
		return value.None, err
	}
	a, aok := lhs.AsBool()
	b, bok := rhs.AsBool()
	if !aok || !bok {
		return value.None, newErr(OperandTypeMismatch, "And requires Boolean operands, got %s and %s", lhs, rhs)
	}
	return value.Boolean(a && b), nil
}

func evalOr(e Or, ctx Context) (value.Value, error) {
	lhs, err := Evaluate(e.LHS, ctx)
	if err != nil {
		return value.None, err
	}
	rhs, err := Evaluate(e.RHS, ctx)
	if err != nil {
		return value.None, err
	}
	a, aok := lhs.AsBool()
	b, bok := rhs.AsBool()
	if !aok || !bok {
		return value.None, newErr(OperandTypeMismatch, "Or requires Boolean operands, got %s and %s", lhs, rhs)
	}
	return value.Boolean(a || b), nil
}

func evalNot(e Not, ctx Context) (value.Value, error) {
	v, err := Evaluate(e.Expr, ctx)
	if err != nil {
		return value.None, err
	}
	b, ok := v.AsBool()
	if !ok {
		return value.None, newErr(UnaryOperandTypeMismatch, "Not requires a Boolean operand, got %s", v)
	}
	return value.Boolean(!b), nil
}

func evalPropertyValue(e PropertyValue, ctx Context) (value.Value, error) {
	d, ok := ctx.Snapshot().Device(e.DeviceID)
	if !ok {
		return value.None, newErr(UnknownDevice, "unknown device '%s'", e.DeviceID)
	}
	p, ok := d.Properties[e.PropertyID]
	if !ok {
		return value.None, newErr(UnknownProperty, "unknown property '%s' for device '%s'", e.PropertyID, e.DeviceID)
	}
	switch p.SemanticType() {
	case property.Brightness:
		n, ok := p.NumberValue()
		if !ok {
			return value.None, nil
		}
		return value.Num(n), nil
	case property.Color_, property.ColorTemperature:
		return value.None, newErr(UnsupportedPropertyType, "property type is not supported as an expression operand")
	default: // On
		b, _ := p.BoolValue()
		return value.Boolean(b), nil
	}
}

func evalTemporal(e Temporal, ctx Context) (value.Value, error) {
	now := ctx.Now()
	switch e.Kind {
	case IsToday:
		wd := weekday.FromTime(now)
		for _, d := range e.When.IncludedDays() {
			if d == wd {
				return value.Boolean(true), nil
			}
		}
		return value.Boolean(false), nil
	case IsBeforeTime:
		return value.Boolean(timeOfDay(now).Before(e.Time.asDuration())), nil
	case IsAfterTime:
		return value.Boolean(timeOfDay(now).After(e.Time.asDuration())), nil
	case HasSunRisen:
		return value.Boolean(!timeOfDay(now).Before(timeOfDay(ctx.Sunrise()))), nil
	case HasSunSet:
		return value.Boolean(!timeOfDay(now).Before(timeOfDay(ctx.Sunset()))), nil
	case IsDaytime:
		sunrise, sunset := timeOfDay(ctx.Sunrise()), timeOfDay(ctx.Sunset())
		isDaytime := !timeOfDay(now).Before(sunrise) && timeOfDay(now).Before(sunset)
		return value.Boolean(isDaytime), nil
	case IsNighttime:
		sunrise, sunset := timeOfDay(ctx.Sunrise()), timeOfDay(ctx.Sunset())
		isNighttime := timeOfDay(now).Before(sunrise) || !timeOfDay(now).Before(sunset)
		return value.Boolean(isNighttime), nil
	default:
		return value.None, newErr(OperandTypeMismatch, "unknown temporal expression kind %d", e.Kind)
	}
}

// timeOfDay reduces a full timestamp to its duration since local midnight,
// so only hour/minute/second (not the calendar date) are compared.
func timeOfDay(t time.Time) dayOffset {
	return dayOffset(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second)
}

type dayOffset time.Duration

func (d dayOffset) Before(o dayOffset) bool { return d < o }
func (d dayOffset) After(o dayOffset) bool  { return d > o }

func (c ClockTime) asDuration() dayOffset {
	return dayOffset(time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute)
}
