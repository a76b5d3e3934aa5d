// Package property implements the closed property sum
// {Boolean, Number, Color} behind a common capability set (name, semantic
// type, readonly, optional external id, string rendering, equality).
// spec.md §9 prefers this tagged-sum shape over the original's dynamic
// dispatch + downcast model; variant mismatches become match arms instead
// of failed type assertions.
package property

import (
	"errors"
	"fmt"

	"github.com/flowmesh/flowmesh/internal/domain/color"
	"github.com/flowmesh/flowmesh/internal/domain/number"
)

// SemanticType is the closed enum of property meanings the expression
// evaluator and controllers reason about.
type SemanticType int

const (
	On SemanticType = iota
	Brightness
	Color_
	ColorTemperature
)

var (
	ErrReadOnly            = errors.New("property: read only")
	ErrIncorrectValueType  = errors.New("property: incorrect value type")
	ErrValueTooSmall       = errors.New("property: value too small")
	ErrValueTooLarge       = errors.New("property: value too large")
)

// ValidationOutcome is the result of validating an action-proposed write
// against a NumberProperty's bounds (spec.md §3: Valid | Clamped | Invalid).
type ValidationOutcome int

const (
	Valid ValidationOutcome = iota
	Clamped
	Invalid
)

// ValidationResult carries the outcome plus the (possibly clamped) value
// and, for Clamped, the reason.
type ValidationResult struct {
	Outcome ValidationOutcome
	Value   number.Number
	Reason  string
}

// Kind discriminates the Property variants.
type Kind int

const (
	KindBoolean Kind = iota
	KindNumber
	KindColor
)

// Property is the tagged sum of device property variants.
type Property struct {
	kind       Kind
	name       string
	semantic   SemanticType
	readonly   bool
	externalID *string

	boolValue bool

	numValue number.Number
	unit     string
	min, max *number.Number

	colorValue color.Color
	gamut      *Gamut
}

// Gamut is an optional triangle a ColorProperty's writes must clip into;
// spec.md §3 reserves the actual clipping for the controller boundary.
type Gamut struct {
	R, G, B color.XY
}

func NewBoolean(name string, semantic SemanticType, readonly bool, value bool) Property {
	return Property{kind: KindBoolean, name: name, semantic: semantic, readonly: readonly, boolValue: value}
}

func NewNumber(name string, semantic SemanticType, readonly bool, value number.Number, unit string, min, max *number.Number) Property {
	return Property{kind: KindNumber, name: name, semantic: semantic, readonly: readonly, numValue: value, unit: unit, min: min, max: max}
}

func NewColor(name string, readonly bool, value color.Color, gamut *Gamut) Property {
	return Property{kind: KindColor, name: name, semantic: Color_, readonly: readonly, colorValue: value, gamut: gamut}
}

func (p Property) Kind() Kind                 { return p.kind }
func (p Property) Name() string               { return p.name }
func (p Property) SemanticType() SemanticType { return p.semantic }
func (p Property) ReadOnly() bool             { return p.readonly }
func (p Property) ExternalID() (string, bool) {
	if p.externalID == nil {
		return "", false
	}
	return *p.externalID, true
}
func (p Property) WithExternalID(id string) Property {
	p.externalID = &id
	return p
}

func (p Property) BoolValue() (bool, bool) {
	if p.kind != KindBoolean {
		return false, false
	}
	return p.boolValue, true
}

func (p Property) NumberValue() (number.Number, bool) {
	if p.kind != KindNumber {
		return number.Number{}, false
	}
	return p.numValue, true
}

func (p Property) ColorValue() (color.Color, bool) {
	if p.kind != KindColor {
		return color.Color{}, false
	}
	return p.colorValue, true
}

// SetBooleanObserved applies an externally-observed boolean unconditionally
// (bypassing readonly — the reducer path trusts the hub's report of truth),
// matching spec.md §4.1's "applied unconditionally to stay in sync".
func (p Property) SetBooleanObserved(value bool) (Property, error) {
	if p.kind != KindBoolean {
		return p, ErrIncorrectValueType
	}
	p.boolValue = value
	return p, nil
}

// SetBooleanAction applies an action-proposed boolean write, honoring
// ReadOnly.
func (p Property) SetBooleanAction(value bool) (Property, error) {
	if p.kind != KindBoolean {
		return p, ErrIncorrectValueType
	}
	if p.readonly {
		return p, ErrReadOnly
	}
	p.boolValue = value
	return p, nil
}

// SetNumberObserved bypasses min/max validation, per spec.md §4.1/§3.
func (p Property) SetNumberObserved(value number.Number) (Property, error) {
	if p.kind != KindNumber {
		return p, ErrIncorrectValueType
	}
	p.numValue = value
	return p, nil
}

// ValidateValue implements the action-path Valid/Clamped/Invalid contract
// from spec.md §3 ("Writes proposed by actions go through validate_value").
func (p Property) ValidateValue(value number.Number) ValidationResult {
	if p.kind != KindNumber {
		return ValidationResult{Outcome: Invalid, Reason: "property is not numeric"}
	}
	if p.min != nil {
		if cmp, ok := value.Compare(*p.min); ok && cmp < 0 {
			return ValidationResult{Outcome: Clamped, Value: *p.min, Reason: "below minimum"}
		}
	}
	if p.max != nil {
		if cmp, ok := value.Compare(*p.max); ok && cmp > 0 {
			return ValidationResult{Outcome: Clamped, Value: *p.max, Reason: "above maximum"}
		}
	}
	return ValidationResult{Outcome: Valid, Value: value}
}

// SetNumberAction validates, clamps, and applies an action-proposed write.
func (p Property) SetNumberAction(value number.Number) (Property, ValidationResult, error) {
	if p.kind != KindNumber {
		return p, ValidationResult{}, ErrIncorrectValueType
	}
	if p.readonly {
		return p, ValidationResult{}, ErrReadOnly
	}
	result := p.ValidateValue(value)
	if result.Outcome == Invalid {
		return p, result, nil
	}
	p.numValue = result.Value
	return p, result, nil
}

// SetColorObserved applies an externally-observed color unconditionally.
func (p Property) SetColorObserved(value color.Color) (Property, error) {
	if p.kind != KindColor {
		return p, ErrIncorrectValueType
	}
	p.colorValue = value
	return p, nil
}

// SetColorAction applies an action-proposed color write. Gamut clipping is
// intentionally not performed here: spec.md §3 assigns it to the
// controller boundary.
func (p Property) SetColorAction(value color.Color) (Property, error) {
	if p.kind != KindColor {
		return p, ErrIncorrectValueType
	}
	if p.readonly {
		return p, ErrReadOnly
	}
	p.colorValue = value
	return p, nil
}

func (p Property) Equal(o Property) bool {
	if p.kind != o.kind || p.name != o.name || p.semantic != o.semantic || p.readonly != o.readonly {
		return false
	}
	switch p.kind {
	case KindBoolean:
		return p.boolValue == o.boolValue
	case KindNumber:
		return p.numValue.Equal(o.numValue)
	default:
		return p.colorValue.Equal(o.colorValue)
	}
}

func (p Property) String() string {
	switch p.kind {
	case KindBoolean:
		return fmt.Sprintf("%s=%v", p.name, p.boolValue)
	case KindNumber:
		return fmt.Sprintf("%s=%s%s", p.name, p.numValue.String(), p.unit)
	default:
		return fmt.Sprintf("%s=%s", p.name, p.colorValue.String())
	}
}
