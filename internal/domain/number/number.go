// Package number implements the tagged numeric value used throughout the
// DSL: an unsigned integer, a signed integer, or a double, with saturating
// integer arithmetic and a total order across variants.
package number

import (
	"fmt"
	"math"
)

// Kind discriminates the Number variants.
type Kind int

const (
	KindPositiveInt Kind = iota
	KindNegativeInt
	KindFloat
)

// Number is a closed sum of {unsigned 64, signed 64, double}.
type Number struct {
	kind Kind
	pos  uint64
	neg  int64
	flt  float64
}

func PositiveInt(v uint64) Number { return Number{kind: KindPositiveInt, pos: v} }
func NegativeInt(v int64) Number  { return Number{kind: KindNegativeInt, neg: v} }
func Float(v float64) Number      { return Number{kind: KindFloat, flt: v} }

func (n Number) Kind() Kind { return n.kind }

// AsFloat64 widens any variant to a double.
func (n Number) AsFloat64() float64 {
	switch n.kind {
	case KindPositiveInt:
		return float64(n.pos)
	case KindNegativeInt:
		return float64(n.neg)
	default:
		return n.flt
	}
}

// Add is saturating for integer/integer combinations; any float operand
// widens the result to Float.
func (a Number) Add(b Number) Number {
	switch {
	case a.kind == KindPositiveInt && b.kind == KindPositiveInt:
		return PositiveInt(saturatingAddU64(a.pos, b.pos))
	case a.kind == KindNegativeInt && b.kind == KindNegativeInt:
		return NegativeInt(saturatingAddI64(a.neg, b.neg))
	case a.kind == KindPositiveInt && b.kind == KindNegativeInt:
		return fromSignedSum(int64sum(int64(a.pos), b.neg) /* may overflow int64 range on extreme pos */, a.pos, b.neg)
	case a.kind == KindNegativeInt && b.kind == KindPositiveInt:
		return fromSignedSum(int64sum(a.neg, int64(b.pos)), b.pos, a.neg)
	default:
		return Float(a.AsFloat64() + b.AsFloat64())
	}
}

// Sub mirrors the original's saturating subtraction rules.
func (a Number) Sub(b Number) Number {
	switch {
	case a.kind == KindPositiveInt && b.kind == KindPositiveInt:
		if a.pos >= b.pos {
			return PositiveInt(a.pos - b.pos)
		}
		return NegativeInt(-int64(b.pos - a.pos))
	case a.kind == KindPositiveInt && b.kind == KindNegativeInt:
		// a - (negative b) == a + |b|, saturating on the unsigned side.
		return PositiveInt(saturatingAddU64(a.pos, absI64(b.neg)))
	case a.kind == KindNegativeInt && b.kind == KindPositiveInt:
		return NegativeInt(saturatingSubI64(a.neg, int64(b.pos)))
	case a.kind == KindNegativeInt && b.kind == KindNegativeInt:
		return NegativeInt(saturatingSubI64(a.neg, b.neg))
	default:
		return Float(a.AsFloat64() - b.AsFloat64())
	}
}

// Compare returns -1, 0, 1 with a total order across variants. NaN
// comparisons against anything (including NaN) return ok=false.
func (a Number) Compare(b Number) (result int, ok bool) {
	if a.kind == KindFloat && math.IsNaN(a.flt) {
		return 0, false
	}
	if b.kind == KindFloat && math.IsNaN(b.flt) {
		return 0, false
	}
	switch {
	case a.kind == KindPositiveInt && b.kind == KindPositiveInt:
		return cmpU64(a.pos, b.pos), true
	case a.kind == KindNegativeInt && b.kind == KindNegativeInt:
		return cmpI64(a.neg, b.neg), true
	case a.kind == KindPositiveInt && b.kind == KindNegativeInt:
		if b.neg < 0 {
			return 1, true
		}
		return cmpU64(a.pos, uint64(b.neg)), true
	case a.kind == KindNegativeInt && b.kind == KindPositiveInt:
		if a.neg < 0 {
			return -1, true
		}
		return cmpI64(a.neg, int64(b.pos)), true
	default:
		return cmpF64(a.AsFloat64(), b.AsFloat64()), true
	}
}

// Equal implements cross-variant numeric equality (spec.md §3: "Equality
// follows numeric equality with cross-variant coercion"), including
// PositiveInt/NegativeInt pairs that the captured original_source snapshot's
// PartialEq left unhandled but whose own PartialOrd treats as equal.
func (a Number) Equal(b Number) bool {
	result, ok := a.Compare(b)
	return ok && result == 0
}

func (n Number) String() string {
	switch n.kind {
	case KindPositiveInt:
		return fmt.Sprintf("%d", n.pos)
	case KindNegativeInt:
		return fmt.Sprintf("%d", n.neg)
	default:
		return fmt.Sprintf("%v", n.flt)
	}
}

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}

func saturatingAddI64(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return sum
}

func saturatingSubI64(a, b int64) int64 {
	return saturatingAddI64(a, -b)
}

func int64sum(a, b int64) int64 { return a + b }

func absI64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// fromSignedSum picks PositiveInt/NegativeInt for a mixed pos/neg addition
// based on the signed sum's sign, matching the original's i128 widening.
func fromSignedSum(sum int64, _ uint64, _ int64) Number {
	if sum >= 0 {
		return PositiveInt(uint64(sum))
	}
	return NegativeInt(sum)
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpI64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpF64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
