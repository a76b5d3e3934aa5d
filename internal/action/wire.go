package action

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowmesh/flowmesh/internal/domain/color"
	"github.com/flowmesh/flowmesh/internal/domain/number"
)

// decodeWireNumber decodes a JSON number into the smallest Number variant
// that represents it exactly: an integer literal becomes PositiveInt or
// NegativeInt, anything with a fractional part becomes Float.
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

// decodeWireColor accepts the four wire shapes from spec.md §6's Color
// grammar: "#rrggbb", {r,g,b}, {x,y,brightness}, {x,y,Y}.
func decodeWireColor(raw json.RawMessage) (color.Color, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return color.Hex(asString), nil
	}

	var shape struct {
		R          *uint8   `json:"r"`
		G          *uint8   `json:"g"`
		B          *uint8   `json:"b"`
		X          *float64 `json:"x"`
		Y          *float64 `json:"y"`
		Brightness *float64 `json:"brightness"`
		CapitalY   *float64 `json:"Y"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return color.Color{}, err
	}
	switch {
	case shape.R != nil && shape.G != nil && shape.B != nil:
		return color.RGB(*shape.R, *shape.G, *shape.B), nil
	case shape.X != nil && shape.Y != nil && shape.Brightness != nil:
		return color.CIExyY(color.XY{X: *shape.X, Y: *shape.Y}, *shape.Brightness), nil
	case shape.X != nil && shape.Y != nil && shape.CapitalY != nil:
		return color.CIExyY(color.XY{X: *shape.X, Y: *shape.Y}, *shape.CapitalY), nil
	default:
		return color.Color{}, fmt.Errorf("unrecognized color shape %s", string(raw))
	}
}
