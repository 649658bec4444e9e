package layout

import (
	"strconv"
	"strings"
)

// This file defines unit-safe lengths and the conversions between the three
// coordinate spaces used by an export: CSS pixels (staging), points (document)
// and millimetres (canvas PDF backend).

// Unit represents the original unit of a length value as written by the author.
type Unit int

const (
	UnitNone Unit = iota // unit-less numbers like factors
	UnitPX               // CSS pixels (96 per inch)
	UnitPT               // points (72 per inch)
	UnitMM               // millimeters
	UnitCM               // centimeters
	UnitIN               // inches
)

// Conversion constants.
const (
	PtToMm = 25.4 / 72
	MmToPt = 1.0 / PtToMm
	PxToPt = 72.0 / 96
	PtToPx = 1.0 / PxToPt
)

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (l Length) IsZero() bool { return l.Value == 0 }

// ToPT converts the length to points. Unit-less values are taken as points.
func (l Length) ToPT() float64 {
	switch l.Unit {
	case UnitPX:
		return l.Value * PxToPt
	case UnitMM:
		return l.Value * MmToPt
	case UnitCM:
		return l.Value * 10 * MmToPt
	case UnitIN:
		return l.Value * 72
	default:
		return l.Value
	}
}

// ToPX converts the length to CSS pixels. Unit-less values are taken as pixels.
func (l Length) ToPX() float64 {
	if l.Unit == UnitNone || l.Unit == UnitPX {
		return l.Value
	}
	return l.ToPT() * PtToPx
}

// ParseLength parses a length such as "24pt", "10mm" or "320" preserving its unit.
func ParseLength(value string) Length {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}
	}
	unit := UnitNone
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"px", UnitPX}, {"pt", UnitPT}, {"mm", UnitMM}, {"cm", UnitCM}, {"in", UnitIN}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Length{}
	}
	return Length{Value: f, Unit: unit}
}
