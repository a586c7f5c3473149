// Package numeric describes the numeric domains a compilation can target and
// the fixed-point and decimal arithmetic they share between compile time and
// run time.
package numeric

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the native representation of numbers
type Kind int

const (
	KindDouble Kind = iota
	KindScaledLong
	KindBigDecimal
	KindPrecisionDecimal
)

// RoundingMode is the rounding applied when a decimal exceeds its scale or precision
type RoundingMode int

const (
	HalfUp RoundingMode = iota
	HalfEven
	Down
	Up
	Floor
	Ceiling
)

func (m RoundingMode) String() string {
	switch m {
	case HalfUp:
		return "half_up"
	case HalfEven:
		return "half_even"
	case Down:
		return "down"
	case Up:
		return "up"
	case Floor:
		return "floor"
	case Ceiling:
		return "ceiling"
	}
	return "unknown"
}

// MaxScale is the largest scale a scaled int64 can carry
const MaxScale = 18

// Type is a numeric domain with its scale or precision
type Type struct {
	Kind      Kind
	Scale     int
	Precision int
	Rounding  RoundingMode
}

var (
	Double = Type{Kind: KindDouble}
	Long   = Type{Kind: KindScaledLong}
)

// ScaledLong is an int64 with scale implied decimal places
func ScaledLong(scale int) Type {
	return Type{Kind: KindScaledLong, Scale: scale}
}

// BigDecimal is an arbitrary-precision decimal rounded to scale places after
// each division. A negative scale leaves results unscaled.
func BigDecimal(scale int, mode RoundingMode) Type {
	return Type{Kind: KindBigDecimal, Scale: scale, Rounding: mode}
}

// Precision is an arbitrary-precision decimal rounded to digits significant digits
func Precision(digits int, mode RoundingMode) Type {
	return Type{Kind: KindPrecisionDecimal, Precision: digits, Scale: -1, Rounding: mode}
}

// Validate rejects scales the representation cannot hold
func (t Type) Validate() error {
	switch t.Kind {
	case KindScaledLong:
		if t.Scale < 0 || t.Scale > MaxScale {
			return fmt.Errorf("scaled long scale %d out of range 0..%d", t.Scale, MaxScale)
		}
	case KindPrecisionDecimal:
		if t.Precision <= 0 {
			return fmt.Errorf("decimal precision must be positive, got %d", t.Precision)
		}
	}
	return nil
}

func (t Type) String() string {
	switch t.Kind {
	case KindDouble:
		return "double"
	case KindScaledLong:
		if t.Scale == 0 {
			return "long"
		}
		return fmt.Sprintf("long:%d", t.Scale)
	case KindBigDecimal:
		if t.Scale < 0 {
			return "decimal"
		}
		return fmt.Sprintf("decimal:%d", t.Scale)
	case KindPrecisionDecimal:
		return fmt.Sprintf("precision:%d", t.Precision)
	}
	return "unknown"
}

// Parse reads the textual form produced by String
func Parse(s string) (Type, error) {
	name, arg, hasArg := strings.Cut(s, ":")
	n := 0
	if hasArg {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return Type{}, fmt.Errorf("invalid numeric type %q: %w", s, err)
		}
		n = v
	}
	var t Type
	switch name {
	case "double":
		t = Double
	case "long":
		t = ScaledLong(n)
	case "decimal", "bigdecimal":
		if !hasArg {
			n = -1
		}
		t = BigDecimal(n, HalfUp)
	case "precision":
		t = Precision(n, HalfUp)
	default:
		return Type{}, fmt.Errorf("unknown numeric type %q", s)
	}
	return t, t.Validate()
}

// One is the scaled representation of 1 for each scale
var One = func() [MaxScale + 1]int64 {
	var one [MaxScale + 1]int64
	v := int64(1)
	for i := range one {
		one[i] = v
		v *= 10
	}
	return one
}()

// Context carries what decimal arithmetic needs at run time
type Context struct {
	Scale     int
	Precision int
	Rounding  RoundingMode
}

// ContextOf derives the run-time context of a numeric type
func ContextOf(t Type) Context {
	switch t.Kind {
	case KindPrecisionDecimal:
		return Context{Scale: -1, Precision: t.Precision, Rounding: t.Rounding}
	default:
		return Context{Scale: t.Scale, Rounding: t.Rounding}
	}
}

// Round rounds d to places decimal places using the mode
func Round(d decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case HalfEven:
		return d.RoundBank(places)
	case Down:
		return d.RoundDown(places)
	case Up:
		return d.RoundUp(places)
	case Floor:
		return d.RoundFloor(places)
	case Ceiling:
		return d.RoundCeil(places)
	default:
		return d.Round(places)
	}
}

// Adjust applies the context's scale or precision to d
func (c Context) Adjust(d decimal.Decimal) decimal.Decimal {
	if c.Precision > 0 {
		digits := int32(d.NumDigits())
		if digits > int32(c.Precision) {
			places := -d.Exponent() - (digits - int32(c.Precision))
			return Round(d, places, c.Rounding)
		}
		return d
	}
	if c.Scale >= 0 {
		return Round(d, int32(c.Scale), c.Rounding)
	}
	return d
}

// DivisionPlaces is the number of places a quotient is computed to before
// the context adjusts it.
func (c Context) DivisionPlaces() int32 {
	if c.Precision > 0 {
		return int32(c.Precision) + 2
	}
	if c.Scale >= 0 {
		return int32(c.Scale) + 2
	}
	return 34
}
