package numeric

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned by scaled and decimal division
var ErrDivisionByZero = errors.New("division by zero")

// ErrOverflow is returned when a scaled value leaves the int64 range
var ErrOverflow = errors.New("scaled value overflows int64")

// CheckScale rejects scales outside 0..MaxScale
func CheckScale(scale int) error {
	if scale < 0 || scale > MaxScale {
		return fmt.Errorf("scale %d out of range 0..%d", scale, MaxScale)
	}
	return nil
}

// ScaleUp multiplies v by a positive factor
func ScaleUp(v, factor int64) (int64, error) {
	if v > math.MaxInt64/factor || v < math.MinInt64/factor {
		return 0, ErrOverflow
	}
	return v * factor, nil
}

// ScaleDown divides v by factor, rounding half away from zero
func ScaleDown(v, factor int64) int64 {
	if factor == 1 {
		return v
	}
	q, r := v/factor, v%factor
	if r*2 >= factor {
		q++
	} else if r*2 <= -factor {
		q--
	}
	return q
}

// MulScaled multiplies two values of the given scale
func MulScaled(a, b int64, scale int) int64 {
	if scale == 0 {
		return a * b
	}
	p := decimal.New(a, 0).Mul(decimal.New(b, 0))
	return p.Shift(-int32(scale)).Round(0).IntPart()
}

// DivScaled divides two values of the given scale
func DivScaled(a, b int64, scale int) (int64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	if scale == 0 {
		return a / b, nil
	}
	q := decimal.New(a, int32(scale)).DivRound(decimal.New(b, 0), 0)
	return q.IntPart(), nil
}

// FromFloat scales f into a scaled int64
func FromFloat(f float64, scale int) int64 {
	return int64(math.Round(f * float64(One[scale])))
}

// ToFloat unscales a scaled int64
func ToFloat(v int64, scale int) float64 {
	return float64(v) / float64(One[scale])
}

// FromDecimal scales d into a scaled int64, rounding half up
func FromDecimal(d decimal.Decimal, scale int) int64 {
	return d.Shift(int32(scale)).Round(0).IntPart()
}

// ToDecimal unscales a scaled int64 exactly
func ToDecimal(v int64, scale int) decimal.Decimal {
	return decimal.New(v, -int32(scale))
}

// Rescale converts a scaled int64 between scales
func Rescale(v int64, have, want int) (int64, error) {
	if err := CheckScale(have); err != nil {
		return 0, err
	}
	if err := CheckScale(want); err != nil {
		return 0, err
	}
	switch {
	case have > want:
		return ScaleDown(v, One[have]/One[want]), nil
	case have < want:
		return ScaleUp(v, One[want]/One[have])
	}
	return v, nil
}
