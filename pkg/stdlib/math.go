// Package stdlib - Mathematical functions per numeric domain
package stdlib

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

func f64(args []any, i int) float64         { return args[i].(float64) }
func i64(args []any, i int) int64           { return args[i].(int64) }
func dec(args []any, i int) decimal.Decimal { return args[i].(decimal.Decimal) }
func num(args []any, i int) int             { return args[i].(int) }

type extremum struct{}

func (extremum) String() string { return "extremum" }

// Extremum seeds decimal MIN and MAX accumulators. Decimals have no
// bounds, so it stands for "no element yet" and loses to any value.
var Extremum any = extremum{}

// decPick applies pick unless one side is still the Extremum seed.
func decPick(a []any, pick func(x, y decimal.Decimal) decimal.Decimal) any {
	switch {
	case a[0] == Extremum:
		return a[1]
	case a[1] == Extremum:
		return a[0]
	}
	return pick(dec(a, 0), dec(a, 1))
}

func sign[T int | int64 | float64](v T) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// roundFloat rounds through the shortest decimal representation, so that
// 2.675 rounds like the decimal it displays as.
func roundFloat(x float64, places int, mode numeric.RoundingMode) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return numeric.Round(decimal.NewFromFloat(x), int32(places), mode).InexactFloat64()
}

func checkFloat(x float64) (any, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, NewFault(Num, "result is not a finite number")
	}
	return x, nil
}

func registerDouble(r *Registry) {
	unary := func(name string, fn func(float64) float64) {
		r.Register("f64."+name, func(_ *Context, a []any) (any, error) { return checkFloat(fn(f64(a, 0))) })
	}
	unary("ABS", math.Abs)
	unary("INT", math.Floor)
	unary("SIGN", func(x float64) float64 { return float64(sign(x)) })
	unary("EXP", math.Exp)
	unary("percent", func(x float64) float64 { return x / 100 })

	r.Register("f64.SQRT", func(_ *Context, a []any) (any, error) {
		if f64(a, 0) < 0 {
			return nil, NewFault(Num, "SQRT of negative number")
		}
		return math.Sqrt(f64(a, 0)), nil
	})
	r.Register("f64.LN", func(_ *Context, a []any) (any, error) {
		if f64(a, 0) <= 0 {
			return nil, NewFault(Num, "LN of non-positive number")
		}
		return math.Log(f64(a, 0)), nil
	})
	r.Register("f64.LOG10", func(_ *Context, a []any) (any, error) {
		if f64(a, 0) <= 0 {
			return nil, NewFault(Num, "LOG10 of non-positive number")
		}
		return math.Log10(f64(a, 0)), nil
	})
	r.Register("f64.PI", func(*Context, []any) (any, error) { return math.Pi, nil })
	r.Register("f64.POWER", func(_ *Context, a []any) (any, error) {
		return checkFloat(math.Pow(f64(a, 0), f64(a, 1)))
	})
	r.Register("f64.MOD", func(_ *Context, a []any) (any, error) {
		x, y := f64(a, 0), f64(a, 1)
		if y == 0 {
			return nil, NewFault(DivZero, "MOD by zero")
		}
		return x - y*math.Floor(x/y), nil
	})
	r.Register("f64.ROUND", func(_ *Context, a []any) (any, error) {
		return roundFloat(f64(a, 0), num(a, 1), numeric.HalfUp), nil
	})
	r.Register("f64.ROUNDUP", func(_ *Context, a []any) (any, error) {
		return roundFloat(f64(a, 0), num(a, 1), numeric.Up), nil
	})
	r.Register("f64.ROUNDDOWN", func(_ *Context, a []any) (any, error) {
		return roundFloat(f64(a, 0), num(a, 1), numeric.Down), nil
	})
	r.Register("f64.TRUNC", func(_ *Context, a []any) (any, error) {
		return roundFloat(f64(a, 0), num(a, 1), numeric.Down), nil
	})
	r.Register("f64.min", func(_ *Context, a []any) (any, error) { return math.Min(f64(a, 0), f64(a, 1)), nil })
	r.Register("f64.max", func(_ *Context, a []any) (any, error) { return math.Max(f64(a, 0), f64(a, 1)), nil })
	r.Register("f64.isError", func(_ *Context, a []any) (any, error) {
		x := f64(a, 0)
		return math.IsNaN(x) || math.IsInf(x, 0), nil
	})
}

func registerLong(r *Registry) {
	r.Register("i64.mul", func(c *Context, a []any) (any, error) {
		return numeric.MulScaled(i64(a, 0), i64(a, 1), c.Scale()), nil
	})
	r.Register("i64.div", func(c *Context, a []any) (any, error) {
		q, err := numeric.DivScaled(i64(a, 0), i64(a, 1), c.Scale())
		if err != nil {
			return nil, NewFault(DivZero, "division by zero")
		}
		return q, nil
	})
	r.Register("i64.percent", func(_ *Context, a []any) (any, error) {
		return numeric.ScaleDown(i64(a, 0), 100), nil
	})
	r.Register("i64.ABS", func(_ *Context, a []any) (any, error) {
		if v := i64(a, 0); v < 0 {
			return -v, nil
		}
		return i64(a, 0), nil
	})
	r.Register("i64.SIGN", func(c *Context, a []any) (any, error) {
		return int64(sign(i64(a, 0))) * numeric.One[c.Scale()], nil
	})
	r.Register("i64.INT", func(c *Context, a []any) (any, error) {
		return roundLong(i64(a, 0), c.Scale(), 0, numeric.Floor), nil
	})
	r.Register("i64.MOD", func(c *Context, a []any) (any, error) {
		x, y := i64(a, 0), i64(a, 1)
		if y == 0 {
			return nil, NewFault(DivZero, "MOD by zero")
		}
		m := x % y
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	})
	r.Register("i64.POWER", func(c *Context, a []any) (any, error) {
		s := c.Scale()
		p := math.Pow(numeric.ToFloat(i64(a, 0), s), numeric.ToFloat(i64(a, 1), s))
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, NewFault(Num, "POWER result out of range")
		}
		return numeric.FromFloat(p, s), nil
	})
	for name, mode := range map[string]numeric.RoundingMode{
		"ROUND": numeric.HalfUp, "ROUNDUP": numeric.Up, "ROUNDDOWN": numeric.Down, "TRUNC": numeric.Down,
	} {
		mode := mode
		r.Register("i64."+name, func(c *Context, a []any) (any, error) {
			return roundLong(i64(a, 0), c.Scale(), num(a, 1), mode), nil
		})
	}
	r.Register("i64.min", func(_ *Context, a []any) (any, error) { return min(i64(a, 0), i64(a, 1)), nil })
	r.Register("i64.max", func(_ *Context, a []any) (any, error) { return max(i64(a, 0), i64(a, 1)), nil })
	r.Register("i64.toF64", func(c *Context, a []any) (any, error) { return numeric.ToFloat(i64(a, 0), c.Scale()), nil })
	r.Register("i64.fromF64", func(c *Context, a []any) (any, error) { return numeric.FromFloat(f64(a, 0), c.Scale()), nil })
	r.Register("i64.toInt", func(c *Context, a []any) (any, error) { return int(i64(a, 0) / numeric.One[c.Scale()]), nil })
}

func roundLong(v int64, scale, places int, mode numeric.RoundingMode) int64 {
	if places >= scale {
		return v
	}
	d := numeric.Round(numeric.ToDecimal(v, scale), int32(places), mode)
	return numeric.FromDecimal(d, scale)
}

// adjust applies significant-digit rounding after every operation of a
// precision-bounded decimal; fixed-scale decimals stay exact until division.
func (c *Context) adjust(d decimal.Decimal) decimal.Decimal {
	if c.Numeric.Precision > 0 {
		return c.Numeric.Adjust(d)
	}
	return d
}

func registerDecimal(r *Registry) {
	r.Register("dec.add", func(c *Context, a []any) (any, error) { return c.adjust(dec(a, 0).Add(dec(a, 1))), nil })
	r.Register("dec.sub", func(c *Context, a []any) (any, error) { return c.adjust(dec(a, 0).Sub(dec(a, 1))), nil })
	r.Register("dec.mul", func(c *Context, a []any) (any, error) { return c.adjust(dec(a, 0).Mul(dec(a, 1))), nil })
	r.Register("dec.neg", func(_ *Context, a []any) (any, error) { return dec(a, 0).Neg(), nil })
	r.Register("dec.div", func(c *Context, a []any) (any, error) {
		x, y := dec(a, 0), dec(a, 1)
		if y.IsZero() {
			return nil, NewFault(DivZero, "division by zero")
		}
		q := x.DivRound(y, c.Numeric.DivisionPlaces())
		if c.Numeric.Precision > 0 || c.Numeric.Scale >= 0 {
			return c.Numeric.Adjust(q), nil
		}
		return q, nil
	})
	r.Register("dec.cmp", func(_ *Context, a []any) (any, error) { return dec(a, 0).Cmp(dec(a, 1)), nil })
	r.Register("dec.percent", func(c *Context, a []any) (any, error) { return c.adjust(dec(a, 0).Shift(-2)), nil })
	r.Register("dec.ABS", func(_ *Context, a []any) (any, error) { return dec(a, 0).Abs(), nil })
	r.Register("dec.SIGN", func(_ *Context, a []any) (any, error) { return decimal.NewFromInt(int64(dec(a, 0).Sign())), nil })
	r.Register("dec.INT", func(_ *Context, a []any) (any, error) { return dec(a, 0).Floor(), nil })
	r.Register("dec.MOD", func(_ *Context, a []any) (any, error) {
		x, y := dec(a, 0), dec(a, 1)
		if y.IsZero() {
			return nil, NewFault(DivZero, "MOD by zero")
		}
		return x.Sub(y.Mul(x.Div(y).Floor())), nil
	})
	r.Register("dec.POWER", func(c *Context, a []any) (any, error) {
		x, y := dec(a, 0), dec(a, 1)
		if y.Equal(y.Truncate(0)) && y.Sign() >= 0 {
			return c.adjust(x.Pow(y)), nil
		}
		p := math.Pow(x.InexactFloat64(), y.InexactFloat64())
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, NewFault(Num, "POWER result out of range")
		}
		return c.adjust(decimal.NewFromFloat(p)), nil
	})
	for name, mode := range map[string]numeric.RoundingMode{
		"ROUND": numeric.HalfUp, "ROUNDUP": numeric.Up, "ROUNDDOWN": numeric.Down, "TRUNC": numeric.Down,
	} {
		mode := mode
		r.Register("dec."+name, func(_ *Context, a []any) (any, error) {
			return numeric.Round(dec(a, 0), int32(num(a, 1)), mode), nil
		})
	}
	r.Register("dec.min", func(_ *Context, a []any) (any, error) {
		return decPick(a, func(x, y decimal.Decimal) decimal.Decimal { return decimal.Min(x, y) }), nil
	})
	r.Register("dec.max", func(_ *Context, a []any) (any, error) {
		return decPick(a, func(x, y decimal.Decimal) decimal.Decimal { return decimal.Max(x, y) }), nil
	})
	r.Register("dec.toF64", func(_ *Context, a []any) (any, error) { return dec(a, 0).InexactFloat64(), nil })
	r.Register("dec.fromF64", func(c *Context, a []any) (any, error) {
		return c.adjust(decimal.NewFromFloat(f64(a, 0))), nil
	})
	r.Register("dec.toInt", func(_ *Context, a []any) (any, error) { return int(dec(a, 0).IntPart()), nil })
	r.Register("dec.fromInt", func(_ *Context, a []any) (any, error) { return decimal.NewFromInt(int64(num(a, 0))), nil })
}
