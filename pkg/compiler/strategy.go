package compiler

import (
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// strategy generates code for one value domain. One numeric strategy is
// chosen per compilation; the text strategy always exists beside it.
type strategy interface {
	kind() stack.Kind
	// prefix names the domain's runtime functions
	prefix() string
	String() string

	constant(e *stack.Emitter, v any) error
	zero(e *stack.Emitter)
	minValue(e *stack.Emitter) error
	maxValue(e *stack.Emitter) error

	unary(e *stack.Emitter, op ir.Op) error
	binary(e *stack.Emitter, op ir.Op) error
	// compare pops two values and pushes -1, 0 or 1
	compare(e *stack.Emitter, nanGreater bool)
}

// numberStrategy is a numeric domain, convertible to and from the int and
// float64 slots runtime functions work with.
type numberStrategy interface {
	strategy
	fromInt(e *stack.Emitter)
	toInt(e *stack.Emitter)
	fromF64(e *stack.Emitter)
	toF64(e *stack.Emitter)
}

// numericStrategy returns the strategy of a numeric type
func numericStrategy(t numeric.Type) (numberStrategy, error) {
	switch t.Kind {
	case numeric.KindDouble:
		return doubleStrategy{}, nil
	case numeric.KindScaledLong:
		return longStrategy{scale: t.Scale}, nil
	case numeric.KindBigDecimal, numeric.KindPrecisionDecimal:
		return decimalStrategy{t: t}, nil
	}
	return nil, UnsupportedDataType.New("Unsupported data type %s for code generation.", t)
}

// decimalOf converts a constant to an exact decimal
func decimalOf(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, true
	case bool:
		if x {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int8:
		return decimal.NewFromInt(int64(x)), true
	case int16:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(x)), 0), true
	case uint8:
		return decimal.NewFromInt(int64(x)), true
	case uint16:
		return decimal.NewFromInt(int64(x)), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0), true
	case *big.Int:
		return decimal.NewFromBigInt(x, 0), true
	case decimal.Decimal:
		return x, true
	case time.Time:
		return decimal.NewFromFloat(interop.SerialDate(x, time.UTC)), true
	case time.Duration:
		return decimal.NewFromInt(x.Milliseconds()).Div(decimal.NewFromInt(86400000)), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Zero, false
}

func unsupportedConstant(v any, s strategy) error {
	return UnsupportedDataType.New("Cannot compile a constant of type %T as a %s.", v, s)
}

func unsupportedOperator(op ir.Op, s strategy) error {
	return UnsupportedExpression.New("Operator %s is not supported for %s values.", op, s)
}

// doubleStrategy works on float64
type doubleStrategy struct{}

func (doubleStrategy) kind() stack.Kind { return stack.KindF64 }
func (doubleStrategy) prefix() string   { return "f64" }
func (doubleStrategy) String() string   { return "double" }

func (s doubleStrategy) constant(e *stack.Emitter, v any) error {
	switch x := v.(type) {
	case float64:
		e.Const(x)
		return nil
	case float32:
		e.Const(float64(x))
		return nil
	}
	d, ok := decimalOf(v)
	if !ok {
		return unsupportedConstant(v, s)
	}
	e.Const(d.InexactFloat64())
	return nil
}

func (doubleStrategy) zero(e *stack.Emitter)           { e.Const(0.0) }
func (doubleStrategy) minValue(e *stack.Emitter) error { e.Const(-math.MaxFloat64); return nil }
func (doubleStrategy) maxValue(e *stack.Emitter) error { e.Const(math.MaxFloat64); return nil }

func (s doubleStrategy) unary(e *stack.Emitter, op ir.Op) error {
	switch op {
	case ir.OpMinus:
		e.Op(stack.FNeg)
	case ir.OpPercent:
		e.Call("f64.percent", 1)
	case ir.OpPlus:
	default:
		return unsupportedOperator(op, s)
	}
	return nil
}

func (s doubleStrategy) binary(e *stack.Emitter, op ir.Op) error {
	switch op {
	case ir.OpPlus:
		e.Op(stack.FAdd)
	case ir.OpMinus:
		e.Op(stack.FSub)
	case ir.OpTimes:
		e.Op(stack.FMul)
	case ir.OpDivide:
		e.Op(stack.FDiv)
	case ir.OpExp:
		e.Call("f64.POWER", 2)
	case ir.OpMin:
		e.Call("f64.min", 2)
	case ir.OpMax:
		e.Call("f64.max", 2)
	default:
		return unsupportedOperator(op, s)
	}
	return nil
}

func (doubleStrategy) compare(e *stack.Emitter, nanGreater bool) {
	if nanGreater {
		e.Op(stack.FCmpG)
	} else {
		e.Op(stack.FCmpL)
	}
}

func (doubleStrategy) fromInt(e *stack.Emitter) { e.Op(stack.I2F) }
func (doubleStrategy) toInt(e *stack.Emitter)   { e.Op(stack.F2I) }
func (doubleStrategy) fromF64(*stack.Emitter)   {}
func (doubleStrategy) toF64(*stack.Emitter)     {}

// longStrategy works on int64 values with scale implied decimals
type longStrategy struct {
	scale int
}

func (longStrategy) kind() stack.Kind { return stack.KindI64 }
func (longStrategy) prefix() string   { return "i64" }
func (s longStrategy) String() string { return numeric.ScaledLong(s.scale).String() }

func (s longStrategy) one() int64 { return numeric.One[s.scale] }

func (s longStrategy) constant(e *stack.Emitter, v any) error {
	d, ok := decimalOf(v)
	if !ok {
		return unsupportedConstant(v, s)
	}
	scaled := d.Shift(int32(s.scale)).Round(0)
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return UnsupportedDataType.New("Constant %s does not fit a %s.", d, s)
	}
	e.Const(numeric.FromDecimal(d, s.scale))
	return nil
}

func (longStrategy) zero(e *stack.Emitter)           { e.Const(int64(0)) }
func (longStrategy) minValue(e *stack.Emitter) error { e.Const(int64(math.MinInt64)); return nil }
func (longStrategy) maxValue(e *stack.Emitter) error { e.Const(int64(math.MaxInt64)); return nil }

func (s longStrategy) unary(e *stack.Emitter, op ir.Op) error {
	switch op {
	case ir.OpMinus:
		e.Op(stack.LNeg)
	case ir.OpPercent:
		e.Call("i64.percent", 1)
	case ir.OpPlus:
	default:
		return unsupportedOperator(op, s)
	}
	return nil
}

func (s longStrategy) binary(e *stack.Emitter, op ir.Op) error {
	switch op {
	case ir.OpPlus:
		e.Op(stack.LAdd)
	case ir.OpMinus:
		e.Op(stack.LSub)
	case ir.OpTimes:
		if s.scale == 0 {
			e.Op(stack.LMul)
		} else {
			e.Call("i64.mul", 2)
		}
	case ir.OpDivide:
		e.Call("i64.div", 2)
	case ir.OpExp:
		e.Call("i64.POWER", 2)
	case ir.OpMin:
		e.Call("i64.min", 2)
	case ir.OpMax:
		e.Call("i64.max", 2)
	default:
		return unsupportedOperator(op, s)
	}
	return nil
}

func (longStrategy) compare(e *stack.Emitter, _ bool) { e.Op(stack.LCmp) }

func (s longStrategy) fromInt(e *stack.Emitter) {
	e.Op(stack.I2L)
	if s.scale > 0 {
		e.Const(s.one())
		e.Op(stack.LMul)
	}
}

func (s longStrategy) toInt(e *stack.Emitter) {
	if s.scale == 0 {
		e.Op(stack.L2I)
		return
	}
	e.Call("i64.toInt", 1)
}

func (longStrategy) fromF64(e *stack.Emitter) { e.Call("i64.fromF64", 1) }
func (longStrategy) toF64(e *stack.Emitter)   { e.Call("i64.toF64", 1) }

// decimalStrategy works on decimal.Decimal, rounded by the runtime context
type decimalStrategy struct {
	t numeric.Type
}

func (decimalStrategy) kind() stack.Kind { return stack.KindDec }
func (decimalStrategy) prefix() string   { return "dec" }
func (s decimalStrategy) String() string { return s.t.String() }

func (s decimalStrategy) constant(e *stack.Emitter, v any) error {
	d, ok := decimalOf(v)
	if !ok {
		return unsupportedConstant(v, s)
	}
	if s.t.Kind == numeric.KindPrecisionDecimal {
		d = numeric.ContextOf(s.t).Adjust(d)
	}
	e.Const(d)
	return nil
}

func (decimalStrategy) zero(e *stack.Emitter) { e.Const(decimal.Zero) }

// minValue and maxValue push the unbounded seed that dec.min and dec.max
// skip over.
func (decimalStrategy) minValue(e *stack.Emitter) error { e.Const(stdlib.Extremum); return nil }
func (decimalStrategy) maxValue(e *stack.Emitter) error { e.Const(stdlib.Extremum); return nil }

func (s decimalStrategy) unary(e *stack.Emitter, op ir.Op) error {
	switch op {
	case ir.OpMinus:
		e.Call("dec.neg", 1)
	case ir.OpPercent:
		e.Call("dec.percent", 1)
	case ir.OpPlus:
	default:
		return unsupportedOperator(op, s)
	}
	return nil
}

var decimalOps = map[ir.Op]string{
	ir.OpPlus:   "dec.add",
	ir.OpMinus:  "dec.sub",
	ir.OpTimes:  "dec.mul",
	ir.OpDivide: "dec.div",
	ir.OpExp:    "dec.POWER",
	ir.OpMin:    "dec.min",
	ir.OpMax:    "dec.max",
}

func (s decimalStrategy) binary(e *stack.Emitter, op ir.Op) error {
	fn, ok := decimalOps[op]
	if !ok {
		return unsupportedOperator(op, s)
	}
	e.Call(fn, 2)
	return nil
}

func (decimalStrategy) compare(e *stack.Emitter, _ bool) { e.Call("dec.cmp", 2) }
func (decimalStrategy) fromInt(e *stack.Emitter)         { e.Call("dec.fromInt", 1) }
func (decimalStrategy) toInt(e *stack.Emitter)           { e.Call("dec.toInt", 1) }
func (decimalStrategy) fromF64(e *stack.Emitter)         { e.Call("dec.fromF64", 1) }
func (decimalStrategy) toF64(e *stack.Emitter)           { e.Call("dec.toF64", 1) }

// stringStrategy works on text
type stringStrategy struct{}

func (stringStrategy) kind() stack.Kind { return stack.KindStr }
func (stringStrategy) prefix() string   { return "str" }
func (stringStrategy) String() string   { return "string" }

func (s stringStrategy) constant(e *stack.Emitter, v any) error {
	switch x := v.(type) {
	case nil:
		e.Const("")
	case string:
		e.Const(x)
	case bool:
		if x {
			e.Const("TRUE")
		} else {
			e.Const("FALSE")
		}
	default:
		return unsupportedConstant(v, s)
	}
	return nil
}

func (stringStrategy) zero(e *stack.Emitter) { e.Const("") }

func (s stringStrategy) minValue(*stack.Emitter) error {
	return UnsupportedExpression.New("There is no minimum value for %s.", s)
}

func (s stringStrategy) maxValue(*stack.Emitter) error {
	return UnsupportedExpression.New("There is no maximum value for %s.", s)
}

func (s stringStrategy) unary(_ *stack.Emitter, op ir.Op) error {
	return unsupportedOperator(op, s)
}

func (s stringStrategy) binary(e *stack.Emitter, op ir.Op) error {
	if op != ir.OpConcat {
		return unsupportedOperator(op, s)
	}
	e.Call("str.concat", 2)
	return nil
}

func (stringStrategy) compare(e *stack.Emitter, _ bool) { e.Call("str.compare", 2) }
