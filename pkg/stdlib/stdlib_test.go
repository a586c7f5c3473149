package stdlib

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

func call(t *testing.T, ctx *Context, name string, args ...any) any {
	t.Helper()
	fn, ok := Default().Lookup(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	v, err := fn(ctx, args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return v
}

func fault(t *testing.T, ctx *Context, name string, args ...any) *Fault {
	t.Helper()
	fn, _ := Default().Lookup(name)
	_, err := fn(ctx, args)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("%s: expected fault, got %v", name, err)
	}
	return f
}

func TestDoubleFunctions(t *testing.T) {
	ctx := NewContext(numeric.Double)
	tests := []struct {
		name string
		args []any
		want any
	}{
		{"f64.ROUND", []any{2.675, 2}, 2.68},
		{"f64.ROUNDDOWN", []any{-2.5, 0}, -2.0},
		{"f64.ROUNDUP", []any{2.01, 1}, 2.1},
		{"f64.INT", []any{-1.5}, -2.0},
		{"f64.MOD", []any{-3.0, 2.0}, 1.0},
		{"f64.SIGN", []any{-0.5}, -1.0},
		{"f64.percent", []any{50.0}, 0.5},
		{"f64.max", []any{1.0, 3.0}, 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := call(t, ctx, tt.name, tt.args...); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if f := fault(t, ctx, "f64.MOD", 1.0, 0.0); f.Kind != DivZero {
		t.Errorf("MOD by zero kind = %s", f.Kind)
	}
}

func TestScaledLongFunctions(t *testing.T) {
	ctx := NewContext(numeric.ScaledLong(4))
	if got := call(t, ctx, "i64.mul", int64(15000), int64(20000)); got != int64(30000) {
		t.Errorf("1.5 * 2 = %v", got)
	}
	if got := call(t, ctx, "i64.div", int64(10000), int64(30000)); got != int64(3333) {
		t.Errorf("1 / 3 = %v", got)
	}
	if got := call(t, ctx, "i64.ROUND", int64(26750), 1); got != int64(27000) {
		t.Errorf("ROUND(2.675, 1) = %v", got)
	}
	if got := call(t, ctx, "i64.toInt", int64(-25000)); got != -2 {
		t.Errorf("toInt(-2.5) = %v", got)
	}
	if f := fault(t, ctx, "i64.div", int64(1), int64(0)); f.Kind != DivZero {
		t.Errorf("division by zero kind = %s", f.Kind)
	}
}

func TestDecimalFunctions(t *testing.T) {
	d := decimal.RequireFromString
	scaled := NewContext(numeric.BigDecimal(2, numeric.HalfUp))
	if got := call(t, scaled, "dec.div", d("1"), d("3")).(decimal.Decimal); !got.Equal(d("0.33")) {
		t.Errorf("1/3 at scale 2 = %s", got)
	}
	precise := NewContext(numeric.Precision(3, numeric.HalfUp))
	if got := call(t, precise, "dec.mul", d("1.234"), d("10")).(decimal.Decimal); !got.Equal(d("12.3")) {
		t.Errorf("precision 3 product = %s", got)
	}
	if got := call(t, scaled, "dec.cmp", d("1.5"), d("1.50")); got != 0 {
		t.Errorf("cmp = %v", got)
	}
	if f := fault(t, scaled, "dec.div", d("1"), decimal.Zero); f.Kind != DivZero {
		t.Errorf("division by zero kind = %s", f.Kind)
	}
}

func TestDecimalExtremumSeed(t *testing.T) {
	d := decimal.RequireFromString
	ctx := NewContext(numeric.BigDecimal(2, numeric.HalfUp))
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"dec.min", []any{Extremum, d("-3")}, "-3"},
		{"dec.min", []any{d("4"), Extremum}, "4"},
		{"dec.min", []any{d("4"), d("-3")}, "-3"},
		{"dec.max", []any{Extremum, d("-3")}, "-3"},
		{"dec.max", []any{d("4"), d("-3")}, "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := call(t, ctx, tt.name, tt.args...).(decimal.Decimal)
			if !ok || !got.Equal(d(tt.want)) {
				t.Errorf("%s%v = %v, want %s", tt.name, tt.args, got, tt.want)
			}
		})
	}
}

func TestStringFunctions(t *testing.T) {
	ctx := NewContext(numeric.Double)
	env := DefaultEnvironment()
	tests := []struct {
		name string
		args []any
		want any
	}{
		{"str.concat", []any{"a", "b", "c"}, "abc"},
		{"str.equal", []any{"Abc", "aBC"}, 1},
		{"str.compare", []any{"b", "A"}, 1},
		{"str.TRIM", []any{"  a   b "}, "a b"},
		{"str.LEFT", []any{"hello", 2}, "he"},
		{"str.RIGHT", []any{"hello", 10}, "hello"},
		{"str.MID", []any{"hello", 2, 3}, "ell"},
		{"str.FIND", []any{"l", "hello", 1}, 3},
		{"str.SEARCH", []any{env, "L", "hello", 4}, 4},
		{"str.SUBSTITUTE", []any{"a-b-c", "-", "+", 2}, "a-b+c"},
		{"str.REPT", []any{"ab", 3}, "ababab"},
		{"str.UPPER", []any{env, "abc"}, "ABC"},
		{"str.TEXT", []any{env, 1234.5, "#,##0.00"}, "1,234.50"},
		{"str.TEXT", []any{env, 0.125, "0.0%"}, "12.5%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := call(t, ctx, tt.name, tt.args...); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if f := fault(t, ctx, "str.FIND", "z", "hello", 1); f.Kind != Value {
		t.Errorf("FIND miss kind = %s", f.Kind)
	}
}

func TestMatch(t *testing.T) {
	arr := []any{1.0, 3.0, 5.0, 7.0}
	tests := []struct {
		v    float64
		typ  MatchType
		want int
	}{
		{5, MatchExact, 3},
		{6, MatchAscending, 3},
		{7, MatchAscending, 4},
	}
	for _, tt := range tests {
		got, err := Match(tt.v, arr, tt.typ, cmpF64)
		if err != nil || got != tt.want {
			t.Errorf("MATCH(%v, %d) = %d, %v; want %d", tt.v, tt.typ, got, err, tt.want)
		}
	}
	desc := []any{7.0, 5.0, 3.0}
	if got, _ := Match(4.0, desc, MatchDescending, cmpF64); got != 2 {
		t.Errorf("descending MATCH = %d, want 2", got)
	}
	if _, err := Match(0.5, arr, MatchAscending, cmpF64); err == nil {
		t.Error("expected #N/A below the first element")
	}
	if got, _ := Match("B", []any{"a", "b"}, MatchExact, cmpStr); got != 2 {
		t.Errorf("case-insensitive MATCH = %d", got)
	}
}

func TestConversions(t *testing.T) {
	ctx := NewContext(numeric.ScaledLong(2))
	env := &Environment{DecimalSeparator: ','}
	if got := call(t, ctx, "i64.fromStr", env, "1,5"); got != int64(150) {
		t.Errorf("fromStr = %v", got)
	}
	if got := call(t, ctx, "i64.toStr", env, int64(150)); got != "1.5" {
		t.Errorf("toStr = %v", got)
	}
	if got := call(t, ctx, "ext.i64", env, 3, -1); got != int64(300) {
		t.Errorf("ext.i64 = %v", got)
	}
	if got := call(t, ctx, "ext.to", env, int64(250), reflect.TypeOf(0.0), -1); got != 2.5 {
		t.Errorf("ext.to = %v", got)
	}
	if f := fault(t, ctx, "f64.fromStr", env, "abc"); f.Kind != Value {
		t.Errorf("fromStr kind = %s", f.Kind)
	}
}

func TestDates(t *testing.T) {
	ctx := NewContext(numeric.Double)
	env := DefaultEnvironment()
	serial := call(t, ctx, "f64.DATE", env, 2024.0, 2.0, 29.0).(float64)
	if got := call(t, ctx, "f64.MONTH", env, serial); got != 2.0 {
		t.Errorf("MONTH = %v", got)
	}
	now := time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC)
	if got := call(t, ctx, "f64.TODAY", env, now); got != serial {
		t.Errorf("TODAY = %v, want %v", got, serial)
	}
}

func TestFaultCodes(t *testing.T) {
	if KindOfCode("#DIV/0!") != DivZero || DivZero.Code() != "#DIV/0!" {
		t.Error("DivZero code mapping broken")
	}
	if (&Fault{Kind: NotAvailable}).IsError() {
		t.Error("#N/A must not count for ISERR")
	}
}
