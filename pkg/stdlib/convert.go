// Conversions between external values, text and the numeric domains
package stdlib

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

// ParseNumber reads text as a number using the environment's decimal
// separator. Empty text is zero.
func ParseNumber(env *Environment, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	if sep := env.DecimalSeparator; sep != 0 && sep != '.' {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, string(sep), ".")
	}
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewFault(Value, "%q is not a number", s)
	}
	if percent {
		d = d.Shift(-2)
	}
	return d, nil
}

func registerConversions(r *Registry) {
	r.Register("f64.fromStr", func(_ *Context, a []any) (any, error) {
		d, err := ParseNumber(envOf(a[0]), str(a, 1))
		if err != nil {
			return nil, err
		}
		return d.InexactFloat64(), nil
	})
	r.Register("i64.fromStr", func(c *Context, a []any) (any, error) {
		d, err := ParseNumber(envOf(a[0]), str(a, 1))
		if err != nil {
			return nil, err
		}
		return numeric.FromDecimal(d, c.Scale()), nil
	})
	r.Register("dec.fromStr", func(c *Context, a []any) (any, error) {
		d, err := ParseNumber(envOf(a[0]), str(a, 1))
		if err != nil {
			return nil, err
		}
		return c.adjust(d), nil
	})
	r.Register("f64.toStr", func(_ *Context, a []any) (any, error) {
		return decimal.NewFromFloat(f64(a, 1)).String(), nil
	})
	r.Register("i64.toStr", func(c *Context, a []any) (any, error) {
		return numeric.ToDecimal(i64(a, 1), c.Scale()).String(), nil
	})
	r.Register("dec.toStr", func(_ *Context, a []any) (any, error) {
		return dec(a, 1).String(), nil
	})

	// External values: env, value, scale annotation
	r.Register("ext.f64", func(_ *Context, a []any) (any, error) {
		return interop.ToFloat(a[1], num(a, 2), envOf(a[0]).Loc())
	})
	r.Register("ext.i64", func(c *Context, a []any) (any, error) {
		return interop.ToScaled(a[1], num(a, 2), c.Scale(), envOf(a[0]).Loc())
	})
	r.Register("ext.dec", func(c *Context, a []any) (any, error) {
		d, err := interop.ToDecimal(a[1], num(a, 2), envOf(a[0]).Loc())
		if err != nil {
			return nil, err
		}
		return c.adjust(d), nil
	})
	r.Register("ext.str", func(_ *Context, a []any) (any, error) {
		return interop.ToString(a[1]), nil
	})
	// env, value, external type, scale annotation
	r.Register("ext.to", func(c *Context, a []any) (any, error) {
		t, _ := a[2].(reflect.Type)
		return interop.FromNative(a[1], c.Scale(), t, num(a, 3), envOf(a[0]).Loc())
	})
}
