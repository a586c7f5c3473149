// Date functions over spreadsheet serial days
package stdlib

import (
	"math"
	"time"

	"github.com/GriffinCanCode/formulac/pkg/interop"
)

func registerDates(r *Registry) {
	r.Register("env.now", func(_ *Context, a []any) (any, error) {
		return envOf(a[0]).Now(), nil
	})
	r.Register("f64.NOW", func(_ *Context, a []any) (any, error) {
		env := envOf(a[0])
		return interop.SerialDate(a[1].(time.Time), env.Loc()), nil
	})
	r.Register("f64.TODAY", func(_ *Context, a []any) (any, error) {
		env := envOf(a[0])
		return math.Floor(interop.SerialDate(a[1].(time.Time), env.Loc())), nil
	})
	r.Register("f64.DATE", func(_ *Context, a []any) (any, error) {
		y, m, d := int(f64(a, 1)), int(f64(a, 2)), int(f64(a, 3))
		if y < 1900 && y >= 0 {
			y += 1900
		}
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		serial := interop.SerialDate(t, time.UTC)
		if serial < 0 {
			return nil, NewFault(Num, "DATE before 1900")
		}
		return serial, nil
	})
	part := func(name string, fn func(time.Time) int) {
		r.Register("f64."+name, func(_ *Context, a []any) (any, error) {
			serial := f64(a, 1)
			if serial < 0 {
				return nil, NewFault(Num, "%s of negative date", name)
			}
			return float64(fn(interop.TimeOf(serial, time.UTC))), nil
		})
	}
	part("YEAR", func(t time.Time) int { return t.Year() })
	part("MONTH", func(t time.Time) int { return int(t.Month()) })
	part("DAY", func(t time.Time) int { return t.Day() })
}
