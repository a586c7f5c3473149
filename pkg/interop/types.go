// External value conversion
package interop

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	decimalType  = reflect.TypeOf(decimal.Decimal{})
)

// Supported reports whether values of t can cross the boundary
func Supported(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t {
	case timeType, durationType, decimalType:
		return true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool, reflect.String, reflect.Interface:
		return true
	case reflect.Ptr:
		return Supported(t.Elem())
	}
	return false
}

// IsTextual reports whether t carries text
func IsTextual(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.String
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// SerialDate converts a calendar instant to spreadsheet days in loc
func SerialDate(t time.Time, loc *time.Location) float64 {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	y, m, d := l.Date()
	wall := time.Date(y, m, d, l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
	return wall.Sub(excelEpoch).Hours() / 24
}

// TimeOf converts spreadsheet days back to a calendar instant in loc
func TimeOf(serial float64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	ms := int64(math.Round(serial * 86400000))
	wall := excelEpoch.Add(time.Duration(ms) * time.Millisecond)
	y, m, d := wall.Date()
	return time.Date(y, m, d, wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), loc)
}

// ToDecimal converts an external value to an exact decimal. Integers carrying
// a scale annotation are unscaled.
func ToDecimal(v any, scale int, loc *time.Location) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, nil
		}
		return *x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case bool:
		if x {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "interop: %q is not a number", x)
		}
		return d, nil
	case time.Time:
		return decimal.NewFromFloat(SerialDate(x, loc)), nil
	case time.Duration:
		return decimal.New(x.Milliseconds(), 0).Div(decimal.New(86400000, 0)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if scale > 0 {
			return decimal.New(rv.Int(), -int32(scale)), nil
		}
		return decimal.New(rv.Int(), 0), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(rv.Uint()), 0), nil
	case reflect.Float32, reflect.Float64:
		return decimal.NewFromFloat(rv.Float()), nil
	case reflect.String:
		return ToDecimal(rv.String(), scale, loc)
	case reflect.Bool:
		return ToDecimal(rv.Bool(), scale, loc)
	case reflect.Ptr:
		if rv.IsNil() {
			return decimal.Zero, nil
		}
		return ToDecimal(rv.Elem().Interface(), scale, loc)
	}
	return decimal.Zero, errors.Errorf("interop: cannot convert %T to a number", v)
}

// ToFloat converts an external value to a double
func ToFloat(v any, scale int, loc *time.Location) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		if scale <= 0 {
			return float64(x), nil
		}
	case int64:
		if scale <= 0 {
			return float64(x), nil
		}
	case time.Time:
		return SerialDate(x, loc), nil
	case time.Duration:
		return float64(x.Milliseconds()) / 86400000, nil
	}
	d, err := ToDecimal(v, scale, loc)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// ToScaled converts an external value to an int64 with want implied decimals
func ToScaled(v any, scale, want int, loc *time.Location) (int64, error) {
	switch x := v.(type) {
	case int64:
		return rescaleInt(x, scale, want)
	case int:
		return rescaleInt(int64(x), scale, want)
	case float64:
		return numeric.FromFloat(x, want), nil
	}
	d, err := ToDecimal(v, scale, loc)
	if err != nil {
		return 0, err
	}
	return numeric.FromDecimal(d, want), nil
}

// rescaleInt converts an integer input with scale implied decimals, or a
// plain integer when scale is negative.
func rescaleInt(x int64, scale, want int) (int64, error) {
	if scale < 0 {
		scale = 0
	}
	v, err := numeric.Rescale(x, scale, want)
	if err != nil {
		return 0, errors.Wrapf(err, "interop: cannot scale %d", x)
	}
	return v, nil
}

// ToString converts an external value to text
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return fmt.Sprint(v)
}

// FromNative converts an internal value to the external type t. Scaled
// int64 values carry nativeScale implied decimals; scale is the annotation
// on the external type. A nil or interface type yields the natural Go value.
func FromNative(v any, nativeScale int, t reflect.Type, scale int, loc *time.Location) (any, error) {
	if t == nil || t.Kind() == reflect.Interface {
		if x, ok := v.(int64); ok {
			return numeric.ToDecimal(x, nativeScale), nil
		}
		return v, nil
	}

	var d decimal.Decimal
	switch x := v.(type) {
	case string:
		if t.Kind() == reflect.String {
			return reflect.ValueOf(x).Convert(t).Interface(), nil
		}
		var err error
		if d, err = ToDecimal(x, -1, loc); err != nil {
			return nil, err
		}
	case float64:
		if t.Kind() == reflect.Float64 || t.Kind() == reflect.Float32 {
			return reflect.ValueOf(x).Convert(t).Interface(), nil
		}
		d = decimal.NewFromFloat(x)
	case int64:
		d = numeric.ToDecimal(x, nativeScale)
	case int:
		d = decimal.NewFromInt(int64(x))
	case bool:
		if t.Kind() == reflect.Bool {
			return reflect.ValueOf(x).Convert(t).Interface(), nil
		}
		var err error
		if d, err = ToDecimal(x, -1, loc); err != nil {
			return nil, err
		}
	case decimal.Decimal:
		d = x
	case nil:
		return reflect.Zero(t).Interface(), nil
	default:
		return nil, errors.Errorf("interop: cannot convert %T to %s", v, t)
	}

	switch t {
	case decimalType:
		return d, nil
	case timeType:
		return TimeOf(d.InexactFloat64(), loc), nil
	case durationType:
		return time.Duration(d.Mul(decimal.New(86400000, 0)).Round(0).IntPart()) * time.Millisecond, nil
	}
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if scale > 0 {
			d = d.Shift(int32(scale))
		}
		out.SetInt(d.Round(0).IntPart())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if scale > 0 {
			d = d.Shift(int32(scale))
		}
		u := d.Round(0).BigInt()
		if !u.IsUint64() || out.OverflowUint(u.Uint64()) {
			return nil, errors.Errorf("interop: %s is out of range for %s", d, t)
		}
		out.SetUint(u.Uint64())
	case reflect.Float32, reflect.Float64:
		out.SetFloat(d.InexactFloat64())
	case reflect.Bool:
		out.SetBool(!d.IsZero())
	case reflect.String:
		out.SetString(d.String())
	default:
		return nil, errors.Errorf("interop: cannot convert %T to %s", v, t)
	}
	return out.Interface(), nil
}
