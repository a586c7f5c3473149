// Package interop implements the boundary between computations and the Go
// values they read from and write to.
//
// Design: Accessors are bound once against static Go types and invoked
// reflectively at run time. Containers are classified into a closed set of
// shapes, and external values convert to and from the internal numeric
// representations in one place.
package interop

import (
	"github.com/goccy/go-reflect"
	"github.com/pkg/errors"
)

// Call invokes the accessor method on recv. Maps are read by key, structs
// fall back to an exported field of the same name.
func Call(recv any, method string, args []any) (any, error) {
	if recv == nil {
		return nil, errors.Errorf("interop: cannot call %s on nil input", method)
	}
	if m, ok := recv.(map[string]any); ok {
		v, found := m[method]
		if !found {
			return nil, errors.Errorf("interop: input has no key %q", method)
		}
		return v, nil
	}

	rv := reflect.ValueOf(recv)
	fn := rv.MethodByName(method)
	if !fn.IsValid() {
		return field(rv, method)
	}

	ft := fn.Type()
	if !ft.IsVariadic() && ft.NumIn() != len(args) {
		return nil, errors.Errorf("interop: %s takes %d arguments, got %d", method, ft.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		want := ft.In(min(i, ft.NumIn()-1))
		if a == nil {
			in[i] = reflect.Zero(want)
			continue
		}
		v := reflect.ValueOf(a)
		switch {
		case v.Type().AssignableTo(want):
			in[i] = v
		case v.Type().ConvertibleTo(want):
			in[i] = v.Convert(want)
		default:
			return nil, errors.Errorf("interop: argument %d of %s: %T is not assignable to %s", i, method, a, want)
		}
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return nil, errors.Wrapf(err, "interop: %s failed", method)
		}
		return out[0].Interface(), nil
	}
}

func field(rv reflect.Value, name string) (any, error) {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, errors.Errorf("interop: nil pointer reading %s", name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	return nil, errors.Errorf("interop: %s has no method or field %s", rv.Type(), name)
}

// Normalize widens integer arguments to int64 and floats to float64 so that
// output dispatch compares them uniformly.
func Normalize(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = normalize(a)
	}
	return out
}

func normalize(a any) any {
	switch v := a.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return a
}

// Equal compares two external values for output dispatch
func Equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.ValueOf(a).Type().Comparable() && reflect.ValueOf(b).Type().Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
