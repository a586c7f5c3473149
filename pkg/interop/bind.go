// Accessor binding against static input and output types
package interop

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// Bind resolves method on the input type t into a call frame. Map types
// bind any key and yield dynamically typed values.
func Bind(t reflect.Type, method string, args ...any) (*ir.CallFrame, error) {
	return bind(nil, t, method, args)
}

// Then chains a further accessor on the result of prev
func Then(prev *ir.CallFrame, method string, args ...any) (*ir.CallFrame, error) {
	return bind(prev, prev.Result, method, args)
}

func bind(prev *ir.CallFrame, t reflect.Type, method string, args []any) (*ir.CallFrame, error) {
	if t == nil {
		return nil, errors.Errorf("interop: cannot bind %s on an untyped input", method)
	}
	f := &ir.CallFrame{Method: method, Args: args, Prev: prev, Scale: -1}

	switch {
	case t.Kind() == reflect.Map:
		f.Result = t.Elem()
		return f, nil
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		f.Result = anyType
		return f, nil
	}

	m, ok := t.MethodByName(method)
	if !ok {
		st := t
		for st.Kind() == reflect.Ptr {
			st = st.Elem()
		}
		if st.Kind() == reflect.Struct {
			if sf, found := st.FieldByName(method); found && len(args) == 0 {
				f.Result = sf.Type
				return f, nil
			}
		}
		return nil, errors.Errorf("interop: %s has no accessor %s", t, method)
	}

	mt := m.Type
	offset := 0
	if t.Kind() != reflect.Interface {
		offset = 1
	}
	if mt.NumIn()-offset != len(args) {
		return nil, errors.Errorf("interop: %s.%s takes %d arguments, bound with %d", t, method, mt.NumIn()-offset, len(args))
	}
	if mt.NumOut() == 0 {
		return nil, errors.Errorf("interop: %s.%s returns nothing", t, method)
	}
	for i := offset; i < mt.NumIn(); i++ {
		f.Params = append(f.Params, mt.In(i))
	}
	f.Result = mt.Out(0)
	return f, nil
}

// Scaled annotates the frame's integer result with scale implied decimals
func Scaled(f *ir.CallFrame, scale int) (*ir.CallFrame, error) {
	if err := numeric.CheckScale(scale); err != nil {
		return nil, errors.Wrapf(err, "interop: %s", f.Method)
	}
	f.Scale = scale
	return f, nil
}

// Out binds an output method returning result. Args are the dispatch keys
// callers must pass for this binding to apply.
func Out(method string, result reflect.Type, args ...any) *ir.OutputBinding {
	b := &ir.OutputBinding{Method: method, Args: args, Result: result, Scale: -1}
	for _, a := range args {
		b.Params = append(b.Params, reflect.TypeOf(a))
	}
	return b
}
