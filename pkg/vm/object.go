package vm

import (
	"fmt"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/linker"
)

// Object is an instance of a linked unit: the factory, the root section or
// one element of a repeating section.
type Object struct {
	unit   *linker.Unit
	fields []any
	m      *Machine
}

func (m *Machine) newObject(u *linker.Unit) *Object {
	return &Object{unit: u, fields: make([]any, len(u.Fields)), m: m}
}

// Unit is the name of the object's unit
func (o *Object) Unit() string { return o.unit.Name }

// Input is the input value the object was created from
func (o *Object) Input() any { return o.fields[0] }

// Parent is the enclosing section instance, nil for the root
func (o *Object) Parent() *Object {
	p, _ := o.field(stack.FieldParent).(*Object)
	return p
}

func (o *Object) field(name string) any {
	i, ok := o.unit.Field(name)
	if !ok {
		panic(fmt.Sprintf("vm: unit %s has no field %s", o.unit.Name, name))
	}
	return o.fields[i]
}

func (o *Object) setField(name string, v any) {
	i, ok := o.unit.Field(name)
	if !ok {
		panic(fmt.Sprintf("vm: unit %s has no field %s", o.unit.Name, name))
	}
	o.fields[i] = v
}

// Outputs lists the output methods the object's unit implements
func (o *Object) Outputs() []string {
	var names []string
	for _, r := range o.m.img.Program.Unit(o.unit.Name).Routines {
		if r.Exported {
			names = append(names, r.Name)
		}
	}
	return names
}

// Output calls an output method. Integer arguments are widened to int64 and
// float32 to float64 before dispatch. A method without generated code falls
// back to the output type's implementation.
func (o *Object) Output(method string, args ...any) (any, error) {
	args = interop.Normalize(args)
	if r := o.unit.Routine(method); r != nil && r.Exported {
		if len(args) != len(r.Params) {
			return nil, fmt.Errorf("vm: %s.%s takes %d arguments, got %d", o.unit.Name, method, len(r.Params), len(args))
		}
		return o.m.enter(o, r, args)
	}
	if d := o.field(stack.FieldDelegate); d != nil {
		return interop.Call(d, method, args)
	}
	return nil, fmt.Errorf("vm: %s has no output method %s", o.unit.Name, method)
}

func (o *Object) String() string {
	return fmt.Sprintf("%s@%p", o.unit.Name, o)
}
