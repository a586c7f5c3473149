// Package vm executes linked programs.
//
// Design: A plain stack machine. Each routine activation owns its locals and
// operand stack; Invoke recurses on the Go stack. Faults raised by Throw or by
// runtime functions unwind to the innermost handler covering the faulting
// instruction, otherwise they return to the caller as errors.
package vm

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/linker"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// Fault is a typed runtime failure raised by generated code
type Fault = stdlib.Fault

// Environment carries the locale and clock of computations
type Environment = stdlib.Environment

// MaxDepth bounds routine nesting
const MaxDepth = 1000

// Machine executes the routines of one linked image
type Machine struct {
	img     *linker.Image
	lib     *stdlib.Registry
	ctx     *stdlib.Context
	natives map[string]native
	depth   int
}

type native func(args []any) (any, error)

// enter runs a routine from outside the machine, turning machine panics
// (ill-typed code) into errors.
func (m *Machine) enter(self *Object, r *stack.Routine, args []any) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			m.depth = 0
			err = errors.Errorf("vm: %s.%s: %v", self.unit.Name, r.Name, p)
		}
	}()
	return m.run(self, r, args)
}

func (m *Machine) run(self *Object, r *stack.Routine, args []any) (any, error) {
	m.depth++
	defer func() { m.depth-- }()
	if m.depth > MaxDepth {
		return nil, errors.Errorf("vm: routine nesting exceeds %d in %s", MaxDepth, r.Name)
	}

	locals := make([]any, max(r.MaxLocals, len(args)+1))
	locals[0] = self
	copy(locals[1:], args)
	st := make([]any, 0, 8)

	push := func(v any) { st = append(st, v) }
	pop := func() any {
		v := st[len(st)-1]
		st = st[:len(st)-1]
		return v
	}
	popN := func(n int) []any {
		out := append([]any(nil), st[len(st)-n:]...)
		st = st[:len(st)-n]
		return out
	}

	code := r.Code
	for pc := 0; pc < len(code); {
		in := &code[pc]
		at := pc
		pc++
		var err error

		switch in.Op {
		case stack.Nop:
		case stack.Const:
			push(in.Value)
		case stack.Load:
			push(locals[in.A])
		case stack.Store:
			locals[in.A] = pop()
		case stack.Dup:
			push(st[len(st)-1])
		case stack.Pop:
			pop()
		case stack.Swap:
			n := len(st)
			st[n-1], st[n-2] = st[n-2], st[n-1]

		case stack.IAdd, stack.ISub, stack.IMul, stack.ICmp:
			b, a := pop().(int), pop().(int)
			push(intOp(in.Op, a, b))
		case stack.INeg:
			push(-pop().(int))
		case stack.IInc:
			locals[in.A] = locals[in.A].(int) + in.B

		case stack.FAdd, stack.FSub, stack.FMul, stack.FDiv:
			b, a := pop().(float64), pop().(float64)
			push(floatOp(in.Op, a, b))
		case stack.FNeg:
			push(-pop().(float64))
		case stack.FCmpL, stack.FCmpG:
			b, a := pop().(float64), pop().(float64)
			push(fcmp(a, b, in.Op == stack.FCmpG))

		case stack.LAdd, stack.LSub, stack.LMul, stack.LCmp:
			b, a := pop().(int64), pop().(int64)
			push(longOp(in.Op, a, b))
		case stack.LNeg:
			push(-pop().(int64))

		case stack.I2F:
			push(float64(pop().(int)))
		case stack.I2L:
			push(int64(pop().(int)))
		case stack.L2I:
			push(int(pop().(int64)))
		case stack.L2F:
			push(float64(pop().(int64)))
		case stack.F2I:
			push(int(math.Trunc(pop().(float64))))
		case stack.F2L:
			push(int64(math.Round(pop().(float64))))

		case stack.Goto:
			pc = in.Label.Pos
		case stack.IfEq, stack.IfNe, stack.IfLt, stack.IfGe, stack.IfGt, stack.IfLe:
			if zeroTest(in.Op, pop().(int)) {
				pc = in.Label.Pos
			}
		case stack.IfTrue, stack.IfFalse:
			if pop().(bool) == (in.Op == stack.IfTrue) {
				pc = in.Label.Pos
			}
		case stack.IfNull, stack.IfNonNull:
			if isNull(pop()) == (in.Op == stack.IfNull) {
				pc = in.Label.Pos
			}
		case stack.TableSwitch:
			k := pop().(int) - in.A
			if k >= 0 && k < len(in.Targets) {
				pc = in.Targets[k].Pos
			} else {
				pc = in.Label.Pos
			}

		case stack.GetField:
			push(pop().(*Object).field(in.S))
		case stack.PutField:
			v := pop()
			pop().(*Object).setField(in.S, v)
		case stack.NewUnit:
			parent := pop()
			input := pop()
			var obj *Object
			obj, err = m.instantiate(in.S, input, parent)
			if err == nil {
				push(obj)
			}

		case stack.Invoke:
			args := popN(in.A)
			recv := pop().(*Object)
			target := recv.unit.Routine(in.S)
			if target == nil {
				err = errors.Errorf("vm: unit %s has no routine %s", recv.unit.Name, in.S)
				break
			}
			var v any
			if v, err = m.run(recv, target, args); err == nil && in.B == 1 {
				push(v)
			}
		case stack.InvokeDelegate:
			args := popN(in.A)
			recv := pop().(*Object)
			var v any
			if v, err = interop.Call(recv.field(stack.FieldDelegate), in.S, args); err == nil && in.B == 1 {
				push(v)
			}
		case stack.Call:
			var v any
			if v, err = m.call(in.S, popN(in.A)); err == nil {
				push(v)
			}
		case stack.Input:
			args := popN(in.A)
			var v any
			if v, err = interop.Call(pop(), in.S, args); err == nil {
				push(v)
			}

		case stack.NewArray:
			push(make([]any, pop().(int)))
		case stack.ALoad:
			i := pop().(int)
			arr := pop().([]any)
			if i < 0 || i >= len(arr) {
				err = stdlib.NewFault(stdlib.IndexOutOfRange, "index %d outside array of %d", i, len(arr))
				break
			}
			push(arr[i])
		case stack.AStore:
			v := pop()
			i := pop().(int)
			pop().([]any)[i] = v
		case stack.ALength:
			push(len(pop().([]any)))
		case stack.Shape:
			push(int(interop.ShapeOf(pop())))

		case stack.Throw:
			msg, _ := in.Value.(string)
			err = &Fault{Kind: stdlib.FaultKind(in.S), Message: msg}
		case stack.Return:
			if in.A == 1 {
				return pop(), nil
			}
			return nil, nil

		default:
			return nil, errors.Errorf("vm: %s: unknown opcode %s", r.Name, in.Op)
		}

		if err != nil {
			target := handlerFor(r, at, err)
			if target < 0 {
				return nil, err
			}
			st = st[:0]
			pc = target
		}
	}
	return nil, errors.Errorf("vm: %s: fell off end of routine", r.Name)
}

func (m *Machine) call(name string, args []any) (any, error) {
	if fn, ok := m.natives[name]; ok {
		return fn(args)
	}
	fn, ok := m.lib.Lookup(name)
	if !ok {
		return nil, errors.Errorf("vm: unknown function %s", name)
	}
	return fn(m.ctx, args)
}

// instantiate creates a section instance bound to input below parent. The
// root of the tree is the instance without a parent.
func (m *Machine) instantiate(unit string, input, parent any) (*Object, error) {
	u := m.img.Unit(unit)
	if u == nil {
		return nil, errors.Errorf("vm: unknown unit %s", unit)
	}
	obj := m.newObject(u)
	obj.setField(stack.FieldInputs, input)
	if p, ok := parent.(*Object); ok && p != nil {
		obj.setField(stack.FieldParent, p)
		obj.setField(stack.FieldRoot, p.field(stack.FieldRoot))
		if env := p.field(stack.FieldEnvironment); env != nil {
			obj.setField(stack.FieldEnvironment, env)
		}
	} else {
		obj.setField(stack.FieldRoot, obj)
	}
	return obj, nil
}

// handlerFor finds the handler covering pc for a fault. Errors that are not
// faults are never handled.
func handlerFor(r *stack.Routine, pc int, err error) int {
	var f *Fault
	if !errors.As(err, &f) {
		return -1
	}
	for _, h := range r.Handlers {
		if pc >= h.Start.Pos && pc < h.End.Pos && h.Catches(string(f.Kind)) {
			return h.Target.Pos
		}
	}
	return -1
}

func isNull(v any) bool {
	return v == nil || interop.ShapeOf(v) == interop.ShapeNull
}

func zeroTest(op stack.Op, v int) bool {
	switch op {
	case stack.IfEq:
		return v == 0
	case stack.IfNe:
		return v != 0
	case stack.IfLt:
		return v < 0
	case stack.IfGe:
		return v >= 0
	case stack.IfGt:
		return v > 0
	case stack.IfLe:
		return v <= 0
	}
	panic(fmt.Sprintf("vm: %s is not a zero test", op))
}

func compare[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func intOp(op stack.Op, a, b int) int {
	switch op {
	case stack.IAdd:
		return a + b
	case stack.ISub:
		return a - b
	case stack.IMul:
		return a * b
	}
	return compare(a, b)
}

func longOp(op stack.Op, a, b int64) any {
	switch op {
	case stack.LAdd:
		return a + b
	case stack.LSub:
		return a - b
	case stack.LMul:
		return a * b
	}
	return compare(a, b)
}

func floatOp(op stack.Op, a, b float64) float64 {
	switch op {
	case stack.FAdd:
		return a + b
	case stack.FSub:
		return a - b
	case stack.FMul:
		return a * b
	}
	return a / b
}

// fcmp compares with NaN ranking below (FCmpL) or above (FCmpG) everything
func fcmp(a, b float64, nanGreater bool) int {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanGreater {
			return 1
		}
		return -1
	}
	return compare(a, b)
}
