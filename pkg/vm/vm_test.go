package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

type input struct {
	A float64
	B float64
}

func (in *input) Sum() float64 { return in.A + in.B }

type fallback struct{ in *input }

func (f *fallback) Label() string { return "default" }

func factoryUnit(withDelegate bool) *stack.Unit {
	u := stack.DeclareUnit("$Factory", "")
	e := stack.NewEmitter()
	e.Load(1)
	e.Const(nil)
	e.NewUnit("$Root")
	e.Op(stack.Dup)
	e.Load(0)
	e.GetField(stack.FieldEnvironment)
	e.PutField(stack.FieldEnvironment)
	if withDelegate {
		e.Op(stack.Dup)
		e.Load(1)
		e.Call(NativeNewDelegateWithInput, 1)
		e.PutField(stack.FieldDelegate)
	}
	e.Return(true)
	u.AddRoutine(e.Finish(stack.RoutineNewComputation, []stack.Kind{stack.KindRef}, stack.KindRef, 2))
	return u
}

func export(u *stack.Unit, r *stack.Routine) {
	r.Exported = true
	u.AddRoutine(r)
}

func program(root *stack.Unit, withDelegate bool) *stack.Program {
	return &stack.Program{
		Units:   []*stack.Unit{root, factoryUnit(withDelegate)},
		Numeric: numeric.Double,
		Root:    "$Root",
		Factory: "$Factory",
	}
}

func TestArithmeticAndInput(t *testing.T) {
	root := stack.DeclareUnit("$Root", "")
	e := stack.NewEmitter()
	e.Load(0)
	e.GetField(stack.FieldInputs)
	e.Input("Sum", 0)
	e.Const(2.0)
	e.Op(stack.FMul)
	e.Return(true)
	export(root, e.Finish("getDouble", nil, stack.KindF64, 1))

	eng, err := Load(program(root, false))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := eng.NewComputation(&input{A: 3, B: 4})
	if err != nil {
		t.Fatalf("NewComputation failed: %v", err)
	}
	got, err := c.Output("getDouble")
	if err != nil || got != 14.0 {
		t.Errorf("getDouble = %v, %v; want 14", got, err)
	}
}

func TestTableSwitch(t *testing.T) {
	root := stack.DeclareUnit("$Root", "")
	e := stack.NewEmitter()
	one, two, def := e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.Load(1)
	e.Op(stack.L2I)
	e.TableSwitch(1, []*stack.Label{one, two}, def)
	e.Mark(one)
	e.Const("one")
	e.Return(true)
	e.Mark(two)
	e.Const("two")
	e.Return(true)
	e.Mark(def)
	e.Throw(string(stdlib.IndexOutOfRange), "no such case")
	export(root, e.Finish("name", []stack.Kind{stack.KindI64}, stack.KindStr, 2))

	eng, err := Load(program(root, false))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, _ := eng.NewComputation(&input{})
	for key, want := range map[int]string{1: "one", 2: "two"} {
		if got, err := c.Output("name", key); err != nil || got != want {
			t.Errorf("name(%d) = %v, %v", key, got, err)
		}
	}
	_, err = c.Output("name", 7)
	var f *Fault
	if !errors.As(err, &f) || f.Kind != stdlib.IndexOutOfRange || f.Message != "no such case" {
		t.Errorf("expected IndexOutOfRange fault, got %v", err)
	}
}

func TestHandlers(t *testing.T) {
	root := stack.DeclareUnit("$Root", "")

	// raise throws the fault named by its argument code
	e := stack.NewEmitter()
	e.Load(1)
	e.Call("error.raise", 1)
	e.Return(true)
	root.AddRoutine(e.Finish("raise", []stack.Kind{stack.KindStr}, stack.KindF64, 2))

	// isErr mirrors ISERR: #N/A is not an error
	e = stack.NewEmitter()
	start, end, na, other := e.NewLabel(), e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.Mark(start)
	e.Load(0)
	e.Load(1)
	e.Invoke("raise", 1, true)
	e.Op(stack.Pop)
	e.Mark(end)
	e.Const(false)
	e.Return(true)
	e.Mark(na)
	e.Const(false)
	e.Return(true)
	e.Mark(other)
	e.Const(true)
	e.Return(true)
	e.Handle(start, end, na, string(stdlib.NotAvailable))
	e.Handle(start, end, other)
	export(root, e.Finish("isErr", []stack.Kind{stack.KindStr}, stack.KindBool, 2))

	eng, err := Load(program(root, false))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, _ := eng.NewComputation(&input{})
	tests := []struct {
		code string
		want bool
	}{
		{"#N/A", false},
		{"#DIV/0!", true},
		{"#VALUE!", true},
	}
	for _, tt := range tests {
		if got, err := c.Output("isErr", tt.code); err != nil || got != tt.want {
			t.Errorf("isErr(%s) = %v, %v; want %v", tt.code, got, err, tt.want)
		}
	}
}

func TestDelegateFallback(t *testing.T) {
	root := stack.DeclareUnit("$Root", "")
	e := stack.NewEmitter()
	e.Load(0)
	e.InvokeDelegate("Label", 0, true)
	e.Return(true)
	export(root, e.Finish("viaDelegate", nil, stack.KindStr, 1))

	out := &ir.OutputType{
		Name:         "fallback",
		Defaults:     map[string]bool{"Label": true},
		NewWithInput: func(in any) any { return &fallback{in: in.(*input)} },
	}
	eng, err := Load(program(root, true), WithOutputType(out))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := eng.NewComputation(&input{})
	if err != nil {
		t.Fatalf("NewComputation failed: %v", err)
	}
	if got, err := c.Output("viaDelegate"); err != nil || got != "default" {
		t.Errorf("viaDelegate = %v, %v", got, err)
	}
	if got, err := c.Output("Label"); err != nil || got != "default" {
		t.Errorf("Label = %v, %v", got, err)
	}
	if _, err := c.Output("Missing"); err == nil {
		t.Error("expected error for unknown output")
	}
}

func TestEnvironmentAndRoot(t *testing.T) {
	root := stack.DeclareUnit("$Root", "")
	e := stack.NewEmitter()
	e.Load(0)
	e.GetField(stack.FieldRoot)
	e.Return(true)
	export(root, e.Finish("self", nil, stack.KindRef, 1))

	env := &Environment{DecimalSeparator: ','}
	eng, err := Load(program(root, false), WithEnvironment(env))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, _ := eng.NewComputation(&input{})
	if got, _ := c.Output("self"); got != c.Object {
		t.Errorf("root of root = %v, want %v", got, c.Object)
	}
	if c.field(stack.FieldEnvironment) != env {
		t.Error("environment not propagated to the root")
	}
	if err := c.Reset(); err == nil {
		t.Error("expected reset to fail without a reset routine")
	}
}

func TestIllTypedCodeIsAnError(t *testing.T) {
	root := stack.DeclareUnit("$Root", "")
	e := stack.NewEmitter()
	e.Const("text")
	e.Const(1.0)
	e.Op(stack.FAdd)
	e.Return(true)
	export(root, e.Finish("bad", nil, stack.KindF64, 1))

	eng, err := Load(program(root, false))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, _ := eng.NewComputation(&input{})
	if _, err := c.Output("bad"); err == nil || !strings.Contains(err.Error(), "$Root.bad") {
		t.Errorf("expected recovered panic naming the routine, got %v", err)
	}
}

func TestFloatCompareNaN(t *testing.T) {
	nan := 0.0
	nan = nan / nan
	if fcmp(nan, 1, false) != -1 || fcmp(nan, 1, true) != 1 {
		t.Error("NaN must rank below for FCmpL and above for FCmpG")
	}
	if fcmp(2, 1, false) != 1 {
		t.Error("2 > 1")
	}
}
