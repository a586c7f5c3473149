package linker

import (
	"errors"
	"strings"
	"testing"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
)

func returnConst(name string, v any) *stack.Routine {
	e := stack.NewEmitter()
	e.Const(v)
	e.Return(true)
	return e.Finish(name, nil, stack.KindF64, 1)
}

func minimalProgram() *stack.Program {
	root := stack.DeclareUnit("$Root", "")
	root.AddField("c$A1", stack.KindF64)
	root.AddRoutine(returnConst("getA1", 1.0))

	factory := stack.DeclareUnit("$Factory", "")
	e := stack.NewEmitter()
	e.Load(1)
	e.Const(nil)
	e.NewUnit("$Root")
	e.Return(true)
	factory.AddRoutine(e.Finish(stack.RoutineNewComputation, []stack.Kind{stack.KindRef}, stack.KindRef, 2))

	return &stack.Program{Units: []*stack.Unit{root, factory}, Root: "$Root", Factory: "$Factory"}
}

func TestLinkLayout(t *testing.T) {
	img, err := Link(minimalProgram(), func(string) bool { return true })
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	root := img.Unit("$Root")
	if root == nil || img.Root != root {
		t.Fatal("root unit not linked")
	}
	if i, ok := root.Field(stack.FieldInputs); !ok || i != 0 {
		t.Errorf("$inputs at %d, want 0", i)
	}
	if i, ok := root.Field("c$A1"); !ok || i != len(stack.BuiltinFields) {
		t.Errorf("c$A1 at %d, want %d", i, len(stack.BuiltinFields))
	}
	if root.Routine("getA1") == nil {
		t.Error("getA1 not indexed")
	}
}

func TestLinkMissingSymbols(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *stack.Program)
		want   string
	}{
		{"unknown function", func(p *stack.Program) {
			e := stack.NewEmitter()
			e.Const(1.0)
			e.Call("f64.NOPE", 1)
			e.Return(true)
			p.Units[0].AddRoutine(e.Finish("bad", nil, stack.KindF64, 1))
		}, "function f64.NOPE"},
		{"unknown routine", func(p *stack.Program) {
			e := stack.NewEmitter()
			e.Load(0)
			e.Invoke("getB1", 0, true)
			e.Return(true)
			p.Units[0].AddRoutine(e.Finish("bad", nil, stack.KindF64, 1))
		}, "routine getB1"},
		{"unknown field", func(p *stack.Program) {
			e := stack.NewEmitter()
			e.Load(0)
			e.GetField("c$B1")
			e.Return(true)
			p.Units[0].AddRoutine(e.Finish("bad", nil, stack.KindF64, 1))
		}, "field c$B1"},
		{"missing parent", func(p *stack.Program) {
			p.Add(stack.DeclareUnit("$Sect0", "$Nowhere"))
		}, "parent unit $Nowhere"},
		{"missing reset", func(p *stack.Program) {
			p.Resettable = true
		}, "reset routine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := minimalProgram()
			tt.mutate(p)
			_, err := Link(p, func(name string) bool { return !strings.HasSuffix(name, "NOPE") })
			var le *LinkError
			if !errors.As(err, &le) {
				t.Fatalf("expected LinkError, got %v", err)
			}
			if !strings.Contains(le.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", le.Error(), tt.want)
			}
		})
	}
}

func TestLinkValidates(t *testing.T) {
	p := minimalProgram()
	e := stack.NewEmitter()
	e.Op(stack.FAdd)
	e.Return(true)
	p.Units[0].AddRoutine(e.Finish("underflow", nil, stack.KindF64, 1))
	if _, err := Link(p, nil); err == nil || !strings.Contains(err.Error(), "underflow") {
		t.Errorf("expected validation failure, got %v", err)
	}
}
