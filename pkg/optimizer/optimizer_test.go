package optimizer

import (
	"strings"
	"testing"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

func TestPeepholePatterns(t *testing.T) {
	tests := []struct {
		name  string
		build func(e *stack.Emitter)
		want  []stack.Op
	}{
		{
			name: "const pop",
			build: func(e *stack.Emitter) {
				e.Const(1.0)
				e.Op(stack.Pop)
				e.Const(2.0)
				e.Return(true)
			},
			want: []stack.Op{stack.Const, stack.Return},
		},
		{
			name: "double swap",
			build: func(e *stack.Emitter) {
				e.Load(1)
				e.Load(2)
				e.Op(stack.Swap)
				e.Op(stack.Swap)
				e.Op(stack.FSub)
				e.Return(true)
			},
			want: []stack.Op{stack.Load, stack.Load, stack.FSub, stack.Return},
		},
		{
			name: "constant arithmetic",
			build: func(e *stack.Emitter) {
				e.Const(2)
				e.Const(3)
				e.Op(stack.IMul)
				e.Op(stack.I2F)
				e.Return(true)
			},
			want: []stack.Op{stack.Const, stack.I2F, stack.Return},
		},
		{
			name: "double negation",
			build: func(e *stack.Emitter) {
				e.Load(1)
				e.Op(stack.FNeg)
				e.Op(stack.FNeg)
				e.Return(true)
			},
			want: []stack.Op{stack.Load, stack.Return},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := stack.NewEmitter()
			tt.build(e)
			r := e.Finish("f", []stack.Kind{stack.KindF64, stack.KindF64}, stack.KindF64, 3)
			PeepholeOptimize(r)
			if len(r.Code) != len(tt.want) {
				t.Fatalf("got %d instructions, want %d:\n%s", len(r.Code), len(tt.want), r)
			}
			for i, op := range tt.want {
				if r.Code[i].Op != op {
					t.Errorf("instruction %d = %s, want %s", i, r.Code[i].Op, op)
				}
			}
			if err := stack.NewValidator().Validate(r); err != nil {
				t.Errorf("optimized routine invalid: %v", err)
			}
		})
	}
}

func TestPeepholeKeepsLabelledPairs(t *testing.T) {
	e := stack.NewEmitter()
	skip := e.NewLabel()
	e.Load(1)
	e.Const(0.0)
	e.Op(stack.FCmpL)
	e.Branch(stack.IfEq, skip)
	e.Const(1.0)
	e.Mark(skip)
	e.Op(stack.Pop)
	e.Const(2.0)
	e.Return(true)
	r := e.Finish("f", []stack.Kind{stack.KindF64}, stack.KindF64, 2)

	before := len(r.Code)
	PeepholeOptimize(r)
	if len(r.Code) != before {
		t.Errorf("pair across a label was rewritten:\n%s", r)
	}
}

func TestThreadJumps(t *testing.T) {
	e := stack.NewEmitter()
	a, b, end := e.NewLabel(), e.NewLabel(), e.NewLabel()
	e.Load(1)
	e.Branch(stack.IfTrue, a)
	e.Const("no")
	e.Goto(end)
	e.Mark(a)
	e.Goto(b)
	e.Mark(b)
	e.Const("yes")
	e.Mark(end)
	e.Return(true)
	r := e.Finish("f", []stack.Kind{stack.KindBool}, stack.KindStr, 2)

	if n := ThreadJumps(r); n == 0 {
		t.Fatal("expected changes")
	}
	for _, in := range r.Code {
		if in.Op == stack.Goto && in.Label == b {
			t.Errorf("goto to the next instruction survived:\n%s", r)
		}
	}
	if err := stack.NewValidator().Validate(r); err != nil {
		t.Errorf("threaded routine invalid: %v\n%s", err, r)
	}
}

func TestDeadCodeElimination(t *testing.T) {
	e := stack.NewEmitter()
	e.Const(1.0)
	e.Return(true)
	e.Const(2.0)
	e.Op(stack.Pop)
	e.Throw("#VALUE!", "never")
	r := e.Finish("f", nil, stack.KindF64, 1)

	if n := DeadCodeElimination(r); n != 3 {
		t.Errorf("removed %d instructions, want 3", n)
	}
	if len(r.Code) != 2 {
		t.Errorf("unexpected code:\n%s", r)
	}
}

func TestOptimizeLevels(t *testing.T) {
	build := func() *stack.Program {
		u := stack.DeclareUnit("$Root", "")
		e := stack.NewEmitter()
		e.Const(1)
		e.Const(2)
		e.Op(stack.IAdd)
		e.Const(3)
		e.Op(stack.IAdd)
		e.Op(stack.I2F)
		e.Return(true)
		u.AddRoutine(e.Finish("get", nil, stack.KindF64, 1))
		return &stack.Program{Units: []*stack.Unit{u}, Numeric: numeric.Double, Root: "$Root"}
	}

	if n := Optimize(build(), 0); n != 0 {
		t.Errorf("level 0 changed %d instructions", n)
	}

	p := build()
	Optimize(p, 2)
	listing := p.Units[0].Routine("get").String()
	if !strings.Contains(listing, "const 6") {
		t.Errorf("level 2 did not fold to a fixed point:\n%s", listing)
	}
}
