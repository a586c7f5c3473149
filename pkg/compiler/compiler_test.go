package compiler

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
	"github.com/GriffinCanCode/formulac/pkg/vm"
)

type item struct{ v float64 }

func (i *item) Value() float64 { return i.v }

type sheet struct {
	a, b  float64
	items []*item
}

func (s *sheet) A() float64      { return s.a }
func (s *sheet) B() float64      { return s.b }
func (s *sheet) Items() []*item  { return s.items }
func (s *sheet) Label() string   { return "sheet" }
func (s *sheet) Scaled() float64 { return s.a * 10 }
func (s *sheet) Cents() int64     { return int64(math.Round(s.a * 100)) }

type fallback struct{}

func (f *fallback) Pick(n int64) float64 { return -float64(n) }

func newSheet(a, b float64, values ...float64) *sheet {
	s := &sheet{a: a, b: b}
	for _, v := range values {
		s.items = append(s.items, &item{v: v})
	}
	return s
}

// model builds a root section with the input cells A and B and a repeating
// section Items whose cells read Value.
type model struct {
	*ir.Model
	root, items *ir.Section
	a, b, v     *ir.Cell
}

func newModel() *model {
	root := &ir.Section{Name: "Sheet"}
	m := &model{
		Model: &ir.Model{Name: "sheet", Root: root, InputType: reflect.TypeOf(&sheet{})},
		root:  root,
	}
	m.a = root.AddCell("A", ir.Numeric)
	m.a.Input = &ir.CallFrame{Method: "A", Scale: -1}
	m.b = root.AddCell("B", ir.Numeric)
	m.b.Input = &ir.CallFrame{Method: "B", Scale: -1}
	m.items = root.AddSection("Items", &ir.CallFrame{Method: "Items", Scale: -1}, reflect.TypeOf(&item{}))
	m.v = m.items.AddCell("V", ir.Numeric)
	m.v.Input = &ir.CallFrame{Method: "Value", Scale: -1}
	return m
}

// output adds a root cell computing n, bound to method
func (m *model) output(method string, n ir.Node) *ir.Cell {
	c := m.root.AddCell(method+"Cell", n.Type()).SetExpr(n)
	c.Outputs = append(c.Outputs, &ir.OutputBinding{Method: method, Scale: -1})
	return c
}

func compute(t *testing.T, m *ir.Model, cfg Config, input any, opts ...vm.Option) *vm.Computation {
	t.Helper()
	prog, err := Compile(m, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	eng, err := vm.Load(prog, opts...)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := eng.NewComputation(input)
	if err != nil {
		t.Fatalf("NewComputation failed: %v", err)
	}
	return c
}

func outputOf(t *testing.T, c *vm.Computation, method string, args ...any) any {
	t.Helper()
	v, err := c.Output(method, args...)
	if err != nil {
		t.Fatalf("%s failed: %v", method, err)
	}
	return v
}

func number(t *testing.T, v any) float64 {
	t.Helper()
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	t.Fatalf("got %T %v, want a float64", v, v)
	return 0
}

func faultOf(err error) (*vm.Fault, bool) {
	var f *vm.Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func TestAddInputs(t *testing.T) {
	m := newModel()
	m.output("Result", ir.Add(ir.Ref(m.a), ir.Ref(m.b)))

	c := compute(t, m.Model, DefaultConfig(), newSheet(3, 4))
	if got := number(t, outputOf(t, c, "Result")); got != 7 {
		t.Errorf("A+B = %v, want 7", got)
	}
}

func TestIfBranches(t *testing.T) {
	m := newModel()
	m.output("Sign", ir.If(ir.Apply(ir.OpGreater, ir.Ref(m.a), ir.Num(0.0)), ir.Str("pos"), ir.Str("nonpos")))
	prog, err := Compile(m.Model, DefaultConfig())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	eng, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		a    float64
		want string
	}{
		{1, "pos"},
		{0, "nonpos"},
		{-2.5, "nonpos"},
	}
	for _, tt := range tests {
		c, err := eng.NewComputation(newSheet(tt.a, 0))
		if err != nil {
			t.Fatalf("NewComputation failed: %v", err)
		}
		if got := outputOf(t, c, "Sign"); got != tt.want {
			t.Errorf("Sign(%v) = %v, want %s", tt.a, got, tt.want)
		}
	}
}

func TestEmptySectionOutput(t *testing.T) {
	tests := []struct {
		name  string
		input *sheet
	}{
		{"empty", &sheet{items: []*item{}}},
		{"nil", &sheet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel()
			m.items.Outputs = []*ir.SectionOutput{{Method: "Details", Shape: ir.ShapeArray}}
			c := compute(t, m.Model, DefaultConfig(), tt.input)
			got, ok := outputOf(t, c, "Details").([]any)
			if !ok || got == nil {
				t.Fatalf("Details = %#v, want an empty array", got)
			}
			if len(got) != 0 {
				t.Errorf("Details has %d instances, want 0", len(got))
			}
		})
	}
}

func TestSectionInstances(t *testing.T) {
	m := newModel()
	twice := m.items.AddCell("Twice", ir.Numeric).SetExpr(ir.Mul(ir.Ref(m.v), ir.Num(2.0)))
	twice.Outputs = []*ir.OutputBinding{{Method: "Twice", Scale: -1}}
	m.items.Outputs = []*ir.SectionOutput{{Method: "Details", Shape: ir.ShapeArray}}

	c := compute(t, m.Model, DefaultConfig(), newSheet(0, 0, 1, 2, 3))
	got := outputOf(t, c, "Details").([]any)
	if len(got) != 3 {
		t.Fatalf("Details has %d instances, want 3", len(got))
	}
	for i, inst := range got {
		obj, ok := inst.(*vm.Object)
		if !ok {
			t.Fatalf("instance %d is %T", i, inst)
		}
		v, err := obj.Output("Twice")
		if err != nil {
			t.Fatalf("Twice failed: %v", err)
		}
		if want := float64(2 * (i + 1)); number(t, v) != want {
			t.Errorf("instance %d: Twice = %v, want %v", i, v, want)
		}
	}
}

func TestFullCaching(t *testing.T) {
	m := newModel()
	m.output("Double", ir.Mul(ir.Ref(m.a), ir.Num(2.0)))
	m.output("Next", ir.Add(ir.Ref(m.a), ir.Num(1.0)))

	cfg := DefaultConfig()
	cfg.FullCaching = true
	cfg.Resettable = true
	prog, err := Compile(m.Model, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	root := prog.Unit(RootUnit)
	if root.Routine("getA") == nil || root.Routine("getA$2") != nil {
		t.Errorf("expected one routine for A:\n%s", root)
	}
	if !root.HasField("h$getA") || !root.HasField("c$getA") {
		t.Errorf("expected cache fields for A:\n%s", root)
	}

	eng, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	in := newSheet(3, 0)
	c, err := eng.NewComputation(in)
	if err != nil {
		t.Fatalf("NewComputation failed: %v", err)
	}
	if got := number(t, outputOf(t, c, "Double")); got != 6 {
		t.Errorf("Double = %v, want 6", got)
	}
	in.a = 10
	if got := number(t, outputOf(t, c, "Next")); got != 4 {
		t.Errorf("Next = %v, want the cached 4", got)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got := number(t, outputOf(t, c, "Next")); got != 11 {
		t.Errorf("Next after reset = %v, want 11", got)
	}
}

func TestWithoutCachingReadsFresh(t *testing.T) {
	m := newModel()
	m.output("Double", ir.Mul(ir.Ref(m.a), ir.Num(2.0)))
	m.output("Next", ir.Add(ir.Ref(m.a), ir.Num(1.0)))

	in := newSheet(3, 0)
	c := compute(t, m.Model, DefaultConfig(), in)
	outputOf(t, c, "Double")
	in.a = 10
	if got := number(t, outputOf(t, c, "Next")); got != 11 {
		t.Errorf("Next = %v, want 11", got)
	}
}

func TestSumStaticAndRepeating(t *testing.T) {
	for _, k := range []int{0, 1, 5} {
		t.Run(string(rune('0'+k)), func(t *testing.T) {
			m := newModel()
			var statics []ir.Node
			for i, v := range []float64{1, 2, 3} {
				c := m.root.AddCell(string(rune('X'+i)), ir.Numeric).SetConstant(v)
				statics = append(statics, ir.Ref(c))
			}
			elts := append(statics, ir.SubSection(m.items, ir.Ref(m.v)))
			m.output("Total", ir.FoldOver(ir.SumFold(), elts...))

			values := make([]float64, k)
			want := 6.0
			for i := range values {
				values[i] = float64(10 * (i + 1))
				want += values[i]
			}
			c := compute(t, m.Model, DefaultConfig(), newSheet(0, 0, values...))
			if got := number(t, outputOf(t, c, "Total")); got != want {
				t.Errorf("Total over %d instances = %v, want %v", k, got, want)
			}
		})
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	m := newModel()
	m.output("Total", ir.FoldOver(ir.SumFold(), ir.Ref(m.a), ir.SubSection(m.items, ir.Ref(m.v))))
	m.output("Avg", ir.FoldOver(ir.AverageFold(), ir.SubSection(m.items, ir.Ref(m.v))))
	m.output("Sign", ir.If(ir.Apply(ir.OpLess, ir.Ref(m.a), ir.Ref(m.b)), ir.Str("lt"), ir.Str("ge")))

	cfg := DefaultConfig()
	cfg.Resettable = true
	first, err := Compile(m.Model, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := Compile(m.Model, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if first.String() != second.String() {
		t.Errorf("listings differ:\n%s\n---\n%s", first, second)
	}
}

// scaledFold folds the elements multiplied by the let variable x
func scaledFold() *ir.Fold {
	return &ir.Fold{
		AccuNames: []string{"r"}, Inits: []ir.Node{ir.Num(0.0)},
		EltNames: []string{"xi"},
		Steps: []ir.Node{ir.Add(ir.Var("r", ir.Numeric),
			ir.Mul(ir.Var("xi", ir.Numeric), ir.Var("x", ir.Numeric)))},
		MayRearrange: true,
	}
}

func TestHelperClosures(t *testing.T) {
	m := newModel()
	over := ir.SubSection(m.items, ir.Ref(m.v))
	m.output("Scaled", ir.LetIn("x", ir.Ref(m.a), ir.FoldOver(scaledFold(), over)))
	m.output("Shadowed", ir.LetIn("x", ir.Ref(m.a),
		ir.LetIn("x", ir.Mul(ir.Ref(m.a), ir.Num(10.0)), ir.FoldOver(scaledFold(), over))))
	m.output("Unused", ir.LetIn("y", ir.Ref(m.b), ir.FoldOver(ir.SumFold(), over)))

	prog, err := Compile(m.Model, DefaultConfig())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	root := prog.Unit(RootUnit)
	params := map[int]int{}
	for _, r := range root.Routines {
		if strings.HasPrefix(r.Name, "fold$") {
			params[len(r.Params)]++
		}
	}
	if params[1] != 2 || params[0] != 1 {
		t.Errorf("helper parameter counts = %v, want two closing over x and one over nothing", params)
	}

	eng, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := eng.NewComputation(newSheet(2, 5, 1, 2, 3))
	if err != nil {
		t.Fatalf("NewComputation failed: %v", err)
	}
	tests := []struct {
		method string
		want   float64
	}{
		{"Scaled", 12},
		{"Shadowed", 120},
		{"Unused", 6},
	}
	for _, tt := range tests {
		if got := number(t, outputOf(t, c, tt.method)); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.method, got, tt.want)
		}
	}
}

// TestChainedMatchesExtracted compiles static folds inline and as helpers
// and expects the same results.
func TestChainedMatchesExtracted(t *testing.T) {
	folds := map[string]func() *ir.Fold{
		"sum":     ir.SumFold,
		"min":     ir.MinFold,
		"product": ir.ProductFold,
	}
	for name, fold := range folds {
		for n := 0; n <= 3; n++ {
			m := newModel()
			elts := []ir.Node{}
			for i := 0; i < n; i++ {
				c := m.root.AddCell(string(rune('X'+i)), ir.Numeric).SetExpr(ir.Add(ir.Ref(m.a), ir.Num(float64(i))))
				elts = append(elts, ir.Ref(c))
			}
			m.output("R", ir.FoldOver(fold(), elts...))

			var got [2]float64
			for i, extract := range []bool{false, true} {
				c, err := New(DefaultConfig())
				if err != nil {
					t.Fatalf("New failed: %v", err)
				}
				c.extractFolds = extract
				prog, err := c.Compile(m.Model)
				if err != nil {
					t.Fatalf("%s/%d: Compile failed: %v", name, n, err)
				}
				eng, err := vm.Load(prog)
				if err != nil {
					t.Fatalf("Load failed: %v", err)
				}
				comp, err := eng.NewComputation(newSheet(2, 0))
				if err != nil {
					t.Fatalf("NewComputation failed: %v", err)
				}
				got[i] = number(t, outputOf(t, comp, "R"))
			}
			if got[0] != got[1] {
				t.Errorf("%s over %d: chained %v, extracted %v", name, n, got[0], got[1])
			}
		}
	}
}

func TestNumericDomains(t *testing.T) {
	domains := []numeric.Type{
		numeric.Double,
		numeric.ScaledLong(4),
		numeric.BigDecimal(8, numeric.HalfUp),
		numeric.Precision(12, numeric.HalfUp),
	}
	float := reflect.TypeOf(0.0)

	for _, nt := range domains {
		t.Run(nt.String(), func(t *testing.T) {
			m := newModel()
			m.output("Text", ir.Add(ir.Num(2.0), ir.Num(0.5))).Type = ir.String
			parsed := m.root.AddCell("Parsed", ir.Numeric).SetExpr(ir.Mul(ir.Str("1.25"), ir.Num(2.0)))
			parsed.Outputs = []*ir.OutputBinding{{Method: "Parsed", Result: float, Scale: -1}}
			bad := m.root.AddCell("Bad", ir.Numeric).SetExpr(ir.Add(ir.Str("abc"), ir.Num(1.0)))
			bad.Outputs = []*ir.OutputBinding{{Method: "Bad", Result: float, Scale: -1}}
			sum := m.root.AddCell("Sum", ir.Numeric).SetExpr(ir.Add(ir.Ref(m.a), ir.Ref(m.b)))
			sum.Outputs = []*ir.OutputBinding{{Method: "Sum", Result: float, Scale: -1}}

			cfg := DefaultConfig()
			cfg.Numeric = nt
			c := compute(t, m.Model, cfg, newSheet(1.5, 2.25))

			if got := outputOf(t, c, "Text"); got != "2.5" {
				t.Errorf("Text = %v, want 2.5", got)
			}
			if got := outputOf(t, c, "Parsed"); got != 2.5 {
				t.Errorf("Parsed = %v, want 2.5", got)
			}
			if got := outputOf(t, c, "Sum"); got != 3.75 {
				t.Errorf("Sum = %v, want 3.75", got)
			}
			_, err := c.Output("Bad")
			f, ok := faultOf(err)
			if !ok || f.Kind.Code() != "#VALUE!" {
				t.Errorf("Bad = %v, want a #VALUE! fault", err)
			}
		})
	}
}

func TestUnsupportedConstant(t *testing.T) {
	m := newModel()
	m.output("R", ir.Add(ir.ConstOf(ir.Numeric, struct{}{}), ir.Ref(m.a)))
	_, err := Compile(m.Model, DefaultConfig())
	if !errorx.IsOfType(err, UnsupportedDataType) {
		t.Errorf("got %v, want an unsupported data type", err)
	}
}

func TestShortCircuit(t *testing.T) {
	raise := ir.CallAs(ir.Numeric, ir.FnERROR, ir.Str("#VALUE!"))
	positive := func(m *model) ir.Node { return ir.Apply(ir.OpGreater, ir.Ref(m.a), ir.Num(0.0)) }
	tests := []struct {
		name  string
		fn    ir.Fn
		a     float64
		want  float64
		fault bool
	}{
		{"and stops on false", ir.FnAND, -1, 2, false},
		{"and reaches error", ir.FnAND, 1, 0, true},
		{"or stops on true", ir.FnOR, 1, 1, false},
		{"or reaches error", ir.FnOR, -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel()
			m.output("R", ir.If(ir.Call(tt.fn, positive(m), raise), ir.Num(1.0), ir.Num(2.0)))
			c := compute(t, m.Model, DefaultConfig(), newSheet(tt.a, 0))
			v, err := c.Output("R")
			if tt.fault {
				if f, ok := faultOf(err); !ok || f.Kind.Code() != "#VALUE!" {
					t.Errorf("got %v, %v; want a #VALUE! fault", v, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("R failed: %v", err)
			}
			if got := number(t, v); got != tt.want {
				t.Errorf("R = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *model)
		want  *errorx.Type
	}{
		{"inner cell", func(m *model) {
			m.output("R", ir.Add(ir.Ref(m.v), ir.Num(1.0)))
		}, ReferenceToInnerCellNotAggregated},
		{"sub-section vector", func(m *model) {
			m.output("R", ir.Add(ir.SubSection(m.items, ir.Ref(m.v)), ir.Num(1.0)))
		}, ReferenceToInnerCellNotAggregated},
		{"array", func(m *model) {
			m.output("R", ir.Add(ir.Vector("pair", ir.Num(1.0), ir.Num(2.0)), ir.Num(1.0)))
		}, ReferenceToArrayNotAggregated},
		{"constructor", func(m *model) {
			m.output("R", ir.Ref(m.a))
			m.OutputType = &ir.OutputType{Name: "defaults", Defaults: map[string]bool{"Other": true}}
		}, ConstructorMissing},
		{"parallel vectors", func(m *model) {
			f := &ir.Fold{
				AccuNames: []string{"r"}, Inits: []ir.Node{ir.Num(0.0)},
				EltNames: []string{"x", "y"},
				Steps: []ir.Node{ir.Add(ir.Var("r", ir.Numeric),
					ir.Mul(ir.Var("x", ir.Numeric), ir.Var("y", ir.Numeric)))},
			}
			m.output("R", ir.FoldParallel(f, ir.Vector("static", ir.Ref(m.a)), ir.SubSection(m.items, ir.Ref(m.v))))
		}, ParallelVectorsSpanDifferentSubSections},
		{"match type", func(m *model) {
			m.output("R", ir.Call(ir.FnMATCH, ir.Ref(m.a), ir.Vector("keys", ir.Num(1.0), ir.Num(2.0)), ir.Ref(m.b)))
		}, UnsupportedExpression},
		{"unbound variable", func(m *model) {
			m.output("R", ir.Add(ir.Var("nowhere", ir.Numeric), ir.Num(1.0)))
		}, NameNotFound},
		{"input scale", func(m *model) {
			m.a.Input.Scale = numeric.MaxScale + 1
			m.output("R", ir.Ref(m.a))
		}, UnsupportedDataType},
		{"output scale", func(m *model) {
			m.output("R", ir.Ref(m.a)).Outputs[0].Scale = 40
		}, UnsupportedDataType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel()
			tt.build(m)
			_, err := Compile(m.Model, DefaultConfig())
			if err == nil {
				t.Fatal("expected a compile error")
			}
			if !errorx.IsOfType(err, tt.want) {
				t.Errorf("got %v, want %s", err, tt.want)
			}
		})
	}
}

func TestErrorContext(t *testing.T) {
	m := newModel()
	match := ir.Call(ir.FnMATCH, ir.Ref(m.a), ir.Vector("keys", ir.Num(1.0), ir.Num(2.0)), ir.Ref(m.b))
	m.output("R", ir.Add(match, ir.Num(1.0)))

	_, err := Compile(m.Model, DefaultConfig())
	if !errorx.IsOfType(err, UnsupportedExpression) {
		t.Fatalf("got %v, want an unsupported expression", err)
	}
	if cell, ok := CellOf(err); !ok || cell != "RCell" {
		t.Errorf("CellOf = %q, %v; want RCell", cell, ok)
	}
	if expr, ok := ExpressionOf(err); !ok || !strings.HasPrefix(expr, "MATCH(") {
		t.Errorf("ExpressionOf = %q, %v; want the MATCH call", expr, ok)
	}
	if !strings.Contains(err.Error(), "match type") {
		t.Errorf("error %q does not explain the match type", err)
	}
}

func TestOutputDispatch(t *testing.T) {
	build := func() *model {
		m := newModel()
		params := []reflect.Type{reflect.TypeOf(0)}
		for i, n := range []ir.Node{ir.Ref(m.a), ir.Ref(m.b)} {
			c := m.root.AddCell(string(rune('P'+i)), ir.Numeric).SetExpr(n)
			c.Outputs = []*ir.OutputBinding{{Method: "Pick", Params: params, Args: []any{i + 1}, Scale: -1}}
		}
		return m
	}

	t.Run("bound", func(t *testing.T) {
		m := build()
		c := compute(t, m.Model, DefaultConfig(), newSheet(3, 4))
		if got := number(t, outputOf(t, c, "Pick", 1)); got != 3 {
			t.Errorf("Pick(1) = %v, want 3", got)
		}
		if got := number(t, outputOf(t, c, "Pick", 2)); got != 4 {
			t.Errorf("Pick(2) = %v, want 4", got)
		}
		_, err := c.Output("Pick", 7)
		if f, ok := faultOf(err); !ok || !strings.Contains(f.Message, "not bound in 'Pick'") {
			t.Errorf("Pick(7) = %v, want an unbound argument fault", err)
		}
	})

	t.Run("fallback", func(t *testing.T) {
		m := build()
		out := &ir.OutputType{
			Name:     "fallback",
			Defaults: map[string]bool{"Pick": true},
			New:      func() any { return &fallback{} },
		}
		m.OutputType = out
		c := compute(t, m.Model, DefaultConfig(), newSheet(3, 4), vm.WithOutputType(out))
		if got := number(t, outputOf(t, c, "Pick", 2)); got != 4 {
			t.Errorf("Pick(2) = %v, want 4", got)
		}
		if got := number(t, outputOf(t, c, "Pick", 7)); got != -7 {
			t.Errorf("Pick(7) = %v, want the fallback -7", got)
		}
	})
}

func TestOutputNamesAreExact(t *testing.T) {
	m := newModel()
	// a cell named like a getter must not push the output aside
	m.output("getA", ir.Ref(m.a))
	prog, err := Compile(m.Model, DefaultConfig())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	r := prog.Unit(RootUnit).Routine("getA")
	if r == nil || !r.Exported {
		t.Errorf("getA is not the exported output:\n%s", prog.Unit(RootUnit))
	}
}

func TestFactoryMethod(t *testing.T) {
	m := newModel()
	m.output("Result", ir.Mul(ir.Ref(m.a), ir.Num(3.0)))
	cfg := DefaultConfig()
	cfg.FactoryMethod = "create"

	prog, err := Compile(m.Model, cfg)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	factory := prog.Unit(FactoryUnit)
	if r := factory.Routine("create"); r == nil || !r.Exported {
		t.Fatalf("factory has no exported create:\n%s", factory)
	}
	eng, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := eng.NewComputationAs("create", newSheet(2, 0))
	if err != nil {
		t.Fatalf("NewComputationAs failed: %v", err)
	}
	if got := number(t, outputOf(t, c, "Result")); got != 6 {
		t.Errorf("Result = %v, want 6", got)
	}
}

func TestOptimizationPreservesResults(t *testing.T) {
	m := newModel()
	m.output("R", ir.Add(ir.Mul(ir.Num(2.0), ir.Num(3.0)),
		ir.FoldOver(ir.MaxFold(), ir.Ref(m.a), ir.Ref(m.b), ir.SubSection(m.items, ir.Ref(m.v)))))

	for level := 0; level <= 2; level++ {
		cfg := DefaultConfig()
		cfg.OptimizationLevel = level
		c := compute(t, m.Model, cfg, newSheet(1, 2, 5, 4))
		if got := number(t, outputOf(t, c, "R")); math.Abs(got-11) > 1e-12 {
			t.Errorf("level %d: R = %v, want 11", level, got)
		}
	}
}

func TestMinMaxOverSections(t *testing.T) {
	domains := []numeric.Type{
		numeric.Double,
		numeric.ScaledLong(4),
		numeric.BigDecimal(8, numeric.HalfUp),
		numeric.Precision(12, numeric.HalfUp),
	}
	tests := []struct {
		name   string
		values []float64
		want   map[string]float64
	}{
		{"three", []float64{5, 2, 9}, map[string]float64{"Min": 2, "Max": 9, "MinWithA": 2, "MaxWithA": 9}},
		{"one", []float64{-4.5}, map[string]float64{"Min": -4.5, "Max": -4.5, "MinWithA": -4.5, "MaxWithA": 7}},
		{"empty", nil, map[string]float64{"Min": 0, "Max": 0, "MinWithA": 7, "MaxWithA": 7}},
	}
	float := reflect.TypeOf(0.0)

	for _, nt := range domains {
		m := newModel()
		over := func() ir.Node { return ir.SubSection(m.items, ir.Ref(m.v)) }
		for method, n := range map[string]ir.Node{
			"Min":      ir.FoldOver(ir.MinFold(), over()),
			"Max":      ir.FoldOver(ir.MaxFold(), over()),
			"MinWithA": ir.FoldOver(ir.MinFold(), ir.Ref(m.a), over()),
			"MaxWithA": ir.FoldOver(ir.MaxFold(), ir.Ref(m.a), over()),
		} {
			c := m.root.AddCell(method+"Cell", ir.Numeric).SetExpr(n)
			c.Outputs = []*ir.OutputBinding{{Method: method, Result: float, Scale: -1}}
		}
		cfg := DefaultConfig()
		cfg.Numeric = nt

		for _, tt := range tests {
			t.Run(nt.String()+"/"+tt.name, func(t *testing.T) {
				c := compute(t, m.Model, cfg, newSheet(7, 0, tt.values...))
				for method, want := range tt.want {
					if got := number(t, outputOf(t, c, method)); got != want {
						t.Errorf("%s = %v, want %v", method, got, want)
					}
				}
			})
		}
	}
}

func TestLetAcrossBranches(t *testing.T) {
	m := newModel()
	x := ir.Var("x", ir.Numeric)
	m.output("R", ir.LetIn("x", ir.Mul(ir.Ref(m.a), ir.Num(2.0)),
		ir.Add(ir.If(ir.Apply(ir.OpGreater, ir.Ref(m.b), ir.Num(0.0)), ir.Mul(x, ir.Num(12.0)), ir.Num(0.0)), x)))
	prog, err := Compile(m.Model, DefaultConfig())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	eng, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		b, want float64
	}{
		{0, 8},
		{1, 104},
	}
	for _, tt := range tests {
		c, err := eng.NewComputation(newSheet(4, tt.b))
		if err != nil {
			t.Fatalf("NewComputation failed: %v", err)
		}
		if got := number(t, outputOf(t, c, "R")); got != tt.want {
			t.Errorf("R with B=%v = %v, want %v", tt.b, got, tt.want)
		}
	}
}

func TestIndex(t *testing.T) {
	m := newModel()
	m.output("Pick", ir.Call(ir.FnINDEX, ir.Vector("tens", ir.Num(10.0), ir.Num(20.0), ir.Num(30.0)), ir.Ref(m.a)))
	m.output("Cell", ir.Call(ir.FnINDEX,
		ir.Array("grid", 2, 2, ir.Num(1.0), ir.Num(2.0), ir.Num(3.0), ir.Num(4.0)), ir.Ref(m.a), ir.Ref(m.b)))

	tests := []struct {
		name   string
		method string
		a, b   float64
		want   float64
		fault  bool
	}{
		{"first", "Pick", 1, 0, 10, false},
		{"second", "Pick", 2, 0, 20, false},
		{"past end", "Pick", 4, 0, 0, true},
		{"before start", "Pick", 0, 0, 0, true},
		{"row and column", "Cell", 2, 1, 3, false},
		{"column past end", "Cell", 1, 3, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := compute(t, m.Model, DefaultConfig(), newSheet(tt.a, tt.b))
			v, err := c.Output(tt.method)
			if tt.fault {
				f, ok := faultOf(err)
				if !ok || f.Kind != stdlib.IndexOutOfRange || f.Kind.Code() != "#REF!" {
					t.Errorf("%s = %v, %v; want a #REF! fault", tt.method, v, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s failed: %v", tt.method, err)
			}
			if got := number(t, v); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.method, got, tt.want)
			}
		})
	}
}

func TestDatabaseFolds(t *testing.T) {
	table := func() *ir.ArrayRef {
		return ir.Array("orders", 3, 2,
			ir.Num(1.0), ir.Num(10.0),
			ir.Num(2.0), ir.Num(20.0),
			ir.Num(1.0), ir.Num(30.0))
	}
	names := []string{"k", "amount"}
	first := func() ir.Node { return ir.Apply(ir.OpEqual, ir.Var("k", ir.Numeric), ir.Num(1.0)) }

	m := newModel()
	m.output("Static", ir.FoldTable(ir.SumFold(), table(), names, first(), 1, nil, nil))
	m.output("Dynamic", ir.FoldTable(ir.SumFold(), table(), names, first(), -1, ir.Ref(m.a), []int{7, 9}))
	m.output("All", ir.FoldTable(ir.CountFold(), table(), names, nil, 0, nil, nil))

	tests := []struct {
		name   string
		a      float64
		method string
		want   float64
	}{
		{"static column", 0, "Static", 40},
		{"column by key", 9, "Dynamic", 40},
		{"key column by key", 7, "Dynamic", 2},
		{"unknown key", 5, "Dynamic", 0},
		{"unfiltered count", 0, "All", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := compute(t, m.Model, DefaultConfig(), newSheet(tt.a, 0))
			if got := number(t, outputOf(t, c, tt.method)); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.method, got, tt.want)
			}
		})
	}
}

func TestSwitch(t *testing.T) {
	m := newModel()
	m.output("Dense", ir.SwitchOf(ir.Ref(m.a), ir.Str("other"),
		ir.Case(ir.Str("one"), 1),
		ir.Case(ir.Str("two or three"), 2, 3)))
	m.output("Sparse", ir.SwitchOf(ir.Ref(m.a), ir.Str("other"),
		ir.Case(ir.Str("one"), 1),
		ir.Case(ir.Str("thousand"), 1000)))

	tests := []struct {
		a             float64
		dense, sparse string
	}{
		{1, "one", "one"},
		{2, "two or three", "other"},
		{3, "two or three", "other"},
		{1000, "other", "thousand"},
		{-1, "other", "other"},
	}
	for _, tt := range tests {
		c := compute(t, m.Model, DefaultConfig(), newSheet(tt.a, 0))
		if got := outputOf(t, c, "Dense"); got != tt.dense {
			t.Errorf("Dense(%v) = %v, want %s", tt.a, got, tt.dense)
		}
		if got := outputOf(t, c, "Sparse"); got != tt.sparse {
			t.Errorf("Sparse(%v) = %v, want %s", tt.a, got, tt.sparse)
		}
	}
}

func TestSectionOutputShapes(t *testing.T) {
	shapes := []ir.Shape{ir.ShapeList, ir.ShapeCollection, ir.ShapeIterator}
	for _, shape := range shapes {
		for _, k := range []int{0, 3} {
			t.Run(shape.String()+"/"+string(rune('0'+k)), func(t *testing.T) {
				m := newModel()
				m.items.Outputs = []*ir.SectionOutput{{Method: "Details", Shape: shape}}
				values := make([]float64, k)
				c := compute(t, m.Model, DefaultConfig(), newSheet(0, 0, values...))

				got := outputOf(t, c, "Details")
				var n int
				switch x := got.(type) {
				case interop.Collection:
					if shape == ir.ShapeIterator {
						t.Fatalf("Details is a %T, want an iterator", got)
					}
					n = x.Len()
				case interop.Iterator:
					if shape != ir.ShapeIterator {
						t.Fatalf("Details is a %T, want a collection", got)
					}
					n = len(interop.Drain(x))
				default:
					t.Fatalf("Details = %#v, want a %s", got, shape)
				}
				if n != k {
					t.Errorf("Details has %d instances, want %d", n, k)
				}
			})
		}
	}
}

// feed hands its items over in whatever container it holds
type feed struct {
	a     float64
	items any
}

func (f *feed) A() float64 { return f.a }
func (f *feed) B() float64 { return 0 }
func (f *feed) Items() any { return f.items }

// stream is iterable but does not know its size
type stream struct{ elts []any }

func (s stream) Iterator() interop.Iterator { return interop.NewIterator(s.elts) }

func TestSectionInputShapes(t *testing.T) {
	containers := map[string]func([]any) any{
		"iterator":   func(e []any) any { return interop.NewIterator(e) },
		"iterable":   func(e []any) any { return stream{e} },
		"collection": func(e []any) any { return interop.NewList(e) },
		"array":      func(e []any) any { return e },
	}
	m := newModel()
	m.output("Total", ir.FoldOver(ir.SumFold(), ir.Ref(m.a), ir.SubSection(m.items, ir.Ref(m.v))))
	m.output("Count", ir.FoldOver(ir.CountFold(), ir.SubSection(m.items, ir.Ref(m.v))))

	for name, wrap := range containers {
		for _, k := range []int{0, 1, 5} {
			t.Run(name+"/"+string(rune('0'+k)), func(t *testing.T) {
				elts := make([]any, k)
				want := 1.0
				for i := range elts {
					elts[i] = &item{v: float64(i + 2)}
					want += float64(i + 2)
				}
				c := compute(t, m.Model, DefaultConfig(), &feed{a: 1, items: wrap(elts)})
				if got := number(t, outputOf(t, c, "Total")); got != want {
					t.Errorf("Total = %v, want %v", got, want)
				}
				if got := number(t, outputOf(t, c, "Count")); got != float64(k) {
					t.Errorf("Count = %v, want %d", got, k)
				}
			})
		}
	}
}

func TestScaledInputs(t *testing.T) {
	domains := []numeric.Type{
		numeric.Double,
		numeric.ScaledLong(4),
		numeric.BigDecimal(8, numeric.HalfUp),
		numeric.Precision(12, numeric.HalfUp),
	}
	for _, nt := range domains {
		t.Run(nt.String(), func(t *testing.T) {
			m := newModel()
			cents := m.root.AddCell("Cents", ir.Numeric)
			cents.Input = &ir.CallFrame{Method: "Cents", Scale: 2}
			twice := m.root.AddCell("Twice", ir.Numeric).SetExpr(ir.Mul(ir.Ref(cents), ir.Num(2.0)))
			twice.Outputs = []*ir.OutputBinding{
				{Method: "Twice", Result: reflect.TypeOf(0.0), Scale: -1},
				{Method: "TwiceCents", Result: reflect.TypeOf(int64(0)), Scale: 2},
			}
			cfg := DefaultConfig()
			cfg.Numeric = nt
			c := compute(t, m.Model, cfg, newSheet(123.45, 0))

			if got := outputOf(t, c, "Twice"); got != 246.9 {
				t.Errorf("Twice = %v, want 246.9", got)
			}
			if got := outputOf(t, c, "TwiceCents"); got != int64(24690) {
				t.Errorf("TwiceCents = %v (%T), want 24690", got, got)
			}
		})
	}
}

func TestHelperParamsOrderedByName(t *testing.T) {
	m := newModel()
	f := &ir.Fold{
		AccuNames: []string{"r"}, Inits: []ir.Node{ir.Num(0.0)},
		EltNames: []string{"xi"},
		Steps: []ir.Node{ir.Add(ir.Var("r", ir.Numeric),
			ir.Add(ir.Mul(ir.Var("xi", ir.Numeric), ir.Var("z", ir.Numeric)), ir.Var("s", ir.String)))},
		MayRearrange: true,
	}
	m.output("Mixed", ir.LetIn("z", ir.Ref(m.a),
		ir.LetIn("s", ir.Apply(ir.OpConcat, ir.Ref(m.b), ir.Str("")),
			ir.FoldOver(f, ir.SubSection(m.items, ir.Ref(m.v))))))

	prog, err := Compile(m.Model, DefaultConfig())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	var params []string
	for _, r := range prog.Unit(RootUnit).Routines {
		if strings.HasPrefix(r.Name, "fold$") {
			for _, k := range r.Params {
				params = append(params, k.String())
			}
		}
	}
	if strings.Join(params, ",") != "str,f64" {
		t.Errorf("helper params = %v, want s before z", params)
	}

	eng, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	c, err := eng.NewComputation(newSheet(2, 1, 1, 2, 3))
	if err != nil {
		t.Fatalf("NewComputation failed: %v", err)
	}
	if got := number(t, outputOf(t, c, "Mixed")); got != 15 {
		t.Errorf("Mixed = %v, want 15", got)
	}
}
