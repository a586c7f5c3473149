package frontend

import (
	"math"
	"strings"
	"testing"

	"github.com/expr-lang/expr"

	"github.com/GriffinCanCode/formulac/pkg/compiler"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/vm"
)

func sheet() (*ir.Model, Symbols) {
	root := &ir.Section{Name: "Sheet1"}
	syms := Symbols{Cells: map[string]*ir.Cell{}, Arrays: map[string]*ir.ArrayRef{}}
	for name, v := range map[string]float64{"A1": 3, "A2": 4, "B1": 10, "B2": 20} {
		syms.Cells[name] = root.AddCell(name, ir.Numeric).SetConstant(v)
	}
	syms.Cells["T1"] = root.AddCell("T1", ir.String).SetConstant("abc")
	return &ir.Model{Name: "sheet", Root: root}, syms
}

func TestParseStructure(t *testing.T) {
	tests := []struct {
		formula string
		want    []string
	}{
		{"=1+2*3", []string{"+", "*"}},
		{"=A1&T1", []string{"A1", "&", "T1"}},
		{"=SUM(A1:B2)", []string{"A1", "B2"}},
		{"=IF(A1>2,\"big\",\"small\")", []string{"IF", ">"}},
		{"=-A1%", []string{"%", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			_, syms := sheet()
			n, err := Parse(tt.formula, syms)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			s := n.String()
			for _, want := range tt.want {
				if !strings.Contains(s, want) {
					t.Errorf("%s: missing %q in %s", tt.formula, want, s)
				}
			}
		})
	}
}

func TestParseFolds(t *testing.T) {
	_, syms := sheet()
	n, err := Parse("=AVERAGE(A1:A2, 5)", syms)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	fl, ok := n.(*ir.FoldList)
	if !ok {
		t.Fatalf("got %T, want a fold", n)
	}
	if len(fl.Elements) != 2 {
		t.Errorf("got %d fold elements, want 2", len(fl.Elements))
	}
	arr, ok := fl.Elements[0].(*ir.ArrayRef)
	if !ok || arr.Desc.Rows != 2 || arr.Desc.Cols != 1 {
		t.Errorf("range did not become a 2x1 array: %v", fl.Elements[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		formula string
		want    string
	}{
		{"=", "empty formula"},
		{"=Z99+1", "unknown name"},
		{"=FOO(1)", "unknown function"},
		{"=1+", "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			_, syms := sheet()
			_, err := Parse(tt.formula, syms)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

// TestArithmeticOracle compiles formulas, runs them and compares the result
// with expr evaluating the same arithmetic.
func TestArithmeticOracle(t *testing.T) {
	env := map[string]any{"A1": 3.0, "A2": 4.0, "B1": 10.0, "B2": 20.0}
	tests := []struct {
		formula string
		oracle  string
	}{
		{"=1+2*3", "1+2*3"},
		{"=(1+2)*3", "(1+2)*3"},
		{"=10/4-1", "10/4-1"},
		{"=2^3^2", "(2**3)**2"},
		{"=-2^2", "(-2)**2"},
		{"=A1*A2+A1", "A1*A2+A1"},
		{"=50%*A2", "0.5*A2"},
		{"=B2/B1/A2", "B2/B1/A2"},
		{"=A1<A2", "A1 < A2 ? 1 : 0"},
		{"=IF(A1>=A2,B1,B2)", "A1 >= A2 ? B1 : B2"},
		{"=SUM(A1:B2)+1", "A1+B1+A2+B2+1"},
		{"=MAX(A1,A2,B1)-MIN(A1:A2)", "max(A1, A2, B1) - min(A1, A2)"},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			model, syms := sheet()
			n, err := Parse(tt.formula, syms)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			r := model.Root.AddCell("R", ir.Numeric).SetExpr(n)
			r.Outputs = []*ir.OutputBinding{{Method: "Result"}}

			prog, err := compiler.Compile(model, compiler.DefaultConfig())
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			eng, err := vm.Load(prog)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			c, err := eng.NewComputation(nil)
			if err != nil {
				t.Fatalf("NewComputation failed: %v", err)
			}
			got, err := c.Output("Result")
			if err != nil {
				t.Fatalf("Result failed: %v", err)
			}

			want, err := expr.Eval(tt.oracle, env)
			if err != nil {
				t.Fatalf("oracle failed: %v", err)
			}
			if math.Abs(toFloat(got)-toFloat(want)) > 1e-9 {
				t.Errorf("%s = %v, oracle %s = %v", tt.formula, got, tt.oracle, want)
			}
		})
	}
}
