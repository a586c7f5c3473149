// Package ir - expression and model construction helpers
// Design: Small typed constructors, so tests and front ends never build nodes field by field
package ir

import "fmt"

// Num is a numeric constant
func Num(v any) *Const { return &Const{typed{Numeric}, v} }

// Str is a text constant
func Str(s string) *Const { return &Const{typed{String}, s} }

// Bool is a numeric constant holding a boolean
func Bool(b bool) *Const { return &Const{typed{Numeric}, b} }

// Empty is the null constant
func Empty() *Const { return &Const{typed{Null}, nil} }

// ConstOf is a constant with an explicit domain
func ConstOf(t DataType, v any) *Const { return &Const{typed{t}, v} }

func Min(t DataType) *MinValue { return &MinValue{typed{t}} }
func Max(t DataType) *MaxValue { return &MaxValue{typed{t}} }

// Ref references a cell with the cell's domain
func Ref(c *Cell) *CellRef { return &CellRef{typed{c.Type}, c} }

// Parent evaluates n in the enclosing section
func Parent(n Node) *ParentRef { return &ParentRef{typed{n.Type()}, n} }

// SubSection is the vector of elts over all instances of section s
func SubSection(s *Section, elts ...Node) *SubSectionRef {
	return &SubSectionRef{typed{commonType(elts)}, s, elts}
}

// Array is a rows x cols array in row-major order
func Array(name string, rows, cols int, elts ...Node) *ArrayRef {
	if rows*cols != len(elts) {
		panic(fmt.Sprintf("ir: array %s is %dx%d but has %d elements", name, rows, cols, len(elts)))
	}
	return &ArrayRef{typed{commonType(elts)}, ArrayDescriptor{Name: name, Rows: rows, Cols: cols}, elts}
}

// Vector is a single-column array
func Vector(name string, elts ...Node) *ArrayRef {
	return Array(name, len(elts), 1, elts...)
}

// Apply applies an operator, typing comparisons and arithmetic as numeric and
// concatenation as text.
func Apply(op Op, args ...Node) *Operator {
	t := Numeric
	switch op {
	case OpConcat:
		t = String
	case OpMin, OpMax:
		t = commonType(args)
	}
	return &Operator{typed{t}, op, args}
}

func Add(a, b Node) *Operator { return Apply(OpPlus, a, b) }
func Minus(a, b Node) *Operator { return Apply(OpMinus, a, b) }
func Mul(a, b Node) *Operator { return Apply(OpTimes, a, b) }
func Div(a, b Node) *Operator { return Apply(OpDivide, a, b) }
func Neg(a Node) *Operator     { return Apply(OpMinus, a) }

// Call applies a function, inferring its result domain
func Call(fn Fn, args ...Node) *Function {
	return &Function{typed{InferFnType(fn, args)}, fn, args}
}

// CallAs applies a function with an explicit result domain
func CallAs(t DataType, fn Fn, args ...Node) *Function {
	return &Function{typed{t}, fn, args}
}

func If(test, a, b Node) *Function { return Call(FnIF, test, a, b) }

// LetIn binds name to value in body
func LetIn(name string, value, body Node) *Let {
	return &Let{typed{body.Type()}, name, value, body}
}

// Var references a let-bound name
func Var(name string, t DataType) *LetVar { return &LetVar{typed{t}, name} }

// SwitchOf selects a value by integer key
func SwitchOf(selector Node, def Node, cases ...SwitchCase) *Switch {
	t := Null
	for _, c := range cases {
		if c.Value.Type() != Null {
			t = c.Value.Type()
			break
		}
	}
	if t == Null && def != nil {
		t = def.Type()
	}
	return &Switch{typed{t}, selector, cases, def}
}

// Case maps keys to a value in a switch
func Case(value Node, keys ...int) SwitchCase { return SwitchCase{Keys: keys, Value: value} }

// CountOf counts static values plus per-instance values of sections
func CountOf(static int, sections []*Section, perInstance []int) *Count {
	return &Count{typed{Numeric}, static, sections, perInstance}
}

// FoldOver folds a list of elements
func FoldOver(f *Fold, elts ...Node) *FoldList {
	return &FoldList{typed{foldType(f)}, f, elts}
}

// FoldParallel folds parallel vectors
func FoldParallel(f *Fold, vecs ...Node) *FoldVectors {
	return &FoldVectors{typed{foldType(f)}, f, vecs}
}

// FoldTable folds a table column over rows matching filter. column < 0 selects
// the column dynamically through columnExpr among keys.
func FoldTable(f *Fold, table *ArrayRef, colNames []string, filter Node, column int, columnExpr Node, keys []int) *FoldDatabase {
	return &FoldDatabase{typed{foldType(f)}, f, table, colNames, filter, column, columnExpr, keys}
}

// Traced wraps n in a logging node
func Traced(n Node, source, name string, input, output bool) *Logging {
	return &Logging{typed{n.Type()}, n, source, name, input, output}
}

// WithType returns a copy of a leaf node retagged to t. It exists for tests
// that need malformed trees.
func WithType(n Node, t DataType) Node {
	switch v := n.(type) {
	case *Const:
		c := *v
		c.T = t
		return &c
	case *LetVar:
		c := *v
		c.T = t
		return &c
	case *Operator:
		c := *v
		c.T = t
		return &c
	case *Function:
		c := *v
		c.T = t
		return &c
	}
	return n
}

func foldType(f *Fold) DataType {
	if f.Merge != nil {
		return f.Merge.Type()
	}
	if len(f.Inits) > 0 {
		return f.Inits[0].Type()
	}
	return Numeric
}

func commonType(nodes []Node) DataType {
	t := Null
	for _, n := range nodes {
		if n == nil {
			continue
		}
		switch n.Type() {
		case String:
			return String
		case Numeric:
			t = Numeric
		}
	}
	if t == Null && len(nodes) == 0 {
		return Numeric
	}
	return t
}

// InferFnType is the result domain of fn applied to args
func InferFnType(fn Fn, args []Node) DataType {
	switch fn {
	case FnIF:
		if len(args) >= 3 {
			return commonType(args[1:3])
		}
		if len(args) == 2 {
			return commonType(args[1:2])
		}
		return Numeric
	case FnINDEX:
		if len(args) > 0 {
			return args[0].Type()
		}
	case FnLOWER, FnUPPER, FnTRIM, FnLEFT, FnRIGHT, FnMID, FnCONCATENATE,
		FnSUBSTITUTE, FnREPT, FnTEXT:
		return String
	}
	return Numeric
}

// Standard folds used by the aggregate functions

// SumFold adds all elements
func SumFold() *Fold {
	return &Fold{
		AccuNames: []string{"r"}, Inits: []Node{Num(0.0)},
		EltNames: []string{"xi"}, Steps: []Node{Add(Var("r", Numeric), Var("xi", Numeric))},
		MayRearrange: true, MayReduce: true,
	}
}

// ProductFold multiplies all elements, zero when there are none
func ProductFold() *Fold {
	return &Fold{
		AccuNames: []string{"r"}, Inits: []Node{Num(1.0)},
		EltNames: []string{"xi"}, Steps: []Node{Mul(Var("r", Numeric), Var("xi", Numeric))},
		WhenEmpty:    Num(0.0),
		MayRearrange: true, MayReduce: true,
	}
}

// MinFold keeps the smallest element, zero when there are none
func MinFold() *Fold {
	return &Fold{
		AccuNames: []string{"r"}, Inits: []Node{Max(Numeric)},
		EltNames: []string{"xi"}, Steps: []Node{Apply(OpMin, Var("r", Numeric), Var("xi", Numeric))},
		WhenEmpty:    Num(0.0),
		MayRearrange: true, MayReduce: true,
	}
}

// MaxFold keeps the largest element, zero when there are none
func MaxFold() *Fold {
	return &Fold{
		AccuNames: []string{"r"}, Inits: []Node{Min(Numeric)},
		EltNames: []string{"xi"}, Steps: []Node{Apply(OpMax, Var("r", Numeric), Var("xi", Numeric))},
		WhenEmpty:    Num(0.0),
		MayRearrange: true, MayReduce: true,
	}
}

// AverageFold divides the sum by the element count
func AverageFold() *Fold {
	return &Fold{
		AccuNames: []string{"r"}, Inits: []Node{Num(0.0)},
		EltNames: []string{"xi"}, Steps: []Node{Add(Var("r", Numeric), Var("xi", Numeric))},
		CountName: "n",
		Merge:     Div(Var("r", Numeric), Var("n", Numeric)),
		WhenEmpty: CallAs(Numeric, FnERROR, Str("#DIV/0!")),
		MayRearrange: true, MayReduce: true,
	}
}

// CountFold counts the elements
func CountFold() *Fold {
	return &Fold{
		AccuNames: []string{"r"}, Inits: []Node{Num(0.0)},
		EltNames: []string{"xi"}, Steps: []Node{Add(Var("r", Numeric), Num(1.0))},
		MayRearrange: true,
	}
}
