// Package ir implements the intermediate representation of spreadsheet formulas.
//
// Design: Immutable expression trees, every node tagged with the value domain
// assigned by type inference. The compiler never infers types itself; it trusts
// the tag and fails fast when it is missing.
package ir

import "strings"

// DataType is the value domain of a node
type DataType int

const (
	TypeUnset DataType = iota
	Numeric
	String
	Null
)

func (t DataType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case String:
		return "string"
	case Null:
		return "null"
	default:
		return "unset"
	}
}

// ByNameMarker prefixes let names that are substituted at every reference
// instead of being materialized into a local slot.
const ByNameMarker = "~"

// Node is an expression tree node
type Node interface {
	Type() DataType
	Args() []Node
	String() string
	node()
}

type typed struct {
	T DataType
}

func (t typed) Type() DataType { return t.T }

// Const is a literal value. Numbers are float64, int, int64 or decimal values,
// text is string, booleans are bool and nil is the empty value.
type Const struct {
	typed
	Value any
}

func (Const) node()         {}
func (Const) Args() []Node  { return nil }
func (n *Const) IsNull() bool { return n.Value == nil }

// MinValue pushes the smallest value of its domain
type MinValue struct{ typed }

func (MinValue) node()        {}
func (MinValue) Args() []Node { return nil }

// MaxValue pushes the largest value of its domain
type MaxValue struct{ typed }

func (MaxValue) node()        {}
func (MaxValue) Args() []Node { return nil }

// CellRef references a model cell
type CellRef struct {
	typed
	Cell *Cell
}

func (CellRef) node()        {}
func (CellRef) Args() []Node { return nil }

// ParentRef evaluates its argument in the context of the enclosing section
type ParentRef struct {
	typed
	Arg Node
}

func (ParentRef) node()          {}
func (n *ParentRef) Args() []Node { return []Node{n.Arg} }

// SubSectionRef is a vector crossing a repeating section. Its elements are
// evaluated once per section instance.
type SubSectionRef struct {
	typed
	Section  *Section
	Elements []Node
}

func (SubSectionRef) node()          {}
func (n *SubSectionRef) Args() []Node { return n.Elements }

// ArrayRef is a fixed-cardinality array of element expressions
type ArrayRef struct {
	typed
	Desc     ArrayDescriptor
	Elements []Node
}

func (ArrayRef) node()          {}
func (n *ArrayRef) Args() []Node { return n.Elements }

// ArrayDescriptor is the shape of an array reference
type ArrayDescriptor struct {
	Name string
	Rows int
	Cols int
}

func (d ArrayDescriptor) NumberOfElements() int { return d.Rows * d.Cols }

// Operator applies an operator to its operands
type Operator struct {
	typed
	Op       Op
	Operands []Node
}

func (Operator) node()          {}
func (n *Operator) Args() []Node { return n.Operands }

// Function applies a spreadsheet function to its operands
type Function struct {
	typed
	Fn       Fn
	Operands []Node
}

func (Function) node()          {}
func (n *Function) Args() []Node { return n.Operands }

// Switch selects a case by integer key
type Switch struct {
	typed
	Selector Node
	Cases    []SwitchCase
	Default  Node
}

type SwitchCase struct {
	Keys  []int
	Value Node
}

func (Switch) node() {}
func (n *Switch) Args() []Node {
	args := []Node{n.Selector}
	for _, c := range n.Cases {
		args = append(args, c.Value)
	}
	if n.Default != nil {
		args = append(args, n.Default)
	}
	return args
}

// Count is the number of values in a list that may cross repeating sections.
// SectionCounts[i] is the number of values each instance of Sections[i] adds.
type Count struct {
	typed
	StaticCount   int
	Sections      []*Section
	SectionCounts []int
}

func (Count) node()        {}
func (Count) Args() []Node { return nil }

// Let binds Name to Value while evaluating Body
type Let struct {
	typed
	Name  string
	Value Node
	Body  Node
}

func (Let) node()          {}
func (n *Let) Args() []Node { return []Node{n.Value, n.Body} }

// ByName reports whether the binding is substituted rather than materialized
func (n *Let) ByName() bool { return strings.HasPrefix(n.Name, ByNameMarker) }

// LetVar references a let-bound name
type LetVar struct {
	typed
	Name string
}

func (LetVar) node()        {}
func (LetVar) Args() []Node { return nil }

// FoldList folds a list of elements that may contain arrays and sub-section vectors
type FoldList struct {
	typed
	Fold     *Fold
	Elements []Node
}

func (FoldList) node()          {}
func (n *FoldList) Args() []Node { return n.Elements }

// FoldVectors folds parallel vectors, binding one element name per vector
type FoldVectors struct {
	typed
	Fold    *Fold
	Vectors []Node
}

func (FoldVectors) node()          {}
func (n *FoldVectors) Args() []Node { return n.Vectors }

// FoldDatabase folds one column of the table rows that match Filter. The
// filter sees each row through ColNames. The folded column is static when
// StaticColumn >= 0, otherwise it is selected by Column among ColumnKeys.
type FoldDatabase struct {
	typed
	Fold         *Fold
	Table        *ArrayRef
	ColNames     []string
	Filter       Node
	StaticColumn int
	Column       Node
	ColumnKeys   []int
}

func (FoldDatabase) node() {}
func (n *FoldDatabase) Args() []Node {
	args := []Node{n.Table, n.Filter}
	if n.Column != nil {
		args = append(args, n.Column)
	}
	return args
}

// Logging passes its argument through and reports it to the environment tracer
type Logging struct {
	typed
	Arg    Node
	Source string
	Name   string
	Input  bool
	Output bool
}

func (Logging) node()          {}
func (n *Logging) Args() []Node { return []Node{n.Arg} }

// Op is an operator symbol
type Op int

const (
	OpPlus Op = iota
	OpMinus
	OpTimes
	OpDivide
	OpExp
	OpPercent
	OpConcat
	OpEqual
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpMin
	OpMax
)

var opSymbols = [...]string{
	OpPlus:           "+",
	OpMinus:          "-",
	OpTimes:          "*",
	OpDivide:         "/",
	OpExp:            "^",
	OpPercent:        "%",
	OpConcat:         "&",
	OpEqual:          "=",
	OpNotEqual:       "<>",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpMin:            "_min_",
	OpMax:            "_max_",
}

func (op Op) String() string {
	if int(op) < len(opSymbols) {
		return opSymbols[op]
	}
	return "?"
}

// IsComparison reports whether the operator yields a boolean test
func (op Op) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	}
	return false
}
