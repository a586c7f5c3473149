package ir

import (
	"fmt"
	"reflect"
)

// Model is the computation model handed to the compiler: a root section with
// cells and nested repeating sections.
type Model struct {
	Name string
	Root *Section
	// InputType is the Go type of the object passed to new computations
	InputType reflect.Type
	// OutputType optionally supplies fallback implementations for output methods
	OutputType *OutputType
}

// Section is the root or a repeating group of cells
type Section struct {
	Name     string
	Parent   *Section
	Cells    []*Cell
	Sections []*Section

	// Input is the accessor on the parent's input returning the element container
	Input *CallFrame
	// ElementType is the Go type of each element in the input container
	ElementType reflect.Type
	// Outputs expose the section instances through the parent's output methods
	Outputs []*SectionOutput
}

// Depth is the nesting level of the section, zero for the root
func (s *Section) Depth() int {
	d := 0
	for p := s.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Contains reports whether s is other or one of its ancestors
func (s *Section) Contains(other *Section) bool {
	for p := other; p != nil; p = p.Parent {
		if p == s {
			return true
		}
	}
	return false
}

// AddCell appends a new cell to the section
func (s *Section) AddCell(name string, t DataType) *Cell {
	c := &Cell{Name: name, Section: s, Type: t}
	s.Cells = append(s.Cells, c)
	return c
}

// AddSection appends a new repeating sub-section bound to the given accessor
func (s *Section) AddSection(name string, input *CallFrame, elementType reflect.Type) *Section {
	sub := &Section{Name: name, Parent: s, Input: input, ElementType: elementType}
	s.Sections = append(s.Sections, sub)
	return sub
}

// Cell is one spreadsheet cell
type Cell struct {
	Name    string
	Section *Section
	Type    DataType

	// Constant is the value of a constant cell when HasConstant is set
	Constant    any
	HasConstant bool
	// Expr is the formula of a computed cell
	Expr Node

	Input   *CallFrame
	Outputs []*OutputBinding

	// RefCount is the number of expression sites referencing the cell
	RefCount int
	Volatile bool
	// Caching overrides the default caching candidacy when set
	Caching *bool
}

func (c *Cell) String() string {
	if c.Section != nil && c.Section.Parent != nil {
		return c.Section.Name + "!" + c.Name
	}
	return c.Name
}

func (c *Cell) IsInput() bool  { return c.Input != nil }
func (c *Cell) IsOutput() bool { return len(c.Outputs) > 0 }

// SetConstant turns the cell into a constant cell
func (c *Cell) SetConstant(v any) *Cell {
	c.Constant = v
	c.HasConstant = true
	return c
}

// SetExpr turns the cell into a computed cell
func (c *Cell) SetExpr(n Node) *Cell {
	c.Expr = n
	return c
}

// IsCachingCandidate reports whether memoizing the cell pays off
func (c *Cell) IsCachingCandidate() bool {
	if c.Caching != nil {
		return *c.Caching
	}
	if c.Volatile {
		return false
	}
	return c.RefCount > 1 || c.IsInput()
}

// CallFrame is one call in a bound accessor chain, applied to the result of Prev
// or to the section input when Prev is nil.
type CallFrame struct {
	Method string
	Args   []any
	Params []reflect.Type
	Result reflect.Type
	Prev   *CallFrame

	// Scale is the fixed-point scale of a scaled int64 result, or -1
	Scale int
}

// Chain lists the frames from the first call to this one
func (f *CallFrame) Chain() []*CallFrame {
	var chain []*CallFrame
	for fr := f; fr != nil; fr = fr.Prev {
		chain = append([]*CallFrame{fr}, chain...)
	}
	return chain
}

func (f *CallFrame) String() string {
	s := ""
	if f.Prev != nil {
		s = f.Prev.String() + "."
	}
	return fmt.Sprintf("%s%s(%d args)", s, f.Method, len(f.Args))
}

// OutputBinding binds a cell to an output method. Args are the constant values
// callers must pass for this binding to apply; methods sharing a name dispatch
// on them.
type OutputBinding struct {
	Method string
	Params []reflect.Type
	Args   []any
	Result reflect.Type
	Scale  int
	// Chained bindings go through an intermediate call and are rejected
	Chained bool
}

// Shape is the container kind exposed for a section output
type Shape int

const (
	ShapeArray Shape = iota
	ShapeList
	ShapeCollection
	ShapeIterator
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeList:
		return "list"
	case ShapeCollection:
		return "collection"
	case ShapeIterator:
		return "iterator"
	}
	return "unknown"
}

// SectionOutput exposes section instances through an output method
type SectionOutput struct {
	Method string
	Shape  Shape
}

// OutputType supplies the fallback behavior of output methods. Defaults names
// the methods with a concrete implementation on the delegate built by New or
// NewWithInput.
type OutputType struct {
	Name         string
	Defaults     map[string]bool
	New          func() any
	NewWithInput func(input any) any
}

// HasDefault reports whether the method has a fallback implementation
func (t *OutputType) HasDefault(method string) bool {
	return t != nil && t.Defaults[method]
}
