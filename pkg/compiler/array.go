package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// scopeFunc runs fn in the scope an array's elements must compile in
type scopeFunc func(fn func() error) error

func directScope(fn func() error) error { return fn() }

// arrayOf resolves n to an array reference, following substituted lets
func (m *methodCompiler) arrayOf(n ir.Node) (*ir.ArrayRef, scopeFunc, error) {
	r, scope, err := m.aggregateOf(n, directScope)
	if err != nil {
		return nil, nil, err
	}
	if arr, ok := r.(*ir.ArrayRef); ok {
		return arr, scope, nil
	}
	return nil, nil, UnsupportedExpression.New("Expected an array but got %s.", n)
}

// checkIndex turns the one-based index argument into a zero-based int
// local, jumping to bad when it falls outside 1..size.
func (m *methodCompiler) checkIndex(n ir.Node, size int, bad *stack.Label) (int, error) {
	if err := m.compileInt(n); err != nil {
		return 0, err
	}
	m.e.Const(1)
	m.e.Op(stack.ISub)
	slot := m.alloc.Alloc(stack.KindInt, "index")
	m.e.Store(slot)
	m.e.Load(slot)
	m.e.Branch(stack.IfLt, bad)
	m.e.Load(slot)
	m.e.Const(size)
	m.e.Op(stack.ISub)
	m.e.Branch(stack.IfGe, bad)
	return slot, nil
}

// compileIndex selects an array element by position through the array's
// indexer routine. Two-dimensional positions are linearized row-major
// after both coordinates are range checked.
func (m *methodCompiler) compileIndex(v *ir.Function, dt ir.DataType) error {
	if err := arity(v, 2, 3); err != nil {
		return err
	}
	arr, _, err := m.arrayOf(v.Operands[0])
	if err != nil {
		return err
	}
	mark := m.alloc.Mark()
	defer m.alloc.Reset(mark)

	rows, cols := arr.Desc.Rows, arr.Desc.Cols
	linear := m.alloc.Alloc(stack.KindInt, "linear")
	switch {
	case len(v.Operands) == 2 && (rows == 1 || cols == 1):
		if err := m.compileInt(v.Operands[1]); err != nil {
			return err
		}
		m.e.Const(1)
		m.e.Op(stack.ISub)
		m.e.Store(linear)
	case len(v.Operands) == 3:
		bad, ok := m.e.NewLabel(), m.e.NewLabel()
		row, err := m.checkIndex(v.Operands[1], rows, bad)
		if err != nil {
			return err
		}
		col, err := m.checkIndex(v.Operands[2], cols, bad)
		if err != nil {
			return err
		}
		m.e.Load(row)
		m.e.Const(cols)
		m.e.Op(stack.IMul)
		m.e.Load(col)
		m.e.Op(stack.IAdd)
		m.e.Store(linear)
		m.e.Goto(ok)
		m.e.Mark(bad)
		m.e.Throw(string(stdlib.IndexOutOfRange), stdlib.IndexOutOfRange.Code())
		m.e.Mark(ok)
	default:
		return UnsupportedExpression.New("INDEX on the %dx%d array %s needs a row and a column.", rows, cols, arr)
	}

	cl := m.closureOf(v.Operands[0])
	r, err := m.indexer(v.Operands[0], cl, dt)
	if err != nil {
		return err
	}
	return m.callHelper(r, cl, func() { m.e.Load(linear) })
}

// indexer builds the routine returning element i of the array n as dt.
// Positions outside the array raise IndexOutOfRange.
func (m *methodCompiler) indexer(n ir.Node, cl *closure, dt ir.DataType) (*stack.Routine, error) {
	h := m.helper("index", cl, stack.KindInt)
	arr, scope, err := h.arrayOf(n)
	if err != nil {
		return nil, err
	}
	bad := h.e.NewLabel()
	targets := make([]*stack.Label, len(arr.Elements))
	for i := range targets {
		targets[i] = h.e.NewLabel()
	}
	h.e.Load(cl.firstExtra())
	h.e.TableSwitch(0, targets, bad)
	for i, elt := range arr.Elements {
		h.e.Mark(targets[i])
		h.lets.beginTracking()
		err := scope(func() error { return h.compile(elt, dt) })
		h.lets.revert(h.lets.endTracking(), nil)
		if err != nil {
			return nil, err
		}
		h.e.Return(true)
	}
	h.e.Mark(bad)
	h.e.Throw(string(stdlib.IndexOutOfRange), stdlib.IndexOutOfRange.Code())
	return h.finish(h.kindOf(dt)), nil
}

// trimTrailingNulls drops the empty constants at the end of an array
func trimTrailingNulls(elts []ir.Node) []ir.Node {
	n := len(elts)
	for n > 0 {
		c, ok := elts[n-1].(*ir.Const)
		if elts[n-1] != nil && (!ok || !c.IsNull()) {
			break
		}
		n--
	}
	return elts[:n]
}

// accessor builds the routine returning the values of the array n as a
// []any in domain dt.
func (m *methodCompiler) accessor(n ir.Node, cl *closure, dt ir.DataType, trim bool) (*stack.Routine, error) {
	h := m.helper("array", cl)
	arr, scope, err := h.arrayOf(n)
	if err != nil {
		return nil, err
	}
	elts := arr.Elements
	if trim {
		elts = trimTrailingNulls(elts)
	}
	h.e.Const(len(elts))
	h.e.Op(stack.NewArray)
	for i, elt := range elts {
		h.e.Op(stack.Dup)
		h.e.Const(i)
		if err := scope(func() error { return h.compile(elt, dt) }); err != nil {
			return nil, err
		}
		h.e.Op(stack.AStore)
	}
	h.e.Return(true)
	return h.finish(stack.KindRef), nil
}

// matchType reads the constant match type argument of MATCH
func matchType(v *ir.Function) (int, error) {
	if len(v.Operands) < 3 {
		return 1, nil
	}
	arg := v.Operands[2]
	if c, ok := arg.(*ir.Const); ok {
		if d, ok := decimalOf(c.Value); ok {
			return d.Sign(), nil
		}
	}
	return 0, UnsupportedExpression.New("The last argument to MATCH, the match type, must be constant, but is %s.", arg)
}

// compileMatch pushes the one-based int position MATCH finds
func (m *methodCompiler) compileMatch(v *ir.Function) error {
	if len(v.Operands) < 2 || len(v.Operands) > 3 {
		return UnsupportedExpression.New("MATCH must have two or three arguments.")
	}
	typ, err := matchType(v)
	if err != nil {
		return err
	}
	arr, _, err := m.arrayOf(v.Operands[1])
	if err != nil {
		return err
	}
	lt, at := v.Operands[0].Type(), arr.Type()
	if lt != ir.Null && at != ir.Null && lt != at {
		return UnsupportedExpression.New("MATCH must have the same type of argument in the first and second slot.")
	}
	dt := ir.Numeric
	if lt == ir.String || at == ir.String {
		dt = ir.String
	}
	withEnv := dt == ir.String && typ != 0
	if withEnv {
		m.loadEnv()
	}
	if err := m.compile(v.Operands[0], dt); err != nil {
		return err
	}
	cl := m.closureOf(v.Operands[1])
	r, err := m.accessor(v.Operands[1], cl, dt, true)
	if err != nil {
		return err
	}
	if err := m.callHelper(r, cl); err != nil {
		return err
	}
	m.e.Const(typ)
	if withEnv {
		m.e.Call("str.MATCHenv", 4)
	} else {
		m.e.Call(m.strategyOf(dt).prefix()+".MATCH", 3)
	}
	return nil
}
