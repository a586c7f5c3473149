package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
)

// branch emits a jump to `to` taken when the test n evaluates to when.
// Control falls through otherwise.
func (m *methodCompiler) branch(n ir.Node, to *stack.Label, when bool) error {
	var err error
	switch v := n.(type) {
	case *ir.Operator:
		if v.Op.IsComparison() {
			err = m.branchComparison(v, to, when)
		} else {
			err = m.branchValue(n, to, when)
		}
	case *ir.Function:
		switch v.Fn {
		case ir.FnNOT:
			if len(v.Operands) != 1 {
				return inExpression(UnsupportedExpression.New("NOT must have exactly one argument."), n)
			}
			err = m.branch(v.Operands[0], to, !when)
		case ir.FnAND:
			err = m.branchJunction(v.Operands, to, when, false)
		case ir.FnOR:
			err = m.branchJunction(v.Operands, to, when, true)
		default:
			err = m.branchValue(n, to, when)
		}
	case *ir.Const:
		if d, ok := decimalOf(v.Value); ok && v.Type() != ir.String {
			if !d.IsZero() == when {
				m.e.Goto(to)
			}
			return nil
		}
		err = m.branchValue(n, to, when)
	default:
		err = m.branchValue(n, to, when)
	}
	return inExpression(err, n)
}

// branchValue tests a value against zero
func (m *methodCompiler) branchValue(n ir.Node, to *stack.Label, when bool) error {
	if err := m.compile(n, ir.Numeric); err != nil {
		return err
	}
	s := m.num()
	s.zero(m.e)
	s.compare(m.e, false)
	if when {
		m.e.Branch(stack.IfNe, to)
	} else {
		m.e.Branch(stack.IfEq, to)
	}
	return nil
}

// branchJunction compiles AND (any false) and OR (any true) with short
// circuits. Operands after the first are conditional, so bindings they
// materialize are reverted afterwards.
func (m *methodCompiler) branchJunction(args []ir.Node, to *stack.Label, when, or bool) error {
	if len(args) == 0 {
		if or != when {
			m.e.Goto(to)
		}
		return nil
	}
	// OR stops at the first true operand, AND at the first false one
	if when == or {
		return m.eachConditional(args, func(arg ir.Node) error {
			return m.branch(arg, to, when)
		})
	}
	skip := m.e.NewLabel()
	last := len(args) - 1
	i := 0
	err := m.eachConditional(args, func(arg ir.Node) error {
		defer func() { i++ }()
		if i == last {
			return m.branch(arg, to, when)
		}
		return m.branch(arg, skip, or)
	})
	m.e.Mark(skip)
	return err
}

// eachConditional compiles the operands in order, tracking bindings
// materialized by any operand but the first.
func (m *methodCompiler) eachConditional(args []ir.Node, fn func(ir.Node) error) error {
	if err := fn(args[0]); err != nil {
		return err
	}
	if len(args) == 1 {
		return nil
	}
	m.lets.beginTracking()
	var err error
	for _, arg := range args[1:] {
		if err = fn(arg); err != nil {
			break
		}
	}
	m.lets.revert(m.lets.endTracking(), nil)
	return err
}

// comparisonDomain picks the domain both operands are compared in. Text
// always ranks above numbers, so mixed comparisons have a static outcome.
func comparisonDomain(a, b ir.Node) (dt ir.DataType, static int, mixed bool) {
	ta, tb := a.Type(), b.Type()
	switch {
	case ta == ir.String && tb == ir.Numeric:
		return ir.String, 1, true
	case ta == ir.Numeric && tb == ir.String:
		return ir.String, -1, true
	case ta == ir.String || tb == ir.String:
		return ir.String, 0, false
	}
	return ir.Numeric, 0, false
}

func (m *methodCompiler) branchComparison(v *ir.Operator, to *stack.Label, when bool) error {
	if len(v.Operands) != 2 {
		return UnsupportedExpression.New("Comparison %s must have exactly two operands.", v.Op)
	}
	a, b := v.Operands[0], v.Operands[1]
	dt, static, mixed := comparisonDomain(a, b)
	if mixed {
		if holds(v.Op, static) == when {
			m.e.Goto(to)
		}
		return nil
	}
	if err := m.compile(a, dt); err != nil {
		return err
	}
	if err := m.compile(b, dt); err != nil {
		return err
	}
	// NaN must fail every comparison: less-than tests see it as greater.
	nanGreater := v.Op == ir.OpLess || v.Op == ir.OpLessOrEqual
	m.strategyOf(dt).compare(m.e, nanGreater)
	op := jumpOp(v.Op)
	if !when {
		op = op.Invert()
	}
	m.e.Branch(op, to)
	return nil
}

// jumpOp is the zero test of a comparison result that holds for op
func jumpOp(op ir.Op) stack.Op {
	switch op {
	case ir.OpEqual:
		return stack.IfEq
	case ir.OpNotEqual:
		return stack.IfNe
	case ir.OpLess:
		return stack.IfLt
	case ir.OpLessOrEqual:
		return stack.IfLe
	case ir.OpGreater:
		return stack.IfGt
	}
	return stack.IfGe
}

// holds evaluates a comparison on a known compare result
func holds(op ir.Op, cmp int) bool {
	switch op {
	case ir.OpEqual:
		return cmp == 0
	case ir.OpNotEqual:
		return cmp != 0
	case ir.OpLess:
		return cmp < 0
	case ir.OpLessOrEqual:
		return cmp <= 0
	case ir.OpGreater:
		return cmp > 0
	}
	return cmp >= 0
}

// compileIf compiles both branches under tracking. A binding stays
// materialized after the IF only when both branches materialized it.
func (m *methodCompiler) compileIf(v *ir.Function, dt ir.DataType) error {
	if len(v.Operands) < 2 || len(v.Operands) > 3 {
		return UnsupportedExpression.New("IF must have two or three arguments.")
	}
	orElse, done := m.e.NewLabel(), m.e.NewLabel()
	if err := m.branch(v.Operands[0], orElse, false); err != nil {
		return err
	}

	m.lets.beginTracking()
	err := m.compile(v.Operands[1], dt)
	thenSets := m.lets.endTracking()
	if err != nil {
		return err
	}
	m.e.Goto(done)

	m.e.Mark(orElse)
	m.lets.beginTracking()
	if len(v.Operands) == 3 {
		err = m.compile(v.Operands[2], dt)
	} else {
		err = m.strategyOf(dt).constant(m.e, false)
	}
	elseSets := m.lets.endTracking()
	if err != nil {
		return err
	}
	m.e.Mark(done)

	m.lets.revert(thenSets, elseSets)
	m.lets.revert(elseSets, thenSets)
	return nil
}
