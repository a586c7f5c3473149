package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/regalloc"
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// methodCompiler builds one routine. The object in context starts as the
// receiver and moves to parents and section elements while sub-expressions
// are compiled against them.
type methodCompiler struct {
	sec    *sectionCompiler
	name   string
	params []stack.Kind
	e      *stack.Emitter
	alloc  *regalloc.Allocator
	lets   *letDict

	obj      int
	ctx      *sectionCompiler
	inlining map[*ir.Cell]bool
}

func (s *sectionCompiler) newMethod(name string, params []stack.Kind) *methodCompiler {
	return &methodCompiler{
		sec:      s,
		name:     name,
		params:   params,
		e:        stack.NewEmitter(),
		alloc:    regalloc.NewAllocator(name, params),
		lets:     newLetDict(),
		ctx:      s,
		inlining: make(map[*ir.Cell]bool),
	}
}

func (m *methodCompiler) compiler() *Compiler { return m.sec.c }
func (m *methodCompiler) num() numberStrategy { return m.sec.c.num }

// finish adds the routine to the unit of its section
func (m *methodCompiler) finish(result stack.Kind) *stack.Routine {
	r := m.e.Finish(m.name, m.params, result, m.alloc.Max())
	m.sec.unit.AddRoutine(r)
	logger.LogRoutine(m.sec.unit.Name, r.Name, len(r.Code), r.MaxLocals)
	return r
}

// domainOf maps the null domain onto the numeric one
func domainOf(dt ir.DataType) ir.DataType {
	if dt == ir.String {
		return ir.String
	}
	return ir.Numeric
}

func (m *methodCompiler) strategyOf(dt ir.DataType) strategy {
	if domainOf(dt) == ir.String {
		return stringStrategy{}
	}
	return m.num()
}

func (m *methodCompiler) kindOf(dt ir.DataType) stack.Kind {
	return m.strategyOf(dt).kind()
}

func (m *methodCompiler) loadObject() {
	m.e.Load(m.obj)
}

func (m *methodCompiler) loadEnv() {
	m.loadObject()
	m.e.GetField(stack.FieldEnvironment)
}

// withContext compiles fn against the object held in slot, an instance of sec
func (m *methodCompiler) withContext(slot int, sec *sectionCompiler, fn func() error) error {
	obj, ctx := m.obj, m.ctx
	m.obj, m.ctx = slot, sec
	defer func() { m.obj, m.ctx = obj, ctx }()
	return fn()
}

// compile leaves the value of n in domain dt on the stack. A node of
// another domain is compiled in its own domain and converted.
func (m *methodCompiler) compile(n ir.Node, dt ir.DataType) error {
	dt = domainOf(dt)
	if n == nil {
		m.strategyOf(dt).zero(m.e)
		return nil
	}
	var err error
	switch t := n.Type(); {
	case t == ir.TypeUnset:
		err = UnsupportedDataType.New("Expression has no data type.")
	case t != ir.Null && t != dt:
		if err = m.compileInner(n, t); err == nil {
			err = m.convert(t, dt)
		}
	default:
		err = m.compileInner(n, dt)
	}
	return inExpression(err, n)
}

// convert turns the value on the stack from one domain into another
func (m *methodCompiler) convert(from, to ir.DataType) error {
	from, to = domainOf(from), domainOf(to)
	if from == to {
		return nil
	}
	m.loadEnv()
	m.e.Op(stack.Swap)
	if to == ir.String {
		m.e.Call(m.num().prefix()+".toStr", 2)
	} else {
		m.e.Call(m.num().prefix()+".fromStr", 2)
	}
	return nil
}

func (m *methodCompiler) compileInner(n ir.Node, dt ir.DataType) error {
	switch v := n.(type) {
	case *ir.Const:
		return m.strategyOf(dt).constant(m.e, v.Value)
	case *ir.MinValue:
		return m.strategyOf(dt).minValue(m.e)
	case *ir.MaxValue:
		return m.strategyOf(dt).maxValue(m.e)
	case *ir.CellRef:
		return m.compileCellRef(v, dt)
	case *ir.ParentRef:
		return m.compileParent(v, dt)
	case *ir.SubSectionRef:
		return ReferenceToInnerCellNotAggregated.New("Inner cells of section %s must be aggregated.", v.Section.Name)
	case *ir.ArrayRef:
		return ReferenceToArrayNotAggregated.New("Array %s must be aggregated.", v)
	case *ir.Operator:
		return m.compileOperator(v, dt)
	case *ir.Function:
		return m.compileFunction(v, dt)
	case *ir.Switch:
		return m.compileSwitch(v, dt)
	case *ir.Count:
		return m.compileCount(v, dt)
	case *ir.Let:
		return m.compileLet(v, dt)
	case *ir.LetVar:
		return m.compileLetVar(v.Name, dt)
	case *ir.FoldList:
		return m.compileFoldList(v, dt)
	case *ir.FoldVectors:
		return m.compileFoldVectors(v, dt)
	case *ir.FoldDatabase:
		return m.compileFoldDatabase(v, dt)
	case *ir.Logging:
		return m.compileLogging(v, dt)
	}
	return InternalError.New("Cannot compile %T.", n)
}

// compileInt leaves n as an int index
func (m *methodCompiler) compileInt(n ir.Node) error {
	if err := m.compile(n, ir.Numeric); err != nil {
		return err
	}
	m.num().toInt(m.e)
	return nil
}

// compileF64 leaves n as a float64 for functions only the double library has
func (m *methodCompiler) compileF64(n ir.Node) error {
	if err := m.compile(n, ir.Numeric); err != nil {
		return err
	}
	m.num().toF64(m.e)
	return nil
}

// compileOperator folds the operands left to right. Comparisons produce
// TRUE or FALSE through the test compiler.
func (m *methodCompiler) compileOperator(v *ir.Operator, dt ir.DataType) error {
	if v.Op.IsComparison() {
		return m.compileTestValue(v, dt)
	}
	s := m.strategyOf(dt)
	switch len(v.Operands) {
	case 0:
		return UnsupportedExpression.New("Operator %s has no arguments.", v.Op)
	case 1:
		if err := m.compile(v.Operands[0], dt); err != nil {
			return err
		}
		return s.unary(m.e, v.Op)
	}
	if err := m.compile(v.Operands[0], dt); err != nil {
		return err
	}
	for _, arg := range v.Operands[1:] {
		if err := m.compile(arg, dt); err != nil {
			return err
		}
		if err := s.binary(m.e, v.Op); err != nil {
			return err
		}
	}
	return nil
}

// compileTestValue materializes a test as TRUE or FALSE
func (m *methodCompiler) compileTestValue(n ir.Node, dt ir.DataType) error {
	s := m.strategyOf(dt)
	notMet, done := m.e.NewLabel(), m.e.NewLabel()
	if err := m.branch(n, notMet, false); err != nil {
		return err
	}
	if err := s.constant(m.e, true); err != nil {
		return err
	}
	m.e.Goto(done)
	m.e.Mark(notMet)
	if err := s.constant(m.e, false); err != nil {
		return err
	}
	m.e.Mark(done)
	return nil
}

func (m *methodCompiler) compileParent(v *ir.ParentRef, dt ir.DataType) error {
	if m.ctx.parent == nil {
		return UnsupportedExpression.New("The root section has no parent.")
	}
	slot := m.alloc.Alloc(stack.KindRef, "parent")
	m.loadObject()
	m.e.GetField(stack.FieldParent)
	m.e.Store(slot)
	return m.withContext(slot, m.ctx.parent, func() error {
		return m.compile(v.Arg, dt)
	})
}

func (m *methodCompiler) compileLogging(v *ir.Logging, dt ir.DataType) error {
	if err := m.compile(v.Arg, dt); err != nil {
		return err
	}
	if !m.compiler().cfg.ComputationListener {
		return nil
	}
	m.loadEnv()
	m.e.Op(stack.Swap)
	m.e.Const(v.Source)
	m.e.Const(v.Name)
	m.e.Call("trace", 4)
	return nil
}

// compileCount adds the per-instance counts of sub-sections to the static count
func (m *methodCompiler) compileCount(v *ir.Count, dt ir.DataType) error {
	m.e.Const(v.StaticCount)
	for i, sec := range v.Sections {
		sub, err := m.ctx.subSection(sec)
		if err != nil {
			return err
		}
		m.loadObject()
		m.e.Invoke(sub.getter(), 0, true)
		m.e.Op(stack.ALength)
		if n := v.SectionCounts[i]; n != 1 {
			m.e.Const(n)
			m.e.Op(stack.IMul)
		}
		m.e.Op(stack.IAdd)
	}
	return m.fromInt(dt)
}

// fromInt turns the int on the stack into a value of domain dt
func (m *methodCompiler) fromInt(dt ir.DataType) error {
	m.num().fromInt(m.e)
	return m.convert(ir.Numeric, dt)
}
