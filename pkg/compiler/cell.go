package compiler

import (
	"strings"
	"unicode"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

// sanitize keeps the letters and digits of a cell name
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Cell"
	}
	return b.String()
}

// caches reports whether the value of c is memoized
func (c *Compiler) caches(cell *ir.Cell) bool {
	return c.cfg.FullCaching && cell.IsCachingCandidate()
}

// needsRoutine reports whether c is compiled into its own routine rather
// than inlined at its single reference.
func (c *Compiler) needsRoutine(cell *ir.Cell) bool {
	return cell.IsInput() || cell.IsOutput() || cell.RefCount > 1 || c.outerRefs[cell] || c.caches(cell)
}

// nameCells reserves the routines of the cells that get one and checks
// their bindings.
func (s *sectionCompiler) nameCells() error {
	if err := s.reserveOutputs(); err != nil {
		return err
	}
	for _, c := range s.model.Cells {
		if c.Type == ir.TypeUnset && (c.Expr != nil || c.HasConstant || c.IsInput()) {
			return inCell(UnsupportedDataType.New("Cell has no data type."), c)
		}
		if c.IsInput() {
			if t := c.Input.Result; t != nil && !interop.Supported(t) {
				return inCell(UnsupportedDataType.New("Input %s returns the unsupported type %s.", c.Input, t), c)
			}
			if sc := c.Input.Scale; sc > numeric.MaxScale {
				return inCell(UnsupportedDataType.New("Input %s carries scale %d beyond %d.", c.Input, sc, numeric.MaxScale), c)
			}
		}
		for _, out := range c.Outputs {
			if out.Chained {
				return inCell(UnsupportedExpression.New("Output %s is bound through a chained call.", out.Method), c)
			}
			if out.Result != nil && !interop.Supported(out.Result) {
				return inCell(UnsupportedDataType.New("Output %s returns the unsupported type %s.", out.Method, out.Result), c)
			}
			if out.Scale > numeric.MaxScale {
				return inCell(UnsupportedDataType.New("Output %s carries scale %d beyond %d.", out.Method, out.Scale, numeric.MaxScale), c)
			}
			for _, p := range out.Params {
				if p != nil && !interop.Supported(p) {
					return inCell(UnsupportedDataType.New("Output %s takes the unsupported type %s.", out.Method, p), c)
				}
			}
		}
		if s.c.needsRoutine(c) {
			s.getters[c] = s.uniqueName("get" + sanitize(c.Name))
		}
	}
	return nil
}

// reserveOutputs claims the exported names of the unit before any
// internal routine is named.
func (s *sectionCompiler) reserveOutputs() error {
	sections := make(map[string]bool)
	for _, sub := range s.subs {
		for _, out := range sub.model.Outputs {
			if s.taken[out.Method] {
				return UnsupportedExpression.New("Output %s of section %s is bound twice.", out.Method, s.model.Name)
			}
			s.taken[out.Method] = true
			sections[out.Method] = true
		}
	}
	for _, c := range s.model.Cells {
		for _, out := range c.Outputs {
			if sections[out.Method] {
				return inCell(UnsupportedExpression.New("Output %s is bound to a cell and a section.", out.Method), c)
			}
			s.taken[out.Method] = true
		}
	}
	return nil
}

// compileCells builds the routines of the named cells
func (s *sectionCompiler) compileCells() error {
	for _, c := range s.model.Cells {
		name, ok := s.getters[c]
		if !ok {
			continue
		}
		dt := domainOf(c.Type)
		m := s.newMethod(name, nil)
		var err error
		if s.c.caches(c) {
			err = m.compileCached(c, dt)
		} else {
			m.inlining[c] = true
			err = m.compileCellValue(c, dt)
		}
		if err != nil {
			return inCell(err, c)
		}
		m.e.Return(true)
		m.finish(m.kindOf(dt))
	}
	return nil
}

// cacheFields are the flag and value fields memoizing a cell
func cacheFields(getter string) (have, value string) {
	return "h$" + getter, "c$" + getter
}

// compileCached computes the cell once and keeps the value until reset
func (m *methodCompiler) compileCached(c *ir.Cell, dt ir.DataType) error {
	have, value := cacheFields(m.name)
	m.sec.unit.AddField(have, stack.KindRef)
	m.sec.unit.AddField(value, m.kindOf(dt))

	cached := m.e.NewLabel()
	m.loadObject()
	m.e.GetField(have)
	m.e.Branch(stack.IfNonNull, cached)
	m.loadObject()
	m.inlining[c] = true
	if err := m.compileCellValue(c, dt); err != nil {
		return err
	}
	m.e.PutField(value)
	m.loadObject()
	m.e.Const(true)
	m.e.PutField(have)
	m.e.Mark(cached)
	m.loadObject()
	m.e.GetField(value)
	return nil
}

// compileCellValue pushes the value of a cell of the section in context
func (m *methodCompiler) compileCellValue(c *ir.Cell, dt ir.DataType) error {
	restore := m.lets.hideFrom(0)
	defer restore()
	switch {
	case c.IsInput():
		return m.compileInput(c, dt)
	case c.HasConstant:
		return m.compile(ir.ConstOf(c.Type, c.Constant), dt)
	case c.Expr != nil:
		return m.compile(c.Expr, dt)
	}
	m.strategyOf(dt).zero(m.e)
	return nil
}

// compileInput reads an input cell through its accessor chain and converts
// the external value.
func (m *methodCompiler) compileInput(c *ir.Cell, dt ir.DataType) error {
	m.loadObject()
	m.e.GetField(stack.FieldInputs)
	compileFrames(m.e, c.Input)
	m.loadEnv()
	m.e.Op(stack.Swap)
	ct := domainOf(c.Type)
	if ct == ir.String {
		m.e.Call("ext.str", 2)
	} else {
		m.e.Const(c.Input.Scale)
		m.e.Call("ext."+m.num().prefix(), 3)
	}
	return m.convert(ct, dt)
}

// compileCellRef loads a cell of the section in context or of one of its
// ancestors. Cells of inner sections are only reachable through folds.
func (m *methodCompiler) compileCellRef(v *ir.CellRef, dt ir.DataType) error {
	c := v.Cell
	target, ok := m.compiler().sections[c.Section]
	if !ok {
		return InternalError.New("Cell %s is not part of the model.", c)
	}
	if target == m.ctx {
		return m.compileOwnCell(c, dt)
	}
	if !target.model.Contains(m.ctx.model) {
		return ReferenceToInnerCellNotAggregated.New("Cell %s of an inner section must be aggregated.", c)
	}
	mark := m.alloc.Mark()
	defer m.alloc.Reset(mark)
	slot := m.alloc.Alloc(stack.KindRef, "outer")
	m.loadObject()
	for s := m.ctx; s != target; s = s.parent {
		m.e.GetField(stack.FieldParent)
	}
	m.e.Store(slot)
	return m.withContext(slot, target, func() error { return m.compileOwnCell(c, dt) })
}

func (m *methodCompiler) compileOwnCell(c *ir.Cell, dt ir.DataType) error {
	if name, ok := m.ctx.getters[c]; ok {
		m.loadObject()
		m.e.Invoke(name, 0, true)
		return m.convert(c.Type, dt)
	}
	if m.inlining[c] {
		return UnsupportedExpression.New("Cell %s refers to itself.", c)
	}
	m.inlining[c] = true
	defer delete(m.inlining, c)
	ct := domainOf(c.Type)
	if err := m.compileCellValue(c, ct); err != nil {
		return inCell(err, c)
	}
	return m.convert(ct, dt)
}

// compileReset builds the root routine that drops cached values, section
// instances and the computation time.
func (s *sectionCompiler) compileReset() {
	m := s.newMethod(stack.RoutineReset, nil)
	for _, f := range s.unit.Fields {
		if strings.HasPrefix(f.Name, "h$") || strings.HasPrefix(f.Name, "s$") {
			m.loadObject()
			m.e.Const(nil)
			m.e.PutField(f.Name)
		}
	}
	m.loadObject()
	m.e.Const(nil)
	m.e.PutField(stack.FieldComputationTime)
	m.e.Return(false)
	m.finish(stack.KindVoid)
}
