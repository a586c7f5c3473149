package compiler

import "github.com/GriffinCanCode/formulac/pkg/ir"

// bind records the object in context with a new binding
func (m *methodCompiler) bind(e *letEntry) *letEntry {
	e.obj, e.ctx = m.obj, m.ctx
	return e
}

// substitutable reports whether a let value is re-compiled at every
// reference instead of being stored.
func substitutable(n ir.Node) bool {
	switch n.(type) {
	case *ir.ArrayRef, *ir.SubSectionRef, *ir.Const, *ir.LetVar, *ir.MinValue, *ir.MaxValue:
		return true
	}
	return false
}

func (m *methodCompiler) compileLet(v *ir.Let, dt ir.DataType) error {
	mark, slots := m.lets.mark(), m.alloc.Mark()
	defer func() {
		m.lets.release(mark)
		m.alloc.Reset(slots)
	}()
	if v.ByName() || substitutable(v.Value) {
		m.bind(m.lets.subst(v.Name, v.Value))
	} else {
		vt := domainOf(v.Value.Type())
		k := m.kindOf(vt)
		m.bind(m.lets.delayed(v.Name, v.Value, m.alloc.Alloc(k, v.Name), k, vt))
	}
	return m.compile(v.Body, dt)
}

// compileLetVar loads a binding. A pending binding is computed on its
// first reference and kept in its slot from then on.
func (m *methodCompiler) compileLetVar(name string, dt ir.DataType) error {
	idx, e := m.lets.lookup(name, m.lets.mark())
	if e == nil {
		return NameNotFound.New("The variable %s is not bound in this context.", name)
	}
	switch e.state {
	case letSubst:
		return m.inBindingScope(idx, e, func() error {
			return m.compile(e.value, dt)
		})
	case letPending:
		if err := m.pushRaw(e); err != nil {
			return err
		}
		return m.convert(e.dtype, dt)
	}
	m.e.Load(e.slot)
	if e.isInt {
		return m.fromInt(dt)
	}
	return m.convert(e.dtype, dt)
}

// inBindingScope runs fn with only the bindings visible where the entry
// at idx was made, against the object that was in context then.
func (m *methodCompiler) inBindingScope(idx int, e *letEntry, fn func() error) error {
	restore := m.lets.hideFrom(idx)
	defer restore()
	return m.withContext(e.obj, e.ctx, fn)
}
