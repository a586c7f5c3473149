package compiler

import (
	"fmt"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// sectionCompiler builds the unit of one section. The instances of a
// sub-section are created by a getter routine of the parent unit and kept
// in a parent field until reset.
type sectionCompiler struct {
	c      *Compiler
	model  *ir.Section
	unit   *stack.Unit
	parent *sectionCompiler
	subs   []*sectionCompiler

	helpers int
	// getters name the routines of cells that are not inlined
	getters map[*ir.Cell]string
	taken   map[string]bool
}

func newSectionCompiler(c *Compiler, model *ir.Section, parent *sectionCompiler, name string) *sectionCompiler {
	s := &sectionCompiler{
		c:       c,
		model:   model,
		parent:  parent,
		getters: make(map[*ir.Cell]string),
		taken:   make(map[string]bool),
	}
	parentName := ""
	if parent != nil {
		parentName = parent.unit.Name
	}
	s.unit = stack.DeclareUnit(name, parentName)
	return s
}

// getter is the routine of the parent unit returning the instances
func (s *sectionCompiler) getter() string { return "get" + s.unit.Name }

// cacheField is the parent field holding the instances once built
func (s *sectionCompiler) cacheField() string { return "s" + s.unit.Name }

// subSection finds the compiler of a direct sub-section
func (s *sectionCompiler) subSection(sec *ir.Section) (*sectionCompiler, error) {
	for _, sub := range s.subs {
		if sub.model == sec {
			return sub, nil
		}
	}
	return nil, UnsupportedExpression.New("Section %s is not a direct sub-section of %s.", sec.Name, s.model.Name)
}

// uniqueName reserves a routine name in the unit
func (s *sectionCompiler) uniqueName(base string) string {
	name := base
	for i := 2; s.taken[name]; i++ {
		name = fmt.Sprintf("%s$%d", base, i)
	}
	s.taken[name] = true
	return name
}

// walk visits s and its sub-sections depth first
func (s *sectionCompiler) walk(fn func(*sectionCompiler) error) error {
	if err := fn(s); err != nil {
		return err
	}
	for _, sub := range s.subs {
		if err := sub.walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// compileGetter builds the routine creating the instances of sub from the
// container its input accessor returns. A nil container yields no
// instances.
func (s *sectionCompiler) compileGetter(sub *sectionCompiler) error {
	s.unit.AddField(sub.cacheField(), stack.KindRef)
	m := s.newMethod(sub.getter(), nil)
	have := m.e.NewLabel()
	m.loadObject()
	m.e.GetField(sub.cacheField())
	m.e.Op(stack.Dup)
	m.e.Branch(stack.IfNonNull, have)
	m.e.Op(stack.Pop)

	elts := m.alloc.Alloc(stack.KindRef, "elements")
	if in := sub.model.Input; in != nil {
		container := m.alloc.Alloc(stack.KindRef, "container")
		m.loadObject()
		m.e.GetField(stack.FieldInputs)
		compileFrames(m.e, in)
		m.e.Store(container)
		if err := m.compileContainer(container, elts, sub); err != nil {
			return err
		}
	} else {
		m.e.Const(0)
		m.e.Op(stack.NewArray)
		m.e.Store(elts)
	}

	res := m.alloc.Alloc(stack.KindRef, "instances")
	i := m.alloc.Alloc(stack.KindInt, "i")
	m.e.Load(elts)
	m.e.Op(stack.ALength)
	m.e.Op(stack.NewArray)
	m.e.Store(res)
	m.e.Const(0)
	m.e.Store(i)
	loop, end := m.e.Here(), m.e.NewLabel()
	m.e.Load(i)
	m.e.Load(res)
	m.e.Op(stack.ALength)
	m.e.Op(stack.ISub)
	m.e.Branch(stack.IfGe, end)
	m.e.Load(res)
	m.e.Load(i)
	m.e.Load(elts)
	m.e.Load(i)
	m.e.Op(stack.ALoad)
	m.loadObject()
	m.e.NewUnit(sub.unit.Name)
	m.e.Op(stack.AStore)
	m.e.Inc(i, 1)
	m.e.Goto(loop)
	m.e.Mark(end)

	m.loadObject()
	m.e.Load(res)
	m.e.PutField(sub.cacheField())
	m.e.Load(res)
	m.e.Mark(have)
	m.e.Return(true)
	m.finish(stack.KindRef)
	return nil
}

// containerFuncs read the elements of a container, by shape tag
var containerFuncs = map[interop.Shape]string{
	interop.ShapeArray:      "container.array",
	interop.ShapeCollection: "container.collection",
	interop.ShapeIterable:   "container.iterable",
	interop.ShapeIterator:   "container.iterator",
}

// compileContainer copies the elements of the container into a []any,
// dispatching on the container's shape.
func (m *methodCompiler) compileContainer(container, elts int, sub *sectionCompiler) error {
	shapes := []interop.Shape{
		interop.ShapeNull, interop.ShapeArray, interop.ShapeCollection,
		interop.ShapeIterable, interop.ShapeIterator,
	}
	targets := make([]*stack.Label, len(shapes))
	for i := range targets {
		targets[i] = m.e.NewLabel()
	}
	bad, done := m.e.NewLabel(), m.e.NewLabel()
	m.e.Load(container)
	m.e.Op(stack.Shape)
	m.e.TableSwitch(int(shapes[0]), targets, bad)
	for i, shape := range shapes {
		m.e.Mark(targets[i])
		if fn, ok := containerFuncs[shape]; ok {
			m.e.Load(container)
			m.e.Call(fn, 1)
		} else {
			m.e.Const(0)
			m.e.Op(stack.NewArray)
		}
		m.e.Goto(done)
	}
	m.e.Mark(bad)
	m.e.Throw(string(stdlib.IllegalArgument), fmt.Sprintf("The input bound to section %s is not a container.", sub.model.Name))
	m.e.Mark(done)
	m.e.Store(elts)
	return nil
}

// compileFrames applies an accessor chain to the value on the stack
func compileFrames(e *stack.Emitter, f *ir.CallFrame) {
	for _, fr := range f.Chain() {
		for _, a := range fr.Args {
			e.Const(a)
		}
		e.Input(fr.Method, len(fr.Args))
	}
}

// compileSectionOutputs exposes the instances of sub through output
// methods of this unit, in the shape each method asks for.
func (s *sectionCompiler) compileSectionOutputs(sub *sectionCompiler) {
	for _, out := range sub.model.Outputs {
		m := s.newMethod(out.Method, nil)
		m.loadObject()
		m.e.Invoke(sub.getter(), 0, true)
		if out.Shape != ir.ShapeArray {
			m.e.Call("shape."+out.Shape.String(), 1)
		}
		m.e.Return(true)
		r := m.finish(stack.KindRef)
		r.Exported = true
	}
}
