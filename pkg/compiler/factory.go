package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
)

// Unit names of the generated program
const (
	FactoryUnit = "$Factory"
	RootUnit    = "$Root"
)

// outputType is the fallback implementation of output methods, if any
func (c *Compiler) outputType() *ir.OutputType {
	if c.cfg.OutputType != nil {
		return c.cfg.OutputType
	}
	return c.model.OutputType
}

// compileFactory builds the unit creating root instances. A root gets the
// factory's environment and, when output methods have defaults, a delegate
// built from the output type.
func (c *Compiler) compileFactory() (*stack.Unit, error) {
	f := newSectionCompiler(c, nil, nil, FactoryUnit)
	m := f.newMethod(stack.RoutineNewComputation, []stack.Kind{stack.KindRef})
	root := m.alloc.Alloc(stack.KindRef, "root")
	m.e.Load(1)
	m.e.Const(nil)
	m.e.NewUnit(c.root.unit.Name)
	m.e.Store(root)

	m.e.Load(root)
	m.loadEnv()
	m.e.PutField(stack.FieldEnvironment)

	if t := c.outputType(); t != nil && len(t.Defaults) > 0 {
		m.e.Load(root)
		switch {
		case t.NewWithInput != nil:
			m.e.Load(1)
			m.e.Call("delegate.newWithInput", 1)
		case t.New != nil:
			m.e.Call("delegate.new", 0)
		default:
			return nil, ConstructorMissing.New("Output type %s has default methods but no constructor.", t.Name)
		}
		m.e.PutField(stack.FieldDelegate)
	}

	m.e.Load(root)
	m.e.Return(true)
	m.finish(stack.KindRef)

	if alias := c.cfg.FactoryMethod; alias != "" && alias != stack.RoutineNewComputation {
		a := f.newMethod(alias, []stack.Kind{stack.KindRef})
		a.loadObject()
		a.e.Load(1)
		a.e.Invoke(stack.RoutineNewComputation, 1, true)
		a.e.Return(true)
		a.finish(stack.KindRef).Exported = true
	}
	return f.unit, nil
}
