package compiler

import (
	"golang.org/x/exp/slices"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
)

// compileSwitch dispatches on the integer selector. Dense key sets use a
// table switch, sparse ones a chain of comparisons.
func (m *methodCompiler) compileSwitch(v *ir.Switch, dt ir.DataType) error {
	mark := m.alloc.Mark()
	defer m.alloc.Reset(mark)

	if err := m.compileInt(v.Selector); err != nil {
		return err
	}
	def, done := m.e.NewLabel(), m.e.NewLabel()
	labels := make([]*stack.Label, len(v.Cases))
	target := make(map[int]*stack.Label)
	var keys []int
	for i, c := range v.Cases {
		labels[i] = m.e.NewLabel()
		for _, k := range c.Keys {
			if _, dup := target[k]; !dup {
				target[k] = labels[i]
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)

	switch {
	case len(keys) == 0:
		m.e.Op(stack.Pop)
		m.e.Goto(def)
	case keys[len(keys)-1]-keys[0] < 2*len(keys)+8:
		lo := keys[0]
		table := make([]*stack.Label, keys[len(keys)-1]-lo+1)
		for i := range table {
			table[i] = def
		}
		for k, l := range target {
			table[k-lo] = l
		}
		m.e.TableSwitch(lo, table, def)
	default:
		sel := m.alloc.Alloc(stack.KindInt, "selector")
		m.e.Store(sel)
		for _, k := range keys {
			m.e.Load(sel)
			m.e.Const(k)
			m.e.Op(stack.ISub)
			m.e.Branch(stack.IfEq, target[k])
		}
		m.e.Goto(def)
	}

	var sets []map[*letEntry]bool
	branch := func(n ir.Node) error {
		m.lets.beginTracking()
		err := m.compile(n, dt)
		sets = append(sets, m.lets.endTracking())
		return err
	}
	for i, c := range v.Cases {
		m.e.Mark(labels[i])
		if err := branch(c.Value); err != nil {
			return err
		}
		m.e.Goto(done)
	}
	m.e.Mark(def)
	if err := branch(v.Default); err != nil {
		return err
	}
	m.e.Mark(done)
	for _, s := range sets {
		m.lets.revert(s, nil)
	}
	return nil
}
