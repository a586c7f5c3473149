package compiler

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/interop"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// outputCase is one cell bound to an output method
type outputCase struct {
	cell    *ir.Cell
	binding *ir.OutputBinding
}

// compileOutputs builds the exported routines of the section's output
// methods. Bindings that share a method name dispatch on their argument
// values.
func (s *sectionCompiler) compileOutputs() error {
	methods := make(map[string][]outputCase)
	var names []string
	for _, c := range s.model.Cells {
		for _, b := range c.Outputs {
			if _, ok := methods[b.Method]; !ok {
				names = append(names, b.Method)
			}
			methods[b.Method] = append(methods[b.Method], outputCase{c, b})
		}
	}
	slices.Sort(names)
	for _, name := range names {
		cases := methods[name]
		var err error
		if len(cases) == 1 && len(cases[0].binding.Args) == 0 {
			err = s.compileOutput(name, cases[0], true)
		} else {
			err = s.compileDispatch(name, cases)
		}
		if err != nil {
			return inCell(err, cases[0].cell)
		}
	}
	return nil
}

// compileOutput builds the routine returning the cell value converted to
// the bound result type.
func (s *sectionCompiler) compileOutput(name string, oc outputCase, exported bool) error {
	m := s.newMethod(name, nil)
	m.loadObject()
	m.e.Invoke(s.getters[oc.cell], 0, true)
	if t := oc.binding.Result; t != nil {
		m.loadEnv()
		m.e.Op(stack.Swap)
		m.e.Const(t)
		m.e.Const(oc.binding.Scale)
		m.e.Call("ext.to", 4)
	}
	m.e.Return(true)
	r := m.finish(stack.KindRef)
	r.Exported = exported
	return nil
}

// paramKind is how output dispatch compares an argument value
func paramKind(v any) stack.Kind {
	switch v.(type) {
	case int64:
		return stack.KindI64
	case float64:
		return stack.KindF64
	}
	return stack.KindRef
}

// compileDispatch builds an output method that selects the bound cell by
// comparing its arguments with the values of each binding in turn.
func (s *sectionCompiler) compileDispatch(name string, cases []outputCase) error {
	argc := len(cases[0].binding.Args)
	keys := make([][]any, len(cases))
	for i, oc := range cases {
		if len(oc.binding.Args) != argc {
			return UnsupportedExpression.New("Output %s is bound with %d and %d arguments.", name, argc, len(oc.binding.Args))
		}
		keys[i] = interop.Normalize(oc.binding.Args)
	}
	params := make([]stack.Kind, argc)
	for i := range params {
		params[i] = paramKind(keys[0][i])
	}

	m := s.newMethod(name, params)
	for i, oc := range cases {
		target := fmt.Sprintf("%s__%d", name, i)
		if err := s.compileOutput(target, oc, false); err != nil {
			return err
		}
		next := m.e.NewLabel()
		for p, key := range keys[i] {
			m.e.Load(p + 1)
			m.e.Const(key)
			switch {
			case params[p] == stack.KindI64 && paramKind(key) == stack.KindI64:
				m.e.Op(stack.LCmp)
				m.e.Branch(stack.IfNe, next)
			case params[p] == stack.KindF64 && paramKind(key) == stack.KindF64:
				m.e.Op(stack.FCmpL)
				m.e.Branch(stack.IfNe, next)
			default:
				m.e.Call("obj.equals", 2)
				m.e.Branch(stack.IfFalse, next)
			}
		}
		m.loadObject()
		m.e.Invoke(target, 0, true)
		m.e.Return(true)
		m.e.Mark(next)
	}

	if s.c.outputType().HasDefault(name) {
		m.loadObject()
		for p := range params {
			m.e.Load(p + 1)
		}
		m.e.InvokeDelegate(name, argc, true)
		m.e.Return(true)
	} else {
		m.e.Throw(string(stdlib.IllegalArgument), fmt.Sprintf("Given argument values not bound in '%s'.", name))
	}
	r := m.finish(stack.KindRef)
	r.Exported = true
	return nil
}
