package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// Functions every numeric domain implements under its own prefix
var domainFunctions = map[ir.Fn]int{
	ir.FnABS:   1,
	ir.FnINT:   1,
	ir.FnSIGN:  1,
	ir.FnMOD:   2,
	ir.FnPOWER: 2,
}

// Functions only the double library implements
var doubleFunctions = map[ir.Fn]int{
	ir.FnSQRT:  1,
	ir.FnEXP:   1,
	ir.FnLN:    1,
	ir.FnLOG10: 1,
	ir.FnPI:    0,
}

var roundingFunctions = map[ir.Fn]bool{
	ir.FnROUND:     true,
	ir.FnROUNDUP:   true,
	ir.FnROUNDDOWN: true,
	ir.FnTRUNC:     true,
}

func arity(v *ir.Function, min, max int) error {
	n := len(v.Operands)
	if n >= min && n <= max {
		return nil
	}
	switch {
	case min == max:
		return UnsupportedExpression.New("%s must have exactly %d argument(s).", v.Fn, min)
	case n < min:
		return UnsupportedExpression.New("%s must have at least %d argument(s).", v.Fn, min)
	}
	return UnsupportedExpression.New("%s must have at most %d argument(s).", v.Fn, max)
}

func (m *methodCompiler) compileFunction(v *ir.Function, dt ir.DataType) error {
	switch v.Fn {
	case ir.FnIF:
		return m.compileIf(v, dt)
	case ir.FnNOT:
		if err := arity(v, 1, 1); err != nil {
			return UnsupportedExpression.New("NOT must have exactly one argument.")
		}
		return m.compileTestValue(v, dt)
	case ir.FnAND, ir.FnOR:
		return m.compileTestValue(v, dt)
	case ir.FnINDEX:
		return m.compileIndex(v, dt)
	case ir.FnMATCH:
		if err := m.compileMatch(v); err != nil {
			return err
		}
		return m.fromInt(dt)
	case ir.FnISERROR, ir.FnISERR, ir.FnISNA:
		return m.compileIsError(v, dt)
	case ir.FnNA:
		m.e.Throw(string(stdlib.NotAvailable), stdlib.NotAvailable.Code())
		return nil
	case ir.FnERROR:
		return m.compileError(v)
	case ir.FnNOW, ir.FnTODAY:
		return m.compileNow(v, dt)
	}

	if argc, ok := domainFunctions[v.Fn]; ok {
		if err := arity(v, argc, argc); err != nil {
			return err
		}
		if err := m.compileAll(v.Operands, ir.Numeric); err != nil {
			return err
		}
		m.e.Call(m.num().prefix()+"."+v.Fn.String(), argc)
		return m.convert(ir.Numeric, dt)
	}
	if argc, ok := doubleFunctions[v.Fn]; ok {
		if err := arity(v, argc, argc); err != nil {
			return err
		}
		for _, arg := range v.Operands {
			if err := m.compileF64(arg); err != nil {
				return err
			}
		}
		m.e.Call("f64."+v.Fn.String(), argc)
		m.num().fromF64(m.e)
		return m.convert(ir.Numeric, dt)
	}
	if roundingFunctions[v.Fn] {
		return m.compileRounding(v, dt)
	}
	return m.compileTextOrDate(v, dt)
}

func (m *methodCompiler) compileAll(args []ir.Node, dt ir.DataType) error {
	for _, arg := range args {
		if err := m.compile(arg, dt); err != nil {
			return err
		}
	}
	return nil
}

// compileOptionalInt pushes the int value of the i-th argument, or def when absent
func (m *methodCompiler) compileOptionalInt(v *ir.Function, i, def int) error {
	if i < len(v.Operands) {
		return m.compileInt(v.Operands[i])
	}
	m.e.Const(def)
	return nil
}

func (m *methodCompiler) compileRounding(v *ir.Function, dt ir.DataType) error {
	min := 2
	if v.Fn == ir.FnTRUNC {
		min = 1
	}
	if err := arity(v, min, 2); err != nil {
		return err
	}
	if err := m.compile(v.Operands[0], ir.Numeric); err != nil {
		return err
	}
	if err := m.compileOptionalInt(v, 1, 0); err != nil {
		return err
	}
	m.e.Call(m.num().prefix()+"."+v.Fn.String(), 2)
	return m.convert(ir.Numeric, dt)
}

func (m *methodCompiler) compileTextOrDate(v *ir.Function, dt ir.DataType) error {
	result := ir.String
	switch v.Fn {
	case ir.FnLEN:
		if err := arity(v, 1, 1); err != nil {
			return err
		}
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}
		m.e.Call("str.LEN", 1)
		return m.fromInt(dt)

	case ir.FnLOWER, ir.FnUPPER:
		if err := arity(v, 1, 1); err != nil {
			return err
		}
		m.loadEnv()
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}
		m.e.Call("str."+v.Fn.String(), 2)

	case ir.FnTRIM:
		if err := arity(v, 1, 1); err != nil {
			return err
		}
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}
		m.e.Call("str.TRIM", 1)

	case ir.FnLEFT, ir.FnRIGHT:
		if err := arity(v, 1, 2); err != nil {
			return err
		}
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}
		if err := m.compileOptionalInt(v, 1, 1); err != nil {
			return err
		}
		m.e.Call("str."+v.Fn.String(), 2)

	case ir.FnMID:
		if err := arity(v, 3, 3); err != nil {
			return err
		}
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}
		if err := m.compileInt(v.Operands[1]); err != nil {
			return err
		}
		if err := m.compileInt(v.Operands[2]); err != nil {
			return err
		}
		m.e.Call("str.MID", 3)

	case ir.FnCONCATENATE:
		if len(v.Operands) == 0 {
			m.e.Const("")
			break
		}
		if err := m.compileAll(v.Operands, ir.String); err != nil {
			return err
		}
		m.e.Call("str.concat", len(v.Operands))

	case ir.FnEXACT:
		if err := arity(v, 2, 2); err != nil {
			return err
		}
		if err := m.compileAll(v.Operands, ir.String); err != nil {
			return err
		}
		m.e.Call("str.EXACT", 2)
		return m.fromInt(dt)

	case ir.FnFIND, ir.FnSEARCH:
		if err := arity(v, 2, 3); err != nil {
			return err
		}
		if v.Fn == ir.FnSEARCH {
			m.loadEnv()
		}
		if err := m.compileAll(v.Operands[:2], ir.String); err != nil {
			return err
		}
		if err := m.compileOptionalInt(v, 2, 1); err != nil {
			return err
		}
		if v.Fn == ir.FnSEARCH {
			m.e.Call("str.SEARCH", 4)
		} else {
			m.e.Call("str.FIND", 3)
		}
		return m.fromInt(dt)

	case ir.FnSUBSTITUTE:
		if err := arity(v, 3, 4); err != nil {
			return err
		}
		if err := m.compileAll(v.Operands[:3], ir.String); err != nil {
			return err
		}
		if len(v.Operands) == 4 {
			if err := m.compileInt(v.Operands[3]); err != nil {
				return err
			}
		}
		m.e.Call("str.SUBSTITUTE", len(v.Operands))

	case ir.FnREPT:
		if err := arity(v, 2, 2); err != nil {
			return err
		}
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}
		if err := m.compileInt(v.Operands[1]); err != nil {
			return err
		}
		m.e.Call("str.REPT", 2)

	case ir.FnVALUE:
		if err := arity(v, 1, 1); err != nil {
			return err
		}
		if err := m.compile(v.Operands[0], ir.String); err != nil {
			return err
		}

	case ir.FnTEXT:
		if err := arity(v, 2, 2); err != nil {
			return err
		}
		m.loadEnv()
		if err := m.compileF64(v.Operands[0]); err != nil {
			return err
		}
		if err := m.compile(v.Operands[1], ir.String); err != nil {
			return err
		}
		m.e.Call("str.TEXT", 3)

	case ir.FnN:
		if err := arity(v, 1, 1); err != nil {
			return err
		}
		result = ir.Numeric
		if v.Operands[0].Type() == ir.String {
			m.num().zero(m.e)
			break
		}
		if err := m.compile(v.Operands[0], ir.Numeric); err != nil {
			return err
		}

	case ir.FnDATE:
		if err := arity(v, 3, 3); err != nil {
			return err
		}
		result = ir.Numeric
		m.loadEnv()
		for _, arg := range v.Operands {
			if err := m.compileF64(arg); err != nil {
				return err
			}
		}
		m.e.Call("f64.DATE", 4)
		m.num().fromF64(m.e)

	case ir.FnYEAR, ir.FnMONTH, ir.FnDAY:
		if err := arity(v, 1, 1); err != nil {
			return err
		}
		result = ir.Numeric
		m.loadEnv()
		if err := m.compileF64(v.Operands[0]); err != nil {
			return err
		}
		m.e.Call("f64."+v.Fn.String(), 2)
		m.num().fromF64(m.e)

	default:
		return UnsupportedExpression.New("Function %s is not supported.", v.Fn)
	}
	return m.convert(result, dt)
}

// compileError raises a spreadsheet error. A constant code becomes a
// static fault.
func (m *methodCompiler) compileError(v *ir.Function) error {
	if err := arity(v, 1, 1); err != nil {
		return err
	}
	if c, ok := v.Operands[0].(*ir.Const); ok {
		if code, ok := c.Value.(string); ok {
			m.e.Throw(string(stdlib.KindOfCode(code)), code)
			return nil
		}
	}
	if err := m.compile(v.Operands[0], ir.String); err != nil {
		return err
	}
	m.e.Call("error.raise", 1)
	return nil
}

// compileNow reads the computation time, fixed on first use for the whole
// computation tree.
func (m *methodCompiler) compileNow(v *ir.Function, dt ir.DataType) error {
	if err := arity(v, 0, 0); err != nil {
		return err
	}
	mark := m.alloc.Mark()
	defer m.alloc.Reset(mark)
	root := m.alloc.Alloc(stack.KindRef, "root")
	t := m.alloc.Alloc(stack.KindRef, "time")
	have := m.e.NewLabel()

	m.loadObject()
	m.e.GetField(stack.FieldRoot)
	m.e.Store(root)
	m.e.Load(root)
	m.e.GetField(stack.FieldComputationTime)
	m.e.Store(t)
	m.e.Load(t)
	m.e.Branch(stack.IfNonNull, have)
	m.e.Load(root)
	m.loadEnv()
	m.e.Call("env.now", 1)
	m.e.PutField(stack.FieldComputationTime)
	m.e.Load(root)
	m.e.GetField(stack.FieldComputationTime)
	m.e.Store(t)
	m.e.Mark(have)

	m.loadEnv()
	m.e.Load(t)
	m.e.Call("f64."+v.Fn.String(), 2)
	m.num().fromF64(m.e)
	return m.convert(ir.Numeric, dt)
}

// isErrorKinds are the faults each error test catches; nil catches all
func isErrorKinds(fn ir.Fn) []string {
	switch fn {
	case ir.FnISNA:
		return []string{string(stdlib.NotAvailable)}
	case ir.FnISERR:
		var kinds []string
		for _, k := range []stdlib.FaultKind{
			stdlib.Value, stdlib.DivZero, stdlib.Num, stdlib.Ref, stdlib.Name,
			stdlib.IndexOutOfRange, stdlib.IllegalArgument, stdlib.Arithmetic,
		} {
			kinds = append(kinds, string(k))
		}
		return kinds
	}
	return nil
}

// compileIsError evaluates the argument in a helper, since a fault handler
// discards the operand stack.
func (m *methodCompiler) compileIsError(v *ir.Function, dt ir.DataType) error {
	if err := arity(v, 1, 1); err != nil {
		return err
	}
	arg := v.Operands[0]
	cl := m.lazyClosureOf(arg)
	h := m.helper("iserror", cl)
	s := h.num()

	yes, no := h.e.NewLabel(), h.e.NewLabel()
	start := h.e.Here()
	at := domainOf(arg.Type())
	if err := h.compile(arg, at); err != nil {
		return err
	}
	if _, double := s.(doubleStrategy); double && at == ir.Numeric && v.Fn != ir.FnISNA {
		h.e.Call("f64.isError", 1)
		end := h.e.Here()
		h.e.Branch(stack.IfTrue, yes)
		h.e.Handle(start, end, yes, isErrorKinds(v.Fn)...)
	} else {
		h.e.Op(stack.Pop)
		end := h.e.Here()
		h.e.Handle(start, end, yes, isErrorKinds(v.Fn)...)
	}
	h.e.Goto(no)

	h.e.Mark(yes)
	if err := s.constant(h.e, true); err != nil {
		return err
	}
	h.e.Return(true)
	h.e.Mark(no)
	if err := s.constant(h.e, false); err != nil {
		return err
	}
	h.e.Return(true)

	r := h.finish(s.kind())
	if err := m.callHelper(r, cl); err != nil {
		return err
	}
	return m.convert(ir.Numeric, dt)
}
