package stack

import (
	"fmt"
	"strings"
)

// Effect returns how many values the instruction pops and pushes
func (in Inst) Effect() (pops, pushes int) {
	switch in.Op {
	case Nop, Goto, IInc, Throw:
		return 0, 0
	case Const, Load:
		return 0, 1
	case Store, Pop, IfEq, IfNe, IfLt, IfGe, IfGt, IfLe, IfTrue, IfFalse, IfNull, IfNonNull, TableSwitch:
		return 1, 0
	case Dup:
		return 1, 2
	case Swap:
		return 2, 2
	case IAdd, ISub, IMul, ICmp, FAdd, FSub, FMul, FDiv, FCmpL, FCmpG, LAdd, LSub, LMul, LCmp:
		return 2, 1
	case INeg, FNeg, LNeg, I2F, I2L, L2I, L2F, F2I, F2L:
		return 1, 1
	case GetField, NewArray, ALength, Shape:
		return 1, 1
	case NewUnit, ALoad:
		return 2, 1
	case PutField:
		return 2, 0
	case AStore:
		return 3, 0
	case Invoke, InvokeDelegate:
		return in.A + 1, in.B
	case Call:
		return in.A, 1
	case Input:
		return in.A + 1, 1
	case Return:
		return in.A, 0
	}
	return 0, 0
}

func (in Inst) String() string {
	switch in.Op {
	case Const:
		return fmt.Sprintf("const %s", formatValue(in.Value))
	case Load, Store:
		return fmt.Sprintf("%s %d", in.Op, in.A)
	case IInc:
		return fmt.Sprintf("iinc %d %d", in.A, in.B)
	case TableSwitch:
		targets := make([]string, len(in.Targets))
		for i, t := range in.Targets {
			targets[i] = labelName(t)
		}
		return fmt.Sprintf("tableswitch %d [%s] default %s", in.A, strings.Join(targets, " "), labelName(in.Label))
	case GetField, PutField, NewUnit:
		return fmt.Sprintf("%s %s", in.Op, in.S)
	case Invoke, InvokeDelegate:
		return fmt.Sprintf("%s %s/%d", in.Op, in.S, in.A)
	case Call, Input:
		return fmt.Sprintf("%s %s/%d", in.Op, in.S, in.A)
	case Throw:
		return fmt.Sprintf("throw %s %q", in.S, in.Value)
	case Return:
		if in.A == 1 {
			return "return value"
		}
		return "return"
	}
	if in.Op.IsBranch() {
		return fmt.Sprintf("%s %s", in.Op, labelName(in.Label))
	}
	return in.Op.String()
}

func labelName(l *Label) string {
	if l == nil {
		return "L?"
	}
	return fmt.Sprintf("L%d", l.ID)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

func (r *Routine) String() string {
	var sb strings.Builder
	params := make([]string, len(r.Params))
	for i, p := range r.Params {
		params[i] = p.String()
	}
	fmt.Fprintf(&sb, "%s(%s) %s locals=%d\n", r.Name, strings.Join(params, ", "), r.Result, r.MaxLocals)

	at := make(map[int][]*Label)
	for _, l := range r.Labels {
		if l.Marked() {
			at[l.Pos] = append(at[l.Pos], l)
		}
	}
	for pc, in := range r.Code {
		for _, l := range at[pc] {
			fmt.Fprintf(&sb, "%s:\n", labelName(l))
		}
		fmt.Fprintf(&sb, "\t%3d  %s\n", pc, in)
	}
	for _, h := range r.Handlers {
		fmt.Fprintf(&sb, "\thandler %s..%s -> %s %v\n", labelName(h.Start), labelName(h.End), labelName(h.Target), h.Kinds)
	}
	return sb.String()
}

func (u *Unit) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "unit %s", u.Name)
	if u.Parent != "" {
		fmt.Fprintf(&sb, " in %s", u.Parent)
	}
	sb.WriteString("\n")
	for _, f := range u.Fields {
		fmt.Fprintf(&sb, "  field %s %s\n", f.Name, f.Kind)
	}
	for _, r := range u.Routines {
		sb.WriteString("\n")
		if r.Exported {
			sb.WriteString("export ")
		}
		sb.WriteString(r.String())
	}
	return sb.String()
}

func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; program numeric=%s root=%s\n", p.Numeric, p.Root)
	for _, u := range p.Units {
		sb.WriteString("\n")
		sb.WriteString(u.String())
	}
	return sb.String()
}
