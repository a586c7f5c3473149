package ir

import (
	"fmt"
	"strings"
)

func (n *Const) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(v)
	}
}

func (n *MinValue) String() string { return "MIN_VALUE" }
func (n *MaxValue) String() string { return "MAX_VALUE" }

func (n *CellRef) String() string {
	if n.Cell == nil {
		return "#REF!"
	}
	return n.Cell.String()
}

func (n *ParentRef) String() string { return "parent(" + n.Arg.String() + ")" }

func (n *SubSectionRef) String() string {
	return n.Section.Name + "{" + joinNodes(n.Elements) + "}"
}

func (n *ArrayRef) String() string {
	if n.Desc.Name != "" {
		return n.Desc.Name
	}
	return "{" + joinNodes(n.Elements) + "}"
}

func (n *Operator) String() string {
	switch len(n.Operands) {
	case 0:
		return n.Op.String()
	case 1:
		if n.Op == OpPercent {
			return n.Operands[0].String() + "%"
		}
		return n.Op.String() + n.Operands[0].String()
	}
	parts := make([]string, len(n.Operands))
	for i, a := range n.Operands {
		parts[i] = a.String()
	}
	return "(" + strings.Join(parts, " "+n.Op.String()+" ") + ")"
}

func (n *Function) String() string {
	return n.Fn.String() + "(" + joinNodes(n.Operands) + ")"
}

func (n *Switch) String() string {
	var b strings.Builder
	b.WriteString("SWITCH(")
	b.WriteString(n.Selector.String())
	for _, c := range n.Cases {
		fmt.Fprintf(&b, "; %v: %s", c.Keys, c.Value)
	}
	if n.Default != nil {
		fmt.Fprintf(&b, "; default: %s", n.Default)
	}
	b.WriteString(")")
	return b.String()
}

func (n *Count) String() string {
	names := make([]string, len(n.Sections))
	for i, s := range n.Sections {
		names[i] = s.Name
	}
	return fmt.Sprintf("COUNT(%d; %s)", n.StaticCount, strings.Join(names, ", "))
}

func (n *Let) String() string {
	return fmt.Sprintf("(let %s = %s in %s)", n.Name, n.Value, n.Body)
}

func (n *LetVar) String() string { return n.Name }

func (n *FoldList) String() string {
	return "fold(" + n.Fold.describe() + ")(" + joinNodes(n.Elements) + ")"
}

func (n *FoldVectors) String() string {
	return "fold_vectors(" + n.Fold.describe() + ")(" + joinNodes(n.Vectors) + ")"
}

func (n *FoldDatabase) String() string {
	return fmt.Sprintf("fold_db(%s)(%s; %v; %s)", n.Fold.describe(), n.Table, n.ColNames, n.Filter)
}

func (n *Logging) String() string { return n.Arg.String() }

func (f *Fold) describe() string {
	var b strings.Builder
	for i, name := range f.AccuNames {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", name, f.Inits[i])
	}
	if f.IsIndexed() {
		fmt.Fprintf(&b, "; index %s", f.IndexName)
	}
	fmt.Fprintf(&b, "; %s ->", strings.Join(f.EltNames, ", "))
	for i, step := range f.Steps {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, " %s", step)
	}
	if f.IsCounted() {
		fmt.Fprintf(&b, "; count %s", f.CountName)
	}
	if f.Merge != nil {
		fmt.Fprintf(&b, "; merge %s", f.Merge)
	}
	if f.WhenEmpty != nil {
		fmt.Fprintf(&b, "; empty %s", f.WhenEmpty)
	}
	return b.String()
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		if n == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
