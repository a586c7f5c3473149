package ir

// Walk visits n and its descendants in preorder. Fold definitions are visited
// as part of the nodes that apply them. Returning false from visit skips the
// children of that node.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	switch v := n.(type) {
	case *FoldList:
		walkFold(v.Fold, visit)
	case *FoldVectors:
		walkFold(v.Fold, visit)
	case *FoldDatabase:
		walkFold(v.Fold, visit)
	}
	for _, a := range n.Args() {
		Walk(a, visit)
	}
}

func walkFold(f *Fold, visit func(Node) bool) {
	for _, n := range f.Nodes() {
		Walk(n, visit)
	}
}

// AllCells lists every cell of the section and its sub-sections, depth first
func (s *Section) AllCells() []*Cell {
	cells := append([]*Cell(nil), s.Cells...)
	for _, sub := range s.Sections {
		cells = append(cells, sub.AllCells()...)
	}
	return cells
}

// CountReferences recomputes RefCount and Volatile for every cell from the
// formulas of the model.
func (m *Model) CountReferences() {
	cells := m.Root.AllCells()
	for _, c := range cells {
		c.RefCount = 0
	}
	for _, c := range cells {
		if c.Expr == nil {
			continue
		}
		Walk(c.Expr, func(n Node) bool {
			switch v := n.(type) {
			case *CellRef:
				if v.Cell != nil {
					v.Cell.RefCount++
				}
			case *Function:
				if v.Fn.Info().Volatile {
					c.Volatile = true
				}
			}
			return true
		})
	}
}
