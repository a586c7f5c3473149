package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/stdlib"
)

// foldItem is one element of a flattened fold operand. Repeating elements
// keep their sub-section reference and are expanded per instance.
type foldItem struct {
	node  ir.Node
	scope scopeFunc
	sub   *ir.SubSectionRef
}

func (it foldItem) dtype() ir.DataType {
	if it.node == nil {
		return ir.Null
	}
	return it.node.Type()
}

func (it foldItem) compile(m *methodCompiler, dt ir.DataType) error {
	return it.scope(func() error { return m.compile(it.node, dt) })
}

func (it foldItem) value(m *methodCompiler) foldValue {
	return foldValue{dtype: it.dtype(), load: func(dt ir.DataType) error { return it.compile(m, dt) }}
}

// foldValue is one element value handed to the fold steps
type foldValue struct {
	dtype ir.DataType
	load  func(dt ir.DataType) error
}

// aggregateOf follows substituted lets from n to the array or sub-section
// vector they stand for. Other nodes come back unchanged.
func (m *methodCompiler) aggregateOf(n ir.Node, scope scopeFunc) (ir.Node, scopeFunc, error) {
	v, ok := n.(*ir.LetVar)
	if !ok {
		return n, scope, nil
	}
	var (
		value ir.Node
		inner scopeFunc
	)
	err := scope(func() error {
		idx, e := m.lets.lookup(v.Name, m.lets.mark())
		if e == nil {
			return NameNotFound.New("The variable %s is not bound in this context.", v.Name)
		}
		if e.state == letSubst {
			value = e.value
			inner = func(fn func() error) error {
				return scope(func() error { return m.inBindingScope(idx, e, fn) })
			}
		}
		return nil
	})
	if err != nil || value == nil {
		return n, scope, err
	}
	r, rs, err := m.aggregateOf(value, inner)
	if err != nil {
		return nil, nil, err
	}
	switch r.(type) {
	case *ir.ArrayRef, *ir.SubSectionRef:
		return r, rs, nil
	}
	return n, scope, nil
}

// flatten expands arrays into their elements, in order
func (m *methodCompiler) flatten(nodes []ir.Node, scope scopeFunc) ([]foldItem, error) {
	var items []foldItem
	for _, n := range nodes {
		r, s, err := m.aggregateOf(n, scope)
		if err != nil {
			return nil, err
		}
		switch v := r.(type) {
		case *ir.ArrayRef:
			inner, err := m.flatten(v.Elements, s)
			if err != nil {
				return nil, err
			}
			items = append(items, inner...)
		case *ir.SubSectionRef:
			items = append(items, foldItem{node: v, scope: s, sub: v})
		default:
			items = append(items, foldItem{node: r, scope: s})
		}
	}
	return items, nil
}

func repeats(items []foldItem) bool {
	for _, it := range items {
		if it.sub != nil {
			return true
		}
	}
	return false
}

func hasStatic(items []foldItem) bool {
	for _, it := range items {
		if it.sub == nil {
			return true
		}
	}
	return false
}

// contextOf is the object in context inside scope
func (m *methodCompiler) contextOf(scope scopeFunc) (obj int, ctx *sectionCompiler) {
	_ = scope(func() error {
		obj, ctx = m.obj, m.ctx
		return nil
	})
	return obj, ctx
}

func parallelMismatch(a, b foldItem) error {
	return ParallelVectorsSpanDifferentSubSections.New(
		"Cannot aggregate parallel vectors crossing subsections differently at %s and %s", a.node, b.node)
}

// eachInstance emits a loop over the instances of the sub-section the items
// refer to. body compiles once, with one scope per item that has the
// current instance in context.
func (m *methodCompiler) eachInstance(items []foldItem, body func(scopes []scopeFunc) error) error {
	first := items[0]
	obj, ctx := m.contextOf(first.scope)
	for _, it := range items[1:] {
		if it.sub == nil || it.sub.Section != first.sub.Section {
			return parallelMismatch(first, it)
		}
		if o, c := m.contextOf(it.scope); o != obj || c != ctx {
			return parallelMismatch(first, it)
		}
	}
	sub, err := ctx.subSection(first.sub.Section)
	if err != nil {
		return err
	}

	mark := m.alloc.Mark()
	defer m.alloc.Reset(mark)
	arr := m.alloc.Alloc(stack.KindRef, "instances")
	i := m.alloc.Alloc(stack.KindInt, "i")
	elt := m.alloc.Alloc(stack.KindRef, "instance")

	m.e.Load(obj)
	m.e.Invoke(sub.getter(), 0, true)
	m.e.Store(arr)
	m.e.Const(0)
	m.e.Store(i)
	loop, end := m.e.Here(), m.e.NewLabel()
	m.e.Load(i)
	m.e.Load(arr)
	m.e.Op(stack.ALength)
	m.e.Op(stack.ISub)
	m.e.Branch(stack.IfGe, end)
	m.e.Load(arr)
	m.e.Load(i)
	m.e.Op(stack.ALoad)
	m.e.Store(elt)

	scopes := make([]scopeFunc, len(items))
	for k, it := range items {
		outer := it.scope
		scopes[k] = func(fn func() error) error {
			return outer(func() error { return m.withContext(elt, sub, fn) })
		}
	}
	m.lets.beginTracking()
	err = body(scopes)
	m.lets.revert(m.lets.endTracking(), nil)
	if err != nil {
		return err
	}

	m.e.Inc(i, 1)
	m.e.Goto(loop)
	m.e.Mark(end)
	return nil
}

// scan visits the static positions of parallel item lists in order,
// looping over section instances where the lists repeat.
func (m *methodCompiler) scan(lists [][]foldItem, visit func(items []foldItem) error) error {
	n := len(lists[0])
	for _, l := range lists[1:] {
		if len(l) != n {
			return UnsupportedExpression.New("Parallel vectors must have the same number of elements, not %d and %d.", n, len(l))
		}
	}
	for j := 0; j < n; j++ {
		items := make([]foldItem, len(lists))
		for k := range lists {
			items[k] = lists[k][j]
		}
		if items[0].sub == nil {
			for _, it := range items[1:] {
				if it.sub != nil {
					return parallelMismatch(items[0], it)
				}
			}
			if err := visit(items); err != nil {
				return err
			}
			continue
		}
		err := m.eachInstance(items, func(scopes []scopeFunc) error {
			inner := make([][]foldItem, len(items))
			for k, it := range items {
				var err error
				if inner[k], err = m.flatten(it.sub.Elements, scopes[k]); err != nil {
					return err
				}
			}
			return m.scan(inner, visit)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// scanRows groups the items of a table into rows of width values. A
// repeating element contributes one row per instance.
func (m *methodCompiler) scanRows(items []foldItem, width int, visit func(row []foldItem) error) error {
	var row []foldItem
	for _, it := range items {
		if it.sub == nil {
			row = append(row, it)
			if len(row) == width {
				if err := visit(row); err != nil {
					return err
				}
				row = nil
			}
			continue
		}
		if len(row) > 0 {
			return UnsupportedExpression.New("A table row cannot continue into the repeating section %s.", it.sub.Section.Name)
		}
		err := m.eachInstance([]foldItem{it}, func(scopes []scopeFunc) error {
			cols, err := m.flatten(it.sub.Elements, scopes[0])
			if err != nil {
				return err
			}
			return m.scanRows(cols, width, visit)
		})
		if err != nil {
			return err
		}
	}
	if len(row) > 0 {
		return UnsupportedExpression.New("The table ends in a row of %d instead of %d columns.", len(row), width)
	}
	return nil
}

// folder emits the accumulation of one fold into the method compiling it.
// The index counts folded elements; steps see it already incremented.
type folder struct {
	m     *methodCompiler
	f     *ir.Fold
	accs  []int
	types []ir.DataType
	idx   int
	mark  int
}

// newFolder initializes the accumulators, the first one from seed when
// given, and binds their names.
func (m *methodCompiler) newFolder(f *ir.Fold, seed *foldItem, mayBeEmpty bool) (*folder, error) {
	if len(f.Inits) != f.AccuCount() || len(f.Steps) != f.AccuCount() {
		return nil, InternalError.New("Fold has %d accumulators but %d initial values and %d steps.",
			f.AccuCount(), len(f.Inits), len(f.Steps))
	}
	fo := &folder{m: m, f: f, idx: -1, mark: m.lets.mark()}
	for i, init := range f.Inits {
		t := domainOf(init.Type())
		var err error
		if i == 0 && seed != nil {
			err = seed.compile(m, t)
		} else {
			err = m.compile(init, t)
		}
		if err != nil {
			return nil, err
		}
		slot := m.alloc.Alloc(m.kindOf(t), f.AccuNames[i])
		m.e.Store(slot)
		fo.accs = append(fo.accs, slot)
		fo.types = append(fo.types, t)
	}

	if f.IsIndexed() || f.IsCounted() || (f.IsSpecialWhenEmpty() && mayBeEmpty) {
		start := f.PartiallyFolded
		if seed != nil {
			start++
		}
		fo.idx = m.alloc.Alloc(stack.KindInt, "index")
		m.e.Const(start)
		m.e.Store(fo.idx)
	}

	for i, name := range f.AccuNames {
		m.bind(m.lets.local(name, fo.accs[i], m.kindOf(fo.types[i]), fo.types[i]))
	}
	if f.IsIndexed() {
		m.bind(m.lets.counter(f.IndexName, fo.idx))
	}
	return fo, nil
}

// step folds one element. Element values compile against the bindings
// outside the fold.
func (fo *folder) step(values []foldValue) error {
	m, f := fo.m, fo.f
	if len(values) != f.EltCount() {
		return InternalError.New("Fold binds %d elements but got %d values.", f.EltCount(), len(values))
	}
	lets, slots := m.lets.mark(), m.alloc.Mark()
	defer func() {
		m.lets.release(lets)
		m.alloc.Reset(slots)
	}()

	used := make(map[string]bool)
	for _, s := range f.Steps {
		for _, name := range freeVars(s) {
			used[name] = true
		}
	}
	type bound struct {
		name string
		slot int
		t    ir.DataType
	}
	var elts []bound
	restore := m.lets.hideFrom(fo.mark)
	for i, name := range f.EltNames {
		if !used[name] {
			continue
		}
		t := domainOf(values[i].dtype)
		if err := values[i].load(t); err != nil {
			restore()
			return err
		}
		slot := m.alloc.Alloc(m.kindOf(t), name)
		m.e.Store(slot)
		elts = append(elts, bound{name, slot, t})
	}
	restore()
	for _, b := range elts {
		m.bind(m.lets.local(b.name, b.slot, m.kindOf(b.t), b.t))
	}

	if fo.idx >= 0 {
		m.e.Inc(fo.idx, 1)
	}
	for i, s := range f.Steps {
		if err := m.compile(s, fo.types[i]); err != nil {
			return err
		}
	}
	for i := len(f.Steps) - 1; i >= 0; i-- {
		m.e.Store(fo.accs[i])
	}
	return nil
}

// merge leaves the result in domain dt on the stack and drops the fold's
// bindings.
func (fo *folder) merge(dt ir.DataType) error {
	m, f := fo.m, fo.f
	defer m.lets.release(fo.mark)
	done := m.e.NewLabel()

	var empty map[*letEntry]bool
	if f.IsSpecialWhenEmpty() && fo.idx >= 0 {
		notEmpty := m.e.NewLabel()
		m.e.Load(fo.idx)
		m.e.Branch(stack.IfGt, notEmpty)
		m.lets.beginTracking()
		restore := m.lets.hideFrom(fo.mark)
		err := m.compile(f.WhenEmpty, dt)
		restore()
		empty = m.lets.endTracking()
		if err != nil {
			return err
		}
		m.e.Goto(done)
		m.e.Mark(notEmpty)
	}

	m.lets.beginTracking()
	var err error
	if f.IsMergedExplicitly() {
		if f.IsCounted() {
			m.bind(m.lets.counter(f.CountName, fo.idx))
		}
		err = m.compile(f.Merge, dt)
	} else {
		m.e.Load(fo.accs[0])
		err = m.convert(fo.types[0], dt)
	}
	merged := m.lets.endTracking()
	if err != nil {
		return err
	}
	m.e.Mark(done)
	if empty == nil {
		for e := range merged {
			m.lets.trackSet(e)
		}
		return nil
	}
	m.lets.revert(empty, merged)
	m.lets.revert(merged, empty)
	return nil
}

// compileFoldList folds a list of values, arrays and sub-section vectors.
// Single-accumulator folds over static values are chained inline; all
// others run in a helper routine.
func (m *methodCompiler) compileFoldList(v *ir.FoldList, dt ir.DataType) error {
	f := v.Fold
	if f.EltCount() != 1 {
		return UnsupportedExpression.New("A fold over a list binds exactly one element, not %d.", f.EltCount())
	}
	items, err := m.flatten(v.Elements, directScope)
	if err != nil {
		return err
	}
	if f.IsChainable() && !repeats(items) && !m.compiler().extractFolds {
		lets, slots := m.lets.mark(), m.alloc.Mark()
		defer func() {
			m.lets.release(lets)
			m.alloc.Reset(slots)
		}()
		return m.foldList(f, items, dt)
	}

	cl := m.closureOf(v)
	h := m.helper("fold", cl)
	items, err = h.flatten(v.Elements, directScope)
	if err != nil {
		return err
	}
	if err := h.foldList(f, items, dt); err != nil {
		return err
	}
	h.e.Return(true)
	return m.callHelper(h.finish(h.kindOf(dt)), cl)
}

// foldList folds flattened list items into dt. Reducing folds take their
// first static element as the initial accumulator; when the fold may also
// rearrange, any static element serves.
func (m *methodCompiler) foldList(f *ir.Fold, items []foldItem, dt ir.DataType) error {
	if len(items) == 0 && f.IsSpecialWhenEmpty() && f.PartiallyFolded == 0 {
		return m.compile(f.WhenEmpty, dt)
	}
	var seed *foldItem
	if f.MayReduce && f.AccuCount() == 1 && !f.IsIndexed() && f.PartiallyFolded == 0 {
		for i, it := range items {
			if it.sub == nil {
				s := it
				seed = &s
				items = append(items[:i:i], items[i+1:]...)
				break
			}
			if !f.MayReduceAndRearrange() {
				break
			}
		}
	}
	mayBeEmpty := seed == nil && !hasStatic(items) && f.PartiallyFolded == 0
	fo, err := m.newFolder(f, seed, mayBeEmpty)
	if err != nil {
		return err
	}
	err = m.scan([][]foldItem{items}, func(its []foldItem) error {
		return fo.step([]foldValue{its[0].value(m)})
	})
	if err != nil {
		return err
	}
	return fo.merge(dt)
}

// compileFoldVectors folds parallel vectors element by element
func (m *methodCompiler) compileFoldVectors(v *ir.FoldVectors, dt ir.DataType) error {
	f := v.Fold
	if len(v.Vectors) == 0 || f.EltCount() != len(v.Vectors) {
		return UnsupportedExpression.New("A fold over %d vectors must bind one element per vector, not %d.", len(v.Vectors), f.EltCount())
	}
	cl := m.closureOf(v)
	h := m.helper("fold", cl)
	lists := make([][]foldItem, len(v.Vectors))
	for i, vec := range v.Vectors {
		var err error
		if lists[i], err = h.flatten([]ir.Node{vec}, directScope); err != nil {
			return err
		}
	}
	fo, err := h.newFolder(f, nil, !hasStatic(lists[0]))
	if err != nil {
		return err
	}
	err = h.scan(lists, func(items []foldItem) error {
		values := make([]foldValue, len(items))
		for i, it := range items {
			values[i] = it.value(h)
		}
		return fo.step(values)
	})
	if err != nil {
		return err
	}
	if err := fo.merge(dt); err != nil {
		return err
	}
	h.e.Return(true)
	return m.callHelper(h.finish(h.kindOf(dt)), cl)
}

// compileFoldDatabase folds one column over the table rows the filter
// accepts. The column values of a row are computed once and passed to the
// filter helper.
func (m *methodCompiler) compileFoldDatabase(v *ir.FoldDatabase, dt ir.DataType) error {
	f := v.Fold
	width := len(v.ColNames)
	switch {
	case v.Table == nil || width == 0:
		return UnsupportedExpression.New("A database fold needs a table with named columns.")
	case f.EltCount() != 1:
		return UnsupportedExpression.New("A database fold binds exactly one element, not %d.", f.EltCount())
	case v.StaticColumn >= width:
		return UnsupportedExpression.New("Column %d is outside the table of %d columns.", v.StaticColumn+1, width)
	}
	cl := m.closureOf(v)
	h := m.helper("fold", cl)
	items, err := h.flatten([]ir.Node{v.Table}, directScope)
	if err != nil {
		return err
	}

	col := -1
	if v.StaticColumn < 0 {
		if col, err = h.selectColumn(v, dt); err != nil {
			return err
		}
	}
	fo, err := h.newFolder(f, nil, true)
	if err != nil {
		return err
	}

	var (
		types  []ir.DataType
		filter *stack.Routine
		fcl    *closure
	)
	err = h.scanRows(items, width, func(row []foldItem) error {
		slots := h.alloc.Mark()
		defer h.alloc.Reset(slots)
		if types == nil {
			types = make([]ir.DataType, width)
			for i, it := range row {
				types[i] = domainOf(it.dtype())
			}
		}

		cols := make([]int, width)
		restore := h.lets.hideFrom(fo.mark)
		for i, it := range row {
			if err := it.compile(h, types[i]); err != nil {
				restore()
				return err
			}
			cols[i] = h.alloc.Alloc(h.kindOf(types[i]), v.ColNames[i])
			h.e.Store(cols[i])
		}
		if v.Filter != nil && filter == nil {
			fcl = h.closureOf(v.Filter, v.ColNames...)
			var err error
			filter, err = h.filterHelper(v, fcl, types)
			if err != nil {
				restore()
				return err
			}
		}
		restore()

		skip := h.e.NewLabel()
		if filter != nil {
			err := h.callHelper(filter, fcl, func() {
				for _, slot := range cols {
					h.e.Load(slot)
				}
			})
			if err != nil {
				return err
			}
			h.e.Branch(stack.IfFalse, skip)
			h.lets.beginTracking()
			defer func() { h.lets.revert(h.lets.endTracking(), nil) }()
		}

		value := foldValue{dtype: types[max(v.StaticColumn, 0)]}
		if v.StaticColumn >= 0 {
			c := v.StaticColumn
			value.load = func(t ir.DataType) error {
				h.e.Load(cols[c])
				return h.convert(types[c], t)
			}
		} else {
			value.dtype = ir.Numeric
			if len(f.Inits) > 0 {
				value.dtype = domainOf(f.Inits[0].Type())
			}
			value.load = func(t ir.DataType) error { return h.loadColumn(col, cols, types, t) }
		}
		if err := fo.step([]foldValue{value}); err != nil {
			return err
		}
		h.e.Mark(skip)
		return nil
	})
	if err != nil {
		return err
	}
	if err := fo.merge(dt); err != nil {
		return err
	}
	h.e.Return(true)
	return m.callHelper(h.finish(h.kindOf(dt)), cl)
}

// selectColumn stores the position of the column whose key the column
// expression yields. An unknown key makes the fold return its empty value.
func (m *methodCompiler) selectColumn(v *ir.FoldDatabase, dt ir.DataType) (int, error) {
	if v.Column == nil {
		return 0, UnsupportedExpression.New("A database fold without a static column needs a column expression.")
	}
	if err := m.compileInt(v.Column); err != nil {
		return 0, err
	}
	key := m.alloc.Alloc(stack.KindInt, "key")
	col := m.alloc.Alloc(stack.KindInt, "column")
	m.e.Store(key)
	found := m.e.NewLabel()
	for i, k := range v.ColumnKeys {
		if i >= len(v.ColNames) {
			break
		}
		next := m.e.NewLabel()
		m.e.Load(key)
		m.e.Const(k)
		m.e.Op(stack.ISub)
		m.e.Branch(stack.IfNe, next)
		m.e.Const(i)
		m.e.Store(col)
		m.e.Goto(found)
		m.e.Mark(next)
	}
	if v.Fold.IsSpecialWhenEmpty() {
		if err := m.compile(v.Fold.WhenEmpty, dt); err != nil {
			return 0, err
		}
	} else {
		m.strategyOf(dt).zero(m.e)
	}
	m.e.Return(true)
	m.e.Mark(found)
	return col, nil
}

// loadColumn pushes the row value of the column selected at run time
func (m *methodCompiler) loadColumn(col int, cols []int, types []ir.DataType, dt ir.DataType) error {
	targets := make([]*stack.Label, len(cols))
	for i := range targets {
		targets[i] = m.e.NewLabel()
	}
	bad, done := m.e.NewLabel(), m.e.NewLabel()
	m.e.Load(col)
	m.e.TableSwitch(0, targets, bad)
	for i, slot := range cols {
		m.e.Mark(targets[i])
		m.e.Load(slot)
		if err := m.convert(types[i], dt); err != nil {
			return err
		}
		m.e.Goto(done)
	}
	m.e.Mark(bad)
	m.e.Throw(string(stdlib.IndexOutOfRange), stdlib.IndexOutOfRange.Code())
	m.e.Mark(done)
	return nil
}

// filterHelper builds the routine testing one table row. The column values
// follow the closure values as parameters.
func (m *methodCompiler) filterHelper(v *ir.FoldDatabase, cl *closure, types []ir.DataType) (*stack.Routine, error) {
	kinds := make([]stack.Kind, len(types))
	for i, t := range types {
		kinds[i] = m.kindOf(t)
	}
	h := m.helper("filter", cl, kinds...)
	for i, name := range v.ColNames {
		h.bind(h.lets.local(name, cl.firstExtra()+i, kinds[i], types[i]))
	}
	no := h.e.NewLabel()
	if err := h.branch(v.Filter, no, false); err != nil {
		return nil, err
	}
	h.e.Const(true)
	h.e.Return(true)
	h.e.Mark(no)
	h.e.Const(false)
	h.e.Return(true)
	return h.finish(stack.KindBool), nil
}
