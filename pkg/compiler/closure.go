package compiler

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// capture is an outer binding a helper routine refers to
type capture struct {
	idx   int
	entry *letEntry
}

// closure lists the outer bindings of a helper in binding order. Scalar
// bindings become parameters; substituted ones are re-bound in the helper,
// with the objects they were bound against passed along. A lazy closure
// also re-binds pending bindings, so they are computed inside the helper.
type closure struct {
	captures []capture
	objs     []int
	lazy     bool
}

// deferred reports whether e is re-bound in the helper rather than passed
func (cl *closure) deferred(e *letEntry) bool {
	return e.state == letSubst || (cl.lazy && e.state == letPending)
}

// scalars are the captures passed as parameters, ordered by name and then
// by binding position.
func (cl *closure) scalars() []*letEntry {
	var out []capture
	for _, c := range cl.captures {
		if !cl.deferred(c.entry) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b capture) int {
		if c := strings.Compare(a.entry.name, b.entry.name); c != 0 {
			return c
		}
		return a.idx - b.idx
	})
	entries := make([]*letEntry, len(out))
	for i, c := range out {
		entries[i] = c.entry
	}
	return entries
}

// params are the helper's parameter kinds after the receiver
func (cl *closure) params() []stack.Kind {
	var kinds []stack.Kind
	for range cl.objs {
		kinds = append(kinds, stack.KindRef)
	}
	for _, e := range cl.scalars() {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

// freeVars lists the let names n refers to without binding them, sorted
func freeVars(n ir.Node, bound ...string) []string {
	scope := make(map[string]int)
	for _, b := range bound {
		scope[b]++
	}
	out := make(map[string]bool)
	collectFree(n, scope, out)
	names := maps.Keys(out)
	slices.Sort(names)
	return names
}

func within(scope map[string]int, names []string, fn func()) {
	for _, name := range names {
		if name != "" {
			scope[name]++
		}
	}
	fn()
	for _, name := range names {
		if name != "" {
			scope[name]--
		}
	}
}

func collectFree(n ir.Node, scope map[string]int, out map[string]bool) {
	if n == nil {
		return
	}
	switch v := n.(type) {
	case *ir.LetVar:
		if scope[v.Name] == 0 {
			out[v.Name] = true
		}
		return
	case *ir.Let:
		collectFree(v.Value, scope, out)
		within(scope, []string{v.Name}, func() { collectFree(v.Body, scope, out) })
		return
	case *ir.FoldList:
		collectFold(v.Fold, scope, out)
	case *ir.FoldVectors:
		collectFold(v.Fold, scope, out)
	case *ir.FoldDatabase:
		collectFold(v.Fold, scope, out)
		collectFree(v.Table, scope, out)
		within(scope, v.ColNames, func() { collectFree(v.Filter, scope, out) })
		collectFree(v.Column, scope, out)
		return
	}
	for _, a := range n.Args() {
		collectFree(a, scope, out)
	}
}

func collectFold(f *ir.Fold, scope map[string]int, out map[string]bool) {
	for _, n := range f.Inits {
		collectFree(n, scope, out)
	}
	stepNames := append(append([]string{f.IndexName}, f.AccuNames...), f.EltNames...)
	within(scope, stepNames, func() {
		for _, n := range f.Steps {
			collectFree(n, scope, out)
		}
	})
	within(scope, append([]string{f.CountName}, f.AccuNames...), func() {
		collectFree(f.Merge, scope, out)
	})
	collectFree(f.WhenEmpty, scope, out)
}

// closureOf resolves the free names of n against the current bindings.
// Substituted bindings pull in the names their own expression refers to.
func (m *methodCompiler) closureOf(n ir.Node, bound ...string) *closure {
	return m.resolveClosure(&closure{}, n, bound)
}

// lazyClosureOf is closureOf for helpers that must compute pending
// bindings themselves.
func (m *methodCompiler) lazyClosureOf(n ir.Node, bound ...string) *closure {
	return m.resolveClosure(&closure{lazy: true}, n, bound)
}

func (m *methodCompiler) resolveClosure(cl *closure, n ir.Node, bound []string) *closure {
	seen := make(map[*letEntry]int)
	var resolve func(n ir.Node, limit int, bound []string)
	resolve = func(n ir.Node, limit int, bound []string) {
		for _, name := range freeVars(n, bound...) {
			idx, e := m.lets.lookup(name, limit)
			if e == nil {
				continue
			}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = idx
			if cl.deferred(e) {
				resolve(e.value, idx, nil)
			}
		}
	}
	resolve(n, m.lets.mark(), bound)

	for e, idx := range seen {
		cl.captures = append(cl.captures, capture{idx: idx, entry: e})
	}
	slices.SortFunc(cl.captures, func(a, b capture) int { return a.idx - b.idx })
	for _, c := range cl.captures {
		e := c.entry
		if cl.deferred(e) && e.obj != m.obj && !slices.Contains(cl.objs, e.obj) {
			cl.objs = append(cl.objs, e.obj)
		}
	}
	return cl
}

// helperName numbers helpers per unit
func (s *sectionCompiler) helperName(prefix string) string {
	s.helpers++
	return fmt.Sprintf("%s$%d", prefix, s.helpers)
}

// helper starts a routine in the unit of the object in context. It runs
// with that object as receiver and sees the bindings of cl. Extra
// parameters follow the closure values.
func (m *methodCompiler) helper(prefix string, cl *closure, extra ...stack.Kind) *methodCompiler {
	params := append(cl.params(), extra...)
	h := m.ctx.newMethod(m.ctx.helperName(prefix), params)
	h.inlining = m.inlining

	objSlot := map[int]int{m.obj: 0}
	slot := 1
	for _, o := range cl.objs {
		objSlot[o] = slot
		slot++
	}
	paramSlot := make(map[*letEntry]int)
	for _, e := range cl.scalars() {
		paramSlot[e] = slot
		slot++
	}
	for _, c := range cl.captures {
		e := c.entry
		switch {
		case e.state == letSubst:
			ne := h.lets.subst(e.name, e.value)
			ne.obj, ne.ctx = objSlot[e.obj], e.ctx
			continue
		case cl.deferred(e):
			ne := h.lets.delayed(e.name, e.value, h.alloc.Alloc(e.kind, e.name), e.kind, e.dtype)
			ne.obj, ne.ctx = objSlot[e.obj], e.ctx
			continue
		}
		ne := h.bind(h.lets.local(e.name, paramSlot[e], e.kind, e.dtype))
		ne.isInt = e.isInt
	}
	return h
}

// firstExtra is the slot of the first extra helper parameter
func (cl *closure) firstExtra() int {
	return 1 + len(cl.objs) + len(cl.scalars())
}

// callHelper invokes h on the object in context with the closure values,
// then the extra arguments pushed by extra.
func (m *methodCompiler) callHelper(h *stack.Routine, cl *closure, extra ...func()) error {
	m.loadObject()
	for _, o := range cl.objs {
		m.e.Load(o)
	}
	for _, e := range cl.scalars() {
		if err := m.pushRaw(e); err != nil {
			return err
		}
	}
	for _, push := range extra {
		push()
	}
	m.e.Invoke(h.Name, len(h.Params), true)
	names := make([]string, len(cl.captures))
	for i, c := range cl.captures {
		names[i] = c.entry.name
	}
	logger.LogHelper(h.Name, m.name, names)
	return nil
}

// pushRaw pushes the slot value of a binding, computing it when pending
func (m *methodCompiler) pushRaw(e *letEntry) error {
	if e.state == letSet {
		m.e.Load(e.slot)
		return nil
	}
	err := m.inBindingScope(m.lets.index(e), e, func() error {
		return m.compile(e.value, e.dtype)
	})
	if err != nil {
		return err
	}
	m.e.Op(stack.Dup)
	m.e.Store(e.slot)
	e.state = letSet
	m.lets.trackSet(e)
	return nil
}
