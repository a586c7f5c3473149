package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
)

type letState int

const (
	// letSubst re-compiles the bound expression at every reference
	letSubst letState = iota
	// letPending has a reserved slot that is filled on first reference
	letPending
	// letSet holds its value in the slot
	letSet
)

// letEntry is one binding of the dictionary
type letEntry struct {
	name  string
	value ir.Node
	slot  int
	kind  stack.Kind
	dtype ir.DataType
	state letState
	// isInt slots hold a raw int converted to the numeric domain on load
	isInt bool
	// level is the tracking depth the binding was made at
	level int
	// obj and ctx are the object in context where the binding was made
	obj int
	ctx *sectionCompiler
}

// isAggregate reports whether the binding stands for an array or a
// sub-section vector, which can only be substituted.
func (e *letEntry) isAggregate() bool {
	switch e.value.(type) {
	case *ir.ArrayRef, *ir.SubSectionRef:
		return e.state == letSubst
	}
	return false
}

// letDict is the scope dictionary of one routine. Bindings form a stack;
// callers release everything above a mark when their scope ends.
type letDict struct {
	entries []*letEntry
	level   int
	tracked []map[*letEntry]bool
}

func newLetDict() *letDict {
	return &letDict{}
}

func (d *letDict) mark() int { return len(d.entries) }

func (d *letDict) release(mark int) {
	d.entries = d.entries[:mark]
}

func (d *letDict) push(e *letEntry) *letEntry {
	e.level = d.level
	d.entries = append(d.entries, e)
	return e
}

// subst binds name to an expression compiled at every reference
func (d *letDict) subst(name string, value ir.Node) *letEntry {
	return d.push(&letEntry{name: name, value: value, slot: -1, dtype: value.Type(), state: letSubst})
}

// local binds name to a slot that already holds the value
func (d *letDict) local(name string, slot int, kind stack.Kind, dtype ir.DataType) *letEntry {
	return d.push(&letEntry{name: name, slot: slot, kind: kind, dtype: dtype, state: letSet})
}

// counter binds name to an int slot seen as a number
func (d *letDict) counter(name string, slot int) *letEntry {
	e := d.local(name, slot, stack.KindInt, ir.Numeric)
	e.isInt = true
	return e
}

// delayed binds name to a slot filled on first reference
func (d *letDict) delayed(name string, value ir.Node, slot int, kind stack.Kind, dtype ir.DataType) *letEntry {
	return d.push(&letEntry{name: name, value: value, slot: slot, kind: kind, dtype: dtype, state: letPending})
}

// lookup resolves name among the first limit bindings
func (d *letDict) lookup(name string, limit int) (int, *letEntry) {
	for i := limit - 1; i >= 0; i-- {
		if d.entries[i].name == name {
			return i, d.entries[i]
		}
	}
	return -1, nil
}

func (d *letDict) index(e *letEntry) int {
	for i := len(d.entries) - 1; i >= 0; i-- {
		if d.entries[i] == e {
			return i
		}
	}
	return -1
}

// hideFrom makes the binding at i and everything above it invisible, so
// that its expression compiles in the scope it was bound in.
func (d *letDict) hideFrom(i int) (restore func()) {
	tail := append([]*letEntry(nil), d.entries[i:]...)
	d.entries = d.entries[:i:i]
	return func() {
		d.entries = append(d.entries[:i], tail...)
	}
}

// beginTracking starts recording outer bindings materialized by
// conditionally executed code.
func (d *letDict) beginTracking() {
	d.level++
	d.tracked = append(d.tracked, make(map[*letEntry]bool))
}

// endTracking stops recording and returns what was materialized
func (d *letDict) endTracking() map[*letEntry]bool {
	sets := d.tracked[len(d.tracked)-1]
	d.tracked = d.tracked[:len(d.tracked)-1]
	d.level--
	return sets
}

// trackSet records that e was materialized at the current level
func (d *letDict) trackSet(e *letEntry) {
	if len(d.tracked) == 0 || e.level >= d.level {
		return
	}
	d.tracked[len(d.tracked)-1][e] = true
}

// revert undoes the materializations of a branch. Bindings the other
// branch materialized as well stay set and count as materialized by the
// enclosing level.
func (d *letDict) revert(sets, other map[*letEntry]bool) {
	for e := range sets {
		if other != nil && other[e] {
			d.trackSet(e)
			continue
		}
		e.state = letPending
	}
}
