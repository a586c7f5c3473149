// Package regalloc allocates local slots for generated routines.
//
// Design: An arena indexed by slot number. Scopes take a watermark with Mark
// and release everything above it with Reset, so long static folds reuse the
// same few slots instead of growing the frame per element. The arena keeps the
// high-water mark, which becomes the routine's frame size.
package regalloc

import (
	"fmt"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// Slot is a local allocated in the arena
type Slot struct {
	Index int
	Kind  stack.Kind
	Name  string
}

// Allocator hands out local slots for one routine
type Allocator struct {
	routine string
	live    []Slot
	max     int
	reused  int
}

// NewAllocator creates an allocator whose first reserved slots hold the
// receiver and the parameters.
func NewAllocator(routine string, params []stack.Kind) *Allocator {
	a := &Allocator{routine: routine}
	a.live = append(a.live, Slot{Index: 0, Kind: stack.KindRef, Name: "this"})
	for i, k := range params {
		a.live = append(a.live, Slot{Index: i + 1, Kind: k, Name: fmt.Sprintf("p%d", i)})
	}
	a.max = len(a.live)
	return a
}

// Alloc reserves the next slot
func (a *Allocator) Alloc(kind stack.Kind, name string) int {
	idx := len(a.live)
	a.live = append(a.live, Slot{Index: idx, Kind: kind, Name: name})
	if idx+1 > a.max {
		a.max = idx + 1
	} else {
		a.reused++
	}
	return idx
}

// Mark returns the current watermark
func (a *Allocator) Mark() int {
	return len(a.live)
}

// Reset releases every slot allocated since mark
func (a *Allocator) Reset(mark int) {
	if mark < 0 || mark > len(a.live) {
		panic(fmt.Sprintf("regalloc: reset to %d with %d live slots", mark, len(a.live)))
	}
	a.live = a.live[:mark]
}

// Kind returns the kind of a live slot
func (a *Allocator) Kind(idx int) stack.Kind {
	if idx < 0 || idx >= len(a.live) {
		return stack.KindVoid
	}
	return a.live[idx].Kind
}

// Live lists the live slots
func (a *Allocator) Live() []Slot {
	return a.live
}

// Max is the frame size needed by every slot handed out so far
func (a *Allocator) Max() int {
	logger.Debug("Local allocation complete",
		"routine", a.routine,
		"slots", a.max,
		"reused", a.reused)
	return a.max
}
