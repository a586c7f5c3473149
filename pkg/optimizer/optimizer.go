// Package optimizer - Stack code optimizations
// Design: Simple, effective passes over each routine, run to a fixed point
package optimizer

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// maxRounds bounds the fixed-point iteration at level 2
const maxRounds = 8

// Optimize applies all optimization passes and returns the number of
// instructions changed or removed
func Optimize(prog *stack.Program, level int) int {
	logger.Debug("Running optimization passes", "level", level)

	if level == 0 {
		return 0
	}

	total := 0
	for _, u := range prog.Units {
		for _, r := range u.Routines {
			total += OptimizeRoutine(r, level)
		}
	}

	logger.LogOptimization("stack", total)
	return total
}

// OptimizeRoutine runs the passes over one routine. Level 1 runs each pass
// once, level 2 repeats them until nothing changes.
func OptimizeRoutine(r *stack.Routine, level int) int {
	total := 0
	for round := 0; round < maxRounds; round++ {
		n := ThreadJumps(r)
		n += PeepholeOptimize(r)
		n += DeadCodeElimination(r)
		total += n
		if n == 0 || level < 2 {
			break
		}
	}
	return total
}

// ThreadJumps retargets branches whose target is an unconditional goto and
// drops gotos to the next instruction
func ThreadJumps(r *stack.Routine) int {
	changes := 0
	final := func(l *stack.Label) *stack.Label {
		for hops := 0; hops < len(r.Code) && l.Pos < len(r.Code); hops++ {
			in := r.Code[l.Pos]
			if in.Op != stack.Goto || in.Label == l {
				break
			}
			l = in.Label
		}
		return l
	}

	for i := range r.Code {
		in := &r.Code[i]
		if in.Op.IsBranch() || in.Op == stack.TableSwitch {
			if t := final(in.Label); t != in.Label {
				in.Label = t
				changes++
			}
		}
		for j, l := range in.Targets {
			if t := final(l); t != l {
				in.Targets[j] = t
				changes++
			}
		}
	}

	keep := make([]bool, len(r.Code))
	for i, in := range r.Code {
		keep[i] = !(in.Op == stack.Goto && in.Label.Pos == i+1)
	}
	return changes + compact(r, keep)
}

// DeadCodeElimination removes instructions no path from the entry or a
// handler reaches
func DeadCodeElimination(r *stack.Routine) int {
	if len(r.Code) == 0 {
		return 0
	}
	reachable := make([]bool, len(r.Code))
	work := []int{0}
	for _, h := range r.Handlers {
		work = append(work, h.Target.Pos)
	}
	visit := func(pc int) {
		if pc < len(r.Code) && !reachable[pc] {
			work = append(work, pc)
		}
	}
	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		if pc >= len(r.Code) || reachable[pc] {
			continue
		}
		reachable[pc] = true
		in := r.Code[pc]
		if in.Op.IsBranch() || in.Op == stack.TableSwitch {
			visit(in.Label.Pos)
		}
		for _, t := range in.Targets {
			visit(t.Pos)
		}
		if !in.Op.Ends() {
			visit(pc + 1)
		}
	}
	return compact(r, reachable)
}

// compact removes the instructions not kept and moves every label to the
// next kept instruction
func compact(r *stack.Routine, keep []bool) int {
	removed := 0
	newPos := make([]int, len(r.Code)+1)
	code := r.Code[:0:0]
	for i, in := range r.Code {
		newPos[i] = len(code)
		if keep[i] {
			code = append(code, in)
		} else {
			removed++
		}
	}
	if removed == 0 {
		return 0
	}
	newPos[len(r.Code)] = len(code)
	for _, l := range r.Labels {
		if l.Marked() && l.Pos < len(newPos) {
			l.Pos = newPos[l.Pos]
		}
	}
	r.Code = code
	return removed
}

// targets marks the positions some label is placed at
func targets(r *stack.Routine) []bool {
	at := make([]bool, len(r.Code)+1)
	for _, l := range r.Labels {
		if l.Marked() && l.Pos <= len(r.Code) {
			at[l.Pos] = true
		}
	}
	return at
}
