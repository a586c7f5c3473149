// Package optimizer - Peephole optimization pass
// Recognizes and optimizes common instruction patterns
package optimizer

import (
	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// PeepholeOptimize applies pattern-based peephole optimizations. A pattern
// never spans a label, so no branch lands inside a rewritten sequence.
func PeepholeOptimize(r *stack.Routine) int {
	at := targets(r)
	keep := make([]bool, len(r.Code))
	for i := range keep {
		keep[i] = true
	}
	changes := 0

	for i := 0; i < len(r.Code); i++ {
		// Try three-instruction patterns first
		if i+2 < len(r.Code) && !at[i+1] && !at[i+2] {
			if v, ok := foldConstants(r.Code[i], r.Code[i+1], r.Code[i+2]); ok {
				logger.Debug("Peephole: folded constant arithmetic", "routine", r.Name)
				r.Code[i] = stack.Inst{Op: stack.Const, Value: v}
				keep[i+1], keep[i+2] = false, false
				changes++
				i += 2
				continue
			}
		}

		// Two-instruction patterns that cancel out
		if i+1 < len(r.Code) && !at[i+1] && cancels(r.Code[i], r.Code[i+1]) {
			logger.Debug("Peephole: eliminated no-op pair", "first", r.Code[i].Op, "second", r.Code[i+1].Op)
			keep[i], keep[i+1] = false, false
			changes++
			i++
			continue
		}

		// Pattern: iinc n 0  =>  nothing
		if in := r.Code[i]; in.Op == stack.IInc && in.B == 0 {
			keep[i] = false
			changes++
		}
	}
	return changes + compact(r, keep)
}

// cancels reports whether a followed by b leaves stack and locals unchanged
func cancels(a, b stack.Inst) bool {
	switch {
	case b.Op == stack.Pop:
		// Pattern: push x; pop  =>  nothing
		return a.Op == stack.Const || a.Op == stack.Load || a.Op == stack.Dup
	case a.Op == stack.Swap && b.Op == stack.Swap:
		return true
	case a.Op == b.Op && (a.Op == stack.FNeg || a.Op == stack.LNeg || a.Op == stack.INeg):
		// Pattern: -(-x)  =>  x
		return true
	}
	return false
}

// foldConstants evaluates an operator applied to two constants
func foldConstants(a, b, op stack.Inst) (any, bool) {
	if a.Op != stack.Const || b.Op != stack.Const {
		return nil, false
	}
	switch x := a.Value.(type) {
	case int:
		y, ok := b.Value.(int)
		if !ok {
			return nil, false
		}
		switch op.Op {
		case stack.IAdd:
			return x + y, true
		case stack.ISub:
			return x - y, true
		case stack.IMul:
			return x * y, true
		}
	case float64:
		y, ok := b.Value.(float64)
		if !ok {
			return nil, false
		}
		switch op.Op {
		case stack.FAdd:
			return x + y, true
		case stack.FSub:
			return x - y, true
		case stack.FMul:
			return x * y, true
		}
	}
	return nil, false
}
