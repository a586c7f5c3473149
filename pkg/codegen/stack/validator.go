// Package stack - Routine validation and correctness verification
package stack

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// ValidationError represents a routine validation error
type ValidationError struct {
	Routine string
	PC      int
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s pc %d: %s\n  %s", e.Routine, e.PC, e.Message, e.Code)
}

// Validator validates generated routines
type Validator struct {
	errors []ValidationError
	warns  []ValidationError
}

// NewValidator creates a new routine validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
		warns:  make([]ValidationError, 0),
	}
}

// Validate performs comprehensive validation on one routine
func (v *Validator) Validate(r *Routine) error {
	v.check(r)

	if len(v.errors) > 0 {
		return v.formatErrors()
	}

	if len(v.warns) > 0 {
		v.logWarnings()
	}

	return nil
}

func (v *Validator) check(r *Routine) {
	v.validateFrame(r)
	v.validateLabels(r)
	v.validateLocals(r)
	v.validateHandlers(r)
	if !v.hasErrorsFor(r) {
		v.validateStack(r)
	}
}

func (v *Validator) hasErrorsFor(r *Routine) bool {
	for _, e := range v.errors {
		if e.Routine == r.Name {
			return true
		}
	}
	return false
}

// validateFrame checks that parameters fit into the locals
func (v *Validator) validateFrame(r *Routine) {
	if r.MaxLocals < 1+len(r.Params) {
		v.addError(r, 0, fmt.Sprintf("max locals %d cannot hold receiver and %d parameters", r.MaxLocals, len(r.Params)), "")
	}
	if len(r.Code) == 0 {
		v.addError(r, 0, "empty routine body", "")
	}
}

// validateLabels checks that every branch target is placed inside the body
func (v *Validator) validateLabels(r *Routine) {
	for pc, in := range r.Code {
		if in.Op.IsBranch() || in.Op == TableSwitch {
			v.checkTarget(r, pc, in, in.Label)
		}
		for _, t := range in.Targets {
			v.checkTarget(r, pc, in, t)
		}
	}
}

func (v *Validator) checkTarget(r *Routine, pc int, in Inst, l *Label) {
	switch {
	case l == nil:
		v.addError(r, pc, "branch without target", in.String())
	case !l.Marked():
		v.addError(r, pc, fmt.Sprintf("unresolved label %s", labelName(l)), in.String())
	case l.Pos >= len(r.Code):
		v.addError(r, pc, fmt.Sprintf("label %s out of range", labelName(l)), in.String())
	}
}

// validateLocals checks local slot usage against the frame size
func (v *Validator) validateLocals(r *Routine) {
	for pc, in := range r.Code {
		switch in.Op {
		case Load, Store, IInc:
			if in.A < 0 || in.A >= r.MaxLocals {
				v.addError(r, pc, fmt.Sprintf("local %d outside frame of %d", in.A, r.MaxLocals), in.String())
			}
		case Return:
			if in.A == 1 && r.Result == KindVoid {
				v.addError(r, pc, "void routine returns a value", in.String())
			} else if in.A == 0 && r.Result != KindVoid {
				v.addError(r, pc, "routine returns no value", in.String())
			}
		}
	}
}

// validateHandlers checks handler ranges
func (v *Validator) validateHandlers(r *Routine) {
	for _, h := range r.Handlers {
		for _, l := range []*Label{h.Start, h.Target} {
			if l == nil || !l.Marked() || l.Pos >= len(r.Code) {
				v.addError(r, 0, "handler label unresolved or out of range", fmt.Sprintf("handler -> %s", labelName(h.Target)))
				return
			}
		}
		if h.End == nil || !h.End.Marked() || h.End.Pos < h.Start.Pos || h.End.Pos > len(r.Code) {
			v.addError(r, 0, "handler range invalid", fmt.Sprintf("handler %s..%s", labelName(h.Start), labelName(h.End)))
		}
	}
}

// validateStack runs a depth dataflow over the body: no underflow, equal
// depths where paths merge, and no path running past the last instruction.
func (v *Validator) validateStack(r *Routine) {
	depth := make([]int, len(r.Code))
	for i := range depth {
		depth[i] = -1
	}
	work := []int{0}
	depth[0] = 0
	for _, h := range r.Handlers {
		if depth[h.Target.Pos] < 0 {
			depth[h.Target.Pos] = 0
			work = append(work, h.Target.Pos)
		}
	}

	flow := func(from, to, d int) {
		if to >= len(r.Code) {
			v.addError(r, from, "control falls off end of routine", r.Code[from].String())
			return
		}
		switch {
		case depth[to] < 0:
			depth[to] = d
			work = append(work, to)
		case depth[to] != d:
			v.addError(r, to, fmt.Sprintf("inconsistent stack depth %d vs %d", depth[to], d), r.Code[to].String())
		}
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := r.Code[pc]
		pops, pushes := in.Effect()
		if pops > depth[pc] {
			v.addError(r, pc, fmt.Sprintf("stack underflow: needs %d, has %d", pops, depth[pc]), in.String())
			continue
		}
		d := depth[pc] - pops + pushes
		switch {
		case in.Op == Return:
			if d != 0 {
				v.addWarn(r, pc, fmt.Sprintf("%d values left on stack at return", d), in.String())
			}
		case in.Op == Throw:
		case in.Op == Goto:
			flow(pc, in.Label.Pos, d)
		case in.Op == TableSwitch:
			for _, t := range in.Targets {
				flow(pc, t.Pos, d)
			}
			flow(pc, in.Label.Pos, d)
		case in.Op.IsConditional():
			flow(pc, in.Label.Pos, d)
			flow(pc, pc+1, d)
		default:
			flow(pc, pc+1, d)
		}
	}

	for pc, d := range depth {
		if d < 0 && r.Code[pc].Op != Nop {
			v.addWarn(r, pc, "unreachable instruction", r.Code[pc].String())
		}
	}
}

func (v *Validator) addError(r *Routine, pc int, msg, code string) {
	v.errors = append(v.errors, ValidationError{Routine: r.Name, PC: pc, Message: msg, Code: code})
}

func (v *Validator) addWarn(r *Routine, pc int, msg, code string) {
	v.warns = append(v.warns, ValidationError{Routine: r.Name, PC: pc, Message: msg, Code: code})
}

func (v *Validator) formatErrors() error {
	var sb strings.Builder
	sb.WriteString("Routine validation failed:\n")
	for _, err := range v.errors {
		sb.WriteString("  " + err.Error() + "\n")
	}
	return fmt.Errorf("%s", sb.String())
}

func (v *Validator) logWarnings() {
	for _, warn := range v.warns {
		logger.LogWarning("validate", warn.Routine, warn.PC, warn.Message)
	}
}

// Warnings returns the warnings collected so far
func (v *Validator) Warnings() []ValidationError {
	return v.warns
}

// ValidateProgram validates every routine of every unit
func ValidateProgram(p *Program) error {
	validator := NewValidator()
	for _, u := range p.Units {
		for _, r := range u.Routines {
			validator.check(r)
		}
	}
	if len(validator.errors) > 0 {
		return validator.formatErrors()
	}
	if len(validator.warns) > 0 {
		validator.logWarnings()
	}
	return nil
}

// QuickValidate performs fast structural validation for development
func QuickValidate(r *Routine) bool {
	validator := NewValidator()
	validator.validateLabels(r)
	validator.validateLocals(r)
	return len(validator.errors) == 0
}

// ValidateAndReport validates a program and returns a detailed report
func ValidateAndReport(p *Program) (bool, string) {
	validator := NewValidator()
	for _, u := range p.Units {
		for _, r := range u.Routines {
			validator.check(r)
		}
	}

	var report strings.Builder
	report.WriteString("=== Routine Validation Report ===\n\n")

	if len(validator.errors) > 0 {
		report.WriteString(fmt.Sprintf("Status: FAILED\n\nErrors:\n%s\n", validator.formatErrors().Error()))
		return false, report.String()
	}

	report.WriteString("Status: PASSED\n\n")

	if len(validator.warns) > 0 {
		report.WriteString("Warnings:\n")
		for _, warn := range validator.warns {
			report.WriteString(fmt.Sprintf("  %s pc %d: %s\n", warn.Routine, warn.PC, warn.Message))
		}
	} else {
		report.WriteString("No warnings.\n")
	}

	instCount := 0
	for _, u := range p.Units {
		for _, r := range u.Routines {
			instCount += len(r.Code)
		}
	}
	report.WriteString(fmt.Sprintf("\nStatistics:\n  Units: %d\n  Routines: %d\n  Instructions: %d\n",
		len(p.Units), p.RoutineCount(), instCount))

	return true, report.String()
}
