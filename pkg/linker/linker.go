// Package linker turns a compiled program into a linked image the machine
// can execute.
//
// Design: Every unit gets a field layout (builtin fields first), routines are
// indexed by name, and every symbolic reference in the code (fields,
// routines, units, runtime functions) is resolved once, up front. A missing
// symbol fails the whole link.
package linker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/logger"
)

// Resolver reports whether a runtime function exists
type Resolver func(name string) bool

// Image is a linked program
type Image struct {
	Program *stack.Program
	Units   map[string]*Unit
	Root    *Unit
	Factory *Unit
}

// Unit is a unit with its resolved layout
type Unit struct {
	Name     string
	Parent   *Unit
	Fields   []stack.Field
	Index    map[string]int
	Routines map[string]*stack.Routine
}

// Field returns the layout index of name
func (u *Unit) Field(name string) (int, bool) {
	i, ok := u.Index[name]
	return i, ok
}

// Routine looks up a routine by name
func (u *Unit) Routine(name string) *stack.Routine {
	return u.Routines[name]
}

// Unit looks up a linked unit by name
func (img *Image) Unit(name string) *Unit {
	return img.Units[name]
}

// LinkError collects every unresolved reference of a link
type LinkError struct {
	Missing []string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link failed, %d unresolved references:\n  %s",
		len(e.Missing), strings.Join(e.Missing, "\n  "))
}

// Linker links one program
type Linker struct {
	prog     *stack.Program
	resolve  Resolver
	validate bool
	missing  []string
}

// New creates a linker for prog resolving runtime calls through resolve
func New(prog *stack.Program, resolve Resolver) *Linker {
	return &Linker{prog: prog, resolve: resolve, validate: true}
}

// SkipValidation disables routine validation, for programs already validated
func (l *Linker) SkipValidation() *Linker {
	l.validate = false
	return l
}

// Link produces the image
func (l *Linker) Link() (*Image, error) {
	start := time.Now()
	logger.LogLinkingStart(len(l.prog.Units))

	img := &Image{Program: l.prog, Units: make(map[string]*Unit, len(l.prog.Units))}
	for _, u := range l.prog.Units {
		if _, dup := img.Units[u.Name]; dup {
			l.miss("duplicate unit %s", u.Name)
			continue
		}
		img.Units[u.Name] = layout(u)
	}
	for _, u := range l.prog.Units {
		lu := img.Units[u.Name]
		if u.Parent == "" {
			continue
		}
		if p, ok := img.Units[u.Parent]; ok {
			lu.Parent = p
		} else {
			l.miss("unit %s: parent unit %s", u.Name, u.Parent)
		}
	}

	img.Root = img.Units[l.prog.Root]
	img.Factory = img.Units[l.prog.Factory]
	if img.Root == nil {
		l.miss("root unit %q", l.prog.Root)
	}
	if img.Factory == nil {
		l.miss("factory unit %q", l.prog.Factory)
	} else if img.Factory.Routine(stack.RoutineNewComputation) == nil {
		l.miss("factory routine %s", stack.RoutineNewComputation)
	}
	if l.prog.Resettable && img.Root != nil && img.Root.Routine(stack.RoutineReset) == nil {
		l.miss("reset routine of resettable root %s", l.prog.Root)
	}

	fields, routines := l.symbols(img)
	for _, u := range l.prog.Units {
		for _, r := range u.Routines {
			l.resolveRoutine(img, u, r, fields, routines)
		}
	}

	if len(l.missing) > 0 {
		sort.Strings(l.missing)
		logger.LogError("link", l.prog.Root, fmt.Sprintf("%d unresolved references", len(l.missing)))
		return nil, &LinkError{Missing: l.missing}
	}
	if l.validate {
		if err := stack.ValidateProgram(l.prog); err != nil {
			return nil, err
		}
	}

	logger.LogLinkingComplete(l.prog.Root, l.prog.RoutineCount())
	logger.Debug("Link complete", "units", len(img.Units), "duration", time.Since(start))
	return img, nil
}

// Link is a shorthand for New(prog, resolve).Link()
func Link(prog *stack.Program, resolve Resolver) (*Image, error) {
	return New(prog, resolve).Link()
}

func layout(u *stack.Unit) *Unit {
	lu := &Unit{
		Name:     u.Name,
		Index:    make(map[string]int),
		Routines: make(map[string]*stack.Routine, len(u.Routines)),
	}
	add := func(f stack.Field) {
		if _, ok := lu.Index[f.Name]; ok {
			return
		}
		lu.Index[f.Name] = len(lu.Fields)
		lu.Fields = append(lu.Fields, f)
	}
	for _, f := range stack.BuiltinFields {
		add(f)
	}
	for _, f := range u.Fields {
		add(f)
	}
	for _, r := range u.Routines {
		lu.Routines[r.Name] = r
	}
	return lu
}

// symbols indexes field and routine names over all units. Field and routine
// access is dynamic on the receiver, so a name only has to exist somewhere.
func (l *Linker) symbols(img *Image) (fields, routines map[string]bool) {
	fields = make(map[string]bool)
	routines = make(map[string]bool)
	for _, u := range img.Units {
		for name := range u.Index {
			fields[name] = true
		}
		for name := range u.Routines {
			routines[name] = true
		}
	}
	return fields, routines
}

func (l *Linker) resolveRoutine(img *Image, u *stack.Unit, r *stack.Routine, fields, routines map[string]bool) {
	for pc, in := range r.Code {
		at := func() string { return fmt.Sprintf("%s.%s@%d", u.Name, r.Name, pc) }
		switch in.Op {
		case stack.GetField, stack.PutField:
			if !fields[in.S] {
				l.miss("%s: field %s", at(), in.S)
			}
		case stack.Invoke:
			if !routines[in.S] {
				l.miss("%s: routine %s", at(), in.S)
			}
		case stack.NewUnit:
			if _, ok := img.Units[in.S]; !ok {
				l.miss("%s: unit %s", at(), in.S)
			}
		case stack.Call:
			if l.resolve != nil && !l.resolve(in.S) {
				l.miss("%s: function %s", at(), in.S)
			}
		}
	}
}

func (l *Linker) miss(format string, args ...any) {
	l.missing = append(l.missing, fmt.Sprintf(format, args...))
}
