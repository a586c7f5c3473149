// Package compiler translates a spreadsheet computation model into a stack
// program: one unit per section plus a factory unit creating root instances.
//
// Design: Compilation runs in two passes over the section tree. The first
// pass names the routines of cells that are not inlined, so that formulas in
// any section can reference them; the second pass emits the code. Aggregates
// over repeating sections and arrays are compiled into helper routines whose
// parameters carry the let-bound values they close over.
package compiler

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/logger"
	"github.com/GriffinCanCode/formulac/pkg/optimizer"
)

// Compiler compiles models with one configuration. It is not safe for
// concurrent use.
type Compiler struct {
	cfg Config
	num numberStrategy

	model    *ir.Model
	root     *sectionCompiler
	sections map[*ir.Section]*sectionCompiler
	// outerRefs are cells referenced from formulas of another section
	outerRefs map[*ir.Cell]bool
	runID     string

	// extractFolds compiles every fold into a helper routine
	extractFolds bool
}

// New creates a compiler for cfg
func New(cfg Config) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	num, err := numericStrategy(cfg.Numeric)
	if err != nil {
		return nil, err
	}
	return &Compiler{cfg: cfg, num: num}, nil
}

// Compile is shorthand for New(cfg) followed by Compile(model)
func Compile(model *ir.Model, cfg Config) (*stack.Program, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return c.Compile(model)
}

// Compile builds the program of model
func (c *Compiler) Compile(model *ir.Model) (prog *stack.Program, err error) {
	if model == nil || model.Root == nil {
		return nil, InternalError.New("Model has no root section.")
	}
	start := time.Now()
	c.runID = ulid.Make().String()
	c.model = model
	c.sections = make(map[*ir.Section]*sectionCompiler)
	defer func() {
		logger.LogCompileComplete(c.runID, err == nil, time.Since(start).String())
		if err != nil {
			cell, _ := CellOf(err)
			logger.LogError("compile", cell, err.Error())
		}
	}()

	model.CountReferences()
	c.outerRefs = outerReferences(model.Root)

	next := 0
	var build func(sec *ir.Section, parent *sectionCompiler) *sectionCompiler
	build = func(sec *ir.Section, parent *sectionCompiler) *sectionCompiler {
		name := RootUnit
		if parent != nil {
			name = fmt.Sprintf("$Sect%d", next)
			next++
		}
		s := newSectionCompiler(c, sec, parent, name)
		c.sections[sec] = s
		for _, sub := range sec.Sections {
			s.subs = append(s.subs, build(sub, s))
		}
		return s
	}
	c.root = build(model.Root, nil)
	logger.LogCompileStart(c.runID, len(c.sections))

	logger.LogPhase("naming")
	if err := c.root.walk((*sectionCompiler).nameCells); err != nil {
		return nil, err
	}
	logger.LogPhaseComplete("naming")

	logger.LogPhase("codegen")
	if err := c.root.walk((*sectionCompiler).compile); err != nil {
		return nil, err
	}
	if c.cfg.Resettable {
		c.root.compileReset()
	}
	logger.LogPhaseComplete("codegen")

	factory, err := c.compileFactory()
	if err != nil {
		return nil, err
	}

	prog = &stack.Program{
		Numeric:       c.cfg.Numeric,
		Root:          c.root.unit.Name,
		Factory:       factory.Name,
		Resettable:    c.cfg.Resettable,
		FactoryMethod: c.cfg.FactoryMethod,
	}
	_ = c.root.walk(func(s *sectionCompiler) error {
		prog.Add(s.unit)
		return nil
	})
	prog.Add(factory)

	if c.cfg.OptimizationLevel > 0 {
		optimizer.Optimize(prog, c.cfg.OptimizationLevel)
	}
	if err := stack.ValidateProgram(prog); err != nil {
		return nil, InternalError.Wrap(err, "generated code is invalid")
	}
	for _, u := range prog.Units {
		logger.LogUnit(u.Name, len(u.Routines), len(u.Fields))
	}
	return prog, nil
}

// compile emits the routines of one section's unit: the getters of its
// sub-sections, its cells and its output methods.
func (s *sectionCompiler) compile() error {
	for _, sub := range s.subs {
		if err := s.compileGetter(sub); err != nil {
			return err
		}
	}
	if err := s.compileCells(); err != nil {
		return err
	}
	for _, sub := range s.subs {
		s.compileSectionOutputs(sub)
	}
	return s.compileOutputs()
}

// outerReferences finds the cells referenced from formulas of a section
// other than their own.
func outerReferences(root *ir.Section) map[*ir.Cell]bool {
	refs := make(map[*ir.Cell]bool)
	for _, c := range root.AllCells() {
		if c.Expr == nil {
			continue
		}
		ir.Walk(c.Expr, func(n ir.Node) bool {
			if r, ok := n.(*ir.CellRef); ok && r.Cell != nil && r.Cell.Section != c.Section {
				refs[r.Cell] = true
			}
			return true
		})
	}
	return refs
}
