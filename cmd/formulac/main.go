// Package main implements the formulac binary.
//
// Philosophy: A thin driver over the compiler packages, enough to compile a
// formula against literal cells, run it and inspect the generated units.
package main

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/GriffinCanCode/formulac/pkg/compiler"
	"github.com/GriffinCanCode/formulac/pkg/frontend"
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/logger"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
	"github.com/GriffinCanCode/formulac/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "run", "list":
		if err := run(cmd, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("formulac version %s\n", version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`formulac - Compile spreadsheet formulas to stack programs

Usage:
    formulac run [options] <formula>   Compile and evaluate a formula
    formulac list [options] <formula>  Print the generated units
    formulac version                   Show compiler version
    formulac help                      Show this help message

Options:
    -numeric <type>  Numeric type: double, long:<scale>, decimal:<scale>, precision:<digits>
    -cell NAME=VALUE Bind an input cell, repeatable
    -O <level>       Optimization level (0-2, default: 1)
    -cache           Cache every caching candidate cell
    -v               Verbose output`)
}

// cellFlags collects repeated -cell options
type cellFlags map[string]string

func (c cellFlags) String() string { return fmt.Sprint(map[string]string(c)) }

func (c cellFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=VALUE, got %q", s)
	}
	c[strings.ToUpper(name)] = value
	return nil
}

func run(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	numType := fs.String("numeric", "double", "numeric type")
	level := fs.Int("O", 1, "optimization level")
	cache := fs.Bool("cache", false, "full caching")
	verbose := fs.Bool("v", false, "verbose output")
	cells := cellFlags{}
	fs.Var(cells, "cell", "input cell NAME=VALUE")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one formula, got %d arguments", fs.NArg())
	}
	if *verbose {
		logger.InitDev()
	}

	nt, err := numeric.Parse(*numType)
	if err != nil {
		return err
	}
	cfg := compiler.DefaultConfig()
	cfg.Numeric = nt
	cfg.OptimizationLevel = *level
	cfg.FullCaching = *cache

	model, inputs, err := buildModel(fs.Arg(0), cells)
	if err != nil {
		return err
	}
	prog, err := compiler.Compile(model, cfg)
	if err != nil {
		return err
	}
	if cmd == "list" {
		fmt.Print(prog.String())
		return nil
	}

	eng, err := vm.Load(prog)
	if err != nil {
		return err
	}
	c, err := eng.NewComputation(inputs)
	if err != nil {
		return err
	}
	v, err := c.Output("Result")
	if err != nil {
		var f *vm.Fault
		if errors.As(err, &f) {
			fmt.Println(f.Kind.Code())
			return nil
		}
		return err
	}
	fmt.Println(v)
	return nil
}

// buildModel binds each cell to a key of the input map and makes the formula
// the single output cell.
func buildModel(formula string, cells cellFlags) (*ir.Model, map[string]any, error) {
	root := &ir.Section{Name: "Sheet1"}
	syms := frontend.Symbols{Cells: make(map[string]*ir.Cell)}
	inputs := make(map[string]any, len(cells))

	names := make([]string, 0, len(cells))
	for name := range cells {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		raw := cells[name]
		t := ir.String
		var v any = raw
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			t, v = ir.Numeric, f
		}
		c := root.AddCell(name, t)
		c.Input = &ir.CallFrame{Method: name, Scale: -1}
		syms.Cells[name] = c
		inputs[name] = v
	}

	n, err := frontend.Parse(formula, syms)
	if err != nil {
		return nil, nil, err
	}
	result := root.AddCell("Result", n.Type()).SetExpr(n)
	out := &ir.OutputBinding{Method: "Result", Scale: -1, Result: reflect.TypeOf(0.0)}
	if n.Type() == ir.String {
		out.Result = reflect.TypeOf("")
	}
	result.Outputs = []*ir.OutputBinding{out}
	return &ir.Model{Name: "cli", Root: root, InputType: reflect.TypeOf(inputs)}, inputs, nil
}
