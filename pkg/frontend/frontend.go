// Package frontend implements formula parsing into the expression IR.
//
// Design: Minimal, focused on correctness. The efp tokenizer splits the
// formula text; a predictive parser applies spreadsheet operator precedence
// and resolves names against the cells and arrays of a model.
package frontend

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/formulac/pkg/ir"
)

// Symbols resolves the names a formula references
type Symbols struct {
	// Cells maps cell names such as A1 to cells
	Cells map[string]*ir.Cell
	// Arrays maps defined names and ranges such as B1:B3 to arrays
	Arrays map[string]*ir.ArrayRef
}

// Parse parses formula text, with or without a leading '=', into an IR
// expression.
func Parse(text string, syms Symbols) (ir.Node, error) {
	return NewParser(text, syms).Parse()
}

// folds maps aggregate functions to the fold they apply
var folds = map[string]func() *ir.Fold{
	"SUM":     ir.SumFold,
	"PRODUCT": ir.ProductFold,
	"MIN":     ir.MinFold,
	"MAX":     ir.MaxFold,
	"AVERAGE": ir.AverageFold,
	"COUNT":   ir.CountFold,
}

var cellName = regexp.MustCompile(`^\$?([A-Za-z]{1,3})\$?([0-9]+)$`)

// splitCell splits A12 into the column number 1 and the row 12
func splitCell(name string) (col, row int, ok bool) {
	m := cellName.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	for _, r := range strings.ToUpper(m[1]) {
		col = col*26 + int(r-'A'+1)
	}
	row, err := strconv.Atoi(m[2])
	return col, row, err == nil
}

func columnName(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// resolve finds the cell or array a name denotes. A range of known cells
// becomes a row-major array of references.
func (s Symbols) resolve(name string) (ir.Node, bool) {
	key := strings.ToUpper(strings.ReplaceAll(name, "$", ""))
	if c, ok := s.Cells[key]; ok {
		return ir.Ref(c), true
	}
	if a, ok := s.Arrays[key]; ok {
		return a, true
	}
	from, to, found := strings.Cut(key, ":")
	if !found {
		return nil, false
	}
	c0, r0, ok0 := splitCell(from)
	c1, r1, ok1 := splitCell(to)
	if !ok0 || !ok1 || c1 < c0 || r1 < r0 {
		return nil, false
	}
	var elts []ir.Node
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			cell, ok := s.Cells[columnName(c)+strconv.Itoa(r)]
			if !ok {
				return nil, false
			}
			elts = append(elts, ir.Ref(cell))
		}
	}
	return ir.Array(key, r1-r0+1, c1-c0+1, elts...), true
}
