package compiler

import (
	"github.com/joomcode/errorx"

	"github.com/GriffinCanCode/formulac/pkg/ir"
)

// Errors is the namespace of every compile-time failure
var Errors = errorx.NewNamespace("formulac")

var (
	// UnsupportedDataType: a conversion, constant or bound type has no implementation
	UnsupportedDataType = Errors.NewType("unsupported_data_type")
	// UnsupportedExpression: an expression shape the target domain cannot compile
	UnsupportedExpression = Errors.NewType("unsupported_expression")
	// ParallelVectorsSpanDifferentSubSections: parallel fold vectors cross sections differently
	ParallelVectorsSpanDifferentSubSections = UnsupportedExpression.NewSubtype("parallel_vectors_span_different_sub_sections")
	// ReferenceToInnerCellNotAggregated: a sub-section cell used where a single value is needed
	ReferenceToInnerCellNotAggregated = Errors.NewType("reference_to_inner_cell_not_aggregated")
	// ReferenceToArrayNotAggregated: an array used where a single value is needed
	ReferenceToArrayNotAggregated = Errors.NewType("reference_to_array_not_aggregated")
	// ConstructorMissing: the output type cannot be instantiated
	ConstructorMissing = Errors.NewType("constructor_missing")
	// NameNotFound: a let variable is not bound where it is referenced
	NameNotFound = Errors.NewType("name_not_found")
	// InternalError: a broken compiler invariant
	InternalError = Errors.NewType("internal_error")
)

var (
	// PropertyExpression is the innermost expression that failed to compile
	PropertyExpression = errorx.RegisterPrintableProperty("expression")
	// PropertyCell is the cell whose formula was being compiled
	PropertyCell = errorx.RegisterPrintableProperty("cell")
)

// inExpression attaches n as the failing expression unless an inner
// expression is already attached.
func inExpression(err error, n ir.Node) error {
	if err == nil || n == nil {
		return err
	}
	if _, ok := errorx.ExtractProperty(err, PropertyExpression); ok {
		return err
	}
	return decorate(err).WithProperty(PropertyExpression, n.String())
}

// inCell attaches the cell being compiled unless a cell is already attached
func inCell(err error, c *ir.Cell) error {
	if err == nil {
		return err
	}
	if _, ok := errorx.ExtractProperty(err, PropertyCell); ok {
		return err
	}
	return errorx.Decorate(decorate(err), "in cell %s", c).WithProperty(PropertyCell, c.String())
}

func decorate(err error) *errorx.Error {
	if e := errorx.Cast(err); e != nil {
		return e
	}
	return InternalError.Wrap(err, "unexpected failure")
}

// ExpressionOf returns the expression attached to a compile error
func ExpressionOf(err error) (string, bool) {
	v, ok := errorx.ExtractProperty(err, PropertyExpression)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// CellOf returns the cell attached to a compile error
func CellOf(err error) (string, bool) {
	v, ok := errorx.ExtractProperty(err, PropertyCell)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
