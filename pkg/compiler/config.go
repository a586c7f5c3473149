package compiler

import (
	"github.com/GriffinCanCode/formulac/pkg/ir"
	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

// Config selects what a compilation produces
type Config struct {
	// Numeric is the single numeric domain of the program
	Numeric numeric.Type
	// FullCaching memoizes every caching candidate cell
	FullCaching bool
	// Resettable gives the root unit a reset routine
	Resettable bool
	// FactoryMethod is an optional extra name for newComputation
	FactoryMethod string
	// OutputType overrides the model's output type
	OutputType *ir.OutputType
	// OptimizationLevel 0 disables the peephole passes
	OptimizationLevel int
	// ComputationListener emits trace calls for logging nodes
	ComputationListener bool
}

// DefaultConfig compiles doubles without caching at optimization level 1
func DefaultConfig() Config {
	return Config{
		Numeric:           numeric.Double,
		OptimizationLevel: 1,
	}
}

// Validate rejects configurations no program can be built for
func (c Config) Validate() error {
	if err := c.Numeric.Validate(); err != nil {
		return UnsupportedDataType.Wrap(err, "invalid numeric type %s", c.Numeric)
	}
	if c.OptimizationLevel < 0 || c.OptimizationLevel > 2 {
		return UnsupportedExpression.New("optimization level %d out of range 0..2", c.OptimizationLevel)
	}
	return nil
}
