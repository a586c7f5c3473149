package stdlib

import "time"

// Tracer receives values passing through logged expressions
type Tracer func(source, name string, value any)

// Environment carries locale and time settings of a computation
type Environment struct {
	Location *time.Location
	// Clock supplies the computation time; time.Now when nil
	Clock func() time.Time
	// DecimalSeparator used when text is parsed as a number
	DecimalSeparator rune
	Tracer           Tracer
}

// DefaultEnvironment uses UTC, the system clock and a dot separator
func DefaultEnvironment() *Environment {
	return &Environment{Location: time.UTC, DecimalSeparator: '.'}
}

// Now reads the clock
func (e *Environment) Now() time.Time {
	if e == nil || e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

// Loc is the time zone of the environment
func (e *Environment) Loc() *time.Location {
	if e == nil || e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func envOf(v any) *Environment {
	if e, ok := v.(*Environment); ok && e != nil {
		return e
	}
	return DefaultEnvironment()
}
