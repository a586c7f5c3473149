// Package stdlib - Runtime function library for generated computations
// Design: Functions are looked up by name at link time. Each numeric domain
// registers its own variants under a prefix: f64 for doubles, i64 for scaled
// longs, dec for big decimals and str for text.
package stdlib

import (
	"sort"

	"github.com/GriffinCanCode/formulac/pkg/numeric"
)

// Context is the per-engine state every function sees
type Context struct {
	Numeric numeric.Context
}

// NewContext derives the runtime context of a numeric type
func NewContext(t numeric.Type) *Context {
	return &Context{Numeric: numeric.ContextOf(t)}
}

// Scale is the implied decimals of scaled long values
func (c *Context) Scale() int {
	if c.Numeric.Scale < 0 {
		return 0
	}
	return c.Numeric.Scale
}

// Func is a runtime function. Arguments arrive in call order.
type Func func(c *Context, args []any) (any, error)

// Registry maps function names to implementations
type Registry struct {
	funcs map[string]Func
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds or replaces a function
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Lookup finds a function by name
func (r *Registry) Lookup(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names lists the registered functions in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = func() *Registry {
	r := NewRegistry()
	registerDouble(r)
	registerLong(r)
	registerDecimal(r)
	registerStrings(r)
	registerDates(r)
	registerLookup(r)
	registerConversions(r)
	return r
}()

// Default returns the full runtime library
func Default() *Registry {
	return defaultRegistry
}
