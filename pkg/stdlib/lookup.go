// Lookup functions and container access
package stdlib

import (
	"github.com/shopspring/decimal"

	"github.com/GriffinCanCode/formulac/pkg/interop"
)

// MatchType selects how MATCH searches its array
type MatchType int

const (
	MatchDescending MatchType = -1
	MatchExact      MatchType = 0
	MatchAscending  MatchType = 1
)

// Match returns the 1-based position of v in arr. Ascending finds the last
// element not greater than v in an ascending array, descending the last
// element not less than v in a descending one.
func Match(v any, arr []any, typ MatchType, cmp func(a, b any) int) (int, error) {
	found := 0
	for i, e := range arr {
		c := cmp(e, v)
		switch typ {
		case MatchExact:
			if c == 0 {
				return i + 1, nil
			}
		case MatchAscending:
			if c > 0 {
				return matched(found)
			}
			found = i + 1
		case MatchDescending:
			if c < 0 {
				return matched(found)
			}
			found = i + 1
		}
	}
	if typ == MatchExact {
		return 0, NewFault(NotAvailable, "value not found")
	}
	return matched(found)
}

func matched(pos int) (int, error) {
	if pos == 0 {
		return 0, NewFault(NotAvailable, "value not found")
	}
	return pos, nil
}

func cmpF64(a, b any) int {
	x, y := a.(float64), b.(float64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpI64(a, b any) int {
	x, y := a.(int64), b.(int64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpDec(a, b any) int { return a.(decimal.Decimal).Cmp(b.(decimal.Decimal)) }

func cmpStr(a, b any) int { return CompareIgnoreCase(a.(string), b.(string)) }

func registerLookup(r *Registry) {
	match := func(name string, cmp func(a, b any) int, withEnv bool) {
		r.Register(name, func(_ *Context, a []any) (any, error) {
			if withEnv {
				a = a[1:]
			}
			return Match(a[0], a[1].([]any), MatchType(num(a, 2)), cmp)
		})
	}
	match("f64.MATCH", cmpF64, false)
	match("i64.MATCH", cmpI64, false)
	match("dec.MATCH", cmpDec, false)
	match("str.MATCH", cmpStr, false)
	match("str.MATCHenv", cmpStr, true)

	r.Register("obj.equals", func(_ *Context, a []any) (any, error) {
		return interop.Equal(a[0], a[1]), nil
	})

	r.Register("container.array", func(_ *Context, a []any) (any, error) {
		return interop.ArrayElements(a[0])
	})
	r.Register("container.collection", func(_ *Context, a []any) (any, error) {
		return interop.CollectionElements(a[0].(interop.Collection)), nil
	})
	r.Register("container.iterable", func(_ *Context, a []any) (any, error) {
		return orEmpty(interop.Drain(a[0].(interop.Iterable).Iterator())), nil
	})
	r.Register("container.iterator", func(_ *Context, a []any) (any, error) {
		return orEmpty(interop.Drain(a[0].(interop.Iterator))), nil
	})
	for _, shape := range []string{"list", "collection", "iterator"} {
		shape := shape
		r.Register("shape."+shape, func(_ *Context, a []any) (any, error) {
			return interop.Wrap(a[0].([]any), shape), nil
		})
	}

	r.Register("trace", func(_ *Context, a []any) (any, error) {
		env := envOf(a[0])
		if env.Tracer != nil {
			env.Tracer(a[2].(string), a[3].(string), a[1])
		}
		return a[1], nil
	})
	r.Register("error.raise", func(_ *Context, a []any) (any, error) {
		code := a[0].(string)
		return nil, NewFault(KindOfCode(code), "%s", code)
	})
}

func orEmpty(elts []any) []any {
	if elts == nil {
		return []any{}
	}
	return elts
}
