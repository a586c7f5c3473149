// Container protocols for repeating sections
package interop

import (
	"github.com/goccy/go-reflect"
	"github.com/pkg/errors"
)

// Iterator yields elements until exhausted
type Iterator interface {
	Next() (any, bool)
}

// Iterable produces a fresh iterator
type Iterable interface {
	Iterator() Iterator
}

// Collection is an iterable that knows its size
type Collection interface {
	Iterable
	Len() int
}

// Shape classifies a container bound to a repeating section
type Shape int

const (
	ShapeNull Shape = iota
	ShapeArray
	ShapeCollection
	ShapeIterable
	ShapeIterator
	ShapeUnsupported
)

func (s Shape) String() string {
	switch s {
	case ShapeNull:
		return "null"
	case ShapeArray:
		return "array"
	case ShapeCollection:
		return "collection"
	case ShapeIterable:
		return "iterable"
	case ShapeIterator:
		return "iterator"
	}
	return "unsupported"
}

// ShapeOf classifies v by capability. Collections are checked before
// iterables, iterables before iterators.
func ShapeOf(v any) Shape {
	if v == nil {
		return ShapeNull
	}
	switch v.(type) {
	case []any:
		return ShapeArray
	case Collection:
		return ShapeCollection
	case Iterable:
		return ShapeIterable
	case Iterator:
		return ShapeIterator
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return ShapeNull
		}
		return ShapeArray
	case reflect.Array:
		return ShapeArray
	case reflect.Ptr:
		if rv.IsNil() {
			return ShapeNull
		}
	}
	return ShapeUnsupported
}

// ArrayElements copies a slice or array into a fresh []any
func ArrayElements(v any) ([]any, error) {
	if elts, ok := v.([]any); ok {
		return append([]any(nil), elts...), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Errorf("interop: %T is not an array", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// CollectionElements reads a sized collection into an array of its size
func CollectionElements(c Collection) []any {
	out := make([]any, 0, c.Len())
	it := c.Iterator()
	for len(out) < cap(out) {
		v, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Drain reads the remaining elements of an iterator
func Drain(it Iterator) []any {
	var out []any
	for {
		v, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// Elements reads any supported container into a fresh array. A null
// container yields an empty array.
func Elements(v any) ([]any, error) {
	switch ShapeOf(v) {
	case ShapeNull:
		return []any{}, nil
	case ShapeArray:
		return ArrayElements(v)
	case ShapeCollection:
		return CollectionElements(v.(Collection)), nil
	case ShapeIterable:
		return Drain(v.(Iterable).Iterator()), nil
	case ShapeIterator:
		return Drain(v.(Iterator)), nil
	}
	return nil, errors.Errorf("interop: unsupported container %T", v)
}

// List exposes section instances as a sized collection with random access
type List struct {
	elts []any
}

// NewList wraps elts without copying
func NewList(elts []any) *List {
	return &List{elts: elts}
}

func (l *List) Len() int          { return len(l.elts) }
func (l *List) At(i int) any      { return l.elts[i] }
func (l *List) Slice() []any      { return l.elts }
func (l *List) Iterator() Iterator { return NewIterator(l.elts) }

// SliceIterator iterates over a fixed array
type SliceIterator struct {
	elts []any
	pos  int
}

// NewIterator iterates over elts
func NewIterator(elts []any) *SliceIterator {
	return &SliceIterator{elts: elts}
}

func (it *SliceIterator) Next() (any, bool) {
	if it.pos >= len(it.elts) {
		return nil, false
	}
	v := it.elts[it.pos]
	it.pos++
	return v, true
}

// Wrap exposes elts in the requested output shape
func Wrap(elts []any, shape string) any {
	switch shape {
	case "list", "collection":
		return NewList(elts)
	case "iterator":
		return NewIterator(elts)
	}
	return elts
}
