// Package runtime supplies the small, closed set of exception
// constructors and math/builtin helpers the VM calls into — the parts of
// spec §4.3.3 and §4.4.4 that are naturally "library code" rather than
// control-flow logic that belongs in package vm. Grounded on the
// teacher's runtime/exception.go (the "one constructor per exception
// type" style, though the teacher's version builds a dynamic class
// registry for an open PHP class hierarchy; Monty's taxonomy is a closed
// flat enum per spec §4.3.3, so each constructor here is a plain
// function, not a registered class).
package runtime

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/values"
)

// NewException builds an exception Value carrying msg as its single
// string argument, allocating the backing heap String (spec §4.3.3:
// "Exception { type, arg }").
func NewException(h *heap.Heap, t values.ExceptionType, msg string) (values.Value, error) {
	id, err := h.Allocate(&values.String{V: msg})
	if err != nil {
		return values.Value{}, err
	}
	return values.Value{Kind: values.KindException, ExcTyp: t, ExcArg: id}, nil
}

// Message extracts an exception Value's string argument, or "" if it has
// none.
func Message(h *heap.Heap, exc values.Value) string {
	if exc.Kind != values.KindException || !exc.ExcArg.Valid() {
		return ""
	}
	data, err := h.Get(exc.ExcArg)
	if err != nil {
		return ""
	}
	if s, ok := data.(*values.String); ok {
		return s.V
	}
	return ""
}

// ZeroDivisionError, TypeError, etc. are thin convenience wrappers so call
// sites in package vm read like the CPython exception they raise, rather
// than a bare (type, message) pair.

func ZeroDivisionError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcZeroDivisionError, msg)
}

func TypeError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcTypeError, msg)
}

func ValueError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcValueError, msg)
}

func NameError(h *heap.Heap, name string) (values.Value, error) {
	return NewException(h, values.ExcNameError, "name '"+name+"' is not defined")
}

func AttributeError(h *heap.Heap, typeName, attr string) (values.Value, error) {
	return NewException(h, values.ExcAttributeError, "'"+typeName+"' object has no attribute '"+attr+"'")
}

func KeyError(h *heap.Heap, key string) (values.Value, error) {
	return NewException(h, values.ExcKeyError, key)
}

func IndexError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcIndexError, msg)
}

func AssertionError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcAssertionError, msg)
}

func OverflowError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcOverflowError, msg)
}

func RuntimeError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcRuntimeError, msg)
}

func StopIteration(h *heap.Heap) (values.Value, error) {
	return values.Value{Kind: values.KindException, ExcTyp: values.ExcStopIteration}, nil
}

func NotImplementedError(h *heap.Heap, msg string) (values.Value, error) {
	return NewException(h, values.ExcNotImplementedError, msg)
}
