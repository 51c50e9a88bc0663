// Package values implements Monty's tagged Value union and every
// heap-backed record type (HeapData implementations): containers,
// temporal types, closures, cells, and the rest of §3.2/§4.3's data model.
// Inline variants are cheap to copy; everything else is a heap.HeapID
// handle. Each heap record implements Ops (type/len/bool/repr/str plus
// heap.Data's estimate_size/child_ids); eq/cmp/hash from spec §4.3's
// contract are the package-level Eq, Cmp and Hash functions.
package values

import (
	"fmt"
	"math/big"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
)

// Kind tags a Value's variant. Inline kinds carry their payload directly
// in the Value struct; Ref carries a heap.HeapID into a HeapData record.
type Kind uint8

const (
	KindNone Kind = iota
	KindEllipsis
	KindBool
	KindInt
	KindFloat
	KindInternString // inline interned string, no heap allocation
	KindFunction     // Value::Function(FunctionId) — no captures, no defaults
	KindType         // a Type tag value (the result of type(x), or a builtin exception type used bare)
	KindBuiltinFunction
	KindException // inline exception handle: type tag + optional Ref(arg)
	KindUndefined // uninitialized namespace slot sentinel
	KindRef       // heap handle
)

// Value is Monty's tagged union. It is always passed by value and is
// cheap to copy for every Kind except KindRef, where
// copying requires a heap.IncRef (see CloneWithHeap).
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Str    intern.StringID // KindInternString, KindFunction(reused as id carrier - no), KindType, KindBuiltinFunction
	FnID   intern.FunctionID
	ExcArg heap.HeapID // for KindException: optional Ref to the exception's arg value; Valid()==false means no arg
	ExcTyp ExceptionType
	TypeTag TypeTag
	Ref    heap.HeapID
	// marker carries out-of-band signals (e.g. a promoted big.Int pending
	// heap allocation) that don't fit the tagged-union Kind scheme without
	// adding a Kind solely for VM-internal bookkeeping. Never observed by
	// user-visible code; always nil on any Value that reaches a namespace
	// slot or the eval stack.
	marker any
}

// TypeTag identifies a Python-level type for KindType values and for
// type()'s return value. It is intentionally a flat closed enum (no MRO,
// per spec.md's Non-goals) rather than a class hierarchy.
type TypeTag uint8

const (
	TypeNoneType TypeTag = iota
	TypeEllipsisType
	TypeBool
	TypeInt
	TypeFloat
	TypeStr
	TypeBytes
	TypeList
	TypeTuple
	TypeNamedTuple
	TypeDict
	TypeSet
	TypeFrozenSet
	TypeRange
	TypeSlice
	TypeDate
	TypeDateTime
	TypeTimeDelta
	TypeTimeZone
	TypePath
	TypeDataclass
	TypeFunction
	TypeException
	TypeModule
	TypeIterator
	TypeCoroutine
)

var typeNames = [...]string{
	TypeNoneType: "NoneType", TypeEllipsisType: "ellipsis", TypeBool: "bool",
	TypeInt: "int", TypeFloat: "float", TypeStr: "str", TypeBytes: "bytes",
	TypeList: "list", TypeTuple: "tuple", TypeNamedTuple: "tuple",
	TypeDict: "dict", TypeSet: "set", TypeFrozenSet: "frozenset",
	TypeRange: "range", TypeSlice: "slice", TypeDate: "date",
	TypeDateTime: "datetime", TypeTimeDelta: "timedelta", TypeTimeZone: "timezone",
	TypePath: "Path", TypeDataclass: "object", TypeFunction: "function",
	TypeException: "Exception", TypeModule: "module", TypeIterator: "iterator",
	TypeCoroutine: "coroutine",
}

func (t TypeTag) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// None, Ellipsis, Undefined are the singleton inline sentinel constructors.
func None() Value      { return Value{Kind: KindNone} }
func Ellipsis() Value  { return Value{Kind: KindEllipsis} }
func Undefined() Value { return Value{Kind: KindUndefined} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func InternString(id intern.StringID) Value { return Value{Kind: KindInternString, Str: id} }
func Function(id intern.FunctionID) Value   { return Value{Kind: KindFunction, FnID: id} }
func Type(tag TypeTag) Value                { return Value{Kind: KindType, TypeTag: tag} }
func Ref(id heap.HeapID) Value              { return Value{Kind: KindRef, Ref: id} }

// CloneWithHeap returns a copy of v, incrementing the heap refcount if v
// is a Ref. Every place a Value is duplicated (assigning into a second
// slot, pushing a copy onto the eval stack) must go through this instead
// of a bare Go struct copy, or the refcount discipline in spec §4.2
// silently breaks.
func CloneWithHeap(h *heap.Heap, v Value) Value {
	if v.Kind == KindRef {
		h.IncRef(v.Ref)
	}
	if v.Kind == KindException && v.ExcArg.Valid() {
		h.IncRef(v.ExcArg)
	}
	return v
}

// DropWithHeap releases v's heap reference, if any. Every place a Value is
// discarded (a slot overwritten, a frame popped, an operand consumed by a
// binary op) must go through this.
func DropWithHeap(h *heap.Heap, v Value) {
	if v.Kind == KindRef {
		h.DecRef(v.Ref)
	}
	if v.Kind == KindException && v.ExcArg.Valid() {
		h.DecRef(v.ExcArg)
	}
}

// Ops is the per-type operation contract every HeapData implementation
// satisfies, mirroring spec §4.3. Depth guards are plain integers
// decremented by callers; an implementation that recurses (List.Repr
// formatting each element via reprOne) must thread the guard through and
// refuse below zero.
type Ops interface {
	heap.Data
	PyType() TypeTag
	Len() (int, bool) // ok=false means "no __len__"
	Bool(h *heap.Heap) bool
	// Repr appends an unambiguous representation of the receiver to dst,
	// tracking visited heap ids to break cycles with a "..." placeholder.
	Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte
	// Str appends the user-facing form; most types fall through to Repr.
	Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte
}

// FormatRepr is a convenience wrapper returning Repr's output as a string.
func FormatRepr(h *heap.Heap, v Value, in *intern.Interns) string {
	return formatWith(h, v, in, true)
}

// FormatStr is a convenience wrapper returning Str's output as a string.
func FormatStr(h *heap.Heap, v Value, in *intern.Interns) string {
	return formatWith(h, v, in, false)
}

func formatWith(h *heap.Heap, v Value, in *intern.Interns, repr bool) string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindEllipsis:
		return "Ellipsis"
	case KindUndefined:
		return "<undefined>"
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return formatFloat(v.Float)
	case KindInternString:
		if in == nil {
			return "<str>"
		}
		s := in.String(v.Str)
		if repr {
			return pyStringRepr(s)
		}
		return s
	case KindFunction:
		return fmt.Sprintf("<function %d>", v.FnID)
	case KindType:
		return fmt.Sprintf("<class '%s'>", v.TypeTag)
	case KindBuiltinFunction:
		return fmt.Sprintf("<built-in function %d>", v.Str)
	case KindException:
		return v.ExcTyp.String()
	case KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return "<invalid reference>"
		}
		ops, ok := data.(Ops)
		if !ok {
			return "<opaque>"
		}
		visited := map[heap.HeapID]bool{}
		var out []byte
		if repr {
			out = ops.Repr(h, out, visited, defaultDepthGuard)
		} else {
			out = ops.Str(h, out, visited, defaultDepthGuard)
		}
		return string(out)
	default:
		return "<?>"
	}
}

const defaultDepthGuard = 256

func pyStringRepr(s string) string {
	quote := byte('\'')
	if containsRune(s, '\'') && !containsRune(s, '"') {
		quote = '"'
	}
	out := make([]byte, 0, len(s)+2)
	out = append(out, quote)
	for _, r := range s {
		switch r {
		case rune(quote):
			out = append(out, '\\', quote)
		case '\\':
			out = append(out, '\\', '\\')
		case '\n':
			out = append(out, '\\', 'n')
		case '\t':
			out = append(out, '\\', 't')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, []byte(string(r))...)
		}
	}
	out = append(out, quote)
	return string(out)
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func formatFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	// Python always shows a decimal point or exponent for floats.
	hasDotOrExp := false
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' || c == 'n' /* nan/inf */ {
			hasDotOrExp = true
			break
		}
	}
	if !hasDotOrExp {
		s += ".0"
	}
	return s
}

// Truthy reports v's Python truthiness (spec §4.3's bool() contract).
func Truthy(h *heap.Heap, v Value) bool {
	switch v.Kind {
	case KindNone, KindUndefined:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindInternString:
		return v.Str != intern.EmptyStringID
	case KindEllipsis, KindFunction, KindType, KindBuiltinFunction, KindException:
		return true
	case KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return false
		}
		if ops, ok := data.(Ops); ok {
			return ops.Bool(h)
		}
		return true
	default:
		return true
	}
}

// FitsInt64 reports whether b fits an int64; an Int arithmetic result that
// does not promotes to a heap LongInt record instead (spec §4.3.2).
func FitsInt64(b *big.Int) bool {
	return b.IsInt64()
}
