package values

import (
	"math/big"

	"github.com/wudi/monty/heap"
)

// LongInt is the arbitrary-precision heap fallback for Int arithmetic that
// overflows int64 (spec §4.3.2). Ints demote back to the inline KindInt
// the moment they fit again — LongInt is never kept around "just in case".
type LongInt struct {
	V *big.Int
}

func (l *LongInt) PyType() TypeTag { return TypeInt }
func (l *LongInt) Len() (int, bool) { return 0, false }
func (l *LongInt) Bool(h *heap.Heap) bool { return l.V.Sign() != 0 }
func (l *LongInt) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, l.V.String()...)
}
func (l *LongInt) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return l.Repr(h, dst, visited, depthGuard)
}
func (l *LongInt) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (l *LongInt) EstimateSize() int                        { return 16 + (len(l.V.Bits()) * 8) }

// String is a heap-allocated (non-interned, i.e. runtime-constructed)
// Python string. Short literal strings are typically KindInternString
// instead; String backs concatenation results, formatting output, etc.
type String struct {
	V string
}

func (s *String) PyType() TypeTag { return TypeStr }
func (s *String) Len() (int, bool) { return len([]rune(s.V)), true }
func (s *String) Bool(h *heap.Heap) bool { return len(s.V) != 0 }
func (s *String) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, pyStringRepr(s.V)...)
}
func (s *String) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, s.V...)
}
func (s *String) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (s *String) EstimateSize() int                        { return 24 + len(s.V) }

// Bytes is the heap bytes literal/record type.
type Bytes struct {
	V []byte
}

func (b *Bytes) PyType() TypeTag { return TypeBytes }
func (b *Bytes) Len() (int, bool) { return len(b.V), true }
func (b *Bytes) Bool(h *heap.Heap) bool { return len(b.V) != 0 }
func (b *Bytes) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	dst = append(dst, "b'"...)
	for _, c := range b.V {
		switch {
		case c == '\'':
			dst = append(dst, '\\', '\'')
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c >= 0x20 && c < 0x7f:
			dst = append(dst, c)
		default:
			dst = append(dst, []byte{'\\', 'x', hexDigit(c >> 4), hexDigit(c & 0xf)}...)
		}
	}
	return append(dst, '\'')
}
func (b *Bytes) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return b.Repr(h, dst, visited, depthGuard)
}
func (b *Bytes) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (b *Bytes) EstimateSize() int                         { return 24 + len(b.V) }

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + (n - 10)
}

// List is a mutable, ordered, resizable container.
type List struct {
	Items []Value
	// ModCount is bumped on every structural mutation (append/pop/insert/
	// clear/extend/item-assign that changes length), so an in-progress
	// for-iteration can detect "container mutated during iteration"
	// (spec §4.4.2) by comparing a snapshot taken at loop entry.
	ModCount uint64
}

func (l *List) PyType() TypeTag { return TypeList }
func (l *List) Len() (int, bool) { return len(l.Items), true }
func (l *List) Bool(h *heap.Heap) bool { return len(l.Items) != 0 }
func (l *List) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return reprSeq(h, dst, visited, depthGuard, l.Items, '[', ']', false)
}
func (l *List) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return l.Repr(h, dst, visited, depthGuard)
}
func (l *List) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range l.Items {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (l *List) EstimateSize() int { return 24 + 16*len(l.Items) }

func (l *List) Append(h *heap.Heap, v Value) {
	l.Items = append(l.Items, v)
	l.ModCount++
}

// Tuple is an immutable, ordered container.
type Tuple struct {
	Items []Value
}

func (t *Tuple) PyType() TypeTag { return TypeTuple }
func (t *Tuple) Len() (int, bool) { return len(t.Items), true }
func (t *Tuple) Bool(h *heap.Heap) bool { return len(t.Items) != 0 }
func (t *Tuple) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	if len(t.Items) == 1 {
		dst = append(dst, '(')
		dst = reprOne(h, dst, visited, depthGuard, t.Items[0])
		return append(dst, ',', ')')
	}
	return reprSeq(h, dst, visited, depthGuard, t.Items, '(', ')', false)
}
func (t *Tuple) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return t.Repr(h, dst, visited, depthGuard)
}
func (t *Tuple) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range t.Items {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (t *Tuple) EstimateSize() int { return 24 + 16*len(t.Items) }

// dictEntry preserves insertion order (spec §3.2 "insertion-ordered").
type dictEntry struct {
	Key   Value
	Value Value
}

// Dict is an insertion-ordered key→value map. Key equality/hash follow
// Ops.Eq/Hash, not Go map semantics, so a secondary index keyed by a
// comparable hash-bucket proxy is used underneath (see hashKey).
type Dict struct {
	Entries []dictEntry
	index   map[hashKey]int // key-hash -> index into Entries
	ModCount uint64
}

// hashKey is a comparable proxy good enough to bucket Monty Values that
// are legal dict keys (every inline kind, plus Ref which buckets by
// heap id — exact equality within a bucket is re-checked structurally by
// the caller since two distinct heap ids can be equal, e.g. two
// equal-content tuples).
type hashKey struct {
	kind Kind
	i    int64
	f    float64
	s    uint32
}

func keyOf(v Value) hashKey {
	switch v.Kind {
	case KindInt:
		return hashKey{kind: KindInt, i: v.Int}
	case KindFloat:
		return hashKey{kind: KindInt, i: int64(v.Float), f: v.Float}
	case KindBool:
		b := int64(0)
		if v.Bool {
			b = 1
		}
		return hashKey{kind: KindInt, i: b}
	case KindInternString:
		return hashKey{kind: KindInternString, s: uint32(v.Str)}
	case KindNone:
		return hashKey{kind: KindNone}
	default:
		return hashKey{kind: v.Kind, i: int64(v.Ref.Index())}
	}
}

func (d *Dict) PyType() TypeTag { return TypeDict }
func (d *Dict) Len() (int, bool) { return len(d.Entries), true }
func (d *Dict) Bool(h *heap.Heap) bool { return len(d.Entries) != 0 }
func (d *Dict) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	dst = append(dst, '{')
	for i, e := range d.Entries {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = reprOne(h, dst, visited, depthGuard, e.Key)
		dst = append(dst, ": "...)
		dst = reprOne(h, dst, visited, depthGuard, e.Value)
	}
	return append(dst, '}')
}
func (d *Dict) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return d.Repr(h, dst, visited, depthGuard)
}
func (d *Dict) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, e := range d.Entries {
		if e.Key.Kind == KindRef {
			dst = append(dst, e.Key.Ref)
		}
		if e.Value.Kind == KindRef {
			dst = append(dst, e.Value.Ref)
		}
	}
	return dst
}
func (d *Dict) EstimateSize() int { return 32 + 48*len(d.Entries) }

// Set is an insertion-ordered set of unique elements (insertion order
// matters for iteration per spec §4.4.2, even though Python's real set has
// no guaranteed order — Monty fixes insertion order for determinism,
// matching the teacher's emphasis on deterministic resource-bounded
// execution).
type Set struct {
	Items  []Value
	Frozen bool
	ModCount uint64
}

func (s *Set) PyType() TypeTag {
	if s.Frozen {
		return TypeFrozenSet
	}
	return TypeSet
}
func (s *Set) Len() (int, bool) { return len(s.Items), true }
func (s *Set) Bool(h *heap.Heap) bool { return len(s.Items) != 0 }
func (s *Set) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	if len(s.Items) == 0 {
		if s.Frozen {
			return append(dst, "frozenset()"...)
		}
		return append(dst, "set()"...)
	}
	if s.Frozen {
		dst = append(dst, "frozenset("...)
		dst = reprSeq(h, dst, visited, depthGuard, s.Items, '{', '}', false)
		return append(dst, ')')
	}
	return reprSeq(h, dst, visited, depthGuard, s.Items, '{', '}', false)
}
func (s *Set) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return s.Repr(h, dst, visited, depthGuard)
}
func (s *Set) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range s.Items {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (s *Set) EstimateSize() int { return 24 + 16*len(s.Items) }

// Range is the (start, stop, step) lazy integer sequence.
type Range struct {
	Start, Stop, Step int64
}

func (r *Range) PyType() TypeTag { return TypeRange }
func (r *Range) Len() (int, bool) {
	n := rangeLen(r.Start, r.Stop, r.Step)
	return n, true
}
func (r *Range) Bool(h *heap.Heap) bool { return rangeLen(r.Start, r.Stop, r.Step) != 0 }
func (r *Range) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	s := "range(" + itoa(r.Start) + ", " + itoa(r.Stop)
	if r.Step != 1 {
		s += ", " + itoa(r.Step)
	}
	return append(dst, (s + ")")...)
}
func (r *Range) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return r.Repr(h, dst, visited, depthGuard)
}
func (r *Range) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (r *Range) EstimateSize() int                         { return 32 }

func rangeLen(start, stop, step int64) int {
	if step == 0 {
		return 0
	}
	if step > 0 {
		if stop <= start {
			return 0
		}
		return int((stop - start + step - 1) / step)
	}
	if stop >= start {
		return 0
	}
	return int((start - stop - step - 1) / (-step))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Slice is the slice(start, stop, step) object, all components optional
// (represented as Undefined when omitted).
type Slice struct {
	Start, Stop, Step Value
}

func (s *Slice) PyType() TypeTag { return TypeSlice }
func (s *Slice) Len() (int, bool) { return 0, false }
func (s *Slice) Bool(h *heap.Heap) bool { return true }
func (s *Slice) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	dst = append(dst, "slice("...)
	dst = reprOne(h, dst, visited, depthGuard, s.Start)
	dst = append(dst, ", "...)
	dst = reprOne(h, dst, visited, depthGuard, s.Stop)
	dst = append(dst, ", "...)
	dst = reprOne(h, dst, visited, depthGuard, s.Step)
	return append(dst, ')')
}
func (s *Slice) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return s.Repr(h, dst, visited, depthGuard)
}
func (s *Slice) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range [3]Value{s.Start, s.Stop, s.Step} {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (s *Slice) EstimateSize() int { return 48 }

func reprSeq(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int, items []Value, open, close byte, forceTrailingComma bool) []byte {
	dst = append(dst, open)
	for i, v := range items {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = reprOne(h, dst, visited, depthGuard, v)
	}
	dst = append(dst, close)
	return dst
}

// reprOne formats a single element value, routing through the shared
// cycle-detection visited set and depth guard (spec §4.3's repr_fmt
// contract: self-referential containers print "...").
func reprOne(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int, v Value) []byte {
	if depthGuard <= 0 {
		return append(dst, "..."...)
	}
	if v.Kind == KindRef {
		if visited[v.Ref] {
			return append(dst, "..."...)
		}
		data, err := h.Get(v.Ref)
		if err != nil {
			return append(dst, "<invalid>"...)
		}
		ops, ok := data.(Ops)
		if !ok {
			return append(dst, "<opaque>"...)
		}
		visited[v.Ref] = true
		dst = ops.Repr(h, dst, visited, depthGuard-1)
		delete(visited, v.Ref)
		return dst
	}
	return append(dst, FormatRepr(h, v, nil)...)
}
