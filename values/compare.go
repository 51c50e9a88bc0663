package values

import (
	"math/big"

	"github.com/wudi/monty/heap"
)

// Eq implements spec §4.3's structural equality contract, depth-guarded
// against malicious nesting. Cross-type comparisons are mostly false
// except for Monty's single numeric universe (int/float/bool compare by
// value, per spec §4.3.2's "hash(Int(n)) == hash(LongInt(n))" rule
// extended to equality).
func Eq(h *heap.Heap, a, b Value, depthGuard int) bool {
	if depthGuard <= 0 {
		return false
	}
	if isNumeric(a) && isNumeric(b) {
		if eq, ok := numericEq(h, a, b); ok {
			return eq
		}
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNone, KindEllipsis, KindUndefined:
		return true
	case KindInternString:
		return a.Str == b.Str
	case KindFunction:
		return a.FnID == b.FnID
	case KindType:
		return a.TypeTag == b.TypeTag
	case KindException:
		return a.ExcTyp == b.ExcTyp
	case KindRef:
		if a.Ref == b.Ref {
			return true
		}
		da, err1 := h.Get(a.Ref)
		db, err2 := h.Get(b.Ref)
		if err1 != nil || err2 != nil {
			return false
		}
		return heapEq(h, da, db, depthGuard-1)
	default:
		return false
	}
}

func isNumeric(v Value) bool {
	switch v.Kind {
	case KindInt, KindFloat, KindBool:
		return true
	case KindRef:
		return true // checked structurally below via LongInt type-assert
	}
	return false
}

// numericEq compares two numbers by value (int/bool/LongInt pairs exactly);
// ok is false when either side is not a number, e.g. a non-LongInt Ref.
func numericEq(h *heap.Heap, a, b Value) (eq, ok bool) {
	if ai, aok := asBigIntish(h, a); aok {
		if bi, bok := asBigIntish(h, b); bok {
			return ai.Cmp(bi) == 0, true
		}
	}
	af, aok := asFloat(h, a)
	bf, bok := asFloat(h, b)
	if aok && bok {
		return af == bf, true
	}
	return false, false
}

func asFloat(h *heap.Heap, v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return 0, false
		}
		if li, ok := data.(*LongInt); ok {
			f := new(big.Float).SetInt(li.V)
			r, _ := f.Float64()
			return r, true
		}
	}
	return 0, false
}

func heapEq(h *heap.Heap, a, b heap.Data, depthGuard int) bool {
	switch av := a.(type) {
	case *LongInt:
		bv, ok := b.(*LongInt)
		return ok && av.V.Cmp(bv.V) == 0
	case *String:
		bv, ok := b.(*String)
		return ok && av.V == bv.V
	case *Bytes:
		bv, ok := b.(*Bytes)
		return ok && string(av.V) == string(bv.V)
	case *List:
		bv, ok := b.(*List)
		return ok && eqSeq(h, av.Items, bv.Items, depthGuard)
	case *Tuple:
		bv, ok := b.(*Tuple)
		return ok && eqSeq(h, av.Items, bv.Items, depthGuard)
	case *Set:
		bv, ok := b.(*Set)
		return ok && av.Frozen == bv.Frozen && eqSetMembers(h, av, bv, depthGuard)
	case *Dict:
		bv, ok := b.(*Dict)
		return ok && eqDict(h, av, bv, depthGuard)
	case *Range:
		bv, ok := b.(*Range)
		return ok && *av == *bv
	case *TimeDelta:
		bv, ok := b.(*TimeDelta)
		return ok && av.totalMicroseconds() == bv.totalMicroseconds()
	case *TimeZone:
		bv, ok := b.(*TimeZone)
		return ok && av.OffsetSeconds == bv.OffsetSeconds
	case *Date:
		bv, ok := b.(*Date)
		return ok && *av == *bv
	case *DateTime:
		bv, ok := b.(*DateTime)
		return ok && dateTimeEq(av, bv)
	default:
		return a == b
	}
}

func eqSeq(h *heap.Heap, a, b []Value, depthGuard int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Eq(h, a[i], b[i], depthGuard) {
			return false
		}
	}
	return true
}

func eqSetMembers(h *heap.Heap, a, b *Set, depthGuard int) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for _, av := range a.Items {
		found := false
		for _, bv := range b.Items {
			if Eq(h, av, bv, depthGuard) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func eqDict(h *heap.Heap, a, b *Dict, depthGuard int) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for _, ae := range a.Entries {
		found := false
		for _, be := range b.Entries {
			if Eq(h, ae.Key, be.Key, depthGuard) && Eq(h, ae.Value, be.Value, depthGuard) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Ordering mirrors cmp()'s three-way result; Unordered means the types
// cannot be compared (spec §4.3: "cross-type comparisons are unordered").
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Cmp implements spec §4.3's total order within a type. Returns
// (ordering, true) when comparable, (_, false) when unordered.
func Cmp(h *heap.Heap, a, b Value, depthGuard int) (Ordering, bool) {
	if depthGuard <= 0 {
		return 0, false
	}
	if isNumeric(a) && isNumeric(b) {
		af, aok := asFloat(h, a)
		bf, bok := asFloat(h, b)
		if aok && bok {
			switch {
			case af < bf:
				return Less, true
			case af > bf:
				return Greater, true
			default:
				return Equal, true
			}
		}
	}
	if a.Kind == KindInternString && b.Kind == KindInternString {
		return 0, false // caller resolves via Interns; string-to-string compare needs the table
	}
	if a.Kind == KindRef && b.Kind == KindRef {
		da, err1 := h.Get(a.Ref)
		db, err2 := h.Get(b.Ref)
		if err1 == nil && err2 == nil {
			return heapCmp(h, da, db, depthGuard-1)
		}
	}
	return 0, false
}

func heapCmp(h *heap.Heap, a, b heap.Data, depthGuard int) (Ordering, bool) {
	switch av := a.(type) {
	case *String:
		bv, ok := b.(*String)
		if !ok {
			return 0, false
		}
		return stringCmp(av.V, bv.V), true
	case *Bytes:
		bv, ok := b.(*Bytes)
		if !ok {
			return 0, false
		}
		return bytesCmp(av.V, bv.V), true
	case *Tuple:
		bv, ok := b.(*Tuple)
		if !ok {
			return 0, false
		}
		return seqCmp(h, av.Items, bv.Items, depthGuard)
	case *List:
		bv, ok := b.(*List)
		if !ok {
			return 0, false
		}
		return seqCmp(h, av.Items, bv.Items, depthGuard)
	case *LongInt:
		bv, ok := b.(*LongInt)
		if !ok {
			return 0, false
		}
		return Ordering(av.V.Cmp(bv.V)), true
	case *Date:
		bv, ok := b.(*Date)
		if !ok {
			return 0, false
		}
		return int64Cmp(av.Ordinal(), bv.Ordinal()), true
	case *DateTime:
		bv, ok := b.(*DateTime)
		// spec §4.3.1: aware and naive datetimes are never comparable;
		// same-awareness ordering compares UTC-normalized instants.
		if !ok || av.Aware() != bv.Aware() {
			return 0, false
		}
		return int64Cmp(av.utcMicros(), bv.utcMicros()), true
	default:
		return 0, false
	}
}

func int64Cmp(a, b int64) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func stringCmp(a, b string) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

func bytesCmp(a, b []byte) Ordering {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return Less
			}
			return Greater
		}
	}
	switch {
	case len(a) < len(b):
		return Less
	case len(a) > len(b):
		return Greater
	default:
		return Equal
	}
}

func seqCmp(h *heap.Heap, a, b []Value, depthGuard int) (Ordering, bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if Eq(h, a[i], b[i], depthGuard) {
			continue
		}
		return Cmp(h, a[i], b[i], depthGuard)
	}
	switch {
	case len(a) < len(b):
		return Less, true
	case len(a) > len(b):
		return Greater, true
	default:
		return Equal, true
	}
}

// Hash produces a 64-bit hash consistent with Eq (spec §4.3). Mutable
// types (list/dict/set) are unhashable. Hash also returns (0, false) for
// inline kinds other than None/Bool/Int/Float/InternString and for heap
// records other than String, Bytes, Tuple, LongInt, TimeDelta and
// TimeZone (e.g. Date, DateTime, Path, NamedTuple), even though Hashable
// reports those as hashable.
func Hash(h *heap.Heap, v Value) (uint64, bool) {
	switch v.Kind {
	case KindNone:
		return 0, true
	case KindBool:
		if v.Bool {
			return fnv1a(1), true
		}
		return fnv1a(0), true
	case KindInt:
		return fnv1a(uint64(v.Int)), true
	case KindFloat:
		if v.Float == float64(int64(v.Float)) {
			return fnv1a(uint64(int64(v.Float))), true
		}
		return fnv1aBytes([]byte{byte(int64(v.Float))}), true
	case KindInternString:
		return fnv1a(uint64(v.Str)), true
	case KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return 0, false
		}
		switch d := data.(type) {
		case *String:
			return hashString(d.V), true
		case *Bytes:
			return fnv1aBytes(d.V), true
		case *Tuple:
			return hashSeq(h, d.Items)
		case *LongInt:
			return fnv1aBytes(d.V.Bytes()), true
		case *TimeDelta:
			return fnv1a(uint64(d.totalMicroseconds())), true
		case *TimeZone:
			return fnv1a(uint64(d.OffsetSeconds)), true
		default:
			return 0, false
		}
	}
	return 0, false
}

// Hashable reports whether v can be used as a dict key / set member.
func Hashable(h *heap.Heap, v Value) bool {
	if v.Kind == KindRef {
		data, err := h.Get(v.Ref)
		if err != nil {
			return false
		}
		switch data.(type) {
		case *List, *Dict, *Set:
			return false
		}
	}
	return true
}

func hashString(s string) uint64 {
	return fnv1aBytes([]byte(s))
}

func hashSeq(h *heap.Heap, items []Value) (uint64, bool) {
	acc := uint64(14695981039346656037)
	for _, v := range items {
		hv, ok := Hash(h, v)
		if !ok {
			return 0, false
		}
		acc ^= hv
		acc *= 1099511628211
	}
	return acc, true
}

func fnv1a(n uint64) uint64 {
	h := uint64(14695981039346656037)
	for i := 0; i < 8; i++ {
		h ^= (n >> (8 * i)) & 0xff
		h *= 1099511628211
	}
	return h
}

func fnv1aBytes(b []byte) uint64 {
	h := uint64(14695981039346656037)
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}
