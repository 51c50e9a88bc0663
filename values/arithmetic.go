package values

import (
	"math"
	"math/big"

	"github.com/wudi/monty/heap"
)

// BinOp identifies which arithmetic method to dispatch, mirroring spec
// §4.3's method list. OpAdd is the only operator with an in-place form
// (IAdd); every other operator exists only as the non-mutating BinOp.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMult
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLShift
	OpRShift
)

// Arith evaluates a binary arithmetic op. Per spec §4.3: (v, true, nil) on
// success, (_, false, nil) when the type combination is unsupported (the
// VM synthesizes TypeError from this), or (_, _, err) for an arithmetic
// error (division by zero, overflow) that must propagate as a Python
// exception instead.
func Arith(h *heap.Heap, op BinOp, a, b Value) (Value, bool, error) {
	if av, aok := asBigIntish(h, a); aok {
		if bv, bok := asBigIntish(h, b); bok {
			return arithInt(op, av, bv)
		}
	}
	if af, aok := asNumericFloat(h, a, b); aok {
		return arithFloat(op, af.a, af.b)
	}
	if op == OpAdd {
		if v, ok := arithConcat(h, a, b); ok {
			return v, true, nil
		}
	}
	if op == OpMult {
		if v, ok := arithRepeat(h, a, b); ok {
			return v, true, nil
		}
	}
	if v, ok, err := arithTemporal(h, op, a, b); ok || err != nil {
		return v, ok, err
	}
	return Value{}, false, nil
}

type floatPair struct{ a, b float64 }

// asNumericFloat promotes a,b to float64 when at least one is a Float and
// both are numeric (int/float/bool) — CPython's int-float mixed-arithmetic
// rule.
func asNumericFloat(h *heap.Heap, a, b Value) (floatPair, bool) {
	if !isPlainNumeric(a) || !isPlainNumeric(b) {
		return floatPair{}, false
	}
	if a.Kind != KindFloat && b.Kind != KindFloat {
		return floatPair{}, false
	}
	af, _ := asFloat(h, a)
	bf, _ := asFloat(h, b)
	return floatPair{af, bf}, true
}

func isPlainNumeric(v Value) bool {
	switch v.Kind {
	case KindInt, KindFloat, KindBool:
		return true
	}
	return false
}

// asBigIntish returns a's value as *big.Int for Int/Bool/LongInt, so
// int-int arithmetic (including the cases that may promote to LongInt) is
// handled uniformly.
func asBigIntish(h *heap.Heap, v Value) (*big.Int, bool) {
	switch v.Kind {
	case KindInt:
		return big.NewInt(v.Int), true
	case KindBool:
		n := int64(0)
		if v.Bool {
			n = 1
		}
		return big.NewInt(n), true
	case KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return nil, false
		}
		if li, ok := data.(*LongInt); ok {
			return li.V, true
		}
	}
	return nil, false
}

func arithInt(op BinOp, a, b *big.Int) (Value, bool, error) {
	r := new(big.Int)
	switch op {
	case OpAdd:
		r.Add(a, b)
	case OpSub:
		r.Sub(a, b)
	case OpMult:
		r.Mul(a, b)
	case OpFloorDiv:
		if b.Sign() == 0 {
			return Value{}, true, zeroDivisionError("integer division or modulo by zero")
		}
		return normalizeInt(floorDivBig(a, b)), true, nil
	case OpMod:
		if b.Sign() == 0 {
			return Value{}, true, zeroDivisionError("integer modulo by zero")
		}
		return normalizeInt(modBig(a, b)), true, nil
	case OpPow:
		if b.Sign() < 0 {
			af := new(big.Float).SetInt(a)
			bf := new(big.Float).SetInt(b)
			return arithFloat(OpPow, mustFloat64(af), mustFloat64(bf))
		}
		r.Exp(a, b, nil)
	case OpDiv:
		if b.Sign() == 0 {
			return Value{}, true, zeroDivisionError("division by zero")
		}
		af := new(big.Float).SetInt(a)
		bf := new(big.Float).SetInt(b)
		qf := new(big.Float).Quo(af, bf)
		f, _ := qf.Float64()
		return Float(f), true, nil
	case OpBitAnd:
		r.And(a, b)
	case OpBitOr:
		r.Or(a, b)
	case OpBitXor:
		r.Xor(a, b)
	case OpLShift:
		if !b.IsInt64() || b.Sign() < 0 {
			return Value{}, true, valueError("negative shift count")
		}
		r.Lsh(a, uint(b.Int64()))
	case OpRShift:
		if !b.IsInt64() || b.Sign() < 0 {
			return Value{}, true, valueError("negative shift count")
		}
		r.Rsh(a, uint(b.Int64()))
	default:
		return Value{}, false, nil
	}
	return normalizeInt(r), true, nil
}

func floorDivBig(a, b *big.Int) *big.Int {
	q, m := new(big.Int), new(big.Int)
	q.DivMod(a, b, m)
	if b.Sign() < 0 && m.Sign() != 0 {
		q.Sub(q, big.NewInt(1))
	}
	return q
}

// modBig implements Python's % (result takes the divisor's sign).
// big.Int.Mod always returns the non-negative Euclidean remainder
// (0 <= m < |b|); when b is negative, Python wants that shifted down by
// |b| whenever it's nonzero.
func modBig(a, b *big.Int) *big.Int {
	m := new(big.Int).Mod(a, b)
	if b.Sign() < 0 && m.Sign() != 0 {
		m.Add(m, b)
	}
	return m
}

func mustFloat64(f *big.Float) float64 {
	v, _ := f.Float64()
	return v
}

// normalizeInt demotes a *big.Int back to the inline KindInt the instant it
// fits (spec §4.3.2); LongInt values constructed this way are always
// allocated fresh by the caller (the VM): for the promoted case
// normalizeInt returns a marker the VM recognizes via IsPromotedBigInt.
func normalizeInt(r *big.Int) Value {
	if r.IsInt64() {
		return Int(r.Int64())
	}
	return PromotedBigInt(r)
}

// bigIntMarker is a package-private sentinel carried in a Value's marker
// field so the VM can detect "this needs heap allocation". Arith's integer
// and temporal paths only read from the heap and leave allocating their
// result to the VM; string/bytes/list/tuple concatenation and repetition
// allocate their result inside Arith.
type bigIntMarker struct{ v *big.Int }

// PromotedBigInt wraps a big.Int that overflowed int64 so vm.execBinOp can
// allocate the LongInt heap record itself.
func PromotedBigInt(v *big.Int) Value {
	return Value{Kind: KindUndefined, Int: 0, marker: &bigIntMarker{v: v}}
}

// IsPromotedBigInt reports whether v was produced by PromotedBigInt, and
// if so returns the wrapped big.Int.
func IsPromotedBigInt(v Value) (*big.Int, bool) {
	if v.marker == nil {
		return nil, false
	}
	m, ok := v.marker.(*bigIntMarker)
	if !ok {
		return nil, false
	}
	return m.v, true
}

func arithFloat(op BinOp, a, b float64) (Value, bool, error) {
	switch op {
	case OpAdd:
		return Float(a + b), true, nil
	case OpSub:
		return Float(a - b), true, nil
	case OpMult:
		return Float(a * b), true, nil
	case OpDiv:
		if b == 0 {
			return Value{}, true, zeroDivisionError("float division by zero")
		}
		return Float(a / b), true, nil
	case OpFloorDiv:
		if b == 0 {
			return Value{}, true, zeroDivisionError("float floor division by zero")
		}
		return Float(math.Floor(a / b)), true, nil
	case OpMod:
		if b == 0 {
			return Value{}, true, zeroDivisionError("float modulo")
		}
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return Float(m), true, nil
	case OpPow:
		return Float(math.Pow(a, b)), true, nil
	default:
		return Value{}, false, nil // bitwise ops are undefined on float
	}
}

func arithConcat(h *heap.Heap, a, b Value) (Value, bool) {
	if a.Kind != KindRef || b.Kind != KindRef {
		return Value{}, false
	}
	da, err1 := h.Get(a.Ref)
	db, err2 := h.Get(b.Ref)
	if err1 != nil || err2 != nil {
		return Value{}, false
	}
	switch av := da.(type) {
	case *String:
		if bv, ok := db.(*String); ok {
			id, err := h.Allocate(&String{V: av.V + bv.V})
			if err != nil {
				return Value{}, false
			}
			return Ref(id), true
		}
	case *Bytes:
		if bv, ok := db.(*Bytes); ok {
			combined := make([]byte, 0, len(av.V)+len(bv.V))
			combined = append(combined, av.V...)
			combined = append(combined, bv.V...)
			id, err := h.Allocate(&Bytes{V: combined})
			if err != nil {
				return Value{}, false
			}
			return Ref(id), true
		}
	case *List:
		if bv, ok := db.(*List); ok {
			items := make([]Value, 0, len(av.Items)+len(bv.Items))
			items = append(items, av.Items...)
			items = append(items, bv.Items...)
			for _, v := range items {
				CloneWithHeap(h, v)
			}
			id, err := h.Allocate(&List{Items: items})
			if err != nil {
				return Value{}, false
			}
			return Ref(id), true
		}
	case *Tuple:
		if bv, ok := db.(*Tuple); ok {
			items := make([]Value, 0, len(av.Items)+len(bv.Items))
			items = append(items, av.Items...)
			items = append(items, bv.Items...)
			for _, v := range items {
				CloneWithHeap(h, v)
			}
			id, err := h.Allocate(&Tuple{Items: items})
			if err != nil {
				return Value{}, false
			}
			return Ref(id), true
		}
	}
	return Value{}, false
}

func arithRepeat(h *heap.Heap, a, b Value) (Value, bool) {
	seqVal, n, ok := sequenceAndCount(h, a, b)
	if !ok {
		return Value{}, false
	}
	if n < 0 {
		n = 0
	}
	switch sv := seqVal.(type) {
	case *List:
		items := make([]Value, 0, len(sv.Items)*int(n))
		for i := int64(0); i < n; i++ {
			for _, v := range sv.Items {
				items = append(items, CloneWithHeap(h, v))
			}
		}
		id, err := h.Allocate(&List{Items: items})
		if err != nil {
			return Value{}, false
		}
		return Ref(id), true
	case *Tuple:
		items := make([]Value, 0, len(sv.Items)*int(n))
		for i := int64(0); i < n; i++ {
			for _, v := range sv.Items {
				items = append(items, CloneWithHeap(h, v))
			}
		}
		id, err := h.Allocate(&Tuple{Items: items})
		if err != nil {
			return Value{}, false
		}
		return Ref(id), true
	case *String:
		out := ""
		for i := int64(0); i < n; i++ {
			out += sv.V
		}
		id, err := h.Allocate(&String{V: out})
		if err != nil {
			return Value{}, false
		}
		return Ref(id), true
	}
	return Value{}, false
}

func sequenceAndCount(h *heap.Heap, a, b Value) (heap.Data, int64, bool) {
	var seqV, countV Value
	if a.Kind == KindRef && (b.Kind == KindInt || b.Kind == KindBool) {
		seqV, countV = a, b
	} else if b.Kind == KindRef && (a.Kind == KindInt || a.Kind == KindBool) {
		seqV, countV = b, a
	} else {
		return nil, 0, false
	}
	data, err := h.Get(seqV.Ref)
	if err != nil {
		return nil, 0, false
	}
	switch data.(type) {
	case *List, *Tuple, *String:
	default:
		return nil, 0, false
	}
	n := countV.Int
	if countV.Kind == KindBool {
		if countV.Bool {
			n = 1
		} else {
			n = 0
		}
	}
	return data, n, true
}

// IAdd implements the in-place `+=` mutator for op-assign's fast path
// (spec §4.2/§4.4.1): when target is a list and rhs is a list or tuple,
// rhs's elements are appended to target in place and IAdd returns
// (true, nil). Every other combination, including set and dict targets,
// returns (false, nil) and leaves target unchanged, so the caller falls
// back to Arith + reassign. Nothing in package vm calls IAdd.
func IAdd(h *heap.Heap, target, rhs Value) (ok bool, err error) {
	if target.Kind != KindRef {
		return false, nil
	}
	data, getErr := h.Get(target.Ref)
	if getErr != nil {
		return false, nil
	}
	list, isList := data.(*List)
	if !isList {
		return false, nil
	}
	if rhs.Kind != KindRef {
		return false, nil
	}
	rdata, rerr := h.Get(rhs.Ref)
	if rerr != nil {
		return false, nil
	}
	switch rv := rdata.(type) {
	case *List:
		for _, v := range rv.Items {
			list.Append(h, CloneWithHeap(h, v))
		}
		return true, nil
	case *Tuple:
		for _, v := range rv.Items {
			list.Append(h, CloneWithHeap(h, v))
		}
		return true, nil
	}
	return false, nil
}

// temporalMarker mirrors bigIntMarker: arithTemporal's date/datetime
// results need a fresh heap record, which the VM allocates (see
// bigIntMarker's doc comment), so the marker carries the
// already-computed heap.Data out to vm.execBinOp to allocate.
type temporalMarker struct{ v heap.Data }

// PromotedTemporal wraps a *TimeDelta/*Date/*DateTime produced by
// arithTemporal so vm.execBinOp can allocate its heap record, the same
// way PromotedBigInt hands off a promoted LongInt.
func PromotedTemporal(v heap.Data) Value {
	return Value{Kind: KindUndefined, marker: &temporalMarker{v: v}}
}

// IsPromotedTemporal reports whether v was produced by PromotedTemporal,
// and if so returns the wrapped heap.Data ready to allocate.
func IsPromotedTemporal(v Value) (heap.Data, bool) {
	if v.marker == nil {
		return nil, false
	}
	m, ok := v.marker.(*temporalMarker)
	if !ok {
		return nil, false
	}
	return m.v, true
}

// arithTemporal wires date/datetime/timedelta arithmetic into Arith (spec
// §8 scenario 5): TimeDelta±TimeDelta, Date±TimeDelta (and its commutative
// TimeDelta+Date form), Date-Date, DateTime±TimeDelta (and its commutative
// TimeDelta+DateTime form), and DateTime-DateTime. Every other combination
// (Date+Date, TimeDelta*TimeDelta, ...) falls through as unsupported.
func arithTemporal(h *heap.Heap, op BinOp, a, b Value) (Value, bool, error) {
	if op != OpAdd && op != OpSub {
		return Value{}, false, nil
	}
	ad, aok := temporalData(h, a)
	bd, bok := temporalData(h, b)
	if !aok || !bok {
		return Value{}, false, nil
	}

	if atd, ok := ad.(*TimeDelta); ok {
		if btd, ok := bd.(*TimeDelta); ok {
			var r *TimeDelta
			var err error
			if op == OpAdd {
				r, err = atd.Add(btd)
			} else {
				r, err = atd.Sub(btd)
			}
			if err != nil {
				return Value{}, true, overflowError("timedelta value out of range")
			}
			return PromotedTemporal(r), true, nil
		}
		if op == OpAdd {
			// TimeDelta+Date and TimeDelta+DateTime are commutative;
			// TimeDelta-Date/TimeDelta-DateTime are not spelled in Python.
			return arithDatePlusDelta(bd, atd)
		}
		return Value{}, false, nil
	}

	switch av := ad.(type) {
	case *Date:
		switch bv := bd.(type) {
		case *TimeDelta:
			if op == OpAdd {
				return arithDatePlusDelta(av, bv)
			}
			r, err := av.SubDays(bv.Days)
			if err != nil {
				return Value{}, true, overflowError("date value out of range")
			}
			return PromotedTemporal(r), true, nil
		case *Date:
			if op == OpAdd {
				return Value{}, false, nil
			}
			return PromotedTemporal(SubDate(av, bv)), true, nil
		}
	case *DateTime:
		switch bv := bd.(type) {
		case *TimeDelta:
			if op == OpAdd {
				return arithDatePlusDelta(av, bv)
			}
			r, err := av.SubTimeDelta(bv)
			if err != nil {
				return Value{}, true, overflowError("datetime value out of range")
			}
			return PromotedTemporal(r), true, nil
		case *DateTime:
			if op == OpAdd {
				return Value{}, false, nil
			}
			td, err := SubDateTime(av, bv)
			if err != nil {
				return Value{}, true, typeError(err.Error())
			}
			return PromotedTemporal(td), true, nil
		}
	}
	return Value{}, false, nil
}

// arithDatePlusDelta implements the Add half shared by Date+TimeDelta and
// DateTime+TimeDelta (and their commutative TimeDelta+... forms).
func arithDatePlusDelta(dateOrDateTime heap.Data, td *TimeDelta) (Value, bool, error) {
	switch v := dateOrDateTime.(type) {
	case *Date:
		r, err := v.AddDays(td.Days)
		if err != nil {
			return Value{}, true, overflowError("date value out of range")
		}
		return PromotedTemporal(r), true, nil
	case *DateTime:
		r, err := v.AddTimeDelta(td)
		if err != nil {
			return Value{}, true, overflowError("datetime value out of range")
		}
		return PromotedTemporal(r), true, nil
	default:
		return Value{}, false, nil
	}
}

// temporalData returns v's heap payload when it is a *TimeDelta, *Date,
// or *DateTime, so arithTemporal can dispatch on Go's concrete type
// instead of re-deriving Kind checks per combination.
func temporalData(h *heap.Heap, v Value) (heap.Data, bool) {
	if v.Kind != KindRef {
		return nil, false
	}
	data, err := h.Get(v.Ref)
	if err != nil {
		return nil, false
	}
	switch data.(type) {
	case *TimeDelta, *Date, *DateTime:
		return data, true
	}
	return nil, false
}
