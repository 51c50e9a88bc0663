package runtime

import (
	"math"
	"math/big"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/values"
)

// Abs implements builtin abs(), grounded on the teacher's runtime/math.go
// per-type numeric-coercion dispatch style.
func Abs(h *heap.Heap, v values.Value) (values.Value, error) {
	switch v.Kind {
	case values.KindInt:
		if v.Int == math.MinInt64 {
			big := new(big.Int).Abs(big.NewInt(v.Int))
			id, err := h.Allocate(&values.LongInt{V: big})
			if err != nil {
				return values.Value{}, err
			}
			return values.Ref(id), nil
		}
		n := v.Int
		if n < 0 {
			n = -n
		}
		return values.Int(n), nil
	case values.KindFloat:
		return values.Float(math.Abs(v.Float)), nil
	case values.KindBool:
		n := int64(0)
		if v.Bool {
			n = 1
		}
		return values.Int(n), nil
	case values.KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return values.Value{}, err
		}
		if li, ok := data.(*values.LongInt); ok {
			id, err := h.Allocate(&values.LongInt{V: new(big.Int).Abs(li.V)})
			if err != nil {
				return values.Value{}, err
			}
			return values.Ref(id), nil
		}
		if td, ok := data.(*values.TimeDelta); ok {
			if td.Days >= 0 {
				return v, nil
			}
			neg, err := values.NewTimeDelta(-td.Days, -td.Seconds, -td.Microseconds)
			if err != nil {
				exc, eerr := OverflowError(h, "timedelta overflow")
				if eerr != nil {
					return values.Value{}, eerr
				}
				return exc, nil
			}
			id, err := h.Allocate(neg)
			if err != nil {
				return values.Value{}, err
			}
			return values.Ref(id), nil
		}
	}
	exc, err := TypeError(h, "bad operand type for abs()")
	return exc, err
}

// DivMod implements builtin divmod(a, b) → (a // b, a % b), reusing
// values.Arith for both halves so the sign convention stays identical to
// the `//` and `%` operators.
func DivMod(h *heap.Heap, a, b values.Value) (values.Value, values.Value, error) {
	q, ok, err := values.Arith(h, values.OpFloorDiv, a, b)
	if err != nil {
		return values.Value{}, values.Value{}, err
	}
	if !ok {
		exc, eerr := TypeError(h, "unsupported operand type(s) for divmod()")
		return exc, values.Value{}, eerr
	}
	r, ok, err := values.Arith(h, values.OpMod, a, b)
	if err != nil {
		return values.Value{}, values.Value{}, err
	}
	if !ok {
		exc, eerr := TypeError(h, "unsupported operand type(s) for divmod()")
		return exc, values.Value{}, eerr
	}
	return q, r, nil
}

// Round implements builtin round(x[, ndigits]) for float/int, using
// banker's rounding (round-half-to-even) to match CPython's round().
func Round(x float64, ndigits int, hasNdigits bool) float64 {
	if !hasNdigits {
		ndigits = 0
	}
	scale := math.Pow(10, float64(ndigits))
	scaled := x * scale
	floor := math.Floor(scaled)
	diff := scaled - floor
	var rounded float64
	switch {
	case diff < 0.5:
		rounded = floor
	case diff > 0.5:
		rounded = floor + 1
	default:
		if math.Mod(floor, 2) == 0 {
			rounded = floor
		} else {
			rounded = floor + 1
		}
	}
	return rounded / scale
}
