package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/monty/heap"
)

func newTestHeap() *heap.Heap {
	return heap.New(heap.NewDefaultTracker(heap.Limits{MaxBytes: 1 << 20}))
}

func TestTruthiness(t *testing.T) {
	h := newTestHeap()
	assert.False(t, Truthy(h, None()))
	assert.False(t, Truthy(h, Int(0)))
	assert.True(t, Truthy(h, Int(1)))
	assert.False(t, Truthy(h, Float(0)))
	assert.False(t, Truthy(h, Bool(false)))
	assert.True(t, Truthy(h, Bool(true)))

	id, err := h.Allocate(&List{})
	require.NoError(t, err)
	assert.False(t, Truthy(h, Ref(id)))

	id2, err := h.Allocate(&List{Items: []Value{Int(1)}})
	require.NoError(t, err)
	assert.True(t, Truthy(h, Ref(id2)))
}

func TestTimeDeltaEmptyTimedeltaIsFalsy(t *testing.T) {
	h := newTestHeap()
	td, err := NewTimeDelta(0, 0, 0)
	require.NoError(t, err)
	id, err := h.Allocate(td)
	require.NoError(t, err)
	assert.False(t, Truthy(h, Ref(id)))
}

func TestTimeDeltaNormalization(t *testing.T) {
	td, err := NewTimeDelta(0, 90000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), td.Days)
	assert.Equal(t, int64(3600), td.Seconds)
}

func TestTimeDeltaOverflow(t *testing.T) {
	_, err := NewTimeDelta(maxTimedeltaDays+1, 0, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestTimeZoneBounds(t *testing.T) {
	_, err := NewTimeZone(86400, "", false)
	assert.ErrorIs(t, err, ErrTZOffsetOOB)
	_, err = NewTimeZone(-86400, "", false)
	assert.ErrorIs(t, err, ErrTZOffsetOOB)
	tz, err := NewTimeZone(3600, "", false)
	require.NoError(t, err)
	assert.Equal(t, "+01:00", tz.formatOffset())
}

func TestAwareNaiveDateTimeNeverEqual(t *testing.T) {
	naive := &DateTime{Year: 2020, Month: 1, Day: 1}
	aware := &DateTime{Year: 2020, Month: 1, Day: 1, HasOffset: true}
	assert.False(t, dateTimeEq(naive, aware))
}

func TestSubDateTimeRejectsMixedAwareness(t *testing.T) {
	naive := &DateTime{Year: 2020, Month: 1, Day: 1}
	aware := &DateTime{Year: 2020, Month: 1, Day: 1, HasOffset: true}
	_, err := SubDateTime(aware, naive)
	assert.Error(t, err)
}

func TestDateOrdinalRoundTrips(t *testing.T) {
	d, err := NewDate(2024, 3, 1)
	require.NoError(t, err)
	ord := d.Ordinal()
	back := DateFromOrdinal(ord)
	assert.Equal(t, *d, *back)
}

func TestDateValidatesLeapYear(t *testing.T) {
	_, err := NewDate(2023, 2, 29)
	assert.Error(t, err)
	_, err = NewDate(2024, 2, 29)
	assert.NoError(t, err)
}

func TestIntPromotesToLongIntOnOverflow(t *testing.T) {
	h := newTestHeap()
	a := Int(1 << 62)
	b := Int(1 << 62)
	v, ok, err := Arith(h, OpAdd, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	big, isBig := IsPromotedBigInt(v)
	require.True(t, isBig)
	assert.True(t, big.IsInt64() == false || big.Int64() == (1<<62)+(1<<62))
}

func TestIntDivisionByZeroRaises(t *testing.T) {
	h := newTestHeap()
	_, _, err := Arith(h, OpFloorDiv, Int(1), Int(0))
	require.Error(t, err)
	var ae *ArithError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ExcZeroDivisionError, ae.Type)
}

func TestModSignMatchesDivisor(t *testing.T) {
	h := newTestHeap()
	v, ok, err := Arith(h, OpMod, Int(-7), Int(3))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), v.Int)
}

func TestStringConcat(t *testing.T) {
	h := newTestHeap()
	aID, _ := h.Allocate(&String{V: "foo"})
	bID, _ := h.Allocate(&String{V: "bar"})
	v, ok, err := Arith(h, OpAdd, Ref(aID), Ref(bID))
	require.NoError(t, err)
	require.True(t, ok)
	data, err := h.Get(v.Ref)
	require.NoError(t, err)
	assert.Equal(t, "foobar", data.(*String).V)
}

func TestListRepeat(t *testing.T) {
	h := newTestHeap()
	id, _ := h.Allocate(&List{Items: []Value{Int(1), Int(2)}})
	v, ok, err := Arith(h, OpMult, Ref(id), Int(3))
	require.NoError(t, err)
	require.True(t, ok)
	data, err := h.Get(v.Ref)
	require.NoError(t, err)
	assert.Len(t, data.(*List).Items, 6)
}

func TestExceptionTaxonomyIsA(t *testing.T) {
	assert.True(t, ExcZeroDivisionError.IsA(ExcArithmeticError))
	assert.True(t, ExcZeroDivisionError.IsA(ExcException))
	assert.True(t, ExcZeroDivisionError.IsA(ExcBaseException))
	assert.False(t, ExcKeyError.IsA(ExcArithmeticError))
	assert.True(t, ExcKeyError.IsA(ExcLookupError))
}

func TestDictPreservesInsertionOrderOnUpdate(t *testing.T) {
	h := newTestHeap()
	d := NewDict()
	eq := func(a, b Value) bool { return Eq(h, a, b, 64) }
	d.Set(h, Int(1), Int(10), eq)
	d.Set(h, Int(2), Int(20), eq)
	d.Set(h, Int(1), Int(99), eq)
	keys := d.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, int64(1), keys[0].Int)
	assert.Equal(t, int64(2), keys[1].Int)
	v, ok := d.Get(h, Int(1), eq)
	require.True(t, ok)
	assert.Equal(t, int64(99), v.Int)
}

func TestSetEqualityIgnoresInsertionOrder(t *testing.T) {
	h := newTestHeap()
	aID, _ := h.Allocate(&Set{Items: []Value{Int(1), Int(2)}})
	bID, _ := h.Allocate(&Set{Items: []Value{Int(2), Int(1)}})
	assert.True(t, Eq(h, Ref(aID), Ref(bID), 64))
}

func TestReprSelfReferentialListShowsEllipsis(t *testing.T) {
	h := newTestHeap()
	id, err := h.Allocate(&List{})
	require.NoError(t, err)
	err = h.WithEntryMut(id, func(d heap.Data) error {
		l := d.(*List)
		l.Items = append(l.Items, Ref(id))
		return nil
	})
	require.NoError(t, err)
	s := FormatRepr(h, Ref(id), nil)
	assert.Contains(t, s, "...")
}

func TestHashConsistentWithEq(t *testing.T) {
	h := newTestHeap()
	a := Int(5)
	b := Bool(false)
	ha, ok := Hash(h, a)
	require.True(t, ok)
	_ = ha
	hb, ok := Hash(h, b)
	require.True(t, ok)
	assert.NotEqual(t, ha, hb)
}

func refDate(t *testing.T, h *heap.Heap, year, month, day int) Value {
	t.Helper()
	d, err := NewDate(year, month, day)
	require.NoError(t, err)
	id, err := h.Allocate(d)
	require.NoError(t, err)
	return Ref(id)
}

func refTimeDelta(t *testing.T, h *heap.Heap, days, seconds, micros int64) Value {
	t.Helper()
	td, err := NewTimeDelta(days, seconds, micros)
	require.NoError(t, err)
	id, err := h.Allocate(td)
	require.NoError(t, err)
	return Ref(id)
}

// allocPromoted mirrors vm.execBinOp's IsPromotedTemporal/IsPromotedBigInt
// handling: Arith cannot allocate its own result, so callers finish the
// job by allocating the marker's payload.
func allocPromoted(t *testing.T, h *heap.Heap, v Value) Value {
	t.Helper()
	if data, ok := IsPromotedTemporal(v); ok {
		id, err := h.Allocate(data)
		require.NoError(t, err)
		return Ref(id)
	}
	return v
}

func TestArithDatePlusTimeDelta(t *testing.T) {
	h := newTestHeap()
	date := refDate(t, h, 2024, 1, 31)
	td := refTimeDelta(t, h, 1, 0, 0)

	result, ok, err := Arith(h, OpAdd, date, td)
	require.NoError(t, err)
	require.True(t, ok)
	result = allocPromoted(t, h, result)

	data, err := h.Get(result.Ref)
	require.NoError(t, err)
	assert.Equal(t, &Date{Year: 2024, Month: 2, Day: 1}, data)
}

func TestArithTimeDeltaPlusDateIsCommutative(t *testing.T) {
	h := newTestHeap()
	date := refDate(t, h, 2024, 1, 31)
	td := refTimeDelta(t, h, 1, 0, 0)

	result, ok, err := Arith(h, OpAdd, td, date)
	require.NoError(t, err)
	require.True(t, ok)
	result = allocPromoted(t, h, result)

	data, err := h.Get(result.Ref)
	require.NoError(t, err)
	assert.Equal(t, &Date{Year: 2024, Month: 2, Day: 1}, data)
}

func TestArithDateMinusDateYieldsTimeDelta(t *testing.T) {
	h := newTestHeap()
	a := refDate(t, h, 2024, 3, 1)
	b := refDate(t, h, 2024, 2, 1)

	result, ok, err := Arith(h, OpSub, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	result = allocPromoted(t, h, result)

	data, err := h.Get(result.Ref)
	require.NoError(t, err)
	td := data.(*TimeDelta)
	assert.Equal(t, int64(29), td.Days)
}

func TestArithDateTimePlusTimeDeltaPreservesOffset(t *testing.T) {
	h := newTestHeap()
	dt := &DateTime{Year: 2024, Month: 1, Day: 1, Hour: 23, Minute: 30,
		HasOffset: true, OffsetSeconds: 3600, TZName: "CET"}
	id, err := h.Allocate(dt)
	require.NoError(t, err)
	td := refTimeDelta(t, h, 0, 3600, 0)

	result, ok, err := Arith(h, OpAdd, Ref(id), td)
	require.NoError(t, err)
	require.True(t, ok)
	result = allocPromoted(t, h, result)

	data, err := h.Get(result.Ref)
	require.NoError(t, err)
	got := data.(*DateTime)
	assert.Equal(t, 2024, got.Year)
	assert.Equal(t, 1, got.Month)
	assert.Equal(t, 2, got.Day)
	assert.Equal(t, 0, got.Hour)
	assert.Equal(t, 30, got.Minute)
	assert.True(t, got.HasOffset)
	assert.Equal(t, int64(3600), got.OffsetSeconds)
	assert.Equal(t, "CET", got.TZName)
}

func TestArithDateTimeMinusDateTimeNaiveAwareMismatchRaises(t *testing.T) {
	h := newTestHeap()
	naive := &DateTime{Year: 2024, Month: 1, Day: 1}
	aware := &DateTime{Year: 2024, Month: 1, Day: 1, HasOffset: true, OffsetSeconds: 0}
	naiveID, err := h.Allocate(naive)
	require.NoError(t, err)
	awareID, err := h.Allocate(aware)
	require.NoError(t, err)

	_, ok, err := Arith(h, OpSub, Ref(naiveID), Ref(awareID))
	require.True(t, ok)
	require.Error(t, err)
	ae, isArithErr := err.(*ArithError)
	require.True(t, isArithErr)
	assert.Equal(t, ExcTypeError, ae.Type)
}

func TestArithIntPlusDateIsUnsupported(t *testing.T) {
	h := newTestHeap()
	date := refDate(t, h, 2024, 1, 1)
	_, ok, err := Arith(h, OpAdd, Int(1), date)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCmpDateOrdering(t *testing.T) {
	h := newTestHeap()
	earlier := refDate(t, h, 2024, 1, 1)
	later := refDate(t, h, 2024, 1, 2)

	ord, ok := Cmp(h, earlier, later, 64)
	require.True(t, ok)
	assert.Equal(t, Less, ord)
}

func TestCmpDateTimeSameAwarenessOrdering(t *testing.T) {
	h := newTestHeap()
	earlierID, err := h.Allocate(&DateTime{Year: 2024, Month: 1, Day: 1, Hour: 10})
	require.NoError(t, err)
	laterID, err := h.Allocate(&DateTime{Year: 2024, Month: 1, Day: 1, Hour: 12})
	require.NoError(t, err)

	ord, ok := Cmp(h, Ref(earlierID), Ref(laterID), 64)
	require.True(t, ok)
	assert.Equal(t, Less, ord)
}

func TestCmpDateTimeAwareVsNaiveUnordered(t *testing.T) {
	h := newTestHeap()
	naiveID, err := h.Allocate(&DateTime{Year: 2024, Month: 1, Day: 1})
	require.NoError(t, err)
	awareID, err := h.Allocate(&DateTime{Year: 2024, Month: 1, Day: 1, HasOffset: true})
	require.NoError(t, err)

	_, ok := Cmp(h, Ref(naiveID), Ref(awareID), 64)
	assert.False(t, ok)
}
