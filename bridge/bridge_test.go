package bridge

import (
	"math/big"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/values"
)

func newTestConverter() *Converter {
	h := heap.New(heap.NewDefaultTracker(heap.Limits{MaxBytes: 1 << 20}))
	return NewConverter(h, intern.NewBuilder().Build(), nil)
}

// roundTrip feeds hv through ToInternal then FromInternal, the two halves
// of every host/interpreter crossing (spec §6.1).
func roundTrip(t *testing.T, c *Converter, hv HostValue) HostValue {
	t.Helper()
	iv, err := c.ToInternal(hv)
	require.NoError(t, err)
	return c.FromInternal(iv)
}

func TestRoundTripScalars(t *testing.T) {
	c := newTestConverter()

	assert.Equal(t, HostValue{Kind: KindNone}, roundTrip(t, c, HostValue{Kind: KindNone}))
	assert.Equal(t, HostValue{Kind: KindEllipsis}, roundTrip(t, c, HostValue{Kind: KindEllipsis}))
	assert.Equal(t, HostValue{Kind: KindBool, Bool: true}, roundTrip(t, c, HostValue{Kind: KindBool, Bool: true}))
	assert.Equal(t, HostValue{Kind: KindInt, Int: 42}, roundTrip(t, c, HostValue{Kind: KindInt, Int: 42}))
	assert.Equal(t, HostValue{Kind: KindFloat, Float: 3.5}, roundTrip(t, c, HostValue{Kind: KindFloat, Float: 3.5}))
	assert.Equal(t, HostValue{Kind: KindString, Str: "hi"}, roundTrip(t, c, HostValue{Kind: KindString, Str: "hi"}))
	assert.Equal(t, HostValue{Kind: KindBytes, Bytes: []byte("hi")}, roundTrip(t, c, HostValue{Kind: KindBytes, Bytes: []byte("hi")}))
	assert.Equal(t, HostValue{Kind: KindPath, Str: "/tmp/x"}, roundTrip(t, c, HostValue{Kind: KindPath, Str: "/tmp/x"}))
}

func TestRoundTripBigIntPromotesAndDemotes(t *testing.T) {
	c := newTestConverter()

	// Small enough to fit int64: ToInternal demotes it to a plain Int, so
	// the round trip comes back as KindInt rather than KindBigInt.
	small := HostValue{Kind: KindBigInt, BigInt: big.NewInt(7)}
	assert.Equal(t, HostValue{Kind: KindInt, Int: 7}, roundTrip(t, c, small))

	huge := new(big.Int)
	huge.SetString("123456789012345678901234567890", 10)
	big1 := HostValue{Kind: KindBigInt, BigInt: huge}
	got := roundTrip(t, c, big1)
	require.Equal(t, KindBigInt, got.Kind)
	assert.Equal(t, 0, got.BigInt.Cmp(huge))
}

func TestRoundTripListPreservesOrder(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindList, Items: []HostValue{
		{Kind: KindInt, Int: 1}, {Kind: KindInt, Int: 2}, {Kind: KindInt, Int: 3},
	}}
	got := roundTrip(t, c, hv)
	require.Equal(t, KindList, got.Kind)
	require.Len(t, got.Items, 3)
	assert.Equal(t, int64(1), got.Items[0].Int)
	assert.Equal(t, int64(2), got.Items[1].Int)
	assert.Equal(t, int64(3), got.Items[2].Int)
}

func TestRoundTripTupleAndNamedTuple(t *testing.T) {
	c := newTestConverter()
	tup := roundTrip(t, c, HostValue{Kind: KindTuple, Items: []HostValue{{Kind: KindInt, Int: 1}}})
	require.Equal(t, KindTuple, tup.Kind)
	require.Len(t, tup.Items, 1)

	nt := roundTrip(t, c, HostValue{
		Kind: KindNamedTuple, TypeName: "Point", FieldNames: []string{"x", "y"},
		Items: []HostValue{{Kind: KindInt, Int: 1}, {Kind: KindInt, Int: 2}},
	})
	require.Equal(t, KindNamedTuple, nt.Kind)
	assert.Equal(t, "Point", nt.TypeName)
	assert.Equal(t, []string{"x", "y"}, nt.FieldNames)
	require.Len(t, nt.Items, 2)
}

func TestRoundTripDictPreservesEntries(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindDict, Entries: []DictEntry{
		{Key: HostValue{Kind: KindString, Str: "a"}, Value: HostValue{Kind: KindInt, Int: 1}},
		{Key: HostValue{Kind: KindString, Str: "b"}, Value: HostValue{Kind: KindInt, Int: 2}},
	}}
	got := roundTrip(t, c, hv)
	require.Equal(t, KindDict, got.Kind)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "a", got.Entries[0].Key.Str)
	assert.Equal(t, int64(1), got.Entries[0].Value.Int)
	assert.Equal(t, "b", got.Entries[1].Key.Str)
	assert.Equal(t, int64(2), got.Entries[1].Value.Int)
}

func TestRoundTripSetDeduplicatesAndFreezes(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindSet, Items: []HostValue{
		{Kind: KindInt, Int: 1}, {Kind: KindInt, Int: 1}, {Kind: KindInt, Int: 2},
	}}
	got := roundTrip(t, c, hv)
	require.Equal(t, KindSet, got.Kind)
	assert.Len(t, got.Items, 2)

	frozen := roundTrip(t, c, HostValue{Kind: KindFrozenSet, Items: []HostValue{{Kind: KindInt, Int: 1}}})
	assert.Equal(t, KindFrozenSet, frozen.Kind)
}

func TestRoundTripDate(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindDate, Year: 2024, Month: 2, Day: 29}
	got := roundTrip(t, c, hv)
	assert.Equal(t, HostValue{Kind: KindDate, Year: 2024, Month: 2, Day: 29}, got)
}

func TestRoundTripDateTimeAwareKeepsOffsetAndName(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{
		Kind: KindDateTime, Year: 2024, Month: 1, Day: 1,
		Hour: 12, Minute: 30, Second: 15, Microsecond: 500,
		OffsetSeconds: 3600, HasOffset: true, TZName: "CET", HasTZName: true,
	}
	got := roundTrip(t, c, hv)
	assert.Equal(t, hv, got)
}

func TestRoundTripDateTimeNaiveHasNoOffset(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindDateTime, Year: 2024, Month: 1, Day: 1, Hour: 0, Minute: 0, Second: 0}
	got := roundTrip(t, c, hv)
	assert.False(t, got.HasOffset)
}

func TestRoundTripTimeDelta(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindTimeDelta, Days: 1, Seconds: 3600, Microseconds: 7}
	got := roundTrip(t, c, hv)
	assert.Equal(t, hv, got)
}

func TestRoundTripTimeZone(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindTimeZone, OffsetSeconds: -1800, TZName: "Half", HasTZName: true}
	got := roundTrip(t, c, hv)
	assert.Equal(t, hv, got)
}

func TestRoundTripExceptionWithArg(t *testing.T) {
	c := newTestConverter()
	arg := HostValue{Kind: KindString, Str: "boom"}
	hv := HostValue{Kind: KindException, ExcType: values.ExcValueError, ExcArg: &arg}
	got := roundTrip(t, c, hv)
	require.Equal(t, KindException, got.Kind)
	assert.Equal(t, values.ExcValueError, got.ExcType)
	require.NotNil(t, got.ExcArg)
	assert.Equal(t, "boom", got.ExcArg.Str)
}

func TestRoundTripType(t *testing.T) {
	c := newTestConverter()
	got := roundTrip(t, c, HostValue{Kind: KindType, TypeTag: values.TypeInt})
	assert.Equal(t, HostValue{Kind: KindType, TypeTag: values.TypeInt}, got)
}

func TestToInternalRejectsOutputOnlyVariants(t *testing.T) {
	c := newTestConverter()
	_, err := c.ToInternal(HostValue{Kind: KindRepr, Str: "<x>"})
	assert.ErrorIs(t, err, ErrOutputOnly)
	_, err = c.ToInternal(HostValue{Kind: KindCycle, CycleID: 1})
	assert.ErrorIs(t, err, ErrOutputOnly)
}

// TestDataclassIdentityRoundTrip is spec §6.1's load-bearing case: a
// dataclass sent in with an explicit type_id comes back tagged with the
// same registered name/fields, not degraded into a generic record, and a
// second instance of the same type_id resolves through the shared
// registry without re-sending the shape.
func TestDataclassIdentityRoundTrip(t *testing.T) {
	c := newTestConverter()
	typeID := uuid.New().String()
	hv := HostValue{
		Kind: KindDataclass, TypeName: "Point", TypeID: typeID,
		FieldNames: []string{"x", "y"},
		Attrs:      []HostValue{{Kind: KindInt, Int: 1}, {Kind: KindInt, Int: 2}},
	}
	got := roundTrip(t, c, hv)
	require.Equal(t, KindDataclass, got.Kind)
	assert.Equal(t, "Point", got.TypeName)
	assert.Equal(t, typeID, got.TypeID)
	assert.Equal(t, []string{"x", "y"}, got.FieldNames)
	require.Len(t, got.Attrs, 2)
	assert.Equal(t, int64(1), got.Attrs[0].Int)

	// A second value carrying the same type_id but no field names (as a
	// host might send once the type is already known) still resolves its
	// shape via the registry Register populated above.
	again := roundTrip(t, c, HostValue{
		Kind: KindDataclass, TypeID: typeID,
		Attrs: []HostValue{{Kind: KindInt, Int: 9}, {Kind: KindInt, Int: 10}},
	})
	assert.Equal(t, "Point", again.TypeName)
	assert.Equal(t, []string{"x", "y"}, again.FieldNames)
}

func TestDataclassWithoutTypeIDGetsOneAssigned(t *testing.T) {
	c := newTestConverter()
	hv := HostValue{Kind: KindDataclass, TypeName: "Anon", FieldNames: []string{"v"},
		Attrs: []HostValue{{Kind: KindInt, Int: 1}}}
	got := roundTrip(t, c, hv)
	assert.Equal(t, "Anon", got.TypeName)
	assert.NotEmpty(t, got.TypeID)
	_, err := uuid.Parse(got.TypeID)
	assert.NoError(t, err)
}

// TestCycleDetectionEmitsPlaceholder covers spec §6.1's Cycle(id,"[...]")
// output for a self-referential list: FromInternal must not recurse
// forever, and the back-edge must carry the documented placeholder text.
func TestCycleDetectionEmitsPlaceholder(t *testing.T) {
	c := newTestConverter()
	id, err := c.Heap.Allocate(&values.List{})
	require.NoError(t, err)
	err = c.Heap.WithEntryMut(id, func(d heap.Data) error {
		l := d.(*values.List)
		l.Items = append(l.Items, values.Ref(id))
		return nil
	})
	require.NoError(t, err)

	got := c.FromInternal(values.Ref(id))
	require.Equal(t, KindList, got.Kind)
	require.Len(t, got.Items, 1)
	cycle := got.Items[0]
	assert.Equal(t, KindCycle, cycle.Kind)
	assert.Equal(t, "[...]", cycle.CyclePlaceholder)
}

// TestCycleDetectionThroughDict covers the same back-edge behavior for a
// dict value referencing its own container, a second container shape the
// self-reference detector must also handle.
func TestCycleDetectionThroughDict(t *testing.T) {
	c := newTestConverter()
	id, err := c.Heap.Allocate(values.NewDict())
	require.NoError(t, err)
	err = c.Heap.WithEntryMut(id, func(d heap.Data) error {
		dict := d.(*values.Dict)
		dict.Set(c.Heap, values.Int(1), values.Ref(id), func(a, b values.Value) bool {
			return values.Eq(c.Heap, a, b, 256)
		})
		return nil
	})
	require.NoError(t, err)

	got := c.FromInternal(values.Ref(id))
	require.Equal(t, KindDict, got.Kind)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, KindCycle, got.Entries[0].Value.Kind)
	assert.Equal(t, "[...]", got.Entries[0].Value.CyclePlaceholder)
}

func TestFromInternalUndefinedIsNone(t *testing.T) {
	c := newTestConverter()
	got := c.FromInternal(values.Value{Kind: values.KindUndefined})
	assert.Equal(t, HostValue{Kind: KindNone}, got)
}
