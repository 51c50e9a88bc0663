package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/registry"
	"github.com/wudi/monty/values"
)

func newTestHeap() *heap.Heap {
	return heap.New(heap.NewDefaultTracker(heap.Limits{MaxBytes: 1 << 20}))
}

func TestNewExceptionCarriesMessage(t *testing.T) {
	h := newTestHeap()
	exc, err := ValueError(h, "bad value")
	require.NoError(t, err)
	assert.Equal(t, values.ExcValueError, exc.ExcTyp)
	assert.Equal(t, "bad value", Message(h, exc))
}

func TestNameErrorMessage(t *testing.T) {
	h := newTestHeap()
	exc, err := NameError(h, "x")
	require.NoError(t, err)
	assert.Equal(t, "name 'x' is not defined", Message(h, exc))
}

func TestMissingArgumentsMessageFormatting(t *testing.T) {
	assert.Equal(t, "f() missing 1 required positional argument: 'a'", missingArgumentsMessage("f", []string{"a"}))
	assert.Equal(t, "f() missing 2 required positional arguments: 'a' and 'b'", missingArgumentsMessage("f", []string{"a", "b"}))
	assert.Equal(t, "f() missing 3 required positional arguments: 'a', 'b', and 'c'", missingArgumentsMessage("f", []string{"a", "b", "c"}))
}

func TestBindArgumentsSimple(t *testing.T) {
	h := newTestHeap()
	fn := &registry.FunctionRecord{
		Name:          "greet",
		NamespaceSize: 2,
		Params: []registry.Parameter{
			{Name: "a", NamespaceSlot: 0},
			{Name: "b", NamespaceSlot: 1},
		},
	}
	slots, exc, err := BindArguments(h, fn, []values.Value{values.Int(1), values.Int(2)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, values.Value{}, exc)
	assert.Equal(t, int64(1), slots[0].Int)
	assert.Equal(t, int64(2), slots[1].Int)
}

func TestBindArgumentsMissingRaisesTypeError(t *testing.T) {
	h := newTestHeap()
	fn := &registry.FunctionRecord{
		Name:          "greet",
		NamespaceSize: 2,
		Params: []registry.Parameter{
			{Name: "a", NamespaceSlot: 0},
			{Name: "b", NamespaceSlot: 1},
		},
	}
	_, exc, err := BindArguments(h, fn, []values.Value{values.Int(1)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, values.ExcTypeError, exc.ExcTyp)
	assert.Equal(t, "greet() missing 1 required positional argument: 'b'", Message(h, exc))
}

func TestBindArgumentsTooManyPositional(t *testing.T) {
	h := newTestHeap()
	fn := &registry.FunctionRecord{
		Name:          "f",
		NamespaceSize: 1,
		Params:        []registry.Parameter{{Name: "a", NamespaceSlot: 0}},
	}
	_, exc, err := BindArguments(h, fn, []values.Value{values.Int(1), values.Int(2)}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, values.ExcTypeError, exc.ExcTyp)
	assert.Contains(t, Message(h, exc), "takes 1 positional argument but 2 were given")
}

func TestDivModMatchesFloorDivAndMod(t *testing.T) {
	h := newTestHeap()
	q, r, err := DivMod(h, values.Int(-7), values.Int(3))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), q.Int)
	assert.Equal(t, int64(2), r.Int)
}

func TestAbsNegativeInt(t *testing.T) {
	h := newTestHeap()
	v, err := Abs(h, values.Int(-5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.Int)
}

func TestRoundHalfToEven(t *testing.T) {
	assert.Equal(t, 2.0, Round(2.5, 0, true))
	assert.Equal(t, 4.0, Round(3.5, 0, true))
}
