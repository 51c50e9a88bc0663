package monty

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/monty/bridge"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/registry"
)

// addProgram compiles "x + y" where x, y are module-global input slots 0
// and 1, mirroring how a real compiler would bind Program.InputNames to
// Program.InputSlots (spec §6.4).
func addProgram() *Program {
	builder := intern.NewBuilder()
	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 2,
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadGlobal, A: 0},
			{Op: opcodes.OpLoadGlobal, A: 1},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpReturn},
		},
	}
	return &Program{
		Interns:    builder.Build(),
		Table:      &registry.Table{},
		Module:     module,
		InputNames: []string{"x", "y"},
		InputSlots: []int{0, 1},
	}
}

func TestRunBindsInputsAndReturnsValue(t *testing.T) {
	it := New(addProgram(), Limits{MaxBytes: 1 << 20}, nil, nil)
	out, err := it.Run([]bridge.HostValue{
		{Kind: bridge.KindInt, Int: 40},
		{Kind: bridge.KindInt, Int: 2},
	})
	require.NoError(t, err)
	require.Equal(t, ResultValue, out.Kind)
	assert.Equal(t, bridge.KindInt, out.Value.Kind)
	assert.Equal(t, int64(42), out.Value.Int)
}

func TestRunRaisesExceptionAsResult(t *testing.T) {
	builder := intern.NewBuilder()
	nameID := builder.String("z")
	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 1,
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadGlobal, A: 0, S: nameID}, // undefined: never bound by Run
			{Op: opcodes.OpReturn},
		},
	}
	program := &Program{Interns: builder.Build(), Table: &registry.Table{}, Module: module}
	it := New(program, Limits{MaxBytes: 1 << 20}, nil, nil)

	out, err := it.Run(nil)
	require.NoError(t, err)
	assert.Equal(t, ResultException, out.Kind)
}

// TestExternalCallSuspendAndResume exercises the ExternalCall/Resume
// boundary across the host bridge (spec §6.2/§6.4): the interpreter
// suspends mid-run, the host sees the converted HostValue args, and
// Resume's reply comes back out as the module's return value.
func TestExternalCallSuspendAndResume(t *testing.T) {
	builder := intern.NewBuilder()
	extID := builder.ExternalFunction("ask_host")
	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 0,
		Body: []opcodes.Instruction{
			{Op: opcodes.OpExternalCall, S: intern.StringID(extID)},
			{Op: opcodes.OpReturn},
		},
	}
	program := &Program{Interns: builder.Build(), Table: &registry.Table{}, Module: module}
	it := New(program, Limits{MaxBytes: 1 << 20}, nil, nil)

	out, err := it.Run(nil)
	require.NoError(t, err)
	require.Equal(t, ResultExternalCall, out.Kind)
	require.NotNil(t, out.ExternalCall)
	assert.Equal(t, "ask_host", out.ExternalCall.Name)

	out, err = it.Resume(bridge.HostValue{Kind: bridge.KindInt, Int: 99})
	require.NoError(t, err)
	require.Equal(t, ResultValue, out.Kind)
	assert.Equal(t, int64(99), out.Value.Int)
}

func TestBytesInUseReflectsHeapCharge(t *testing.T) {
	it := New(addProgram(), Limits{MaxBytes: 1 << 20}, nil, nil)
	before := it.BytesInUse()
	_, err := it.Run([]bridge.HostValue{
		{Kind: bridge.KindInt, Int: 1},
		{Kind: bridge.KindInt, Int: 2},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, it.BytesInUse(), before)
}

// TestDataclassRegistryPersistsAcrossInterpreters covers spec §6.3's
// "persisted state": a host-shared DataclassRegistry lets a second
// Interpreter resolve a type_id it never saw Register'd directly.
func TestDataclassRegistryPersistsAcrossInterpreters(t *testing.T) {
	reg := bridge.NewDataclassRegistry()
	it1 := New(addProgram(), Limits{MaxBytes: 1 << 20}, nil, reg)
	_ = it1

	typeID := "11111111-1111-1111-1111-111111111111"
	reg.Register(uuid.MustParse(typeID), "Point", []string{"x", "y"})

	it2 := New(addProgram(), Limits{MaxBytes: 1 << 20}, nil, reg)
	hv := bridge.HostValue{Kind: bridge.KindDataclass, TypeID: typeID, Attrs: []bridge.HostValue{
		{Kind: bridge.KindInt, Int: 1}, {Kind: bridge.KindInt, Int: 2},
	}}
	v, err := it2.converter.ToInternal(hv)
	require.NoError(t, err)
	got := it2.converter.FromInternal(v)
	assert.Equal(t, "Point", got.TypeName)
	assert.Equal(t, []string{"x", "y"}, got.FieldNames)
}
