package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/registry"
	"github.com/wudi/monty/runtime"
	"github.com/wudi/monty/values"
)

func newTestHeap(limits heap.Limits) *heap.Heap {
	return heap.New(heap.NewDefaultTracker(limits))
}

func newTestVM(h *heap.Heap, table *registry.Table, globalSize int) *VM {
	return New(h, intern.NewBuilder().Build(), table, globalSize, nil)
}

// TestRunModuleSimpleExpression exercises "x + 1" with x bound as an input
// directly into the global namespace, mirroring how monty.Interpreter.Run
// binds host values before execution starts.
func TestRunModuleSimpleExpression(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	table := &registry.Table{}
	vm := newTestVM(h, table, 1)
	vm.NS.Global().Slots[0] = values.Int(41)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 1,
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 1}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadGlobal, A: 0},
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, int64(42), out.Value.Int)
}

// TestCallWithDefaultArgument exercises a one-parameter function with a
// default, called with an explicit positional argument: def f(x=100):
// return x + 1 then f(10).
func TestCallWithDefaultArgument(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	fn := &registry.FunctionRecord{
		Name:          "f",
		NamespaceSize: 1,
		Params:        []registry.Parameter{{Name: "x", NamespaceSlot: 0, HasDefault: true}},
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 1}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadLocal, A: 0},
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpReturn},
		},
	}
	table := &registry.Table{Functions: []*registry.FunctionRecord{fn}}
	vm := newTestVM(h, table, 0)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 0,
		Constants: []opcodes.Constant{
			{Kind: opcodes.ConstInt, Int: 100},
			{Kind: opcodes.ConstInt, Int: 10},
		},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadConst, A: 0},          // default value 100
			{Op: opcodes.OpMakeFunction, A: 0, B: 1}, // fnID=0, pops 1 default
			{Op: opcodes.OpLoadConst, A: 1},          // argument 10
			{Op: opcodes.OpCall, A: 1},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, int64(11), out.Value.Int)
}

// TestCallUsesDefaultWhenArgumentOmitted calls the same function with no
// arguments, exercising runtime.BindArguments' default-resolution path.
func TestCallUsesDefaultWhenArgumentOmitted(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	fn := &registry.FunctionRecord{
		Name:          "f",
		NamespaceSize: 1,
		Params:        []registry.Parameter{{Name: "x", NamespaceSlot: 0, HasDefault: true}},
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 1}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadLocal, A: 0},
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpReturn},
		},
	}
	table := &registry.Table{Functions: []*registry.FunctionRecord{fn}}
	vm := newTestVM(h, table, 0)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 0,
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 100}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpMakeFunction, A: 0, B: 1},
			{Op: opcodes.OpCall, A: 0},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, int64(101), out.Value.Int)
}

// TestClosureCellPersistsAcrossCalls builds a closure over a heap-allocated
// Cell shared with the enclosing (global) namespace, and calls it twice,
// confirming the cell's mutated value survives between calls rather than
// being reset each time (spec §4.5's capture-by-reference semantics).
func TestClosureCellPersistsAcrossCalls(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	cellID, err := h.Allocate(&values.Cell{V: values.Int(0)})
	require.NoError(t, err)

	closureFn := &registry.FunctionRecord{
		Name:                  "bump",
		NamespaceSize:         1,
		FreeVarEnclosingSlots: []int{0},
		CapturedLocalSlots:    []int{0},
		Constants:             []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 1}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadCell, A: 0},
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpDup},
			{Op: opcodes.OpStoreCell, A: 0},
			{Op: opcodes.OpReturn},
		},
	}
	table := &registry.Table{Functions: []*registry.FunctionRecord{closureFn}}
	vm := newTestVM(h, table, 2)
	vm.NS.Global().Slots[0] = values.Ref(cellID)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 2,
		Body: []opcodes.Instruction{
			{Op: opcodes.OpMakeClosure, A: 0, B: 0},
			{Op: opcodes.OpStoreGlobal, A: 1},
			{Op: opcodes.OpLoadGlobal, A: 1},
			{Op: opcodes.OpCall, A: 0},
			{Op: opcodes.OpLoadGlobal, A: 1},
			{Op: opcodes.OpCall, A: 0},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, int64(3), out.Value.Int) // 1 (first call) + 2 (second call)
}

// TestRecursionDepthExceededBypassesExceptHandler is a regression test: a
// try/except RuntimeError wrapping unbounded recursion must NOT catch the
// recursion-depth exhaustion, since spec §7 classifies it as an
// uncatchable resource-exhaustion condition (kind 2), not a catchable user
// exception (kind 1).
func TestRecursionDepthExceededBypassesExceptHandler(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20, MaxDepth: 5})
	rec := &registry.FunctionRecord{
		Name:          "rec",
		NamespaceSize: 0,
		Body: []opcodes.Instruction{
			{Op: opcodes.OpLoadGlobal, A: 0},
			{Op: opcodes.OpCall, A: 0},
			{Op: opcodes.OpReturnNone},
		},
	}
	table := &registry.Table{Functions: []*registry.FunctionRecord{rec}}
	vm := newTestVM(h, table, 1)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 1,
		Body: []opcodes.Instruction{
			{Op: opcodes.OpMakeFunction, A: 0, B: 0},
			{Op: opcodes.OpStoreGlobal, A: 0},
			{Op: opcodes.OpSetupTry, A: 6}, // catch target, never reached
			{Op: opcodes.OpLoadGlobal, A: 0},
			{Op: opcodes.OpCall, A: 0},
			{Op: opcodes.OpPopTry},
			{Op: opcodes.OpLoadNone},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusRaised, out.Status)
	assert.Equal(t, values.ExcRuntimeError, out.Exception.ExcTyp)
	assert.Contains(t, runtime.Message(h, out.Exception), "recursion depth")
}

// TestTryExceptCatchesOrdinaryRaise confirms the companion, catchable
// path: a user-level raise inside a try block does land the handler (as
// opposed to the uncatchable case above).
func TestTryExceptCatchesOrdinaryRaise(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	table := &registry.Table{}
	vm := newTestVM(h, table, 0)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 0,
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 7}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpSetupTry, A: 4},
			{Op: opcodes.OpLoadNone},
			{Op: opcodes.OpRaise}, // raises TypeError ("exceptions must derive from BaseException")
			{Op: opcodes.OpJump, A: 6},
			{Op: opcodes.OpPop}, // catch target: discard the caught exception
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, int64(7), out.Value.Int)
}

// TestAllocationBudgetExceededIsUncatchable mirrors the recursion-depth
// regression for the memory-exhaustion trigger: a byte budget too small
// for even one allocation must raise OverflowError uncatchably.
func TestAllocationBudgetExceededIsUncatchable(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1})
	table := &registry.Table{}
	builder := intern.NewBuilder()
	bytesID := builder.Bytes([]byte("too big to fit"))
	vm := New(h, builder.Build(), table, 0, nil)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 0,
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstBytes, Bytes: bytesID}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpSetupTry, A: 3},
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpJump, A: 4},
			{Op: opcodes.OpPop},
			{Op: opcodes.OpLoadNone},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	assert.Equal(t, StatusRaised, out.Status)
	assert.Equal(t, values.ExcOverflowError, out.Exception.ExcTyp)
}

// TestExternalCallSuspendsAndResumes exercises the host-effect boundary
// (spec §4.6/§6.2): the module suspends mid-expression, and Resume
// delivers the host's reply back onto the stack to finish the expression.
func TestExternalCallSuspendsAndResumes(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	table := &registry.Table{}
	builder := intern.NewBuilder()
	extID := builder.ExternalFunction("ask_host")
	vm := New(h, builder.Build(), table, 0, nil)

	module := &registry.FunctionRecord{
		Name:          "<module>",
		NamespaceSize: 0,
		Constants:     []opcodes.Constant{{Kind: opcodes.ConstInt, Int: 1}},
		Body: []opcodes.Instruction{
			{Op: opcodes.OpExternalCall, S: intern.StringID(extID)},
			{Op: opcodes.OpLoadConst, A: 0},
			{Op: opcodes.OpBinAdd},
			{Op: opcodes.OpReturn},
		},
	}

	out, err := vm.RunModule(module)
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, out.Status)
	require.NotNil(t, out.Pending)
	assert.Equal(t, "ask_host", out.Pending.Name)
	assert.Empty(t, out.Pending.Args)

	out, err = vm.Resume(values.Int(99))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, int64(100), out.Value.Int)
}

// TestFrameStackRootsKeepsOperandStackValueAlive guards against a GC pass
// sweeping a value that's only sitting on a call frame's operand stack —
// e.g. a BIN_ADD result not yet consumed by STORE_LOCAL. nsframe.Namespaces
// only roots namespace slots, so CollectCycles must also be handed the
// active frames' stacks.
func TestFrameStackRootsKeepsOperandStackValueAlive(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	table := &registry.Table{}
	vm := newTestVM(h, table, 1)

	id, err := h.Allocate(&values.List{})
	require.NoError(t, err)
	vm.frames = []*callFrame{{frame: nil, stack: []values.Value{values.Ref(id)}}}

	roots := vm.NS.Roots(nil)
	assert.Empty(t, roots, "value lives only on the operand stack, not a namespace slot")
	roots = vm.frameStackRoots(roots)
	assert.Contains(t, roots, id)

	h.CollectCycles(roots)
	_, err = h.Get(id)
	assert.NoError(t, err, "operand-stack value must survive a GC pass")
}

// TestFrameStackRootsOmissionWouldCollectLiveValue documents the bug the
// above test guards against: rooting only the namespaces sweeps a value
// that's live only on an operand stack.
func TestFrameStackRootsOmissionWouldCollectLiveValue(t *testing.T) {
	h := newTestHeap(heap.Limits{MaxBytes: 1 << 20})
	table := &registry.Table{}
	vm := newTestVM(h, table, 1)

	id, err := h.Allocate(&values.List{})
	require.NoError(t, err)
	vm.frames = []*callFrame{{frame: nil, stack: []values.Value{values.Ref(id)}}}

	h.CollectCycles(vm.NS.Roots(nil))
	_, err = h.Get(id)
	assert.ErrorIs(t, err, heap.ErrUseAfterFree)
}
