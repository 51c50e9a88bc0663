package vm

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/nsframe"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/registry"
	"github.com/wudi/monty/runtime"
	"github.com/wudi/monty/values"
)

// Status classifies how a Run/Resume call returned control to the host
// (spec §4.4/§4.6: a run either finishes, raises out of the top frame, or
// suspends on an ExternalCall awaiting a host reply).
type Status uint8

const (
	StatusCompleted Status = iota
	StatusRaised
	StatusSuspended
)

// PendingCall describes the host effect a suspended run is waiting on
// (spec §6.2): the external function name and its already-evaluated
// argument values.
type PendingCall struct {
	Name string
	Args []values.Value
}

// Outcome is what Run/Resume reports back to the embedding API in
// package monty.
type Outcome struct {
	Status    Status
	Value     values.Value // the top-level expression/return value, when Completed
	Exception values.Value // populated when Raised
	Traceback nsframe.Traceback
	Pending   *PendingCall // populated when Suspended
}

// callFrame is one active call's mutable execution state: its logical
// frame (name, namespace), its compiled function body, resume position,
// and the evaluation stack local to this call (spec §4.4: each frame has
// its own operand stack; nothing is shared across calls except the
// namespace stack and the heap).
type callFrame struct {
	frame *nsframe.Frame
	fn    *registry.FunctionRecord
	ip    int32
	stack []values.Value
	// handlers are pending try/except targets: each entry is the instruction
	// to jump to if an exception propagates to this point in this frame.
	handlers []int32
	// iterators holds the reified for-loop iterator state keyed by the
	// small slot id a compiler assigns each source-level `for` (spec
	// §4.4.2); looked up by OpIterSetup/OpIterNext's A operand.
	iterators map[int32]*values.Iterator
}

// VM is one interpreter run's complete mutable state (spec §4/§5): the
// value heap, the namespace stack, a Go-level call-frame stack standing
// in for recursive evaluation (kept explicit, not Go-recursive, so a
// suspended run's entire continuation can be held onto between Run and
// Resume calls), and the shared read-only intern/function tables.
//
// Grounded on the teacher's vm/vm.go dispatch-loop shape (an explicit
// frame stack plus a step function switching on the current opcode);
// Monty's per-instruction suspend/resume and exception-taxonomy handling
// follow _examples/original_source's run_frame.rs.
type VM struct {
	Heap    *heap.Heap
	NS      *nsframe.Namespaces
	Interns *intern.Interns
	Table   *registry.Table
	Print   func(string)

	frames []*callFrame
}

// New constructs a VM ready to run the global frame of one compiled
// program (spec §6.4: monty.New builds exactly this).
func New(h *heap.Heap, interns *intern.Interns, table *registry.Table, globalNamespaceSize int, print func(string)) *VM {
	return &VM{
		Heap:    h,
		NS:      nsframe.NewNamespaces(globalNamespaceSize),
		Interns: interns,
		Table:   table,
		Print:   print,
	}
}

func (vm *VM) top() *callFrame { return vm.frames[len(vm.frames)-1] }

// frameStackRoots appends every heap reference sitting on an active
// frame's operand stack. nsframe.Namespaces.Roots only walks namespace
// slots, which a value reaches solely once a STORE_* opcode commits it —
// a binary op's freshly-pushed, not-yet-stored result lives only here in
// between, and a GC pass landing mid-expression must still see it.
func (vm *VM) frameStackRoots(dst []heap.HeapID) []heap.HeapID {
	for _, f := range vm.frames {
		for _, v := range f.stack {
			if v.Kind == values.KindRef {
				dst = append(dst, v.Ref)
			}
			if v.Kind == values.KindException && v.ExcArg.Valid() {
				dst = append(dst, v.ExcArg)
			}
		}
	}
	return dst
}

func (vm *VM) push(v values.Value) { f := vm.top(); f.stack = append(f.stack, v) }

func (vm *VM) pop() (values.Value, error) {
	f := vm.top()
	n := len(f.stack)
	if n == 0 {
		return values.Value{}, ErrStackUnderflow
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, nil
}

// RunModule executes the module-level (global) frame's bytecode from the
// start. fn is the synthetic compiled function record describing the
// module body (monty.Program.Module).
func (vm *VM) RunModule(fn *registry.FunctionRecord) (Outcome, error) {
	f := &callFrame{
		frame: nsframe.NewFrame(vm.Interns.String(intern.ModuleStringID), nsframe.GlobalNamespaceIndex, vm.Interns),
		fn:    fn,
	}
	vm.frames = []*callFrame{f}
	return vm.run()
}

// Resume continues a previously-suspended run, delivering reply as the
// ExternalCall's result (spec §4.6, §6.4's Resume operation).
func (vm *VM) Resume(reply values.Value) (Outcome, error) {
	if len(vm.frames) == 0 {
		return Outcome{}, NewInternalError(ErrInternal, "<no active run>", opcodes.OpExternalCall)
	}
	vm.push(reply)
	return vm.run()
}

// run drives the explicit frame stack until the program completes,
// raises past the outermost frame, or suspends on an ExternalCall.
func (vm *VM) run() (Outcome, error) {
	for {
		if len(vm.frames) == 0 {
			return Outcome{Status: StatusCompleted, Value: values.None()}, nil
		}
		f := vm.top()
		if vm.Heap.ShouldCollect() {
			roots := vm.NS.Roots(nil)
			roots = vm.frameStackRoots(roots)
			vm.Heap.CollectCycles(roots)
		}
		// Resource-bound check before every instruction (spec §5): an
		// expired deadline raises an uncatchable TimeoutError-equivalent
		// that bypasses every try/except, per spec §7's "kind 2" error.
		if vm.Heap.CheckDeadline() {
			exc, err := runtime.RuntimeError(vm.Heap, "execution time limit exceeded")
			if err != nil {
				return Outcome{}, NewInternalError(err, f.frame.Name, opcodes.OpLoadNone)
			}
			return vm.raiseUncatchable(exc), nil
		}

		sig, err := vm.step(f)
		if err != nil {
			return Outcome{}, err
		}
		switch sig.kind {
		case sigContinue:
			continue
		case sigCall:
			callee := vm.Table.Functions[sig.fnID]
			if vm.depthExceeded() {
				exc, err := runtime.RuntimeError(vm.Heap, "maximum recursion depth exceeded")
				if err != nil {
					return Outcome{}, NewInternalError(err, f.frame.Name, opcodes.OpCall)
				}
				return vm.raiseUncatchable(exc), nil
			}
			resolveDefault := func(idx int) (values.Value, error) {
				if idx < len(sig.defaults) {
					return values.CloneWithHeap(vm.Heap, sig.defaults[idx]), nil
				}
				return values.None(), nil
			}
			slots, exc, err := runtime.BindArguments(vm.Heap, callee, sig.args, nil, resolveDefault)
			if err != nil {
				return Outcome{}, NewInternalError(err, f.frame.Name, opcodes.OpCall)
			}
			if exc.Kind == values.KindException {
				if out, handled := vm.raise(exc); handled {
					continue
				} else {
					return out, nil
				}
			}
			nsIdx := vm.NS.Push(callee.NamespaceSize)
			copy(vm.NS.At(nsIdx).Slots, slots)
			for i, slot := range callee.CapturedLocalSlots {
				vm.Heap.IncRef(sig.cells[i])
				vm.NS.At(nsIdx).Slots[slot] = values.Ref(sig.cells[i])
			}
			nf := &callFrame{frame: nsframe.NewFrame(callee.Name, nsIdx, vm.Interns), fn: callee}
			vm.frames = append(vm.frames, nf)
			continue
		case sigReturn:
			if f.frame.NamespaceIndex != nsframe.GlobalNamespaceIndex {
				vm.NS.PopWithHeap(vm.Heap)
			}
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return Outcome{Status: StatusCompleted, Value: sig.value}, nil
			}
			vm.push(sig.value)
			continue
		case sigRaise:
			if out, handled := vm.raise(sig.exc); handled {
				continue
			} else {
				return out, nil
			}
		case sigRaiseUncatchable:
			return vm.raiseUncatchable(sig.exc), nil
		case sigExternal:
			return Outcome{Status: StatusSuspended, Pending: &PendingCall{Name: sig.name, Args: sig.args}}, nil
		}
	}
}

// raise propagates sig.exc outward: first looking for a handler in the
// current frame (spec §4.4's try/except), then unwinding frames one at a
// time, building a traceback as it goes (spec §4.7). Returns handled=true
// if a handler in the (possibly now-current) frame caught it and
// execution should continue the main loop; otherwise the returned
// Outcome is final.
func (vm *VM) raise(exc values.Value) (Outcome, bool) {
	tb := nsframe.Traceback{}
	for len(vm.frames) > 0 {
		f := vm.top()
		tb.AddCallerFrame(nsframe.RawStackFrame{Line: f.frame.SourceLine, FrameName: f.frame.Name})
		if n := len(f.handlers); n > 0 {
			target := f.handlers[n-1]
			f.handlers = f.handlers[:n-1]
			f.ip = target
			vm.push(exc)
			return Outcome{}, true
		}
		vm.NS.PopWithHeap(vm.Heap)
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	return Outcome{Status: StatusRaised, Exception: exc, Traceback: tb}, false
}

// raiseUncatchable unwinds every frame without ever consulting a frame's
// try/except handlers, then returns the final Outcome directly (spec §7
// kind 2: resource exhaustion "unwinds to the host" unconditionally,
// unlike raise's handler search).
func (vm *VM) raiseUncatchable(exc values.Value) Outcome {
	tb := nsframe.Traceback{}
	for len(vm.frames) > 0 {
		f := vm.top()
		tb.AddCallerFrame(nsframe.RawStackFrame{Line: f.frame.SourceLine, FrameName: f.frame.Name})
		vm.NS.PopWithHeap(vm.Heap)
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	return Outcome{Status: StatusRaised, Exception: exc, Traceback: tb}
}

// depthExceeded reports whether one more nested call would exceed the
// tracker's configured maximum call depth (spec §5's recursion bound).
func (vm *VM) depthExceeded() bool {
	return vm.Heap.CheckDepth(vm.NS.Depth())
}

// floatFitsInt64 reports whether f has no fractional part and fits an
// int64, returning the converted value when it does.
func floatFitsInt64(f float64) (int64, bool) {
	if f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
