// Package monty is the embedding API (spec §6.4): construct an
// interpreter instance from an already-compiled program, run it against a
// set of host input values, and exchange external-call suspensions with
// the host. Grounded on spec §6.4's `new`/`run`/`resume` shape and the
// teacher's `vm.NewVirtualMachine`-then-`Execute` constructor/method
// pairing (cmd/hey wires up the VM exactly this way, minus the PHP
// source-parsing step spec.md §1 places out of scope here).
package monty

import (
	"time"

	"github.com/wudi/monty/bridge"
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/registry"
	"github.com/wudi/monty/vm"
)

// Program is one already-compiled unit: the frozen intern tables, the
// function table, and the module-level function, held separately in
// Module rather than as an entry of Table. The surface
// parser and the bytecode compiler that produce a Program are explicit
// Non-goals (spec §1); a host embeds Monty by constructing a Program
// itself or by shipping one alongside its own compiler.
type Program struct {
	Interns *intern.Interns
	Table   *registry.Table
	Module  *registry.FunctionRecord

	// ext_fn_names (spec §6.4) are already baked into Interns by the
	// (out-of-scope) compiler, which registers each one via
	// intern.Builder.ExternalFunction at compile time; OpExternalCall
	// resolves them back to a name through Interns.ExternalFunctionName,
	// so Program carries no separate ext-function table of its own.

	// InputNames and InputSlots are parallel: InputNames[i] is bound into
	// the module's global namespace at InputSlots[i] before Run starts,
	// the same way a function's positional parameters bind to namespace
	// slots (registry.Parameter.NamespaceSlot) — spec §6.4 names this
	// correspondence "input_names" without specifying a binding
	// mechanism, so Monty reuses the parameter-binding convention already
	// established for calls (DESIGN.md Open Question).
	InputNames []string
	InputSlots []int
}

// ResultKind classifies what Run/Resume produced.
type ResultKind uint8

const (
	ResultValue ResultKind = iota
	ResultException
	ResultExternalCall
)

// ExternalCall describes a suspended host effect (spec §6.2): the
// external function name and its already-converted argument values.
type ExternalCall struct {
	Name string
	Args []bridge.HostValue
}

// Result is what Run/Resume reports back to the host (spec §6.4's
// `value | exception | external_call`).
type Result struct {
	Kind         ResultKind
	Value        bridge.HostValue
	Exception    bridge.HostValue
	ExternalCall *ExternalCall
}

// Limits configures the resource bounds a run is metered against (spec
// §5): wall-clock deadline, call depth, byte budget, and cycle-collection
// cadence. A zero Limits disables every bound — fine for trusted test
// programs, never for untrusted host input.
type Limits struct {
	MaxBytes       int64
	MaxAllocations int64
	MaxDepth       int
	GCInterval     int
	Timeout        time.Duration // zero means no deadline
}

// Interpreter is one embeddable run of a Program: its own heap, namespace
// stack, and VM, plus the host value bridge and dataclass registry that
// round-trips values across Run/Resume (spec §6.1/§6.3).
type Interpreter struct {
	program   *Program
	tracker   *heap.DefaultTracker
	heap      *heap.Heap
	vm        *vm.VM
	converter *bridge.Converter
	output    []byte // unused: printed output goes to the print callback given to New
}

// New constructs an interpreter ready to run program's module body (spec
// §6.4's `new(source, filename, input_names, ext_fn_names)`, minus the
// source/filename arguments a compiler would consume — see Program's doc
// comment). print receives every value a running program passes to
// `print(...)`; pass nil to discard it. dataclasses lets the host reuse
// one dataclass identity registry across multiple Interpreters (spec
// §6.3's persisted state); pass nil for a fresh one.
func New(program *Program, limits Limits, print func(string), dataclasses *bridge.DataclassRegistry) *Interpreter {
	tracker := heap.NewDefaultTracker(heap.Limits{
		MaxBytes:       limits.MaxBytes,
		MaxAllocations: limits.MaxAllocations,
		MaxDepth:       limits.MaxDepth,
		GCInterval:     limits.GCInterval,
	})
	if limits.Timeout > 0 {
		deadline := time.Now().Add(limits.Timeout).UnixNano()
		tracker.SetDeadline(func() int64 { return time.Now().UnixNano() }, deadline)
	}
	h := heap.New(tracker)
	vmach := vm.New(h, program.Interns, program.Table, program.Module.NamespaceSize, print)
	return &Interpreter{
		program:   program,
		tracker:   tracker,
		heap:      h,
		vm:        vmach,
		converter: bridge.NewConverter(h, program.Interns, dataclasses),
	}
}

// Run binds inputs into the module's global namespace at the slots
// Program.InputSlots describes, then executes the module body to
// completion, to an unhandled exception, or to the first ExternalCall
// suspension (spec §6.4's `run(inputs)`).
func (it *Interpreter) Run(inputs []bridge.HostValue) (Result, error) {
	if err := it.bindInputs(inputs); err != nil {
		return Result{}, err
	}
	out, err := it.vm.RunModule(it.program.Module)
	if err != nil {
		return Result{}, err
	}
	return it.toResult(out), nil
}

// Resume delivers a host reply to a previously-suspended ExternalCall and
// continues execution (spec §6.4's `resume(reply)`).
func (it *Interpreter) Resume(reply bridge.HostValue) (Result, error) {
	v, err := it.converter.ToInternal(reply)
	if err != nil {
		return Result{}, err
	}
	out, err := it.vm.Resume(v)
	if err != nil {
		return Result{}, err
	}
	return it.toResult(out), nil
}

func (it *Interpreter) bindInputs(inputs []bridge.HostValue) error {
	global := it.vm.NS.At(0)
	for i, slot := range it.program.InputSlots {
		if i >= len(inputs) {
			break
		}
		v, err := it.converter.ToInternal(inputs[i])
		if err != nil {
			return err
		}
		global.Slots[slot] = v
	}
	return nil
}

func (it *Interpreter) toResult(out vm.Outcome) Result {
	switch out.Status {
	case vm.StatusCompleted:
		return Result{Kind: ResultValue, Value: it.converter.FromInternal(out.Value)}
	case vm.StatusRaised:
		return Result{Kind: ResultException, Exception: it.converter.FromInternal(out.Exception)}
	case vm.StatusSuspended:
		args := make([]bridge.HostValue, len(out.Pending.Args))
		for i, a := range out.Pending.Args {
			args[i] = it.converter.FromInternal(a)
		}
		return Result{Kind: ResultExternalCall, ExternalCall: &ExternalCall{Name: out.Pending.Name, Args: args}}
	default:
		return Result{}
	}
}

// BytesInUse reports the interpreter's current heap byte charge, for
// hosts that want to observe the resource tracker without a full
// diagnostics API (spec §8's refcount-balance testable property is best
// checked by a host calling this after Run returns ResultValue/
// ResultException and expecting zero).
func (it *Interpreter) BytesInUse() int64 { return it.tracker.BytesInUse() }
