package vm

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/nsframe"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/runtime"
	"github.com/wudi/monty/values"
)

// sigKind tags what the step loop in VM.run should do after one
// instruction executes. Grounded on the teacher's vm/vm.go step-function
// shape (a small enum of "what happened" results driving the outer loop),
// generalized here to also carry Monty's suspend-on-ExternalCall case.
type sigKind uint8

const (
	sigContinue sigKind = iota
	sigCall
	sigReturn
	sigRaise
	// sigRaiseUncatchable marks a resource-exhaustion condition (spec §7
	// kind 2: time/memory/depth) that must unwind past every try/except
	// handler instead of being caught by one, unlike sigRaise.
	sigRaiseUncatchable
	sigExternal
)

type signal struct {
	kind sigKind

	// sigCall
	fnID     intern.FunctionID
	args     []values.Value
	defaults []values.Value
	cells    []heap.HeapID // closure's captured cells, aligned with callee.FreeVarEnclosingSlots order

	// sigReturn
	value values.Value

	// sigRaise
	exc values.Value

	// sigExternal
	name string
}

// step executes exactly one bytecode instruction in frame f and reports
// what the outer run loop should do next (spec §4.4's execute_node,
// flattened to one bytecode op at a time rather than one AST node).
func (vm *VM) step(f *callFrame) (signal, error) {
	if int(f.ip) >= len(f.fn.Body) {
		return signal{kind: sigReturn, value: values.None()}, nil
	}
	ins := f.fn.Body[f.ip]
	f.ip++

	switch ins.Op {
	case opcodes.OpLoadConst:
		c := f.fn.Constants[ins.A]
		switch c.Kind {
		case opcodes.ConstInt:
			vm.push(values.Int(c.Int))
		case opcodes.ConstFloat:
			vm.push(values.Float(c.Float))
		case opcodes.ConstStr:
			vm.push(values.InternString(c.Str))
		case opcodes.ConstBytes:
			data := vm.Interns.Bytes(c.Bytes)
			id, err := vm.Heap.Allocate(&values.Bytes{V: append([]byte(nil), data...)})
			if err != nil {
				return vm.allocFailure(f, err)
			}
			vm.push(values.Ref(id))
		}
		return signal{kind: sigContinue}, nil

	case opcodes.OpLoadNone:
		vm.push(values.None())
	case opcodes.OpLoadTrue:
		vm.push(values.Bool(true))
	case opcodes.OpLoadFalse:
		vm.push(values.Bool(false))
	case opcodes.OpLoadEllipsis:
		vm.push(values.Ellipsis())
	case opcodes.OpPop:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		values.DropWithHeap(vm.Heap, v)
	case opcodes.OpDup:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		vm.push(v)
		vm.push(values.CloneWithHeap(vm.Heap, v))

	case opcodes.OpLoadLocal, opcodes.OpLoadGlobal:
		ns := vm.namespaceFor(f, ins.Op == opcodes.OpLoadGlobal)
		v := ns.Slots[ins.A]
		if v.Kind == values.KindUndefined {
			return vm.raiseName(f, ins.S)
		}
		vm.push(values.CloneWithHeap(vm.Heap, v))
	case opcodes.OpStoreLocal, opcodes.OpStoreGlobal:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		ns := vm.namespaceFor(f, ins.Op == opcodes.OpStoreGlobal)
		values.DropWithHeap(vm.Heap, ns.Slots[ins.A])
		ns.Slots[ins.A] = v
	case opcodes.OpDeleteLocal:
		ns := vm.namespaceFor(f, false)
		values.DropWithHeap(vm.Heap, ns.Slots[ins.A])
		ns.Slots[ins.A] = values.Undefined()

	case opcodes.OpLoadCell:
		ns := vm.namespaceFor(f, false)
		cellRef := ns.Slots[ins.A]
		data, err := vm.Heap.Get(cellRef.Ref)
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		cell := data.(*values.Cell)
		vm.push(values.CloneWithHeap(vm.Heap, cell.V))
	case opcodes.OpStoreCell:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		ns := vm.namespaceFor(f, false)
		cellRef := ns.Slots[ins.A]
		if err := values.SetCellValue(vm.Heap, cellRef.Ref, v); err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}

	case opcodes.OpBinAdd, opcodes.OpBinSub, opcodes.OpBinMult, opcodes.OpBinDiv,
		opcodes.OpBinFloorDiv, opcodes.OpBinMod, opcodes.OpBinPow,
		opcodes.OpBinAnd, opcodes.OpBinOr, opcodes.OpBinXor,
		opcodes.OpBinLShift, opcodes.OpBinRShift:
		return vm.execBinOp(f, ins)

	case opcodes.OpCompareEq, opcodes.OpCompareNe, opcodes.OpCompareLt,
		opcodes.OpCompareLe, opcodes.OpCompareGt, opcodes.OpCompareGe:
		return vm.execCompare(f, ins)

	case opcodes.OpUnaryNeg:
		return vm.execUnaryNeg(f)
	case opcodes.OpUnaryNot:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		truthy := values.Truthy(vm.Heap, v)
		values.DropWithHeap(vm.Heap, v)
		vm.push(values.Bool(!truthy))

	case opcodes.OpBuildList, opcodes.OpBuildTuple, opcodes.OpBuildSet:
		return vm.execBuildSeq(f, ins)
	case opcodes.OpBuildDict:
		return vm.execBuildDict(f, ins)

	case opcodes.OpSubscript:
		return vm.execSubscript(f)
	case opcodes.OpSubscriptAssign:
		return vm.execSubscriptAssign(f)
	case opcodes.OpAttr:
		return vm.execAttr(f, ins)
	case opcodes.OpAttrAssign:
		return vm.execAttrAssign(f, ins)

	case opcodes.OpIterSetup:
		return vm.execIterSetup(f, ins)
	case opcodes.OpIterNext:
		return vm.execIterNext(f, ins)

	case opcodes.OpJump:
		f.ip = ins.A
	case opcodes.OpJumpIfFalse:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		truthy := values.Truthy(vm.Heap, v)
		values.DropWithHeap(vm.Heap, v)
		if !truthy {
			f.ip = ins.A
		}
	case opcodes.OpJumpIfTrue:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		truthy := values.Truthy(vm.Heap, v)
		values.DropWithHeap(vm.Heap, v)
		if truthy {
			f.ip = ins.A
		}

	case opcodes.OpReturn:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		return signal{kind: sigReturn, value: v}, nil
	case opcodes.OpReturnNone:
		return signal{kind: sigReturn, value: values.None()}, nil

	case opcodes.OpRaise:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		if v.Kind != values.KindException {
			values.DropWithHeap(vm.Heap, v)
			exc, aerr := runtime.TypeError(vm.Heap, "exceptions must derive from BaseException")
			if aerr != nil {
				return signal{}, NewInternalError(aerr, f.frame.Name, ins.Op)
			}
			v = exc
		}
		return signal{kind: sigRaise, exc: v}, nil
	case opcodes.OpReraise:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		return signal{kind: sigRaise, exc: v}, nil

	case opcodes.OpAssert:
		return vm.execAssert(f, ins)

	case opcodes.OpSetupTry:
		f.handlers = append(f.handlers, ins.A)
	case opcodes.OpPopTry:
		if n := len(f.handlers); n > 0 {
			f.handlers = f.handlers[:n-1]
		}

	case opcodes.OpCall:
		return vm.execCall(f, ins)
	case opcodes.OpMakeFunction:
		return vm.execMakeFunction(f, ins, false)
	case opcodes.OpMakeClosure:
		return vm.execMakeFunction(f, ins, true)

	case opcodes.OpExternalCall:
		return vm.execExternalCall(f, ins)
	case opcodes.OpPrint:
		v, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		if vm.Print != nil {
			vm.Print(values.FormatStr(vm.Heap, v, vm.Interns))
		}
		values.DropWithHeap(vm.Heap, v)

	default:
		return signal{}, NewInternalError(ErrInternal, f.frame.Name, ins.Op)
	}
	return signal{kind: sigContinue}, nil
}

// namespaceFor resolves which namespace an instruction's local/global
// variant targets.
func (vm *VM) namespaceFor(f *callFrame, global bool) *nsframe.Namespace {
	if global {
		return vm.NS.At(nsframe.GlobalNamespaceIndex)
	}
	return vm.NS.At(f.frame.NamespaceIndex)
}

func (vm *VM) allocFailure(f *callFrame, err error) (signal, error) {
	if err == heap.ErrBudgetExceeded {
		// Memory exhaustion is resource exhaustion (spec §7 kind 2): it
		// must bypass try/except, not just raise OverflowError normally.
		exc := values.NewException(values.ExcOverflowError)
		return signal{kind: sigRaiseUncatchable, exc: exc}, nil
	}
	return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpLoadConst)
}

func (vm *VM) raiseName(f *callFrame, nameID intern.StringID) (signal, error) {
	exc, err := runtime.NameError(vm.Heap, vm.Interns.String(nameID))
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpLoadLocal)
	}
	return signal{kind: sigRaise, exc: exc}, nil
}
