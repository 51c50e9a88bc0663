package vm

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/runtime"
	"github.com/wudi/monty/values"
)

var binOpOf = map[opcodes.Op]values.BinOp{
	opcodes.OpBinAdd:      values.OpAdd,
	opcodes.OpBinSub:      values.OpSub,
	opcodes.OpBinMult:     values.OpMult,
	opcodes.OpBinDiv:      values.OpDiv,
	opcodes.OpBinFloorDiv: values.OpFloorDiv,
	opcodes.OpBinMod:      values.OpMod,
	opcodes.OpBinPow:      values.OpPow,
	opcodes.OpBinAnd:      values.OpBitAnd,
	opcodes.OpBinOr:       values.OpBitOr,
	opcodes.OpBinXor:      values.OpBitXor,
	opcodes.OpBinLShift:   values.OpLShift,
	opcodes.OpBinRShift:   values.OpRShift,
}

// execBinOp implements the twelve arithmetic/bitwise opcodes, allocating a
// LongInt heap record on the spot when values.Arith signals int overflow
// via its PromotedBigInt marker (detected with values.IsPromotedBigInt),
// and likewise allocating temporal results marked by values.PromotedTemporal.
func (vm *VM) execBinOp(f *callFrame, ins opcodes.Instruction) (signal, error) {
	b, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	a, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	result, ok, aerr := values.Arith(vm.Heap, binOpOf[ins.Op], a, b)
	values.DropWithHeap(vm.Heap, a)
	values.DropWithHeap(vm.Heap, b)
	if aerr != nil {
		ae := aerr.(*values.ArithError)
		exc, err := runtime.NewException(vm.Heap, ae.Type, ae.Message)
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	if !ok {
		exc, err := runtime.TypeError(vm.Heap, "unsupported operand type(s) for "+ins.Op.String())
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	if big, promoted := values.IsPromotedBigInt(result); promoted {
		id, aerr := vm.Heap.Allocate(&values.LongInt{V: big})
		if aerr != nil {
			return vm.allocFailure(f, aerr)
		}
		result = values.Ref(id)
	}
	if data, promoted := values.IsPromotedTemporal(result); promoted {
		id, aerr := vm.Heap.Allocate(data)
		if aerr != nil {
			return vm.allocFailure(f, aerr)
		}
		result = values.Ref(id)
	}
	vm.push(result)
	return signal{kind: sigContinue}, nil
}

// execCompare implements the six comparison opcodes. Eq/Ne go through
// values.Eq (total, never "unordered"); the four ordering comparisons go
// through values.Cmp, synthesizing TypeError for unordered operands
// (spec §4.3: cross-type ordering comparisons raise, equality does not).
func (vm *VM) execCompare(f *callFrame, ins opcodes.Instruction) (signal, error) {
	b, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	a, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	defer values.DropWithHeap(vm.Heap, a)
	defer values.DropWithHeap(vm.Heap, b)

	if ins.Op == opcodes.OpCompareEq || ins.Op == opcodes.OpCompareNe {
		eq := vm.eqValues(a, b)
		if ins.Op == opcodes.OpCompareNe {
			eq = !eq
		}
		vm.push(values.Bool(eq))
		return signal{kind: sigContinue}, nil
	}

	if a.Kind == values.KindInternString && b.Kind == values.KindInternString {
		sa, sb := vm.Interns.String(a.Str), vm.Interns.String(b.Str)
		vm.push(values.Bool(stringCompareMatches(ins.Op, sa, sb)))
		return signal{kind: sigContinue}, nil
	}

	ord, ok := values.Cmp(vm.Heap, a, b, 256)
	if !ok {
		exc, err := runtime.TypeError(vm.Heap, "comparison not supported between these types")
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	vm.push(values.Bool(orderingMatches(ins.Op, ord)))
	return signal{kind: sigContinue}, nil
}

func stringCompareMatches(op opcodes.Op, a, b string) bool {
	var ord values.Ordering
	switch {
	case a < b:
		ord = values.Less
	case a > b:
		ord = values.Greater
	default:
		ord = values.Equal
	}
	return orderingMatches(op, ord)
}

func orderingMatches(op opcodes.Op, ord values.Ordering) bool {
	switch op {
	case opcodes.OpCompareLt:
		return ord == values.Less
	case opcodes.OpCompareLe:
		return ord != values.Greater
	case opcodes.OpCompareGt:
		return ord == values.Greater
	case opcodes.OpCompareGe:
		return ord != values.Less
	}
	return false
}

// eqValues handles the KindInternString case values.Eq can't (it has no
// Interns table), falling back to values.Eq for everything else.
func (vm *VM) eqValues(a, b values.Value) bool {
	if a.Kind == values.KindInternString && b.Kind == values.KindInternString {
		return vm.Interns.String(a.Str) == vm.Interns.String(b.Str)
	}
	return values.Eq(vm.Heap, a, b, 256)
}

func (vm *VM) execUnaryNeg(f *callFrame) (signal, error) {
	v, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpUnaryNeg)
	}
	result, ok, aerr := values.Arith(vm.Heap, values.OpSub, values.Int(0), v)
	values.DropWithHeap(vm.Heap, v)
	if aerr != nil {
		ae := aerr.(*values.ArithError)
		exc, err := runtime.NewException(vm.Heap, ae.Type, ae.Message)
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpUnaryNeg)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	if !ok {
		exc, err := runtime.TypeError(vm.Heap, "bad operand type for unary -")
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpUnaryNeg)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	if big, promoted := values.IsPromotedBigInt(result); promoted {
		id, aerr := vm.Heap.Allocate(&values.LongInt{V: big})
		if aerr != nil {
			return vm.allocFailure(f, aerr)
		}
		result = values.Ref(id)
	}
	vm.push(result)
	return signal{kind: sigContinue}, nil
}

func (vm *VM) popN(n int32) ([]values.Value, error) {
	out := make([]values.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (vm *VM) execBuildSeq(f *callFrame, ins opcodes.Instruction) (signal, error) {
	items, err := vm.popN(ins.A)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	var data heap.Data
	switch ins.Op {
	case opcodes.OpBuildList:
		data = &values.List{Items: items}
	case opcodes.OpBuildTuple:
		data = &values.Tuple{Items: items}
	case opcodes.OpBuildSet:
		set := &values.Set{}
		for _, v := range items {
			if !vm.setAdd(set, v) {
				values.DropWithHeap(vm.Heap, v)
			}
		}
		data = set
	}
	id, aerr := vm.Heap.Allocate(data)
	if aerr != nil {
		return vm.allocFailure(f, aerr)
	}
	vm.push(values.Ref(id))
	return signal{kind: sigContinue}, nil
}

func (vm *VM) setAdd(s *values.Set, v values.Value) bool {
	for _, existing := range s.Items {
		if vm.eqValues(existing, v) {
			return false
		}
	}
	s.Items = append(s.Items, v)
	s.ModCount++
	return true
}

func (vm *VM) execBuildDict(f *callFrame, ins opcodes.Instruction) (signal, error) {
	pairs, err := vm.popN(ins.A * 2)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	d := values.NewDict()
	eq := func(a, b values.Value) bool { return vm.eqValues(a, b) }
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(vm.Heap, pairs[i], pairs[i+1], eq)
	}
	id, aerr := vm.Heap.Allocate(d)
	if aerr != nil {
		return vm.allocFailure(f, aerr)
	}
	vm.push(values.Ref(id))
	return signal{kind: sigContinue}, nil
}

func (vm *VM) execAssert(f *callFrame, ins opcodes.Instruction) (signal, error) {
	var msg string
	hasMsg := ins.A != 0
	if hasMsg {
		mv, err := vm.pop()
		if err != nil {
			return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
		}
		msg = values.FormatStr(vm.Heap, mv, vm.Interns)
		values.DropWithHeap(vm.Heap, mv)
	}
	cond, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	truthy := values.Truthy(vm.Heap, cond)
	values.DropWithHeap(vm.Heap, cond)
	if truthy {
		return signal{kind: sigContinue}, nil
	}
	exc, aerr := runtime.AssertionError(vm.Heap, msg)
	if aerr != nil {
		return signal{}, NewInternalError(aerr, f.frame.Name, ins.Op)
	}
	return signal{kind: sigRaise, exc: exc}, nil
}

// execCall pops the callee's A positional arguments and the callee value
// itself, resolving Closure/FunctionDefaults/plain-Function shapes into a
// sigCall for the outer run loop to bind and dispatch (spec §4.4.4/§4.5).
func (vm *VM) execCall(f *callFrame, ins opcodes.Instruction) (signal, error) {
	args, err := vm.popN(ins.A)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	callee, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}

	var fnID intern.FunctionID
	var defaults []values.Value
	var cells []heap.HeapID
	switch callee.Kind {
	case values.KindFunction:
		fnID = callee.FnID
	case values.KindRef:
		data, gerr := vm.Heap.Get(callee.Ref)
		if gerr != nil {
			return signal{}, NewInternalError(gerr, f.frame.Name, ins.Op)
		}
		switch c := data.(type) {
		case *values.Closure:
			fnID, defaults, cells = c.FunctionID, c.Defaults, c.CapturedCells
		case *values.FunctionDefaults:
			fnID, defaults = c.FunctionID, c.Defaults
		default:
			values.DropWithHeap(vm.Heap, callee)
			exc, aerr := runtime.TypeError(vm.Heap, "object is not callable")
			if aerr != nil {
				return signal{}, NewInternalError(aerr, f.frame.Name, ins.Op)
			}
			return signal{kind: sigRaise, exc: exc}, nil
		}
	default:
		values.DropWithHeap(vm.Heap, callee)
		exc, aerr := runtime.TypeError(vm.Heap, "object is not callable")
		if aerr != nil {
			return signal{}, NewInternalError(aerr, f.frame.Name, ins.Op)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	values.DropWithHeap(vm.Heap, callee)
	return signal{kind: sigCall, fnID: fnID, args: args, defaults: defaults, cells: cells}, nil
}

// execMakeFunction builds a function value at def-time: a plain
// FunctionDefaults record, or (closure=true) a Closure additionally
// capturing cells from the enclosing namespace's OwnedCellSlots, matched
// against the callee's FreeVarEnclosingSlots (spec §4.5).
func (vm *VM) execMakeFunction(f *callFrame, ins opcodes.Instruction, closure bool) (signal, error) {
	fnID := intern.FunctionID(ins.A)
	callee := vm.Table.Functions[fnID]
	defaults, err := vm.popN(ins.B)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}

	var data heap.Data
	if closure {
		enclosing := vm.namespaceFor(f, false)
		cells := make([]heap.HeapID, len(callee.FreeVarEnclosingSlots))
		for i, slot := range callee.FreeVarEnclosingSlots {
			v := enclosing.Slots[slot]
			if v.Kind == values.KindRef {
				vm.Heap.IncRef(v.Ref)
				cells[i] = v.Ref
			}
		}
		data = &values.Closure{FunctionID: fnID, CapturedCells: cells, Defaults: defaults}
	} else {
		data = &values.FunctionDefaults{FunctionID: fnID, Defaults: defaults}
	}
	id, aerr := vm.Heap.Allocate(data)
	if aerr != nil {
		return vm.allocFailure(f, aerr)
	}
	vm.push(values.Ref(id))
	return signal{kind: sigContinue}, nil
}

// execExternalCall pops A already-evaluated argument values and suspends
// the whole run, handing control to the host (spec §4.6/§6.2). f.ip
// already points at the instruction following this one, so Resume simply
// pushes the host's reply and continues — no rewind needed.
func (vm *VM) execExternalCall(f *callFrame, ins opcodes.Instruction) (signal, error) {
	args, err := vm.popN(ins.A)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	name := vm.Interns.ExternalFunctionName(intern.ExtFunctionID(ins.S))
	return signal{kind: sigExternal, name: name, args: args}, nil
}
