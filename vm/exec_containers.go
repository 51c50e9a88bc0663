package vm

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/runtime"
	"github.com/wudi/monty/values"
)

func normalizeIndex(length int, idx int64) (int, bool) {
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 || idx >= int64(length) {
		return 0, false
	}
	return int(idx), true
}

// execSubscript implements container[index] for every builtin container
// type that supports it (spec §3.2's container set), including slice
// objects for list/tuple/str/bytes.
func (vm *VM) execSubscript(f *callFrame) (signal, error) {
	idx, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscript)
	}
	container, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscript)
	}
	defer values.DropWithHeap(vm.Heap, container)
	defer values.DropWithHeap(vm.Heap, idx)

	if container.Kind != values.KindRef {
		return vm.subscriptError(f, "object is not subscriptable")
	}
	data, gerr := vm.Heap.Get(container.Ref)
	if gerr != nil {
		return signal{}, NewInternalError(gerr, f.frame.Name, opcodes.OpSubscript)
	}

	switch d := data.(type) {
	case *values.List:
		return vm.subscriptSeq(f, d.Items, idx, func(items []values.Value) (values.Value, error) {
			id, e := vm.Heap.Allocate(&values.List{Items: items})
			return values.Ref(id), e
		})
	case *values.Tuple:
		return vm.subscriptSeq(f, d.Items, idx, func(items []values.Value) (values.Value, error) {
			id, e := vm.Heap.Allocate(&values.Tuple{Items: items})
			return values.Ref(id), e
		})
	case *values.String:
		runes := []rune(d.V)
		if i, isInt, ok := asIndex(idx); isInt {
			n, inBounds := normalizeIndex(len(runes), i)
			if !ok || !inBounds {
				return vm.indexError(f, "string index out of range")
			}
			id, aerr := vm.Heap.Allocate(&values.String{V: string(runes[n])})
			if aerr != nil {
				return vm.allocFailure(f, aerr)
			}
			vm.push(values.Ref(id))
			return signal{kind: sigContinue}, nil
		}
		if sl, ok := vm.asSlice(idx); ok {
			start, stop, step, serr := sliceBounds(len(runes), sl)
			if serr != nil {
				return signal{}, serr
			}
			out := sliceRunes(runes, start, stop, step)
			id, aerr := vm.Heap.Allocate(&values.String{V: string(out)})
			if aerr != nil {
				return vm.allocFailure(f, aerr)
			}
			vm.push(values.Ref(id))
			return signal{kind: sigContinue}, nil
		}
		return vm.subscriptError(f, "string indices must be integers")
	case *values.Bytes:
		if i, isInt, ok := asIndex(idx); isInt {
			n, inBounds := normalizeIndex(len(d.V), i)
			if !ok || !inBounds {
				return vm.indexError(f, "index out of range")
			}
			vm.push(values.Int(int64(d.V[n])))
			return signal{kind: sigContinue}, nil
		}
		return vm.subscriptError(f, "bytes indices must be integers")
	case *values.Dict:
		v, ok := d.Get(vm.Heap, idx, vm.eqValues)
		if !ok {
			exc, aerr := runtime.KeyError(vm.Heap, values.FormatRepr(vm.Heap, idx, vm.Interns))
			if aerr != nil {
				return signal{}, NewInternalError(aerr, f.frame.Name, opcodes.OpSubscript)
			}
			return signal{kind: sigRaise, exc: exc}, nil
		}
		vm.push(values.CloneWithHeap(vm.Heap, v))
		return signal{kind: sigContinue}, nil
	case *values.Range:
		if i, isInt, ok := asIndex(idx); isInt {
			n := d.Start + i*d.Step
			length := 0
			if ln, lok := d.Len(); lok {
				length = ln
			}
			if !ok || i < 0 || int64(length) <= i {
				return vm.indexError(f, "range object index out of range")
			}
			vm.push(values.Int(n))
			return signal{kind: sigContinue}, nil
		}
		return vm.subscriptError(f, "range indices must be integers")
	}
	return vm.subscriptError(f, "object is not subscriptable")
}

func (vm *VM) subscriptSeq(f *callFrame, items []values.Value, idx values.Value, rebuild func([]values.Value) (values.Value, error)) (signal, error) {
	if i, isInt, ok := asIndex(idx); isInt {
		n, inBounds := normalizeIndex(len(items), i)
		if !ok || !inBounds {
			return vm.indexError(f, "list index out of range")
		}
		vm.push(values.CloneWithHeap(vm.Heap, items[n]))
		return signal{kind: sigContinue}, nil
	}
	if sl, ok := vm.asSlice(idx); ok {
		start, stop, step, serr := sliceBounds(len(items), sl)
		if serr != nil {
			return signal{}, serr
		}
		out := sliceValues(items, start, stop, step)
		for i := range out {
			out[i] = values.CloneWithHeap(vm.Heap, out[i])
		}
		v, aerr := rebuild(out)
		if aerr != nil {
			return vm.allocFailure(f, aerr)
		}
		vm.push(v)
		return signal{kind: sigContinue}, nil
	}
	return vm.subscriptError(f, "indices must be integers")
}

func asIndex(v values.Value) (int64, bool, bool) {
	switch v.Kind {
	case values.KindInt:
		return v.Int, true, true
	case values.KindBool:
		if v.Bool {
			return 1, true, true
		}
		return 0, true, true
	}
	return 0, false, false
}

func (vm *VM) asSlice(v values.Value) (*values.Slice, bool) {
	if v.Kind != values.KindRef {
		return nil, false
	}
	data, err := vm.Heap.Get(v.Ref)
	if err != nil {
		return nil, false
	}
	sl, ok := data.(*values.Slice)
	return sl, ok
}

func sliceBounds(length int, sl *values.Slice) (start, stop, step int, err error) {
	step = 1
	if sl.Step.Kind != values.KindUndefined && sl.Step.Kind != values.KindNone {
		if n, isInt, _ := asIndex(sl.Step); isInt {
			step = int(n)
		}
	}
	if step == 0 {
		step = 1
	}
	defStart, defStop := 0, length
	if step < 0 {
		defStart, defStop = length-1, -1
	}
	start, stop = defStart, defStop
	if sl.Start.Kind != values.KindUndefined && sl.Start.Kind != values.KindNone {
		if n, isInt, _ := asIndex(sl.Start); isInt {
			start = clampSliceIndex(length, n, step < 0)
		}
	}
	if sl.Stop.Kind != values.KindUndefined && sl.Stop.Kind != values.KindNone {
		if n, isInt, _ := asIndex(sl.Stop); isInt {
			stop = clampSliceIndex(length, n, step < 0)
		}
	}
	return start, stop, step, nil
}

func clampSliceIndex(length int, idx int64, reverse bool) int {
	if idx < 0 {
		idx += int64(length)
		if idx < 0 {
			if reverse {
				return -1
			}
			return 0
		}
	}
	if idx > int64(length) {
		if reverse {
			return length - 1
		}
		return length
	}
	return int(idx)
}

func sliceValues(items []values.Value, start, stop, step int) []values.Value {
	var out []values.Value
	if step > 0 {
		for i := start; i < stop && i < len(items); i += step {
			if i >= 0 {
				out = append(out, items[i])
			}
		}
	} else {
		for i := start; i > stop && i >= 0; i += step {
			if i < len(items) {
				out = append(out, items[i])
			}
		}
	}
	return out
}

func sliceRunes(runes []rune, start, stop, step int) []rune {
	var out []rune
	if step > 0 {
		for i := start; i < stop && i < len(runes); i += step {
			if i >= 0 {
				out = append(out, runes[i])
			}
		}
	} else {
		for i := start; i > stop && i >= 0; i += step {
			if i < len(runes) {
				out = append(out, runes[i])
			}
		}
	}
	return out
}

func (vm *VM) subscriptError(f *callFrame, msg string) (signal, error) {
	exc, err := runtime.TypeError(vm.Heap, msg)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscript)
	}
	return signal{kind: sigRaise, exc: exc}, nil
}

func (vm *VM) indexError(f *callFrame, msg string) (signal, error) {
	exc, err := runtime.IndexError(vm.Heap, msg)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscript)
	}
	return signal{kind: sigRaise, exc: exc}, nil
}

// execSubscriptAssign implements container[index] = value for the two
// mutable builtin containers that support it (spec §3.2): list item
// assignment and dict key assignment.
func (vm *VM) execSubscriptAssign(f *callFrame) (signal, error) {
	val, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscriptAssign)
	}
	idx, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscriptAssign)
	}
	container, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpSubscriptAssign)
	}
	defer values.DropWithHeap(vm.Heap, container)

	if container.Kind != values.KindRef {
		values.DropWithHeap(vm.Heap, idx)
		values.DropWithHeap(vm.Heap, val)
		return vm.subscriptError(f, "object does not support item assignment")
	}
	data, gerr := vm.Heap.Get(container.Ref)
	if gerr != nil {
		return signal{}, NewInternalError(gerr, f.frame.Name, opcodes.OpSubscriptAssign)
	}
	switch d := data.(type) {
	case *values.List:
		defer values.DropWithHeap(vm.Heap, idx)
		i, isInt, ok := asIndex(idx)
		n, inBounds := normalizeIndex(len(d.Items), i)
		if !isInt || !ok || !inBounds {
			values.DropWithHeap(vm.Heap, val)
			return vm.indexError(f, "list assignment index out of range")
		}
		values.DropWithHeap(vm.Heap, d.Items[n])
		d.Items[n] = val
		return signal{kind: sigContinue}, nil
	case *values.Dict:
		d.Set(vm.Heap, idx, val, vm.eqValues)
		return signal{kind: sigContinue}, nil
	}
	values.DropWithHeap(vm.Heap, idx)
	values.DropWithHeap(vm.Heap, val)
	return vm.subscriptError(f, "object does not support item assignment")
}

// execAttr implements attribute reads on the record types that expose
// named fields: dataclasses, namedtuples, and host-exposed modules
// (spec §3.2/§6.1). General method dispatch (e.g. list.append) belongs to
// the as-yet-unbuilt builtins layer and is out of scope here; reaching
// this path on a list/dict/etc. raises AttributeError rather than
// silently no-op'ing.
func (vm *VM) execAttr(f *callFrame, ins opcodes.Instruction) (signal, error) {
	recv, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	defer values.DropWithHeap(vm.Heap, recv)
	name := vm.Interns.String(ins.S)

	if recv.Kind != values.KindRef {
		return vm.attrError(f, recv.TypeTag.String(), name)
	}
	data, gerr := vm.Heap.Get(recv.Ref)
	if gerr != nil {
		return signal{}, NewInternalError(gerr, f.frame.Name, ins.Op)
	}
	switch d := data.(type) {
	case *values.Dataclass:
		for i, fn := range d.FieldNames {
			if fn == name {
				vm.push(values.CloneWithHeap(vm.Heap, d.Attrs[i]))
				return signal{kind: sigContinue}, nil
			}
		}
		return vm.attrError(f, d.TypeName, name)
	case *values.NamedTuple:
		for i, fn := range d.FieldNames {
			if fn == name {
				vm.push(values.CloneWithHeap(vm.Heap, d.Values[i]))
				return signal{kind: sigContinue}, nil
			}
		}
		return vm.attrError(f, d.TypeName, name)
	case *values.Module:
		if d.Attrs != nil {
			if v, ok := d.Attrs.Get(vm.Heap, values.InternString(ins.S), vm.eqValues); ok {
				vm.push(values.CloneWithHeap(vm.Heap, v))
				return signal{kind: sigContinue}, nil
			}
		}
		return vm.attrError(f, "module", name)
	}
	ops, ok := data.(values.Ops)
	typeName := "object"
	if ok {
		typeName = ops.PyType().String()
	}
	return vm.attrError(f, typeName, name)
}

func (vm *VM) attrError(f *callFrame, typeName, attr string) (signal, error) {
	exc, err := runtime.AttributeError(vm.Heap, typeName, attr)
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, opcodes.OpAttr)
	}
	return signal{kind: sigRaise, exc: exc}, nil
}

// execAttrAssign implements attribute writes on dataclasses (rejecting
// writes to frozen instances, spec's frozen-dataclass semantics) and
// module attribute slots.
func (vm *VM) execAttrAssign(f *callFrame, ins opcodes.Instruction) (signal, error) {
	val, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	recv, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	defer values.DropWithHeap(vm.Heap, recv)
	name := vm.Interns.String(ins.S)

	if recv.Kind != values.KindRef {
		values.DropWithHeap(vm.Heap, val)
		return vm.attrError(f, recv.TypeTag.String(), name)
	}
	data, gerr := vm.Heap.Get(recv.Ref)
	if gerr != nil {
		return signal{}, NewInternalError(gerr, f.frame.Name, ins.Op)
	}
	switch d := data.(type) {
	case *values.Dataclass:
		if d.Frozen {
			values.DropWithHeap(vm.Heap, val)
			exc, aerr := runtime.TypeError(vm.Heap, "cannot assign to field of frozen instance")
			if aerr != nil {
				return signal{}, NewInternalError(aerr, f.frame.Name, ins.Op)
			}
			return signal{kind: sigRaise, exc: exc}, nil
		}
		for i, fn := range d.FieldNames {
			if fn == name {
				values.DropWithHeap(vm.Heap, d.Attrs[i])
				d.Attrs[i] = val
				return signal{kind: sigContinue}, nil
			}
		}
		values.DropWithHeap(vm.Heap, val)
		return vm.attrError(f, d.TypeName, name)
	case *values.Module:
		if d.Attrs == nil {
			d.Attrs = values.NewDict()
		}
		d.Attrs.Set(vm.Heap, values.InternString(ins.S), val, vm.eqValues)
		return signal{kind: sigContinue}, nil
	}
	values.DropWithHeap(vm.Heap, val)
	return vm.attrError(f, "object", name)
}

// buildIterator reifies an iterable value into an Iterator snapshot
// (spec §4.4.2): the container kind decides the traversal strategy, and
// ModCountAt is captured so execIterNext can detect concurrent mutation.
func buildIterator(h *heap.Heap, v values.Value) (*values.Iterator, bool) {
	switch v.Kind {
	case values.KindRef:
		data, err := h.Get(v.Ref)
		if err != nil {
			return nil, false
		}
		switch d := data.(type) {
		case *values.List:
			return &values.Iterator{Kind: values.IterList, Source: v.Ref, ModCountAt: d.ModCount}, true
		case *values.Tuple:
			return &values.Iterator{Kind: values.IterTuple, Source: v.Ref}, true
		case *values.Dict:
			return &values.Iterator{Kind: values.IterDictKeys, Source: v.Ref, ModCountAt: d.ModCount}, true
		case *values.Set:
			return &values.Iterator{Kind: values.IterSet, Source: v.Ref, ModCountAt: d.ModCount}, true
		case *values.String:
			return &values.Iterator{Kind: values.IterString, Runes: []rune(d.V)}, true
		case *values.Bytes:
			return &values.Iterator{Kind: values.IterBytes, Source: v.Ref}, true
		case *values.Range:
			return &values.Iterator{Kind: values.IterRange, Range: *d}, true
		}
	}
	return nil, false
}

func (vm *VM) execIterSetup(f *callFrame, ins opcodes.Instruction) (signal, error) {
	iterable, err := vm.pop()
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, ins.Op)
	}
	it, ok := buildIterator(vm.Heap, iterable)
	values.DropWithHeap(vm.Heap, iterable)
	if !ok {
		exc, aerr := runtime.TypeError(vm.Heap, "object is not iterable")
		if aerr != nil {
			return signal{}, NewInternalError(aerr, f.frame.Name, ins.Op)
		}
		return signal{kind: sigRaise, exc: exc}, nil
	}
	if f.iterators == nil {
		f.iterators = make(map[int32]*values.Iterator)
	}
	f.iterators[ins.A] = it
	return signal{kind: sigContinue}, nil
}

// execIterNext advances the iterator in slot ins.A, pushing (element,
// True) when one is available or just False when exhausted — the
// compiled loop is expected to JUMP_IF_FALSE straight to the loop exit in
// the latter case, consuming the element from beneath in the former.
func (vm *VM) execIterNext(f *callFrame, ins opcodes.Instruction) (signal, error) {
	it := f.iterators[ins.A]
	if it == nil {
		vm.push(values.Bool(false))
		return signal{kind: sigContinue}, nil
	}

	switch it.Kind {
	case values.IterRange:
		n, length := it.Pos, int64(mustLen(it.Range))
		if n >= length {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		it.Pos++
		vm.push(values.Int(it.Range.Start + n*it.Range.Step))
		vm.push(values.Bool(true))
		return signal{kind: sigContinue}, nil
	case values.IterString:
		if int(it.Pos) >= len(it.Runes) {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		r := it.Runes[it.Pos]
		it.Pos++
		id, aerr := vm.Heap.Allocate(&values.String{V: string(r)})
		if aerr != nil {
			return vm.allocFailure(f, aerr)
		}
		vm.push(values.Ref(id))
		vm.push(values.Bool(true))
		return signal{kind: sigContinue}, nil
	}

	data, err := vm.Heap.Get(it.Source)
	if err != nil {
		vm.push(values.Bool(false))
		return signal{kind: sigContinue}, nil
	}
	switch d := data.(type) {
	case *values.List:
		if d.ModCount != it.ModCountAt {
			return vm.mutatedDuringIteration(f, ins.Op)
		}
		if int(it.Pos) >= len(d.Items) {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		vm.push(values.CloneWithHeap(vm.Heap, d.Items[it.Pos]))
		it.Pos++
		vm.push(values.Bool(true))
	case *values.Tuple:
		if int(it.Pos) >= len(d.Items) {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		vm.push(values.CloneWithHeap(vm.Heap, d.Items[it.Pos]))
		it.Pos++
		vm.push(values.Bool(true))
	case *values.Set:
		if d.ModCount != it.ModCountAt {
			return vm.mutatedDuringIteration(f, ins.Op)
		}
		if int(it.Pos) >= len(d.Items) {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		vm.push(values.CloneWithHeap(vm.Heap, d.Items[it.Pos]))
		it.Pos++
		vm.push(values.Bool(true))
	case *values.Dict:
		if d.ModCount != it.ModCountAt {
			return vm.mutatedDuringIteration(f, ins.Op)
		}
		if int(it.Pos) >= len(d.Entries) {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		vm.push(values.CloneWithHeap(vm.Heap, d.Entries[it.Pos].Key))
		it.Pos++
		vm.push(values.Bool(true))
	case *values.Bytes:
		if int(it.Pos) >= len(d.V) {
			vm.push(values.Bool(false))
			return signal{kind: sigContinue}, nil
		}
		vm.push(values.Int(int64(d.V[it.Pos])))
		it.Pos++
		vm.push(values.Bool(true))
	default:
		vm.push(values.Bool(false))
	}
	return signal{kind: sigContinue}, nil
}

func (vm *VM) mutatedDuringIteration(f *callFrame, op opcodes.Op) (signal, error) {
	exc, err := runtime.RuntimeError(vm.Heap, "container changed size during iteration")
	if err != nil {
		return signal{}, NewInternalError(err, f.frame.Name, op)
	}
	return signal{kind: sigRaise, exc: exc}, nil
}

func mustLen(r values.Range) int {
	n, _ := (&r).Len()
	return n
}
