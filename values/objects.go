package values

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/intern"
)

// NamedTuple mirrors a Python collections.namedtuple instance: an ordered
// tuple of values plus the field names and type name needed to round-trip
// through the host bridge unchanged (spec §6.1).
type NamedTuple struct {
	TypeName   string
	FieldNames []string
	Values     []Value
}

func (n *NamedTuple) PyType() TypeTag { return TypeNamedTuple }
func (n *NamedTuple) Len() (int, bool) { return len(n.Values), true }
func (n *NamedTuple) Bool(h *heap.Heap) bool { return len(n.Values) != 0 }
func (n *NamedTuple) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range n.Values {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (n *NamedTuple) EstimateSize() int { return 32 + 16*len(n.Values) }
func (n *NamedTuple) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	dst = append(dst, n.TypeName...)
	dst = append(dst, '(')
	for i, v := range n.Values {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		if i < len(n.FieldNames) {
			dst = append(dst, n.FieldNames[i]...)
			dst = append(dst, '=')
		}
		dst = reprOne(h, dst, visited, depthGuard, v)
	}
	return append(dst, ')')
}
func (n *NamedTuple) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return n.Repr(h, dst, visited, depthGuard)
}

// Path mirrors pathlib.Path just enough for value-bridge round-tripping;
// Monty does not implement filesystem operations (those are part of the
// excluded stdlib module surface), only the value shape.
type Path struct {
	V string
}

func (p *Path) PyType() TypeTag { return TypePath }
func (p *Path) Len() (int, bool) { return 0, false }
func (p *Path) Bool(h *heap.Heap) bool { return p.V != "" }
func (p *Path) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (p *Path) EstimateSize() int { return 24 + len(p.V) }
func (p *Path) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, ("PosixPath(" + pyStringRepr(p.V) + ")")...)
}
func (p *Path) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, p.V...)
}

// Dataclass is a user-defined record value. Identity (for round-tripping
// through the host bridge, spec §6.1/§8) is carried via TypeID, a key into
// bridge.DataclassRegistry.
type Dataclass struct {
	TypeName   string
	TypeID     string // uuid.UUID.String(); "" means "no registered host type"
	FieldNames []string
	Attrs      []Value
	Frozen     bool
}

func (d *Dataclass) PyType() TypeTag { return TypeDataclass }
func (d *Dataclass) Len() (int, bool) { return 0, false }
func (d *Dataclass) Bool(h *heap.Heap) bool { return true }
func (d *Dataclass) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range d.Attrs {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (d *Dataclass) EstimateSize() int { return 48 + 16*len(d.Attrs) }
func (d *Dataclass) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	dst = append(dst, d.TypeName...)
	dst = append(dst, '(')
	for i, v := range d.Attrs {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		if i < len(d.FieldNames) {
			dst = append(dst, d.FieldNames[i]...)
			dst = append(dst, '=')
		}
		dst = reprOne(h, dst, visited, depthGuard, v)
	}
	return append(dst, ')')
}
func (d *Dataclass) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return d.Repr(h, dst, visited, depthGuard)
}

// Closure is a function value that captured one or more enclosing cells
// (spec §4.4.4/§4.5). Defaults are resolved once, at def-time, in the
// enclosing scope.
type Closure struct {
	FunctionID    intern.FunctionID
	CapturedCells []heap.HeapID
	Defaults      []Value
}

func (c *Closure) PyType() TypeTag { return TypeFunction }
func (c *Closure) Len() (int, bool) { return 0, false }
func (c *Closure) Bool(h *heap.Heap) bool { return true }
func (c *Closure) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	dst = append(dst, c.CapturedCells...)
	for _, v := range c.Defaults {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (c *Closure) EstimateSize() int { return 32 + 8*len(c.CapturedCells) + 16*len(c.Defaults) }
func (c *Closure) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, "<function (closure)>"...)
}
func (c *Closure) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return c.Repr(h, dst, visited, depthGuard)
}

// FunctionDefaults is a function value with resolved default-argument
// expressions but no captured cells (spec §4.4.4's middle case).
type FunctionDefaults struct {
	FunctionID intern.FunctionID
	Defaults   []Value
}

func (f *FunctionDefaults) PyType() TypeTag { return TypeFunction }
func (f *FunctionDefaults) Len() (int, bool) { return 0, false }
func (f *FunctionDefaults) Bool(h *heap.Heap) bool { return true }
func (f *FunctionDefaults) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	for _, v := range f.Defaults {
		if v.Kind == KindRef {
			dst = append(dst, v.Ref)
		}
	}
	return dst
}
func (f *FunctionDefaults) EstimateSize() int { return 24 + 16*len(f.Defaults) }
func (f *FunctionDefaults) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, "<function>"...)
}
func (f *FunctionDefaults) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return f.Repr(h, dst, visited, depthGuard)
}

// Cell is the single-value-slot sharing mechanism closures use (spec
// §4.5). Reads/writes always go through SetCellValue/the V field so that
// every holder sees mutations made through any other holder.
type Cell struct {
	V Value
}

func (c *Cell) PyType() TypeTag { return TypeNoneType } // cells are never directly observable at the Python level
func (c *Cell) Len() (int, bool) { return 0, false }
func (c *Cell) Bool(h *heap.Heap) bool { return Truthy(h, c.V) }
func (c *Cell) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	if c.V.Kind == KindRef {
		dst = append(dst, c.V.Ref)
	}
	return dst
}
func (c *Cell) EstimateSize() int { return 24 }
func (c *Cell) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return reprOne(h, dst, visited, depthGuard, c.V)
}
func (c *Cell) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return c.Repr(h, dst, visited, depthGuard)
}

// SetCellValue replaces the cell's value, dropping the old one (spec
// §4.4.1's "write goes through set_cell_value, which drops the cell's old
// value").
func SetCellValue(h *heap.Heap, cellID heap.HeapID, v Value) error {
	return h.WithEntryMut(cellID, func(d heap.Data) error {
		cell := d.(*Cell)
		DropWithHeap(h, cell.V)
		cell.V = v
		return nil
	})
}

// Module is a host-exposed attribute map (spec §3.2). Monty does not
// implement the stdlib module surface itself; a Module record is how a
// host-registered external namespace (e.g. a restricted facade the host
// constructs) appears inside the interpreter.
type Module struct {
	Name  string
	Attrs *Dict
}

func (m *Module) PyType() TypeTag { return TypeModule }
func (m *Module) Len() (int, bool) { return 0, false }
func (m *Module) Bool(h *heap.Heap) bool { return true }
func (m *Module) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	if m.Attrs != nil {
		dst = m.Attrs.ChildIDs(dst)
	}
	return dst
}
func (m *Module) EstimateSize() int { return 32 }
func (m *Module) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, ("<module '" + m.Name + "'>")...)
}
func (m *Module) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return m.Repr(h, dst, visited, depthGuard)
}

// IterKind distinguishes the closed set of reified iterator shapes
// (spec §4.4.2).
type IterKind uint8

const (
	IterRange IterKind = iota
	IterList
	IterTuple
	IterDictKeys
	IterSet
	IterString
	IterBytes
	IterGeneric
)

// Iterator is the reified iteration state a `for` loop stores in its
// clause state across suspension (spec §4.4.2/§4.6). Pos is the next
// index to yield; for IterRange the yielded element is Start + Pos*Step.
type Iterator struct {
	Kind       IterKind
	Source     heap.HeapID // the container being iterated, Valid()==false for IterRange
	Pos        int64
	Range      Range
	Runes      []rune // snapshot for IterString, so mutation-of-source doesn't apply (strings are immutable anyway)
	ModCountAt uint64 // the container's ModCount observed at loop entry, for mutation detection
}

func (it *Iterator) PyType() TypeTag { return TypeIterator }
func (it *Iterator) Len() (int, bool) { return 0, false }
func (it *Iterator) Bool(h *heap.Heap) bool { return true }
func (it *Iterator) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	if it.Source.Valid() {
		dst = append(dst, it.Source)
	}
	return dst
}
func (it *Iterator) EstimateSize() int { return 48 + 4*len(it.Runes) }
func (it *Iterator) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, "<iterator>"...)
}
func (it *Iterator) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return it.Repr(h, dst, visited, depthGuard)
}

// Coroutine is an awaitable captured by asyncio.gather's external-call
// bridge (spec §3.2/§6.2); Monty does not implement a scheduler itself —
// gather is a single suspension point the host resolves.
type Coroutine struct {
	Label string // host-supplied identifying label for diagnostics
	Done  bool
	Result Value
}

func (c *Coroutine) PyType() TypeTag { return TypeCoroutine }
func (c *Coroutine) Len() (int, bool) { return 0, false }
func (c *Coroutine) Bool(h *heap.Heap) bool { return true }
func (c *Coroutine) ChildIDs(dst []heap.HeapID) []heap.HeapID {
	if c.Result.Kind == KindRef {
		dst = append(dst, c.Result.Ref)
	}
	return dst
}
func (c *Coroutine) EstimateSize() int { return 32 + len(c.Label) }
func (c *Coroutine) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, ("<coroutine object " + c.Label + ">")...)
}
func (c *Coroutine) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return c.Repr(h, dst, visited, depthGuard)
}
