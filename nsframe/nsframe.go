// Package nsframe implements Monty's namespace stack, call frames, and
// tracebacks (spec §3.4, §4.4, §4.7). It has no suspend/resume snapshot
// type: package vm's callFrame (ip plus operand stack) holds the resume
// state. Grounded on _examples/original_source's src/namespace.rs
// (namespace push/pop with heap-aware drop).
package nsframe

import (
	"github.com/wudi/monty/heap"
	"github.com/wudi/monty/values"
)

// GlobalNamespaceIndex is the well-known index of the module-level
// namespace (spec §3.4: "The global namespace is index 0").
const GlobalNamespaceIndex = 0

// Namespace is a dense, contiguous vector of value slots (spec §3.4).
type Namespace struct {
	Slots []values.Value
}

// NewNamespace returns a namespace of size n with every slot Undefined.
func NewNamespace(size int) *Namespace {
	ns := &Namespace{Slots: make([]values.Value, size)}
	for i := range ns.Slots {
		ns.Slots[i] = values.Undefined()
	}
	return ns
}

// Namespaces is the interpreter-wide namespace stack: index 0 is always
// the global namespace; every active call pushes one more (spec §3.4).
type Namespaces struct {
	stack []*Namespace
}

// NewNamespaces returns a namespace stack seeded with the global
// namespace of the given size.
func NewNamespaces(globalSize int) *Namespaces {
	return &Namespaces{stack: []*Namespace{NewNamespace(globalSize)}}
}

// Global returns the module-level namespace.
func (n *Namespaces) Global() *Namespace { return n.stack[GlobalNamespaceIndex] }

// Push adds a new local namespace of the given size for a function call,
// returning its index.
func (n *Namespaces) Push(size int) int {
	n.stack = append(n.stack, NewNamespace(size))
	return len(n.stack) - 1
}

// PopWithHeap removes the most recently pushed namespace, dropping every
// slot's heap reference (spec §3.5: "Pop performs refcount decrement on
// every namespace slot").
func (n *Namespaces) PopWithHeap(h *heap.Heap) {
	last := n.stack[len(n.stack)-1]
	for _, v := range last.Slots {
		values.DropWithHeap(h, v)
	}
	n.stack = n.stack[:len(n.stack)-1]
}

// At returns the namespace at index idx (0 is global, >0 are active calls).
func (n *Namespaces) At(idx int) *Namespace { return n.stack[idx] }

// Depth reports how many namespaces (including global) are currently
// pushed — i.e. 1 + the current call depth.
func (n *Namespaces) Depth() int { return len(n.stack) }

// Roots appends every slot across every active namespace that holds a
// heap reference, for use as GC roots (spec §4.1: "Roots = all slots in
// all active namespaces").
func (n *Namespaces) Roots(dst []heap.HeapID) []heap.HeapID {
	for _, ns := range n.stack {
		for _, v := range ns.Slots {
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
