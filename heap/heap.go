// Package heap implements Monty's reference-counted value arena: a
// generational slot table addressed by HeapID, manual increment/decrement
// with an iterative (non-recursive) drop to keep deeply nested containers
// from blowing the Go call stack, and a mark-and-sweep cycle collector that
// runs as a fallback for the reference cycles plain refcounting can't
// reclaim. It also owns the resource-tracking hooks (time, depth, byte
// budget) the VM checks as it runs (see Tracker).
package heap

import "errors"

// Generation-tagged slot id. A HeapID becomes stale the moment its slot is
// freed and recycled for a new allocation; comparing a stale HeapID's
// generation against the live slot's generation is how accidental use of a
// freed handle gets caught instead of silently aliasing unrelated data.
type HeapID struct {
	index      uint32
	generation uint32
}

// Valid reports whether id addresses anything at all (the zero HeapID is
// never a valid allocation).
func (id HeapID) Valid() bool { return id.generation != 0 }

// Index returns the slot index a HeapID addresses. Exposed for callers
// (e.g. values.Dict's key-bucketing) that need a stable, comparable proxy
// for a heap handle without reaching into heap internals.
func (id HeapID) Index() uint32 { return id.index }

// Data is anything the heap can own: a container, a string-backed object,
// a closure, and so on. Implementations live in the values package; heap
// only needs the lifecycle hooks.
type Data interface {
	// ChildIDs appends every HeapID this value directly references to dst
	// and returns the extended slice. Used by both the iterative dropper
	// and the cycle collector's mark phase.
	ChildIDs(dst []HeapID) []HeapID
	// EstimateSize returns an approximate byte cost, charged against the
	// tracker's byte budget at allocation time.
	EstimateSize() int
}

var (
	// ErrUseAfterFree is returned by Get/GetMut when a HeapID's generation
	// no longer matches the live slot (the handle was dropped and its slot
	// was recycled). Seeing this indicates a bug in the VM, not a user
	// program condition — bytecode never holds a HeapID past its owning
	// value's lifetime if refcounting is correct.
	ErrUseAfterFree = errors.New("heap: use of freed handle")
	// ErrBudgetExceeded is returned by Allocate when the resource tracker
	// refuses this allocation (byte budget or allocation-count cap).
	ErrBudgetExceeded = errors.New("heap: allocation budget exceeded")
)

type slot struct {
	data       Data
	refcount   uint32
	generation uint32
	alive      bool
}

// Tracker is the host-supplied resource budget a single interpreter run is
// metered against. The VM consults the deadline and the collection policy
// before every bytecode instruction and the depth limit at every call;
// ChargeAllocation runs on every heap allocation, including those made
// mid-expression. A Tracker is owned by exactly one Heap/VM pair and is never shared
// across concurrent runs (Monty is single-threaded by design, see the VM
// package).
type Tracker interface {
	// CheckDeadline reports whether the wall-clock deadline has passed.
	CheckDeadline() bool
	// CheckDepth reports whether pushing one more call frame would exceed
	// the configured maximum call depth.
	CheckDepth(currentDepth int) bool
	// ShouldCollect reports whether enough allocations have happened since
	// the last cycle collection to justify running one.
	ShouldCollect(allocationsSinceGC int) bool
	// ChargeAllocation is called before every heap allocation with its
	// estimated size; returns false if the allocation would exceed the
	// configured byte budget or allocation-count cap.
	ChargeAllocation(bytes int) bool
	// ChargeFree is called when bytes are reclaimed, so the tracker's
	// running total stays accurate for long-lived interpreters.
	ChargeFree(bytes int)
}

// Heap is the value arena for one interpreter instance. It is never
// accessed from more than one goroutine at a time; the VM that owns it
// guarantees single-threaded access per spec §5.
type Heap struct {
	slots             []slot
	freeList          []uint32
	tracker           Tracker
	allocationsSinceGC int
}

// New returns an empty heap metered against tracker.
func New(tracker Tracker) *Heap {
	return &Heap{tracker: tracker}
}

// Allocate stores data in a new slot with refcount 1 and returns its
// handle. Returns ErrBudgetExceeded if the tracker refuses the charge;
// the caller must treat that as a resource-exhaustion condition
// per spec §7 (uncatchable by user try/except).
func (h *Heap) Allocate(data Data) (HeapID, error) {
	size := data.EstimateSize()
	if !h.tracker.ChargeAllocation(size) {
		return HeapID{}, ErrBudgetExceeded
	}
	h.allocationsSinceGC++

	if n := len(h.freeList); n > 0 {
		idx := h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		s := &h.slots[idx]
		s.data = data
		s.refcount = 1
		s.alive = true
		return HeapID{index: idx, generation: s.generation}, nil
	}

	idx := uint32(len(h.slots))
	h.slots = append(h.slots, slot{data: data, refcount: 1, generation: 1, alive: true})
	return HeapID{index: idx, generation: 1}, nil
}

// Get returns the data stored at id, or ErrUseAfterFree if id is stale.
func (h *Heap) Get(id HeapID) (Data, error) {
	s, err := h.live(id)
	if err != nil {
		return nil, err
	}
	return s.data, nil
}

// WithEntryMut calls fn with the live data at id, allowing in-place
// mutation (used for subscript-assignment into lists/dicts without a
// refcount round trip). Returns ErrUseAfterFree if id is stale.
func (h *Heap) WithEntryMut(id HeapID, fn func(Data) error) error {
	s, err := h.live(id)
	if err != nil {
		return err
	}
	return fn(s.data)
}

func (h *Heap) live(id HeapID) (*slot, error) {
	if !id.Valid() || int(id.index) >= len(h.slots) {
		return nil, ErrUseAfterFree
	}
	s := &h.slots[id.index]
	if !s.alive || s.generation != id.generation {
		return nil, ErrUseAfterFree
	}
	return s, nil
}

// IncRef bumps id's refcount. A no-op (not an error) on an invalid id,
// matching the original's tolerance for inc-ref on an already-freed id
// during best-effort traceback construction.
func (h *Heap) IncRef(id HeapID) {
	if s, err := h.live(id); err == nil {
		s.refcount++
	}
}

// DecRef drops one reference to id. If the refcount reaches zero, the
// value is freed and every HeapID it directly references is recursively
// decremented via an explicit worklist (not Go call recursion), so a
// deeply nested list-of-lists can't exhaust the goroutine stack the way a
// naive recursive Drop impl would.
func (h *Heap) DecRef(id HeapID) {
	work := []HeapID{id}
	var children []HeapID
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		s, err := h.live(cur)
		if err != nil {
			continue
		}
		s.refcount--
		if s.refcount > 0 {
			continue
		}

		freed := s.data
		size := freed.EstimateSize()
		s.alive = false
		s.data = nil
		s.generation++
		h.freeList = append(h.freeList, cur.index)
		h.tracker.ChargeFree(size)

		children = children[:0]
		children = freed.ChildIDs(children)
		work = append(work, children...)
	}
}

// ShouldCollect reports whether the tracker thinks a cycle collection is
// due, based on allocations since the last run.
func (h *Heap) ShouldCollect() bool {
	return h.tracker.ShouldCollect(h.allocationsSinceGC)
}

// CheckDepth reports whether pushing one more call frame on top of
// currentDepth would exceed the tracker's configured maximum call depth.
func (h *Heap) CheckDepth(currentDepth int) bool {
	return h.tracker.CheckDepth(currentDepth)
}

// CheckDeadline reports whether the tracker's wall-clock deadline has
// passed.
func (h *Heap) CheckDeadline() bool {
	return h.tracker.CheckDeadline()
}

// CollectCycles runs a mark-and-sweep pass rooted at roots (typically
// every namespace slot across the live frame stack plus the global
// namespace), reclaiming any heap object unreachable from those roots even
// though its refcount is nonzero (a reference cycle). Returns the number
// of objects reclaimed.
func (h *Heap) CollectCycles(roots []HeapID) int {
	h.allocationsSinceGC = 0

	marked := make([]bool, len(h.slots))
	var stack []HeapID
	for _, r := range roots {
		if r.Valid() {
			stack = append(stack, r)
		}
	}
	var children []HeapID
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s, err := h.live(cur)
		if err != nil {
			continue
		}
		if marked[cur.index] {
			continue
		}
		marked[cur.index] = true

		children = children[:0]
		children = s.data.ChildIDs(children)
		stack = append(stack, children...)
	}

	reclaimed := 0
	for idx := range h.slots {
		s := &h.slots[idx]
		if !s.alive || marked[idx] {
			continue
		}
		size := s.data.EstimateSize()
		s.alive = false
		s.data = nil
		s.generation++
		h.freeList = append(h.freeList, uint32(idx))
		h.tracker.ChargeFree(size)
		reclaimed++
	}
	return reclaimed
}

// LiveCount returns the number of currently-allocated (unfreed) slots, for
// diagnostics and tests.
func (h *Heap) LiveCount() int {
	n := 0
	for i := range h.slots {
		if h.slots[i].alive {
			n++
		}
	}
	return n
}

// RefCount returns id's current refcount, or 0 if id is stale. Exposed for
// tests that assert refcount-balance invariants.
func (h *Heap) RefCount(id HeapID) uint32 {
	s, err := h.live(id)
	if err != nil {
		return 0
	}
	return s.refcount
}
