// Package registry holds Monty's compiled-function records: the shape
// produced by the (out-of-scope) bytecode compiler and consumed by the VM
// at call time. Grounded on the teacher's registry/registry.go
// Function/Parameter shape, adapted from PHP's reference/variadic
// parameter model to spec §3.1/§4.4.4's namespace-slot and
// closure-capture model.
package registry

import "github.com/wudi/monty/opcodes"

// Parameter describes one formal parameter of a compiled function.
type Parameter struct {
	Name          string
	NamespaceSlot int // the local-namespace slot this parameter binds into
	HasDefault    bool
	// DefaultExpr is the bytecode evaluated in the *enclosing* scope at
	// def-time to produce the default value (spec §4.4.4: "evaluates
	// defaults in enclosing scope"). Nil when HasDefault is false.
	DefaultExpr []opcodes.Instruction
}

// FunctionRecord is one compiled function's complete static description,
// addressed by intern.FunctionID (spec §3.1).
type FunctionRecord struct {
	Name           string
	Params         []Parameter
	IsVariadic     bool // accepts *args in the final slot
	VariadicSlot   int
	HasKwargs      bool // accepts **kwargs
	KwargsSlot     int
	Body           []opcodes.Instruction
	Constants      []opcodes.Constant
	NamespaceSize  int
	// FreeVarEnclosingSlots lists, for each cell this function captures
	// from an enclosing scope, the slot index in the *enclosing*
	// namespace holding that cell's Ref (spec §4.5). The function's own
	// namespace slot for captured variable i is CapturedLocalSlots[i].
	FreeVarEnclosingSlots []int
	CapturedLocalSlots    []int
	// OwnedCellSlots lists local-namespace slots this function must
	// allocate a fresh Cell record for at call time, because a nested
	// function defined inside captures them (spec §4.5).
	OwnedCellSlots []int
}

// FunctionName satisfies intern.Builder.FunctionRecord's minimal interface
// requirement.
func (f *FunctionRecord) FunctionName() string { return f.Name }

// Table is the full function table for one compiled program, built by the
// (out-of-scope) compiler and handed to monty.New.
type Table struct {
	Functions []*FunctionRecord
}
