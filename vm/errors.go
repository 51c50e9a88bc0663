// Package vm implements Monty's bytecode dispatch loop: frame/namespace
// management, exception propagation and traceback construction,
// suspension into the host via ExternalCall, and resume-after-suspend.
// Grounded on the teacher's vm/vm.go (dispatch loop shape) and
// vm/errors.go (the sentinel-error-plus-wrapper pattern reproduced here
// almost verbatim, generalized from PHP opcodes to Monty's); exact
// per-statement semantics follow _examples/original_source's run_frame.rs
// (see SPEC_FULL.md §C.2/§C.3).
package vm

import (
	"errors"
	"fmt"

	"github.com/wudi/monty/nsframe"
	"github.com/wudi/monty/opcodes"
	"github.com/wudi/monty/values"
)

// Sentinel causes, mirroring the teacher's vm/errors.go grouping.
var (
	ErrStackUnderflow   = errors.New("vm: evaluation stack underflow")
	ErrUndefinedVar     = errors.New("vm: read of undefined namespace slot")
	ErrBadSubscript     = errors.New("vm: unsupported subscript target")
	ErrNotCallable      = errors.New("vm: value is not callable")
	ErrMutatedDuringIter = errors.New("vm: container mutated during iteration")
	ErrInternal         = errors.New("vm: internal interpreter error")
)

// Kind classifies a RunError per spec §7's three error kinds.
type Kind uint8

const (
	KindUserException Kind = iota
	KindUncatchable
	KindInternal
)

// RunError is the wrapped error type every frame-execution path returns,
// carrying enough context to build a traceback and to let the VM
// distinguish "the user's try/except may catch this" from "this must
// unwind unconditionally" (spec §7).
type RunError struct {
	Kind      Kind
	Cause     error          // wraps one of the sentinels above, or nil for a pure user exception
	Exception values.Value   // populated when Kind == KindUserException or KindUncatchable
	Traceback nsframe.Traceback
	Opcode    opcodes.Op
	Frame     string
}

func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (frame=%s op=%s)", e.Cause, e.Frame, e.Opcode)
	}
	return fmt.Sprintf("%s (frame=%s)", e.Exception.ExcTyp, e.Frame)
}

func (e *RunError) Unwrap() error { return e.Cause }

// NewInternalError wraps cause as an internal, never-user-visible failure
// (spec §7 kind 3).
func NewInternalError(cause error, frame string, op opcodes.Op) *RunError {
	return &RunError{Kind: KindInternal, Cause: cause, Frame: frame, Opcode: op}
}

// NewUserException wraps exc as a catchable user exception.
func NewUserException(exc values.Value, frame string) *RunError {
	return &RunError{Kind: KindUserException, Exception: exc, Frame: frame}
}

// NewUncatchable wraps exc as a resource-exhaustion exception that bypasses
// try/except (spec §5, §7 kind 2).
func NewUncatchable(exc values.Value, frame string) *RunError {
	return &RunError{Kind: KindUncatchable, Exception: exc, Frame: frame}
}

// Catchable reports whether a user try/except may handle this error.
func (e *RunError) Catchable() bool { return e.Kind == KindUserException }
