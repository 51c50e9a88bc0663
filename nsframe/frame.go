package nsframe

import (
	"github.com/wudi/monty/intern"
)

// ExceptionHandler marks one active try/except handler body for bare-`raise`
// support: PushHandler/PopHandler bracket the handler body. Only whether a
// handler is active is recorded, not the exception it is handling, and
// package vm does not call PushHandler/PopHandler.
type ExceptionHandler struct {
	// Active is true while the handler body is executing.
	Active bool
}

// Frame is one active call's execution context (spec §4.4): the function
// name, which namespace index this call owns, and shared read-only
// references to the intern tables. The print callback is not stored here —
// it is shared VM-wide (vm.VM.Print), not per-frame, matching the teacher's
// single output-writer-per-VM-instance design.
//
// Monty's flat-bytecode VM (package vm) keeps its own resume position
// (callFrame.ip) and its own evaluation stack, which together already
// capture everything an ExternalCall suspension needs to resume from
// exactly where it left off — no statement index or already-evaluated
// sub-expression stash has to be reconstructed separately. That subsumes
// what an earlier, AST-statement-walking design would have needed a
// per-frame snapshot for; see DESIGN.md's note on the removed Snapshot
// type.
type Frame struct {
	Name           string
	NamespaceIndex int
	Interns        *intern.Interns
	// RaiseFrameSuppressesCaret marks a frame created specifically to
	// attach position info to a `raise` statement's own line, where
	// CPython's traceback renderer omits the usual caret marker
	// (spec §4.7).
	RaiseFrameSuppressesCaret bool
	// SourceLine is the 1-based line number this frame is currently
	// executing, used by traceback rendering (spec §4.7). Updated by the
	// VM as statements execute.
	SourceLine int
	Handlers   []ExceptionHandler
}

// NewFrame returns a fresh frame for a call into namespace nsIndex.
func NewFrame(name string, nsIndex int, interns *intern.Interns) *Frame {
	return &Frame{Name: name, NamespaceIndex: nsIndex, Interns: interns}
}

// PushHandler marks entry into a try/except handler body.
func (f *Frame) PushHandler() {
	f.Handlers = append(f.Handlers, ExceptionHandler{Active: true})
}

// PopHandler marks exit from the innermost active handler body.
func (f *Frame) PopHandler() {
	if len(f.Handlers) > 0 {
		f.Handlers = f.Handlers[:len(f.Handlers)-1]
	}
}

// InHandler reports whether a bare `raise` here would have an active
// exception to re-raise (SPEC_FULL.md §C.5).
func (f *Frame) InHandler() bool {
	return len(f.Handlers) > 0 && f.Handlers[len(f.Handlers)-1].Active
}

// RawStackFrame is one traceback entry (spec §4.7): a source position
// plus the frame name, with an optional caret suppression marker for
// `raise` statements.
type RawStackFrame struct {
	Line           int
	FrameName      string
	SuppressCaret  bool
}

// Traceback is the chain of frames an exception carries as it propagates
// outward (spec §4.7), innermost first.
type Traceback struct {
	Frames []RawStackFrame
}

// AddCallerFrame appends a caller's frame as an exception propagates
// across a function boundary (spec §4.7: "add_caller_frame is called as
// the error propagates outward").
func (tb *Traceback) AddCallerFrame(rf RawStackFrame) {
	tb.Frames = append(tb.Frames, rf)
}

// Render produces CPython-style "File "...", line N, in NAME" lines. Monty
// has no filename per frame (spec.md never requires one at this layer —
// the host associates a filename via the embedding API), so Render uses
// the supplied filename for every line, matching how a single compiled
// program has exactly one source file.
func (tb *Traceback) Render(filename string) string {
	out := "Traceback (most recent call last):\n"
	for i := len(tb.Frames) - 1; i >= 0; i-- {
		f := tb.Frames[i]
		out += "  File \"" + filename + "\", line " + itoa(f.Line) + ", in " + f.FrameName + "\n"
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
