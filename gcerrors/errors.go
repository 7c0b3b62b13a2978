package gcerrors

import (
	"fmt"
	"strings"

	handlegc "github.com/wippyai/handle-gc"
)

// Phase indicates which heap operation produced the error
type Phase string

const (
	PhaseInit     Phase = "init"     // heap construction
	PhaseAlloc    Phase = "alloc"    // object allocation
	PhaseDeref    Phase = "deref"    // handle dereference
	PhaseRetain   Phase = "retain"   // ref count increment
	PhaseRelease  Phase = "release"  // ref count decrement
	PhaseRoot     Phase = "root"     // root list maintenance
	PhasePin      Phase = "pin"      // pin flag maintenance
	PhaseCollect  Phase = "collect"  // mark/compact cycle
	PhaseValidate Phase = "validate" // consistency checking
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfMemory   Kind = "out_of_memory"
	KindInvalidHandle Kind = "invalid_handle"
	KindHandleFreed   Kind = "handle_freed"
	KindStaleHandle   Kind = "stale_handle"
	KindRefUnderflow  Kind = "ref_underflow"
	KindCorruption    Kind = "corruption"
	KindClosed        Kind = "closed"
	KindInvalidInput  Kind = "invalid_input"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Handle handlegc.Handle
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Handle != handlegc.NullHandle {
		fmt.Fprintf(&b, " handle %d", e.Handle)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the offending handle
func (b *Builder) Handle(h handlegc.Handle) *Builder {
	b.err.Handle = h
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// OutOfMemory reports an allocation that failed even after a collection.
func OutOfMemory(size int) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("failed to allocate %d bytes after collection", size),
	}
}

// InvalidHandle reports a handle that is null, out of range, or not
// issued by this heap.
func InvalidHandle(phase Phase, h handlegc.Handle) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Handle: h,
	}
}

// HandleFreed reports an operation on a handle whose slot has been
// returned to the free list.
func HandleFreed(phase Phase, h handlegc.Handle) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindHandleFreed,
		Handle: h,
	}
}

// StaleHandle reports a checked reference whose backing entry was remapped
// or freed after the reference was taken.
func StaleHandle(h handlegc.Handle, want, got uint32) *Error {
	return &Error{
		Phase:  PhaseDeref,
		Kind:   KindStaleHandle,
		Handle: h,
		Detail: fmt.Sprintf("generation %d, entry is now %d", want, got),
	}
}

// RefUnderflow reports a release on an object whose ref count is already
// zero.
func RefUnderflow(h handlegc.Handle) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindRefUnderflow,
		Handle: h,
		Detail: "ref count already zero",
	}
}

// Closed reports an operation on a heap after Close.
func Closed(phase Phase) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindClosed,
	}
}

// Corruption reports an internal consistency violation.
func Corruption(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindCorruption,
		Detail: fmt.Sprintf(detail, args...),
	}
}
