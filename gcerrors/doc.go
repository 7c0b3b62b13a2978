// Package gcerrors provides structured error types for the handle-gc library.
//
// Errors are categorized by Phase (which heap operation failed) and Kind
// (error category). The Error type carries the offending handle and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := gcerrors.New(gcerrors.PhaseDeref, gcerrors.KindStaleHandle).
//		Handle(h).
//		Detail("entry remapped by compaction").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := gcerrors.InvalidHandle(gcerrors.PhaseRetain, h)
//	err := gcerrors.OutOfMemory(size)
//
// All errors implement the standard error interface and support
// errors.Is/As; two *Error values match when Phase and Kind agree.
package gcerrors
