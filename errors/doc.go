// Package errors provides structured error types for the engine bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the offending URL, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFetch, errors.KindInvalidData).
//		URL(url).
//		Detail("chunk %d: got %d bytes, want %d", i, got, want).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.BadStatus(url, resp.StatusCode)
//	err := errors.Timeout(errors.PhaseTransport, "engine ready")
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind only, so a bare &Error{Phase, Kind} works as
// a sentinel.
package errors
