package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bootstrap or session the error occurred
type Phase string

const (
	PhaseProbe     Phase = "probe"     // capability detection
	PhaseResolve   Phase = "resolve"   // variant selection
	PhaseFetch     Phase = "fetch"     // asset download
	PhaseLoad      Phase = "load"      // engine module loading
	PhaseTransport Phase = "transport" // engine transport
	PhaseRuntime   Phase = "runtime"   // running engine
	PhaseDecode    Phase = "decode"    // protocol decoding
	PhaseConfig    Phase = "config"    // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindUnsupported   Kind = "unsupported"
	KindAllocation    Kind = "allocation"
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindInstantiation Kind = "instantiation"
	KindNetwork       Kind = "network"
	KindTimeout       Kind = "timeout"
	KindClosed        Kind = "closed"
	KindExhausted     Kind = "exhausted"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	URL    string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.URL != "" {
		b.WriteString(" at ")
		b.WriteString(e.URL)
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

// URL sets the resource the error refers to
func (b *Builder) URL(u string) *Builder {
	b.err.URL = u
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Network creates a network error for a request against url
func Network(url string, cause error) *Error {
	return &Error{
		Phase: PhaseFetch,
		Kind:  KindNetwork,
		URL:   url,
		Cause: cause,
	}
}

// BadStatus creates a network error for an unexpected HTTP status
func BadStatus(url string, status int) *Error {
	return &Error{
		Phase:  PhaseFetch,
		Kind:   KindNetwork,
		URL:    url,
		Detail: fmt.Sprintf("unexpected status %d", status),
		Value:  status,
	}
}

// AllocationFailed creates a memory allocation failure error
func AllocationFailed(maxMB uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate shared memory (maximum %d MB)", maxMB),
		Value:  maxMB,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate engine",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: what + " timed out",
	}
}

// Closed creates an error for operations on a closed transport
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " closed",
	}
}

// Exhausted creates an error for a retry budget that ran out
func Exhausted(phase Phase, attempts int, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
		Detail: fmt.Sprintf("gave up after %d restart attempts", attempts),
		Value:  attempts,
		Cause:  cause,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
