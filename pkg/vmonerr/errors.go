// Package vmonerr defines the closed set of error kinds that cross the
// executor/dispatch boundary, grounded on the EXECUTOR_ERROR_* constants in
// _examples/original_source/lib/executor.h and the error-kind taxonomy in
// spec.md §7.
package vmonerr

import "fmt"

// Code is one of the closed set of integer error codes that cross the
// dispatch boundary verbatim, matching the EXECUTOR_ERROR_* enum from the
// original C executor.
type Code int

const (
	CodeNone           Code = 0
	CodeNotRunning     Code = -1
	CodeAlreadyStarted Code = -2
	CodeTooManyTasks   Code = -3
	CodeTooMuchData    Code = -4
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "NONE"
	case CodeNotRunning:
		return "NOT_RUNNING"
	case CodeAlreadyStarted:
		return "ALREADY_STARTED"
	case CodeTooManyTasks:
		return "TOO_MANY_TASKS"
	case CodeTooMuchData:
		return "TOO_MUCH_DATA"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies an error for logging and response-shaping purposes. It is
// a closed set per spec.md §7: BadRequest, Overload, PayloadTooLarge,
// LifecycleMisuse, HypervisorError, Timeout.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindOverload
	KindPayloadTooLarge
	KindLifecycleMisuse
	KindHypervisorError
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindOverload:
		return "Overload"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindLifecycleMisuse:
		return "LifecycleMisuse"
	case KindHypervisorError:
		return "HypervisorError"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with a Kind and, where applicable, the
// verbatim Code that crosses the dispatch boundary.
type Error struct {
	Kind Kind
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-classified error with no underlying cause.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Err: fmt.Errorf("%s", message)}
}

// Wrap classifies an existing error under kind/code.
func Wrap(kind Kind, code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Err: err}
}

var (
	// ErrNotRunning is returned by Executor.Dispatch when the executor has
	// not been started (or has been stopped).
	ErrNotRunning = New(KindLifecycleMisuse, CodeNotRunning, "executor not running")
	// ErrAlreadyStarted is returned by Executor.Start when called twice.
	ErrAlreadyStarted = New(KindLifecycleMisuse, CodeAlreadyStarted, "executor already started")
	// ErrTooManyTasks is returned by Executor.Dispatch when the task queue
	// is full.
	ErrTooManyTasks = New(KindOverload, CodeTooManyTasks, "task queue full")
	// ErrTooMuchData is returned by Executor.Dispatch when the payload
	// exceeds the embedded capacity.
	ErrTooMuchData = New(KindPayloadTooLarge, CodeTooMuchData, "payload exceeds embedded capacity")
)
