// Package errors provides the domain error type shared by the lifecycle
// framework and the node components built on it.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Sprintf is a convenience function for fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// Error kinds. Every domain error wraps exactly one of these so callers can
// classify failures with errors.Is.
var (
	// ErrContractViolation signals a caller bug: double start, cancel before
	// start, bad child registration. Never retried.
	ErrContractViolation = errors.New("contract violation")
	// ErrCancelled is the expected signal that a cancel token fired.
	ErrCancelled = errors.New("operation cancelled")
	// ErrTimeout is returned when a deadline elapses before anything else.
	ErrTimeout = errors.New("operation timed out")
	// ErrFault marks an unexpected failure of a work or teardown routine.
	ErrFault = errors.New("unexpected fault")

	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnavailable   = errors.New("service unavailable")
)

// Unwrap provides compatibility with the standard errors package
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Is provides compatibility with the standard errors package
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As provides compatibility with the standard errors package
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New creates a new error with the given message
func New(message string) error {
	return errors.New(message)
}

// Error represents a domain error with additional context
type Error struct {
	// Original is the wrapped error, usually one of the error kinds above.
	Original error
	// Domain is the domain of the error (e.g., "cancel", "service", "storage")
	Domain string
	// Code is a machine-readable error code
	Code string
	// Message is a human-readable error message
	Message string
	// Operation is the operation that failed (e.g., "Run", "Cancel")
	Operation string
	// Fields contains additional context about the error
	Fields map[string]interface{}
	// Stack contains the stack trace
	Stack string
}

// Error implements the error interface.
// Format: [Domain.Operation] Code=CODE: Message: Original
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString("[")
	switch {
	case e.Domain != "" && e.Operation != "":
		sb.WriteString(e.Domain + "." + e.Operation)
	case e.Domain != "":
		sb.WriteString(e.Domain)
	default:
		sb.WriteString(e.Operation)
	}
	sb.WriteString("] ")

	if e.Code != "" {
		sb.WriteString("Code=" + e.Code + ": ")
	}
	sb.WriteString(e.Message)

	if e.Original != nil {
		if e.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Original.Error())
	}

	return sb.String()
}

// Unwrap implements the errors.Unwrapper interface
func (e *Error) Unwrap() error {
	return e.Original
}

// StackTrace returns the captured stack, or "" when none was recorded.
func (e *Error) StackTrace() string {
	return e.Stack
}

// Field returns the named context field, or nil.
func (e *Error) Field(key string) interface{} {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[key]
}

// clone copies e so wrapping helpers never mutate an error another goroutine
// may already hold.
func (e *Error) clone() *Error {
	c := *e
	if e.Fields != nil {
		c.Fields = make(map[string]interface{}, len(e.Fields))
		for k, v := range e.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// asDomain returns a private copy of err as a domain error, wrapping plain
// errors as the Original of a fresh one.
func asDomain(err error) *Error {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.clone()
	}
	return &Error{Original: err}
}

// CaptureStack renders the caller's stack, skipping runtime frames.
func CaptureStack(skip int) string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&sb, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// WithStack adds a stack trace to the error
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Stack != "" {
		return err
	}

	e := asDomain(err)
	e.Stack = CaptureStack(1)
	return e
}

// Wrap wraps an error with a message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	e := asDomain(err)
	e.Message = message
	return e
}

// WrapWithOperation wraps an error with an operation
func WrapWithOperation(err error, operation string) error {
	if err == nil {
		return nil
	}
	e := asDomain(err)
	e.Operation = operation
	return e
}

// WrapWithField adds a context field to the error
func WrapWithField(err error, key string, value interface{}) error {
	if err == nil {
		return nil
	}
	e := asDomain(err)
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// CodeOf returns the code of the outermost domain error in err's chain.
func CodeOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// E is a convenience function for creating domain errors. Strings fill, in
// order, Message, Domain, Operation and Code.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case string:
			switch {
			case e.Message == "":
				e.Message = a
			case e.Domain == "":
				e.Domain = a
			case e.Operation == "":
				e.Operation = a
			case e.Code == "":
				e.Code = a
			}
		case error:
			e.Original = a
		case map[string]interface{}:
			e.Fields = a
		}
	}

	return e
}
