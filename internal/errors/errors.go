// Package errors provides the engine's structured error type and the codes
// that classify every failure a caller or a context can observe.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unclassified error.
	CodeUnknown Code = "UNKNOWN"

	// CodeReferenceIntegrity: a mutation names a missing id, reuses an id, or would create a parent cycle.
	CodeReferenceIntegrity Code = "REFERENCE_INTEGRITY"
	// CodeUnsupportedFormat: export met a numeric kind or item size outside the closed mappings.
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	// CodeProtocol: an envelope with an unrecognized subject or malformed payload.
	CodeProtocol Code = "PROTOCOL"
	// CodeLifecycle: a command issued before Running or after Destroyed.
	CodeLifecycle Code = "LIFECYCLE"
	// CodeHandshakeTimeout: the game context never signalled readiness.
	CodeHandshakeTimeout Code = "HANDSHAKE_TIMEOUT"
	// CodeNotFound: a lookup by id or name found nothing.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidArgument: input failed validation.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeContextFailure: a context handler panicked or failed internally.
	CodeContextFailure Code = "CONTEXT_FAILURE"
)

// Sentinels for errors.Is checks; they match any *Error carrying the same code.
var (
	ErrReferenceIntegrity = &Error{Code: CodeReferenceIntegrity, Message: "reference integrity"}
	ErrUnsupportedFormat  = &Error{Code: CodeUnsupportedFormat, Message: "unsupported format"}
	ErrProtocol           = &Error{Code: CodeProtocol, Message: "protocol"}
	ErrLifecycle          = &Error{Code: CodeLifecycle, Message: "lifecycle"}
	ErrHandshakeTimeout   = &Error{Code: CodeHandshakeTimeout, Message: "handshake timeout"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

// Error is the engine error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message (for logs)
	Metadata map[string]string // Additional context (ids, subjects)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// With returns a copy of e with key=value added to its metadata.
func (e *Error) With(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	out := *e
	out.Metadata = md
	return &out
}

// CodeOf extracts the code from the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
