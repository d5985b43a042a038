// Package errors defines engram's stable error codes and the code-carrying
// error type surfaced to CLI output. Codes are part of the output contract
// and must not change once released.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// NotInitialized indicates the repository has no engram store yet
	NotInitialized ErrorCode = "not_initialized"
	// TapeNotFound indicates an unknown tape id
	TapeNotFound ErrorCode = "tape_not_found"
	// TapeConflict indicates a tape blob whose content does not match its id
	TapeConflict ErrorCode = "tape_conflict"
	// TapeDecode indicates a tape blob that could not be decompressed
	TapeDecode ErrorCode = "tape_decode"
	// InvalidExplainTarget indicates a malformed explain target
	InvalidExplainTarget ErrorCode = "invalid_explain_target"
	// ReadSpanError indicates the target file could not be read
	ReadSpanError ErrorCode = "read_span_error"
	// SpanOutOfBounds indicates the requested range exceeds the file
	SpanOutOfBounds ErrorCode = "span_out_of_bounds"
	// ConfigError indicates unreadable or invalid configuration
	ConfigError ErrorCode = "config_error"
	// AdapterError indicates a session artifact could not be converted
	AdapterError ErrorCode = "adapter_error"
	// IndexError indicates an index storage failure
	IndexError ErrorCode = "index_error"
	// IOError indicates a filesystem failure
	IOError ErrorCode = "io_error"
	// HomeError indicates the home directory could not be resolved
	HomeError ErrorCode = "home_error"
	// Usage indicates invalid command arguments
	Usage ErrorCode = "usage"
)

// EngramError represents an engram error with a stable code
type EngramError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// NewEngramError creates a new EngramError
func NewEngramError(code ErrorCode, message string, cause error) *EngramError {
	return &EngramError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// New creates an EngramError without an underlying cause
func New(code ErrorCode, message string) *EngramError {
	return NewEngramError(code, message, nil)
}

// Error implements the error interface
func (e *EngramError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *EngramError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *EngramError) WithDetails(details interface{}) *EngramError {
	e.Details = details
	return e
}

// CodeOf extracts the stable code from an error chain. Errors without an
// EngramError in the chain report IOError.
func CodeOf(err error) ErrorCode {
	var engramErr *EngramError
	if stderrors.As(err, &engramErr) {
		return engramErr.Code
	}
	return IOError
}

// MessageOf extracts the presentable message from an error chain, falling
// back to the plain error text.
func MessageOf(err error) string {
	var engramErr *EngramError
	if stderrors.As(err, &engramErr) {
		if engramErr.cause != nil {
			return fmt.Sprintf("%s: %v", engramErr.Message, engramErr.cause)
		}
		return engramErr.Message
	}
	return err.Error()
}
