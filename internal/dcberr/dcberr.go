// Package dcberr defines stable error codes for all failure modes of the
// compile backend.
package dcberr

import (
	"errors"
	"fmt"
)

// Code represents stable error codes for all failure modes
type Code string

const (
	// NotFound indicates a required file is missing (project, descriptor,
	// config, build log, or a required platform compiler)
	NotFound Code = "NOT_FOUND"
	// ParseError indicates a malformed document (TOML, XML, or compiler
	// command text)
	ParseError Code = "PARSE_ERROR"
	// ValueError indicates an invalid input value (unknown platform token,
	// invalid project file extension)
	ValueError Code = "VALUE_ERROR"
	// Timeout indicates the external process exceeded its wall-clock bound.
	// Compilation timeouts are converted to failed outcomes, not surfaced
	// as errors; the code exists for other bounded operations.
	Timeout Code = "TIMEOUT"
	// InternalError indicates an unexpected error
	InternalError Code = "INTERNAL_ERROR"
)

// Error carries a stable code, a message, and an optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps a cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf returns the stable code for err, or InternalError if err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return InternalError
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool {
	return CodeOf(err) == NotFound
}
