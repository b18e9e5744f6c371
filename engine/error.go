package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is a failed engine call, carrying the result codes and message
// captured from the connection at the moment of failure. It is the error
// type produced by the handle layer for all engine-level failures.
type Error struct {
	// Code is the primary result code of the failure.
	Code Code
	// ExtCode is the extended result code, when the engine supplied one.
	ExtCode Code
	// Message is the engine's error message.
	Message string
	// SQL is the statement text being executed, when known.
	SQL string
	// Path is the primary database path of the failing connection.
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var s = fmt.Sprintf("engine error %v", e.Code)
	if e.ExtCode != 0 && e.ExtCode != e.Code {
		s += fmt.Sprintf(" (extended %v)", e.ExtCode)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.SQL != "" {
		s += fmt.Sprintf(" [%s]", e.SQL)
	}
	return s
}

// AsError returns the *Error carried by err, unwrapping any context added
// with package errors, or nil if err is not an engine failure.
func AsError(err error) *Error {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e
	}
	return nil
}

// ErrCode returns the primary code carried by err, or CodeOK if err is nil
// and CodeError if err is not an engine failure.
func ErrCode(err error) Code {
	if err == nil {
		return CodeOK
	}
	if e := AsError(err); e != nil {
		return e.Code.Primary()
	}
	return CodeError
}
