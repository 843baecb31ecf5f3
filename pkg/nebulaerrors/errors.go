// Package nebulaerrors provides structured errors for nebula-sql connectors.
//
// Every error carries an ErrorType, an optional cause, key/value details and
// the call stack at the point it was created. Errors that must stop the
// current pipeline execution are additionally marked unrecoverable:
//
//	rows, err := db.QueryContext(ctx, query)
//	if err != nil {
//	    return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeQuery, "unable to execute query").
//	        WithDetail("query", query).
//	        Unrecoverable()
//	}
//
// Callers distinguish these from ordinary row-level failures with IsUnrecoverable.
//
// Error instances are not safe for concurrent modification. Finish calling
// WithDetail before sharing one across goroutines.
package nebulaerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors, including rows whose
	// shape does not match what the connector declared downstream
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeQuery represents query execution errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeProhibited represents an insert or update the writer is not allowed to perform
	ErrorTypeProhibited ErrorType = "prohibited_operation"
	// ErrorTypeState represents a call made in the wrong lifecycle state
	ErrorTypeState ErrorType = "state"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame

	unrecoverable bool
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Unrecoverable marks the error as fatal to the current pipeline execution.
func (e *Error) Unrecoverable() *Error {
	e.unrecoverable = true
	return e
}

// New creates a new error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error, preserving it as the cause. If err is
// already an *Error its stack and unrecoverable mark are kept.
// Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:          errType,
			Message:       message,
			Cause:         err,
			Stack:         existing.Stack,
			unrecoverable: existing.unrecoverable,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether err is worth retrying. Only timeouts and
// connection errors qualify, and never once marked unrecoverable.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if IsUnrecoverable(err) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsUnrecoverable reports whether any error in the chain was marked unrecoverable.
func IsUnrecoverable(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.unrecoverable {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsType checks if the outermost structured error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// HasType checks whether any structured error in the chain is of the given type.
func HasType(err error, errType ErrorType) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
