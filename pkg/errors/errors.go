// Package errors provides structured error handling for the Emarsys tap
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors such as a selected field
	// that the account no longer exposes
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeValidation represents invalid input values
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeProvider represents errors reported inside an API payload
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeRateLimit represents a provider-side rate limit rejection
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents timeouts, including jobs that never became ready
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents transport errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents rejected credentials
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeState represents checkpoint read/write errors
	ErrorTypeState ErrorType = "state"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType reports whether any error in the chain is a structured error of the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsRateLimit reports whether err is a provider rate limit rejection
func IsRateLimit(err error) bool {
	return IsType(err, ErrorTypeRateLimit)
}

// MissingFieldError is returned when a selected contact property has no
// matching field on the account.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field `%s` not currently available from Emarsys", e.Field)
}

// Unwrap exposes the config category to IsType
func (e *MissingFieldError) Unwrap() error {
	return &Error{Type: ErrorTypeConfig, Message: "selected field not available"}
}

// ProviderPageError is returned when a page payload carries an errors array.
type ProviderPageError struct {
	Stream   string
	Messages []string
}

func (e *ProviderPageError) Error() string {
	return fmt.Sprintf("%s - %s", e.Stream, strings.Join(e.Messages, ","))
}

// Unwrap exposes the provider category to IsType
func (e *ProviderPageError) Unwrap() error {
	return &Error{Type: ErrorTypeProvider, Message: "page returned errors"}
}

// JobTimeoutError is returned when an asynchronous job never produced a result.
// It is distinct from a ready job with zero matches.
type JobTimeoutError struct {
	JobID    string
	Attempts int
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job %s not ready after %d attempts", e.JobID, e.Attempts)
}

// Unwrap exposes the timeout category to IsType
func (e *JobTimeoutError) Unwrap() error {
	return &Error{Type: ErrorTypeTimeout, Message: "job polling exhausted"}
}

// As is re-exported so callers need a single errors import
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is re-exported so callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// captureStack captures the current call stack
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
