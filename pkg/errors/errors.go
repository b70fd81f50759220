// Package errors provides structured error types for the causemap application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - NOT_FOUND_*: Resource not found
//   - DATA_INTEGRITY_*: Structural violations in a stored diagram
//   - NETWORK_*: Network-related errors
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "description too short: %d chars", n)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to reach store")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidName  Code = "INVALID_NAME"
	ErrCodeInvalidLevel Code = "INVALID_LEVEL"
	ErrCodeInvalidTitle Code = "INVALID_TITLE"
	ErrCodeInvalidUser  Code = "INVALID_USER"

	// Resource not found errors
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeIncidentNotFound Code = "INCIDENT_NOT_FOUND"
	ErrCodeDiagramNotFound  Code = "DIAGRAM_NOT_FOUND"
	ErrCodeUserNotFound     Code = "USER_NOT_FOUND"
	ErrCodeNodeNotFound     Code = "NODE_NOT_FOUND"
	ErrCodeSessionNotFound  Code = "SESSION_NOT_FOUND"

	// Diagram data-integrity errors
	ErrCodeDuplicateKey   Code = "DATA_INTEGRITY_DUPLICATE_KEY"
	ErrCodeDanglingParent Code = "DATA_INTEGRITY_DANGLING_PARENT"
	ErrCodeMultipleRoots  Code = "DATA_INTEGRITY_MULTIPLE_ROOTS"
	ErrCodeNoRoot         Code = "DATA_INTEGRITY_NO_ROOT"
	ErrCodeCycle          Code = "DATA_INTEGRITY_CYCLE"
	ErrCodeUnreachable    Code = "DATA_INTEGRITY_UNREACHABLE"

	// Concurrency errors
	ErrCodeConflict Code = "CONFLICT"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Authentication errors
	ErrCodeUnauthorized   Code = "UNAUTHORIZED"
	ErrCodeForbidden      Code = "FORBIDDEN"
	ErrCodeSessionExpired Code = "SESSION_EXPIRED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidation reports whether err is any INVALID_* validation error.
func IsValidation(err error) bool {
	return hasPrefix(err, "INVALID_")
}

// IsNotFound reports whether err is NOT_FOUND or any *_NOT_FOUND error.
func IsNotFound(err error) bool {
	c := GetCode(err)
	if c == ErrCodeNotFound {
		return true
	}
	const suffix = "_NOT_FOUND"
	return len(c) > len(suffix) && string(c[len(c)-len(suffix):]) == suffix
}

// IsDataIntegrity reports whether err is any DATA_INTEGRITY_* error.
func IsDataIntegrity(err error) bool {
	return hasPrefix(err, "DATA_INTEGRITY_")
}

func hasPrefix(err error, prefix string) bool {
	c := GetCode(err)
	return len(c) >= len(prefix) && string(c[:len(prefix)]) == prefix
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
