// Package errors provides structured error types for the memebox application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and HTTP surfaces
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures (bad slug, bad format, bad style)
//   - *_NOT_FOUND: Resource not found (template, font)
//   - RENDER_*: Rasterization failures and timeouts
//   - CACHE_*: Cache backend failures (degraded, not fatal)
//   - INTERNAL_*: Unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidEncoding, "bad escape in segment %q", seg)
//	if errors.Is(err, errors.ErrCodeInvalidEncoding) {
//	    // Handle as a client error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeRenderFailed, origErr, "encode %s frame", format)
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
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidEncoding Code = "INVALID_ENCODING"
	ErrCodeInvalidFormat   Code = "INVALID_FORMAT"
	ErrCodeInvalidStyle    Code = "INVALID_STYLE"
	ErrCodeInvalidTemplate Code = "INVALID_TEMPLATE"

	// Resource not found errors
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeTemplateNotFound Code = "TEMPLATE_NOT_FOUND"
	ErrCodeFontUnavailable  Code = "FONT_UNAVAILABLE"

	// Render errors
	ErrCodeRenderFailed      Code = "RENDER_FAILED"
	ErrCodeRenderTimeout     Code = "RENDER_TIMEOUT"
	ErrCodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"

	// Cache errors (degraded operation, never fatal for a request)
	ErrCodeCacheBackend Code = "CACHE_BACKEND_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
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

// IsClientError reports whether err represents a caller mistake
// (bad input or unknown resource) rather than a server-side failure.
// HTTP handlers use this to pick a 4xx status.
func IsClientError(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidEncoding, ErrCodeInvalidFormat,
		ErrCodeInvalidStyle, ErrCodeInvalidTemplate,
		ErrCodeNotFound, ErrCodeTemplateNotFound:
		return true
	}
	return false
}
