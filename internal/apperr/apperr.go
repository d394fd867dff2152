// Package apperr carries stable error codes across component boundaries so
// the HTTP layer and drivers can classify failures without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidFileFormat Code = "INVALID_FILE_FORMAT"
	CodeUnreadableEnc     Code = "UNREADABLE_ENCODING"
	CodeAmbiguousSheet    Code = "AMBIGUOUS_SHEET"
	CodeEmptySheet        Code = "EMPTY_SHEET"
	CodeMissingRequired   Code = "MISSING_REQUIRED_COLUMNS"
	CodeDuplicateFile     Code = "DUPLICATE_FILE"
	CodeUnrecognizedInput Code = "UNRECOGNIZED_INPUT"
	CodeRemote            Code = "REMOTE_ERROR"
	CodeLLM               Code = "LLM_ERROR"
	CodeStorage           Code = "STORAGE_ERROR"
	CodeDatabase          Code = "DATABASE_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInternal          Code = "INTERNAL_SERVER_ERROR"
)

// Error is an error with a stable code and optional structured details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetails returns e with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the code from an error chain, or CodeInternal if none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
