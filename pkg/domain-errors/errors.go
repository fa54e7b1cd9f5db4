// Package domainerrors provides coded errors for the registry core.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded domain errors; the transport layer maps codes onto HTTP
// status codes. Codes travel with the error through wrapping, so callers use
// HasCode instead of string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and caller decisions.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeBadRequest        Code = "bad_request"
	CodeInvalidIdentifier Code = "invalid_identifier"
	CodeForbidden         Code = "forbidden"
	CodeExternalDirectory Code = "external_directory"
	CodeStateTransition   Code = "state_transition_rejected"
	// CodeCompensationFailed marks a partial failure where the compensating
	// action also failed. The resulting state requires operator intervention
	// and must not be retried automatically.
	CodeCompensationFailed Code = "compensation_failed"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. Message is safe to surface to callers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
