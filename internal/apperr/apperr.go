// Package apperr provides coded domain errors shared by services and handlers.
//
//	if errors.Is(err, apperr.ErrCodeNotFound) { ... }
//
//	status := apperr.HTTPStatus(err)
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeCodeNotFound         Code = "CODE_NOT_FOUND"
	CodeCodeInactive         Code = "CODE_INACTIVE"
	CodeStorageUnavailable   Code = "STORAGE_UNAVAILABLE"
	CodeMalformedDestination Code = "MALFORMED_DESTINATION"
	CodeValidation           Code = "VALIDATION"
	CodeNotFound             Code = "NOT_FOUND"
	CodeConflict             Code = "CONFLICT"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeInternal             Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeCodeNotFound, CodeCodeInactive, CodeNotFound:
		return http.StatusNotFound
	case CodeMalformedDestination, CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, a user-facing message and an optional cause.
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

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrCodeNotFound         = &Error{Code: CodeCodeNotFound, Message: "invalid QR code"}
	ErrCodeInactive         = &Error{Code: CodeCodeInactive, Message: "invalid QR code"}
	ErrStorageUnavailable   = &Error{Code: CodeStorageUnavailable, Message: "storage unavailable"}
	ErrMalformedDestination = &Error{Code: CodeMalformedDestination, Message: "malformed destination URL"}
	ErrValidation           = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrConflict             = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden            = &Error{Code: CodeForbidden, Message: "forbidden"}
)

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new coded error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func UnknownCode(codeID string) *Error {
	return Newf(CodeCodeNotFound, "invalid QR code: %s not found", codeID)
}

func InactiveCode(codeID string) *Error {
	return Newf(CodeCodeInactive, "invalid QR code: %s is no longer active", codeID)
}

func StorageUnavailable(op string, cause error) *Error {
	return Wrap(CodeStorageUnavailable, op, cause)
}

func Validation(message string) *Error { return New(CodeValidation, message) }

func NotFound(message string) *Error { return New(CodeNotFound, message) }

func Conflict(message string) *Error { return New(CodeConflict, message) }

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to an HTTP status; unknown errors are 500.
func HTTPStatus(err error) int {
	return CodeOf(err).HTTPStatus()
}

// Message returns the user-facing message of err. Internal errors are not exposed.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// IsInvalidCode reports whether err means the code cannot be used by an end user.
func IsInvalidCode(err error) bool {
	c := CodeOf(err)
	return c == CodeCodeNotFound || c == CodeCodeInactive
}
