// Package errors provides the Arkive error taxonomy.
//
// Repository and service code return *Error values (or wrap them with %w);
// callers classify them with errors.Is against the sentinels:
//
//	if errors.Is(err, errors.ErrDuplicateBookmark) {
//	    notice := errors.UserMessage(err)
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidURL Code = "INVALID_URL"
	CodeDuplicate  Code = "DUPLICATE"
	CodeValidation Code = "VALIDATION"
	CodeForbidden  Code = "FORBIDDEN"
	CodeNotFound   Code = "NOT_FOUND"
	CodeTransient  Code = "TRANSIENT"
	CodeInternal   Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status for an error code. Forbidden maps to
// 404 so a foreign row looks exactly like a missing one.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidURL, CodeValidation:
		return http.StatusBadRequest
	case CodeDuplicate:
		return http.StatusConflict
	case CodeForbidden, CodeNotFound:
		return http.StatusNotFound
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code and message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: err}
}

var (
	ErrInvalidURL        = &Error{Code: CodeInvalidURL, Message: "invalid URL"}
	ErrDuplicateBookmark = &Error{Code: CodeDuplicate, Message: "bookmark already exists"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation error"}
	ErrForbidden         = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrTransient         = &Error{Code: CodeTransient, Message: "temporarily unavailable"}
	ErrInternal          = &Error{Code: CodeInternal, Message: "internal error"}
)

func InvalidURL(msg string) *Error {
	return &Error{Code: CodeInvalidURL, Message: msg}
}

func Duplicate(msg string) *Error {
	return &Error{Code: CodeDuplicate, Message: msg}
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func Transient(msg string, cause error) *Error {
	return &Error{Code: CodeTransient, Message: msg, cause: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf extracts the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus returns the status for any error, defaulting to 500.
func HTTPStatus(err error) int {
	return CodeOf(err).HTTPStatus()
}

// PublicMessage is the message safe to put in a response body. Foreign
// rows are reported as plain not-found.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ErrInternal.Message
	}
	switch e.Code {
	case CodeForbidden, CodeNotFound:
		return ErrNotFound.Message
	case CodeInternal:
		return ErrInternal.Message
	default:
		return e.Message
	}
}

// UserMessage is the short notice shown to a person after a failed action.
func UserMessage(err error) string {
	switch CodeOf(err) {
	case CodeDuplicate:
		return "This bookmark already exists"
	case CodeInvalidURL:
		return "Please enter a valid URL"
	case CodeValidation:
		return PublicMessage(err)
	case CodeTransient:
		return "Connection problem, please try again"
	default:
		return "Something went wrong, please try again"
	}
}
