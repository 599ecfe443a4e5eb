// Package apperror defines the error kinds surfaced to API clients.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrValidation        = errors.New("validation_failed")
	ErrNotFound          = errors.New("not_found")
	ErrRateLimited       = errors.New("rate_limited")
	ErrFeatureNotAllowed = errors.New("feature_not_allowed")
)

// Error is a kind plus a message meant for the end user.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.kind.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.kind }

// Message returns the user-facing text.
func (e *Error) Message() string { return e.Error() }

func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Unauthorized(msg string) *Error { return New(ErrUnauthorized, msg) }

func Validation(msg string) *Error { return New(ErrValidation, msg) }

func Validationf(format string, args ...any) *Error {
	return New(ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(msg string) *Error { return New(ErrNotFound, msg) }

func RateLimited(msg string) *Error { return New(ErrRateLimited, msg) }

func FeatureNotAllowed(msg string) *Error { return New(ErrFeatureNotAllowed, msg) }

// MessageOf returns the user-facing message of err, falling back to err.Error().
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
