// Package errors defines the portal's typed failures. Backend responses, guard
// outcomes and form validation all surface as *AppError carrying a Code.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the failure kind callers branch on.
type ErrorCode string

const (
	// ErrCodeUnauthorized: the backend rejected or never received a credential.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeForbidden: authenticated but not allowed.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeBlocked: an administrator has blocked the account.
	ErrCodeBlocked ErrorCode = "blocked"
	// ErrCodeNetwork: the backend could not be reached.
	ErrCodeNetwork ErrorCode = "network"
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation: the input was rejected, locally or by the backend.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal: anything the backend or the portal did not expect.
	ErrCodeInternal ErrorCode = "internal"
	ErrCodeTimeout  ErrorCode = "timeout"
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a coded failure. It unwraps to Cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending form field for validation failures.
	Field string
	// Status is the backend's HTTP status when the failure came from a response.
	Status int
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithStatus records the backend status and returns e.
func (e *AppError) WithStatus(status int) *AppError {
	e.Status = status
	return e
}

// New returns an AppError with no cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NotFound(message string) *AppError     { return New(ErrCodeNotFound, message) }
func Validation(message string) *AppError   { return New(ErrCodeValidation, message) }
func Unauthorized(message string) *AppError { return New(ErrCodeUnauthorized, message) }
func Forbidden(message string) *AppError    { return New(ErrCodeForbidden, message) }
func Blocked(message string) *AppError      { return New(ErrCodeBlocked, message) }
func Internal(message string) *AppError     { return New(ErrCodeInternal, message) }

// Validationf formats a validation message.
func Validationf(format string, args ...any) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField is a validation failure tied to one form field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap attaches code and message to err. It returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// FromContext maps a context deadline or cancellation in err's chain to a
// Timeout or Canceled error about what. Any other err yields nil.
func FromContext(err error, what string) *AppError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, what+" timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, what+" canceled")
	default:
		return nil
	}
}

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the validation field of the first AppError in err's chain.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

func IsUnauthorized(err error) bool { return Is(err, ErrCodeUnauthorized) }
func IsForbidden(err error) bool    { return Is(err, ErrCodeForbidden) }
func IsBlocked(err error) bool      { return Is(err, ErrCodeBlocked) }
func IsNetwork(err error) bool      { return Is(err, ErrCodeNetwork) }
func IsNotFound(err error) bool     { return Is(err, ErrCodeNotFound) }
func IsValidation(err error) bool   { return Is(err, ErrCodeValidation) }
func IsInternal(err error) bool     { return Is(err, ErrCodeInternal) }
func IsTimeout(err error) bool      { return Is(err, ErrCodeTimeout) }
func IsCanceled(err error) bool     { return Is(err, ErrCodeCanceled) }

// IsAuthFailure reports whether err ends the current session.
func IsAuthFailure(err error) bool {
	return IsUnauthorized(err) || IsBlocked(err)
}
