// Package apperror defines the typed application error every handler
// raises. Each error carries a category sentinel that httputil translates
// to an HTTP status at a single point.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream dependency failed")
)

// AppError pairs a category sentinel with a human-readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

// Validation reports a malformed or missing client input.
func Validation(message string) *AppError {
	return &AppError{Err: ErrValidation, Message: message}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...interface{}) *AppError {
	return &AppError{Err: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

// Forbidden reports that the acting user is not allowed to touch the
// resource (typically: not its owner).
func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

// NotFound reports an absent referenced entity.
func NotFound(resource string) *AppError {
	return &AppError{Err: ErrNotFound, Message: resource + " not found"}
}

// Conflict reports a uniqueness violation (duplicate username/email).
func Conflict(message string) *AppError {
	return &AppError{Err: ErrConflict, Message: message}
}

// Upstream reports a media-host or store failure. The underlying
// message is surfaced to the client.
func Upstream(action string, err error) *AppError {
	msg := action
	if err != nil {
		msg = fmt.Sprintf("%s: %v", action, err)
	}
	return &AppError{Err: ErrUpstream, Message: msg}
}

// Status maps an error to its HTTP status code. Unrecognized errors map
// to 500.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConflict):
		return 409
	default:
		return 500
	}
}
