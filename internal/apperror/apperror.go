// Package apperror defines the application's error taxonomy.
//
// Services return these errors; the HTTP layer maps them to status codes with
// errors.Is. The taxonomy is deliberately small:
//
//	ErrConflict          — duplicate email at registration (message surfaced verbatim)
//	ErrInvalidCredential — bad login, unknown/expired OAuth state, missing OAuth
//	                       params; the message never reveals which check failed
//	ErrUnauthorized      — missing/invalid/expired session token, deleted user
//	ErrUpstream          — any OAuth provider failure, collapsed to one message
//	ErrNotLinked         — unlink of a provider that isn't linked
//	ErrNotFound          — record lookups
//	ErrValidation        — malformed request input
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUpstream          = errors.New("upstream failure")
	ErrNotLinked         = errors.New("not linked")
)

type AppError struct {
	Err     error  // sentinel classifying the error
	Message string // human-readable, safe to show to the caller
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// InvalidCredential returns the generic bad-credential error. Every caller
// gets the same message regardless of which check failed — wrong email, wrong
// password, and OAuth-only account are indistinguishable from outside.
func InvalidCredential(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredential,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Upstream wraps a provider-side failure. The cause is retained in the chain
// for internal logging, but handlers surface only the normalized message.
func Upstream(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstream, cause),
		Message: "OAuth failed, try again",
	}
}

func NotLinked(provider string) *AppError {
	return &AppError{
		Err:     ErrNotLinked,
		Message: fmt.Sprintf("%s account is not linked", provider),
	}
}
