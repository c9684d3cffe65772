// Package domainerrors defines the coded error taxonomy shared by services,
// handlers and the CLI. Services return these; transports map codes to status.
//
// Expected outcomes (a wrong code, a weak signal, no biometric match) are never
// errors. Only invalid input, missing resources and genuine faults are.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and transports.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeInvalidInput      Code = "invalid_input"
	CodeExpired           Code = "expired"
	CodeRateLimited       Code = "rate_limited"
	CodeSecurityViolation Code = "security_violation"
	CodeInternal          Code = "internal_error"
	CodeTimeout           Code = "timeout"
	CodeConflict          Code = "conflict"
	CodeInvalidState      Code = "invalid_state"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeBadRequest        Code = "bad_request"
)

// Error carries a code, a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err returns nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// Is reports whether err carries a domain error. When it does, the first coded
// error in the chain is returned.
func Is(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := Is(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	de, ok := Is(err)
	return ok && de.Code == code
}
