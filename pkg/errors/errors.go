package errors

import (
	"errors"
	"fmt"
)

// Well-known codes shared by every package in this module. Package-specific
// codes (config, outbox, inbox, ...) are declared next to their callers.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInternal        = "INTERNAL"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyExists   = "ALREADY_EXISTS"
	CodeUnavailable     = "UNAVAILABLE"
)

// AppError is the structured error type used across the module. It carries
// a stable Code (safe to branch on or export as a metric label), a
// human-readable Message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New builds an AppError with the given code, message, and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap annotates err with a message, defaulting to CodeInternal unless err
// already carries an AppError code.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return &AppError{Code: ae.Code, Message: message, Cause: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// Is reports whether err is an AppError with the given code.
func Is(err error, code string) bool {
	var ae *AppError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Code == code
}

// Code extracts the AppError code from err, or CodeInternal if err isn't one.
func Code(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}
