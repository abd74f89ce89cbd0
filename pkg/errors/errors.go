package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")

	// Render pipeline failures.
	ErrDecodeFailed         = errors.New("image decode failed")
	ErrSynthesisUnavailable = errors.New("narration synthesis unavailable")
	ErrEncoderFailed        = errors.New("video encoder failed")
	ErrOutputTooSmall       = errors.New("encoded output below minimum size")
	ErrUploadFailed         = errors.New("upload failed")
)

// Class is the user-facing message category a failure belongs to. The UI
// needs to tell "fix your input" apart from "try another environment" and
// from "transient, try again".
type Class string

const (
	ClassInput       Class = "input"
	ClassEnvironment Class = "environment"
	ClassTransient   Class = "transient"
	ClassUnknown     Class = "unknown"
)

// ClassOf maps an error chain to its message class.
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDecodeFailed):
		return ClassInput
	case errors.Is(err, ErrEncoderFailed), errors.Is(err, ErrOutputTooSmall):
		return ClassEnvironment
	case errors.Is(err, ErrUploadFailed):
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// Error represents a custom error type
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error with a message
func New(message string) error {
	return &Error{
		Message: message,
	}
}

// Wrap wraps an error with additional message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// WrapWithCode wraps an error with a code and message
func WrapWithCode(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode returns the error code if it exists
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetMessage returns the error message
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
