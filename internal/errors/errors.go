package errors

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a file or directory was not found
	ErrNotFound = errors.New("not found")

	// ErrPermission indicates the filesystem refused access
	ErrPermission = errors.New("permission denied")

	// ErrInvalidConfig indicates a malformed configuration value
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")
)

// TransientError wraps an error to mark it as transient
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %v", e.Cause)
	}
	return "transient error"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransientf creates a new transient error with formatting
func NewTransientf(format string, args ...interface{}) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

// PermanentError wraps an error to mark it as permanent
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent error: %v", e.Cause)
	}
	return "permanent error"
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// NewPermanentf creates a new permanent error with formatting
func NewPermanentf(format string, args ...interface{}) error {
	return &PermanentError{Cause: fmt.Errorf(format, args...)}
}

// IsTransient checks if an error is transient using errors.As
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidInput) {
		return false
	}

	// Filesystem failures only affect the current attempt
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, fs.ErrPermission)
}

// IsPermanent reports whether err is a configuration or input error that stops the run
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// WrapFS wraps a filesystem error for the given operation and path as transient.
// Missing paths and permission failures also match ErrNotFound and ErrPermission.
func WrapFS(op, path string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &TransientError{Cause: fmt.Errorf("%s %s: %w: %w", op, path, ErrNotFound, err)}
	case errors.Is(err, fs.ErrPermission):
		return &TransientError{Cause: fmt.Errorf("%s %s: %w: %w", op, path, ErrPermission, err)}
	default:
		return &TransientError{Cause: fmt.Errorf("%s %s: %w", op, path, err)}
	}
}
