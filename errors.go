package acceptor

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit
// code 2: load-time precondition failures (missing corpus files,
// malformed metadata, unreadable driver manifest) and other
// configuration problems. Per-pair test outcomes are never wrapped in a
// RuntimeError; they are data in the report.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}
