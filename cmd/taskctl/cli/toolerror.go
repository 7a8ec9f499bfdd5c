// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies command errors so that main can choose an
// exit code without parsing error message text.
type ErrorCategory string

const (
	// CategoryValidation indicates invalid input or configuration:
	// missing arguments, unknown flags, unparseable values. Exit code 2.
	CategoryValidation ErrorCategory = "validation"

	// CategoryUnsupported indicates the environment cannot do what was
	// asked, such as an interactive session without a terminal. Exit
	// code 3.
	CategoryUnsupported ErrorCategory = "unsupported"

	// CategoryNotFound indicates a referenced task does not exist.
	// Exit code 4.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryUnavailable indicates the task exists but cannot serve
	// the request, such as attach to a task without the I/O
	// switchboard. Exit code 4.
	CategoryUnavailable ErrorCategory = "unavailable"

	// CategoryTransient indicates a temporary failure: network error,
	// timeout, switchboard not running. Exit code 1.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected error. Exit code 1.
	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a categorized error returned by commands. It wraps an
// inner error, preserving the chain for errors.Is and errors.As. Use
// the category-specific constructors rather than constructing ToolError
// directly.
type ToolError struct {
	// Category classifies the error for exit code selection.
	Category ErrorCategory

	// Err is the underlying error with the human-readable message.
	Err error

	// Hint is optional guidance printed after the message on its own
	// paragraph.
	Hint string
}

// Error returns the message, followed by the hint when one is set.
func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.Err }

// WithHint sets the hint and returns the receiver for chaining.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Unsupported creates an error for a request the environment cannot serve.
func Unsupported(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryUnsupported, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error: a referenced task does not exist.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Unavailable creates an error for a task that cannot serve the request.
func Unavailable(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryUnavailable, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure, bug, or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
