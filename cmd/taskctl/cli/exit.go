// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have already written its
// own output; "task exec" uses it to mirror the remote command's exit
// status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode maps a command's returned error onto a process exit code:
// 0 for nil, the carried code for an ExitError, the category's code for
// a ToolError (validation 2, unsupported 3, not found or unavailable 4),
// and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		switch toolErr.Category {
		case CategoryValidation:
			return 2
		case CategoryUnsupported:
			return 3
		case CategoryNotFound, CategoryUnavailable:
			return 4
		}
	}
	return 1
}

// Silent reports whether err should exit without an error message.
func Silent(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}
