// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for taskctl: a tree of
// [Command] values dispatched by name, pflag flag sets parsed per
// command, categorized errors that map onto process exit codes, and the
// structured logger handed to every command.
//
// Commands return errors rather than exiting. The main function turns
// the returned error into an exit code with [ExitCode] and prints it
// unless the error is an [ExitError], whose command has already
// reported the outcome.
package cli
