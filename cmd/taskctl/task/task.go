// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/muesli/termenv"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/lib/clock"
	"github.com/bureau-foundation/taskctl/lib/config"
	"github.com/bureau-foundation/taskctl/switchboard"
)

// Environment is what the task commands need from the process: the
// configuration source and the standard streams.
type Environment struct {
	// ConfigPath is the --config flag. Empty means TASKCTL_CONFIG or
	// the built-in defaults.
	ConfigPath string

	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer

	// Clock drives heartbeats and log polling. Defaults to the real clock.
	Clock clock.Clock

	// HTTPClient is used for the switchboard API. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

func (e *Environment) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if e.ConfigPath != "" {
		cfg, err = config.LoadFile(e.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	return cfg, nil
}

func (e *Environment) clock() clock.Clock {
	if e.Clock == nil {
		return clock.Real()
	}
	return e.Clock
}

func (e *Environment) apiClient(cfg *config.Config) *switchboard.Client {
	return switchboard.NewClient(cfg.Cluster.APIURL, e.HTTPClient)
}

// Command returns the "task" command tree.
func Command(env *Environment) *cli.Command {
	return &cli.Command{
		Name:    "task",
		Summary: "Attach to, exec in, and inspect cluster tasks",
		Description: `Work with the tasks run by the switchboard.

A <task> argument is a full task ID or any part of one. Commands that
need a single task fail when the pattern matches none or several.`,
		Subcommands: []*cli.Command{
			attachCommand(env),
			execCommand(env),
			logCommand(env),
			listCommand(env),
			lsCommand(env),
			downloadCommand(env),
		},
	}
}

// sessionError converts a failed attach.Dial into a categorized error.
func sessionError(err error, address string) error {
	var remote *attach.RemoteError
	if errors.As(err, &remote) {
		switch remote.Code {
		case attach.CodeNotFound:
			return cli.NotFound("%w", remote).
				WithHint("Run 'taskctl task list --all' to see available tasks.")
		case attach.CodeAmbiguous:
			return cli.Validation("%w", remote).
				WithHint("Pass more of the task ID to select a single task.")
		default:
			return cli.Unavailable("%w", remote)
		}
	}
	return cli.Transient("%w", err).
		WithHint(fmt.Sprintf("Check that taskctl-switchboard is running and listening on %s.", address))
}

// apiError converts a failed switchboard API call into a categorized
// error.
func apiError(err error, baseURL string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return cli.Transient("%w", err).
		WithHint(fmt.Sprintf("Check that taskctl-switchboard is running and serving %s.", baseURL))
}

func noTaskError(pattern string) error {
	return cli.NotFound("no task ID found containing '%s'", pattern).
		WithHint("Run 'taskctl task list --all' to see available tasks.")
}

func taskIDs(tasks []switchboard.TaskInfo) []string {
	ids := make([]string, len(tasks))
	for index, task := range tasks {
		ids[index] = task.ID
	}
	return ids
}

// escapeSequence reads the configured detach sequence.
func escapeSequence(cfg *config.Config) (attach.EscapeSequence, error) {
	sequence, err := attach.ParseEscapeSequence(cfg.EscapeSequence())
	if err != nil {
		return nil, cli.Validation("invalid escape sequence: %w", err).
			WithHint(fmt.Sprintf("Set %s or attach.escape_sequence to comma-separated keys such as ctrl-p,ctrl-q.", config.EscapeSequenceEnv))
	}
	return sequence, nil
}

// printNotice writes a dimmed status line to w.
func printNotice(w io.Writer, format string, args ...any) {
	output := termenv.NewOutput(w)
	fmt.Fprintln(output, output.String(fmt.Sprintf(format, args...)).Faint())
}
