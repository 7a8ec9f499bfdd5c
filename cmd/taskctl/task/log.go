// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/logs"
	"github.com/bureau-foundation/taskctl/switchboard"
)

func logCommand(env *Environment) *cli.Command {
	var (
		follow bool
		lines  int
	)

	return &cli.Command{
		Name:    "log",
		Summary: "Print the log of a task",
		Description: `Print the last lines of a task's stdout, or of <file> (stdout or
stderr). When several tasks match <task>, each log is printed under a
"===> <task> <===" header.

With --follow, taskctl keeps polling for new output until interrupted
or until the task exits and its log is fully printed. Only a single
task can be followed.`,
		Usage: "taskctl task log <task> [<file>] [flags]",
		Examples: []cli.Example{
			{
				Description: "Last 10 lines of stdout",
				Command:     "taskctl task log cat",
			},
			{
				Description: "Follow stderr from the last 50 lines",
				Command:     "taskctl task log cat stderr --follow --lines 50",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("log", pflag.ContinueOnError)
			flagSet.BoolVar(&follow, "follow", false, "keep printing new output as it is written")
			flagSet.IntVar(&lines, "lines", logs.DefaultLines, "print the N last lines")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 1 || len(args) > 2 {
				return cli.Validation("expected <task> and an optional <file>, got %d argument(s)", len(args)).
					WithHint("Usage: taskctl task log <task> [<file>] [flags]")
			}
			file := switchboard.FileStdout
			if len(args) == 2 {
				file = args[1]
			}
			if file != switchboard.FileStdout && file != switchboard.FileStderr {
				return cli.Validation("unknown file %q: expected %s or %s", file, switchboard.FileStdout, switchboard.FileStderr)
			}
			if lines < 0 {
				return cli.Validation("--lines must not be negative, got %d", lines)
			}

			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}
			client := env.apiClient(cfg)
			tasks, err := client.Tasks(ctx)
			if err != nil {
				return apiError(err, client.BaseURL())
			}

			matches := switchboard.MatchTasks(tasks, args[0])
			if len(matches) == 0 {
				return noTaskError(args[0])
			}
			if len(matches) > 1 && follow {
				return cli.Validation("found more than one task with the same name, unable to follow them all: %v", taskIDs(matches))
			}
			logger = logger.With("command", "task/log", "file", file)

			printer := logs.NewPrinter(env.Stdout)
			for _, task := range matches {
				if len(matches) > 1 {
					if err := printer.Header(task.ID); err != nil {
						return cli.Internal("writing output: %w", err)
					}
				}
				source := &logs.HTTPSource{
					Client:  client.HTTPClient(),
					BaseURL: client.BaseURL(),
					TaskID:  task.ID,
					File:    file,
				}
				cursor, err := logs.Tail(ctx, source, lines, printer)
				if err != nil {
					return logError(ctx, err, task.ID)
				}
				if !follow {
					continue
				}

				logger.Debug("following log", "task", task.ID, "offset", cursor.Offset())
				follower := &logs.Follower{
					Source:    source,
					Clock:     env.clock(),
					Interval:  cfg.PollInterval(),
					ChunkSize: cfg.Logs.ChunkSize,
				}
				if err := follower.Follow(ctx, cursor, printer); err != nil {
					return logError(ctx, err, task.ID)
				}
			}
			return nil
		},
	}
}

func logError(ctx context.Context, err error, taskID string) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return cli.Transient("%w", fmt.Errorf("log of %s: %w", taskID, err))
}
