// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
)

func attachCommand(env *Environment) *cli.Command {
	var noStdin bool

	return &cli.Command{
		Name:    "attach",
		Summary: "Attach to the console of a running task",
		Description: `Attach the terminal to the stdio of an already running task.

The task must run on a TTY with the I/O switchboard enabled. On connect
the switchboard replays the console's recent output, then streams live.
Keystrokes are forwarded unchanged, including control keys.

To detach type the escape sequence, CTRL-p CTRL-q by default. Set
TASKCTL_ESCAPE_SEQUENCE (or attach.escape_sequence) to a comma-separated
list of control keys to change it. Detaching leaves the task running.
If the task exits while attached, taskctl exits with its exit code.`,
		Usage: "taskctl task attach <task> [flags]",
		Examples: []cli.Example{
			{
				Description: "Attach to the task whose ID contains \"cat\"",
				Command:     "taskctl task attach cat",
			},
			{
				Description: "Watch the console without sending input",
				Command:     "taskctl task attach cat --no-stdin",
			},
			{
				Description: "Detach with CTRL-x CTRL-y instead",
				Command:     "TASKCTL_ESCAPE_SEQUENCE=ctrl-x,ctrl-y taskctl task attach cat",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("attach", pflag.ContinueOnError)
			flagSet.BoolVar(&noStdin, "no-stdin", false, "do not attach stdin; only stream the task's output")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one <task> argument, got %d", len(args)).
					WithHint("Usage: taskctl task attach <task> [flags]")
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}

			mode := terminalInput
			if noStdin {
				mode = outputOnly
			}
			request := attach.SessionRequest{
				Action:      attach.ActionAttach,
				Task:        args[0],
				Interactive: !noStdin,
				TTY:         true,
			}
			return runSession(ctx, env, cfg, request, mode, logger.With("command", "task/attach"))
		},
	}
}
