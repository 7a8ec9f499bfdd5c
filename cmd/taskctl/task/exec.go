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

func execCommand(env *Environment) *cli.Command {
	var interactive, tty bool

	return &cli.Command{
		Name:    "exec",
		Summary: "Run a command next to a task",
		Description: `Launch a process (<cmd>) in the working directory and environment of a
task (<task>) and stream its output. taskctl exits with the command's
exit code.

With --interactive, stdin is forwarded to the command; end of input is
passed on and the command keeps running until it exits. With --tty the
command runs on a pseudo-terminal; combined with --interactive the
local terminal switches to raw mode and the escape sequence (CTRL-p
CTRL-q by default) detaches, which stops the command.

Flags must come before <task>; everything after <cmd> is passed to it.`,
		Usage: "taskctl task exec [flags] <task> [--] <cmd> [<args>...]",
		Examples: []cli.Example{
			{
				Description: "List the task's working directory",
				Command:     "taskctl task exec cat ls -la",
			},
			{
				Description: "Open a shell next to the task",
				Command:     "taskctl task exec -it cat bash",
			},
			{
				Description: "Feed a file to a command",
				Command:     "taskctl task exec -i cat wc -l < input.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("exec", pflag.ContinueOnError)
			flagSet.SetInterspersed(false)
			flagSet.BoolVarP(&interactive, "interactive", "i", false, "forward stdin to the command")
			flagSet.BoolVarP(&tty, "tty", "t", false, "run the command on a pseudo-terminal")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 2 {
				return cli.Validation("expected <task> and <cmd> arguments, got %d argument(s)", len(args)).
					WithHint("Usage: taskctl task exec [flags] <task> [--] <cmd> [<args>...]")
			}
			command := args[1:]
			if command[0] == "--" {
				command = command[1:]
				if len(command) == 0 {
					return cli.Validation("missing <cmd> after --")
				}
			}
			cfg, err := env.loadConfig()
			if err != nil {
				return err
			}

			mode := outputOnly
			switch {
			case interactive && tty:
				mode = terminalInput
			case interactive:
				mode = pipedInput
			}
			request := attach.SessionRequest{
				Action:      attach.ActionExec,
				Task:        args[0],
				Command:     command,
				Interactive: interactive,
				TTY:         tty,
			}
			return runSession(ctx, env, cfg, request, mode, logger.With("command", "task/exec"))
		},
	}
}
