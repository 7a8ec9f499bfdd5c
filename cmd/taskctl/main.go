// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Taskctl attaches to, execs in, and reads the logs of tasks run by a
// taskctl-switchboard.
//
//	taskctl [--config FILE] [--verbose] task attach <task>
//	taskctl task exec [-i] [-t] <task> <cmd> [<args>...]
//	taskctl task log [--follow] [--lines N] <task> [<file>]
//	taskctl task list [--all|--completed] [--json]
//
// Exit codes: 0 on success or a clean detach; the remote command's code
// for exec and attach; 2 for usage and configuration errors; 3 when an
// interactive session is requested without a terminal; 4 when the task
// is not found or does not accept the session; 1 otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/cmd/taskctl/task"
	"github.com/bureau-foundation/taskctl/lib/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	env := &task.Environment{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	var verbose bool
	globalFlags := func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet("taskctl", pflag.ContinueOnError)
		flagSet.SetInterspersed(false)
		flagSet.StringVar(&env.ConfigPath, "config", "", "configuration file (default: $TASKCTL_CONFIG, then built-in defaults)")
		flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
		return flagSet
	}

	flagSet := globalFlags()
	flagSet.SetOutput(io.Discard)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			rootCommand(env, globalFlags).PrintHelp(os.Stderr)
			return 0
		}
		return report(cli.Validation("%w", err).WithHint("Run 'taskctl --help' for usage."))
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := cli.NewCommandLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := rootCommand(env, globalFlags)
	return report(root.Execute(ctx, flagSet.Args(), logger))
}

func rootCommand(env *task.Environment, globalFlags func() *pflag.FlagSet) *cli.Command {
	return &cli.Command{
		Name:        "taskctl",
		Description: "Attach to, exec in, and inspect the tasks run by a taskctl-switchboard.",
		Usage:       "taskctl [flags] <command>",
		Flags:       globalFlags,
		Subcommands: []*cli.Command{
			task.Command(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Fprintf(env.Stdout, "taskctl %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// report prints err to stderr unless the command already reported it,
// and returns the exit code.
func report(err error) int {
	if err != nil && !cli.Silent(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return cli.ExitCode(err)
}
