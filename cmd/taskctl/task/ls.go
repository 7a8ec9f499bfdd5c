// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/switchboard"
)

func lsCommand(env *Environment) *cli.Command {
	var long bool

	return &cli.Command{
		Name:    "ls",
		Summary: "Print the list of files in a task's sandbox",
		Description: `Print the files in [path] of each matching task's sandbox, the
directory the task was started in. [path] defaults to the sandbox
root. When several tasks match <task>, each listing is printed under a
"===> <task> <===" header.`,
		Usage: "taskctl task ls <task> [path] [flags]",
		Examples: []cli.Example{
			{
				Description: "Sandbox root of the cat task",
				Command:     "taskctl task ls cat",
			},
			{
				Description: "Full attributes of a subdirectory",
				Command:     "taskctl task ls cat logs --long",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("ls", pflag.ContinueOnError)
			flagSet.BoolVar(&long, "long", false, "print full file attributes")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) < 1 || len(args) > 2 {
				return cli.Validation("expected <task> and an optional [path], got %d argument(s)", len(args)).
					WithHint("Usage: taskctl task ls <task> [path] [flags]")
			}
			name := "."
			if len(args) == 2 {
				name = args[1]
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

			for _, task := range matches {
				if len(matches) > 1 {
					fmt.Fprintf(env.Stdout, "===> %s <===\n", task.ID)
				}
				files, err := client.Browse(ctx, task.ID, name)
				if errors.Is(err, switchboard.ErrNotFound) {
					return cli.NotFound("cannot access '%s': no such file or directory", name)
				}
				if err != nil {
					return apiError(err, client.BaseURL())
				}
				if long {
					if err := printLongListing(env, files); err != nil {
						return cli.Internal("writing output: %w", err)
					}
					continue
				}
				if len(files) > 0 {
					names := make([]string, len(files))
					for index, file := range files {
						names[index] = path.Base(file.Path)
					}
					fmt.Fprintln(env.Stdout, strings.Join(names, "  "))
				}
			}
			return nil
		},
	}
}

func printLongListing(env *Environment, files []switchboard.FileInfo) error {
	writer := tabwriter.NewWriter(env.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "MODE\tLINKS\tUID\tGID\tSIZE\tDATE\tNAME")
	for _, file := range files {
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			file.Mode, file.NLink, file.UID, file.GID, file.Size,
			file.MTime.Local().Format(time.RFC822), path.Base(file.Path))
	}
	return writer.Flush()
}
