// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/switchboard"
)

func listCommand(env *Environment) *cli.Command {
	var all, completed, jsonOutput, quiet bool

	return &cli.Command{
		Name:    "list",
		Summary: "Print the tasks run by the switchboard",
		Description: `Print running tasks, or only exited ones with --completed, or both with
--all. An optional [pattern] keeps tasks whose ID contains it.`,
		Usage: "taskctl task list [pattern] [flags]",
		Examples: []cli.Example{
			{
				Description: "Running tasks",
				Command:     "taskctl task list",
			},
			{
				Description: "Every task as JSON",
				Command:     "taskctl task list --all --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.BoolVar(&all, "all", false, "print completed and running tasks")
			flagSet.BoolVar(&completed, "completed", false, "print completed tasks only")
			flagSet.BoolVar(&jsonOutput, "json", false, "print in JSON format")
			flagSet.BoolVarP(&quiet, "quiet", "q", false, "print only task IDs")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 1 {
				return cli.Validation("unexpected argument: %s", args[1])
			}
			if all && completed {
				return cli.Validation("cannot accept both options --all and --completed")
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
			if len(args) == 1 {
				tasks = switchboard.MatchTasks(tasks, args[0])
			}
			if !all {
				tasks = filterTasks(tasks, completed)
			}

			switch {
			case jsonOutput:
				if tasks == nil {
					tasks = []switchboard.TaskInfo{}
				}
				encoder := json.NewEncoder(env.Stdout)
				encoder.SetIndent("", "    ")
				return encoder.Encode(tasks)
			case quiet:
				for _, task := range tasks {
					fmt.Fprintln(env.Stdout, task.ID)
				}
				return nil
			}

			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "NAME\tSTATE\tEXIT\tPID\tTTY\tID\tCOMMAND")
			for _, task := range tasks {
				exitCode := "-"
				if task.ExitCode != nil {
					exitCode = strconv.Itoa(*task.ExitCode)
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
					task.Name, task.State, exitCode, task.PID, task.TTY, task.ID, strings.Join(task.Command, " "))
			}
			return writer.Flush()
		},
	}
}

// filterTasks keeps exited tasks when completed is set, running tasks
// otherwise.
func filterTasks(tasks []switchboard.TaskInfo, completed bool) []switchboard.TaskInfo {
	var result []switchboard.TaskInfo
	for _, task := range tasks {
		if completed == (task.State == switchboard.StateExited) {
			result = append(result, task)
		}
	}
	return result
}
