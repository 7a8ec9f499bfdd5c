// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/switchboard"
)

func downloadCommand(env *Environment) *cli.Command {
	var targetDir string

	return &cli.Command{
		Name:    "download",
		Summary: "Download files from a task's sandbox",
		Description: `Download files from the sandbox of a single task. The last element
of [path] may be a pattern (as in "logs/*.txt") selecting several
files; matching directories are downloaded with their contents. With
no [path] the entire sandbox is downloaded.

Files that cannot be fetched are reported and skipped, and the command
then fails.`,
		Usage: "taskctl task download <task> [path] [flags]",
		Examples: []cli.Example{
			{
				Description: "The whole sandbox into the current directory",
				Command:     "taskctl task download cat",
			},
			{
				Description: "Text logs into /tmp/cat",
				Command:     "taskctl task download cat 'logs/*.txt' --target-dir /tmp/cat",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("download", pflag.ContinueOnError)
			flagSet.StringVar(&targetDir, "target-dir", "", "directory to download into (default: the current directory)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) < 1 || len(args) > 2 {
				return cli.Validation("expected <task> and an optional [path], got %d argument(s)", len(args)).
					WithHint("Usage: taskctl task download <task> [path] [flags]")
			}
			pattern := "/"
			if len(args) == 2 {
				pattern = args[1]
			}
			dir, base := splitPattern(pattern)
			if _, err := path.Match(base, ""); err != nil {
				return cli.Validation("'%s' as pattern not supported: %w", pattern, err)
			}
			if targetDir == "" {
				workingDir, err := os.Getwd()
				if err != nil {
					return cli.Internal("finding the current directory: %w", err)
				}
				targetDir = workingDir
			}
			if err := os.MkdirAll(targetDir, 0o755); err != nil {
				return cli.Internal("creating %s: %w", targetDir, err)
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
			switch {
			case len(matches) == 0:
				return noTaskError(args[0])
			case len(matches) > 1:
				return cli.Validation("found more than one task with the same name: %v", taskIDs(matches)).
					WithHint("Pass more of the task ID to select a single task.")
			}

			fetcher := &sandboxFetcher{
				client: client,
				taskID: matches[0].ID,
				stderr: env.Stderr,
				logger: logger.With("command", "task/download", "task", matches[0].ID),
			}
			matched, err := fetcher.fetchMatching(ctx, dir, base, targetDir)
			if errors.Is(err, switchboard.ErrNotFound) {
				return cli.NotFound("cannot access '%s': no such file or directory", pattern)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return apiError(err, client.BaseURL())
			}
			if matched == 0 && base != "" {
				return cli.NotFound("no file matches '%s'", pattern)
			}
			if fetcher.failed {
				return cli.Transient("could not download all matched files")
			}
			return nil
		},
	}
}

// splitPattern splits a download pattern into the sandbox directory to
// browse and the pattern its entries must match. An empty base matches
// everything.
func splitPattern(pattern string) (dir, base string) {
	cleaned := switchboard.SandboxPath(pattern)
	if cleaned == "." {
		return ".", ""
	}
	return path.Dir(cleaned), path.Base(cleaned)
}

// sandboxFetcher copies sandbox files to the local filesystem. Failures
// on individual files are printed and remembered rather than returned.
type sandboxFetcher struct {
	client *switchboard.Client
	taskID string
	stderr io.Writer
	logger *slog.Logger

	failed bool
}

// fetchMatching downloads the entries of the sandbox directory dir whose
// name matches base into targetDir, recursing into directories. It
// returns the number of matching entries, and an error only when dir
// itself cannot be listed.
func (f *sandboxFetcher) fetchMatching(ctx context.Context, dir, base, targetDir string) (int, error) {
	files, err := f.client.Browse(ctx, f.taskID, dir)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", targetDir, err)
	}

	matched := 0
	for _, file := range files {
		name := path.Base(file.Path)
		if base != "" {
			if ok, _ := path.Match(base, name); !ok {
				continue
			}
		}
		matched++

		target := filepath.Join(targetDir, name)
		if file.IsDir() {
			if _, err := f.fetchMatching(ctx, file.Path, "", target); err != nil {
				f.report(fmt.Errorf("could not list directory '%s': %w", file.Path, err))
			}
			continue
		}
		if err := f.fetchFile(ctx, file.Path, target); err != nil {
			f.report(err)
		}
	}
	return matched, ctx.Err()
}

func (f *sandboxFetcher) fetchFile(ctx context.Context, name, target string) error {
	body, err := f.client.Download(ctx, f.taskID, name)
	if err != nil {
		return fmt.Errorf("could not fetch file '%s': %w", name, err)
	}
	defer body.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("unable to create file '%s': %w", target, err)
	}
	written, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("unable to write to file '%s': %w", target, err)
	}
	f.logger.Debug("downloaded file", "path", name, "target", target, "bytes", written)
	return nil
}

func (f *sandboxFetcher) report(err error) {
	f.failed = true
	fmt.Fprintf(f.stderr, "Error: %v\n", err)
}
