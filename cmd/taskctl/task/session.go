// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"log/slog"

	"github.com/muesli/cancelreader"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/cmd/taskctl/cli"
	"github.com/bureau-foundation/taskctl/lib/config"
)

// sessionMode selects how local stdin takes part in a session.
type sessionMode int

const (
	// outputOnly forwards nothing; the session runs until the remote
	// exits or the command is interrupted.
	outputOnly sessionMode = iota

	// pipedInput forwards stdin as-is. End of stdin is passed on to the
	// remote, which keeps running until it exits.
	pipedInput

	// terminalInput puts stdin in raw mode, forwards keystrokes and
	// window sizes, and detaches on the escape sequence.
	terminalInput
)

// runSession opens a switchboard session for request and pumps it
// against the environment's streams. The remote exit code is returned
// as a *cli.ExitError.
func runSession(ctx context.Context, env *Environment, cfg *config.Config, request attach.SessionRequest, mode sessionMode, logger *slog.Logger) error {
	var sequence attach.EscapeSequence
	if mode == terminalInput {
		var err error
		if sequence, err = escapeSequence(cfg); err != nil {
			return err
		}
		if err := attach.CheckInteractive(env.Stdin); err != nil {
			return cli.Unsupported("%w", err).
				WithHint("Run from a terminal, or use --no-stdin (attach) or drop -t (exec) when input is piped.")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	address := cfg.Cluster.SessionAddress
	session, err := attach.Dial(ctx, address, request)
	if err != nil {
		return sessionError(err, address)
	}
	defer session.Close()
	logger = logger.With("task", session.Response.Task, "session", session.Response.Session)
	logger.Debug("session established", "action", request.Action)

	sio := attach.SessionIO{
		Stdout:            env.Stdout,
		Stderr:            env.Stderr,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Clock:             env.clock(),
		Logger:            logger,
	}

	var terminal *attach.Terminal
	switch mode {
	case terminalInput:
		terminal, err = attach.OpenTerminal(env.Stdin)
		if err != nil {
			return cli.Internal("%w", err)
		}
		defer terminal.Close()
		stopSignals := terminal.HandleSignals(cancel)
		defer stopSignals()

		sio.Stdin = terminal.Input()
		sio.EscapeSequence = sequence
		sio.EndOnInputClose = true
		sio.Resizes = terminal.Resizes(ctx)
	case pipedInput:
		if reader, err := cancelreader.NewReader(env.Stdin); err == nil {
			defer reader.Close()
			sio.Stdin = reader
		} else {
			sio.Stdin = env.Stdin
		}
	}

	code, err := session.Run(ctx, sio)
	if terminal != nil {
		terminal.Close()
		if received := terminal.Signal(); received != nil {
			logger.Debug("session interrupted", "signal", received.String())
			return &cli.ExitError{Code: 1}
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return &cli.ExitError{Code: 1}
		}
		return cli.Transient("session with %s: %w", session.Response.Task, err)
	}
	if session.Detached() && mode == terminalInput {
		printNotice(env.Stderr, "Detached from %s.", session.Response.Task)
	}
	logger.Debug("session ended", "exit_code", code, "detached", session.Detached())
	if code != 0 {
		return &cli.ExitError{Code: code}
	}
	return nil
}
