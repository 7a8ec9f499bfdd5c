// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/taskctl/lib/clock"
	"github.com/bureau-foundation/taskctl/lib/netutil"
)

// DefaultHeartbeatInterval is how often a session pings the remote when
// SessionIO.HeartbeatInterval is zero.
const DefaultHeartbeatInterval = 30 * time.Second

// inputBufferSize is the largest single read from local input.
const inputBufferSize = 32 * 1024

// Session is an established attach or exec session. Create one with
// Dial, then call Run exactly once.
type Session struct {
	// Response is the switchboard's handshake reply.
	Response SessionResponse

	conn   net.Conn
	reader io.Reader

	// Written by the pump goroutines, read after Run returns.
	metadata Metadata
	detached bool
}

// SessionIO connects a session to local streams.
type SessionIO struct {
	// Stdin is forwarded to the remote when non-nil. If it has a
	// Cancel() bool method (muesli/cancelreader), Run calls it on
	// teardown to unblock a pending read.
	Stdin io.Reader

	// Stdout receives remote output and history. Required.
	Stdout io.Writer

	// Stderr receives the remote's separate stderr stream. Defaults to
	// Stdout.
	Stderr io.Writer

	// EscapeSequence enables detach detection on Stdin.
	EscapeSequence EscapeSequence

	// EndOnInputClose makes end of Stdin end the session, leaving the
	// remote running, as closing a terminal does. Otherwise end of
	// Stdin is forwarded and the session continues until the remote
	// exits.
	EndOnInputClose bool

	// Resizes delivers local window size changes.
	Resizes <-chan WindowSize

	// HeartbeatInterval defaults to DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Clock drives heartbeats. Defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Metadata returns the remote's metadata, once Run has returned.
func (s *Session) Metadata() Metadata {
	return s.metadata
}

// Detached reports whether Run ended because the escape sequence was
// typed or local input closed on an EndOnInputClose session.
func (s *Session) Detached() bool {
	return s.detached
}

// Close releases the connection without running the session.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run pumps the session until the remote process exits, the remote
// closes the connection, the session detaches, or ctx is cancelled.
// It returns the remote's exit code, or 0 for a detach or a remote
// that closed without reporting a status. A session the remote ended
// with an Error message returns that error as a *RemoteError. The
// connection is closed on return.
func (s *Session) Run(ctx context.Context, sio SessionIO) (int, error) {
	defer s.conn.Close()

	if sio.Stderr == nil {
		sio.Stderr = sio.Stdout
	}
	if sio.HeartbeatInterval <= 0 {
		sio.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if sio.Clock == nil {
		sio.Clock = clock.Real()
	}
	if sio.Logger == nil {
		sio.Logger = slog.New(slog.DiscardHandler)
	}
	input := sio.Stdin
	if input != nil && len(sio.EscapeSequence) > 0 {
		input = NewEscapeReader(input, sio.EscapeSequence)
	}

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	var (
		waitGroup sync.WaitGroup
		inputErr  error
		outputErr error
		exitCode  int
		exited    bool
	)
	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		inputErr = s.pumpInput(done, finish, input, sio)
		if inputErr != nil {
			finish()
		}
	}()
	go func() {
		defer waitGroup.Done()
		defer finish()
		exitCode, exited, outputErr = s.pumpOutput(sio)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	finish()
	s.conn.Close()
	if canceler, ok := sio.Stdin.(interface{ Cancel() bool }); ok {
		canceler.Cancel()
	}
	waitGroup.Wait()

	switch {
	case s.detached:
		sio.Logger.Debug("session detached", "session", s.Response.Session)
		return 0, nil
	case exited:
		return exitCode, nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case inputErr != nil:
		return 0, inputErr
	case outputErr != nil:
		return 0, outputErr
	}
	return 0, nil
}

type inputChunk struct {
	data []byte
	err  error
}

// readInput reads from input on its own goroutine so the pump can
// select on it. The goroutine exits after a read error or once done is
// closed; a read that never returns leaves it blocked, which is why Run
// cancels cancelable readers.
func readInput(done <-chan struct{}, input io.Reader) <-chan inputChunk {
	chunks := make(chan inputChunk)
	go func() {
		buffer := make([]byte, inputBufferSize)
		for {
			n, err := input.Read(buffer)
			chunk := inputChunk{err: err}
			if n > 0 {
				chunk.data = append([]byte(nil), buffer[:n]...)
			}
			select {
			case chunks <- chunk:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return chunks
}

// pumpInput is the only writer on the connection.
func (s *Session) pumpInput(done <-chan struct{}, finish func(), input io.Reader, sio SessionIO) error {
	heartbeat := sio.Clock.NewTicker(sio.HeartbeatInterval)
	defer heartbeat.Stop()

	var chunks <-chan inputChunk
	if input != nil {
		chunks = readInput(done, input)
	}

	write := func(message Message) error {
		if err := WriteMessage(s.conn, message); err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			if netutil.IsExpectedCloseError(err) {
				return nil
			}
			return fmt.Errorf("writing to switchboard: %w", err)
		}
		return nil
	}

	for {
		select {
		case <-done:
			return nil

		case chunk := <-chunks:
			if len(chunk.data) > 0 {
				if err := write(NewDataMessage(chunk.data)); err != nil {
					return err
				}
			}
			switch {
			case chunk.err == nil:
			case errors.Is(chunk.err, ErrDetached), errors.Is(chunk.err, io.EOF) && sio.EndOnInputClose:
				s.detached = true
				err := write(NewDetachMessage())
				finish()
				return err
			case errors.Is(chunk.err, io.EOF):
				// An empty Data frame closes the remote's stdin.
				if err := write(NewDataMessage(nil)); err != nil {
					return err
				}
				chunks = nil
			default:
				select {
				case <-done:
					return nil
				default:
				}
				return fmt.Errorf("reading local input: %w", chunk.err)
			}

		case size := <-sio.Resizes:
			if err := write(NewResizeMessage(size)); err != nil {
				return err
			}

		case <-heartbeat.C:
			message, err := NewHeartbeatMessage(sio.HeartbeatInterval)
			if err != nil {
				return err
			}
			if err := write(message); err != nil {
				return err
			}
		}
	}
}

// pumpOutput copies remote output to the local streams. It reports
// exited when the remote sent an exit status, and returns a
// *RemoteError when the remote sent an Error message.
func (s *Session) pumpOutput(sio SessionIO) (exitCode int, exited bool, err error) {
	for {
		message, err := ReadMessage(s.reader)
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				return 0, false, nil
			}
			return 0, false, fmt.Errorf("reading from switchboard: %w", err)
		}

		switch message.Type {
		case MessageTypeData, MessageTypeHistory:
			if _, err := sio.Stdout.Write(message.Payload); err != nil {
				return 0, false, fmt.Errorf("writing to stdout: %w", err)
			}
		case MessageTypeStderr:
			if _, err := sio.Stderr.Write(message.Payload); err != nil {
				return 0, false, fmt.Errorf("writing to stderr: %w", err)
			}
		case MessageTypeMetadata:
			var metadata Metadata
			if err := DecodePayload(message, &metadata); err != nil {
				return 0, false, err
			}
			s.metadata = metadata
		case MessageTypeExit:
			var payload ExitPayload
			if err := DecodePayload(message, &payload); err != nil {
				return 0, false, err
			}
			return payload.Status.ExitCode(), true, nil
		case MessageTypeError:
			var payload ErrorPayload
			if err := DecodePayload(message, &payload); err != nil {
				return 0, false, err
			}
			return 0, false, &RemoteError{Code: payload.Code, Message: payload.Message}
		default:
			sio.Logger.Debug("ignoring unknown message", "type", message.Type)
		}
	}
}
