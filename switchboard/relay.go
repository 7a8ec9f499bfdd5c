// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/taskctl/attach"
)

// RelayOptions configures Relay.
type RelayOptions struct {
	// Metadata is sent to the client before any output.
	Metadata attach.Metadata

	// History sends the retained console output as a History message,
	// for attaching to a console that has been running. Without it,
	// output that preceded the relay is sent as ordinary Data and
	// Stderr messages.
	History bool

	// Owned kills the process when the relay ends. Exec sessions own
	// their process; attach sessions share the task's.
	Owned bool

	Logger *slog.Logger
}

// Relay bridges process to a framed session connection. reader carries
// the client's frames (it may hold bytes buffered during the
// handshake); writes go to connection.
//
//   - process output → Data (stdout, PTY) and Stderr messages
//   - Data → process input; an empty Data closes the input
//   - Resize → TIOCSWINSZ on the PTY
//   - Detach → the relay ends, the process keeps running unless Owned
//
// When the process exits and its output has been sent, Relay sends an
// Exit message and returns. A client that falls further behind than the
// process's streams retain gets an Error message (CodeOutputLost)
// instead; an Owned Hold process never gets that far ahead because its
// output waits for the relay. Relay closes connection before returning.
func Relay(connection io.ReadWriteCloser, reader io.Reader, process *Process, options RelayOptions) error {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	metadata, err := attach.NewMetadataMessage(options.Metadata)
	if err != nil {
		connection.Close()
		return err
	}
	initial := []attach.Message{metadata}

	// A Hold process's readers start at offset 0 and carry all of its
	// output. Otherwise the retained output goes out first and readers
	// continue exactly where it ends.
	stdout, stderr := process.heldStdout, process.heldStderr
	if stdout == nil {
		stdoutHistory, stdoutEnd := process.Stdout.Snapshot()
		stderrHistory, stderrEnd := process.Stderr.Snapshot()
		stdout = process.Stdout.NewReader(stdoutEnd, false)
		stderr = process.Stderr.NewReader(stderrEnd, false)
		if options.History {
			initial = append(initial, attach.NewHistoryMessage(stdoutHistory))
		} else if len(stdoutHistory) > 0 {
			initial = append(initial, attach.NewDataMessage(stdoutHistory))
		}
		if len(stderrHistory) > 0 {
			initial = append(initial, attach.NewStderrMessage(stderrHistory))
		}
	}
	defer stdout.Close()
	defer stderr.Close()

	for _, message := range initial {
		if err := attach.WriteMessage(connection, message); err != nil {
			connection.Close()
			if options.Owned {
				process.Kill()
			}
			return fmt.Errorf("sending session preamble: %w", err)
		}
	}

	done := make(chan struct{})
	var doneOnce sync.Once
	triggerDone := func() { doneOnce.Do(func() { close(done) }) }

	var goroutineWait sync.WaitGroup

	// Process output → connection. Only this goroutine and the two
	// forwarders it starts write to the connection after the preamble.
	goroutineWait.Add(1)
	go func() {
		defer goroutineWait.Done()
		defer triggerDone()

		var writeMutex sync.Mutex
		send := func(message attach.Message) error {
			writeMutex.Lock()
			defer writeMutex.Unlock()
			return attach.WriteMessage(connection, message)
		}

		results := make(chan error, 2)
		go func() { results <- forward(stdout, attach.NewDataMessage, send) }()
		go func() { results <- forward(stderr, attach.NewStderrMessage, send) }()
		var outputErr error
		for range 2 {
			if err := <-results; err != nil && outputErr == nil {
				outputErr = err
				stdout.Close()
				stderr.Close()
			}
		}

		var lost *OutputLostError
		switch {
		case errors.As(outputErr, &lost):
			logger.Warn("session fell behind task output, ending it", "lost_bytes", lost.Lost)
			message, err := attach.NewErrorMessage(attach.CodeOutputLost, lost.Error())
			if err == nil {
				send(message)
			}
			return
		case outputErr != nil:
			// The relay is ending or the client went away.
			return
		}

		select {
		case <-done:
			return
		case <-process.Done():
		}
		status, _ := process.Status()
		exit, err := attach.NewExitMessage(status)
		if err != nil {
			logger.Error("encoding exit status", "error", err)
			return
		}
		if err := send(exit); err != nil {
			logger.Debug("client gone before exit status", "error", err)
		}
	}()

	// Connection → process input or ioctl.
	goroutineWait.Add(1)
	go func() {
		defer goroutineWait.Done()
		defer triggerDone()
		for {
			message, err := attach.ReadMessage(reader)
			if err != nil {
				// Client disconnected, or the connection was closed
				// during shutdown.
				return
			}
			switch message.Type {
			case attach.MessageTypeData:
				if len(message.Payload) == 0 {
					if err := process.CloseInput(); err != nil {
						logger.Debug("closing process input", "error", err)
					}
					continue
				}
				if _, err := process.Write(message.Payload); err != nil {
					if errors.Is(err, ErrNoInput) {
						continue
					}
					// The process exited; output and the exit status
					// are still on their way.
					logger.Debug("writing process input", "error", err)
				}
			case attach.MessageTypeResize:
				size, err := attach.ParseResizePayload(message.Payload)
				if err != nil {
					logger.Debug("dropping malformed resize", "error", err)
					continue
				}
				if err := process.Resize(size); err != nil {
					logger.Debug("resizing PTY", "error", err)
				}
			case attach.MessageTypeHeartbeat:
				var heartbeat attach.HeartbeatPayload
				if err := attach.DecodePayload(message, &heartbeat); err == nil {
					logger.Debug("heartbeat", "interval_ns", heartbeat.IntervalNanoseconds)
				}
			case attach.MessageTypeDetach:
				logger.Info("client detached")
				return
			}
		}
	}()

	<-done

	// Close the connection to unblock the input goroutine and the
	// readers to unblock the forwarders.
	connection.Close()
	stdout.Close()
	stderr.Close()
	if options.Owned {
		process.Kill()
	}
	goroutineWait.Wait()
	return nil
}

// forwardChunkSize bounds the payload of one output message.
const forwardChunkSize = 32 * 1024

// forward sends everything reader yields as messages built by
// newMessage. It returns nil at the end of the stream.
func forward(reader *StreamReader, newMessage func([]byte) attach.Message, send func(attach.Message) error) error {
	for {
		data, err := reader.Next(forwardChunkSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := send(newMessage(data)); err != nil {
			return err
		}
	}
}
