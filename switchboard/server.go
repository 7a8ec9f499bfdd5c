// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/lib/clock"
)

// handshakeTimeout bounds reading the request and writing the response.
const handshakeTimeout = 10 * time.Second

// Server serves attach and exec sessions and the HTTP API for the tasks
// in a Registry.
type Server struct {
	registry       *Registry
	clock          clock.Clock
	logger         *slog.Logger
	ringBufferSize int

	sessions sync.WaitGroup
}

// NewServer creates a server for registry.
func NewServer(registry *Registry, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{
		registry:       registry,
		clock:          clk,
		logger:         logger,
		ringBufferSize: registry.ringBufferSize,
	}
}

// ServeSessions accepts session connections until ctx is cancelled or
// the listener fails, handling each on its own goroutine. Returns nil
// on cancellation.
func (s *Server) ServeSessions(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("session listener started", "address", listener.Addr().String())
	for {
		connection, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting session connection: %w", err)
		}
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			s.handleConnection(connection)
		}()
	}
}

// Wait blocks until every session handler has returned.
func (s *Server) Wait() {
	s.sessions.Wait()
}

func (s *Server) handleConnection(connection net.Conn) {
	defer connection.Close()

	connection.SetDeadline(time.Now().Add(handshakeTimeout))

	reader := bufio.NewReader(connection)
	var request attach.SessionRequest
	if err := attach.ReadJSONLine(reader, &request); err != nil {
		s.sendError(connection, attach.CodeInvalid, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if err := request.Validate(); err != nil {
		s.sendError(connection, attach.CodeInvalid, fmt.Sprintf("invalid request: %v", err))
		return
	}

	task, err := s.registry.Resolve(request.Task)
	if err != nil {
		var lookupErr *LookupError
		if errors.As(err, &lookupErr) {
			s.sendError(connection, lookupErr.Code, lookupErr.Message)
		} else {
			s.sendError(connection, attach.CodeInvalid, err.Error())
		}
		return
	}
	if !task.Spec.SwitchboardEnabled || (request.Action == attach.ActionAttach && !task.Spec.TTY) {
		s.sendError(connection, attach.CodeSwitchboardDisabled,
			fmt.Sprintf("%s: I/O switchboard server was disabled for this container", task.ID))
		return
	}
	if !task.Running() {
		s.sendError(connection, attach.CodeInvalid, fmt.Sprintf("task %s has exited", task.ID))
		return
	}

	// Frames the client sent right after its request may already sit in
	// reader's buffer.
	sessionID := uuid.NewString()
	logger := s.logger.With("task", task.ID, "session", sessionID, "action", request.Action)

	switch request.Action {
	case attach.ActionAttach:
		s.attach(connection, reader, task, sessionID, logger)
	case attach.ActionExec:
		s.exec(connection, reader, task, request, sessionID, logger)
	}
}

func (s *Server) attach(connection net.Conn, reader io.Reader, task *Task, sessionID string, logger *slog.Logger) {
	if !s.sendResponse(connection, attach.SessionResponse{OK: true, Session: sessionID, Task: task.ID}) {
		return
	}
	connection.SetDeadline(time.Time{})

	logger.Info("attach session started")
	err := Relay(connection, reader, task.Process(), RelayOptions{
		Metadata: attach.Metadata{Session: sessionID, Task: task.ID, TTY: true},
		History:  true,
		Logger:   logger,
	})
	if err != nil {
		logger.Warn("attach session failed", "error", err)
		return
	}
	logger.Info("attach session ended")
}

func (s *Server) exec(connection net.Conn, reader io.Reader, task *Task, request attach.SessionRequest, sessionID string, logger *slog.Logger) {
	process, err := StartProcess(ProcessSpec{
		Command:        request.Command,
		Dir:            task.Spec.Dir,
		Env:            task.Spec.Env,
		TTY:            request.TTY,
		Input:          request.Interactive,
		RingBufferSize: s.ringBufferSize,
		Hold:           true,
	}, s.clock, logger)
	if err != nil {
		s.sendError(connection, attach.CodeInvalid, err.Error())
		return
	}
	if !s.sendResponse(connection, attach.SessionResponse{OK: true, Session: sessionID, Task: task.ID}) {
		process.Kill()
		return
	}
	connection.SetDeadline(time.Time{})

	logger.Info("exec session started", "command", request.Command, "tty", request.TTY, "pid", process.Pid())
	err = Relay(connection, reader, process, RelayOptions{
		Metadata: attach.Metadata{Session: sessionID, Task: task.ID, TTY: request.TTY},
		Owned:    true,
		Logger:   logger,
	})
	if err != nil {
		logger.Warn("exec session failed", "error", err)
		return
	}
	status, _ := process.Status()
	logger.Info("exec session ended", "exit_code", status.ExitCode())
}

func (s *Server) sendResponse(connection net.Conn, response attach.SessionResponse) bool {
	if err := attach.WriteJSONLine(connection, response); err != nil {
		s.logger.Debug("sending session response", "error", err)
		return false
	}
	return true
}

func (s *Server) sendError(connection net.Conn, code, message string) {
	s.logger.Info("session refused", "code", code, "error", message)
	s.sendResponse(connection, attach.SessionResponse{Error: message, Code: code})
}
