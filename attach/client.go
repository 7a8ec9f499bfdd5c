// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bureau-foundation/taskctl/lib/netutil"
)

// handshakeTimeout bounds the JSON exchange that opens a session. Once
// the framed protocol starts there is no deadline.
const handshakeTimeout = 10 * time.Second

var (
	// ErrTaskNotFound matches a RemoteError whose task pattern matched
	// nothing.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSwitchboardDisabled matches a RemoteError for a task that
	// does not accept interactive sessions.
	ErrSwitchboardDisabled = errors.New("switchboard disabled")
)

// RemoteError is a session request refused by the switchboard.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is matches ErrTaskNotFound and ErrSwitchboardDisabled by code.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrTaskNotFound:
		return e.Code == CodeNotFound
	case ErrSwitchboardDisabled:
		return e.Code == CodeSwitchboardDisabled
	}
	return false
}

// Dial connects to the switchboard at address, performs the handshake
// for request, and returns the established session. A refused request
// is returned as a *RemoteError.
func Dial(ctx context.Context, address string, request SessionRequest) (*Session, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session request: %w", err)
	}

	dialContext, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	conn, err := netutil.Dial(dialContext, address)
	if err != nil {
		return nil, fmt.Errorf("connecting to switchboard at %s: %w", address, err)
	}

	session, err := handshake(conn, request)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// NewSession performs the handshake over an existing connection. The
// session takes ownership of conn.
func NewSession(conn net.Conn, request SessionRequest) (*Session, error) {
	session, err := handshake(conn, request)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

func handshake(conn net.Conn, request SessionRequest) (*Session, error) {
	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := WriteJSONLine(conn, request); err != nil {
		return nil, fmt.Errorf("sending session request: %w", err)
	}

	reader := bufio.NewReader(conn)
	var response SessionResponse
	if err := ReadJSONLine(reader, &response); err != nil {
		return nil, fmt.Errorf("reading session response: %w", err)
	}
	if !response.OK {
		return nil, &RemoteError{Code: response.Code, Message: response.Error}
	}
	conn.SetDeadline(time.Time{})

	return &Session{
		Response: response,
		conn:     conn,
		// The reader may already hold the first frames.
		reader: reader,
	}, nil
}
