// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/taskctl/lib/codec"
)

// Message type constants for the session wire format. Each message is
// a 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by the payload.
const (
	// MessageTypeData carries raw bytes. Local→remote it is keystrokes
	// or piped stdin; an empty payload marks the end of local input.
	// Remote→local it is the process's stdout (or its PTY output).
	MessageTypeData byte = 0x01

	// MessageTypeResize carries terminal dimensions. Local→remote only.
	// Payload is 4 bytes: columns (uint16 big-endian) then rows (uint16
	// big-endian).
	MessageTypeResize byte = 0x02

	// MessageTypeHistory carries the retained console output of a task,
	// sent once on attach before live data. Remote→local only.
	MessageTypeHistory byte = 0x03

	// MessageTypeMetadata carries a CBOR Metadata payload. Remote→local
	// only, sent once before history.
	MessageTypeMetadata byte = 0x04

	// MessageTypeExit carries a CBOR ExitPayload once the remote
	// process has exited and its output has been drained. It is the
	// last message the remote sends.
	MessageTypeExit byte = 0x05

	// MessageTypeDetach ends the session without affecting the remote
	// process. Local→remote only, empty payload.
	MessageTypeDetach byte = 0x06

	// MessageTypeHeartbeat keeps an idle session alive. Local→remote
	// only, CBOR HeartbeatPayload.
	MessageTypeHeartbeat byte = 0x07

	// MessageTypeStderr carries the process's stderr for sessions
	// without a PTY. Remote→local only.
	MessageTypeStderr byte = 0x08

	// MessageTypeError carries a CBOR ErrorPayload when the remote ends
	// a session it could not relay faithfully, such as output lost to a
	// client that fell too far behind. Remote→local only, and the last
	// message the remote sends.
	MessageTypeError byte = 0x09
)

const messageHeaderLength = 5

// maxPayloadLength bounds a single frame. History replay of a full ring
// buffer is the largest expected payload.
const maxPayloadLength = 16 * 1024 * 1024

// Message is a single framed protocol message.
type Message struct {
	Type    byte
	Payload []byte
}

// WriteMessage writes a framed message to w. The header and payload go
// out in one Write so concurrent frame boundaries cannot interleave on
// writers that serialize Write calls.
func WriteMessage(w io.Writer, message Message) error {
	if len(message.Payload) > maxPayloadLength {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(message.Payload), maxPayloadLength)
	}
	frame := make([]byte, messageHeaderLength+len(message.Payload))
	frame[0] = message.Type
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(message.Payload)))
	copy(frame[messageHeaderLength:], message.Payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadMessage reads a framed message from r. Returns an error if the
// stream is malformed or the payload exceeds the maximum frame size.
// A clean end of stream before the header is reported as io.EOF.
func ReadMessage(r io.Reader) (Message, error) {
	var header [messageHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("read message header: %w", err)
	}
	messageType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadLength {
		return Message{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Message{}, fmt.Errorf("read message payload: %w", err)
		}
	}
	return Message{Type: messageType, Payload: payload}, nil
}

// WriteJSONLine writes value as a single newline-terminated JSON line,
// the form of the session handshake.
func WriteJSONLine(w io.Writer, value any) error {
	line, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}

// ReadJSONLine reads one newline-terminated JSON line from reader into
// value. The newline is consumed, so the framed messages that follow
// can be read from the same reader.
func ReadJSONLine(reader *bufio.Reader, value any) error {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return err
	}
	return json.Unmarshal(line, value)
}

// NewDataMessage creates a data message carrying raw bytes.
func NewDataMessage(data []byte) Message {
	return Message{Type: MessageTypeData, Payload: data}
}

// NewStderrMessage creates a stderr message.
func NewStderrMessage(data []byte) Message {
	return Message{Type: MessageTypeStderr, Payload: data}
}

// NewResizeMessage creates a resize message with the given terminal
// dimensions.
func NewResizeMessage(size WindowSize) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], size.Columns)
	binary.BigEndian.PutUint16(payload[2:4], size.Rows)
	return Message{Type: MessageTypeResize, Payload: payload}
}

// ParseResizePayload extracts the window size from a resize payload.
func ParseResizePayload(payload []byte) (WindowSize, error) {
	if len(payload) != 4 {
		return WindowSize{}, fmt.Errorf("resize payload must be 4 bytes, got %d", len(payload))
	}
	return WindowSize{
		Columns: binary.BigEndian.Uint16(payload[0:2]),
		Rows:    binary.BigEndian.Uint16(payload[2:4]),
	}, nil
}

// NewHistoryMessage creates a history message carrying retained output.
func NewHistoryMessage(data []byte) Message {
	return Message{Type: MessageTypeHistory, Payload: data}
}

// NewDetachMessage creates a detach message.
func NewDetachMessage() Message {
	return Message{Type: MessageTypeDetach}
}

// NewMetadataMessage encodes metadata into a metadata message.
func NewMetadataMessage(metadata Metadata) (Message, error) {
	return newCBORMessage(MessageTypeMetadata, metadata)
}

// NewExitMessage encodes a wait status into an exit message.
func NewExitMessage(status ExitStatus) (Message, error) {
	return newCBORMessage(MessageTypeExit, ExitPayload{Status: status})
}

// NewHeartbeatMessage encodes a heartbeat carrying the sender's
// interval, so the remote can judge when a session has gone quiet.
func NewHeartbeatMessage(interval time.Duration) (Message, error) {
	return newCBORMessage(MessageTypeHeartbeat, HeartbeatPayload{IntervalNanoseconds: int64(interval)})
}

// NewErrorMessage encodes a session failure into an error message.
func NewErrorMessage(code, message string) (Message, error) {
	return newCBORMessage(MessageTypeError, ErrorPayload{Code: code, Message: message})
}

func newCBORMessage(messageType byte, value any) (Message, error) {
	payload, err := codec.Marshal(value)
	if err != nil {
		return Message{}, fmt.Errorf("encode message 0x%02x: %w", messageType, err)
	}
	return Message{Type: messageType, Payload: payload}, nil
}

// DecodePayload decodes the CBOR payload of a metadata, exit, or
// heartbeat message.
func DecodePayload(message Message, value any) error {
	if err := codec.Unmarshal(message.Payload, value); err != nil {
		return fmt.Errorf("decode message 0x%02x: %w", message.Type, err)
	}
	return nil
}

// WindowSize is a terminal size in character cells.
type WindowSize struct {
	Columns uint16
	Rows    uint16
}

// Metadata describes the remote end of a session.
type Metadata struct {
	// Session identifies this session on the switchboard.
	Session string `cbor:"session"`

	// Task is the full ID of the task the session belongs to.
	Task string `cbor:"task"`

	// TTY is true when the remote process runs on a pseudo-terminal.
	// Output then arrives only as Data frames and carries the
	// terminal's line discipline (\r\n line endings, echo).
	TTY bool `cbor:"tty"`
}

// ExitPayload carries a remote process's termination.
type ExitPayload struct {
	Status ExitStatus `cbor:"status"`
}

// ErrorPayload describes why the remote ended a session.
type ErrorPayload struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

// HeartbeatPayload carries the client's heartbeat interval.
type HeartbeatPayload struct {
	IntervalNanoseconds int64 `cbor:"interval_ns"`
}

// ExitStatus is a wait(2)-style status word.
type ExitStatus int32

// ExitCode converts the status to a shell-style exit code: the exit
// code for a normal exit, or 128 plus the signal number for a process
// killed by a signal.
func (status ExitStatus) ExitCode() int {
	if signal := int(status) & 0x7f; signal != 0 {
		return 128 + signal
	}
	return (int(status) >> 8) & 0xff
}

// ExitedStatus builds the status of a process that exited normally
// with code.
func ExitedStatus(code int) ExitStatus {
	return ExitStatus((code & 0xff) << 8)
}

// SignaledStatus builds the status of a process killed by signal.
func SignaledStatus(signal int) ExitStatus {
	return ExitStatus(signal & 0x7f)
}

// Session actions.
const (
	ActionAttach = "attach"
	ActionExec   = "exec"
)

// Error codes carried in SessionResponse.Code.
const (
	CodeNotFound            = "not_found"
	CodeAmbiguous           = "ambiguous"
	CodeSwitchboardDisabled = "switchboard_disabled"
	CodeInvalid             = "invalid"

	// CodeOutputLost ends a session whose client fell further behind
	// the task's output than the switchboard retains.
	CodeOutputLost = "output_lost"
)

// SessionRequest is the JSON handshake a client sends before switching
// to the framed protocol.
type SessionRequest struct {
	// Action is ActionAttach or ActionExec.
	Action string `json:"action"`

	// Task identifies the target task: a full ID or any unique
	// substring of one.
	Task string `json:"task"`

	// Command is the argv to run for ActionExec.
	Command []string `json:"command,omitempty"`

	// Interactive is true when the client will forward stdin.
	Interactive bool `json:"interactive,omitempty"`

	// TTY requests a pseudo-terminal for ActionExec.
	TTY bool `json:"tty,omitempty"`
}

// Validate checks the request for structural errors.
func (request SessionRequest) Validate() error {
	if request.Task == "" {
		return fmt.Errorf("task is required")
	}
	switch request.Action {
	case ActionAttach:
		if len(request.Command) > 0 {
			return fmt.Errorf("attach does not take a command")
		}
	case ActionExec:
		if len(request.Command) == 0 {
			return fmt.Errorf("exec requires a command")
		}
	default:
		return fmt.Errorf("unknown action %q", request.Action)
	}
	return nil
}

// SessionResponse is the server's JSON reply to a SessionRequest. On
// success the connection switches to the framed protocol; on failure it
// is closed after the response.
type SessionResponse struct {
	// OK is true if the session was established.
	OK bool `json:"ok"`

	// Session identifies the session. Only set when OK is true.
	Session string `json:"session,omitempty"`

	// Task is the full ID the request's task pattern resolved to.
	Task string `json:"task,omitempty"`

	// Error describes why the request failed. Only set when OK is false.
	Error string `json:"error,omitempty"`

	// Code classifies Error (CodeNotFound, CodeAmbiguous, ...).
	Code string `json:"code,omitempty"`
}
