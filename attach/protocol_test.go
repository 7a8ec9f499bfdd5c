// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestWriteReadMessage(t *testing.T) {
	t.Parallel()
	metadata, err := NewMetadataMessage(Metadata{Session: "s-1", Task: "cat.1234", TTY: true})
	if err != nil {
		t.Fatalf("NewMetadataMessage: %v", err)
	}
	exit, err := NewExitMessage(ExitedStatus(3))
	if err != nil {
		t.Fatalf("NewExitMessage: %v", err)
	}

	tests := []struct {
		name    string
		message Message
	}{
		{"data", NewDataMessage([]byte("hello terminal"))},
		{"empty data", NewDataMessage(nil)},
		{"stderr", NewStderrMessage([]byte("oops\n"))},
		{"resize", NewResizeMessage(WindowSize{Columns: 120, Rows: 40})},
		{"history", NewHistoryMessage([]byte("\x1b[31mred\x1b[0m\r\n"))},
		{"detach", NewDetachMessage()},
		{"metadata", metadata},
		{"exit", exit},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var buffer bytes.Buffer
			if err := WriteMessage(&buffer, test.message); err != nil {
				t.Fatalf("WriteMessage: %v", err)
			}
			if got, want := buffer.Len(), messageHeaderLength+len(test.message.Payload); got != want {
				t.Errorf("frame length = %d, want %d", got, want)
			}
			got, err := ReadMessage(&buffer)
			if err != nil {
				t.Fatalf("ReadMessage: %v", err)
			}
			if got.Type != test.message.Type {
				t.Errorf("type = 0x%02x, want 0x%02x", got.Type, test.message.Type)
			}
			if !bytes.Equal(got.Payload, test.message.Payload) {
				t.Errorf("payload = %q, want %q", got.Payload, test.message.Payload)
			}
		})
	}
}

func TestJSONLineThenFrames(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	if err := WriteJSONLine(&buffer, SessionResponse{OK: true, Session: "exec-1", Task: "cat.0001"}); err != nil {
		t.Fatalf("WriteJSONLine: %v", err)
	}
	if !bytes.HasSuffix(buffer.Bytes(), []byte("}\n")) {
		t.Fatalf("handshake line %q does not end in a newline", buffer.String())
	}
	WriteMessage(&buffer, NewDataMessage([]byte("hello")))
	WriteMessage(&buffer, NewStderrMessage([]byte("oops")))

	reader := bufio.NewReader(&buffer)
	var response SessionResponse
	if err := ReadJSONLine(reader, &response); err != nil {
		t.Fatalf("ReadJSONLine: %v", err)
	}
	if !response.OK || response.Task != "cat.0001" {
		t.Errorf("response = %+v", response)
	}

	want := []Message{NewDataMessage([]byte("hello")), NewStderrMessage([]byte("oops"))}
	for _, expected := range want {
		message, err := ReadMessage(reader)
		if err != nil {
			t.Fatalf("ReadMessage after handshake: %v", err)
		}
		if message.Type != expected.Type || string(message.Payload) != string(expected.Payload) {
			t.Errorf("message = {0x%02x %q}, want {0x%02x %q}", message.Type, message.Payload, expected.Type, expected.Payload)
		}
	}
	if _, err := ReadMessage(reader); err != io.EOF {
		t.Errorf("trailing ReadMessage = %v, want io.EOF", err)
	}
}

func TestReadJSONLineRejectsGarbage(t *testing.T) {
	t.Parallel()
	var request SessionRequest
	if err := ReadJSONLine(bufio.NewReader(strings.NewReader("not json\n")), &request); err == nil {
		t.Error("ReadJSONLine accepted a non-JSON line")
	}
	if err := ReadJSONLine(bufio.NewReader(strings.NewReader(`{"action":"attach"`)), &request); err == nil {
		t.Error("ReadJSONLine accepted a line without a newline")
	}
}

func TestReadMessageCleanEOF(t *testing.T) {
	t.Parallel()
	if _, err := ReadMessage(bytes.NewReader(nil)); err != io.EOF {
		t.Errorf("ReadMessage on empty stream = %v, want io.EOF", err)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	if err := WriteMessage(&buffer, NewDataMessage([]byte("truncated"))); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	frame := buffer.Bytes()

	_, err := ReadMessage(bytes.NewReader(frame[:3]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated header error = %v, want io.ErrUnexpectedEOF", err)
	}
	_, err = ReadMessage(bytes.NewReader(frame[:len(frame)-2]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated payload error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	t.Parallel()
	header := make([]byte, messageHeaderLength)
	header[0] = MessageTypeData
	binary.BigEndian.PutUint32(header[1:], maxPayloadLength+1)

	_, err := ReadMessage(bytes.NewReader(header))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("ReadMessage error = %v, want size error", err)
	}
}

func TestParseResizePayload(t *testing.T) {
	t.Parallel()
	message := NewResizeMessage(WindowSize{Columns: 80, Rows: 24})
	size, err := ParseResizePayload(message.Payload)
	if err != nil {
		t.Fatalf("ParseResizePayload: %v", err)
	}
	if size != (WindowSize{Columns: 80, Rows: 24}) {
		t.Errorf("size = %+v, want 80x24", size)
	}
	if _, err := ParseResizePayload([]byte{1, 2, 3}); err == nil {
		t.Error("ParseResizePayload accepted a 3-byte payload")
	}
}

func TestCBORPayloads(t *testing.T) {
	t.Parallel()

	message, err := NewMetadataMessage(Metadata{Session: "s-1", Task: "cat.1234", TTY: true})
	if err != nil {
		t.Fatalf("NewMetadataMessage: %v", err)
	}
	var metadata Metadata
	if err := DecodePayload(message, &metadata); err != nil {
		t.Fatalf("DecodePayload(metadata): %v", err)
	}
	if metadata.Task != "cat.1234" || !metadata.TTY {
		t.Errorf("metadata = %+v", metadata)
	}

	message, err = NewHeartbeatMessage(30 * time.Second)
	if err != nil {
		t.Fatalf("NewHeartbeatMessage: %v", err)
	}
	var heartbeat HeartbeatPayload
	if err := DecodePayload(message, &heartbeat); err != nil {
		t.Fatalf("DecodePayload(heartbeat): %v", err)
	}
	if time.Duration(heartbeat.IntervalNanoseconds) != 30*time.Second {
		t.Errorf("heartbeat interval = %v, want 30s", time.Duration(heartbeat.IntervalNanoseconds))
	}

	if err := DecodePayload(Message{Type: MessageTypeExit, Payload: []byte{0xff}}, &ExitPayload{}); err == nil {
		t.Error("DecodePayload accepted malformed CBOR")
	}
}

func TestExitStatusExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status ExitStatus
		want   int
	}{
		{ExitedStatus(0), 0},
		{ExitedStatus(1), 1},
		{ExitedStatus(42), 42},
		{ExitedStatus(255), 255},
		{SignaledStatus(9), 137},
		{SignaledStatus(15), 143},
		{ExitStatus(0x0100), 1},
	}
	for _, test := range tests {
		if got := test.status.ExitCode(); got != test.want {
			t.Errorf("ExitStatus(0x%04x).ExitCode() = %d, want %d", int32(test.status), got, test.want)
		}
	}
}

func TestSessionRequestValidate(t *testing.T) {
	t.Parallel()
	valid := []SessionRequest{
		{Action: ActionAttach, Task: "cat"},
		{Action: ActionExec, Task: "cat", Command: []string{"ls"}},
	}
	for _, request := range valid {
		if err := request.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v", request, err)
		}
	}
	invalid := []SessionRequest{
		{Action: ActionAttach},
		{Action: ActionAttach, Task: "cat", Command: []string{"ls"}},
		{Action: ActionExec, Task: "cat"},
		{Action: "observe", Task: "cat"},
	}
	for _, request := range invalid {
		if err := request.Validate(); err == nil {
			t.Errorf("Validate(%+v) accepted an invalid request", request)
		}
	}
}
