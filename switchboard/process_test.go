// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/lib/clock"
	"github.com/bureau-foundation/taskctl/lib/testutil"
)

const testTimeout = 10 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func startTestProcess(t *testing.T, spec ProcessSpec) *Process {
	t.Helper()
	if spec.RingBufferSize == 0 {
		spec.RingBufferSize = 64 * 1024
	}
	process, err := StartProcess(spec, clock.Real(), discardLogger())
	if err != nil {
		t.Fatalf("StartProcess(%v): %v", spec.Command, err)
	}
	t.Cleanup(process.Kill)
	return process
}

func waitExit(t *testing.T, process *Process) attach.ExitStatus {
	t.Helper()
	testutil.RequireClosed(t, process.Done(), testTimeout, "waiting for process exit")
	status, ok := process.Status()
	if !ok {
		t.Fatal("Status() not available after Done")
	}
	return status
}

// waitForStream polls a stream until its retained output contains want.
func waitForStream(t *testing.T, stream *Stream, want string) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		data, _ := stream.ReadRange(0, 0)
		if strings.Contains(string(data), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	data, _ := stream.ReadRange(0, 0)
	t.Fatalf("stream output %q does not contain %q", data, want)
}

func TestProcessPipesSeparateStreams(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{
		Command: []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
	})

	status := waitExit(t, process)
	if got := status.ExitCode(); got != 3 {
		t.Errorf("ExitCode() = %d, want 3", got)
	}
	if data, _ := process.Stdout.ReadRange(0, 0); string(data) != "out\n" {
		t.Errorf("stdout = %q, want %q", data, "out\n")
	}
	if data, _ := process.Stderr.ReadRange(0, 0); string(data) != "err\n" {
		t.Errorf("stderr = %q, want %q", data, "err\n")
	}
	if !process.Stdout.Closed() || !process.Stderr.Closed() {
		t.Error("streams not closed after exit")
	}
}

func TestProcessInputAndClose(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{Command: []string{"cat"}, Input: true})

	if _, err := process.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := process.CloseInput(); err != nil {
		t.Fatalf("CloseInput: %v", err)
	}
	if status := waitExit(t, process); status.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", status.ExitCode())
	}
	if data, _ := process.Stdout.ReadRange(0, 0); string(data) != "hello\n" {
		t.Errorf("stdout = %q, want %q", data, "hello\n")
	}
}

func TestProcessWithoutInput(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{Command: []string{"cat"}})

	if _, err := process.Write([]byte("x")); err != ErrNoInput {
		t.Errorf("Write error = %v, want ErrNoInput", err)
	}
	// stdin is /dev/null, so cat exits at once.
	if status := waitExit(t, process); status.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", status.ExitCode())
	}
}

func TestProcessTTYEchoesControlCharacters(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{Command: []string{"cat"}, TTY: true})
	if !process.TTY() {
		t.Fatal("TTY() = false")
	}

	if _, err := process.Write([]byte{0x10, 'B', '\r'}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitForStream(t, process.Stdout, "^PB")
}

func TestProcessTTYResize(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{
		Command: []string{"sh", "-c", "read line; stty size"},
		TTY:     true,
	})

	if err := process.Resize(attach.WindowSize{Columns: 101, Rows: 37}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if _, err := process.Write([]byte("\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitExit(t, process)
	waitForStream(t, process.Stdout, "37 101")
}

func TestProcessSignal(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{Command: []string{"sleep", "60"}})

	if err := process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if got := waitExit(t, process).ExitCode(); got != 128+int(syscall.SIGTERM) {
		t.Errorf("ExitCode() = %d, want %d", got, 128+int(syscall.SIGTERM))
	}
	if process.ExitedAt().IsZero() {
		t.Error("ExitedAt() is zero after exit")
	}
}

func TestProcessHoldWaitsForReader(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{
		Command:        []string{"sh", "-c", "i=0; while [ $i -lt 100 ]; do echo line $i; i=$((i+1)); done"},
		RingBufferSize: 16,
		Hold:           true,
	})

	got := readAll(t, process.heldStdout)
	if !strings.HasPrefix(string(got), "line 0\nline 1\n") || !strings.HasSuffix(string(got), "line 99\n") {
		t.Errorf("held output lost bytes: %d bytes, starts %q", len(got), got[:min(len(got), 16)])
	}
	if lines := strings.Count(string(got), "\n"); lines != 100 {
		t.Errorf("held output has %d lines, want 100", lines)
	}
	if status := waitExit(t, process); status.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", status.ExitCode())
	}
}

func TestProcessKillReleasesHeldOutput(t *testing.T) {
	t.Parallel()
	process := startTestProcess(t, ProcessSpec{
		Command:        []string{"sh", "-c", "while :; do echo flood; done"},
		RingBufferSize: 16,
		Hold:           true,
	})

	// Nobody reads, so the pump is stuck until Kill releases it.
	process.Kill()
	waitExit(t, process)
}

func TestStartProcessErrors(t *testing.T) {
	t.Parallel()
	if _, err := StartProcess(ProcessSpec{}, clock.Real(), discardLogger()); err == nil {
		t.Error("StartProcess accepted an empty command")
	}
	if _, err := StartProcess(ProcessSpec{Command: []string{"/nonexistent/binary"}}, clock.Real(), discardLogger()); err == nil {
		t.Error("StartProcess accepted a missing binary")
	}
}

// syncBuffer is a bytes.Buffer safe for one writer and a polling
// reader.
type syncBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buffer.String()
}

func waitForBuffer(t *testing.T, buffer *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buffer.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output %q does not contain %q", buffer.String(), want)
}
