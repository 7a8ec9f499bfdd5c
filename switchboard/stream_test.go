// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bureau-foundation/taskctl/lib/testutil"
)

// readAll calls Next until the stream ends.
func readAll(t *testing.T, reader *StreamReader) []byte {
	t.Helper()
	var got []byte
	for {
		data, err := reader.Next(0)
		if errors.Is(err, io.EOF) {
			return got
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, data...)
	}
}

// nextAsync runs one Next call on its own goroutine.
func nextAsync(reader *StreamReader) <-chan error {
	result := make(chan error, 1)
	go func() {
		_, err := reader.Next(0)
		result <- err
	}()
	return result
}

func TestStreamSnapshotThenReader(t *testing.T) {
	t.Parallel()
	stream := NewStream(1024)
	stream.Write([]byte("before "))

	history, end := stream.Snapshot()
	reader := stream.NewReader(end, false)
	stream.Write([]byte("after"))
	stream.Close()

	if string(history) != "before " || end != 7 {
		t.Errorf("Snapshot() = %q, %d; want %q, 7", history, end, "before ")
	}
	if got := readAll(t, reader); string(got) != "after" {
		t.Errorf("live output = %q, want %q", got, "after")
	}
}

func TestStreamReadersFanOut(t *testing.T) {
	t.Parallel()
	stream := NewStream(1024)
	first := stream.NewReader(0, false)
	second := stream.NewReader(0, true)

	stream.Write([]byte("shared"))
	stream.Close()

	for index, reader := range []*StreamReader{first, second} {
		if got := readAll(t, reader); string(got) != "shared" {
			t.Errorf("reader %d received %q, want %q", index, got, "shared")
		}
	}
}

func TestStreamNextWaitsForOutput(t *testing.T) {
	t.Parallel()
	stream := NewStream(1024)
	reader := stream.NewReader(0, false)

	result := make(chan []byte, 1)
	go func() {
		data, _ := reader.Next(0)
		result <- data
	}()
	stream.Write([]byte("late"))

	if got := testutil.RequireReceive(t, result, testTimeout, "waiting for Next"); string(got) != "late" {
		t.Errorf("Next() = %q, want %q", got, "late")
	}
	if reader.Offset() != 4 {
		t.Errorf("Offset() = %d, want 4", reader.Offset())
	}
}

func TestStreamReaderAfterClose(t *testing.T) {
	t.Parallel()
	stream := NewStream(1024)
	stream.Write([]byte("done"))
	stream.Close()

	if !stream.Closed() {
		t.Error("Closed() = false")
	}
	if got := readAll(t, stream.NewReader(0, true)); string(got) != "done" {
		t.Errorf("reader after close = %q, want %q", got, "done")
	}
}

func TestStreamReaderReportsLostOutput(t *testing.T) {
	t.Parallel()
	stream := NewStream(8)
	reader := stream.NewReader(0, false)

	stream.Write([]byte("0123456789abcdefghij"))

	_, err := reader.Next(0)
	var lost *OutputLostError
	if !errors.As(err, &lost) {
		t.Fatalf("Next error = %v, want *OutputLostError", err)
	}
	if lost.Lost != 12 {
		t.Errorf("Lost = %d, want 12", lost.Lost)
	}
	data, err := reader.Next(0)
	if err != nil || string(data) != "cdefghij" {
		t.Errorf("Next after gap = %q, %v; want %q, nil", data, err, "cdefghij")
	}
}

func TestStreamHoldingReaderThrottlesWriter(t *testing.T) {
	t.Parallel()
	stream := NewStream(8)
	reader := stream.NewReader(0, true)

	want := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	written := make(chan struct{})
	go func() {
		stream.Write(want)
		stream.Close()
		close(written)
	}()

	deadline := time.Now().Add(testTimeout)
	for stream.Size() < 8 {
		if time.Now().After(deadline) {
			t.Fatal("writer never filled the ring")
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case <-written:
		t.Fatal("Write returned before the holding reader consumed its output")
	default:
	}
	if size := stream.Size(); size > 8 {
		t.Fatalf("Size() = %d with nothing read, want at most the capacity 8", size)
	}

	if got := readAll(t, reader); !bytes.Equal(got, want) {
		t.Errorf("holding reader received %q, want %q", got, want)
	}
	testutil.RequireClosed(t, written, testTimeout, "waiting for Write")
}

func TestStreamReaderCloseReleasesWriter(t *testing.T) {
	t.Parallel()
	stream := NewStream(4)
	reader := stream.NewReader(0, true)

	written := make(chan struct{})
	go func() {
		stream.Write([]byte("more than four bytes"))
		close(written)
	}()
	pending := nextAsync(reader)
	if err := testutil.RequireReceive(t, pending, testTimeout, "first Next"); err != nil {
		t.Fatalf("Next: %v", err)
	}

	reader.Close()
	reader.Close()
	testutil.RequireClosed(t, written, testTimeout, "Write after the holding reader closed")
	if _, err := reader.Next(0); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("Next after Close = %v, want ErrReaderClosed", err)
	}
}

func TestStreamReaderCloseUnblocksNext(t *testing.T) {
	t.Parallel()
	stream := NewStream(1024)
	reader := stream.NewReader(0, false)

	pending := nextAsync(reader)
	reader.Close()
	if err := testutil.RequireReceive(t, pending, testTimeout, "waiting for Next"); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("Next = %v, want ErrReaderClosed", err)
	}
	data, start := stream.ReadRange(0, 0)
	if len(data) != 0 || start != 0 {
		t.Errorf("ReadRange(0, 0) = %q, %d; want empty, 0", data, start)
	}
}
