// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/muesli/cancelreader"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/taskctl/lib/pty"
	"github.com/bureau-foundation/taskctl/lib/testutil"
)

func openTestPTY(t *testing.T) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("PTY allocation unavailable: %v", err)
	}
	t.Cleanup(func() {
		slave.Close()
		master.Close()
	})
	return master, slave
}

func TestCheckInteractiveRejectsPipe(t *testing.T) {
	t.Parallel()
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer reader.Close()
	defer writer.Close()

	if err := CheckInteractive(reader); !errors.Is(err, ErrNoInteractive) {
		t.Errorf("CheckInteractive(pipe) = %v, want ErrNoInteractive", err)
	}
	if _, err := OpenTerminal(reader); !errors.Is(err, ErrNoInteractive) {
		t.Errorf("OpenTerminal(pipe) = %v, want ErrNoInteractive", err)
	}
}

func TestOpenTerminalRawModeAndRestore(t *testing.T) {
	t.Parallel()
	_, slave := openTestPTY(t)

	before, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	if err != nil {
		t.Fatalf("TCGETS: %v", err)
	}
	if before.Lflag&unix.ECHO == 0 {
		t.Fatal("fresh PTY does not echo")
	}

	terminal, err := OpenTerminal(slave)
	if err != nil {
		t.Fatalf("OpenTerminal: %v", err)
	}
	raw, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	if err != nil {
		t.Fatalf("TCGETS: %v", err)
	}
	if raw.Lflag&(unix.ECHO|unix.ICANON|unix.ISIG) != 0 {
		t.Errorf("raw mode lflag = %#x, want ECHO, ICANON, ISIG cleared", raw.Lflag)
	}

	if err := terminal.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := terminal.Close(); err != nil {
		t.Fatalf("Close after Restore: %v", err)
	}
	after, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS)
	if err != nil {
		t.Fatalf("TCGETS: %v", err)
	}
	if after.Lflag != before.Lflag {
		t.Errorf("restored lflag = %#x, want %#x", after.Lflag, before.Lflag)
	}
}

func TestTerminalSizeAndInitialResizes(t *testing.T) {
	t.Parallel()
	master, slave := openTestPTY(t)
	if err := pty.SetWindowSize(master, 90, 33); err != nil {
		t.Fatalf("SetWindowSize: %v", err)
	}

	terminal, err := OpenTerminal(slave)
	if err != nil {
		t.Fatalf("OpenTerminal: %v", err)
	}
	defer terminal.Close()

	size, err := terminal.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != (WindowSize{Columns: 90, Rows: 33}) {
		t.Errorf("Size() = %+v, want 90x33", size)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resizes := terminal.Resizes(ctx)
	if first := testutil.RequireReceive(t, resizes, testTimeout, "first resize"); first != (WindowSize{}) {
		t.Errorf("first resize = %+v, want zero size", first)
	}
	if second := testutil.RequireReceive(t, resizes, testTimeout, "second resize"); second != size {
		t.Errorf("second resize = %+v, want %+v", second, size)
	}
}

func TestTerminalInputCancel(t *testing.T) {
	t.Parallel()
	_, slave := openTestPTY(t)

	terminal, err := OpenTerminal(slave)
	if err != nil {
		t.Fatalf("OpenTerminal: %v", err)
	}
	defer terminal.Close()

	input := terminal.Input()
	canceler, ok := input.(cancelreader.CancelReader)
	if !ok {
		t.Skip("cancelable reads unsupported on this platform")
	}

	errs := make(chan error, 1)
	go func() {
		_, err := input.Read(make([]byte, 16))
		errs <- err
	}()
	canceler.Cancel()

	if err := testutil.RequireReceive(t, errs, testTimeout, "waiting for cancelled read"); !errors.Is(err, cancelreader.ErrCanceled) {
		t.Errorf("Read after Cancel = %v, want cancelreader.ErrCanceled", err)
	}
}
