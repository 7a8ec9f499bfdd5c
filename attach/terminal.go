// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/muesli/cancelreader"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrNoInteractive is returned when an interactive session is requested
// but stdin is not a terminal.
var ErrNoInteractive = errors.New("interactive sessions require stdin to be a terminal")

// CheckInteractive returns ErrNoInteractive unless file is a terminal.
func CheckInteractive(file *os.File) error {
	if !term.IsTerminal(int(file.Fd())) {
		return ErrNoInteractive
	}
	return nil
}

// Terminal is the local terminal in raw mode for the duration of a
// session. Close (or Restore) must run on every exit path; a
// termination signal handled by HandleSignals restores it too.
type Terminal struct {
	file  *os.File
	fd    int
	state *term.State

	restoreOnce sync.Once
	restoreErr  error

	inputOnce sync.Once
	input     cancelreader.CancelReader

	signalMutex sync.Mutex
	signal      os.Signal
}

// OpenTerminal puts file into raw mode. It fails with ErrNoInteractive
// when file is not a terminal.
func OpenTerminal(file *os.File) (*Terminal, error) {
	if err := CheckInteractive(file); err != nil {
		return nil, err
	}
	fd := int(file.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting terminal to raw mode: %w", err)
	}
	return &Terminal{file: file, fd: fd, state: state}, nil
}

// Restore returns the terminal to the mode it had before OpenTerminal.
// Safe to call more than once and from several goroutines.
func (t *Terminal) Restore() error {
	t.restoreOnce.Do(func() {
		if err := term.Restore(t.fd, t.state); err != nil {
			t.restoreErr = fmt.Errorf("restoring terminal: %w", err)
		}
	})
	return t.restoreErr
}

// Close releases the input reader and restores the terminal.
func (t *Terminal) Close() error {
	if t.input != nil {
		t.input.Close()
	}
	return t.Restore()
}

// Input returns a reader over the terminal whose pending Read can be
// cancelled, so a session can stop reading keystrokes without waiting
// for the next key. Falls back to the file itself where cancellation is
// unsupported.
func (t *Terminal) Input() io.Reader {
	t.inputOnce.Do(func() {
		reader, err := cancelreader.NewReader(t.file)
		if err == nil {
			t.input = reader
		}
	})
	if t.input == nil {
		return t.file
	}
	return t.input
}

// Size returns the current window size.
func (t *Terminal) Size() (WindowSize, error) {
	columns, rows, err := term.GetSize(t.fd)
	if err != nil {
		return WindowSize{}, fmt.Errorf("reading terminal size: %w", err)
	}
	return WindowSize{Columns: uint16(columns), Rows: uint16(rows)}, nil
}

// Resizes delivers the window size every time it changes (SIGWINCH)
// until ctx is done. The first two values are a zero size and then the
// current size; the size change forces the remote to redraw its screen.
func (t *Terminal) Resizes(ctx context.Context) <-chan WindowSize {
	sizes := make(chan WindowSize, 2)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGWINCH)

	send := func(size WindowSize) bool {
		select {
		case sizes <- size:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer signal.Stop(signals)
		if size, err := t.Size(); err == nil {
			if !send(WindowSize{}) || !send(size) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				size, err := t.Size()
				if err != nil {
					continue
				}
				if !send(size) {
					return
				}
			}
		}
	}()
	return sizes
}

// HandleSignals restores the terminal and calls cancel when the process
// receives SIGINT, SIGTERM, or SIGHUP. In raw mode ctrl-c is delivered
// as a byte, so these only arrive from outside the terminal. The
// returned function stops handling.
func (t *Terminal) HandleSignals(cancel context.CancelFunc) (stop func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	stopped := make(chan struct{})

	go func() {
		select {
		case received := <-signals:
			t.signalMutex.Lock()
			t.signal = received
			t.signalMutex.Unlock()
			t.Restore()
			cancel()
		case <-stopped:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(signals)
			close(stopped)
		})
	}
}

// Signal returns the termination signal handled by HandleSignals, or
// nil.
func (t *Terminal) Signal() os.Signal {
	t.signalMutex.Lock()
	defer t.signalMutex.Unlock()
	return t.signal
}
