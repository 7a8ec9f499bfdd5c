// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty allocates pseudo-terminals through the Linux devpts
// interface. The switchboard runs TTY tasks on them; tests use them to
// stand in for an interactive terminal.
package pty

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Open allocates a PTY pair and returns both ends. The caller owns
// both files.
func Open() (master, slave *os.File, err error) {
	master, slavePath, err := openMaster()
	if err != nil {
		return nil, nil, err
	}
	slave, err = os.OpenFile(slavePath, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}
	return master, slave, nil
}

func openMaster() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}

	return master, fmt.Sprintf("/dev/pts/%d", ptyNumber), nil
}

// SetWindowSize sets the dimensions of the terminal behind file. On a
// PTY master this delivers SIGWINCH to the slave's foreground process
// group.
func SetWindowSize(file *os.File, columns, rows uint16) error {
	winsize := &unix.Winsize{Col: columns, Row: rows}
	if err := unix.IoctlSetWinsize(int(file.Fd()), unix.TIOCSWINSZ, winsize); err != nil {
		return fmt.Errorf("set window size (TIOCSWINSZ): %w", err)
	}
	return nil
}

// WindowSize reads the dimensions of the terminal behind file.
func WindowSize(file *os.File) (columns, rows uint16, err error) {
	winsize, err := unix.IoctlGetWinsize(int(file.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, fmt.Errorf("get window size (TIOCGWINSZ): %w", err)
	}
	return winsize.Col, winsize.Row, nil
}
