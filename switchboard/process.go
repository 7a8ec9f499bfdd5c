// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/lib/clock"
	"github.com/bureau-foundation/taskctl/lib/netutil"
	"github.com/bureau-foundation/taskctl/lib/pty"
)

// ErrNoInput is returned when writing to a process started without
// stdin.
var ErrNoInput = errors.New("process has no input")

// ProcessSpec describes a process to start.
type ProcessSpec struct {
	// Command is the argv. Command[0] is looked up in PATH.
	Command []string

	// Dir is the working directory; empty means the switchboard's.
	Dir string

	// Env is appended to the switchboard's environment.
	Env []string

	// TTY runs the process on a new PTY as session leader with the PTY
	// as its controlling terminal. Output then arrives on Stdout only.
	TTY bool

	// Input keeps a writable stdin for a non-TTY process. Without it
	// stdin is /dev/null. TTY processes always have input.
	Input bool

	// RingBufferSize is the retention of each output stream.
	RingBufferSize int

	// Hold opens a holding reader on each stream at offset 0 before the
	// process starts. Output then waits for the session relaying it
	// rather than being overwritten, and no byte is lost between start
	// and relay. Relay consumes the readers; Kill releases them.
	Hold bool
}

// Process is a running child with its output captured in Streams.
type Process struct {
	// Stdout carries the PTY output for a TTY process.
	Stdout *Stream
	// Stderr stays empty for a TTY process.
	Stderr *Stream

	command *exec.Cmd
	tty     *os.File
	clock   clock.Clock

	// heldStdout and heldStderr are set for a Hold process.
	heldStdout *StreamReader
	heldStderr *StreamReader

	inputMutex sync.Mutex
	input      io.WriteCloser

	done     chan struct{}
	status   attach.ExitStatus
	exitedAt time.Time
}

// StartProcess starts spec and the goroutines that pump its output.
func StartProcess(spec ProcessSpec, clk clock.Clock, logger *slog.Logger) (*Process, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	command := exec.Command(spec.Command[0], spec.Command[1:]...)
	command.Dir = spec.Dir
	command.Env = append(os.Environ(), spec.Env...)

	process := &Process{
		Stdout:  NewStream(spec.RingBufferSize),
		Stderr:  NewStream(spec.RingBufferSize),
		command: command,
		clock:   clk,
		done:    make(chan struct{}),
	}
	if spec.Hold {
		process.heldStdout = process.Stdout.NewReader(0, true)
		process.heldStderr = process.Stderr.NewReader(0, true)
	}

	var pumps sync.WaitGroup
	pump := func(source io.Reader, stream *Stream) {
		pumps.Add(1)
		go func() {
			defer pumps.Done()
			defer stream.Close()
			if _, err := io.Copy(stream, source); err != nil && !netutil.IsExpectedCloseError(err) {
				logger.Warn("output pump failed", "error", err)
			}
		}()
	}

	if spec.TTY {
		master, slave, err := pty.Open()
		if err != nil {
			return nil, fmt.Errorf("allocate PTY: %w", err)
		}
		command.Stdin = slave
		command.Stdout = slave
		command.Stderr = slave
		command.SysProcAttr = &syscall.SysProcAttr{
			Setsid:  true,
			Setctty: true,
			Ctty:    0,
		}
		if err := command.Start(); err != nil {
			slave.Close()
			master.Close()
			return nil, fmt.Errorf("start %s: %w", spec.Command[0], err)
		}
		// The child holds its own copies; the master reads EIO once
		// every holder of the slave has closed it.
		slave.Close()
		process.tty = master
		process.input = master
		pump(master, process.Stdout)
		process.Stderr.Close()
	} else {
		command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		var input io.WriteCloser
		var err error
		if spec.Input {
			if input, err = command.StdinPipe(); err != nil {
				return nil, fmt.Errorf("stdin pipe: %w", err)
			}
		}
		stdout, err := command.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := command.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := command.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", spec.Command[0], err)
		}
		process.input = input
		pump(stdout, process.Stdout)
		pump(stderr, process.Stderr)
	}

	go func() {
		// Output is drained before Wait, which closes the pipes.
		pumps.Wait()
		err := command.Wait()
		process.status = waitStatus(command.ProcessState, err)
		process.exitedAt = clk.Now()
		if process.tty != nil {
			process.tty.Close()
		}
		logger.Info("process exited", "pid", command.Process.Pid, "exit_code", process.status.ExitCode())
		close(process.done)
	}()

	return process, nil
}

func waitStatus(state *os.ProcessState, err error) attach.ExitStatus {
	if state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok {
			return attach.ExitStatus(status)
		}
		return attach.ExitedStatus(state.ExitCode())
	}
	if err != nil {
		return attach.ExitedStatus(127)
	}
	return 0
}

// Pid returns the process ID.
func (p *Process) Pid() int {
	return p.command.Process.Pid
}

// TTY reports whether the process runs on a PTY.
func (p *Process) TTY() bool {
	return p.tty != nil
}

// Write sends input to the process.
func (p *Process) Write(data []byte) (int, error) {
	p.inputMutex.Lock()
	defer p.inputMutex.Unlock()
	if p.input == nil {
		return 0, ErrNoInput
	}
	return p.input.Write(data)
}

// CloseInput closes a non-TTY process's stdin. On a PTY it sends the
// terminal's EOF character instead, since the master must stay open for
// output.
func (p *Process) CloseInput() error {
	p.inputMutex.Lock()
	defer p.inputMutex.Unlock()
	if p.input == nil {
		return nil
	}
	if p.tty != nil {
		_, err := p.tty.Write([]byte{0x04})
		return err
	}
	err := p.input.Close()
	p.input = nil
	return err
}

// Resize sets the PTY window size. A no-op for non-TTY processes.
func (p *Process) Resize(size attach.WindowSize) error {
	if p.tty == nil {
		return nil
	}
	return pty.SetWindowSize(p.tty, size.Columns, size.Rows)
}

// Signal delivers signal to the process's group, so children it
// started are signalled too.
func (p *Process) Signal(signal syscall.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := syscall.Kill(-p.command.Process.Pid, signal); err != nil {
		return p.command.Process.Signal(signal)
	}
	return nil
}

// Kill sends SIGKILL and waits for the process to be reaped. Held
// readers are released so the output pumps can finish.
func (p *Process) Kill() {
	p.Signal(syscall.SIGKILL)
	p.releaseHeld()
	<-p.done
}

func (p *Process) releaseHeld() {
	if p.heldStdout != nil {
		p.heldStdout.Close()
		p.heldStderr.Close()
	}
}

// Done is closed once the process has exited and its output has been
// fully captured.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Status returns the wait status once Done is closed.
func (p *Process) Status() (attach.ExitStatus, bool) {
	select {
	case <-p.done:
		return p.status, true
	default:
		return 0, false
	}
}

// ExitedAt returns when the process exited, or the zero time.
func (p *Process) ExitedAt() time.Time {
	select {
	case <-p.done:
		return p.exitedAt
	default:
		return time.Time{}
	}
}
