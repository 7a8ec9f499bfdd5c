// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/taskctl/lib/config"
)

// Task states reported in TaskInfo.State.
const (
	StateRunning = "running"
	StateExited  = "exited"
)

// Output file names served by the HTTP API.
const (
	FileStdout = "stdout"
	FileStderr = "stderr"
)

// TaskSpec describes a task to launch.
type TaskSpec struct {
	Name    string
	Command []string
	Dir     string
	Env     []string
	TTY     bool

	// SwitchboardEnabled allows attach and exec sessions.
	SwitchboardEnabled bool
}

// TaskSpecFromConfig converts a configured task.
func TaskSpecFromConfig(task config.TaskConfig) TaskSpec {
	return TaskSpec{
		Name:               task.Name,
		Command:            task.Command,
		Dir:                task.Dir,
		Env:                task.Env,
		TTY:                task.TTY,
		SwitchboardEnabled: !task.DisableSwitchboard,
	}
}

// Task is a launched process with an ID.
type Task struct {
	// ID is "<name>.<uuid>".
	ID   string
	Spec TaskSpec

	StartedAt time.Time

	// Sandbox is the absolute working directory of the process. The
	// HTTP API browses and downloads files below it.
	Sandbox string

	process *Process
}

// Process returns the task's process.
func (t *Task) Process() *Process {
	return t.process
}

// Running reports whether the process has not exited yet.
func (t *Task) Running() bool {
	_, exited := t.process.Status()
	return !exited
}

// Attachable reports whether the task's console accepts attach
// sessions: a running TTY task with the switchboard enabled.
func (t *Task) Attachable() bool {
	return t.Spec.SwitchboardEnabled && t.Spec.TTY
}

// Stream returns the output stream for a file name.
func (t *Task) Stream(file string) (*Stream, error) {
	switch file {
	case FileStdout:
		return t.process.Stdout, nil
	case FileStderr:
		return t.process.Stderr, nil
	}
	return nil, fmt.Errorf("unknown file %q: expected %s or %s", file, FileStdout, FileStderr)
}

// TaskInfo is the JSON form of a task in the HTTP API.
type TaskInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Command     []string  `json:"command"`
	State       string    `json:"state"`
	TTY         bool      `json:"tty"`
	Switchboard bool      `json:"switchboard"`
	PID         int       `json:"pid"`
	Sandbox     string    `json:"sandbox"`
	StartedAt   time.Time `json:"started_at"`

	// ExitCode and ExitedAt are set once the task has exited.
	ExitCode *int       `json:"exit_code,omitempty"`
	ExitedAt *time.Time `json:"exited_at,omitempty"`
}

// Info returns the task's current state.
func (t *Task) Info() TaskInfo {
	info := TaskInfo{
		ID:          t.ID,
		Name:        t.Spec.Name,
		Command:     t.Spec.Command,
		State:       StateRunning,
		TTY:         t.Spec.TTY,
		Switchboard: t.Spec.SwitchboardEnabled,
		PID:         t.process.Pid(),
		Sandbox:     t.Sandbox,
		StartedAt:   t.StartedAt,
	}
	if status, exited := t.process.Status(); exited {
		code := status.ExitCode()
		exitedAt := t.process.ExitedAt()
		info.State = StateExited
		info.ExitCode = &code
		info.ExitedAt = &exitedAt
	}
	return info
}
