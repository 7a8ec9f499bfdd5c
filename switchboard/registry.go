// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/taskctl/attach"
	"github.com/bureau-foundation/taskctl/lib/clock"
)

// LookupError is a failed task lookup. Code is one of the attach
// package's response codes, so the server can forward it unchanged.
type LookupError struct {
	Code    string
	Message string
}

func (e *LookupError) Error() string {
	return e.Message
}

// Registry holds the switchboard's tasks.
type Registry struct {
	ringBufferSize int
	clock          clock.Clock
	logger         *slog.Logger

	mutex sync.Mutex
	tasks map[string]*Task
	order []*Task
}

// NewRegistry creates an empty registry. Each task stream retains
// ringBufferSize bytes.
func NewRegistry(ringBufferSize int, clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		ringBufferSize: ringBufferSize,
		clock:          clk,
		logger:         logger,
		tasks:          make(map[string]*Task),
	}
}

// Launch starts a task and registers it.
func (r *Registry) Launch(spec TaskSpec) (*Task, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	id := spec.Name + "." + uuid.NewString()
	logger := r.logger.With("task", id)

	sandbox, err := sandboxDir(spec.Dir)
	if err != nil {
		return nil, fmt.Errorf("launching task %s: %w", spec.Name, err)
	}
	process, err := StartProcess(ProcessSpec{
		Command:        spec.Command,
		Dir:            sandbox,
		Env:            spec.Env,
		TTY:            spec.TTY,
		Input:          true,
		RingBufferSize: r.ringBufferSize,
	}, r.clock, logger)
	if err != nil {
		return nil, fmt.Errorf("launching task %s: %w", spec.Name, err)
	}

	task := &Task{
		ID:        id,
		Spec:      spec,
		StartedAt: r.clock.Now(),
		Sandbox:   sandbox,
		process:   process,
	}

	r.mutex.Lock()
	r.tasks[id] = task
	r.order = append(r.order, task)
	r.mutex.Unlock()

	logger.Info("task launched", "command", spec.Command, "tty", spec.TTY, "pid", process.Pid())
	return task, nil
}

// sandboxDir resolves a task's working directory: dir, or the
// switchboard's own when empty.
func sandboxDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

// Get returns the task with exactly this ID.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Find returns the tasks whose ID contains pattern, in launch order. An
// exact ID match is returned alone.
func (r *Registry) Find(pattern string) []*Task {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if task, ok := r.tasks[pattern]; ok {
		return []*Task{task}
	}
	var matches []*Task
	for _, task := range r.order {
		if strings.Contains(task.ID, pattern) {
			matches = append(matches, task)
		}
	}
	return matches
}

// Resolve returns the single task matching pattern, or a *LookupError.
func (r *Registry) Resolve(pattern string) (*Task, error) {
	matches := r.Find(pattern)
	switch len(matches) {
	case 0:
		return nil, &LookupError{
			Code:    attach.CodeNotFound,
			Message: fmt.Sprintf("no task ID found containing '%s'", pattern),
		}
	case 1:
		return matches[0], nil
	}
	ids := make([]string, len(matches))
	for index, task := range matches {
		ids[index] = task.ID
	}
	return nil, &LookupError{
		Code:    attach.CodeAmbiguous,
		Message: fmt.Sprintf("found more than one task with the same name: %v", ids),
	}
}

// List returns all tasks in launch order.
func (r *Registry) List() []*Task {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]*Task(nil), r.order...)
}

// Shutdown kills every running task and waits for them to be reaped.
func (r *Registry) Shutdown() {
	for _, task := range r.List() {
		if task.Running() {
			r.logger.Info("stopping task", "task", task.ID)
			task.process.Kill()
		}
	}
}
