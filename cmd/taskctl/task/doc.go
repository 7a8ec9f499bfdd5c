// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements "taskctl task": attach to a task's console,
// exec a command next to a task, read and follow task logs, and list
// tasks. Sessions go to the switchboard's session address; listing and
// logs use its HTTP API.
package task
