// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package switchboard is the remote side of taskctl: it runs tasks,
// keeps their output, and serves interactive sessions and log reads.
//
// The package is organized around the output data flow:
//
//   - ringbuffer.go: offset-addressed output retention
//   - stream.go: one output stream (stdout or stderr) with live
//     subscribers fanned out from a single pump
//   - process.go: a child process on a PTY or on pipes
//   - task.go, registry.go: named tasks and ID lookup by substring
//   - relay.go: bridges a process to a framed session connection
//   - server.go: session listener and handshake
//   - http.go: task listing and offset-based file reads
//
// A TTY task's console is shared: every attached client receives the
// same PTY output, and input from any of them reaches the PTY. Detaching
// ends one client's relay and leaves the task running. An exec session
// owns its process, which is killed when the session's connection goes
// away.
package switchboard
