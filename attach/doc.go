// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package attach implements the client side of interactive task
// sessions: connecting the local terminal to a running task's console
// ("taskctl task attach") or to a command launched next to it
// ("taskctl task exec").
//
// A session starts with a JSON handshake ([SessionRequest] and
// [SessionResponse], see [Dial]) and then carries framed binary
// messages in both directions ([WriteMessage], [ReadMessage]). Local
// keystrokes travel as Data frames; remote output comes back as Data
// and Stderr frames, followed by an Exit frame carrying the process's
// wait status.
//
// Keystrokes pass through an [EscapeReader] before they are sent. The
// reader runs a small state machine ([Detector]) that watches for the
// configured detach sequence, ctrl-p ctrl-q by default. Bytes that
// start the sequence are held back until it either completes, in which
// case they are discarded and the session detaches, or is broken, in
// which case they are released unchanged. At most one sequence length
// of input is ever held.
//
// [Session.Run] pumps both directions concurrently until the remote
// process exits, the remote closes the connection, the detach sequence
// is typed, or the caller cancels the context. [Terminal] owns the
// local raw-mode state and restores it on every exit path, including
// termination signals.
package attach
