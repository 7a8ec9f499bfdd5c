// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by taskctl tests.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so a broken goroutine fails the test instead of hanging it.
// They are the only place tests use wall-clock timeouts; everything
// else drives time through lib/clock.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes.
package testutil
