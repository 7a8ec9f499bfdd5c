// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by the taskctl CLI
// and the switchboard.
//
// A configuration file is named by the --config flag ([LoadFile]) or the
// TASKCTL_CONFIG environment variable ([Load]). Client commands may run
// with no file at all, in which case [Default] applies. There is no
// search path.
//
// After loading, ${VAR} and ${VAR:-default} patterns are expanded in
// address, URL, and path fields. The only environment variable that
// overrides a loaded value is TASKCTL_ESCAPE_SEQUENCE, read by
// [Config.EscapeSequence], so an operator can change the detach keys
// for a single invocation.
//
// This package depends on no other taskctl packages.
package config
