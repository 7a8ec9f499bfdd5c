// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// ParseAddress splits a session address into a network and an address
// suitable for net.Dial or net.Listen. Accepted forms:
//
//	unix:/run/taskctl/switchboard.sock
//	tcp:10.0.0.5:5051
//	/run/taskctl/switchboard.sock   (bare path, unix)
func ParseAddress(address string) (network, target string, err error) {
	switch {
	case address == "":
		return "", "", fmt.Errorf("empty session address")
	case strings.HasPrefix(address, "unix:"):
		network, target = "unix", strings.TrimPrefix(address, "unix:")
	case strings.HasPrefix(address, "tcp:"):
		network, target = "tcp", strings.TrimPrefix(address, "tcp:")
	case strings.HasPrefix(address, "/"), strings.HasPrefix(address, "."):
		network, target = "unix", address
	default:
		return "", "", fmt.Errorf("session address %q: expected unix:<path>, tcp:<host:port>, or an absolute socket path", address)
	}
	if target == "" {
		return "", "", fmt.Errorf("session address %q has an empty %s target", address, network)
	}
	return network, target, nil
}

// Dial connects to a session address in any form ParseAddress accepts.
func Dial(ctx context.Context, address string) (net.Conn, error) {
	network, target, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, network, target)
}

// Listen opens a listener on a session address. For unix sockets it
// creates the parent directory, removes a stale socket left by a
// previous run, and restricts the socket to owner and group.
func Listen(address string) (net.Listener, error) {
	network, target, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if network != "unix" {
		return net.Listen(network, target)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing existing socket: %w", err)
	}
	listener, err := net.Listen(network, target)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(target, 0o660); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}
	return listener, nil
}
