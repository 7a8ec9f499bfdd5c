// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"testing"
	"time"
)

// TimeoutContext returns a context cancelled after timeout or when the
// test ends, whichever comes first. Sessions run under it cannot hang a
// test binary when a peer stalls.
func TimeoutContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
