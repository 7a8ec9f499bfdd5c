// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/taskctl/lib/clock"
)

const (
	// DefaultPollInterval is the wait after an empty read.
	DefaultPollInterval = time.Second

	// DefaultChunkSize is the read size.
	DefaultChunkSize = 64 * 1024
)

// Follower polls a Source and copies everything new to a writer.
type Follower struct {
	Source Source

	// Clock drives the poll interval. Defaults to the real clock.
	Clock clock.Clock

	// Interval defaults to DefaultPollInterval.
	Interval time.Duration

	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
}

// Follow copies the source to w from cursor onwards. A read that
// returns data is followed at once by another read; an empty read waits
// Interval first. Follow returns nil when ctx is cancelled or the source
// reports the file complete, and an error when a read or write fails.
func (f *Follower) Follow(ctx context.Context, cursor Cursor, w io.Writer) error {
	clk := f.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	chunkSize := f.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	for {
		chunk, err := f.Source.Read(ctx, cursor, chunkSize)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			return fmt.Errorf("reading log at offset %d: %w", cursor.Offset(), err)
		}
		if len(chunk.Data) > 0 {
			if _, err := w.Write(chunk.Data); err != nil {
				return fmt.Errorf("writing log output: %w", err)
			}
		}
		cursor = chunk.Next
		if chunk.Complete {
			return nil
		}
		if len(chunk.Data) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(interval):
		}
	}
}
