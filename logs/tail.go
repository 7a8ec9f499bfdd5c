// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// DefaultLines is the number of lines Tail prints by default.
const DefaultLines = 10

// Tail writes the last lines lines of source to w and returns the
// cursor just past what was read, so a Follower can continue from
// there. A final line without a trailing newline counts as a line.
func Tail(ctx context.Context, source Source, lines int, w io.Writer) (Cursor, error) {
	end, err := source.End(ctx)
	if err != nil {
		return Cursor{}, fmt.Errorf("reading log size: %w", err)
	}

	var (
		cursor Cursor
		tail   []byte
	)
	for cursor.Offset() < end.Offset() {
		chunk, err := source.Read(ctx, cursor, DefaultChunkSize)
		if err != nil {
			return cursor, fmt.Errorf("reading log at offset %d: %w", cursor.Offset(), err)
		}
		if len(chunk.Data) == 0 && chunk.Next.Offset() <= cursor.Offset() {
			break
		}
		tail = LastLines(append(tail, chunk.Data...), lines)
		cursor = chunk.Next
	}

	if len(tail) > 0 {
		if _, err := w.Write(tail); err != nil {
			return cursor, fmt.Errorf("writing log output: %w", err)
		}
	}
	return cursor, nil
}

// LastLines returns the suffix of data holding its last n lines.
func LastLines(data []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	search := data
	if bytes.HasSuffix(search, []byte{'\n'}) {
		search = search[:len(search)-1]
	}
	for ; n > 0; n-- {
		index := bytes.LastIndexByte(search, '\n')
		if index < 0 {
			return data
		}
		search = search[:index]
	}
	return data[len(search)+1:]
}
