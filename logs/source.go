// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logs

import "context"

// Cursor is a position in a log file. The zero Cursor is the start of
// the file.
type Cursor struct {
	offset uint64
}

// CursorAt returns a cursor at a byte offset.
func CursorAt(offset uint64) Cursor {
	return Cursor{offset: offset}
}

// Offset returns the cursor's byte offset.
func (c Cursor) Offset() uint64 {
	return c.offset
}

// Chunk is the result of one read.
type Chunk struct {
	// Data is the bytes read; empty when nothing new was available.
	Data []byte

	// Next is where the following read should start. It can be further
	// than the read cursor plus len(Data) when the requested bytes are
	// no longer retained.
	Next Cursor

	// Complete means the file will never grow again and Data reaches
	// its end.
	Complete bool
}

// Source is an offset-addressed log file.
type Source interface {
	// Read returns up to limit bytes at cursor without waiting for new
	// data.
	Read(ctx context.Context, cursor Cursor, limit int) (Chunk, error)

	// End returns a cursor at the current end of the file.
	End(ctx context.Context) (Cursor, error)
}
