// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import "sync"

// DefaultRingBufferSize is the default per-stream retention in bytes.
const DefaultRingBufferSize = 1024 * 1024

// RingBuffer is a fixed-size circular buffer of process output with
// absolute byte offsets. Offset 0 is the first byte the process ever
// wrote; the buffer retains the most recent capacity bytes, so readers
// can ask for "everything since offset N" and learn where the retained
// data actually starts.
//
// All methods are safe for concurrent use.
type RingBuffer struct {
	mutex    sync.Mutex
	data     []byte
	capacity int
	// writePosition is the next position to write within data.
	writePosition int
	// totalWritten is the offset one past the newest byte. Retained
	// data spans [totalWritten - min(totalWritten, capacity), totalWritten).
	totalWritten uint64
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultRingBufferSize
	}
	return &RingBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends data, overwriting the oldest bytes when full.
func (ring *RingBuffer) Write(data []byte) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	for offset := 0; offset < len(data); {
		copyLength := min(len(data)-offset, ring.capacity-ring.writePosition)
		copy(ring.data[ring.writePosition:], data[offset:offset+copyLength])
		ring.writePosition = (ring.writePosition + copyLength) % ring.capacity
		offset += copyLength
	}
	ring.totalWritten += uint64(len(data))
}

// Offsets returns the offset of the oldest retained byte and the offset
// one past the newest.
func (ring *RingBuffer) Offsets() (oldest, end uint64) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.oldestLocked(), ring.totalWritten
}

func (ring *RingBuffer) oldestLocked() uint64 {
	return ring.totalWritten - min(ring.totalWritten, uint64(ring.capacity))
}

// ReadRange returns up to limit bytes starting at offset, and the
// offset the returned data actually starts at. An offset older than
// the retained data is moved forward to the oldest retained byte; the
// caller can detect the gap by comparing start with offset. A limit of
// zero or less means no limit. Returns nil data when offset is at or
// beyond the end.
func (ring *RingBuffer) ReadRange(offset uint64, limit int) (data []byte, start uint64) {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()

	start = max(offset, ring.oldestLocked())
	if start >= ring.totalWritten {
		return nil, min(start, ring.totalWritten)
	}

	length := ring.totalWritten - start
	if limit > 0 && length > uint64(limit) {
		length = uint64(limit)
	}
	data = make([]byte, length)

	// The byte at offset totalWritten-1 sits just before writePosition.
	back := int(ring.totalWritten - start)
	readPosition := ((ring.writePosition-back)%ring.capacity + ring.capacity) % ring.capacity
	for copied := 0; copied < len(data); {
		copyLength := min(len(data)-copied, ring.capacity-readPosition)
		copy(data[copied:copied+copyLength], ring.data[readPosition:readPosition+copyLength])
		readPosition = (readPosition + copyLength) % ring.capacity
		copied += copyLength
	}
	return data, start
}

// ReadFrom returns everything retained since offset.
func (ring *RingBuffer) ReadFrom(offset uint64) []byte {
	data, _ := ring.ReadRange(offset, 0)
	return data
}

// CurrentOffset returns the offset one past the newest byte.
func (ring *RingBuffer) CurrentOffset() uint64 {
	ring.mutex.Lock()
	defer ring.mutex.Unlock()
	return ring.totalWritten
}
