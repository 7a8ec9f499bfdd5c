// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrReaderClosed is returned by StreamReader.Next after Close.
var ErrReaderClosed = errors.New("stream reader closed")

// OutputLostError reports output that was overwritten in the ring
// buffer before a reader got to it.
type OutputLostError struct {
	// Lost is the number of bytes skipped.
	Lost uint64
}

func (e *OutputLostError) Error() string {
	return fmt.Sprintf("session fell behind task output: %d bytes were overwritten before they could be sent", e.Lost)
}

// Stream is one output stream of a process. A single pump writes to
// it; every write is retained in a ring buffer that readers consume by
// absolute offset.
//
// A holding reader makes Write wait instead of overwriting bytes that
// reader has not consumed, which throttles the process through its
// pipe. Other readers never slow the writer; if they fall more than the
// ring's capacity behind, Next reports the gap.
type Stream struct {
	ring *RingBuffer

	mutex   sync.Mutex
	changed *sync.Cond
	holders map[*StreamReader]struct{}
	closed  bool
}

// NewStream creates a stream retaining capacity bytes.
func NewStream(capacity int) *Stream {
	stream := &Stream{
		ring:    NewRingBuffer(capacity),
		holders: make(map[*StreamReader]struct{}),
	}
	stream.changed = sync.NewCond(&stream.mutex)
	return stream
}

// Write retains data and wakes waiting readers. It blocks while the
// write would overwrite bytes a holding reader has not read yet.
func (s *Stream) Write(data []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	capacity := uint64(s.ring.capacity)
	for remaining := data; len(remaining) > 0; {
		piece := remaining[:min(len(remaining), s.ring.capacity)]
		for s.unreadLocked()+uint64(len(piece)) > capacity {
			s.changed.Wait()
		}
		s.ring.Write(piece)
		remaining = remaining[len(piece):]
		s.changed.Broadcast()
	}
	return len(data), nil
}

// unreadLocked returns how far the slowest holding reader trails the
// newest byte.
func (s *Stream) unreadLocked() uint64 {
	end := s.ring.CurrentOffset()
	var unread uint64
	for reader := range s.holders {
		unread = max(unread, end-reader.offset)
	}
	return unread
}

// Snapshot returns the retained output and the offset one past it. A
// reader opened at that offset continues exactly where the snapshot
// ends.
func (s *Stream) Snapshot() ([]byte, uint64) {
	data, start := s.ring.ReadRange(0, 0)
	return data, start + uint64(len(data))
}

// NewReader returns a reader positioned at offset. With hold set the
// writer waits for this reader; Close must then be called, or the
// process stalls once its output fills the ring.
func (s *Stream) NewReader(offset uint64, hold bool) *StreamReader {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	reader := &StreamReader{stream: s, offset: offset}
	if hold && !s.closed {
		s.holders[reader] = struct{}{}
	}
	return reader
}

// Close ends the stream. Readers drain what is retained and then get
// io.EOF.
func (s *Stream) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.changed.Broadcast()
}

// Closed reports whether the stream has ended.
func (s *Stream) Closed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closed
}

// ReadRange reads retained output; see RingBuffer.ReadRange.
func (s *Stream) ReadRange(offset uint64, limit int) ([]byte, uint64) {
	return s.ring.ReadRange(offset, limit)
}

// Size returns the offset one past the newest byte written.
func (s *Stream) Size() uint64 {
	return s.ring.CurrentOffset()
}

// StreamReader consumes a Stream in order from an absolute offset.
type StreamReader struct {
	stream *Stream
	offset uint64
	closed bool
}

// Next waits for output past the reader's offset and returns up to
// limit bytes of it (no limit when limit <= 0).
//
// It returns io.EOF once the stream has ended and everything was read,
// and ErrReaderClosed after Close. If output was overwritten before it
// was read, Next returns an *OutputLostError and the reader resumes at
// the oldest retained byte.
func (r *StreamReader) Next(limit int) ([]byte, error) {
	s := r.stream
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for {
		if r.closed {
			return nil, ErrReaderClosed
		}
		data, start := s.ring.ReadRange(r.offset, limit)
		if start > r.offset {
			lost := start - r.offset
			r.offset = start
			return nil, &OutputLostError{Lost: lost}
		}
		if len(data) > 0 {
			r.offset += uint64(len(data))
			s.changed.Broadcast()
			return data, nil
		}
		if s.closed {
			return nil, io.EOF
		}
		s.changed.Wait()
	}
}

// Offset returns the offset of the next byte Next will return.
func (r *StreamReader) Offset() uint64 {
	r.stream.mutex.Lock()
	defer r.stream.mutex.Unlock()
	return r.offset
}

// Close releases the reader: a blocked Next returns ErrReaderClosed and
// the writer no longer waits for it. Safe to call more than once.
func (r *StreamReader) Close() {
	s := r.stream
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	delete(s.holders, r)
	s.changed.Broadcast()
}
