// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/moby/term"
)

// EscapeSequence is the byte sequence that detaches a session. Each
// byte is a control key named by a token like "ctrl-p".
type EscapeSequence []byte

// DefaultEscapeSequence is ctrl-p followed by ctrl-q.
var DefaultEscapeSequence = EscapeSequence{0x10, 0x11}

// ErrDetached is returned by EscapeReader once the escape sequence has
// been read.
var ErrDetached = errors.New("detached by escape sequence")

// ParseEscapeSequence parses a comma-separated list of control keys,
// e.g. "ctrl-p,ctrl-q". Tokens are case-insensitive. The supported
// keys are ctrl-a through ctrl-z and ctrl-@, ctrl-[, ctrl-\, ctrl-],
// ctrl-^, ctrl-_, which map to bytes 0x00 through 0x1f.
func ParseEscapeSequence(value string) (EscapeSequence, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("escape sequence is empty")
	}

	tokens := strings.Split(value, ",")
	sequence := make(EscapeSequence, 0, len(tokens))
	for _, token := range tokens {
		key, err := parseControlKey(strings.TrimSpace(token))
		if err != nil {
			return nil, fmt.Errorf("escape sequence %q: %w", value, err)
		}
		sequence = append(sequence, key)
	}
	return sequence, nil
}

func parseControlKey(token string) (byte, error) {
	lower := strings.ToLower(token)
	if !strings.HasPrefix(lower, "ctrl-") {
		return 0, fmt.Errorf("invalid key %q: expected ctrl-<key>", token)
	}
	keys, err := term.ToBytes(lower)
	if err != nil || len(keys) != 1 || keys[0] >= 0x20 {
		return 0, fmt.Errorf("unsupported control key %q", token)
	}
	return keys[0], nil
}

// String renders the sequence in the form ParseEscapeSequence accepts.
func (sequence EscapeSequence) String() string {
	tokens := make([]string, len(sequence))
	for index, key := range sequence {
		if key < 0x20 {
			tokens[index] = "ctrl-" + strings.ToLower(string(rune(key|0x40)))
		} else {
			tokens[index] = fmt.Sprintf("0x%02x", key)
		}
	}
	return strings.Join(tokens, ",")
}

// Detector is the escape sequence state machine. Its state is the
// number of sequence bytes matched by the most recent input; those
// bytes are held back rather than forwarded. The state persists across
// calls to Feed, so a sequence split over several reads is detected.
//
// A Detector is not safe for concurrent use.
type Detector struct {
	sequence EscapeSequence

	// fallback[i] is the length of the longest proper prefix of
	// sequence[:i+1] that is also a suffix of it. When a byte breaks a
	// match of length i+1, the held bytes beyond that prefix can never
	// be part of a match and are released.
	fallback []int

	matched int
}

// NewDetector returns a Detector for a non-empty sequence.
func NewDetector(sequence EscapeSequence) *Detector {
	if len(sequence) == 0 {
		panic("attach: empty escape sequence")
	}
	fallback := make([]int, len(sequence))
	for index, length := 1, 0; index < len(sequence); index++ {
		for length > 0 && sequence[index] != sequence[length] {
			length = fallback[length-1]
		}
		if sequence[index] == sequence[length] {
			length++
		}
		fallback[index] = length
	}
	return &Detector{
		sequence: append(EscapeSequence(nil), sequence...),
		fallback: fallback,
	}
}

// Feed runs input through the state machine and appends the bytes that
// should be forwarded to out. When the sequence completes it returns
// true; the sequence bytes and any input after them are discarded and
// the detector is reset.
func (d *Detector) Feed(input, out []byte) ([]byte, bool) {
	for _, value := range input {
		for d.matched > 0 && value != d.sequence[d.matched] {
			keep := d.fallback[d.matched-1]
			out = append(out, d.sequence[:d.matched-keep]...)
			d.matched = keep
		}
		if value != d.sequence[d.matched] {
			out = append(out, value)
			continue
		}
		d.matched++
		if d.matched == len(d.sequence) {
			d.matched = 0
			return out, true
		}
	}
	return out, false
}

// Flush appends the held bytes to out and resets the detector. Call it
// when input ends so a trailing partial sequence is not lost.
func (d *Detector) Flush(out []byte) []byte {
	out = append(out, d.sequence[:d.matched]...)
	d.matched = 0
	return out
}

// Matched returns the number of sequence bytes currently held.
func (d *Detector) Matched() int {
	return d.matched
}

// EscapeReader wraps a keystroke source and removes the escape
// sequence from it. Bytes that precede the sequence in the same read
// are returned first; the next Read returns ErrDetached, and every Read
// after that returns ErrDetached too.
//
// When the source reaches EOF, any held partial sequence is released
// before the EOF is reported.
type EscapeReader struct {
	source   io.Reader
	detector *Detector
	buffer   []byte
	pending  []byte
	err      error
}

// NewEscapeReader wraps source with detection of sequence.
func NewEscapeReader(source io.Reader, sequence EscapeSequence) *EscapeReader {
	return &EscapeReader{
		source:   source,
		detector: NewDetector(sequence),
		buffer:   make([]byte, 512),
	}
}

// Read implements io.Reader. It does not return (0, nil): when a read
// from the source is entirely held back, it reads again.
func (r *EscapeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if len(r.pending) > 0 {
			copied := copy(p, r.pending)
			r.pending = r.pending[copied:]
			return copied, nil
		}
		if r.err != nil {
			return 0, r.err
		}

		read, err := r.source.Read(r.buffer)
		forward, detached := r.detector.Feed(r.buffer[:read], r.pending[:0])
		switch {
		case detached:
			r.err = ErrDetached
		case err != nil:
			forward = r.detector.Flush(forward)
			r.err = err
		}
		r.pending = forward
	}
}
