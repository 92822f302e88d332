// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framer

import (
	"errors"
	"fmt"
)

// State is the outcome of one Feed call.
type State int

const (
	// NeedMore means every buffered byte has been scanned and no
	// document is complete yet.
	NeedMore State = iota

	// DocumentReady means Frame.Document holds one complete document.
	// More documents may already be buffered; call Feed(nil) to scan
	// them.
	DocumentReady

	// Malformed means the buffered input can never form a valid
	// document. Frame.Err describes the first offending byte. The
	// state is sticky until Reset.
	Malformed
)

func (s State) String() string {
	switch s {
	case NeedMore:
		return "need-more"
	case DocumentReady:
		return "document-ready"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultMaxDocumentSize bounds a single document. A request is a
// handful of short fields; a megabyte is far beyond any legitimate
// client and stops a peer from growing the buffer without limit.
const DefaultMaxDocumentSize = 1024 * 1024

// ErrMalformed is wrapped by every SyntaxError.
var ErrMalformed = errors.New("malformed document")

// ErrDocumentTooLarge is wrapped by the SyntaxError reported when a
// document grows past the configured maximum size.
var ErrDocumentTooLarge = errors.New("document exceeds maximum size")

// SyntaxError reports the first byte at which the stream stopped being
// a possible document. Offset counts bytes from the start of the
// stream, across documents.
type SyntaxError struct {
	Offset int64
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed document at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// Frame is the result of Feed.
type Frame struct {
	State State

	// Document holds the complete document for DocumentReady: every
	// byte from the first markup byte through the outer element's
	// closing '>'. Whitespace between documents is not included. The
	// slice is owned by the caller.
	Document []byte

	// Err is set for Malformed.
	Err error
}

// Option configures a Framer.
type Option func(*Framer)

// WithMaxDocumentSize sets the largest document the framer accepts.
// Zero or a negative value disables the limit.
func WithMaxDocumentSize(size int) Option {
	return func(f *Framer) {
		f.maxSize = size
	}
}

// Framer is the per-connection incremental document scanner. It is not
// safe for concurrent use; each connection owns one.
type Framer struct {
	maxSize int

	buffer []byte
	pos    int   // next byte of buffer to scan
	start  int   // index of the current document's first byte, -1 before it begins
	base   int64 // stream offset of buffer[0]
	err    error

	lexer lexer
}

// New returns a Framer ready for the first document.
func New(options ...Option) *Framer {
	f := &Framer{
		maxSize: DefaultMaxDocumentSize,
		start:   -1,
	}
	for _, option := range options {
		option(f)
	}
	f.lexer.reset()
	return f
}

// Feed appends p to the buffered input and scans forward. It returns
// at the first complete document, leaving any later bytes buffered for
// the next call. Feed(nil) scans already-buffered bytes only.
func (f *Framer) Feed(p []byte) Frame {
	if f.err != nil {
		return Frame{State: Malformed, Err: f.err}
	}
	f.buffer = append(f.buffer, p...)

	for f.pos < len(f.buffer) {
		c := f.buffer[f.pos]
		result := f.lexer.step(c)
		if result.begin {
			f.start = f.pos
		}
		f.pos++

		if result.err != nil {
			return f.fail(f.pos-1, result.err.Error(), nil)
		}
		if f.maxSize > 0 && f.start >= 0 && f.pos-f.start > f.maxSize {
			return f.fail(f.pos-1, fmt.Sprintf("document larger than %d bytes", f.maxSize), ErrDocumentTooLarge)
		}
		if result.complete {
			return f.complete()
		}
	}

	// Nothing of a document has been seen yet: the scanned bytes were
	// whitespace between documents and need not be kept.
	if f.start < 0 {
		f.base += int64(len(f.buffer))
		f.buffer = f.buffer[:0]
		f.pos = 0
	}
	return Frame{State: NeedMore}
}

func (f *Framer) complete() Frame {
	document := make([]byte, f.pos-f.start)
	copy(document, f.buffer[f.start:f.pos])

	remaining := copy(f.buffer, f.buffer[f.pos:])
	f.base += int64(f.pos)
	f.buffer = f.buffer[:remaining]
	f.pos = 0
	f.start = -1
	f.lexer.reset()

	return Frame{State: DocumentReady, Document: document}
}

func (f *Framer) fail(index int, message string, cause error) Frame {
	f.err = &SyntaxError{
		Offset: f.base + int64(index),
		Msg:    message,
		Err:    cause,
	}
	return Frame{State: Malformed, Err: f.err}
}

// Pending reports whether part of a document has been buffered but not
// yet delivered. A peer that disconnects while Pending is true closed
// the connection mid-document.
func (f *Framer) Pending() bool {
	return f.start >= 0 || f.pos < len(f.buffer)
}

// Buffered returns the number of bytes held for the current and any
// following documents.
func (f *Framer) Buffered() int {
	return len(f.buffer)
}

// Reset discards all buffered input and any sticky error.
func (f *Framer) Reset() {
	f.base += int64(len(f.buffer))
	f.buffer = f.buffer[:0]
	f.pos = 0
	f.start = -1
	f.err = nil
	f.lexer.reset()
}
