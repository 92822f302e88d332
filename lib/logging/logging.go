// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog logger used by the socketrpc
// binaries. Output goes to stderr: text when stderr is a terminal,
// JSON otherwise, so that piped daemon output stays machine-parseable.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Format selects the handler.
type Format string

const (
	// Auto chooses Text on a terminal and JSON otherwise.
	Auto Format = "auto"
	Text Format = "text"
	JSON Format = "json"
)

// New returns a logger writing to stderr at level.
func New(level slog.Level, format Format) (*slog.Logger, error) {
	return newLogger(os.Stderr, level, format, term.IsTerminal(int(os.Stderr.Fd())))
}

func newLogger(w io.Writer, level slog.Level, format Format, terminal bool) (*slog.Logger, error) {
	options := &slog.HandlerOptions{Level: level}
	switch format {
	case Auto, "":
		if terminal {
			return slog.New(slog.NewTextHandler(w, options)), nil
		}
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case Text:
		return slog.New(slog.NewTextHandler(w, options)), nil
	case JSON:
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
