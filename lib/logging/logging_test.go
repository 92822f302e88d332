// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFormats(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		terminal bool
		json     bool
	}{
		{"auto on terminal", Auto, true, false},
		{"auto when piped", Auto, false, true},
		{"empty means auto", "", false, true},
		{"text when piped", Text, false, false},
		{"json on terminal", JSON, true, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			logger, err := newLogger(&buffer, slog.LevelInfo, test.format, test.terminal)
			if err != nil {
				t.Fatal(err)
			}
			logger.Info("hello", "key", "value")
			line := strings.TrimSpace(buffer.String())
			isJSON := json.Valid([]byte(line))
			if isJSON != test.json {
				t.Errorf("json output = %v, want %v: %s", isJSON, test.json, line)
			}
			if !strings.Contains(line, "hello") || !strings.Contains(line, "value") {
				t.Errorf("record missing content: %s", line)
			}
		})
	}
}

func TestLevelFilters(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := newLogger(&buffer, slog.LevelWarn, Text, false)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buffer.String(), "dropped") || !strings.Contains(buffer.String(), "kept") {
		t.Errorf("unexpected output: %s", buffer.String())
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(slog.LevelInfo, "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}
