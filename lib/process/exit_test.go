// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		output string
	}{
		{"plain error", errors.New("boom"), 1, "error: boom\n"},
		{"exit code", Exit(2, errors.New("dial failed")), 2, "error: dial failed\n"},
		{"wrapped exit code", fmt.Errorf("call: %w", Exit(2, errors.New("x"))), 2, "error: call: x\n"},
		{"silent", Exit(1, nil), 1, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			if code := report(&buffer, test.err); code != test.code {
				t.Errorf("code: got %d, want %d", code, test.code)
			}
			if buffer.String() != test.output {
				t.Errorf("output: got %q, want %q", buffer.String(), test.output)
			}
		})
	}
}
