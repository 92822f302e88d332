// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// SocketDir creates a short-named temporary directory in /tmp for Unix
// domain sockets. It is removed when the test completes.
func SocketDir(t testing.TB) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "socketrpc-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// SocketPath returns the path of a not-yet-created socket in a fresh
// SocketDir.
func SocketPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(SocketDir(t), "rpc.sock")
}

// WaitForSocket polls until path exists, or fails the test after
// timeout.
func WaitForSocket(t testing.TB, path string, timeout time.Duration) {
	t.Helper()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	expired := time.After(timeout) //nolint:realclock test hang prevention
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		select {
		case <-ticker.C:
		case <-expired:
			t.Fatalf("socket %s did not appear within %v", path, timeout)
		}
	}
}
