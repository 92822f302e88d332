// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package socketpath resolves the filesystem address of a client's
// control socket from a short base name.
//
// The socket lives in $XDG_RUNTIME_DIR as "<base>Socket" when that
// directory is set and exists, since it is per-user, private, and
// cleared at logout. Otherwise it falls back to a hidden file in the
// home directory, "$HOME/.<base>Socket".
package socketpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBasename is the base name used when none is configured.
const DefaultBasename = "Mumble"

// suffix is appended to every base name.
const suffix = "Socket"

// ErrNoLocation is returned when neither the runtime directory nor the
// home directory is available.
var ErrNoLocation = errors.New("no runtime or home directory for the control socket")

// Resolve returns the socket path for basename using the process
// environment.
func Resolve(basename string) (string, error) {
	return resolve(basename, os.Getenv, os.UserHomeDir)
}

func resolve(basename string, getenv func(string) string, home func() (string, error)) (string, error) {
	if basename == "" {
		basename = DefaultBasename
	}
	if strings.ContainsRune(basename, filepath.Separator) {
		return "", fmt.Errorf("socket base name %q contains a path separator", basename)
	}

	if runtimeDirectory := getenv("XDG_RUNTIME_DIR"); runtimeDirectory != "" {
		if info, err := os.Stat(runtimeDirectory); err == nil && info.IsDir() {
			return filepath.Join(runtimeDirectory, basename+suffix), nil
		}
	}

	homeDirectory, err := home()
	if err != nil || homeDirectory == "" {
		return "", ErrNoLocation
	}
	return filepath.Join(homeDirectory, "."+basename+suffix), nil
}
