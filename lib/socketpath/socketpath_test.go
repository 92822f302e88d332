// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package socketpath

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	runtimeDirectory := t.TempDir()
	homeDirectory := t.TempDir()
	home := func() (string, error) { return homeDirectory, nil }

	tests := []struct {
		name     string
		basename string
		runtime  string
		want     string
	}{
		{"runtime dir", "Mumble", runtimeDirectory, filepath.Join(runtimeDirectory, "MumbleSocket")},
		{"default base", "", runtimeDirectory, filepath.Join(runtimeDirectory, "MumbleSocket")},
		{"no runtime dir", "Mumble", "", filepath.Join(homeDirectory, ".MumbleSocket")},
		{"missing runtime dir", "Test", filepath.Join(runtimeDirectory, "gone"), filepath.Join(homeDirectory, ".TestSocket")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			getenv := func(name string) string {
				if name == "XDG_RUNTIME_DIR" {
					return test.runtime
				}
				return ""
			}
			got, err := resolve(test.basename, getenv, home)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	noEnv := func(string) string { return "" }
	noHome := func() (string, error) { return "", errors.New("no home") }
	if _, err := resolve("Mumble", noEnv, noHome); !errors.Is(err, ErrNoLocation) {
		t.Errorf("no location: got %v", err)
	}
	home := func() (string, error) { return "/home/u", nil }
	if _, err := resolve("a/b", noEnv, home); err == nil {
		t.Error("base name with separator accepted")
	}
}

func TestResolveUsesEnvironment(t *testing.T) {
	runtimeDirectory := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDirectory)
	got, err := Resolve("Env")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(runtimeDirectory, "EnvSocket") {
		t.Errorf("got %q", got)
	}
}
