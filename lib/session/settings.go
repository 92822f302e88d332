// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Settings is the state that survives a restart.
type Settings struct {
	Muted    bool `cbor:"muted"`
	Deafened bool `cbor:"deafened"`
}

// settingsEncMode uses Core Deterministic Encoding (RFC 8949 §4.2), so
// the same settings always produce the same file bytes.
var settingsEncMode cbor.EncMode

func init() {
	var err error
	settingsEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: CBOR encoder initialization failed: " + err.Error())
	}
}

// LoadSettings reads the settings file at path. A missing file yields
// zero settings and no error.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	var settings Settings
	if err := cbor.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("decoding settings %s: %w", path, err)
	}
	return settings, nil
}

// SaveSettings writes settings to path atomically: the data goes to a
// temporary file in the same directory, which is synced and renamed
// over path. The file is created with mode 0600.
func SaveSettings(path string, settings Settings) error {
	data, err := settingsEncMode.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary settings file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary settings file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary settings file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary settings file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming settings file into place: %w", err)
	}

	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}
