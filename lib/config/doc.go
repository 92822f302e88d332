// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by socketrpc-daemon
// and socketrpc-call.
//
// A single file is read, named by the --config flag (via [LoadFile]) or
// the SOCKETRPC_CONFIG environment variable (via [Load]). Without
// either, [Default] applies. File values are merged onto the defaults,
// and command-line flags in the binaries override both.
//
// Path fields (socket.path, state.settings_path) expand ${HOME},
// ${XDG_RUNTIME_DIR}, and ${VAR:-default}. No other environment
// variables influence config values.
//
// Durations are stored as strings and parsed on access so that
// [Config.Validate] can report every bad field in one error.
package config
