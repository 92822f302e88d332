// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Socketrpc-daemon serves the control socket of a voice client session.
// It listens on a private Unix socket, decodes each request document,
// dispatches it to an in-process session (window, audio, server
// connection, channel tree), and writes one reply per request.
//
// The socket path comes from --socket, or from --basename resolved
// under $XDG_RUNTIME_DIR (falling back to $HOME). A stale socket left by
// a crashed daemon is replaced; a live one is not. The daemon runs until
// SIGINT or SIGTERM, then closes open connections and removes the
// socket file.
//
// Audio settings persist across restarts when --state (or
// state.settings_path in the config file) names a file.
package main
