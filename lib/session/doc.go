// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is an in-memory voice client that implements
// dispatch.Executor. The daemon serves it when no real client is
// attached, and tests use it as a full executor.
//
// Audio state can be persisted to a CBOR settings file so mute and
// deafen survive a restart.
package session
