// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for socketrpc packages.
//
// [SocketPath] returns a socket path in a fresh short directory under
// /tmp. Unix domain socket paths are limited to 108 bytes (sun_path in
// sockaddr_un), and t.TempDir() can exceed that under deeply nested
// build directories. [WaitForSocket] blocks until a server has created
// its socket file.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so individual tests do not call time.After directly.
//
// [UniqueID] generates distinct request ids.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
