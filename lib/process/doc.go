// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the socketrpc binaries:
// reporting an error from run() before or instead of the structured
// logger, and exiting with a status that scripts can branch on.
package process
