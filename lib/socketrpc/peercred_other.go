// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package socketrpc

import "net"

func peerAttrs(conn *net.UnixConn) []any { return nil }
