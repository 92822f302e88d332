// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package socketrpc

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerAttrs returns the connecting process's pid, uid and gid as log
// attributes. The values identify the peer in diagnostics only; they
// are not used to authorize anything.
func peerAttrs(conn *net.UnixConn) []any {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil
	}
	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil || credErr != nil {
		return nil
	}
	return []any{"peer_pid", cred.Pid, "peer_uid", cred.Uid, "peer_gid", cred.Gid}
}
