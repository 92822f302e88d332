// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package socketrpc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrAddressInUse is wrapped by the BindError Listen returns when
// another live server already answers on the socket.
var ErrAddressInUse = errors.New("address already in use by a live server")

// Client failure kinds. Every CallError carries exactly one of these
// as its Kind.
var (
	// ErrConnectTimeout means no connection was established within the
	// connect timeout. A missing socket or a refused connection is
	// reported the same way, since to the caller each means no server
	// is reachable.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrReadTimeout means the reply did not arrive within the read
	// timeout.
	ErrReadTimeout = errors.New("read timeout")

	// ErrMalformedReply means the reply was not a reply document with
	// a boolean succeeded field.
	ErrMalformedReply = errors.New("malformed reply")

	// ErrTransport covers write and read failures after the connection
	// was established, including the server closing without a reply.
	ErrTransport = errors.New("transport failure")

	// ErrReqIDMismatch means the reply echoed a different reqid than
	// the request carried.
	ErrReqIDMismatch = errors.New("reply reqid does not match request")
)

// BindError is returned by Listen when the server cannot take over its
// socket address.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// CallError is returned by every failed client call.
type CallError struct {
	Op      string // "connect", "write", "read", "decode"
	Address string
	Kind    error // one of the Err* kinds above
	Err     error // underlying cause, may be nil
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Address, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Kind)
}

// Unwrap returns both the kind and the cause, so errors.Is works
// against either.
func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// isExpectedClose reports whether err is a normal end of a connection:
// EOF, use of a closed connection, broken pipe, or connection reset.
// These are logged at debug, not as failures.
func isExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
