// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package socketrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/socketrpc/lib/dispatch"
	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
	"github.com/bureau-foundation/socketrpc/lib/framer"
	"github.com/bureau-foundation/socketrpc/lib/markup"
)

// DefaultConnectTimeout bounds establishing the connection.
const DefaultConnectTimeout = time.Second

// DefaultReadTimeout bounds waiting for the reply once the request has
// been written.
const DefaultReadTimeout = 2 * time.Second

// Reply is a decoded reply document.
type Reply struct {
	Succeeded bool

	// Fields holds every reply field, succeeded and reqid included.
	Fields *fieldmap.Map
}

// Client sends single requests to a server. Each call opens its own
// connection, writes one request, reads one reply, and closes. The
// zero timeouts mean the defaults. A Client is safe for concurrent
// use.
type Client struct {
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// Logger receives debug output; nil discards it.
	Logger *slog.Logger
}

// NewClient returns a client for the socket at address with the
// default timeouts.
func NewClient(address string) *Client {
	return &Client{
		Address:        address,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
	}
}

// Call is a convenience wrapper for a one-off request.
func Call(ctx context.Context, address, command string, fields *fieldmap.Map, connectTimeout, readTimeout time.Duration) (bool, error) {
	client := &Client{
		Address:        address,
		ConnectTimeout: connectTimeout,
		ReadTimeout:    readTimeout,
	}
	return client.Call(ctx, command, fields)
}

// Call sends command with fields as child elements and returns the
// reply's succeeded value. A false result with a nil error means the
// server answered and did not acknowledge the command.
func (c *Client) Call(ctx context.Context, command string, fields *fieldmap.Map) (bool, error) {
	reply, err := c.exchange(ctx, command, nil, fields)
	if err != nil {
		return false, err
	}
	return reply.Succeeded, nil
}

// Do sends command with attrs on the outer element and fields as child
// elements, and returns the full reply. When neither attrs nor fields
// carries a reqid, Do adds a random one; either way it checks that
// the reply echoes it.
func (c *Client) Do(ctx context.Context, command string, attrs, fields *fieldmap.Map) (*Reply, error) {
	reqid, ok := attrs.Get(dispatch.FieldReqID)
	if !ok {
		reqid, ok = fields.Get(dispatch.FieldReqID)
	}
	if !ok {
		reqid = uuid.NewString()
		fields = fields.Clone()
		fields.Set(dispatch.FieldReqID, reqid)
	}

	reply, err := c.exchange(ctx, command, attrs, fields)
	if err != nil {
		return nil, err
	}
	if echoed, _ := reply.Fields.Get(dispatch.FieldReqID); echoed != reqid {
		return nil, &CallError{
			Op:      "decode",
			Address: c.Address,
			Kind:    ErrReqIDMismatch,
			Err:     fmt.Errorf("sent %q, got %q", reqid, echoed),
		}
	}
	return reply, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Client) exchange(ctx context.Context, command string, attrs, fields *fieldmap.Map) (*Reply, error) {
	request, err := markup.EncodeAttributes(command, attrs, fields)
	if err != nil {
		return nil, &CallError{Op: "encode", Address: c.Address, Kind: ErrTransport, Err: err}
	}

	connectTimeout := c.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	readTimeout := c.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	dialer := net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.Address)
	if err != nil {
		return nil, &CallError{Op: "connect", Address: c.Address, Kind: ErrConnectTimeout, Err: err}
	}
	defer conn.Close()

	// The read deadline covers the write too, so a server that stops
	// reading cannot hold the call past the read timeout.
	deadline := time.Now().Add(readTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write(request); err != nil {
		return nil, c.transportError(ctx, "write", err)
	}
	// Half-close so the server sees end of input once it has the
	// request; the reply still flows back.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	document, err := readDocument(conn)
	if err != nil {
		if errors.Is(err, framer.ErrMalformed) {
			return nil, &CallError{Op: "read", Address: c.Address, Kind: ErrMalformedReply, Err: err}
		}
		return nil, c.transportError(ctx, "read", err)
	}
	c.logger().Debug("reply received", "address", c.Address, "bytes", len(document))

	return parseReply(c.Address, document)
}

// transportError classifies a failed read or write on an established
// connection.
func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CallError{Op: op, Address: c.Address, Kind: ErrTransport, Err: ctxErr}
	}
	if isTimeout(err) {
		return &CallError{Op: op, Address: c.Address, Kind: ErrReadTimeout, Err: err}
	}
	return &CallError{Op: op, Address: c.Address, Kind: ErrTransport, Err: err}
}

// errClosedWithoutReply is the cause reported when the server closes
// the connection before a complete reply document arrives.
var errClosedWithoutReply = errors.New("server closed connection without a complete reply")

// readDocument reads from conn until one complete document is framed.
func readDocument(conn net.Conn) ([]byte, error) {
	f := framer.New()
	buffer := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			frame := f.Feed(buffer[:n])
			switch frame.State {
			case framer.DocumentReady:
				return frame.Document, nil
			case framer.Malformed:
				return nil, frame.Err
			}
		}
		if err != nil {
			if isExpectedClose(err) {
				return nil, errClosedWithoutReply
			}
			return nil, err
		}
	}
}

func parseReply(address string, document []byte) (*Reply, error) {
	decoded, err := markup.Decode(document)
	if err != nil {
		return nil, &CallError{Op: "decode", Address: address, Kind: ErrMalformedReply, Err: err}
	}
	if decoded.Command != markup.ReplyTag {
		return nil, &CallError{
			Op:      "decode",
			Address: address,
			Kind:    ErrMalformedReply,
			Err:     fmt.Errorf("outer element is <%s>", decoded.Command),
		}
	}
	succeeded, err := decoded.Fields.Bool(dispatch.FieldSucceeded)
	if err != nil {
		return nil, &CallError{Op: "decode", Address: address, Kind: ErrMalformedReply, Err: err}
	}
	return &Reply{Succeeded: succeeded, Fields: decoded.Fields}, nil
}
