// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package socketrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/socketrpc/lib/dispatch"
	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
	"github.com/bureau-foundation/socketrpc/lib/framer"
	"github.com/bureau-foundation/socketrpc/lib/markup"
)

// Dispatcher turns one decoded request into reply fields.
// *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, request *markup.Request) *fieldmap.Map
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)

// DefaultIdleTimeout is how long a connection may sit without sending
// a byte before the server closes it. Clients normally send one
// request immediately after connecting.
const DefaultIdleTimeout = 5 * time.Minute

// DefaultWriteTimeout bounds writing one reply.
const DefaultWriteTimeout = 10 * time.Second

// readChunkSize is the size of each read from a connection. Requests
// are tiny; one read almost always holds a whole document.
const readChunkSize = 4096

// liveCheckTimeout bounds the dial Listen uses to tell a live server from
// a stale socket file.
const liveCheckTimeout = 250 * time.Millisecond

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithIdleTimeout sets how long a connection may stay silent. Zero
// disables the limit.
func WithIdleTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) { s.idleTimeout = timeout }
}

// WithWriteTimeout bounds writing each reply. Zero disables the limit.
func WithWriteTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) { s.writeTimeout = timeout }
}

// WithMaxDocumentSize bounds each request document. Zero or negative
// disables the limit.
func WithMaxDocumentSize(size int) ServerOption {
	return func(s *Server) { s.maxDocumentSize = size }
}

// WithRateLimit limits each connection to limit requests per second
// with the given burst. A connection over its limit has its next
// request delayed, not rejected. A zero limit (the default) disables
// limiting.
func WithRateLimit(limit rate.Limit, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = limit
		s.rateBurst = max(burst, 1)
	}
}

// Server serves the request-reply protocol on a Unix socket. Each
// connection may carry any number of request documents in sequence;
// every document gets exactly one reply, written before the next
// document is read. A malformed document closes its connection without
// a reply and affects no other connection.
type Server struct {
	address    string
	dispatcher Dispatcher
	logger     *slog.Logger

	idleTimeout     time.Duration
	writeTimeout    time.Duration
	maxDocumentSize int
	rateLimit       rate.Limit
	rateBurst       int

	listener *net.UnixListener
	ready    chan struct{}

	mu          sync.Mutex
	connections map[*net.UnixConn]struct{}

	// activeConnections tracks connection handlers so Serve can wait
	// for all of them before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server for the socket at address. Call Listen
// (optional) and then Serve.
func NewServer(address string, dispatcher Dispatcher, logger *slog.Logger, options ...ServerOption) *Server {
	s := &Server{
		address:         address,
		dispatcher:      dispatcher,
		logger:          logger.With("component", "socketrpc", "address", address),
		idleTimeout:     DefaultIdleTimeout,
		writeTimeout:    DefaultWriteTimeout,
		maxDocumentSize: framer.DefaultMaxDocumentSize,
		ready:           make(chan struct{}),
		connections:     make(map[*net.UnixConn]struct{}),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Addr returns the socket path.
func (s *Server) Addr() string { return s.address }

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Listen binds the socket. If a socket file already exists and a live
// server answers on it, Listen returns a *BindError wrapping
// ErrAddressInUse. A stale socket file left by a dead process is
// removed first; failure to remove it is not fatal here, since the
// bind that follows reports any real conflict.
//
// The socket is created with mode 0600, so only the owning user can
// connect.
func (s *Server) Listen() error {
	if s.listener != nil {
		return &BindError{Address: s.address, Err: errors.New("already listening")}
	}
	if err := s.clearStaleSocket(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.address)
	if err != nil {
		return &BindError{Address: s.address, Err: err}
	}
	if err := os.Chmod(s.address, 0o600); err != nil {
		listener.Close()
		return &BindError{Address: s.address, Err: fmt.Errorf("restricting socket permissions: %w", err)}
	}
	s.listener = listener.(*net.UnixListener)
	close(s.ready)
	return nil
}

func (s *Server) clearStaleSocket() error {
	info, err := os.Lstat(s.address)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("cannot inspect existing socket path", "error", err)
		}
		return nil
	}
	if info.Mode()&os.ModeSocket == 0 {
		// Not a socket: leave it for net.Listen to report.
		return nil
	}

	conn, err := net.DialTimeout("unix", s.address, liveCheckTimeout)
	if err == nil {
		conn.Close()
		return &BindError{Address: s.address, Err: ErrAddressInUse}
	}
	if err := os.Remove(s.address); err != nil && !os.IsNotExist(err) {
		s.logger.Debug("removing stale socket failed", "error", err)
	} else {
		s.logger.Debug("removed stale socket")
	}
	return nil
}

// Serve accepts connections until ctx is cancelled, calling Listen
// first if it has not been called. On cancellation it stops accepting,
// closes every open connection, waits for their handlers to finish,
// and removes the socket file. It returns nil after a cancellation;
// any other return is a startup error.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	listener := s.listener
	defer func() {
		listener.Close()
		os.Remove(s.address)
	}()

	// Unblock Accept and every connection read when the context is
	// cancelled.
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
			s.closeConnections()
		case <-stopped:
		}
	}()

	s.logger.Info("socket server listening")

	var backoff time.Duration
	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.logger.Error("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		if !s.track(conn) {
			conn.Close()
			break
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			defer s.untrack(conn)
			s.handleConnection(ctx, conn)
		}()
	}

	// A connection accepted just before cancellation may have been
	// tracked after closeConnections ran.
	s.closeConnections()
	s.activeConnections.Wait()
	s.logger.Info("socket server stopped")
	return nil
}

func (s *Server) track(conn *net.UnixConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections == nil {
		return false
	}
	s.connections[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *net.UnixConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, conn)
}

// closeConnections closes every tracked connection and stops tracking
// new ones.
func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connections = nil
}

// handleConnection reads documents from conn until the peer closes,
// the idle timeout expires, or a document is malformed.
func (s *Server) handleConnection(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	logger := s.logger.With(peerAttrs(conn)...)
	logger.Debug("connection opened")

	session := &connection{
		server: s,
		conn:   conn,
		logger: logger,
		framer: framer.New(framer.WithMaxDocumentSize(s.maxDocumentSize)),
	}
	if s.rateLimit > 0 {
		session.limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}

	buffer := make([]byte, readChunkSize)
	for {
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		n, err := conn.Read(buffer)
		if n > 0 && !session.feed(ctx, buffer[:n]) {
			return
		}
		if err == nil {
			continue
		}

		switch {
		case isExpectedClose(err) && session.framer.Pending():
			logger.Debug("peer closed connection mid-document", "buffered", session.framer.Buffered())
		case isExpectedClose(err) || ctx.Err() != nil:
			logger.Debug("connection closed")
		case isTimeout(err):
			logger.Debug("connection idle, closing", "idle_timeout", s.idleTimeout)
		default:
			logger.Warn("reading from connection failed", "error", err)
		}
		return
	}
}

// connection is the per-connection state of handleConnection.
type connection struct {
	server  *Server
	conn    *net.UnixConn
	logger  *slog.Logger
	framer  *framer.Framer
	limiter *rate.Limiter
}

// feed hands a chunk of input to the framer and serves every document
// it completes. It returns false when the connection must close.
func (c *connection) feed(ctx context.Context, chunk []byte) bool {
	frame := c.framer.Feed(chunk)
	for {
		switch frame.State {
		case framer.NeedMore:
			return true
		case framer.Malformed:
			c.logger.Warn("malformed document, closing connection", "error", frame.Err)
			return false
		}
		if !c.serve(ctx, frame.Document) {
			return false
		}
		frame = c.framer.Feed(nil)
	}
}

// serve decodes, dispatches, and answers one document.
func (c *connection) serve(ctx context.Context, document []byte) bool {
	request, err := markup.Decode(document)
	if errors.Is(err, markup.ErrEmptyDocument) {
		c.logger.Debug("ignoring document with no outer element")
		return true
	}
	if err != nil {
		c.logger.Warn("undecodable document, closing connection", "error", err)
		return false
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false
		}
	}

	reply := c.server.dispatcher.Dispatch(ctx, request)
	encoded, err := markup.Encode(markup.ReplyTag, reply)
	if err != nil {
		// A handler produced a field that cannot be encoded. The
		// client still gets an answer.
		c.logger.Error("encoding reply failed", "command", request.Command, "error", err)
		encoded, err = markup.Encode(markup.ReplyTag, fallbackReply(reply))
		if err != nil {
			return false
		}
	}

	if c.server.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.server.writeTimeout))
	}
	if _, err := c.conn.Write(encoded); err != nil {
		if isExpectedClose(err) {
			c.logger.Debug("peer went away before reply was written", "error", err)
		} else {
			c.logger.Warn("writing reply failed", "error", err)
		}
		return false
	}
	return true
}

// fallbackReply keeps only the reqid and reports failure.
func fallbackReply(reply *fieldmap.Map) *fieldmap.Map {
	fallback := fieldmap.New()
	if reqid, ok := reply.Get(dispatch.FieldReqID); ok {
		fallback.Set(dispatch.FieldReqID, reqid)
	}
	fallback.Set(dispatch.FieldSucceeded, fieldmap.FormatBool(false))
	return fallback
}
