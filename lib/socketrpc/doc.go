// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package socketrpc carries request and reply documents over a Unix
// domain socket so that local programs can control a running voice
// client: raise its window, mute, join a server by URL, and so on.
//
// # Wire format
//
// Each message is one markup document with no length prefix and no
// terminator; the document ends when its outer element closes. A
// request names the command with its outer element and carries fields
// as attributes or child elements:
//
//	<self mute="true"/>
//	<self><reqid>42</reqid><command>connect example.org port 64738 as alice</command></self>
//
// Every reply is a reply element whose last child is succeeded:
//
//	<reply><reqid>42</reqid><succeeded>true</succeeded></reply>
//
// # Server
//
// [Server] accepts any number of connections, each on its own
// goroutine. Documents on one connection are answered strictly in
// order, each reply written before the next document is read. A
// connection that sends a malformed document is closed without a
// reply. An unknown command is answered with succeeded=false and the
// connection stays open.
//
// # Client
//
// [Client] opens one connection per call, writes the request, half-
// closes, and reads a single reply bounded by its connect and read
// timeouts. Failures are returned as [*CallError] values whose Kind is
// one of the Err* sentinels. The client never retries.
package socketrpc
