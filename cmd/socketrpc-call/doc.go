// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Socketrpc-call sends one request to a running socketrpc-daemon (or
// any server speaking the same protocol) and prints the reply.
//
// The first argument names the command; each following name=value
// argument becomes a request field. --attr adds outer-element
// attributes and --fields reads fields from a JSONC object, with
// command-line pairs applied on top. Reply fields print one per line as
// name=value.
//
// Exit status is 0 when the reply reports succeeded=true, 1 when the
// server declined the request, and 2 when the call itself failed:
// no server, timeout, or a malformed reply.
package main
