// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package framer finds document boundaries in a stream of markup
// bytes.
//
// Documents on the wire carry no length prefix and no terminator: a
// document ends when its outer element closes. A [Framer] therefore
// tracks the lexical structure of the markup as bytes arrive (tags,
// attribute quoting, comments, CDATA sections, processing
// instructions, entity references) and keeps a stack of open element
// names. The moment the stack empties after the outer element opened,
// [Framer.Feed] reports [DocumentReady] with the exact bytes of that
// document.
//
// Bytes may arrive in chunks of any size, including one byte at a
// time. Scanning resumes where the previous call stopped, so no byte
// is examined twice, and running out of input mid-document is always
// [NeedMore], never an error. Input that can never become a valid
// document (a mismatched end tag, an unknown entity, text outside the
// outer element) is reported as [Malformed] as soon as the offending
// byte is seen, without waiting for the rest of the document.
//
// The framer validates structure only. Character-level decoding (UTF-8
// validity, entity expansion, attribute values) is left to the
// document decoder that consumes [Frame.Document].
package framer
