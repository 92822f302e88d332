// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package markup converts between wire documents and field maps.
//
// A request document is one outer element whose tag names the command.
// Its attributes and its direct child elements are both parameters:
//
//	<self mute="true"><reqid>42</reqid></self>
//
// decodes to command "self" with fields mute=true and reqid=42. A
// child element's value is the text content of everything inside it,
// so nested markup inside a parameter is flattened rather than
// rejected.
//
// A reply document is a "reply" element with one child per field:
//
//	<reply><reqid>42</reqid><succeeded>true</succeeded></reply>
//
// [Decode] expects exactly one document, as delivered by the stream
// framer; it does not look for document boundaries itself. [Encode]
// escapes every markup-reserved character so that decoding an encoded
// map returns the original text exactly.
package markup
