// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
)

// ReplyTag is the outer element name of every reply document.
const ReplyTag = "reply"

// ErrEmptyDocument is returned by Decode when the document contains no
// element at all (only whitespace, a declaration, or comments). The
// server treats this as nothing to do rather than a protocol failure.
var ErrEmptyDocument = errors.New("document has no outer element")

// ErrMalformed is wrapped by every DecodeError.
var ErrMalformed = errors.New("malformed document")

// ErrInvalidName is returned by Encode when a tag or field name is not
// a valid element name.
var ErrInvalidName = errors.New("invalid element name")

// ErrInvalidText is returned by Encode when a value contains a
// character that cannot appear in a document at all, even escaped.
var ErrInvalidText = errors.New("value contains characters not allowed in markup")

// DecodeError reports a syntax error found while decoding a document.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding document at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

// Request is one decoded request document.
type Request struct {
	// Command is the outer element's tag name.
	Command string

	// Fields holds every attribute of the outer element followed by
	// every direct child element, each in document order. A child
	// repeated under the same name keeps the last value.
	Fields *fieldmap.Map

	// FirstChild is the first direct child element, or nil if the
	// outer element has none. The token command path reads its text.
	FirstChild *Child

	// AttributeNames and ChildNames list the outer element's attribute
	// and child element names as they appeared, duplicates included.
	// They exist for diagnostics.
	AttributeNames []string
	ChildNames     []string
}

// Child is a direct child element of the outer element.
type Child struct {
	Name string
	Text string
}

// Decode parses one complete document.
func Decode(raw []byte) (*Request, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	decoder.Strict = true
	// Documents declaring a legacy encoding (ISO-8859-1, windows-1252,
	// ...) are transcoded to UTF-8; unknown labels fail the decode.
	decoder.CharsetReader = charset.NewReaderLabel

	var root xml.StartElement
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDocument
		}
		if err != nil {
			return nil, &DecodeError{Offset: decoder.InputOffset(), Err: err}
		}
		if start, ok := token.(xml.StartElement); ok {
			root = start
			break
		}
	}

	request := &Request{
		Command: root.Name.Local,
		Fields:  fieldmap.New(),
	}
	for _, attr := range root.Attr {
		name := attributeName(attr.Name)
		request.Fields.Set(name, attr.Value)
		request.AttributeNames = append(request.AttributeNames, name)
	}

	var (
		depth     int
		childName string
		text      strings.Builder
	)
	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, &DecodeError{Offset: decoder.InputOffset(), Err: err}
		}

		switch token := token.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				childName = token.Name.Local
				text.Reset()
			}
		case xml.EndElement:
			if depth == 0 {
				return request, nil
			}
			if depth == 1 {
				value := text.String()
				request.Fields.Set(childName, value)
				request.ChildNames = append(request.ChildNames, childName)
				if request.FirstChild == nil {
					request.FirstChild = &Child{Name: childName, Text: value}
				}
			}
			depth--
		case xml.CharData:
			if depth >= 1 {
				text.Write(token)
			}
		}
	}
}

// attributeName maps a namespace-resolved attribute name back to the
// name written in the document for namespace declarations, and to the
// local name otherwise.
func attributeName(name xml.Name) string {
	switch {
	case name.Space == "xmlns":
		return "xmlns:" + name.Local
	case name.Space == "" && name.Local == "xmlns":
		return "xmlns"
	default:
		return name.Local
	}
}

// Encode renders one document named tag with one child element per
// field, in field order.
func Encode(tag string, fields *fieldmap.Map) ([]byte, error) {
	return EncodeAttributes(tag, nil, fields)
}

// EncodeAttributes renders one document named tag carrying attrs as
// attributes of the outer element and children as child elements.
// Either map may be nil.
func EncodeAttributes(tag string, attrs, children *fieldmap.Map) ([]byte, error) {
	if !ValidName(tag) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, tag)
	}

	var buffer bytes.Buffer
	buffer.WriteByte('<')
	buffer.WriteString(tag)

	var escaped bytes.Buffer
	for name, value := range attrs.All() {
		if !ValidName(name) {
			return nil, fmt.Errorf("attribute %w: %q", ErrInvalidName, name)
		}
		escaped.Reset()
		if err := writeEscaped(&escaped, value); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		buffer.WriteByte(' ')
		buffer.WriteString(name)
		buffer.WriteString(`="`)
		buffer.Write(escaped.Bytes())
		buffer.WriteByte('"')
	}

	if children.Len() == 0 {
		buffer.WriteString("/>")
		return buffer.Bytes(), nil
	}
	buffer.WriteByte('>')

	for name, value := range children.All() {
		if !ValidName(name) {
			return nil, fmt.Errorf("field %w: %q", ErrInvalidName, name)
		}
		buffer.WriteByte('<')
		buffer.WriteString(name)
		buffer.WriteByte('>')
		if err := writeEscaped(&buffer, value); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		buffer.WriteString("</")
		buffer.WriteString(name)
		buffer.WriteByte('>')
	}

	buffer.WriteString("</")
	buffer.WriteString(tag)
	buffer.WriteByte('>')
	return buffer.Bytes(), nil
}

// writeEscaped appends text with markup-reserved characters replaced
// by references. Whitespace other than a plain space is written as a
// character reference so attribute normalization cannot alter it.
func writeEscaped(buffer *bytes.Buffer, text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: invalid UTF-8", ErrInvalidText)
	}
	for _, r := range text {
		if !validChar(r) {
			return fmt.Errorf("%w: %U", ErrInvalidText, r)
		}
	}
	return xml.EscapeText(buffer, []byte(text))
}

// validChar reports whether r is in the Char production of XML 1.0.
func validChar(r rune) bool {
	switch {
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// ValidName reports whether name can be used as an element or
// attribute name. Colons are not accepted since documents carry no
// namespaces, and names beginning with "xml" in any case are reserved.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	if len(name) >= 3 && strings.EqualFold(name[:3], "xml") {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if !(r == '_' || unicode.IsLetter(r)) {
				return false
			}
			continue
		}
		if !(r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
