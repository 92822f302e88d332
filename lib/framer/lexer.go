// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framer

import (
	"fmt"
	"strconv"
	"strings"
)

// lexState is the lexer's position within markup syntax.
type lexState int

const (
	stateOutside        lexState = iota // before the outer element: whitespace, '<'
	stateOpen                           // after '<'
	stateBang                           // after "<!", matching a declaration keyword
	stateComment                        // inside <!-- -->
	stateProcInst                       // inside <? ?>
	stateDoctype                        // inside <!DOCTYPE >
	stateCData                          // inside <![CDATA[ ]]>
	stateStartName                      // element name of a start tag
	stateTag                            // inside a start tag, between attributes
	stateAttrName                       // attribute name
	stateAttrAfterName                  // between attribute name and '='
	stateAttrEquals                     // between '=' and the opening quote
	stateAttrValue                      // quoted attribute value
	stateAttrAfterValue                 // right after the closing quote
	stateEmptyClose                     // after '/' in a start tag
	stateEndStart                       // after "</"
	stateEndName                        // element name of an end tag
	stateEndTrailing                    // whitespace after an end tag name
	stateContent                        // character data inside an element
	stateEntity                         // after '&', up to ';'
)

// maxEntityLength bounds an entity reference between '&' and ';'.
const maxEntityLength = 16

// stepResult is what one byte did to the lexer.
type stepResult struct {
	begin    bool // this byte starts a document
	complete bool // this byte closed the outer element
	err      error
}

type lexer struct {
	state lexState
	stack []string

	begun       bool // first markup byte of the document seen
	bom         int  // bytes of a leading byte order mark consumed
	rootStarted bool
	doctypeSeen bool

	name         []byte
	keyword      []byte
	entity       []byte
	entityReturn lexState
	quote        byte
	dashes       int  // run of '-' inside a comment
	brackets     int  // run of ']' in CDATA, '[' depth in DOCTYPE
	question     bool // previous byte in a processing instruction was '?'
	targetSeen   bool // processing instruction target started
}

// utf8BOM may precede a document once, before its first markup byte.
const utf8BOM = "\xef\xbb\xbf"

func (l *lexer) reset() {
	*l = lexer{
		stack:   l.stack[:0],
		name:    l.name[:0],
		keyword: l.keyword[:0],
		entity:  l.entity[:0],
	}
}

func fail(format string, args ...any) stepResult {
	return stepResult{err: fmt.Errorf(format, args...)}
}

// outer is the state to resume after a comment or processing
// instruction ends.
func (l *lexer) outer() lexState {
	if len(l.stack) > 0 {
		return stateContent
	}
	return stateOutside
}

func (l *lexer) step(c byte) stepResult {
	if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
		return fail("control character 0x%02x", c)
	}

	switch l.state {
	case stateOutside:
		if l.bom > 0 && l.bom < len(utf8BOM) {
			if c != utf8BOM[l.bom] {
				return fail("incomplete byte order mark")
			}
			l.bom++
			return stepResult{}
		}
		switch {
		case isSpace(c):
		case c == utf8BOM[0] && !l.begun && l.bom == 0:
			l.bom = 1
		case c == '<':
			l.state = stateOpen
			if !l.begun {
				l.begun = true
				return stepResult{begin: true}
			}
		default:
			return fail("character data outside the outer element")
		}

	case stateOpen:
		switch {
		case c == '/':
			if len(l.stack) == 0 {
				return fail("end tag with no open element")
			}
			l.name = l.name[:0]
			l.state = stateEndStart
		case c == '?':
			l.targetSeen = false
			l.question = false
			l.state = stateProcInst
		case c == '!':
			l.keyword = l.keyword[:0]
			l.state = stateBang
		case isNameStart(c):
			l.name = append(l.name[:0], c)
			l.state = stateStartName
		default:
			return fail("invalid character %q after '<'", c)
		}

	case stateBang:
		l.keyword = append(l.keyword, c)
		keyword := string(l.keyword)
		switch {
		case keyword == "--":
			l.dashes = 0
			l.state = stateComment
		case keyword == "[CDATA[":
			if len(l.stack) == 0 {
				return fail("CDATA section outside the outer element")
			}
			l.brackets = 0
			l.state = stateCData
		case keyword == "DOCTYPE":
			if l.rootStarted || l.doctypeSeen {
				return fail("DOCTYPE not allowed here")
			}
			l.doctypeSeen = true
			l.brackets = 0
			l.quote = 0
			l.state = stateDoctype
		case strings.HasPrefix("--", keyword),
			strings.HasPrefix("[CDATA[", keyword),
			strings.HasPrefix("DOCTYPE", keyword):
		default:
			return fail("invalid markup declaration <!%s", keyword)
		}

	case stateComment:
		if c == '-' {
			l.dashes++
			return stepResult{}
		}
		if l.dashes >= 2 {
			if c == '>' && l.dashes == 2 {
				l.state = l.outer()
				return stepResult{}
			}
			return fail("'--' inside a comment")
		}
		l.dashes = 0

	case stateProcInst:
		if !l.targetSeen {
			if !isNameStart(c) {
				return fail("invalid processing instruction target %q", c)
			}
			l.targetSeen = true
			return stepResult{}
		}
		if c == '>' && l.question {
			l.state = l.outer()
			return stepResult{}
		}
		l.question = c == '?'

	case stateDoctype:
		if l.quote != 0 {
			if c == l.quote {
				l.quote = 0
			}
			return stepResult{}
		}
		switch c {
		case '"', '\'':
			l.quote = c
		case '[':
			l.brackets++
		case ']':
			if l.brackets == 0 {
				return fail("unbalanced ']' in DOCTYPE")
			}
			l.brackets--
		case '>':
			if l.brackets == 0 {
				l.state = stateOutside
			}
		}

	case stateCData:
		if c == ']' {
			l.brackets++
			return stepResult{}
		}
		if c == '>' && l.brackets >= 2 {
			l.state = stateContent
			return stepResult{}
		}
		l.brackets = 0

	case stateStartName:
		switch {
		case isNameChar(c):
			l.name = append(l.name, c)
		case isSpace(c):
			l.openElement()
			l.state = stateTag
		case c == '>':
			l.openElement()
			l.state = stateContent
		case c == '/':
			l.openElement()
			l.state = stateEmptyClose
		default:
			return fail("invalid character %q in element name", c)
		}

	case stateTag:
		switch {
		case isSpace(c):
		case c == '>':
			l.state = stateContent
		case c == '/':
			l.state = stateEmptyClose
		case isNameStart(c):
			l.state = stateAttrName
		default:
			return fail("invalid character %q in start tag", c)
		}

	case stateAttrName:
		switch {
		case isNameChar(c):
		case isSpace(c):
			l.state = stateAttrAfterName
		case c == '=':
			l.state = stateAttrEquals
		default:
			return fail("invalid character %q in attribute name", c)
		}

	case stateAttrAfterName:
		switch {
		case isSpace(c):
		case c == '=':
			l.state = stateAttrEquals
		default:
			return fail("attribute without a value")
		}

	case stateAttrEquals:
		switch {
		case isSpace(c):
		case c == '"' || c == '\'':
			l.quote = c
			l.state = stateAttrValue
		default:
			return fail("attribute value must be quoted")
		}

	case stateAttrValue:
		switch c {
		case l.quote:
			l.state = stateAttrAfterValue
		case '<':
			return fail("'<' in attribute value")
		case '&':
			l.beginEntity(stateAttrValue)
		}

	case stateAttrAfterValue:
		switch {
		case isSpace(c):
			l.state = stateTag
		case c == '>':
			l.state = stateContent
		case c == '/':
			l.state = stateEmptyClose
		default:
			return fail("missing whitespace between attributes")
		}

	case stateEmptyClose:
		if c != '>' {
			return fail("expected '>' after '/' in tag")
		}
		return l.closeElement()

	case stateEndStart:
		if !isNameStart(c) {
			return fail("invalid character %q in end tag", c)
		}
		l.name = append(l.name, c)
		l.state = stateEndName

	case stateEndName:
		switch {
		case isNameChar(c):
			l.name = append(l.name, c)
		case isSpace(c):
			if result := l.matchEnd(); result.err != nil {
				return result
			}
			l.state = stateEndTrailing
		case c == '>':
			if result := l.matchEnd(); result.err != nil {
				return result
			}
			return l.closeElement()
		default:
			return fail("invalid character %q in end tag", c)
		}

	case stateEndTrailing:
		switch {
		case isSpace(c):
		case c == '>':
			return l.closeElement()
		default:
			return fail("invalid character %q in end tag", c)
		}

	case stateContent:
		switch c {
		case '<':
			l.state = stateOpen
		case '&':
			l.beginEntity(stateContent)
		}

	case stateEntity:
		switch {
		case c == ';':
			if !validEntity(l.entity) {
				return fail("unknown entity reference &%s;", l.entity)
			}
			l.state = l.entityReturn
		case len(l.entity) >= maxEntityLength:
			return fail("entity reference too long")
		case isNameChar(c) || c == '#':
			l.entity = append(l.entity, c)
		default:
			return fail("invalid character %q in entity reference", c)
		}
	}

	return stepResult{}
}

func (l *lexer) openElement() {
	l.stack = append(l.stack, string(l.name))
	l.rootStarted = true
}

func (l *lexer) matchEnd() stepResult {
	open := l.stack[len(l.stack)-1]
	if open != string(l.name) {
		return fail("element <%s> closed by </%s>", open, l.name)
	}
	return stepResult{}
}

func (l *lexer) closeElement() stepResult {
	l.stack = l.stack[:len(l.stack)-1]
	if len(l.stack) == 0 {
		l.state = stateOutside
		return stepResult{complete: true}
	}
	l.state = stateContent
	return stepResult{}
}

func (l *lexer) beginEntity(resume lexState) {
	l.entity = l.entity[:0]
	l.entityReturn = resume
	l.state = stateEntity
}

// validEntity accepts the five predefined entities and numeric
// character references to characters allowed in markup. Documents
// carry no DTD, so no other names can be defined.
func validEntity(name []byte) bool {
	switch string(name) {
	case "amp", "lt", "gt", "quot", "apos":
		return true
	}
	if len(name) < 2 || name[0] != '#' {
		return false
	}
	digits, base := name[1:], 10
	if digits[0] == 'x' {
		digits, base = digits[1:], 16
	}
	if len(digits) == 0 {
		return false
	}
	value, err := strconv.ParseUint(string(digits), base, 32)
	if err != nil {
		return false
	}
	return validChar(rune(value))
}

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

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// isNameStart and isNameChar treat every byte of a multi-byte UTF-8
// sequence as a name character. Exact Unicode name classes are the
// decoder's concern.
func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == ':' || c >= 0x80
}

func isNameChar(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9' || c == '-' || c == '.'
}
