// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fieldmap

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMissing is returned by the coercion helpers when the requested
// field is absent.
var ErrMissing = errors.New("field not present")

// ErrCoercion is wrapped by every error that reports a field value
// which could not be converted to the type its consumer needs.
var ErrCoercion = errors.New("field coercion failed")

var (
	errNotBool       = errors.New("not a boolean")
	errMissingScheme = errors.New("missing scheme")
)

// CoercionError describes one field that failed to convert.
type CoercionError struct {
	Field string
	Value string
	Kind  string // "bool", "int", "url", ...
	Err   error
}

func (e *CoercionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("field %q: cannot use %q as %s: %v", e.Field, e.Value, e.Kind, e.Err)
	}
	return fmt.Sprintf("field %q: cannot use %q as %s", e.Field, e.Value, e.Kind)
}

// Unwrap returns ErrCoercion and the underlying parse error, so both
// errors.Is(err, ErrCoercion) and errors.As on the parse error work.
func (e *CoercionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCoercion}
	}
	return []error{ErrCoercion, e.Err}
}

// ParseBool accepts "true", "false", "1" and "0", case-insensitively
// and ignoring surrounding whitespace.
func ParseBool(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, errNotBool
}

// FormatBool renders b the way replies carry booleans on the wire.
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Bool returns the boolean value of name.
func (m *Map) Bool(name string) (bool, error) {
	text, ok := m.Get(name)
	if !ok {
		return false, ErrMissing
	}
	value, err := ParseBool(text)
	if err != nil {
		return false, &CoercionError{Field: name, Value: text, Kind: "bool", Err: err}
	}
	return value, nil
}

// Int returns the base-10 integer value of name.
func (m *Map) Int(name string) (int, error) {
	text, ok := m.Get(name)
	if !ok {
		return 0, ErrMissing
	}
	value, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, &CoercionError{Field: name, Value: text, Kind: "int", Err: err}
	}
	return value, nil
}

// URL returns the parsed URL value of name. The value must be an
// absolute URL with a scheme.
func (m *Map) URL(name string) (*url.URL, error) {
	text, ok := m.Get(name)
	if !ok {
		return nil, ErrMissing
	}
	parsed, err := ParseURL(text)
	if err != nil {
		return nil, &CoercionError{Field: name, Value: text, Kind: "url", Err: err}
	}
	return parsed, nil
}

// ParseURL parses an absolute URL. A missing scheme is an error.
func ParseURL(text string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, errMissingScheme
	}
	return parsed, nil
}
