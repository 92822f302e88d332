// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
)

// parseFieldsFile reads a JSONC object of scalar values into a field
// map. Key order in the file is kept, so the request's child elements
// appear in the order they were written.
func parseFieldsFile(data []byte) (*fieldmap.Map, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("fields file: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("fields file: top level must be an object")
	}

	fields := fieldmap.New()
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("fields file: %w", err)
		}
		name := token.(string)

		token, err = decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("fields file: field %q: %w", name, err)
		}
		var value string
		switch v := token.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = fieldmap.FormatBool(v)
		default:
			return nil, fmt.Errorf("fields file: field %q must be a string, number, or boolean", name)
		}
		fields.Set(name, value)
	}

	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("fields file: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, errors.New("fields file: trailing data after object")
	}
	return fields, nil
}

// parsePairs turns "name=value" arguments into fields on m. The value
// may be empty; the name may not.
func parsePairs(m *fieldmap.Map, pairs []string) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("expected name=value, got %q", pair)
		}
		m.Set(name, value)
	}
	return nil
}
