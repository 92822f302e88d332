// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package markup

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
)

func TestDecodeAttributesAndChildren(t *testing.T) {
	raw := []byte(`<self mute="true" deaf="0"><reqid>42</reqid><command>connect example.org port 64738 as alice</command></self>`)

	request, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if request.Command != "self" {
		t.Errorf("command: got %q, want self", request.Command)
	}
	want := fieldmap.FromPairs(
		"mute", "true",
		"deaf", "0",
		"reqid", "42",
		"command", "connect example.org port 64738 as alice",
	)
	if !request.Fields.Equal(want) {
		t.Errorf("fields: got %s, want %s", request.Fields, want)
	}
	if request.FirstChild == nil || request.FirstChild.Name != "reqid" || request.FirstChild.Text != "42" {
		t.Errorf("first child: got %+v", request.FirstChild)
	}
	if len(request.AttributeNames) != 2 || len(request.ChildNames) != 2 {
		t.Errorf("names: attributes %v, children %v", request.AttributeNames, request.ChildNames)
	}
}

func TestDecodeChildTextFlattensNestedMarkup(t *testing.T) {
	raw := []byte(`<url><href>mumble://<b>host</b>/<![CDATA[a&b]]></href></url>`)
	request, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if value, _ := request.Fields.Get("href"); value != "mumble://host/a&b" {
		t.Errorf("href: got %q", value)
	}
	if request.Fields.Has("b") {
		t.Error("grandchild element leaked into fields")
	}
}

func TestDecodeIgnoresFormattingWhitespace(t *testing.T) {
	raw := []byte("<?xml version=\"1.0\"?>\n<!-- reply -->\n<reply>\n  <succeeded>true</succeeded>\n  <reqid>9</reqid>\n</reply>\n")
	request, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if request.Command != ReplyTag {
		t.Errorf("command: got %q", request.Command)
	}
	if got := request.Fields.String(); got != "succeeded=true reqid=9" {
		t.Errorf("fields: got %q", got)
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	for _, raw := range []string{"", "   \n", `<?xml version="1.0"?>`, "<!-- nothing -->"} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("Decode(%q): expected ErrEmptyDocument, got %v", raw, err)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []string{
		`<self></other>`,
		`<self mute=true></self>`,
		`<self>&nbsp;</self>`,
		`<self><mute>true</self>`,
		`<self>`,
	}
	for _, raw := range tests {
		_, err := Decode([]byte(raw))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q): expected ErrMalformed, got %v", raw, err)
			continue
		}
		var decodeError *DecodeError
		if !errors.As(err, &decodeError) {
			t.Errorf("Decode(%q): expected *DecodeError, got %T", raw, err)
		}
	}
}

func TestEncodeReply(t *testing.T) {
	data, err := Encode(ReplyTag, fieldmap.FromPairs("succeeded", "true"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != "<reply><succeeded>true</succeeded></reply>" {
		t.Errorf("got %s", data)
	}
}

func TestEncodeNoFieldsSelfCloses(t *testing.T) {
	data, err := Encode("focus", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(data) != "<focus/>" {
		t.Errorf("got %s", data)
	}
}

func TestEncodeAttributes(t *testing.T) {
	data, err := EncodeAttributes("self", fieldmap.FromPairs("mute", `"on" & <off>`), fieldmap.FromPairs("reqid", "1"))
	if err != nil {
		t.Fatalf("EncodeAttributes: %v", err)
	}
	request, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s): %v", data, err)
	}
	if value, _ := request.Fields.Get("mute"); value != `"on" & <off>` {
		t.Errorf("attribute round trip: got %q from %s", value, data)
	}
	if request.AttributeNames[0] != "mute" || request.ChildNames[0] != "reqid" {
		t.Errorf("placement: attributes %v children %v", request.AttributeNames, request.ChildNames)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		tag    string
		fields *fieldmap.Map
	}{
		{"plain", "self", fieldmap.FromPairs("mute", "true", "reqid", "abc-123")},
		{"reserved characters", "url", fieldmap.FromPairs("href", `mumble://a&b<c>"d'e`)},
		{"whitespace preserved", "self", fieldmap.FromPairs("command", "  connect\r\nhost\tport  ")},
		{"unicode", "createchannel", fieldmap.FromPairs("name", "Sprechzimmer ✈ 東京")},
		{"empty value", "self", fieldmap.FromPairs("note", "")},
		{"no fields", "focus", fieldmap.New()},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := Encode(test.tag, test.fields)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			request, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode(%s): %v", data, err)
			}
			if request.Command != test.tag {
				t.Errorf("tag: got %q, want %q", request.Command, test.tag)
			}
			if !request.Fields.Equal(test.fields) {
				t.Errorf("fields: got %q, want %q (wire %s)", request.Fields, test.fields, data)
			}
		})
	}
}

func TestEncodeRejectsInvalidNames(t *testing.T) {
	if _, err := Encode("1self", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("tag starting with digit: got %v", err)
	}
	if _, err := Encode("self", fieldmap.FromPairs("bad name", "x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("field with space: got %v", err)
	}
	if _, err := Encode("self", fieldmap.FromPairs("xmlstuff", "x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("reserved prefix: got %v", err)
	}
	if _, err := EncodeAttributes("self", fieldmap.FromPairs("a:b", "x"), nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("attribute with colon: got %v", err)
	}
}

func TestEncodeRejectsInvalidText(t *testing.T) {
	if _, err := Encode("self", fieldmap.FromPairs("note", "bell\x07")); !errors.Is(err, ErrInvalidText) {
		t.Errorf("control character: got %v", err)
	}
	if _, err := Encode("self", fieldmap.FromPairs("note", "\xff\xfe")); !errors.Is(err, ErrInvalidText) {
		t.Errorf("invalid UTF-8: got %v", err)
	}
}

func TestValidName(t *testing.T) {
	valid := []string{"self", "reqid", "toggle-mute", "_x", "a.b", "Zimmer2"}
	invalid := []string{"", "2x", "-x", ".x", "a b", "a:b", "XMLish", "a/b"}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("ValidName(%q) = false, want true", name)
		}
	}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("ValidName(%q) = true, want false", name)
		}
	}
}

func TestDecodeDeclaredEncoding(t *testing.T) {
	raw := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><self><command>createchannel Caf\xe9</command></self>")
	request, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if command, _ := request.Fields.Get("command"); command != "createchannel Café" {
		t.Errorf("command: got %q", command)
	}

	_, err = Decode([]byte(`<?xml version="1.0" encoding="no-such-charset"?><self/>`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("unknown encoding: got %v, want ErrMalformed", err)
	}
}
