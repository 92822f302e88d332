// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framer

import (
	"errors"
	"strings"
	"testing"
)

// feedAll feeds input in chunks of chunkSize bytes and collects every
// document delivered. It fails the test on Malformed.
func feedAll(t *testing.T, f *Framer, input string, chunkSize int) []string {
	t.Helper()
	var documents []string
	data := []byte(input)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		frame := f.Feed(data[offset:end])
		for frame.State == DocumentReady {
			documents = append(documents, string(frame.Document))
			frame = f.Feed(nil)
		}
		if frame.State == Malformed {
			t.Fatalf("chunk size %d: unexpected Malformed: %v", chunkSize, frame.Err)
		}
	}
	return documents
}

// feedUntilMalformed feeds input one byte at a time and returns the
// error of the first Malformed frame, or nil.
func feedUntilMalformed(f *Framer, input string) error {
	for i := 0; i < len(input); i++ {
		frame := f.Feed([]byte{input[i]})
		for frame.State == DocumentReady {
			frame = f.Feed(nil)
		}
		if frame.State == Malformed {
			return frame.Err
		}
	}
	return nil
}

func TestSingleDocumentAllAtOnce(t *testing.T) {
	f := New()
	frame := f.Feed([]byte(`<self mute="true"></self>`))
	if frame.State != DocumentReady {
		t.Fatalf("state: got %v, want document-ready (err %v)", frame.State, frame.Err)
	}
	if string(frame.Document) != `<self mute="true"></self>` {
		t.Errorf("document: got %q", frame.Document)
	}
	if f.Pending() {
		t.Error("framer still pending after the only document")
	}
}

func TestChunkingInvariance(t *testing.T) {
	inputs := []string{
		`<self mute="true"></self>`,
		`<self><reqid>17</reqid><command>connect host port 1 as me</command></self>`,
		"<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<!-- greeting -->\n<url><href>mumble://h/a&amp;b</href></url>",
		`<focus/>`,
		`<x a='1' b = "2"><![CDATA[ </x> <not-a-tag> ]]><y/>text&#x41;&#65;</x>`,
		"<!DOCTYPE self [ <!ENTITY e \"]\"> ]>\n<self/>",
		`<a><?pi data ? still data?><b>é</b></a>`,
	}
	for _, input := range inputs {
		whole := feedAll(t, New(), input, len(input))
		if len(whole) != 1 {
			t.Fatalf("%q: all-at-once produced %d documents", input, len(whole))
		}
		for _, chunkSize := range []int{1, 2, 3, 7} {
			chunked := feedAll(t, New(), input, chunkSize)
			if len(chunked) != 1 || chunked[0] != whole[0] {
				t.Errorf("%q: chunk size %d produced %q, want %q", input, chunkSize, chunked, whole)
			}
		}
	}
}

func TestNeedMoreMidDocument(t *testing.T) {
	f := New()
	for _, part := range []string{"<se", "lf m", `ute="tr`, `ue"><`, "/sel"} {
		frame := f.Feed([]byte(part))
		if frame.State != NeedMore {
			t.Fatalf("after %q: got %v (%v), want need-more", part, frame.State, frame.Err)
		}
	}
	if !f.Pending() {
		t.Error("expected Pending mid-document")
	}
	frame := f.Feed([]byte("f>"))
	if frame.State != DocumentReady {
		t.Fatalf("final chunk: got %v", frame.State)
	}
	if string(frame.Document) != `<self mute="true"></self>` {
		t.Errorf("document: got %q", frame.Document)
	}
}

func TestMultipleDocumentsInOneChunk(t *testing.T) {
	f := New()
	input := "<focus/>\n  <self mute=\"1\"/>\r\n<bogus></bogus><partial"
	documents := feedAll(t, f, input, len(input))
	want := []string{"<focus/>", `<self mute="1"/>`, "<bogus></bogus>"}
	if len(documents) != len(want) {
		t.Fatalf("got %d documents %q, want %d", len(documents), documents, len(want))
	}
	for i := range want {
		if documents[i] != want[i] {
			t.Errorf("document %d: got %q, want %q", i, documents[i], want[i])
		}
	}
	if !f.Pending() {
		t.Error("trailing partial document should leave the framer pending")
	}
}

func TestWhitespaceBetweenDocumentsIsDropped(t *testing.T) {
	f := New()
	if frame := f.Feed([]byte("\n\n   \t")); frame.State != NeedMore {
		t.Fatalf("whitespace: got %v", frame.State)
	}
	if f.Pending() || f.Buffered() != 0 {
		t.Errorf("whitespace retained: pending=%v buffered=%d", f.Pending(), f.Buffered())
	}
}

func TestMalformedInputs(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"mismatched end tag", `<self></other>`},
		{"mismatched nested", `<self><mute>true</self>`},
		{"end tag first", `</self>`},
		{"text before root", `hello<self/>`},
		{"unquoted attribute", `<self mute=true/>`},
		{"attribute without value", `<self mute/>`},
		{"no space between attributes", `<self a="1"b="2"/>`},
		{"lt in attribute", `<self a="<"/>`},
		{"unknown entity", `<self>&nbsp;</self>`},
		{"bad numeric reference", `<self>&#0;</self>`},
		{"empty entity", `<self>&;</self>`},
		{"control character", "<self>\x01</self>"},
		{"double dash in comment", `<self><!-- a -- b --></self>`},
		{"bad declaration", `<!ELEMENT self ANY>`},
		{"cdata outside root", `<![CDATA[x]]>`},
		{"doctype inside root", `<self><!DOCTYPE self></self>`},
		{"slash without close", `<self/ >`},
		{"digit name start", `<1self/>`},
		{"bad pi target", `<? ?><self/>`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := feedUntilMalformed(New(), test.input)
			if err == nil {
				t.Fatalf("%q: expected Malformed", test.input)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error does not wrap ErrMalformed: %v", err)
			}
		})
	}
}

func TestMismatchedTagNeverReady(t *testing.T) {
	f := New()
	frame := f.Feed([]byte(`<self></other>`))
	if frame.State != Malformed {
		t.Fatalf("got %v, want malformed", frame.State)
	}
	var syntaxError *SyntaxError
	if !errors.As(frame.Err, &syntaxError) {
		t.Fatalf("expected *SyntaxError, got %T", frame.Err)
	}
	if syntaxError.Offset != int64(len(`<self></other`)) {
		t.Errorf("offset: got %d, want %d", syntaxError.Offset, len(`<self></other`))
	}
	if !strings.Contains(syntaxError.Msg, "<self>") {
		t.Errorf("message should name the open element: %q", syntaxError.Msg)
	}
}

func TestMalformedIsDetectedEarly(t *testing.T) {
	// The mismatch is reported at the '>' of the bad end tag, while the
	// rest of the document has not arrived.
	f := New()
	frame := f.Feed([]byte(`<self><a></b>`))
	if frame.State != Malformed {
		t.Fatalf("got %v, want malformed before document end", frame.State)
	}
}

func TestMalformedIsSticky(t *testing.T) {
	f := New()
	f.Feed([]byte(`</x>`))
	if frame := f.Feed([]byte(`<self/>`)); frame.State != Malformed {
		t.Fatalf("after malformed: got %v, want malformed", frame.State)
	}
	f.Reset()
	if frame := f.Feed([]byte(`<self/>`)); frame.State != DocumentReady {
		t.Fatalf("after reset: got %v, want document-ready", frame.State)
	}
}

func TestOffsetsSpanDocuments(t *testing.T) {
	f := New()
	first := "<a/>  "
	if frame := f.Feed([]byte(first)); frame.State != DocumentReady {
		t.Fatalf("first document: got %v", frame.State)
	}
	frame := f.Feed(nil)
	if frame.State != NeedMore {
		t.Fatalf("whitespace tail: got %v", frame.State)
	}
	frame = f.Feed([]byte("<b></c>"))
	var syntaxError *SyntaxError
	if !errors.As(frame.Err, &syntaxError) {
		t.Fatalf("expected *SyntaxError, got %v", frame.Err)
	}
	want := int64(len(first) + len("<b></c"))
	if syntaxError.Offset != want {
		t.Errorf("offset: got %d, want %d", syntaxError.Offset, want)
	}
}

func TestMaxDocumentSize(t *testing.T) {
	f := New(WithMaxDocumentSize(16))
	frame := f.Feed([]byte("<self>" + strings.Repeat("x", 32)))
	if frame.State != Malformed {
		t.Fatalf("got %v, want malformed", frame.State)
	}
	if !errors.Is(frame.Err, ErrDocumentTooLarge) {
		t.Errorf("expected ErrDocumentTooLarge, got %v", frame.Err)
	}

	unlimited := New(WithMaxDocumentSize(0))
	big := "<self>" + strings.Repeat("x", 2*DefaultMaxDocumentSize) + "</self>"
	if frame := unlimited.Feed([]byte(big)); frame.State != DocumentReady {
		t.Errorf("unlimited framer: got %v (%v)", frame.State, frame.Err)
	}
}

func TestExactDocumentSizeAccepted(t *testing.T) {
	document := "<self>abc</self>"
	f := New(WithMaxDocumentSize(len(document)))
	if frame := f.Feed([]byte(document)); frame.State != DocumentReady {
		t.Fatalf("document at the limit: got %v (%v)", frame.State, frame.Err)
	}
}

func TestDocumentIsCallerOwned(t *testing.T) {
	f := New()
	frame := f.Feed([]byte("<a/><b/>"))
	first := frame.Document
	f.Feed(nil)
	f.Feed([]byte("<cccccccc/>"))
	if string(first) != "<a/>" {
		t.Errorf("first document mutated to %q", first)
	}
}

func TestStateString(t *testing.T) {
	if NeedMore.String() != "need-more" || DocumentReady.String() != "document-ready" || Malformed.String() != "malformed" {
		t.Error("unexpected State strings")
	}
	if State(42).String() != "State(42)" {
		t.Errorf("unknown state: %q", State(42).String())
	}
}

func TestByteOrderMarkBeforeDocument(t *testing.T) {
	input := "\ufeff<self mute=\"true\"></self>\ufeff <focus/>"
	want := []string{`<self mute="true"></self>`, `<focus/>`}
	for _, chunkSize := range []int{1, 2, len(input)} {
		documents := feedAll(t, New(), input, chunkSize)
		if strings.Join(documents, "|") != strings.Join(want, "|") {
			t.Errorf("chunk size %d: got %q, want %q", chunkSize, documents, want)
		}
	}

	for _, bad := range []string{
		"\xef\xbb<self/>",
		"\ufeff\ufeff<self/>",
		"<self>\ufeff<x/></self>\ufeff\ufeff",
	} {
		if err := feedUntilMalformed(New(), bad); !errors.Is(err, ErrMalformed) {
			t.Errorf("%q: got %v, want ErrMalformed", bad, err)
		}
	}
}
