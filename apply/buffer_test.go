// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileBuffer_PreservesLFAndTrailingNewline(t *testing.T) {
	fb := parseFileBuffer([]byte("a\nb\nc\n"))
	if fb.ending != lineEndingLF {
		t.Fatalf("ending = %v, want LF", fb.ending)
	}
	if !fb.trailingNewline {
		t.Fatal("expected trailing newline to be detected")
	}
	if got := string(fb.bytes()); got != "a\nb\nc\n" {
		t.Fatalf("bytes() = %q, want a\\nb\\nc\\n", got)
	}
}

func TestFileBuffer_PreservesMissingTrailingNewline(t *testing.T) {
	fb := parseFileBuffer([]byte("a\nb"))
	if fb.trailingNewline {
		t.Fatal("expected no trailing newline")
	}
	if got := string(fb.bytes()); got != "a\nb" {
		t.Fatalf("bytes() = %q, want a\\nb", got)
	}
}

func TestFileBuffer_PreservesCRLF(t *testing.T) {
	fb := parseFileBuffer([]byte("a\r\nb\r\n"))
	if fb.ending != lineEndingCRLF {
		t.Fatalf("ending = %v, want CRLF", fb.ending)
	}
	if got := string(fb.bytes()); got != "a\r\nb\r\n" {
		t.Fatalf("bytes() = %q, want a\\r\\nb\\r\\n", got)
	}
}

func TestFileBuffer_Splice(t *testing.T) {
	fb := parseFileBuffer([]byte("a\nb\nc\nd\n"))
	fb.splice(1, 3, []string{"X", "Y", "Z"})
	if got := string(fb.bytes()); got != "a\nX\nY\nZ\nd\n" {
		t.Fatalf("bytes() = %q, want a\\nX\\nY\\nZ\\nd\\n", got)
	}
}

func TestWriteFile_AtomicRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	fb := parseFileBuffer([]byte("hello\nworld\n"))
	if err := writeFile(path, fb); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	got, err := newFileBuffer(path)
	if err != nil {
		t.Fatalf("newFileBuffer: %v", err)
	}
	if !bytes.Equal(got.bytes(), fb.bytes()) {
		t.Fatalf("round-tripped bytes = %q, want %q", got.bytes(), fb.bytes())
	}
}

func TestNewFileBuffer_MissingFile(t *testing.T) {
	fb, err := newFileBuffer(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("newFileBuffer: %v", err)
	}
	if len(fb.lines) != 0 {
		t.Fatalf("lines = %v, want empty", fb.lines)
	}
}
