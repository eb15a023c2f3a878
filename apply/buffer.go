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
	"os"
	"strings"
)

// lineEnding records which line terminator a file used, so a fuzzy splice
// can write an LF or CRLF file back out unchanged except for the hunks
// actually applied. A file with mixed endings is written back with LF
// after every line.
type lineEnding int

const (
	lineEndingLF lineEnding = iota
	lineEndingCRLF
	lineEndingMixed
)

// fileBuffer is the in-memory, line-oriented view of a target file that
// Stage C reads, splices, and writes back.
//
// A fileBuffer is owned exclusively by a single Apply call for its
// duration; it is not safe for concurrent use.
type fileBuffer struct {
	lines          []string
	ending         lineEnding
	trailingNewline bool
}

// newFileBuffer reads path and detects its line ending and trailing
// newline. A missing file yields an empty buffer defaulting to LF, since
// callers only reach this path for a new-file creation.
func newFileBuffer(path string) (*fileBuffer, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &fileBuffer{ending: lineEndingLF, trailingNewline: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return parseFileBuffer(raw), nil
}

// parseFileBuffer splits raw file bytes into lines, recording the
// line-ending style and whether the file ended with a trailing newline.
func parseFileBuffer(raw []byte) *fileBuffer {
	s := string(raw)

	hasCR := strings.Contains(s, "\r\n")
	hasLoneLF := strings.Contains(strings.ReplaceAll(s, "\r\n", ""), "\n")

	fb := &fileBuffer{}
	switch {
	case hasCR && hasLoneLF:
		fb.ending = lineEndingMixed
	case hasCR:
		fb.ending = lineEndingCRLF
	default:
		fb.ending = lineEndingLF
	}

	normalized := strings.ReplaceAll(s, "\r\n", "\n")
	if normalized == "" {
		fb.trailingNewline = true
		return fb
	}

	fb.trailingNewline = strings.HasSuffix(normalized, "\n")
	normalized = strings.TrimSuffix(normalized, "\n")
	if normalized == "" {
		fb.lines = nil
	} else {
		fb.lines = strings.Split(normalized, "\n")
	}
	return fb
}

// splice replaces buffer[start:end] with newLines in place.
func (fb *fileBuffer) splice(start, end int, newLines []string) {
	tail := append([]string{}, fb.lines[end:]...)
	fb.lines = append(fb.lines[:start:start], newLines...)
	fb.lines = append(fb.lines, tail...)
}

// bytes renders the buffer back to its original line-ending style when
// that style was LF or CRLF, preserving (or omitting) the trailing newline
// exactly as it was read. A buffer read as mixed is rendered with LF
// separators; its CRLF lines are not kept.
func (fb *fileBuffer) bytes() []byte {
	sep := "\n"
	if fb.ending == lineEndingCRLF {
		sep = "\r\n"
	}

	var sb strings.Builder
	for i, l := range fb.lines {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(l)
	}
	if len(fb.lines) > 0 && fb.trailingNewline {
		sb.WriteString(sep)
	}
	return []byte(sb.String())
}

// writeFile atomically replaces path's contents with fb's rendered bytes:
// write to a sibling temp file, sync, then rename over the target.
func writeFile(path string, fb *fileBuffer) error {
	tmp, err := os.CreateTemp(dirOf(path), ".diffapply-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(fb.bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if info, statErr := os.Stat(path); statErr == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
