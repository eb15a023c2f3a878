// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"bufio"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// hunkHeaderRegex matches "@@ -old_start[,old_count] +new_start[,new_count] @@",
// with an optional trailing function-context suffix that is ignored here.
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Clean strips the two flavors of LLM noise the parser must tolerate before
// it attempts real recognition:
//
//   - Trailing fenced-code markers: everything from the first line that is
//     (or begins with) a ``` fence is dropped.
//   - Per-hunk overshoot: once a hunk's declared old_count deletion/context
//     lines and new_count addition/context lines have both been seen,
//     further "+"/"-" lines are silently dropped until the next hunk or
//     file header.
//
// Clean never rejects input; it only removes noise a downstream Parse call
// would otherwise have to tolerate line-by-line.
func Clean(text string) string {
	lines := splitLines(text)

	var out []string
	var declaredOld, declaredNew int
	var seenOld, seenNew int
	inHunk := false

	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasPrefix(strings.TrimSpace(trimmed), "```") {
			break
		}

		if m := hunkHeaderRegex.FindStringSubmatch(line); m != nil {
			declaredOld = parseCountDefault1(m[2])
			declaredNew = parseCountDefault1(m[4])
			seenOld, seenNew = 0, 0
			inHunk = true
			out = append(out, line)
			continue
		}

		if strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "diff ") {
			inHunk = false
			out = append(out, line)
			continue
		}

		if inHunk && len(line) > 0 {
			switch line[0] {
			case ' ':
				seenOld++
				seenNew++
				out = append(out, line)
				continue
			case '-':
				if seenOld < declaredOld || seenNew < declaredNew {
					seenOld++
					out = append(out, line)
				}
				continue
			case '+':
				if seenOld < declaredOld || seenNew < declaredNew {
					seenNew++
					out = append(out, line)
				}
				continue
			case '\\':
				out = append(out, line)
				continue
			default:
				inHunk = false
			}
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// parseCountDefault1 parses an optional hunk-header count, defaulting to 1
// when absent, matching the unified-diff convention for single-line ranges.
func parseCountDefault1(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return n
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Parse lexes diff text into a normalized, immutable Diff.
//
// Parse always runs Clean first, then performs a cheap structural sanity
// check with sourcegraph/go-diff against the cleaned text: that library's
// parser is not tolerant of the header/body count drift this engine exists
// to recover from, so its result is only consulted for diagnostics, never
// used to reject input the bespoke scanner below can still recognize. Real
// recognition, and the count-recompute that is the primary defense against
// LLM-emitted line-count drift, happens in the hand-rolled scanner.
func Parse(text string) (*Diff, error) {
	cleaned := Clean(text)

	if _, err := godiff.NewMultiFileDiffReader(strings.NewReader(cleaned)).ReadAllFiles(); err != nil {
		slog.Debug("structural sanity pre-check did not accept diff text; proceeding with tolerant scanner", "error", err)
	}

	return parseNormalized(cleaned)
}

// parseNormalized is the bespoke, tolerant scanner. It is the sole source
// of truth for the resulting Diff: header line counts are always
// overwritten by the true count of parsed body lines.
func parseNormalized(cleaned string) (*Diff, error) {
	var files []*FileDiff
	var current *FileDiff
	var currentHunk *Hunk
	var currentRawLines []string
	var sawAnyHeader bool

	flushHunk := func() {
		if current != nil && currentHunk != nil {
			currentHunk.OldCount = len(currentHunk.OldBlock)
			currentHunk.NewCount = len(currentHunk.NewLines)
			current.Hunks = append(current.Hunks, currentHunk)
			currentHunk = nil
		}
	}

	flushFile := func() {
		flushHunk()
		if current != nil {
			if current.Mode != ModeDelete && IsNewFile(currentRawLines) {
				current.Mode = ModeNew
			}
			files = append(files, current)
		}
		current = nil
		currentRawLines = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(cleaned))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "diff "):
			flushFile()
			current = &FileDiff{}
			sawAnyHeader = true

		case strings.HasPrefix(line, "--- "):
			flushHunk()
			if current == nil {
				current = &FileDiff{}
			}
			current.SourcePath = cleanDiffPath(line[4:])
			sawAnyHeader = true

		case strings.HasPrefix(line, "+++ "):
			if current == nil {
				current = &FileDiff{}
			}
			current.TargetPath = cleanDiffPath(line[4:])
			if current.TargetPath == "/dev/null" {
				current.Mode = ModeDelete
			}
			sawAnyHeader = true

		case hunkHeaderRegex.MatchString(line):
			flushHunk()
			if current == nil {
				current = &FileDiff{}
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			h.Number = len(current.Hunks) + 1
			currentHunk = h
			sawAnyHeader = true

		case currentHunk != nil && len(line) > 0 && (line[0] == ' ' || line[0] == '+' || line[0] == '-'):
			switch line[0] {
			case ' ':
				currentHunk.OldBlock = append(currentHunk.OldBlock, line[1:])
				currentHunk.NewLines = append(currentHunk.NewLines, line[1:])
			case '-':
				currentHunk.OldBlock = append(currentHunk.OldBlock, line[1:])
			case '+':
				currentHunk.NewLines = append(currentHunk.NewLines, line[1:])
			}
			currentHunk.RawBody = append(currentHunk.RawBody, line)

		case currentHunk != nil && strings.HasPrefix(line, "\\"):
			currentHunk.FinalNewlineMissing = true

		case currentHunk != nil && line == "":
			// Unprefixed blank line inside a hunk is treated as a blank
			// context line, matching patch(1)'s lenient reading.
			currentHunk.OldBlock = append(currentHunk.OldBlock, "")
			currentHunk.NewLines = append(currentHunk.NewLines, "")
			currentHunk.RawBody = append(currentHunk.RawBody, " ")

		default:
			// Any other line terminates the current hunk (a blank line
			// while a hunk is open is read as context above; a blank
			// line with no open hunk lands here), matching the rule that a
			// hunk ends at the first line that is neither a diff body
			// line nor a recognized header.
			flushHunk()
		}

		if current != nil {
			currentRawLines = append(currentRawLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Reason: "scanner error", Line: err.Error()}
	}

	flushFile()

	if !sawAnyHeader {
		return nil, &ParseError{Reason: "no recognizable diff headers found", Line: firstLine(cleaned)}
	}

	return &Diff{Files: files}, nil
}

// parseHunkHeader parses a single "@@ ... @@" line into a Hunk with only
// OldStart/NewStart populated from the header; OldCount/NewCount are
// recomputed by the caller once the body has been collected.
func parseHunkHeader(line string) (*Hunk, error) {
	m := hunkHeaderRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, &ParseError{Reason: "malformed hunk header", Line: line}
	}

	oldStart, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &ParseError{Reason: "malformed old_start", Line: line}
	}
	newStart, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, &ParseError{Reason: "malformed new_start", Line: line}
	}

	return &Hunk{
		OldStart: oldStart,
		NewStart: newStart,
	}, nil
}

// cleanDiffPath strips one leading "a/"/"b/" segment, any timestamp suffix
// from legacy diff -u output, and then iteratively strips leading "./" and
// "../" segments to stability.
func cleanDiffPath(raw string) string {
	path := strings.TrimSpace(raw)
	if idx := strings.Index(path, "\t"); idx != -1 {
		path = path[:idx]
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		path = path[2:]
	}

	for {
		switch {
		case strings.HasPrefix(path, "./"):
			path = strings.TrimPrefix(path, "./")
		case strings.HasPrefix(path, "../"):
			path = strings.TrimPrefix(path, "../")
		default:
			return path
		}
	}
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx != -1 {
		return text[:idx]
	}
	return text
}

// IsNewFile reports whether the raw lines of a single file's diff section
// (header through the end of its hunks) indicate whole-file creation,
// checking the three signals an LLM-produced diff may use: a "/dev/null"
// source path, a hunk declaring "-0,0", or an explicit "new file mode"
// marker.
func IsNewFile(fileDiffLines []string) bool {
	for _, line := range fileDiffLines {
		if strings.HasPrefix(line, "--- ") && strings.Contains(line, "/dev/null") {
			return true
		}
		if strings.HasPrefix(line, "new file mode") {
			return true
		}
		if strings.HasPrefix(line, "@@ -0,0 ") {
			return true
		}
	}
	return false
}
