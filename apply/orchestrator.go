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
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aleutianai/diffapply/diff"
)

// Applicator runs the three-stage pipeline against a fixed Config. It
// holds no per-call mutable state and is safe for concurrent use across
// distinct target files; see the package doc comment for the
// same-file-concurrency caveat.
type Applicator struct {
	cfg Config
}

// NewApplicator constructs an Applicator bound to cfg.
func NewApplicator(cfg Config) *Applicator {
	return &Applicator{cfg: cfg}
}

// Apply runs the pipeline for a single target file.
func (a *Applicator) Apply(ctx context.Context, diffText, targetPath string) (*Result, error) {
	return Apply(ctx, diffText, targetPath, a.cfg)
}

// Apply parses diffText, selects the FileDiff matching targetPath, and
// runs it through Stage A (external patch), Stage B (git apply), and
// Stage C (in-process fuzzy applicator) in order, returning a Result that
// never carries a Go error for ordinary pipeline failures: parse errors,
// missing files, and low-confidence hunks are all reported through
// Result.Status and Result.Error instead. The returned error is reserved
// for conditions outside the diff-application domain entirely.
func Apply(ctx context.Context, diffText, targetPath string, cfg Config) (*Result, error) {
	start := time.Now()

	parsed, err := diff.Parse(diffText)
	if err != nil {
		return finish(ctx, start, &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrParse}}), nil
	}

	fd := selectFileDiff(parsed, targetPath)
	if fd == nil {
		return finish(ctx, start, &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrParse}}), nil
	}

	resolved := resolvePath(cfg, targetPath)
	correlationID := uuid.NewString()
	ctx = withCorrelationID(ctx, correlationID)
	ctx, span := startApplySpan(ctx, correlationID, resolved, len(fd.Hunks))
	defer span.End()

	before, _ := os.ReadFile(resolved)
	_, statErr := os.Stat(resolved)
	existed := statErr == nil

	var result *Result
	switch fd.Mode {
	case diff.ModeNew:
		result = applyWholeFileCreation(resolved, fd)
	case diff.ModeDelete:
		result = applyWholeFileDeletion(resolved, existed, fd)
	default:
		if !existed {
			result = &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrMissingFile}}
		} else {
			result = applyModification(ctx, cfg, resolved, fd)
		}
	}

	after, _ := os.ReadFile(resolved)
	result.ChangesWritten = !bytes.Equal(before, after)

	// The per-stage builders derive Status before the real before/after
	// comparison is available, so a mixed outcome that did write changes
	// needs reclassifying from error to partial here.
	if result.ChangesWritten && len(result.Succeeded) > 0 && len(result.Failed) > 0 {
		result.Status = StatusPartial
		result.Error = nil
	}

	if cfg.VerifySyntax && result.ChangesWritten {
		if warn := verifySyntax(resolved); warn != "" {
			result.Warnings = append(result.Warnings, warn)
		}
	}

	cleanupArtifacts(resolved)

	return finish(ctx, start, result), nil
}

func finish(ctx context.Context, start time.Time, result *Result) *Result {
	recordApplyMetrics(ctx, string(result.Status), time.Since(start))
	return result
}

// applyModification drives Stage A through Stage C for an in-place
// modification of an existing file. Every hunk starts in the failed set
// so that a stage which does not mention a hunk leaves it available for
// the next stage.
func applyModification(ctx context.Context, cfg Config, resolved string, fd *diff.FileDiff) *Result {
	rb := newResultBuilder(len(fd.Hunks))
	for _, h := range fd.Hunks {
		rb.markFailed(h.Number, nil)
	}

	if !cfg.ForceFuzzy {
		stageExternal(ctx, cfg, resolved, fd, rb)
		if len(rb.remainingFailed()) > 0 && !looksMisordered(fd) {
			stageVCS(ctx, cfg, resolved, fd, rb)
		}
	}

	if cfg.ForceFuzzy || len(rb.remainingFailed()) > 0 {
		fb, err := newFileBuffer(resolved)
		if err != nil {
			return &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrWrite}}
		}
		stageFuzzy(ctx, cfg, fb, fd, rb)
		if err := writeFile(resolved, fb); err != nil {
			return &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrWrite}}
		}
	}

	return rb.build(false)
}

// applyWholeFileCreation writes a brand-new file from the diff's single
// whole-file-creation hunk (or writes an empty file, if the diff declares
// creation with no body at all).
func applyWholeFileCreation(resolved string, fd *diff.FileDiff) *Result {
	rb := newResultBuilder(len(fd.Hunks))

	var lines []string
	trailingNewline := true
	if len(fd.Hunks) > 0 {
		h := fd.Hunks[0]
		if !h.IsWholeFileCreation() {
			slog.Debug("new-file diff's first hunk carries pre-image content", "path", resolved)
		}
		lines = h.NewLines
		trailingNewline = !h.FinalNewlineMissing
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrWrite}}
	}

	fb := &fileBuffer{lines: lines, ending: lineEndingLF, trailingNewline: trailingNewline}
	if err := writeFile(resolved, fb); err != nil {
		return &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrWrite}}
	}

	for _, h := range fd.Hunks {
		rb.markSucceeded(h.Number)
	}
	return rb.build(false)
}

// applyWholeFileDeletion removes an existing file, or treats the
// deletion as already applied if the file is already gone.
func applyWholeFileDeletion(resolved string, existed bool, fd *diff.FileDiff) *Result {
	rb := newResultBuilder(len(fd.Hunks))

	if !existed {
		for _, h := range fd.Hunks {
			rb.markAlreadyApplied(h.Number)
		}
		return rb.build(false)
	}

	if err := os.Remove(resolved); err != nil {
		return &Result{Status: StatusError, Error: &ErrorDetail{Type: ErrWrite}}
	}
	for _, h := range fd.Hunks {
		rb.markSucceeded(h.Number)
	}
	return rb.build(false)
}

// selectFileDiff picks the FileDiff within parsed that targetPath names.
// A single-file diff is used unconditionally; a multi-file diff is
// matched by basename or path suffix, falling back to the first file.
func selectFileDiff(parsed *diff.Diff, targetPath string) *diff.FileDiff {
	if len(parsed.Files) == 0 {
		return nil
	}
	if len(parsed.Files) == 1 {
		return parsed.Files[0]
	}

	base := filepath.Base(targetPath)
	for _, fd := range parsed.Files {
		p := fd.Path()
		if p != "" && (filepath.Base(p) == base || strings.HasSuffix(targetPath, p) || strings.HasSuffix(p, targetPath)) {
			return fd
		}
	}
	return parsed.Files[0]
}

// resolvePath joins targetPath against cfg.CodebaseDir unless targetPath
// is already absolute.
func resolvePath(cfg Config, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	if cfg.CodebaseDir != "" {
		return filepath.Join(cfg.CodebaseDir, targetPath)
	}
	return targetPath
}
