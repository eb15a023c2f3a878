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
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aleutianai/diffapply/diff"
)

// stageExternal is Stage A: the external textual "patch" tool. It is tried
// first because it tolerates whitespace-only context drift slightly
// better than a strict byte match, at the cost of being line-number
// sensitive.
//
// stageExternal never reports hunks it did not attempt; the caller only
// consults remainingFailed() on the builder for what to hand to Stage B.
func stageExternal(ctx context.Context, cfg Config, targetPath string, d *diff.FileDiff, rb *resultBuilder) {
	ctx, span := startStageSpan(ctx, "stageExternal")
	defer span.End()

	correlationID := correlationIDFromContext(ctx)

	if looksMisordered(d) {
		slog.Debug("hunks out of declared order, skipping external patch tool", "path", targetPath, "correlation_id", correlationID)
		return
	}

	patchText := renderUnifiedDiff(d)

	if !dryRunPatch(ctx, cfg, targetPath, patchText) {
		slog.Debug("external patch dry-run rejected diff, deferring to next stage", "path", targetPath, "correlation_id", correlationID)
		return
	}

	out, err := runPatch(ctx, cfg, targetPath, patchText, false)
	if err != nil {
		slog.Debug("external patch commit failed, deferring to next stage", "path", targetPath, "correlation_id", correlationID, "error", err)
		return
	}

	classifyPatchOutput(out, rb)
}

// dryRunPatch probes whether patch(1) would accept the diff without
// writing anything, via --dry-run.
func dryRunPatch(ctx context.Context, cfg Config, targetPath, patchText string) bool {
	out, err := runPatch(ctx, cfg, targetPath, patchText, true)
	if err != nil {
		return false
	}
	return !strings.Contains(out, "FAILED")
}

// runPatch invokes patch(1) against targetPath with patchText fed on
// stdin, returning combined stdout+stderr.
func runPatch(ctx context.Context, cfg Config, targetPath, patchText string, dryRun bool) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.resolvedTimeout())
	defer cancel()

	args := []string{"--fuzz=0", "--forward", "--ignore-whitespace", "--verbose", "-r", "-", targetPath}
	if dryRun {
		args = append(args, "--dry-run")
	}

	cmd := exec.CommandContext(timeoutCtx, cfg.patchBinary(), args...)
	cmd.Stdin = strings.NewReader(patchText)
	if cfg.CodebaseDir != "" {
		cmd.Dir = cfg.CodebaseDir
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// classifyPatchOutput parses patch(1)'s per-hunk stdout lines
// ("Hunk #%d succeeded", "Hunk #%d failed", "Hunk #%d... Reversed (or
// previously applied)") and records an outcome for every hunk mentioned.
func classifyPatchOutput(output string, rb *resultBuilder) {
	for _, line := range strings.Split(output, "\n") {
		num, ok := extractHunkNumber(line)
		if !ok {
			continue
		}

		switch {
		case strings.Contains(line, "Reversed (or previously applied)"):
			rb.markAlreadyApplied(num)
		case strings.Contains(line, "succeeded"):
			rb.markSucceeded(num)
		case strings.Contains(line, "failed"):
			rb.markFailed(num, nil)
		}
	}
}

// extractHunkNumber parses "Hunk #3 succeeded at 12." style lines.
func extractHunkNumber(line string) (int, bool) {
	idx := strings.Index(line, "Hunk #")
	if idx == -1 {
		return 0, false
	}
	rest := line[idx+len("Hunk #"):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0, false
	}
	if end == -1 {
		end = len(rest)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// looksMisordered reports whether a file's hunks are not in ascending
// OldStart order, which patch(1) handles poorly; such diffs skip straight
// past Stage A and Stage B to the fuzzy applicator.
func looksMisordered(d *diff.FileDiff) bool {
	prev := -1
	for _, h := range d.Hunks {
		if h.OldStart < prev {
			return true
		}
		prev = h.OldStart
	}
	return false
}

// renderUnifiedDiff renders a FileDiff back into unified-diff text
// suitable for feeding to patch(1) or git apply, using the normalized
// (recomputed) hunk counts rather than whatever the original text declared.
func renderUnifiedDiff(d *diff.FileDiff) string {
	var sb strings.Builder

	srcPath, dstPath := d.SourcePath, d.TargetPath
	if srcPath == "" {
		srcPath = "/dev/null"
	}
	if dstPath == "" {
		dstPath = d.Path()
	}

	fmt.Fprintf(&sb, "--- %s\n", pathWithPrefix("a", srcPath))
	fmt.Fprintf(&sb, "+++ %s\n", pathWithPrefix("b", dstPath))

	for _, h := range d.Hunks {
		sb.WriteString(h.Header())
		sb.WriteByte('\n')
		for _, line := range h.RawBody {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func pathWithPrefix(prefix, path string) string {
	if path == "/dev/null" || path == "" {
		return "/dev/null"
	}
	return prefix + "/" + strings.TrimPrefix(path, prefix+"/")
}
