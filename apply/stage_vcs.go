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
	"os/exec"
	"strings"

	"github.com/aleutianai/diffapply/diff"
)

// stageVCS is Stage B: git apply, attempted only for the hunks Stage A
// left in the failed set. git apply is stricter about exact context than
// patch(1) but gives an unambiguous "already applied" signal via
// --reverse --check, which this stage uses before giving up on a hunk.
func stageVCS(ctx context.Context, cfg Config, targetPath string, d *diff.FileDiff, rb *resultBuilder) {
	ctx, span := startStageSpan(ctx, "stageVCS")
	defer span.End()

	remaining := rb.remainingFailed()
	if len(remaining) == 0 {
		return
	}

	subset := hunkSubset(d, remaining)
	if len(subset.Hunks) == 0 {
		return
	}
	patchText := renderUnifiedDiff(subset)

	if checkGitApply(ctx, cfg, targetPath, patchText) {
		if err := runGitApply(ctx, cfg, targetPath, patchText); err == nil {
			for _, h := range subset.Hunks {
				rb.markSucceeded(h.Number)
			}
			return
		}
		slog.Debug("git apply --check succeeded but apply failed, deferring to fuzzy stage", "path", targetPath, "correlation_id", correlationIDFromContext(ctx))
		return
	}

	if checkGitApplyReverse(ctx, cfg, targetPath, patchText) {
		for _, h := range subset.Hunks {
			rb.markAlreadyApplied(h.Number)
		}
	}
}

// checkGitApply reports whether "git apply --check" accepts patchText
// against targetPath without modifying anything.
func checkGitApply(ctx context.Context, cfg Config, targetPath, patchText string) bool {
	out, err := runGit(ctx, cfg, patchText, "apply", "--check", "--unidiff-zero", targetPath)
	if err != nil {
		return false
	}
	return !strings.Contains(out, "patch does not apply") && !strings.Contains(out, "error:")
}

// checkGitApplyReverse reports whether patchText is already applied, by
// asking whether reversing it would succeed.
func checkGitApplyReverse(ctx context.Context, cfg Config, targetPath, patchText string) bool {
	_, err := runGit(ctx, cfg, patchText, "apply", "--check", "--reverse", "--unidiff-zero", targetPath)
	return err == nil
}

// runGitApply applies patchText for real.
func runGitApply(ctx context.Context, cfg Config, targetPath, patchText string) error {
	_, err := runGit(ctx, cfg, patchText, "apply", "--unidiff-zero", targetPath)
	return err
}

func runGit(ctx context.Context, cfg Config, patchText string, args ...string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, cfg.resolvedTimeout())
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, cfg.gitBinary(), args...)
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

// hunkSubset returns a shallow copy of d containing only the hunks whose
// Number is in keep.
func hunkSubset(d *diff.FileDiff, keep []int) *diff.FileDiff {
	wanted := make(map[int]bool, len(keep))
	for _, n := range keep {
		wanted[n] = true
	}

	out := &diff.FileDiff{
		SourcePath: d.SourcePath,
		TargetPath: d.TargetPath,
		Mode:       d.Mode,
	}
	for _, h := range d.Hunks {
		if wanted[h.Number] {
			out.Hunks = append(out.Hunks, h)
		}
	}
	return out
}
