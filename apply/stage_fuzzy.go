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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/aleutianai/diffapply/applied"
	"github.com/aleutianai/diffapply/diff"
	"github.com/aleutianai/diffapply/fuzzy"
)

// stageFuzzy is Stage C, the last resort for hunks Stage A and Stage B
// could not resolve (or every hunk, under Config.ForceFuzzy). It operates
// directly on fb, splicing successful hunks in place.
//
// Hunks are grouped into clusters of nearby declared positions and, within
// a cluster, applied in descending OldStart order so that splicing one
// hunk never shifts the buffer positions a not-yet-processed hunk in the
// same cluster still needs. Clusters themselves are processed in
// ascending order, each carrying forward the cumulative line-count delta
// of every prior cluster as its positional offset.
func stageFuzzy(ctx context.Context, cfg Config, fb *fileBuffer, d *diff.FileDiff, rb *resultBuilder) {
	ctx, span := startStageSpan(ctx, "stageFuzzy")
	defer span.End()

	var hunks []*diff.Hunk
	if cfg.ForceFuzzy {
		hunks = d.Hunks
	} else {
		hunks = hunksWithNumbers(d, rb.remainingFailed())
	}
	if len(hunks) == 0 {
		return
	}

	clusters := clusterHunks(hunks)
	seen := make(map[string]string)
	offset := 0

	for _, cluster := range clusters {
		offset += applyCluster(ctx, cfg, fb, cluster, rb, seen, offset)
	}
}

// hunksWithNumbers returns the subset of d.Hunks whose Number is in keep,
// in original order.
func hunksWithNumbers(d *diff.FileDiff, keep []int) []*diff.Hunk {
	wanted := make(map[int]bool, len(keep))
	for _, n := range keep {
		wanted[n] = true
	}
	var out []*diff.Hunk
	for _, h := range d.Hunks {
		if wanted[h.Number] {
			out = append(out, h)
		}
	}
	return out
}

// clusterHunks groups hunks (sorted by OldStart) into runs where
// consecutive hunks are within ClusterRadius lines of each other.
func clusterHunks(hunks []*diff.Hunk) [][]*diff.Hunk {
	sorted := append([]*diff.Hunk{}, hunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OldStart < sorted[j].OldStart })

	var clusters [][]*diff.Hunk
	for _, h := range sorted {
		if len(clusters) > 0 {
			last := clusters[len(clusters)-1]
			lastHunk := last[len(last)-1]
			if h.OldStart-(lastHunk.OldStart+lastHunk.OldCount) <= ClusterRadius {
				clusters[len(clusters)-1] = append(last, h)
				continue
			}
		}
		clusters = append(clusters, []*diff.Hunk{h})
	}
	return clusters
}

// applyCluster resolves every hunk in cluster against fb, in descending
// OldStart order, and returns the cluster's total line-count delta for
// the caller to fold into the next cluster's offset.
func applyCluster(ctx context.Context, cfg Config, fb *fileBuffer, cluster []*diff.Hunk, rb *resultBuilder, seen map[string]string, offset int) int {
	ordered := append([]*diff.Hunk{}, cluster...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].OldStart > ordered[j].OldStart })

	delta := 0
	for _, h := range ordered {
		approx := clampIndex(h.OldStart-1+offset, len(fb.lines))
		delta += applyHunk(ctx, cfg, fb, h, approx, rb, seen)
	}
	return delta
}

// applyHunk resolves a single hunk against fb at approximate position
// approx, recording its outcome on rb and returning the line-count delta
// its splice (if any) introduced.
func applyHunk(ctx context.Context, cfg Config, fb *fileBuffer, h *diff.Hunk, approx int, rb *resultBuilder, seen map[string]string) int {
	key := hunkContentHash(h)
	if outcome, ok := seen[key]; ok && outcome == "succeeded" {
		// An earlier, content-identical hunk already spliced this exact
		// change in; a duplicated/reordered repeat of it has nothing
		// left to do.
		rb.markAlreadyApplied(h.Number)
		recordStageOutcome(ctx, "fuzzy", "already_applied")
		return 0
	}

	if applied.IsApplied(fb.lines, h.NewLines, h.OldBlock, approx) {
		rb.markAlreadyApplied(h.Number)
		recordStageOutcome(ctx, "fuzzy", "already_applied")
		seen[key] = "already_applied"
		return 0
	}

	pos, confidence := strictLocate(fb.lines, h.OldBlock, approx)
	if pos < 0 {
		pos, confidence = fuzzy.Locate(fb.lines, h.OldBlock, approx)
	}
	recordConfidence(ctx, confidence)

	if confidence < cfg.resolvedMinConfidence() {
		c := confidence
		rb.markFailed(h.Number, &c)
		recordStageOutcome(ctx, "fuzzy", "failed")
		seen[key] = "failed"
		return 0
	}

	if applied.IsApplied(fb.lines, h.NewLines, h.OldBlock, pos) {
		rb.markAlreadyApplied(h.Number)
		recordStageOutcome(ctx, "fuzzy", "already_applied")
		seen[key] = "already_applied"
		return 0
	}

	fb.splice(pos, pos+len(h.OldBlock), h.NewLines)
	rb.markSucceeded(h.Number)
	recordStageOutcome(ctx, "fuzzy", "succeeded")
	seen[key] = "succeeded"
	return len(h.NewLines) - len(h.OldBlock)
}

// strictLocate searches for an exact (right-trim-insensitive) contiguous
// match of oldBlock in buffer, preferring the occurrence nearest approx.
// Returns (-1, 0.0) if no exact match exists anywhere.
func strictLocate(buffer, oldBlock []string, approx int) (int, float64) {
	if len(oldBlock) == 0 {
		return clampIndex(approx, len(buffer)), 1.0
	}
	maxStart := len(buffer) - len(oldBlock)
	if maxStart < 0 {
		return -1, 0.0
	}

	bestPos := -1
	bestDist := -1
	for i := 0; i <= maxStart; i++ {
		if !linesEqualTrimmedLocal(buffer[i:i+len(oldBlock)], oldBlock) {
			continue
		}
		dist := i - approx
		if dist < 0 {
			dist = -dist
		}
		if bestPos == -1 || dist < bestDist {
			bestPos = i
			bestDist = dist
		}
	}
	if bestPos == -1 {
		return -1, 0.0
	}
	return bestPos, 1.0
}

func linesEqualTrimmedLocal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.TrimRight(a[i], " \t\r") != strings.TrimRight(b[i], " \t\r") {
			return false
		}
	}
	return true
}

// hunkContentHash hashes a hunk's old/new content so duplicated or
// reordered hunks with identical net effect can be recognized.
func hunkContentHash(h *diff.Hunk) string {
	sum := sha256.New()
	for _, l := range h.OldBlock {
		sum.Write([]byte(l))
		sum.Write([]byte{0})
	}
	sum.Write([]byte{1})
	for _, l := range h.NewLines {
		sum.Write([]byte(l))
		sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil))
}

func clampIndex(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
