// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package applied decides whether a hunk's net effect is already present
// in a file buffer, so the three-stage applicator can distinguish a no-op
// from an outright failure to locate the hunk.
package applied

import (
	"strings"

	"github.com/aleutianai/diffapply/fuzzy"
)

// fuzzyBackstopRatio is the similarity threshold at which a non-exact
// match is still accepted as "already applied". It is set very high
// (compared to the fuzzy locator's acceptance threshold) because a false
// positive here silently discards a real change.
const fuzzyBackstopRatio = 0.98

// IsApplied decides whether newLines (the hunk's post-image) is already
// present in buffer starting at pos, given oldLines (the hunk's
// pre-image) for comparison.
//
// The detector is intentionally biased toward exact matching of the
// post-image: fuzzy matches are only accepted at a very high threshold to
// avoid mistaking similar-looking-but-different code for an applied
// change.
func IsApplied(buffer []string, newLines []string, oldLines []string, pos int) bool {
	if len(newLines) > len(buffer)-pos {
		return false
	}

	window := buffer[pos : pos+len(newLines)]

	if linesEqualTrimmed(window, newLines) {
		return true
	}

	changes := changeSet(oldLines, newLines)
	if len(changes) == 0 {
		// Pure context hunk: nothing to apply, so it's trivially
		// already in whatever state it is in.
		return true
	}

	done, pending := allChangesApplied(window, changes)
	if done {
		return true
	}
	if pending {
		// A changed line still holds its pre-image value: the change is
		// not here yet, however similar the window looks overall.
		return false
	}

	return fuzzy.Ratio(window, newLines) >= fuzzyBackstopRatio
}

// changedPair is a single (index, old, new) triple where oldLines[i] and
// newLines[i] differ by right-trim comparison.
type changedPair struct {
	index int
	old   string
	new   string
}

// changeSet pairs up oldLines and newLines index-by-index (as a hunk's
// OldBlock and NewLines are positionally aligned for context lines, with
// changed indices representing a delete+add at that position) and
// returns only the indices where the two differ.
//
// oldLines and newLines are not necessarily the same length; comparison
// runs over the shorter of the two, which is sufficient to find any
// change within the overlap the caller cares about.
func changeSet(oldLines, newLines []string) []changedPair {
	n := len(oldLines)
	if len(newLines) < n {
		n = len(newLines)
	}

	var changes []changedPair
	for i := 0; i < n; i++ {
		o := strings.TrimRight(oldLines[i], " \t\r")
		nw := strings.TrimRight(newLines[i], " \t\r")
		if o != nw {
			changes = append(changes, changedPair{index: i, old: oldLines[i], new: newLines[i]})
		}
	}
	return changes
}

// allChangesApplied checks that, for every changed index, the buffer
// window already holds the new value (done). If any changed index instead
// still holds the old value, the change is pending. When neither is true
// the outcome is undetermined and both results are false.
func allChangesApplied(window []string, changes []changedPair) (done, pending bool) {
	done = true
	for _, c := range changes {
		if c.index >= len(window) {
			done = false
			continue
		}
		got := strings.TrimRight(window[c.index], " \t\r")
		want := strings.TrimRight(c.new, " \t\r")
		if got == want {
			continue
		}
		old := strings.TrimRight(c.old, " \t\r")
		if got == old {
			return false, true
		}
		// Neither old nor new: treat as not-yet-determined rather
		// than asserting applied, so the caller falls through to the
		// fuzzy backstop unless another index is pending.
		done = false
	}
	return done, false
}

func linesEqualTrimmed(a, b []string) bool {
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
