// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package applied

import "testing"

func TestIsApplied_ExactPostImageMatch(t *testing.T) {
	buffer := []string{"a", "new", "c"}
	old := []string{"old"}
	newLines := []string{"new"}

	if !IsApplied(buffer, newLines, old, 1) {
		t.Fatal("expected already-applied for exact post-image match")
	}
}

func TestIsApplied_StillPending(t *testing.T) {
	buffer := []string{"a", "old", "c"}
	old := []string{"old"}
	newLines := []string{"new"}

	if IsApplied(buffer, newLines, old, 1) {
		t.Fatal("expected not-applied: buffer still holds the old value")
	}
}

func TestIsApplied_PureContextHunkIsTrivial(t *testing.T) {
	buffer := []string{"a", "b", "c"}
	same := []string{"b"}

	if !IsApplied(buffer, same, same, 1) {
		t.Fatal("a pure-context hunk (no changes) should be trivially already-applied")
	}
}

func TestIsApplied_OutOfBounds(t *testing.T) {
	buffer := []string{"a"}
	newLines := []string{"x", "y"}
	old := []string{"a", "b"}

	if IsApplied(buffer, newLines, old, 0) {
		t.Fatal("expected false when newLines would overrun the buffer")
	}
}

func TestIsApplied_MultiLineChangeAllApplied(t *testing.T) {
	buffer := []string{"one", "TWO", "THREE", "four"}
	old := []string{"one", "two", "three", "four"}
	newLines := []string{"one", "TWO", "THREE", "four"}

	if !IsApplied(buffer, newLines, old, 0) {
		t.Fatal("expected already-applied when every changed line already holds its new value")
	}
}

func TestIsApplied_FuzzyBackstop(t *testing.T) {
	// The buffer differs from newLines by one extra space, so neither the
	// exact match nor the changed-line check decides; the ratio is 84/85.
	buffer := []string{"func Foo() int { return  compute(1, 2, 3) }"}
	old := []string{"func Foo() int { return compute(1, 2) }"}
	newLines := []string{"func Foo() int { return compute(1, 2, 3) }"}

	if !IsApplied(buffer, newLines, old, 0) {
		t.Fatal("expected fuzzy backstop to accept a near-exact post-image match")
	}
}
