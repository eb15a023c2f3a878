// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fuzzy

import "testing"

func TestLocate_ExactMatchAtApprox(t *testing.T) {
	buffer := []string{"a", "b", "c", "d", "e"}
	old := []string{"b", "c"}

	pos, ratio := Locate(buffer, old, 1)
	if pos != 1 {
		t.Errorf("pos = %d, want 1", pos)
	}
	if ratio != 1.0 {
		t.Errorf("ratio = %f, want 1.0", ratio)
	}
}

func TestLocate_WrongLineNumberStillFound(t *testing.T) {
	buffer := []string{"x", "x", "x", "func Foo() {", "\treturn 1", "}", "x", "x"}
	old := []string{"func Foo() {", "\treturn 1", "}"}

	// approx is off by three lines; the narrow anchor phase (radius 10)
	// still finds the block.
	pos, ratio := Locate(buffer, old, 0)
	if pos != 3 {
		t.Errorf("pos = %d, want 3", pos)
	}
	if ratio < 0.98 {
		t.Errorf("ratio = %f, want >= 0.98", ratio)
	}
}

func TestLocate_WhitespaceDrift(t *testing.T) {
	buffer := []string{"func Foo() {   ", "\treturn 1", "}"}
	old := []string{"func Foo() {", "\treturn 1", "}"}

	pos, ratio := Locate(buffer, old, 0)
	if pos != 0 {
		t.Errorf("pos = %d, want 0", pos)
	}
	if ratio < narrowAcceptRatio {
		t.Errorf("ratio = %f, want >= %f", ratio, narrowAcceptRatio)
	}
}

func TestLocate_EmptyOldBlockIsPureInsertion(t *testing.T) {
	buffer := []string{"a", "b", "c"}
	pos, ratio := Locate(buffer, nil, 2)
	if pos != 2 || ratio != 1.0 {
		t.Errorf("got (%d, %f), want (2, 1.0)", pos, ratio)
	}
}

func TestLocate_OldBlockLargerThanBuffer(t *testing.T) {
	buffer := []string{"a"}
	old := []string{"a", "b", "c"}
	pos, ratio := Locate(buffer, old, 0)
	if pos != 0 || ratio != 0.0 {
		t.Errorf("got (%d, %f), want (0, 0.0)", pos, ratio)
	}
}

func TestRatio_IdenticalIsOne(t *testing.T) {
	a := []string{"x", "y", "z"}
	if r := Ratio(a, a); r != 1.0 {
		t.Errorf("Ratio = %f, want 1.0", r)
	}
}

func TestRatio_EmptyBothIsOne(t *testing.T) {
	if r := Ratio(nil, nil); r != 1.0 {
		t.Errorf("Ratio(nil, nil) = %f, want 1.0", r)
	}
}
