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

import "testing"

func TestResultBuilder_AllSucceeded(t *testing.T) {
	rb := newResultBuilder(2)
	rb.markSucceeded(1)
	rb.markSucceeded(2)

	r := rb.build(true)
	if r.Status != StatusSuccess {
		t.Fatalf("Status = %s, want success", r.Status)
	}
	if len(r.Failed) != 0 {
		t.Fatalf("Failed = %v, want empty", r.Failed)
	}
}

func TestResultBuilder_MixedIsPartialWhenWritten(t *testing.T) {
	rb := newResultBuilder(2)
	rb.markSucceeded(1)
	conf := 0.5
	rb.markFailed(2, &conf)

	r := rb.build(true)
	if r.Status != StatusPartial {
		t.Fatalf("Status = %s, want partial", r.Status)
	}
	if len(r.Succeeded) != 1 || r.Succeeded[0] != 1 {
		t.Fatalf("Succeeded = %v, want [1]", r.Succeeded)
	}
	if len(r.Failed) != 1 || r.Failed[0] != 2 {
		t.Fatalf("Failed = %v, want [2]", r.Failed)
	}
}

func TestResultBuilder_AllFailedIsError(t *testing.T) {
	rb := newResultBuilder(1)
	conf := 0.3
	rb.markFailed(1, &conf)

	r := rb.build(false)
	if r.Status != StatusError {
		t.Fatalf("Status = %s, want error", r.Status)
	}
	if r.Error == nil || r.Error.Type != ErrLowConfidence {
		t.Fatalf("Error = %+v, want low_confidence", r.Error)
	}
	if r.Error.Confidence == nil || *r.Error.Confidence != 0.3 {
		t.Fatalf("Error.Confidence = %v, want 0.3", r.Error.Confidence)
	}
}

func TestResultBuilder_ReclassificationAcrossStages(t *testing.T) {
	rb := newResultBuilder(1)
	conf := 0.4
	rb.markFailed(1, &conf)
	rb.markSucceeded(1)

	r := rb.build(true)
	if r.Status != StatusSuccess {
		t.Fatalf("Status = %s, want success after reclassification", r.Status)
	}
	if len(r.Failed) != 0 {
		t.Fatalf("hunk should have moved out of Failed, got %v", r.Failed)
	}
}

func TestResultBuilder_AlreadyAppliedCountsAsSuccess(t *testing.T) {
	rb := newResultBuilder(1)
	rb.markAlreadyApplied(1)

	r := rb.build(false)
	if r.Status != StatusSuccess {
		t.Fatalf("Status = %s, want success", r.Status)
	}
	if len(r.AlreadyApplied) != 1 {
		t.Fatalf("AlreadyApplied = %v, want [1]", r.AlreadyApplied)
	}
}
