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

import "os"

// cleanupArtifacts removes .rej and .orig files that the external patch
// tool (Stage A) or git apply (Stage B) may leave behind next to
// resolved. It runs regardless of the pipeline's outcome, since a
// rejected hunk still leaves a .rej file even when a later stage goes on
// to resolve that same hunk successfully.
func cleanupArtifacts(resolved string) {
	for _, suffix := range []string{".rej", ".orig"} {
		_ = os.Remove(resolved + suffix)
	}
}
