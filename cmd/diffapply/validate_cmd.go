// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aleutianai/diffapply/diff"
)

var validateCmd = &cobra.Command{
	Use:   "validate <diff-file>",
	Short: "Parse a unified diff and report its structure without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	diffText, err := readDiffInput(args[0])
	if err != nil {
		return fmt.Errorf("reading diff input: %w", err)
	}

	parsed, err := diff.Parse(diffText)
	if err != nil {
		return fmt.Errorf("diff does not parse: %w", err)
	}

	for _, fd := range parsed.Files {
		fmt.Printf("%s  mode=%s  hunks=%d\n", fd.Path(), fd.Mode, len(fd.Hunks))
		for _, h := range fd.Hunks {
			fmt.Printf("  %s\n", h.Header())
		}
	}
	return nil
}
