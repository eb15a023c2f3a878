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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aleutianai/diffapply"
)

var applyCmd = &cobra.Command{
	Use:   "apply <diff-file> <target-path>",
	Short: "Apply a unified diff to a single file",
	Args:  cobra.ExactArgs(2),
	RunE:  runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	diffPath, targetPath := args[0], args[1]

	diffText, err := readDiffInput(diffPath)
	if err != nil {
		return fmt.Errorf("reading diff input: %w", err)
	}

	opts := []diffapply.Option{
		diffapply.WithCodebaseDir(flagCodebaseDir),
		diffapply.WithForceFuzzy(flagForceFuzzy),
		diffapply.WithVerifySyntax(flagVerifySyntax),
	}

	result, err := diffapply.ApplyDiff(cmd.Context(), diffText, targetPath, opts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if result.Status == "error" {
		os.Exit(1)
	}
	return nil
}

// readDiffInput reads diffPath's contents, or stdin when diffPath is "-".
func readDiffInput(diffPath string) (string, error) {
	if diffPath == "-" {
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	}
	b, err := os.ReadFile(diffPath)
	return string(b), err
}
