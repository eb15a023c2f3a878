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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/aleutianai/diffapply/cmd/diffapply/config"
)

var (
	flagCodebaseDir  string
	flagForceFuzzy   bool
	flagVerifySyntax bool
)

var rootCmd = &cobra.Command{
	Use:   "diffapply",
	Short: "Apply LLM-generated unified diffs to files on disk",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := appconfig.Load(); err != nil {
			return err
		}
		if flagCodebaseDir == "" {
			flagCodebaseDir = appconfig.Global.CodebaseDir
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagCodebaseDir, "codebase-dir", "", "working directory for resolving relative target paths")
	rootCmd.PersistentFlags().BoolVar(&flagForceFuzzy, "force-fuzzy", false, "skip the external patch/git-apply stages and use only the fuzzy applicator")
	rootCmd.PersistentFlags().BoolVar(&flagVerifySyntax, "verify-syntax", false, "run a best-effort post-apply syntax check")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
}
