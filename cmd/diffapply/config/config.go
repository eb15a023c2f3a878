// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the diffapply CLI's on-disk YAML configuration
// into a process-wide singleton, created with defaults on first run.
package config

import "time"

// DiffApplyConfig is the CLI's persisted configuration.
type DiffApplyConfig struct {
	CodebaseDir       string        `yaml:"codebase_dir"`
	ForceFuzzy        bool          `yaml:"force_fuzzy"`
	MinConfidence     float64       `yaml:"min_confidence"`
	SubprocessTimeout time.Duration `yaml:"subprocess_timeout"`
	VerifySyntax      bool          `yaml:"verify_syntax"`
	MetricsAddr       string        `yaml:"metrics_addr"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() DiffApplyConfig {
	return DiffApplyConfig{
		CodebaseDir:       ".",
		ForceFuzzy:        false,
		MinConfidence:     0.72,
		SubprocessTimeout: 10 * time.Second,
		VerifySyntax:      false,
		MetricsAddr:       ":9091",
	}
}
