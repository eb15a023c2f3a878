// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diffapply applies LLM-generated unified diffs to files on disk,
// tolerating the ways language models corrupt diff syntax: wrong line
// numbers, fuzzed context, duplicated or reordered hunks, whitespace
// drift, and diffs that have already been applied.
//
// ApplyDiff is the package's single entry point for one file; ApplyMany
// fans a batch of independent file changes out across bounded
// concurrency. Both read USER_CODEBASE_DIR and FORCE_FUZZY from the
// environment as defaults, overridable per call with Option values.
package diffapply

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aleutianai/diffapply/apply"
)

// Result is the structured outcome of applying a diff to one file.
type Result = apply.Result

// Option customizes the Config used for a single call.
type Option func(*apply.Config)

// WithCodebaseDir sets the working directory relative file paths resolve
// against and that Stage A/B subprocess tools run in.
func WithCodebaseDir(dir string) Option {
	return func(c *apply.Config) { c.CodebaseDir = dir }
}

// WithForceFuzzy skips Stage A and Stage B, running only the in-process
// fuzzy applicator.
func WithForceFuzzy(v bool) Option {
	return func(c *apply.Config) { c.ForceFuzzy = v }
}

// WithMinConfidence overrides the fuzzy-locator confidence floor.
func WithMinConfidence(v float64) Option {
	return func(c *apply.Config) { c.MinConfidence = v }
}

// WithSubprocessTimeout bounds each Stage A/B tool invocation.
func WithSubprocessTimeout(d time.Duration) Option {
	return func(c *apply.Config) { c.SubprocessTimeout = d }
}

// WithVerifySyntax enables the optional post-apply tree-sitter syntax
// sanity check.
func WithVerifySyntax(v bool) Option {
	return func(c *apply.Config) { c.VerifySyntax = v }
}

// callGroup collapses concurrent ApplyDiff calls racing on the same
// resolved target path into a single pipeline run, so a caller retrying
// on a goroutine-per-request basis can never race two stage pipelines
// against the same file.
var callGroup singleflight.Group

// ApplyDiff applies diffText to targetPath and returns a structured
// Result. A returned error is reserved for conditions outside the
// diff-application domain; apply.Apply does not check ctx for
// cancellation and always returns a nil error. Ordinary pipeline
// outcomes, including parse failures and unresolvable hunks, are
// reported via Result.Status and Result.Error.
func ApplyDiff(ctx context.Context, diffText, targetPath string, opts ...Option) (*Result, error) {
	cfg := configFromEnv()
	for _, opt := range opts {
		opt(&cfg)
	}

	key := singleflightKey(cfg, targetPath)
	v, err, _ := callGroup.Do(key, func() (interface{}, error) {
		return apply.Apply(ctx, diffText, targetPath, cfg)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// FileChange is one unit of work for ApplyMany.
type FileChange struct {
	DiffText   string
	TargetPath string
}

// ApplyMany applies a batch of independent file changes concurrently,
// bounded by concurrency (a non-positive value means unbounded). The
// first non-pipeline error cancels the remaining work; per-file pipeline
// outcomes are never treated as errors here, matching ApplyDiff.
func ApplyMany(ctx context.Context, changes []FileChange, concurrency int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(changes))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i, change := range changes {
		i, change := i, change
		g.Go(func() error {
			r, err := ApplyDiff(gctx, change.DiffText, change.TargetPath, opts...)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// configFromEnv builds the default Config from USER_CODEBASE_DIR and
// FORCE_FUZZY, matching the teacher's environment-first configuration
// convention.
func configFromEnv() apply.Config {
	cfg := apply.Config{CodebaseDir: os.Getenv("USER_CODEBASE_DIR")}
	if v, err := strconv.ParseBool(os.Getenv("FORCE_FUZZY")); err == nil {
		cfg.ForceFuzzy = v
	}
	return cfg
}

// singleflightKey resolves targetPath to the path the pipeline will
// actually operate on (joined with CodebaseDir when relative, the same
// rule apply uses), so two relative paths that resolve to the same file
// collapse into the same singleflight call.
func singleflightKey(cfg apply.Config, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	if cfg.CodebaseDir != "" {
		return filepath.Join(cfg.CodebaseDir, targetPath)
	}
	return targetPath
}
