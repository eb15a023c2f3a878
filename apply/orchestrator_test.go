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

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = "--- a/greeting.txt\n" +
	"+++ b/greeting.txt\n" +
	"@@ -1,3 +1,3 @@\n" +
	" hello\n" +
	"-old world\n" +
	"+new world\n" +
	" goodbye\n"

func TestApply_ForceFuzzyModifiesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nold world\ngoodbye\n"), 0o644))

	result, err := Apply(context.Background(), sampleDiff, path, Config{ForceFuzzy: true})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status, "error=%+v", result.Error)
	assert.True(t, result.ChangesWritten)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nnew world\ngoodbye\n", string(got))
}

func TestApply_AlreadyAppliedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nnew world\ngoodbye\n"), 0o644))

	result, err := Apply(context.Background(), sampleDiff, path, Config{ForceFuzzy: true})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)
	require.Equal(t, []int{1}, result.AlreadyApplied)
	assert.False(t, result.ChangesWritten, "expected no bytes to change for an already-applied diff")
}

func TestApply_MissingFileForModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nope.txt")

	result, err := Apply(context.Background(), sampleDiff, path, Config{ForceFuzzy: true})
	require.NoError(t, err)
	require.Equal(t, StatusError, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, ErrMissingFile, result.Error.Type)
}

func TestApply_WholeFileCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "new.txt")

	creationDiff := "--- /dev/null\n" +
		"+++ b/sub/new.txt\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+line one\n" +
		"+line two\n"

	result, err := Apply(context.Background(), creationDiff, path, Config{})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(got))
}

func TestApply_WholeFileDeletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("bye\n"), 0o644))

	deletionDiff := "--- a/gone.txt\n" +
		"+++ /dev/null\n" +
		"@@ -1,1 +0,0 @@\n" +
		"-bye\n"

	result, err := Apply(context.Background(), deletionDiff, path, Config{})
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, result.Status)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected file to be removed")
}

func TestApply_ParseErrorOnGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	result, err := Apply(context.Background(), "not a diff", path, Config{})
	require.NoError(t, err)
	require.Equal(t, StatusError, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, ErrParse, result.Error.Type)
}
