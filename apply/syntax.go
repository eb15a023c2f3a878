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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// verifySyntax runs a best-effort tree-sitter parse of resolved and
// returns a human-readable warning if the resulting tree contains a
// parse error.
//
// Unlike the teacher's pre-commit syntax gate, this check runs after a
// splice has already been written and only ever produces a warning: a
// hunk this engine successfully located and applied is never reverted or
// marked failed because of what a best-effort grammar thinks of the
// result, since tree-sitter's error recovery is itself heuristic and an
// unsupported extension must not be mistaken for a defect.
func verifySyntax(resolved string) string {
	lang := languageFor(resolved)
	if lang == nil {
		return ""
	}

	src, err := os.ReadFile(resolved)
	if err != nil {
		return ""
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return ""
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return "post-apply syntax check: " + filepath.Base(resolved) + " contains a parse error"
	}
	return ""
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".js", ".jsx":
		return javascript.GetLanguage()
	case ".ts", ".tsx":
		return typescript.GetLanguage()
	default:
		return nil
	}
}
