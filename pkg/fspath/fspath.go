// SPDX-License-Identifier: MPL-2.0

// Package fspath holds the path containment rules shared by the merge engine,
// the watcher and the builder. All functions operate on cleaned OS paths and
// never touch the filesystem.
package fspath

import (
	"path/filepath"
	"strings"
)

// Rel returns child relative to parent when child is parent or lies under
// it. A sibling whose name merely starts with ".." is still inside.
func Rel(parent, child string) (string, bool) {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// Within reports whether child is parent or lies under it.
func Within(parent, child string) bool {
	_, ok := Rel(parent, child)
	return ok
}

// Innermost returns the longest root containing path and path relative to it.
func Innermost(roots []string, path string) (root, rel string, ok bool) {
	for _, r := range roots {
		candidate, inside := Rel(r, path)
		if !inside {
			continue
		}
		if !ok || len(r) > len(root) {
			root, rel, ok = r, candidate, true
		}
	}
	return root, rel, ok
}
