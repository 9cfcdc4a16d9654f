// SPDX-License-Identifier: MPL-2.0

// Package merge layers the file trees of resolved packages into one target
// tree.
//
// A merge pass first builds a Plan: every package in the merge order becomes
// one or more layers (behavior pack, resource pack, or the whole world tree of
// a map), and every file in a layer becomes a contribution to a target path.
// The Plan is then applied. A target path with one contribution is copied
// verbatim. A path with several contributions is combined with the strategy
// the Policy assigns to it: last-writer-wins copy, semantic JSON merge, or
// key/value union. Files are only rewritten when their bytes change, so
// applying the same Plan twice leaves the target untouched.
//
// MergePaths re-applies only the target paths affected by a set of changed
// source files, which is what the project watcher uses after a debounce.
package merge
