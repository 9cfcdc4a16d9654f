// SPDX-License-Identifier: MPL-2.0

// Package builder runs the mcwrap pipeline for one project: read the root
// manifest, resolve its dependencies against the installed packages, and
// merge every package into the target tree. Dev keeps the target in sync
// by feeding debounced change batches back into incremental merges.
package builder
