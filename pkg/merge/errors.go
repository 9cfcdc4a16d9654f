// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"errors"
	"fmt"
)

// ErrMergeIO is the sentinel wrapped by every MergeIOError.
var ErrMergeIO = errors.New("merge I/O error")

var errLinkedDir = errors.New("symlinked directory not followed")

// MergeIOError reports a file that could not be read, merged or written.
// The file is skipped and the pass continues.
//
//nolint:revive // MergeIOError reads better at call sites than merge.IOError
type MergeIOError struct {
	// Op is the failed step: "read", "merge", "write" or "remove".
	Op string
	// Path is the file the step failed on.
	Path string
	// Package is the contributing package, when known.
	Package string
	Cause   error
}

// Error implements the error interface.
func (e *MergeIOError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("%s %s (from %s): %v", e.Op, e.Path, e.Package, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

// Unwrap exposes ErrMergeIO and the cause.
func (e *MergeIOError) Unwrap() []error {
	return []error{ErrMergeIO, e.Cause}
}
