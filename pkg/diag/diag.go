// SPDX-License-Identifier: MPL-2.0

// Package diag defines the structured, non-fatal diagnostics that resolution
// and merge passes return to their callers for rendering.
package diag

import "fmt"

const (
	// SeverityWarning indicates a recoverable problem; the pass still completed.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal error; some output was skipped.
	SeverityError Severity = "error"
)

// Diagnostic codes.
const (
	CodeUnresolvedDependency = "unresolved_dependency"
	CodeDependencyManifest   = "dependency_manifest_invalid"
	CodeVersionMismatch      = "version_hint_mismatch"
	CodeLocatorRecord        = "install_record_invalid"
	CodeMergeIO              = "merge_io"
	CodeMergeFallback        = "merge_fallback_overwrite"
	CodeForcedOverwrite      = "forced_overwrite"
	CodeIdentityInvalid      = "pack_identity_invalid"
	CodeNameMismatch         = "package_name_mismatch"
)

type (
	// Severity represents diagnostic severity.
	Severity string

	// Diagnostic represents a structured diagnostic that is returned to callers
	// (rather than written to stderr) for consistent rendering policy.
	Diagnostic struct {
		// Severity is the diagnostic level (warning or error).
		Severity Severity
		// Code is a machine-readable identifier (e.g., "unresolved_dependency").
		Code string
		// Message is the human-readable description.
		Message string
		// Path is the file path associated with this diagnostic (optional).
		Path string
		// Cause is the underlying error (optional, for programmatic inspection).
		Cause error
	}
)

// Warning builds a warning diagnostic from cause.
func Warning(code, path string, cause error) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Code: code, Message: cause.Error(), Path: path, Cause: cause}
}

// Error builds an error-severity diagnostic from cause.
func Error(code, path string, cause error) Diagnostic {
	return Diagnostic{Severity: SeverityError, Code: code, Message: cause.Error(), Path: path, Cause: cause}
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if d.Path == "" {
		return fmt.Sprintf("%s [%s] %s", d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s (%s)", d.Severity, d.Code, d.Message, d.Path)
}

// Count returns the number of diagnostics at severity s.
func Count(ds []Diagnostic, s Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == s {
			n++
		}
	}
	return n
}
