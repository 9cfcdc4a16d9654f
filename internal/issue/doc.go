// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// suggestions. It can link to a catalog Issue whose Markdown guidance is
// rendered with glamour when the CLI runs verbosely.
package issue
