// SPDX-License-Identifier: MPL-2.0

// Package depgraph resolves a root package's declared dependencies against the
// locally installed packages and linearizes the result into a MergeOrder.
//
// Resolution walks the declarations depth-first, keeping the names on the
// current path in an ancestor set so a cycle is reported with its full path.
// Packages reached through more than one consumer are resolved once. The final
// order comes from a topological sort of the dependency -> consumer graph, so
// the deepest dependencies come first and the root package is always last.
package depgraph
