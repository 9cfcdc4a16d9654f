// SPDX-License-Identifier: MPL-2.0

// Package manifest reads the per-package configuration document of an mcwrap
// package.
//
// The document is the package's pyproject.toml. Identity and dependency
// declarations come from the standard [project] table; mcwrap-specific
// settings live under [tool.mcpywrap]:
//
//	[project]
//	name = "my-addon"
//	version = "1.2.0"
//	dependencies = ["core-lib>=1.0", "ui-kit"]
//
//	[tool.mcpywrap]
//	project_type = "addon"   # or "map"
//	target_dir = "../dist"
//
// Reading is a pure operation: [Read] never checks whether declared
// dependencies exist. That is the dependency graph builder's job.
package manifest
