// SPDX-License-Identifier: MPL-2.0

// Package locator finds locally installed mcwrap packages.
//
// Discovery is a purely local metadata lookup: [SitePackages] scans Python
// package-installation metadata (*.dist-info directories) and, for editable
// installs, follows the direct_url.json record back to the live development
// directory. No network or registry access is ever performed.
//
// [Index] wraps any [Discovery] with a lazily built name → source-root table
// and keeps only candidates whose root carries an mcwrap manifest. Tests can
// use [StaticDiscovery] to describe an in-memory package set.
package locator
