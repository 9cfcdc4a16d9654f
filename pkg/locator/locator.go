// SPDX-License-Identifier: MPL-2.0

package locator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/mcwrap/mcwrap/pkg/manifest"
)

var (
	// ErrLocator is the sentinel wrapped by every LocatorError.
	ErrLocator = errors.New("locator error")

	// ErrNotFound is returned by Index.Lookup when no installed package has the name.
	ErrNotFound = errors.New("package not installed")
)

type (
	// Candidate is one installed distribution found in package metadata.
	Candidate struct {
		// Name is the normalized distribution name.
		Name string
		// Version is the installed version from the metadata, if any.
		Version string
		// MetadataDir is the *.dist-info directory the candidate was read from.
		MetadataDir string
		// InstalledPath is where a regular install places the package files.
		InstalledPath string
		// LinkRecord is the path of the editable-install record, empty for
		// regular installs.
		LinkRecord string
	}

	// Discovery enumerates installed packages and resolves their source roots.
	Discovery interface {
		// ListInstalledCandidates lazily yields installed distributions. A
		// non-nil error is reported per candidate and does not stop iteration.
		ListInstalledCandidates(ctx context.Context) iter.Seq2[Candidate, error]
		// ResolveSourceRoot returns the directory holding the candidate's
		// sources: the development directory for editable installs, the
		// installed location otherwise.
		ResolveSourceRoot(c Candidate) (string, error)
	}

	// LocatorError reports an editable-install record that exists but cannot
	// be used. Callers treat the package as not found.
	//
	//nolint:revive // LocatorError reads better at call sites than locator.Error
	LocatorError struct {
		Package string
		Record  string
		Cause   error
	}

	// Index maps package names to source roots using a Discovery. The table is
	// built on first use and kept for the lifetime of the Index, matching the
	// "one resolution per run" lifecycle of packages.
	Index struct {
		discovery Discovery

		once     sync.Once
		buildErr error
		roots    map[string]string
		versions map[string]string
		failures map[string]error
	}
)

// Error implements the error interface.
func (e *LocatorError) Error() string {
	return fmt.Sprintf("package %s: invalid install record %s: %v", e.Package, e.Record, e.Cause)
}

// Unwrap exposes ErrLocator and the underlying cause.
func (e *LocatorError) Unwrap() []error {
	return []error{ErrLocator, e.Cause}
}

// NewIndex creates an Index backed by d.
func NewIndex(d Discovery) *Index {
	return &Index{discovery: d}
}

// Lookup returns the source root for the package called name (normalized
// before lookup). It returns an error wrapping ErrNotFound when no compatible
// package is installed, or the *LocatorError recorded for that name.
func (ix *Index) Lookup(ctx context.Context, name string) (string, error) {
	if err := ix.load(ctx); err != nil {
		return "", err
	}

	name = manifest.NormalizeName(name)
	if root, ok := ix.roots[name]; ok {
		return root, nil
	}
	if err, ok := ix.failures[name]; ok {
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// InstalledVersion returns the version recorded in the installation metadata.
func (ix *Index) InstalledVersion(ctx context.Context, name string) string {
	if err := ix.load(ctx); err != nil {
		return ""
	}
	return ix.versions[manifest.NormalizeName(name)]
}

// Names returns the sorted names of all compatible installed packages.
func (ix *Index) Names(ctx context.Context) ([]string, error) {
	if err := ix.load(ctx); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(ix.roots)), nil
}

// Failures returns every candidate that could not be resolved, sorted by name.
func (ix *Index) Failures(ctx context.Context) []error {
	if err := ix.load(ctx); err != nil {
		return nil
	}
	out := make([]error, 0, len(ix.failures))
	for _, name := range slices.Sorted(maps.Keys(ix.failures)) {
		out = append(out, ix.failures[name])
	}
	return out
}

func (ix *Index) load(ctx context.Context) error {
	ix.once.Do(func() {
		ix.roots = make(map[string]string)
		ix.versions = make(map[string]string)
		ix.failures = make(map[string]error)

		for c, err := range ix.discovery.ListInstalledCandidates(ctx) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				ix.buildErr = fmt.Errorf("scan installed packages: %w", ctxErr)
				return
			}
			if err != nil {
				if c.Name != "" {
					ix.recordFailure(c.Name, err)
				}
				continue
			}
			if _, seen := ix.roots[c.Name]; seen {
				// Earlier metadata directories take precedence.
				continue
			}

			root, err := ix.discovery.ResolveSourceRoot(c)
			if err != nil {
				ix.recordFailure(c.Name, err)
				continue
			}
			if !manifest.IsCompatible(root) {
				continue
			}
			delete(ix.failures, c.Name)
			ix.roots[c.Name] = root
			ix.versions[c.Name] = c.Version
		}
	})
	return ix.buildErr
}

func (ix *Index) recordFailure(name string, err error) {
	if _, resolved := ix.roots[name]; resolved {
		return
	}
	if _, seen := ix.failures[name]; !seen {
		ix.failures[name] = err
	}
}
