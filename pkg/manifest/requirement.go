// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidRequirement is returned for requirement strings with no package name.
var ErrInvalidRequirement = errors.New("invalid requirement")

// nameSeparators matches runs of characters PEP 503 treats as equivalent.
var nameSeparators = regexp.MustCompile(`[-_.]+`)

// NormalizeName lowercases a package name and folds runs of "-", "_" and "."
// into a single "-", so "My_Addon" and "my-addon" resolve to the same package.
func NormalizeName(name string) string {
	return nameSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// ParseRequirement splits a PEP 508 requirement string such as
// "core-lib[extra]>=1.0; python_version>'3'" into its name and version hint.
// Extras and environment markers are dropped.
func ParseRequirement(raw string) (Dependency, error) {
	spec := strings.TrimSpace(raw)
	if marker := strings.IndexByte(spec, ';'); marker >= 0 {
		spec = strings.TrimSpace(spec[:marker])
	}

	end := strings.IndexAny(spec, "<>=!~[( @")
	name, rest := spec, ""
	if end >= 0 {
		name, rest = spec[:end], spec[end:]
	}
	if name = NormalizeName(name); name == "" {
		return Dependency{}, fmt.Errorf("%w: %q", ErrInvalidRequirement, raw)
	}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "[") {
		if closing := strings.IndexByte(rest, ']'); closing >= 0 {
			rest = strings.TrimSpace(rest[closing+1:])
		}
	}
	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")

	return Dependency{Name: name, VersionHint: strings.TrimSpace(rest)}, nil
}

// SatisfiedBy reports whether version meets the dependency's hint. Hints are
// advisory: an empty hint, an unparseable hint, or an unparseable version all
// report true together with ok=false so callers can tell "checked and fine"
// from "could not check".
func (d Dependency) SatisfiedBy(version string) (satisfied, ok bool) {
	if d.VersionHint == "" || version == "" {
		return true, false
	}
	// PEP 440 writes "==" and "~=" where semver constraints use "=" and "~".
	hint := strings.ReplaceAll(d.VersionHint, "==", "=")
	hint = strings.ReplaceAll(hint, "~=", "~")

	constraint, err := semver.NewConstraint(hint)
	if err != nil {
		return true, false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return true, false
	}
	return constraint.Check(v), true
}
