// SPDX-License-Identifier: MPL-2.0

package locator

import (
	"context"
	"iter"
	"maps"
	"slices"

	"github.com/mcwrap/mcwrap/pkg/manifest"
)

// StaticDiscovery is an in-memory Discovery mapping package names to source
// roots. Names are normalized when listed.
type StaticDiscovery map[string]string

// ListInstalledCandidates yields one candidate per entry in name order.
func (s StaticDiscovery) ListInstalledCandidates(ctx context.Context) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		for _, name := range slices.Sorted(maps.Keys(s)) {
			if ctx.Err() != nil {
				return
			}
			c := Candidate{Name: manifest.NormalizeName(name), InstalledPath: s[name]}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// ResolveSourceRoot returns the configured root.
func (s StaticDiscovery) ResolveSourceRoot(c Candidate) (string, error) {
	return c.InstalledPath, nil
}
