// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"maps"
	"path"
	"path/filepath"
	"slices"

	"github.com/mcwrap/mcwrap/pkg/fspath"
	"github.com/mcwrap/mcwrap/pkg/manifest"
)

type (
	// Plan maps every target path to the source files that contribute to it,
	// in merge order. A Plan is owned by one merge worker and is not safe for
	// concurrent use.
	Plan struct {
		// Target is the absolute target root.
		Target      string
		ProjectType manifest.ProjectType
		Layers      []Layer

		policy  *Policy
		managed []string
		entries map[string][]contribution
	}

	contribution struct {
		layer    int
		source   string
		strategy Strategy
	}
)

// Targets returns every planned target path (slash separated), sorted.
func (p *Plan) Targets() []string {
	return slices.Sorted(maps.Keys(p.entries))
}

// Contributors returns the names of the packages contributing to target, in
// merge order.
func (p *Plan) Contributors(target string) []string {
	var names []string
	for _, c := range p.entries[target] {
		names = append(names, p.Layers[c.layer].Package.Name)
	}
	return names
}

// WatchRoots returns the source directory of every layer.
func (p *Plan) WatchRoots() []string {
	roots := make([]string, 0, len(p.Layers))
	for _, l := range p.Layers {
		if !slices.Contains(roots, l.Source) {
			roots = append(roots, l.Source)
		}
	}
	return roots
}

// Locate returns the layer holding the absolute source path abs and the path
// relative to that layer. The innermost layer wins when sources nest.
func (p *Plan) Locate(abs string) (layer int, rel string, ok bool) {
	best := -1
	for i, l := range p.Layers {
		if !fspath.Within(l.Source, abs) {
			continue
		}
		if best < 0 || len(l.Source) > len(p.Layers[best].Source) {
			best = i
		}
	}
	if best < 0 {
		return -1, "", false
	}
	r, err := filepath.Rel(p.Layers[best].Source, abs)
	if err != nil {
		return -1, "", false
	}
	return best, filepath.ToSlash(r), true
}

// PackageOf returns the name of the package owning abs, or "".
func (p *Plan) PackageOf(abs string) string {
	if i, _, ok := p.Locate(abs); ok {
		return p.Layers[i].Package.Name
	}
	return ""
}

// add records source as the contribution of layer to its target path. It
// returns the target path, or false when the file does not belong in the
// target tree.
func (p *Plan) add(layer int, rel, source string) (string, bool) {
	l := p.Layers[layer]
	s := p.policy.Classify(rel)
	switch s.Kind {
	case Exclude:
		return "", false
	case IdentityFile:
		if p.ProjectType == manifest.ProjectTypeAddon && !l.Root {
			// Dependencies are not deployable on their own in an addon.
			return "", false
		}
	case IdentitySynthesize:
		if p.ProjectType != manifest.ProjectTypeMap {
			s = Strategy{Kind: OverwriteCopy}
		}
	}

	target := path.Join(l.Prefix, rel)
	c := contribution{layer: layer, source: source, strategy: s}
	list := p.entries[target]
	i, found := slices.BinarySearchFunc(list, layer, func(c contribution, layer int) int { return c.layer - layer })
	if found {
		list[i] = c
	} else {
		list = slices.Insert(list, i, c)
	}
	p.entries[target] = list
	return target, true
}

// remove drops every contribution whose source is abs or lies under it and
// returns the affected target paths.
func (p *Plan) remove(abs string) []string {
	var affected []string
	for target, list := range p.entries {
		kept := slices.DeleteFunc(slices.Clone(list), func(c contribution) bool {
			return fspath.Within(abs, c.source)
		})
		if len(kept) == len(list) {
			continue
		}
		affected = append(affected, target)
		if len(kept) == 0 {
			delete(p.entries, target)
		} else {
			p.entries[target] = kept
		}
	}
	slices.Sort(affected)
	return affected
}
