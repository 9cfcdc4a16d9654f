// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/manifest"
)

const (
	// DefaultBehaviorPackDir is used when a package has no behavior pack directory.
	DefaultBehaviorPackDir = "behavior_pack"
	// DefaultResourcePackDir is used when a package has no resource pack directory.
	DefaultResourcePackDir = "resource_pack"

	// MapBehaviorPacksDir holds the behavior packs of a map target.
	MapBehaviorPacksDir = "behavior_packs"
	// MapResourcePacksDir holds the resource packs of a map target.
	MapResourcePacksDir = "resource_packs"

	// BehaviorPack layers carry scripts and logic.
	BehaviorPack LayerKind = "behavior"
	// ResourcePack layers carry assets.
	ResourcePack LayerKind = "resource"
	// WorldTree is the whole source tree of a map package.
	WorldTree LayerKind = "world"
)

var (
	behaviorPackPrefixes = []string{"behavior_pack", "BehaviorPack"}
	resourcePackPrefixes = []string{"resource_pack", "ResourcePack"}
)

type (
	// LayerKind is the kind of subtree a layer carries.
	LayerKind string

	// Layer is one source subtree of one package and where it lands in the target.
	Layer struct {
		Package *manifest.Package
		Kind    LayerKind
		// Source is the absolute source directory.
		Source string
		// Prefix is the slash path under the target root ("" for the root itself).
		Prefix string
		// Root is true for layers of the root package.
		Root bool
	}

	// PackDirs names the detected pack subtrees of one package.
	PackDirs struct {
		Behavior string
		Resource string
	}
)

// DetectPackDirs returns the behavior and resource pack directory names under
// root: the first top-level directory (in name order) whose name starts with
// one of the known prefixes, or the defaults when none exists.
func DetectPackDirs(fs afero.Fs, root string) PackDirs {
	dirs := PackDirs{Behavior: DefaultBehaviorPackDir, Resource: DefaultResourcePackDir}
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return dirs
	}

	var foundBehavior, foundResource bool
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && (entry.Mode()&os.ModeSymlink == 0 || !isDir(fs, filepath.Join(root, name))) {
			continue
		}
		if !foundBehavior && hasAnyPrefix(name, behaviorPackPrefixes) {
			dirs.Behavior, foundBehavior = name, true
		}
		if !foundResource && hasAnyPrefix(name, resourcePackPrefixes) {
			dirs.Resource, foundResource = name, true
		}
	}
	return dirs
}

// buildLayers turns a merge order into layers, upstream first.
func buildLayers(fs afero.Fs, order depgraph.MergeOrder) []Layer {
	root := order.Root()
	if root == nil {
		return nil
	}

	var layers []Layer
	add := func(l Layer) {
		if isDir(fs, l.Source) {
			layers = append(layers, l)
		}
	}

	if root.ProjectType == manifest.ProjectTypeMap {
		for _, pkg := range order.Dependencies() {
			dirs := DetectPackDirs(fs, pkg.SourceRoot)
			add(Layer{Package: pkg, Kind: BehaviorPack, Source: filepath.Join(pkg.SourceRoot, dirs.Behavior), Prefix: path.Join(MapBehaviorPacksDir, pkg.Name)})
			add(Layer{Package: pkg, Kind: ResourcePack, Source: filepath.Join(pkg.SourceRoot, dirs.Resource), Prefix: path.Join(MapResourcePacksDir, pkg.Name)})
		}
		add(Layer{Package: root, Kind: WorldTree, Source: root.SourceRoot, Root: true})
		return layers
	}

	target := DetectPackDirs(fs, root.SourceRoot)
	for _, pkg := range order {
		dirs := DetectPackDirs(fs, pkg.SourceRoot)
		isRoot := pkg == root
		add(Layer{Package: pkg, Kind: BehaviorPack, Source: filepath.Join(pkg.SourceRoot, dirs.Behavior), Prefix: target.Behavior, Root: isRoot})
		add(Layer{Package: pkg, Kind: ResourcePack, Source: filepath.Join(pkg.SourceRoot, dirs.Resource), Prefix: target.Resource, Root: isRoot})
	}
	return layers
}

// managedPrefixes returns the target subtrees a clean pass may prune.
func managedPrefixes(fs afero.Fs, order depgraph.MergeOrder) []string {
	root := order.Root()
	if root == nil {
		return nil
	}
	if root.ProjectType == manifest.ProjectTypeMap {
		return []string{""}
	}
	dirs := DetectPackDirs(fs, root.SourceRoot)
	return []string{dirs.Behavior, dirs.Resource}
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func isDir(fs afero.Fs, p string) bool {
	ok, err := afero.DirExists(fs, p)
	return err == nil && ok
}
