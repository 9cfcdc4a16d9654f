// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// FileName is the manifest document every package root must contain.
	FileName = "pyproject.toml"

	// ToolTable is the key under [tool] that marks a package as mcwrap-compatible.
	ToolTable = "mcpywrap"

	// ProjectTypeAddon is a deployable behavior/resource pack pair.
	ProjectTypeAddon ProjectType = "addon"
	// ProjectTypeMap is a world archive bundling its own packs.
	ProjectTypeMap ProjectType = "map"
)

var (
	// ErrManifest is the sentinel wrapped by every ManifestError.
	ErrManifest = errors.New("manifest error")

	// ErrInvalidProjectType is returned when project_type is neither addon nor map.
	ErrInvalidProjectType = errors.New("invalid project type")
)

type (
	// ProjectType selects which subtrees of a package are merged and how the
	// target tree is laid out.
	ProjectType string

	// Dependency is one declared dependency: a normalized package name plus an
	// advisory version hint (may be empty).
	Dependency struct {
		Name        string
		VersionHint string
	}

	// Package is the identity of one package as declared by its manifest.
	// SourceRoot is filled in by whoever located the manifest; Read sets it to
	// the directory the manifest was read from.
	Package struct {
		Name         string
		Version      string
		SourceRoot   string
		ProjectType  ProjectType
		TargetDir    string
		Dependencies []Dependency
	}

	// ManifestError reports a missing, malformed, or incomplete manifest.
	//
	//nolint:revive // ManifestError reads better at call sites than manifest.Error
	ManifestError struct {
		Path   string
		Reason string
		Cause  error
	}

	// document mirrors the subset of pyproject.toml that mcwrap consumes.
	document struct {
		Project struct {
			Name         string   `toml:"name"`
			Version      string   `toml:"version"`
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Mcpywrap *toolTable `toml:"mcpywrap"`
		} `toml:"tool"`
	}

	toolTable struct {
		ProjectType  string            `toml:"project_type"`
		TargetDir    string            `toml:"target_dir"`
		Dependencies map[string]string `toml:"dependencies"`
	}
)

// Error implements the error interface.
func (e *ManifestError) Error() string {
	msg := fmt.Sprintf("manifest %s: %s", e.Path, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns ErrManifest so callers can test with errors.Is, and exposes
// the cause through errors.As chains.
func (e *ManifestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrManifest}
	}
	return []error{ErrManifest, e.Cause}
}

// String returns the project type name.
func (t ProjectType) String() string { return string(t) }

// IsValid reports whether t is a recognized project type.
func (t ProjectType) IsValid() (bool, []error) {
	switch t {
	case ProjectTypeAddon, ProjectTypeMap:
		return true, nil
	default:
		return false, []error{fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidProjectType, string(t), ProjectTypeAddon, ProjectTypeMap)}
	}
}

// String renders the dependency the way it would appear in a requirement list.
func (d Dependency) String() string {
	if d.VersionHint == "" {
		return d.Name
	}
	return d.Name + " " + d.VersionHint
}

// DependencyNames returns the declared dependency names in declaration order.
func (p *Package) DependencyNames() []string {
	names := make([]string, 0, len(p.Dependencies))
	for _, d := range p.Dependencies {
		names = append(names, d.Name)
	}
	return names
}

// Exists reports whether root contains a manifest document.
func Exists(root string) bool {
	info, err := os.Stat(filepath.Join(root, FileName))
	return err == nil && !info.IsDir()
}

// Read loads the manifest under root.
func Read(root string) (*Package, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ManifestError{Path: path, Reason: "not found", Cause: err}
		}
		return nil, &ManifestError{Path: path, Reason: "unreadable", Cause: err}
	}

	pkg, err := Parse(data, path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &ManifestError{Path: path, Reason: "resolve package root", Cause: err}
	}
	pkg.SourceRoot = abs
	return pkg, nil
}

// IsCompatible reports whether the manifest under root declares a
// [tool.mcpywrap] table. Parse errors count as incompatible.
func IsCompatible(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		return false
	}
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return false
	}
	return doc.Tool.Mcpywrap != nil
}

// Parse decodes manifest bytes. path is used only in error messages.
// SourceRoot is left empty.
func Parse(data []byte, path string) (*Package, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &ManifestError{Path: path, Reason: "malformed document", Cause: err}
	}

	tool := doc.Tool.Mcpywrap
	if tool == nil {
		return nil, &ManifestError{Path: path, Reason: fmt.Sprintf("missing [tool.%s] table", ToolTable)}
	}

	name := strings.TrimSpace(doc.Project.Name)
	if name == "" {
		return nil, &ManifestError{Path: path, Reason: "missing required field project.name"}
	}

	projectType := ProjectType(strings.ToLower(strings.TrimSpace(tool.ProjectType)))
	if projectType == "" {
		return nil, &ManifestError{Path: path, Reason: fmt.Sprintf("missing required field tool.%s.project_type", ToolTable)}
	}
	if valid, errs := projectType.IsValid(); !valid {
		return nil, &ManifestError{Path: path, Reason: "invalid project_type", Cause: errors.Join(errs...)}
	}

	deps, err := collectDependencies(doc.Project.Dependencies, tool.Dependencies)
	if err != nil {
		return nil, &ManifestError{Path: path, Reason: "invalid dependency declaration", Cause: err}
	}

	return &Package{
		Name:         NormalizeName(name),
		Version:      strings.TrimSpace(doc.Project.Version),
		ProjectType:  projectType,
		TargetDir:    tool.TargetDir,
		Dependencies: deps,
	}, nil
}

// collectDependencies merges the PEP 508 list form with the [tool.mcpywrap]
// mapping form. List entries keep declaration order; mapping entries follow in
// sorted order. A name declared twice keeps its first position and the last hint.
func collectDependencies(list []string, mapping map[string]string) ([]Dependency, error) {
	var deps []Dependency
	index := make(map[string]int)

	add := func(dep Dependency) {
		if i, seen := index[dep.Name]; seen {
			if dep.VersionHint != "" {
				deps[i].VersionHint = dep.VersionHint
			}
			return
		}
		index[dep.Name] = len(deps)
		deps = append(deps, dep)
	}

	for _, raw := range list {
		dep, err := ParseRequirement(raw)
		if err != nil {
			return nil, err
		}
		add(dep)
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		normalized := NormalizeName(name)
		if normalized == "" {
			return nil, fmt.Errorf("empty dependency name in [tool.%s.dependencies]", ToolTable)
		}
		add(Dependency{Name: normalized, VersionHint: strings.TrimSpace(mapping[name])})
	}

	return deps, nil
}
