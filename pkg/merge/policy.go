// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// OverwriteCopy copies the most downstream contribution.
	OverwriteCopy Kind = iota
	// SemanticJSON merges JSON documents at known semantic keys.
	SemanticJSON
	// KeyValueUnion merges key=value localization files.
	KeyValueUnion
	// Exclude drops the file from the target tree.
	Exclude
	// IdentityFile marks pack identity manifests. Addon targets take them
	// from the root package only.
	IdentityFile
	// IdentitySynthesize marks documents the engine generates itself.
	IdentitySynthesize
)

const (
	// FieldMerge merges the entry maps under Fields; other keys are last-writer-wins.
	FieldMerge JSONMode = iota
	// RegistryMerge merges every object-valued top-level key entry by entry.
	RegistryMerge
	// ShallowMerge replaces top-level keys, last writer wins.
	ShallowMerge
	// ListUnion concatenates the lists under Fields, dropping repeated items.
	ListUnion
)

type (
	// Kind is one of the closed set of merge strategies.
	Kind int

	// JSONMode selects how a SemanticJSON strategy combines documents.
	JSONMode int

	// Strategy is the action taken for one target path.
	Strategy struct {
		Kind   Kind
		Mode   JSONMode
		Fields []string
	}

	// Rule binds a doublestar pattern, matched against the layer-relative
	// slash path, to a Strategy.
	Rule struct {
		Pattern  string
		Strategy Strategy
	}

	// Policy classifies files. Rules are evaluated in order and the first
	// match wins; unmatched files are OverwriteCopy. A file is excluded when
	// any of its path segments matches one of ExcludeNames.
	Policy struct {
		ExcludeNames []string
		Rules        []Rule
	}
)

var kindNames = map[Kind]string{
	OverwriteCopy:      "overwrite",
	SemanticJSON:       "semantic-json",
	KeyValueUnion:      "key-value",
	Exclude:            "exclude",
	IdentityFile:       "identity",
	IdentitySynthesize: "synthesize",
}

// String returns the strategy name used in logs.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// DefaultPolicy returns the built-in file policy for behavior and resource packs.
func DefaultPolicy() *Policy {
	field := func(fields ...string) Strategy {
		return Strategy{Kind: SemanticJSON, Mode: FieldMerge, Fields: fields}
	}
	registry := Strategy{Kind: SemanticJSON, Mode: RegistryMerge}

	return &Policy{
		ExcludeNames: []string{
			"*.egg-info", "*.dist-info", "__pycache__", "*.py[cod]",
			".eggs", ".pytest_cache", ".tox", ".coverage", ".coverage.*", "htmlcov",
			".git", ".gitignore", ".gitattributes", ".hg", ".svn", ".bzr",
			".DS_Store", "Thumbs.db",
			"pyproject.toml", "setup.py", "setup.cfg",
			// Editor and tool scratch files; dot-prefixed entries are never pack content.
			".*", "*.tmp", "*.swp", "*~",
		},
		Rules: []Rule{
			{Pattern: "manifest.json", Strategy: Strategy{Kind: IdentityFile}},
			{Pattern: "pack_manifest.json", Strategy: Strategy{Kind: IdentityFile}},
			{Pattern: worldBehaviorPacks, Strategy: Strategy{Kind: IdentitySynthesize}},
			{Pattern: worldResourcePacks, Strategy: Strategy{Kind: IdentitySynthesize}},
			{Pattern: "**/terrain_texture.json", Strategy: field("texture_data")},
			{Pattern: "**/item_texture.json", Strategy: field("texture_data")},
			{Pattern: "**/sounds.json", Strategy: field("sound_definitions")},
			{Pattern: "**/sound_definitions.json", Strategy: field("sound_definitions")},
			{Pattern: "**/animations.json", Strategy: registry},
			{Pattern: "**/animation_controllers.json", Strategy: registry},
			{Pattern: "**/entity_models.json", Strategy: registry},
			{Pattern: "**/render_controllers.json", Strategy: registry},
			{Pattern: "**/materials.json", Strategy: registry},
			{Pattern: "**/attachables.json", Strategy: registry},
			{Pattern: "**/particle_effects.json", Strategy: registry},
			{Pattern: "**/blocks.json", Strategy: Strategy{Kind: SemanticJSON, Mode: ShallowMerge}},
			{Pattern: "**/_ui_defs.json", Strategy: Strategy{Kind: SemanticJSON, Mode: ListUnion, Fields: []string{"ui_defs"}}},
			{Pattern: "**/*.lang", Strategy: Strategy{Kind: KeyValueUnion}},
		},
	}
}

// Excluded reports whether any segment of the slash path rel matches an
// exclusion name.
func (p *Policy) Excluded(rel string) bool {
	for segment := range strings.SplitSeq(rel, "/") {
		if segment == "" || segment == "." {
			continue
		}
		for _, pattern := range p.ExcludeNames {
			if ok, _ := doublestar.Match(pattern, segment); ok {
				return true
			}
		}
	}
	return false
}

// Classify returns the strategy for the layer-relative slash path rel.
func (p *Policy) Classify(rel string) Strategy {
	rel = path.Clean(rel)
	if p.Excluded(rel) {
		return Strategy{Kind: Exclude}
	}
	for _, rule := range p.Rules {
		if ok, _ := doublestar.Match(rule.Pattern, rel); ok {
			return rule.Strategy
		}
	}
	return Strategy{Kind: OverwriteCopy}
}
