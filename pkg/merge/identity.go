// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

const (
	worldBehaviorPacks = "world_behavior_packs.json"
	worldResourcePacks = "world_resource_packs.json"
)

var errMissingUUID = errors.New("header.uuid is missing")

type (
	// PackReference is one entry of a world pack reference document.
	PackReference struct {
		PackID  string `json:"pack_id"`
		Version [3]int `json:"version"`
	}

	packIdentity struct {
		Header struct {
			UUID    string `json:"uuid"`
			Version []int  `json:"version"`
		} `json:"header"`
	}

	// referenceDoc is one synthesized world reference document.
	referenceDoc struct {
		target  string
		packDir string
	}

	packCandidate struct {
		layer   int
		packDir string
		source  string
	}
)

var referenceDocs = []referenceDoc{
	{target: worldBehaviorPacks, packDir: MapBehaviorPacksDir},
	{target: worldResourcePacks, packDir: MapResourcePacksDir},
}

// parseIdentity reads the pack UUID and version from a pack manifest. A
// missing or short version defaults to 1.0.0.
func parseIdentity(data []byte) (PackReference, error) {
	var doc packIdentity
	if err := json.Unmarshal(data, &doc); err != nil {
		return PackReference{}, err
	}
	if doc.Header.UUID == "" {
		return PackReference{}, errMissingUUID
	}
	id, err := uuid.Parse(doc.Header.UUID)
	if err != nil {
		return PackReference{}, fmt.Errorf("header.uuid %q: %w", doc.Header.UUID, err)
	}

	ref := PackReference{PackID: id.String(), Version: [3]int{1, 0, 0}}
	if len(doc.Header.Version) == 3 {
		copy(ref.Version[:], doc.Header.Version)
	}
	return ref, nil
}

// isIdentityTarget reports whether target is a pack manifest of a map pack.
func isIdentityTarget(target string) bool {
	for _, ref := range referenceDocs {
		if ok, _ := doublestar.Match(ref.packDir+"/*/{manifest,pack_manifest}.json", target); ok {
			return true
		}
	}
	return false
}

// packCandidates returns, for each pack directory under packDir, the winning
// identity file. manifest.json is preferred over pack_manifest.json. The
// result is in merge order of the contributing layer, then by directory name.
func (p *Plan) packCandidates(packDir string) []packCandidate {
	seen := make(map[string]bool)
	var out []packCandidate
	for _, target := range p.Targets() {
		rest, ok := strings.CutPrefix(target, packDir+"/")
		if !ok {
			continue
		}
		dir, file := path.Split(rest)
		dir = strings.TrimSuffix(dir, "/")
		if dir == "" || strings.Contains(dir, "/") || (file != "manifest.json" && file != "pack_manifest.json") {
			continue
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		list := p.entries[target]
		winner := list[len(list)-1]
		out = append(out, packCandidate{layer: winner.layer, packDir: dir, source: winner.source})
	}
	slices.SortStableFunc(out, func(a, b packCandidate) int {
		if a.layer != b.layer {
			return a.layer - b.layer
		}
		return strings.Compare(a.packDir, b.packDir)
	})
	return out
}
