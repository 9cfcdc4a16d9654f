// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/manifest"
)

const (
	coreBehaviorUUID = "0b1d2c3e-4f50-4a6b-8c7d-9e0f1a2b3c4d"
	coreResourceUUID = "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	ownBehaviorUUID  = "2d3e4f5a-6b7c-4d8e-9f0a-1b2c3d4e5f60"
	targetRoot       = "/out"
)

func newPackage(name string, typ manifest.ProjectType) *manifest.Package {
	return &manifest.Package{Name: name, Version: "1.0.0", SourceRoot: "/src/" + name, ProjectType: typ}
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for p, content := range files {
		if err := fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
		if err := afero.WriteFile(fs, p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
}

func readFile(t *testing.T, fs afero.Fs, p string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func exists(fs afero.Fs, p string) bool {
	ok, err := afero.Exists(fs, p)
	return err == nil && ok
}

// snapshot returns every file under root with its contents.
func snapshot(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			out[p] = readFile(t, fs, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return out
}

func newTestEngine(fs afero.Fs, opts Options) *Engine {
	opts.Logger = log.New(io.Discard)
	return New(fs, opts)
}

func hasCode(ds []diag.Diagnostic, code string) bool {
	return slices.ContainsFunc(ds, func(d diag.Diagnostic) bool { return d.Code == code })
}

// addonFixture is a dependency "core" and a root addon "game" whose pack
// directories carry suffixes.
func addonFixture(t *testing.T) (afero.Fs, depgraph.MergeOrder) {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/core/pyproject.toml":                                "[tool.mcpywrap]\n",
		"/src/core/behavior_pack/manifest.json":                   `{"header":{"uuid":"` + coreBehaviorUUID + `"}}`,
		"/src/core/behavior_pack/scripts/core.py":                 "print('core')\n",
		"/src/core/resource_pack/textures/blocks/stone.png":       "CORE-STONE",
		"/src/core/resource_pack/textures/blocks/dirt.png":        "CORE-DIRT",
		"/src/core/resource_pack/textures/terrain_texture.json":   `{"resource_pack_name":"core","texture_data":{"a":{"textures":"a_core"},"b":{"textures":"b_core"}}}`,
		"/src/core/resource_pack/texts/en_US.lang":                "a=1\n",
		"/src/game/pyproject.toml":                                "[tool.mcpywrap]\n",
		"/src/game/behavior_pack_G1/manifest.json":                `{"header":{"uuid":"` + ownBehaviorUUID + `"}}`,
		"/src/game/behavior_pack_G1/scripts/main.py":              "print('game')\n",
		"/src/game/behavior_pack_G1/__pycache__/main.cpython.pyc": "bytecode",
		"/src/game/behavior_pack_G1/.DS_Store":                    "junk",
		"/src/game/resource_pack_G1/textures/blocks/stone.png":    "GAME-STONE",
		"/src/game/resource_pack_G1/textures/terrain_texture.json": `{"resource_pack_name":"game","texture_data":{"b":{"textures":"b_game"},"c":{"textures":"c_game"}}}`,
		"/src/game/resource_pack_G1/texts/en_US.lang":             "# comment\nb=2\n",
	})

	core := newPackage("core", manifest.ProjectTypeAddon)
	game := newPackage("game", manifest.ProjectTypeAddon)
	game.Dependencies = []manifest.Dependency{{Name: "core"}}
	return fs, depgraph.MergeOrder{core, game}
}

func TestMerge_AddonLayering(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	_, rep, err := newTestEngine(fs, Options{}).Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if rep.Partial() {
		t.Errorf("unexpected diagnostics: %v", rep.Diagnostics)
	}

	t.Run("single contributor copied verbatim", func(t *testing.T) {
		t.Parallel()
		if got := readFile(t, fs, "/out/behavior_pack_G1/scripts/core.py"); got != "print('core')\n" {
			t.Errorf("core.py = %q", got)
		}
		if got := readFile(t, fs, "/out/resource_pack_G1/textures/blocks/dirt.png"); got != "CORE-DIRT" {
			t.Errorf("dirt.png = %q", got)
		}
	})

	t.Run("binary asset from downstream package wins", func(t *testing.T) {
		t.Parallel()
		if got := readFile(t, fs, "/out/resource_pack_G1/textures/blocks/stone.png"); got != "GAME-STONE" {
			t.Errorf("stone.png = %q, want GAME-STONE", got)
		}
	})

	t.Run("texture atlas entries are unioned", func(t *testing.T) {
		t.Parallel()
		var doc struct {
			Name        string                       `json:"resource_pack_name"`
			TextureData map[string]map[string]string `json:"texture_data"`
		}
		if err := json.Unmarshal([]byte(readFile(t, fs, "/out/resource_pack_G1/textures/terrain_texture.json")), &doc); err != nil {
			t.Fatalf("decode merged atlas: %v", err)
		}
		want := map[string]string{"a": "a_core", "b": "b_game", "c": "c_game"}
		got := make(map[string]string)
		for k, v := range doc.TextureData {
			got[k] = v["textures"]
		}
		if !maps.Equal(got, want) {
			t.Errorf("texture_data = %v, want %v", got, want)
		}
		if doc.Name != "game" {
			t.Errorf("resource_pack_name = %q, want value from the downstream package", doc.Name)
		}
	})

	t.Run("localization keys are unioned", func(t *testing.T) {
		t.Parallel()
		if got := readFile(t, fs, "/out/resource_pack_G1/texts/en_US.lang"); got != "a=1\nb=2\n" {
			t.Errorf("en_US.lang = %q, want %q", got, "a=1\nb=2\n")
		}
	})

	t.Run("identity file comes from the root only", func(t *testing.T) {
		t.Parallel()
		got := readFile(t, fs, "/out/behavior_pack_G1/manifest.json")
		if !strings.Contains(got, ownBehaviorUUID) {
			t.Errorf("manifest.json = %s, want the root package identity", got)
		}
	})

	t.Run("packaging noise is excluded", func(t *testing.T) {
		t.Parallel()
		for _, p := range []string{
			"/out/behavior_pack_G1/__pycache__/main.cpython.pyc",
			"/out/behavior_pack_G1/.DS_Store",
			"/out/behavior_pack/scripts/core.py",
		} {
			if exists(fs, p) {
				t.Errorf("%s should not exist", p)
			}
		}
	})
}

func TestMerge_Idempotent(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	engine := newTestEngine(fs, Options{Clean: true})

	if _, _, err := engine.Merge(context.Background(), order, targetRoot); err != nil {
		t.Fatalf("first Merge() error: %v", err)
	}
	first := snapshot(t, fs, targetRoot)

	_, rep, err := engine.Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("second Merge() error: %v", err)
	}
	if rep.Written != 0 || rep.Removed != 0 {
		t.Errorf("second pass wrote %d and removed %d files, want none", rep.Written, rep.Removed)
	}
	if second := snapshot(t, fs, targetRoot); !maps.Equal(first, second) {
		t.Errorf("target tree changed between identical passes")
	}
}

func TestMerge_ForceMergeOnlyChangesReporting(t *testing.T) {
	t.Parallel()

	for _, force := range []bool{false, true} {
		fs, order := addonFixture(t)
		_, rep, err := newTestEngine(fs, Options{ForceMerge: force}).Merge(context.Background(), order, targetRoot)
		if err != nil {
			t.Fatalf("Merge(force=%v) error: %v", force, err)
		}
		if got := readFile(t, fs, "/out/resource_pack_G1/textures/blocks/stone.png"); got != "GAME-STONE" {
			t.Errorf("force=%v: stone.png = %q, want GAME-STONE", force, got)
		}
		if hasCode(rep.Diagnostics, diag.CodeForcedOverwrite) != force {
			t.Errorf("force=%v: diagnostics = %v", force, rep.Diagnostics)
		}
	}
}

func TestMerge_UnparseableJSONFallsBackToOverwrite(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	writeFiles(t, fs, map[string]string{
		"/src/core/resource_pack/textures/terrain_texture.json": `{"texture_data": {`,
	})

	_, rep, err := newTestEngine(fs, Options{}).Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	want := readFile(t, fs, "/src/game/resource_pack_G1/textures/terrain_texture.json")
	if got := readFile(t, fs, "/out/resource_pack_G1/textures/terrain_texture.json"); got != want {
		t.Errorf("terrain_texture.json = %s, want the downstream bytes", got)
	}
	if !hasCode(rep.Diagnostics, diag.CodeMergeFallback) {
		t.Fatalf("diagnostics = %v, want %s", rep.Diagnostics, diag.CodeMergeFallback)
	}
	if !errors.Is(rep.Diagnostics[0].Cause, ErrMergeIO) {
		t.Errorf("fallback cause should wrap ErrMergeIO: %v", rep.Diagnostics[0].Cause)
	}
	if !rep.Partial() {
		t.Error("report should be partial")
	}
}

func TestMerge_CleanPrunesStaleFiles(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	writeFiles(t, fs, map[string]string{
		"/out/behavior_pack_G1/scripts/removed.py": "stale",
		"/out/behavior_pack_G1/old/deep/x.txt":     "stale",
		"/out/notes.txt":                           "user file",
	})

	_, rep, err := newTestEngine(fs, Options{Clean: true}).Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if rep.Removed != 2 {
		t.Errorf("Removed = %d, want 2", rep.Removed)
	}
	for _, p := range []string{"/out/behavior_pack_G1/scripts/removed.py", "/out/behavior_pack_G1/old"} {
		if exists(fs, p) {
			t.Errorf("%s should have been pruned", p)
		}
	}
	if !exists(fs, "/out/notes.txt") {
		t.Error("files outside the managed pack directories must be kept")
	}
}

func TestMerge_UnsafeTarget(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	_, _, err := newTestEngine(fs, Options{}).Merge(context.Background(), order, "/src")
	if !errors.Is(err, ErrUnsafeTarget) {
		t.Errorf("Merge() error = %v, want ErrUnsafeTarget", err)
	}
}

func TestMergePaths_DeletionRespectsMergeOrder(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	engine := newTestEngine(fs, Options{})
	plan, _, err := engine.Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	const stone = "/out/resource_pack_G1/textures/blocks/stone.png"

	// The dependency's copy is shadowed by the root package.
	coreStone := "/src/core/resource_pack/textures/blocks/stone.png"
	if err := fs.Remove(coreStone); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.MergePaths(context.Background(), plan, []string{coreStone}); err != nil {
		t.Fatalf("MergePaths() error: %v", err)
	}
	if got := readFile(t, fs, stone); got != "GAME-STONE" {
		t.Errorf("after shadowed delete stone.png = %q, want GAME-STONE", got)
	}

	// Now the last provider goes away.
	gameStone := "/src/game/resource_pack_G1/textures/blocks/stone.png"
	if err := fs.Remove(gameStone); err != nil {
		t.Fatal(err)
	}
	rep, err := engine.MergePaths(context.Background(), plan, []string{gameStone})
	if err != nil {
		t.Fatalf("MergePaths() error: %v", err)
	}
	if exists(fs, stone) || rep.Removed != 1 {
		t.Errorf("stone.png should be removed once no package provides it (removed=%d)", rep.Removed)
	}
}

func TestMergePaths_DownstreamDeleteRevealsUpstream(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	engine := newTestEngine(fs, Options{})
	plan, _, err := engine.Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	gameStone := "/src/game/resource_pack_G1/textures/blocks/stone.png"
	if err := fs.Remove(gameStone); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.MergePaths(context.Background(), plan, []string{gameStone}); err != nil {
		t.Fatalf("MergePaths() error: %v", err)
	}
	if got := readFile(t, fs, "/out/resource_pack_G1/textures/blocks/stone.png"); got != "CORE-STONE" {
		t.Errorf("stone.png = %q, want CORE-STONE", got)
	}
}

func TestMergePaths_ModifiedAndCreatedFiles(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	engine := newTestEngine(fs, Options{})
	plan, _, err := engine.Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	before := snapshot(t, fs, targetRoot)

	writeFiles(t, fs, map[string]string{
		"/src/core/resource_pack/texts/en_US.lang":          "a=1\nz=26\n",
		"/src/core/behavior_pack/entities/zombie.json":      `{"zombie":true}`,
		"/src/core/behavior_pack/entities/skeleton.json":    `{"skeleton":true}`,
		"/src/game/behavior_pack_G1/__pycache__/new.pyc":    "bytecode",
		"/src/game/resource_pack_G1/textures/blocks/new.png": "NEW",
	})

	rep, err := engine.MergePaths(context.Background(), plan, []string{
		"/src/core/resource_pack/texts/en_US.lang",
		"/src/core/behavior_pack/entities",
		"/src/game/behavior_pack_G1/__pycache__/new.pyc",
		"/src/game/resource_pack_G1/textures/blocks/new.png",
		"/src/game/resource_pack_G1/textures/blocks/new.png",
	})
	if err != nil {
		t.Fatalf("MergePaths() error: %v", err)
	}
	if rep.Written != 4 {
		t.Errorf("Written = %d, want 4", rep.Written)
	}

	if got := readFile(t, fs, "/out/resource_pack_G1/texts/en_US.lang"); got != "a=1\nz=26\nb=2\n" {
		t.Errorf("en_US.lang = %q", got)
	}
	for _, p := range []string{
		"/out/behavior_pack_G1/entities/zombie.json",
		"/out/behavior_pack_G1/entities/skeleton.json",
		"/out/resource_pack_G1/textures/blocks/new.png",
	} {
		if !exists(fs, p) {
			t.Errorf("%s should exist", p)
		}
	}
	if exists(fs, "/out/behavior_pack_G1/__pycache__/new.pyc") {
		t.Error("excluded file was merged")
	}

	after := snapshot(t, fs, targetRoot)
	for p, content := range before {
		if strings.HasSuffix(p, "en_US.lang") {
			continue
		}
		if after[p] != content {
			t.Errorf("%s changed by an unrelated incremental merge", p)
		}
	}
}

func TestMergePaths_DeletedDirectory(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	engine := newTestEngine(fs, Options{})
	plan, _, err := engine.Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	if err := fs.RemoveAll("/src/core/resource_pack/textures"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.MergePaths(context.Background(), plan, []string{"/src/core/resource_pack/textures"}); err != nil {
		t.Fatalf("MergePaths() error: %v", err)
	}

	if exists(fs, "/out/resource_pack_G1/textures/blocks/dirt.png") {
		t.Error("dirt.png was only provided by the deleted directory")
	}
	if got := readFile(t, fs, "/out/resource_pack_G1/textures/blocks/stone.png"); got != "GAME-STONE" {
		t.Errorf("stone.png = %q, want GAME-STONE", got)
	}
	want := readFile(t, fs, "/src/game/resource_pack_G1/textures/terrain_texture.json")
	if got := readFile(t, fs, "/out/resource_pack_G1/textures/terrain_texture.json"); got != want {
		t.Errorf("terrain_texture.json should fall back to the single remaining contributor")
	}
}

func TestMerge_MapProject(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/core/behavior_pack/manifest.json":             `{"header":{"uuid":"` + coreBehaviorUUID + `","version":[1,2,0]}}`,
		"/src/core/behavior_pack/scripts/core.py":           "print('core')\n",
		"/src/core/resource_pack/manifest.json":             `{"header":{"uuid":"` + strings.ToUpper(coreResourceUUID) + `"}}`,
		"/src/world/pyproject.toml":                         "[tool.mcpywrap]\nproject_type = \"map\"\n",
		"/src/world/level.dat":                              "LEVEL",
		"/src/world/db/000001.ldb":                          "DB",
		"/src/world/world_behavior_packs.json":              `[{"stale":true}]`,
		"/src/world/behavior_packs/own/manifest.json":       `{"header":{"uuid":"` + ownBehaviorUUID + `","version":[0,1,0]}}`,
		"/src/world/behavior_packs/broken/manifest.json":    `{"header":{"uuid":"not-a-uuid"}}`,
		"/src/world/behavior_packs/own/entities/cow.json":   "{}",
		"/src/world/build/leftover.txt":                     "inside target",
	})
	core := newPackage("core", manifest.ProjectTypeAddon)
	world := newPackage("world", manifest.ProjectTypeMap)
	order := depgraph.MergeOrder{core, world}

	_, rep, err := newTestEngine(fs, Options{Clean: true}).Merge(context.Background(), order, "/src/world/build")
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	for p, want := range map[string]string{
		"/src/world/build/level.dat":                         "LEVEL",
		"/src/world/build/db/000001.ldb":                     "DB",
		"/src/world/build/behavior_packs/core/scripts/core.py": "print('core')\n",
		"/src/world/build/behavior_packs/own/entities/cow.json": "{}",
	} {
		if got := readFile(t, fs, p); got != want {
			t.Errorf("%s = %q, want %q", p, got, want)
		}
	}
	if !exists(fs, "/src/world/build/behavior_packs/core/manifest.json") {
		t.Error("map dependencies keep their own identity files")
	}
	if exists(fs, "/src/world/build/build/leftover.txt") {
		t.Error("the target tree must not be merged into itself")
	}
	if exists(fs, "/src/world/build/pyproject.toml") {
		t.Error("pyproject.toml must be excluded")
	}

	var behavior, resource []PackReference
	wbp := readFile(t, fs, "/src/world/build/world_behavior_packs.json")
	if !strings.HasPrefix(wbp, "[\n  {\n    \"pack_id\"") {
		t.Errorf("world_behavior_packs.json is not 2-space indented:\n%s", wbp)
	}
	if err := json.Unmarshal([]byte(wbp), &behavior); err != nil {
		t.Fatalf("decode world_behavior_packs.json: %v", err)
	}
	if err := json.Unmarshal([]byte(readFile(t, fs, "/src/world/build/world_resource_packs.json")), &resource); err != nil {
		t.Fatalf("decode world_resource_packs.json: %v", err)
	}

	wantBehavior := []PackReference{
		{PackID: coreBehaviorUUID, Version: [3]int{1, 2, 0}},
		{PackID: ownBehaviorUUID, Version: [3]int{0, 1, 0}},
	}
	if !slices.Equal(behavior, wantBehavior) {
		t.Errorf("behavior refs = %v, want %v", behavior, wantBehavior)
	}
	wantResource := []PackReference{{PackID: coreResourceUUID, Version: [3]int{1, 0, 0}}}
	if !slices.Equal(resource, wantResource) {
		t.Errorf("resource refs = %v, want %v", resource, wantResource)
	}
	if !hasCode(rep.Diagnostics, diag.CodeIdentityInvalid) {
		t.Errorf("diagnostics = %v, want %s for the broken pack", rep.Diagnostics, diag.CodeIdentityInvalid)
	}
}

func TestMergePaths_MapResynthesizesReferences(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/core/behavior_pack/manifest.json": `{"header":{"uuid":"` + coreBehaviorUUID + `","version":[1,0,0]}}`,
		"/src/world/level.dat":                  "LEVEL",
	})
	order := depgraph.MergeOrder{newPackage("core", manifest.ProjectTypeAddon), newPackage("world", manifest.ProjectTypeMap)}
	engine := newTestEngine(fs, Options{})

	plan, _, err := engine.Merge(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	writeFiles(t, fs, map[string]string{
		"/src/core/behavior_pack/manifest.json": `{"header":{"uuid":"` + coreBehaviorUUID + `","version":[2,0,0]}}`,
	})
	if _, err := engine.MergePaths(context.Background(), plan, []string{"/src/core/behavior_pack/manifest.json"}); err != nil {
		t.Fatalf("MergePaths() error: %v", err)
	}

	var refs []PackReference
	if err := json.Unmarshal([]byte(readFile(t, fs, "/out/world_behavior_packs.json")), &refs); err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Version != [3]int{2, 0, 0} {
		t.Errorf("refs = %v, want version 2.0.0", refs)
	}
}

func TestPlan_LocateAndContributors(t *testing.T) {
	t.Parallel()

	fs, order := addonFixture(t)
	plan, _, err := newTestEngine(fs, Options{}).Plan(context.Background(), order, targetRoot)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if got := plan.PackageOf("/src/core/resource_pack/texts/en_US.lang"); got != "core" {
		t.Errorf("PackageOf = %q, want core", got)
	}
	if got := plan.PackageOf("/elsewhere/file"); got != "" {
		t.Errorf("PackageOf(outside) = %q, want empty", got)
	}
	if got := plan.Contributors("resource_pack_G1/textures/blocks/stone.png"); !slices.Equal(got, []string{"core", "game"}) {
		t.Errorf("Contributors = %v, want [core game]", got)
	}
	if got := plan.Contributors("behavior_pack_G1/manifest.json"); !slices.Equal(got, []string{"game"}) {
		t.Errorf("identity contributors = %v, want [game]", got)
	}
	if got := len(plan.WatchRoots()); got != 4 {
		t.Errorf("WatchRoots() = %d entries, want 4", got)
	}
}
