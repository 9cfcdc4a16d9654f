// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/manifest"
)

func writeOS(t *testing.T, files map[string]string) {
	t.Helper()
	for p, content := range files {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func symlink(t *testing.T, oldname, newname string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(newname), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(oldname, newname); err != nil {
		t.Fatalf("symlink %s -> %s: %v", newname, oldname, err)
	}
}

func findDiag(ds []diag.Diagnostic, path string) (diag.Diagnostic, bool) {
	for _, d := range ds {
		if d.Path == path {
			return d, true
		}
	}
	return diag.Diagnostic{}, false
}

func TestMerge_SymlinkedSourceEntries(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := filepath.Join(base, "src", "core")
	shared := filepath.Join(base, "shared")
	textures := filepath.Join(src, "resource_pack", "textures")

	writeOS(t, map[string]string{
		filepath.Join(shared, "a.png"):       "PNG-a",
		filepath.Join(textures, "b.png"):     "PNG-b",
		filepath.Join(src, "pyproject.toml"): "[project]\nname = \"core\"\n[tool.mcpywrap]\nproject_type = \"addon\"\n",
	})
	symlink(t, filepath.Join(shared, "a.png"), filepath.Join(textures, "a.png"))
	symlink(t, filepath.Join(base, "missing.png"), filepath.Join(textures, "broken.png"))
	symlink(t, shared, filepath.Join(textures, "linked"))

	order := depgraph.MergeOrder{
		&manifest.Package{Name: "core", Version: "1.0.0", SourceRoot: src, ProjectType: manifest.ProjectTypeAddon},
	}
	target := filepath.Join(base, "out")

	_, rep, err := newTestEngine(afero.NewOsFs(), Options{}).Merge(context.Background(), order, target)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}

	for name, want := range map[string]string{"a.png": "PNG-a", "b.png": "PNG-b"} {
		got, readErr := os.ReadFile(filepath.Join(target, "resource_pack", "textures", name))
		if readErr != nil {
			t.Fatalf("%s not merged: %v", name, readErr)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if rep.Written != 2 {
		t.Errorf("Written = %d, want 2", rep.Written)
	}

	broken, ok := findDiag(rep.Diagnostics, filepath.Join(textures, "broken.png"))
	if !ok {
		t.Fatalf("no diagnostic for dangling link; got %v", rep.Diagnostics)
	}
	if broken.Code != diag.CodeMergeIO || !errors.Is(broken.Cause, ErrMergeIO) {
		t.Errorf("dangling link diagnostic = %v", broken)
	}

	linked, ok := findDiag(rep.Diagnostics, filepath.Join(textures, "linked"))
	if !ok {
		t.Fatalf("no diagnostic for linked directory; got %v", rep.Diagnostics)
	}
	if linked.Severity != diag.SeverityWarning || !errors.Is(linked.Cause, errLinkedDir) {
		t.Errorf("linked directory diagnostic = %v", linked)
	}
	if !rep.Partial() {
		t.Error("Partial() = false, want true")
	}
}

func TestMerge_SymlinkedPackDirectory(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	src := filepath.Join(base, "src", "game")
	assets := filepath.Join(base, "assets", "rp")

	writeOS(t, map[string]string{
		filepath.Join(assets, "texts", "en_US.lang"): "a=linked\n",
		filepath.Join(src, "pyproject.toml"):         "[project]\nname = \"game\"\n[tool.mcpywrap]\nproject_type = \"addon\"\n",
	})
	symlink(t, assets, filepath.Join(src, "resource_pack_G1"))

	order := depgraph.MergeOrder{
		&manifest.Package{Name: "game", Version: "1.0.0", SourceRoot: src, ProjectType: manifest.ProjectTypeAddon},
	}
	target := filepath.Join(base, "out")

	fs := afero.NewOsFs()
	if dirs := DetectPackDirs(fs, src); dirs.Resource != "resource_pack_G1" {
		t.Fatalf("DetectPackDirs().Resource = %q, want the linked directory", dirs.Resource)
	}

	_, rep, err := newTestEngine(fs, Options{}).Merge(context.Background(), order, target)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(target, "resource_pack_G1", "texts", "en_US.lang"))
	if err != nil {
		t.Fatalf("linked pack not merged: %v (diagnostics %v)", err, rep.Diagnostics)
	}
	if string(got) != "a=linked\n" {
		t.Errorf("en_US.lang = %q", got)
	}
}
