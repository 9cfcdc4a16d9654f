// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mcwrap/mcwrap/internal/clock"
	"github.com/mcwrap/mcwrap/internal/config"
	"github.com/mcwrap/mcwrap/internal/watch"
	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/locator"
	"github.com/mcwrap/mcwrap/pkg/merge"
)

const coreManifest = `
[project]
name = "core"
version = "1.0.0"

[tool.mcpywrap]
project_type = "addon"
`

const gameManifest = `
[project]
name = "game"
version = "0.3.0"
dependencies = ["core>=1.0"]

[tool.mcpywrap]
project_type = "addon"
`

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readTarget(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// addonProject lays out core and game under a temp dir and returns their roots.
func addonProject(t *testing.T) (coreDir, gameDir string) {
	t.Helper()
	base := t.TempDir()
	coreDir = filepath.Join(base, "core")
	gameDir = filepath.Join(base, "game")

	writeTree(t, coreDir, map[string]string{
		"pyproject.toml":                   coreManifest,
		"behavior_pack/scripts/lib.js":     "export const lib = 1;\n",
		"resource_pack/texts/en_US.lang":   "a=core\n",
		"resource_pack/textures/stone.png": "PNG-core",
	})
	writeTree(t, gameDir, map[string]string{
		"pyproject.toml":                 gameManifest,
		"behavior_pack/scripts/main.js":  "import { lib } from './lib.js';\n",
		"resource_pack/texts/en_US.lang": "b=game\n",
	})
	return coreDir, gameDir
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestBuild_AddonProject(t *testing.T) {
	t.Parallel()

	coreDir, gameDir := addonProject(t)

	b := New(Options{
		ProjectDir: gameDir,
		Discovery:  locator.StaticDiscovery{"core": coreDir},
		Clean:      true,
		Logger:     quietLogger(),
	})
	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := res.Result.Order.Names(); !slices.Equal(got, []string{"core", "game"}) {
		t.Errorf("merge order = %v, want [core game]", got)
	}
	if want := filepath.Join(gameDir, DefaultTargetDir); res.Target != want {
		t.Errorf("Target = %q, want %q", res.Target, want)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}

	if got := readTarget(t, filepath.Join(res.Target, "resource_pack/texts/en_US.lang")); got != "a=core\nb=game\n" {
		t.Errorf("en_US.lang = %q", got)
	}
	for _, rel := range []string{"behavior_pack/scripts/lib.js", "behavior_pack/scripts/main.js", "resource_pack/textures/stone.png"} {
		if _, err := os.Stat(filepath.Join(res.Target, rel)); err != nil {
			t.Errorf("%s missing from target: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(res.Target, "pyproject.toml")); !os.IsNotExist(err) {
		t.Error("manifest must not be copied to the target")
	}
}

func TestBuild_TargetOverride(t *testing.T) {
	t.Parallel()

	coreDir, gameDir := addonProject(t)
	target := filepath.Join(t.TempDir(), "dev_packs")

	res, err := New(Options{
		ProjectDir: gameDir,
		Target:     target,
		Discovery:  locator.StaticDiscovery{"core": coreDir},
		Logger:     quietLogger(),
	}).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Target != target {
		t.Errorf("Target = %q, want %q", res.Target, target)
	}
	if _, err := os.Stat(filepath.Join(target, "behavior_pack/scripts/lib.js")); err != nil {
		t.Errorf("dependency file missing: %v", err)
	}
}

func TestBuild_MissingDependency(t *testing.T) {
	t.Parallel()

	_, gameDir := addonProject(t)
	empty := locator.StaticDiscovery{}

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()

		res, err := New(Options{ProjectDir: gameDir, Target: t.TempDir(), Discovery: empty, Logger: quietLogger()}).
			Build(context.Background())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if got := res.Result.Order.Names(); !slices.Equal(got, []string{"game"}) {
			t.Errorf("order = %v, want [game]", got)
		}
		if diag.Count(res.Diagnostics, diag.SeverityWarning) != 1 {
			t.Errorf("diagnostics = %v, want one warning", res.Diagnostics)
		}
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()

		_, err := New(Options{ProjectDir: gameDir, Target: t.TempDir(), Discovery: empty, Strict: true, Logger: quietLogger()}).
			Build(context.Background())
		if !errors.Is(err, depgraph.ErrUnresolvedDependency) {
			t.Fatalf("err = %v, want ErrUnresolvedDependency", err)
		}
	})
}

func TestBuild_NoProject(t *testing.T) {
	t.Parallel()

	_, err := New(Options{ProjectDir: t.TempDir(), Logger: quietLogger()}).Build(context.Background())
	if !errors.Is(err, ErrNoProject) {
		t.Fatalf("err = %v, want ErrNoProject", err)
	}
}

func TestBuild_UnsafeTarget(t *testing.T) {
	t.Parallel()

	coreDir, gameDir := addonProject(t)

	_, err := New(Options{
		ProjectDir: gameDir,
		Target:     filepath.Dir(gameDir),
		Discovery:  locator.StaticDiscovery{"core": coreDir},
		Logger:     quietLogger(),
	}).Build(context.Background())
	if !errors.Is(err, merge.ErrUnsafeTarget) {
		t.Fatalf("err = %v, want ErrUnsafeTarget", err)
	}
}

func TestTargetFor(t *testing.T) {
	t.Parallel()

	coreDir, gameDir := addonProject(t)
	b := New(Options{ProjectDir: gameDir, Discovery: locator.StaticDiscovery{"core": coreDir}, Logger: quietLogger()})
	res, err := b.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	root := res.Root

	tests := []struct {
		name      string
		override  string
		targetDir string
		want      string
	}{
		{name: "default", want: filepath.Join(gameDir, DefaultTargetDir)},
		{name: "relative target_dir", targetDir: "../dist", want: filepath.Join(filepath.Dir(gameDir), "dist")},
		{name: "absolute target_dir", targetDir: "/srv/packs", want: filepath.Clean("/srv/packs")},
		{name: "override wins", override: "/tmp/out", targetDir: "../dist", want: filepath.Clean("/tmp/out")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pkg := *root
			pkg.TargetDir = tt.targetDir
			bb := New(Options{Target: tt.override, Logger: quietLogger()})
			got, err := bb.TargetFor(&pkg)
			if err != nil {
				t.Fatalf("TargetFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("TargetFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.SitePackages = []config.SitePackagesPath{"/site"}
	cfg.Watch.Debounce = "300ms"
	cfg.Watch.Ignore = []config.IgnorePattern{"**/*.bak"}
	cfg.Resolve.Strict = true

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.Debounce != 300*time.Millisecond || !opts.Strict || !opts.Clean || opts.ForceMerge {
		t.Errorf("opts = %+v", opts)
	}
	if !slices.Equal(opts.SitePackages, []string{"/site"}) || !slices.Equal(opts.Ignore, []string{"**/*.bak"}) {
		t.Errorf("paths = %v %v", opts.SitePackages, opts.Ignore)
	}

	cfg.Watch.Debounce = "whenever"
	if _, err := OptionsFromConfig(cfg); !errors.Is(err, config.ErrInvalidDuration) {
		t.Errorf("err = %v, want ErrInvalidDuration", err)
	}
}

func TestTargetIgnores(t *testing.T) {
	t.Parallel()

	got := targetIgnores([]string{"/w/world", "/deps/core/behavior_pack"}, "/w/world/build")
	if !slices.Equal(got, []string{"build", "build/**"}) {
		t.Errorf("targetIgnores = %v", got)
	}
	if got := targetIgnores([]string{"/w/world"}, "/elsewhere"); len(got) != 0 {
		t.Errorf("target outside roots should add no patterns, got %v", got)
	}
}

// devSource is a watch.EventSource whose single subscription is driven by the test.
type devSource struct {
	mu     sync.Mutex
	roots  []string
	events chan watch.ChangeEvent
	errs   chan error
	ready  chan struct{}
}

func newDevSource() *devSource {
	return &devSource{
		events: make(chan watch.ChangeEvent),
		errs:   make(chan error),
		ready:  make(chan struct{}),
	}
}

func (s *devSource) Subscribe(_ context.Context, roots []string) (watch.Subscription, error) {
	s.mu.Lock()
	s.roots = roots
	s.mu.Unlock()
	close(s.ready)
	return s, nil
}

func (s *devSource) Events() <-chan watch.ChangeEvent { return s.events }
func (s *devSource) Errors() <-chan error             { return s.errs }
func (s *devSource) Close() error                     { return nil }

func TestDev_IncrementalMerge(t *testing.T) {
	t.Parallel()

	coreDir, gameDir := addonProject(t)
	source := newDevSource()
	clk := clock.NewFake(time.Time{})

	b := New(Options{
		ProjectDir: gameDir,
		Discovery:  locator.StaticDiscovery{"core": coreDir},
		Source:     source,
		Clock:      clk,
		Debounce:   time.Second,
		Logger:     quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	built := make(chan *Result, 1)
	passes := make(chan []string, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Dev(ctx,
			func(r *Result) { built <- r },
			func(_ *merge.Report, changed []string) { passes <- changed },
		)
	}()

	var res *Result
	select {
	case res = <-built:
	case err := <-errCh:
		t.Fatalf("Dev returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the initial build")
	}

	select {
	case <-source.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the subscription")
	}
	source.mu.Lock()
	roots := slices.Clone(source.roots)
	source.mu.Unlock()
	if len(roots) != 4 {
		t.Errorf("watched roots = %v, want the four pack directories", roots)
	}

	langSrc := filepath.Join(coreDir, "resource_pack", "texts", "en_US.lang")
	writeTree(t, coreDir, map[string]string{"resource_pack/texts/en_US.lang": "a=core2\nc=new\n"})
	select {
	case source.events <- watch.ChangeEvent{Path: langSrc, Root: filepath.Join(coreDir, "resource_pack"), Kind: watch.Modified}:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out delivering the change")
	}

	deadline := time.Now().Add(5 * time.Second)
	for clk.Waiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("debounce timer never started")
		}
		time.Sleep(time.Millisecond)
	}
	clk.Advance(time.Second)

	select {
	case changed := <-passes:
		if !slices.Equal(changed, []string{langSrc}) {
			t.Errorf("changed = %v, want [%s]", changed, langSrc)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the incremental pass")
	}

	if got := readTarget(t, filepath.Join(res.Target, "resource_pack/texts/en_US.lang")); got != "a=core2\nc=new\nb=game\n" {
		t.Errorf("en_US.lang after change = %q", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Dev returned %v after cancel, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Dev did not stop after cancel")
	}
}

//nolint:paralleltest // mutates process environment
func TestResolve_DetectsVirtualEnvSitePackages(t *testing.T) {
	coreDir, gameDir := addonProject(t)

	venv := t.TempDir()
	distInfo := filepath.Join(venv, "lib", "python3.12", "site-packages", "core-1.0.0.dist-info")
	coreURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(coreDir)}).String()
	writeTree(t, distInfo, map[string]string{
		"METADATA":        "Metadata-Version: 2.1\nName: core\nVersion: 1.0.0\n",
		"direct_url.json": `{"url": "` + coreURL + `", "dir_info": {"editable": true}}`,
	})
	t.Setenv("VIRTUAL_ENV", venv)
	t.Setenv("CONDA_PREFIX", "")

	res, err := New(Options{ProjectDir: gameDir, Strict: true, Logger: quietLogger()}).
		Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := res.Result.Order.Names(); !slices.Equal(got, []string{"core", "game"}) {
		t.Errorf("merge order = %v, want [core game]", got)
	}
}
