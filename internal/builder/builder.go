// SPDX-License-Identifier: MPL-2.0

package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/mcwrap/mcwrap/internal/clock"
	"github.com/mcwrap/mcwrap/internal/config"
	"github.com/mcwrap/mcwrap/internal/watch"
	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/fspath"
	"github.com/mcwrap/mcwrap/pkg/locator"
	"github.com/mcwrap/mcwrap/pkg/manifest"
	"github.com/mcwrap/mcwrap/pkg/merge"
)

// DefaultTargetDir is used when neither Options.Target nor the manifest's
// target_dir names a target.
const DefaultTargetDir = "build"

// ErrNoProject is returned when the project directory holds no compatible manifest.
var ErrNoProject = errors.New("no mcwrap project")

type (
	// Options configures a Builder. Zero values select production defaults.
	Options struct {
		// ProjectDir holds the root package manifest. Empty means ".".
		ProjectDir string
		// Target overrides the manifest's target_dir.
		Target string

		// SitePackages lists the directories scanned for installed packages.
		SitePackages []string
		// Discovery replaces the site-packages scan.
		Discovery locator.Discovery

		Strict     bool
		ForceMerge bool
		Clean      bool

		Debounce       time.Duration
		MaxResubscribe int
		// Ignore adds watcher ignore patterns.
		Ignore []string
		// Source replaces the fsnotify event source.
		Source watch.EventSource
		Clock  clock.Clock

		Logger *log.Logger
	}

	// Builder runs full and incremental passes for one project.
	Builder struct {
		opts   Options
		fs     afero.Fs
		engine *merge.Engine
		logger *log.Logger
	}

	// Resolution is the root package with its resolved dependency graph.
	Resolution struct {
		Root   *manifest.Package
		Result *depgraph.Result
	}

	// Result is the outcome of a full build.
	Result struct {
		Resolution
		// Target is the absolute target directory.
		Target string
		Plan   *merge.Plan
		Report *merge.Report
		// Diagnostics holds resolution then merge diagnostics.
		Diagnostics []diag.Diagnostic
	}

	// PassFunc observes each completed merge pass in dev mode.
	PassFunc func(rep *merge.Report, changed []string)
)

// OptionsFromConfig maps loaded configuration onto builder options.
// Command-line flags are applied by the caller afterwards.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	debounce, err := cfg.Watch.Debounce.Duration()
	if err != nil {
		return Options{}, err
	}
	return Options{
		SitePackages:   cfg.SitePackageDirs(),
		Strict:         cfg.Resolve.Strict,
		ForceMerge:     cfg.Merge.ForceMerge,
		Clean:          cfg.Merge.Clean,
		Debounce:       debounce,
		MaxResubscribe: cfg.Watch.MaxResubscribe,
		Ignore:         cfg.Watch.IgnorePatterns(),
	}, nil
}

// New creates a Builder.
func New(opts Options) *Builder {
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	fs := afero.NewOsFs()
	return &Builder{
		opts: opts,
		fs:   fs,
		engine: merge.New(fs, merge.Options{
			ForceMerge: opts.ForceMerge,
			Clean:      opts.Clean,
			Logger:     opts.Logger,
		}),
		logger: opts.Logger,
	}
}

// Resolve reads the root manifest and resolves its dependency graph.
func (b *Builder) Resolve(ctx context.Context) (*Resolution, error) {
	dir, err := filepath.Abs(b.opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if !manifest.Exists(dir) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrNoProject, dir, manifest.FileName)
	}

	root, err := manifest.Read(dir)
	if err != nil {
		return nil, err
	}

	resolver := depgraph.New(locator.NewIndex(b.discovery(ctx)), depgraph.Options{
		Strict: b.opts.Strict,
		Logger: b.logger,
	})
	res, err := resolver.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	return &Resolution{Root: root, Result: res}, nil
}

// TargetFor returns the absolute target directory for root. Relative
// target_dir values are taken relative to the package's source root.
func (b *Builder) TargetFor(root *manifest.Package) (string, error) {
	target := b.opts.Target
	if target == "" {
		target = root.TargetDir
		if target != "" && !filepath.IsAbs(target) {
			target = filepath.Join(root.SourceRoot, target)
		}
	}
	if target == "" {
		target = filepath.Join(root.SourceRoot, DefaultTargetDir)
	}
	return filepath.Abs(target)
}

// Build resolves the project and merges every package into the target.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	started := time.Now()

	res, err := b.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	target, err := b.TargetFor(res.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	plan, rep, err := b.engine.Merge(ctx, res.Result.Order, target)
	if err != nil {
		return nil, err
	}

	diags := append([]diag.Diagnostic{}, res.Result.Diagnostics...)
	diags = append(diags, rep.Diagnostics...)

	b.logger.Info("build finished",
		"project", res.Root.Name,
		"packages", len(res.Result.Order),
		"target", target,
		"elapsed", time.Since(started).Round(time.Millisecond))

	return &Result{
		Resolution:  *res,
		Target:      target,
		Plan:        plan,
		Report:      rep,
		Diagnostics: diags,
	}, nil
}

// Dev runs a full build and then watches every contributing source tree,
// applying incremental merges until ctx is canceled. The initial build
// result is passed to onBuild before watching starts; onPass sees each
// incremental pass. Either callback may be nil.
func (b *Builder) Dev(ctx context.Context, onBuild func(*Result), onPass PassFunc) error {
	res, err := b.Build(ctx)
	if err != nil {
		return err
	}
	if onBuild != nil {
		onBuild(res)
	}

	source := b.opts.Source
	if source == nil {
		ignore := append(slices.Clone(b.opts.Ignore), targetIgnores(res.Plan.WatchRoots(), res.Target)...)
		source = &watch.FSNotifySource{Ignore: ignore, Logger: b.logger}
	}

	w, err := watch.New(watch.Config{
		Roots:          res.Plan.WatchRoots(),
		Source:         source,
		Clock:          b.opts.Clock,
		Debounce:       b.opts.Debounce,
		MaxResubscribe: b.opts.MaxResubscribe,
		PackageOf:      res.Plan.PackageOf,
		OnChange: func(ctx context.Context, events []watch.ChangeEvent) error {
			changed := watch.Paths(events)
			rep, err := b.engine.MergePaths(ctx, res.Plan, changed)
			if err != nil {
				return err
			}
			if onPass != nil {
				onPass(rep, changed)
			}
			return nil
		},
		Logger: b.logger,
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	b.logger.Info("watching for changes", "roots", len(res.Plan.WatchRoots()))
	return w.Run(ctx)
}

// targetIgnores keeps the watcher from reporting its own writes when the
// target lies inside a watched root, as the default map target does.
func targetIgnores(roots []string, target string) []string {
	var patterns []string
	for _, root := range roots {
		rel, ok := fspath.Rel(root, target)
		if !ok || rel == "." {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !slices.Contains(patterns, rel) {
			patterns = append(patterns, rel, rel+"/**")
		}
	}
	return patterns
}

// discovery returns the configured Discovery, or a site-packages scan over the
// configured directories. With neither, the active Python environment's
// site-packages are detected once and reused.
func (b *Builder) discovery(ctx context.Context) locator.Discovery {
	if b.opts.Discovery != nil {
		return b.opts.Discovery
	}
	if len(b.opts.SitePackages) == 0 {
		b.opts.SitePackages = locator.DetectSitePackages(ctx)
		if len(b.opts.SitePackages) == 0 {
			b.logger.Warn("no site-packages configured or detected; only the project itself is merged")
		} else {
			b.logger.Debug("detected site-packages", "dirs", b.opts.SitePackages)
		}
	}
	b.opts.Discovery = locator.NewSitePackages(b.opts.SitePackages...)
	return b.opts.Discovery
}
