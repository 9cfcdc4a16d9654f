// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/mcwrap/mcwrap/internal/builder"
	"github.com/mcwrap/mcwrap/internal/clock"
	"github.com/mcwrap/mcwrap/internal/config"
	"github.com/mcwrap/mcwrap/internal/watch"
	"github.com/mcwrap/mcwrap/pkg/locator"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reads configuration, output streams and the
	// logger from it.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer

		// Overrides used by tests. Nil selects the production default.
		discovery locator.Discovery
		source    watch.EventSource
		clock     clock.Clock

		flags  rootFlagValues
		cfg    *config.Config
		logger *log.Logger
	}

	// Dependencies defines the injection points for building an App.
	Dependencies struct {
		Config    ConfigProvider
		Discovery locator.Discovery
		Source    watch.EventSource
		Clock     clock.Clock
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	rootFlagValues struct {
		verbose    bool
		configPath string
	}

	// buildFlagValues holds the flags shared by build, dev and deps.
	buildFlagValues struct {
		projectDir string
		target     string
		strict     bool
		forceMerge bool
		noClean    bool
		sitePaths  []string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{
		Config:    deps.Config,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
		discovery: deps.Discovery,
		source:    deps.Source,
		clock:     deps.Clock,
		logger:    log.New(deps.Stderr),
	}
}

// setup loads configuration and creates the logger. It runs before every
// command that needs either.
func (a *App) setup(ctx context.Context) error {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return err
	}
	a.cfg = cfg

	verbose := a.flags.verbose || cfg.UI.Verbose
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	a.logger = log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "mcwrap",
		ReportTimestamp: verbose,
		TimeFormat:      "15:04:05.000",
		Level:           level,
	})
	return nil
}

func (a *App) verbose() bool {
	return a.flags.verbose || (a.cfg != nil && a.cfg.UI.Verbose)
}

// builderOptions merges configuration with explicitly set flags.
func (a *App) builderOptions(flags *buildFlagValues, changed func(name string) bool) (builder.Options, error) {
	opts, err := builder.OptionsFromConfig(a.cfg)
	if err != nil {
		return builder.Options{}, err
	}

	opts.ProjectDir = flags.projectDir
	opts.Target = flags.target
	if changed("strict") {
		opts.Strict = flags.strict
	}
	if changed("force-merge") {
		opts.ForceMerge = flags.forceMerge
	}
	if changed("no-clean") {
		opts.Clean = !flags.noClean
	}
	if len(flags.sitePaths) > 0 {
		// Flag directories are searched before configured ones.
		opts.SitePackages = append(append([]string{}, flags.sitePaths...), opts.SitePackages...)
	}

	opts.Discovery = a.discovery
	opts.Source = a.source
	opts.Clock = a.clock
	opts.Logger = a.logger
	return opts, nil
}
