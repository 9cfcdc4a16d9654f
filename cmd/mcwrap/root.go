// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcwrap",
		Short: "Build Minecraft addons and maps from Python packages",
		Long: TitleStyle.Render("mcwrap") + SubtitleStyle.Render(" - Build Minecraft addons and maps from Python packages") + `

mcwrap reads the [tool.mcpywrap] table of a project's pyproject.toml,
locates every dependency among the locally installed packages and merges
their behavior and resource packs into a single target directory.

` + SubtitleStyle.Render("Examples:") + `
  mcwrap build              Merge the project into its target directory
  mcwrap dev                Build, then re-merge on every change
  mcwrap deps               Show the resolved dependency tree
  mcwrap config show        Show current configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.setup(cmd.Context()); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/mcwrap/config.cue)")

	rootCmd.AddCommand(
		newBuildCommand(app),
		newDevCommand(app),
		newDepsCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process with the command's status.
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := newRootCommand(app)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
