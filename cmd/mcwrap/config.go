// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcwrap/mcwrap/internal/config"
)

// newConfigCommand creates the `mcwrap config` command tree. Its subcommands
// load configuration themselves so that a broken file can still be inspected
// and replaced.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mcwrap configuration",
		Long: `Manage mcwrap configuration.

Configuration is stored in:
  - Linux: ~/.config/mcwrap/config.cue
  - macOS: ~/Library/Application Support/mcwrap/config.cue
  - Windows: %APPDATA%\mcwrap\config.cue

A config.cue in the working directory is used when no user file exists.
Every field can be overridden with MCWRAP_* environment variables,
e.g. MCWRAP_WATCH_DEBOUNCE=500ms.`,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadWithSource(cmd.Context(), config.LoadOptions{ConfigFilePath: app.flags.configPath})
			if err != nil {
				return app.fail(cmd, err)
			}

			source := loaded.Path
			if source == "" {
				source = "defaults and environment"
			}
			fmt.Fprintf(app.stdout, "%s\n\n", SubtitleStyle.Render("// source: "+source))
			fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, created, err := config.CreateDefaultConfig("")
			if err != nil {
				return app.fail(cmd, err)
			}
			if !created {
				fmt.Fprintf(app.stdout, "%s configuration already exists at %s\n", WarningStyle.Render("!"), path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	return cfgCmd
}
