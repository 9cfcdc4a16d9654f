// SPDX-License-Identifier: MPL-2.0

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mcwrap/mcwrap/internal/builder"
)

// newBuildCommand creates the `mcwrap build` command.
func newBuildCommand(app *App) *cobra.Command {
	var flags buildFlagValues

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve dependencies and merge every package into the target",
		Long: `Resolve the project's dependencies among the locally installed packages
and merge their behavior and resource packs into the target directory.

The target defaults to [tool.mcpywrap] target_dir, or "build" next to the
project's pyproject.toml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := app.builderOptions(&flags, cmd.Flags().Changed)
			if err != nil {
				return app.fail(cmd, explain("build project", flags.projectDir, err))
			}
			res, err := builder.New(opts).Build(cmd.Context())
			if err != nil {
				return app.fail(cmd, explain("build project", flags.projectDir, err))
			}
			renderBuild(app.stdout, res, app.verbose())
			return nil
		},
	}

	addBuildFlags(cmd.Flags(), &flags)
	return cmd
}

// addBuildFlags registers the flags shared by build and dev.
func addBuildFlags(fs *pflag.FlagSet, flags *buildFlagValues) {
	addProjectFlags(fs, flags)
	fs.StringVarP(&flags.target, "target", "t", "", "target directory (overrides [tool.mcpywrap] target_dir)")
	fs.BoolVar(&flags.forceMerge, "force-merge", false, "report every overwritten binary file")
	fs.BoolVar(&flags.noClean, "no-clean", false, "keep stale files in the target's pack directories")
}

// addProjectFlags registers the flags that affect dependency resolution.
func addProjectFlags(fs *pflag.FlagSet, flags *buildFlagValues) {
	fs.StringVarP(&flags.projectDir, "project", "C", ".", "project directory holding pyproject.toml")
	fs.BoolVar(&flags.strict, "strict", false, "fail when a dependency is not installed")
	fs.StringSliceVar(&flags.sitePaths, "site-packages", nil, "site-packages directory to scan (repeatable)")
}
