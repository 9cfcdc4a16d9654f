// SPDX-License-Identifier: MPL-2.0

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mcwrap/mcwrap/internal/builder"
	"github.com/mcwrap/mcwrap/pkg/merge"
)

// newDevCommand creates the `mcwrap dev` command.
func newDevCommand(app *App) *cobra.Command {
	var (
		flags    buildFlagValues
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Build, then re-merge changed files until interrupted",
		Long: `Run a full build, then watch every package that contributed to the
target and merge changed files incrementally.

Events are batched: a pass starts once the debounce window after the
first event of a batch has elapsed. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := app.builderOptions(&flags, cmd.Flags().Changed)
			if err != nil {
				return app.fail(cmd, explain("watch project", flags.projectDir, err))
			}
			if cmd.Flags().Changed("debounce") {
				opts.Debounce = debounce
			}

			err = builder.New(opts).Dev(cmd.Context(),
				func(res *builder.Result) {
					renderBuild(app.stdout, res, app.verbose())
				},
				func(rep *merge.Report, changed []string) {
					renderPass(app.stdout, rep, changed)
				})
			if err != nil {
				return app.fail(cmd, explain("watch project", flags.projectDir, err))
			}
			return nil
		},
	}

	addBuildFlags(cmd.Flags(), &flags)
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a batch is merged (default from config, 2s)")
	return cmd
}
