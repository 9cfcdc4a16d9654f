// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcwrap/mcwrap/internal/builder"
)

// newDepsCommand creates the `mcwrap deps` command.
func newDepsCommand(app *App) *cobra.Command {
	var flags buildFlagValues

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Show the resolved dependency tree and merge order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := app.builderOptions(&flags, cmd.Flags().Changed)
			if err != nil {
				return app.fail(cmd, explain("resolve dependencies", flags.projectDir, err))
			}
			res, err := builder.New(opts).Resolve(cmd.Context())
			if err != nil {
				return app.fail(cmd, explain("resolve dependencies", flags.projectDir, err))
			}

			w := app.stdout
			fmt.Fprintln(w, TitleStyle.Render("Dependencies"))
			fmt.Fprintln(w, dependencyTree(res.Result.Tree))
			fmt.Fprintln(w)
			fmt.Fprintln(w, TitleStyle.Render("Merge order"))
			fmt.Fprintln(w, mergeOrderTable(res.Result.Order))
			renderDiagnostics(w, res.Result.Diagnostics)
			renderSummary(w, "resolution", res.Result.Diagnostics)
			return nil
		},
	}

	addProjectFlags(cmd.Flags(), &flags)
	return cmd
}
