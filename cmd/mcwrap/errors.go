// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcwrap/mcwrap/internal/builder"
	"github.com/mcwrap/mcwrap/internal/issue"
	"github.com/mcwrap/mcwrap/internal/watch"
	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/locator"
	"github.com/mcwrap/mcwrap/pkg/manifest"
	"github.com/mcwrap/mcwrap/pkg/merge"
)

// classifyError maps a fatal error to the issue catalog entry that explains it.
// It returns 0 when no entry applies.
func classifyError(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.IssueID != 0 {
		return ae.IssueID
	}

	switch {
	case errors.Is(err, builder.ErrNoProject):
		return issue.ManifestNotFoundId
	case errors.Is(err, depgraph.ErrCyclicDependency):
		return issue.DependencyCycleId
	case errors.Is(err, locator.ErrLocator):
		return issue.LocatorRecordId
	case errors.Is(err, depgraph.ErrUnresolvedDependency):
		return issue.DependencyNotFoundId
	case errors.Is(err, manifest.ErrManifest):
		return issue.ManifestParseErrorId
	case errors.Is(err, merge.ErrUnsafeTarget):
		return issue.UnsafeTargetId
	case errors.Is(err, os.ErrPermission):
		return issue.PermissionDeniedId
	case errors.Is(err, merge.ErrMergeIO):
		return issue.MergeFailedId
	case errors.Is(err, watch.ErrWatchDelivery):
		return issue.WatchFailedId
	}
	return 0
}

// explain wraps a fatal command error as an ActionableError naming the
// operation, the project directory and what to try next. Errors that are
// already actionable, such as configuration failures, pass through.
func explain(op, projectDir string, err error) error {
	var ae *issue.ActionableError
	if err == nil || errors.As(err, &ae) {
		return err
	}
	return issue.NewErrorContext().
		WithOperation(op).
		WithResource(projectDir).
		WithSuggestions(suggestionsFor(err)...).
		WithIssue(classifyError(err)).
		Wrap(err).
		BuildError()
}

// suggestionsFor lists next steps for err, naming the package, file or cycle
// the error records.
func suggestionsFor(err error) []string {
	var (
		cycle      *depgraph.CyclicDependencyError
		record     *locator.LocatorError
		unresolved *depgraph.UnresolvedDependencyError
		bad        *manifest.ManifestError
		ioErr      *merge.MergeIOError
	)
	switch {
	case errors.Is(err, builder.ErrNoProject):
		return []string{"Run mcwrap from the project root, or pass -C <dir>"}
	case errors.As(err, &cycle):
		out := []string{"Run `mcwrap deps` on a package in the cycle to inspect its tree"}
		if len(cycle.Cycle) >= 2 {
			out = append(out, fmt.Sprintf("Remove the %s -> %s requirement or move the shared files into a new package",
				cycle.Cycle[0], cycle.Cycle[1]))
		}
		return out
	case errors.As(err, &record):
		return []string{
			fmt.Sprintf("Reinstall %s: pip install --force-reinstall -e <path to %s>", record.Package, record.Package),
			fmt.Sprintf("Or remove the stale record %s", record.Record),
		}
	case errors.As(err, &unresolved):
		return []string{
			fmt.Sprintf("Install %s in editable mode: pip install -e <path to %s>", unresolved.Dependency, unresolved.Dependency),
			"Point site_packages or --site-packages at the environment it is installed in",
			"Drop --strict to build without it",
		}
	case errors.As(err, &bad):
		return []string{fmt.Sprintf("Check [project] name and [tool.mcpywrap] project_type in %s", bad.Path)}
	case errors.Is(err, merge.ErrUnsafeTarget):
		return []string{
			"Choose a target outside every package directory with --target",
			"Or set target_dir under [tool.mcpywrap]",
		}
	case errors.Is(err, os.ErrPermission):
		return []string{
			"Check write access to the target directory",
			"Close the game client if it holds files in the target",
		}
	case errors.As(err, &ioErr):
		return []string{fmt.Sprintf("Check %s, then run the build again; unchanged files are skipped", ioErr.Path)}
	case errors.Is(err, watch.ErrWatchDelivery):
		return []string{
			"Raise the inotify watch limit (fs.inotify.max_user_watches)",
			"Increase watch.max_resubscribe in the configuration",
		}
	}
	return nil
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// use their own Format; verbose mode shows the full chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderError writes err and, in verbose mode, the matching issue guide.
func renderError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	guide := issue.Get(classifyError(err))
	if guide == nil {
		return
	}
	if !verbose {
		fmt.Fprintf(w, "%s\n", VerboseStyle.Render("Run with --verbose for troubleshooting steps."))
		return
	}
	if md, renderErr := guide.Render("dark"); renderErr == nil {
		fmt.Fprint(w, md)
	}
}

// fail renders err on the command's error stream and converts it into an
// ExitError so the process exits 1 without cobra printing it again.
func (a *App) fail(cmd *cobra.Command, err error) error {
	renderError(a.stderr, err, a.verbose())
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return &ExitError{Code: 1}
}
