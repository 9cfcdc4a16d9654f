// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/mcwrap/mcwrap/internal/builder"
	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/merge"
)

// renderDiagnostics prints one line per diagnostic.
func renderDiagnostics(w io.Writer, diags []diag.Diagnostic) {
	for _, d := range diags {
		marker := WarningStyle.Render("!")
		if d.Severity == diag.SeverityError {
			marker = ErrorStyle.Render("✗")
		}
		line := fmt.Sprintf("%s %s %s", marker, VerboseStyle.Render("["+d.Code+"]"), d.Message)
		if d.Path != "" {
			line += " " + SubtitleStyle.Render("("+d.Path+")")
		}
		fmt.Fprintln(w, line)
	}
}

// renderSummary prints the closing line of a pass. Every diagnostic counts
// as a warning because none of them aborted the pass.
func renderSummary(w io.Writer, what string, diags []diag.Diagnostic) {
	if n := len(diags); n > 0 {
		fmt.Fprintf(w, "%s %s completed with %d warning(s)\n", WarningStyle.Render("!"), what, n)
		return
	}
	fmt.Fprintf(w, "%s %s completed\n", SuccessStyle.Render("✓"), what)
}

// renderBuild prints the outcome of a full build.
func renderBuild(w io.Writer, res *builder.Result, verbose bool) {
	fmt.Fprintf(w, "%s %s → %s\n",
		TitleStyle.Render("Merged"),
		PackageStyle.Render(res.Resolution.Root.Name),
		res.Target)
	if verbose {
		fmt.Fprintf(w, "%s %s\n", VerboseStyle.Render("order:"), orderLine(res.Resolution.Result.Order))
	}
	fmt.Fprintf(w, "%s\n", SubtitleStyle.Render(reportLine(res.Report)))
	renderDiagnostics(w, res.Diagnostics)
	renderSummary(w, "build", res.Diagnostics)
}

// renderPass prints the outcome of one incremental merge.
func renderPass(w io.Writer, rep *merge.Report, changed []string) {
	fmt.Fprintf(w, "%s %d change(s): %s\n",
		PackageStyle.Render("→"),
		len(changed),
		SubtitleStyle.Render(reportLine(rep)))
	renderDiagnostics(w, rep.Diagnostics)
	renderSummary(w, "merge", rep.Diagnostics)
}

func reportLine(rep *merge.Report) string {
	return fmt.Sprintf("%d written, %d unchanged, %d removed", rep.Written, rep.Unchanged, rep.Removed)
}

func orderLine(order depgraph.MergeOrder) string {
	line := ""
	for i, name := range order.Names() {
		if i > 0 {
			line += " → "
		}
		line += name
	}
	return line
}

// dependencyTree renders the resolved tree. A package reached a second time
// through another consumer is shown once more but not expanded.
func dependencyTree(root *depgraph.Node) *tree.Tree {
	seen := make(map[string]bool)
	var build func(n *depgraph.Node) *tree.Tree
	build = func(n *depgraph.Node) *tree.Tree {
		if seen[n.Package.Name] {
			return tree.Root(nodeLabel(n) + " " + VerboseStyle.Render("(shared)"))
		}
		seen[n.Package.Name] = true
		t := tree.Root(nodeLabel(n))
		for _, name := range n.ChildNames {
			if child, ok := n.Children[name]; ok {
				t.Child(build(child))
			}
		}
		return t
	}
	return build(root).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(treeBranchStyle)
}

func nodeLabel(n *depgraph.Node) string {
	label := PackageStyle.Render(n.Package.Name)
	if n.Package.Version != "" {
		label += " " + SubtitleStyle.Render(n.Package.Version)
	}
	return label
}

// mergeOrderTable renders the merge order with each package's source root.
func mergeOrderTable(order depgraph.MergeOrder) *table.Table {
	headerStyle := lipgloss.NewStyle().Foreground(ColorMuted).Bold(true)
	rows := make([][]string, 0, len(order))
	for i, p := range order {
		rows = append(rows, []string{strconv.Itoa(i + 1), p.Name, string(p.ProjectType), filepath.Clean(p.SourceRoot)})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(treeBranchStyle).
		Headers("#", "PACKAGE", "TYPE", "SOURCE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 1:
				return base.Foreground(ColorHighlight)
			}
			return base
		})
}
