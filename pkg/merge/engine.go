// SPDX-License-Identifier: MPL-2.0

package merge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/mcwrap/mcwrap/pkg/depgraph"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/fspath"
	"github.com/mcwrap/mcwrap/pkg/manifest"
)

// ErrUnsafeTarget is returned when the target root would overlap a source tree.
var ErrUnsafeTarget = errors.New("target overlaps a package source tree")

type (
	// Options configures an Engine.
	Options struct {
		// ForceMerge reports every overwrite of differing file contents as a
		// warning. The overwrite happens either way.
		ForceMerge bool
		// Clean removes files in the managed target subtrees that no package
		// provides anymore. Only full merges clean.
		Clean bool
		// Policy overrides DefaultPolicy().
		Policy *Policy
		// Logger receives per-file actions at debug level. Nil uses log.Default().
		Logger *log.Logger
	}

	// Engine applies merge plans to a filesystem. Sources and target live on
	// the same afero.Fs.
	Engine struct {
		fs     afero.Fs
		opts   Options
		logger *log.Logger
	}

	// Report summarizes one merge pass.
	Report struct {
		Written     int
		Unchanged   int
		Removed     int
		Diagnostics []diag.Diagnostic
	}
)

// New creates an Engine on fs.
func New(fs afero.Fs, opts Options) *Engine {
	if opts.Policy == nil {
		opts.Policy = DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{fs: fs, opts: opts, logger: logger}
}

// Partial reports whether any file was skipped or degraded during the pass.
func (r *Report) Partial() bool {
	return len(r.Diagnostics) > 0
}

func (r *Report) add(d diag.Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
}

// Plan walks the layers of order and records every file they contribute to
// target. Unreadable entries are reported in the returned diagnostics and
// skipped.
func (e *Engine) Plan(ctx context.Context, order depgraph.MergeOrder, target string) (*Plan, []diag.Diagnostic, error) {
	root := order.Root()
	if root == nil {
		return nil, nil, errors.New("plan: empty merge order")
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return nil, nil, fmt.Errorf("plan: resolve target: %w", err)
	}

	p := &Plan{
		Target:      target,
		ProjectType: root.ProjectType,
		Layers:      buildLayers(e.fs, order),
		policy:      e.opts.Policy,
		managed:     managedPrefixes(e.fs, order),
		entries:     make(map[string][]contribution),
	}
	for _, l := range p.Layers {
		if fspath.Within(target, l.Source) {
			return nil, nil, fmt.Errorf("%w: %s contains %s", ErrUnsafeTarget, target, l.Source)
		}
	}

	var diags []diag.Diagnostic
	for i := range p.Layers {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		diags = append(diags, e.walkLayer(p, i, p.Layers[i].Source, nil)...)
	}
	return p, diags, nil
}

const maxLinkHops = 16

// walkLayer adds every file under dir (inside layer i) to the plan. Added
// target paths are passed to onAdd when it is non-nil.
func (e *Engine) walkLayer(p *Plan, i int, dir string, onAdd func(target string)) []diag.Diagnostic {
	layer := p.Layers[i]
	var diags []diag.Diagnostic

	root := e.resolveLink(dir)
	_ = afero.Walk(e.fs, root, func(walked string, info os.FileInfo, err error) error {
		abs := walked
		if root != dir {
			if r, relErr := filepath.Rel(root, walked); relErr == nil {
				abs = filepath.Join(dir, r)
			}
		}
		if err != nil {
			diags = append(diags, diag.Error(diag.CodeMergeIO, abs,
				&MergeIOError{Op: "read", Path: abs, Package: layer.Package.Name, Cause: err}))
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if fspath.Within(p.Target, abs) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(layer.Source, abs)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.policy.Excluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// File links are followed; directory links are not descended.
			resolved, statErr := e.fs.Stat(walked)
			if statErr != nil {
				diags = append(diags, diag.Error(diag.CodeMergeIO, abs,
					&MergeIOError{Op: "read", Path: abs, Package: layer.Package.Name, Cause: statErr}))
				return nil
			}
			if resolved.IsDir() {
				diags = append(diags, diag.Warning(diag.CodeMergeIO, abs,
					&MergeIOError{Op: "read", Path: abs, Package: layer.Package.Name, Cause: errLinkedDir}))
				return nil
			}
			info = resolved
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			diags = append(diags, diag.Warning(diag.CodeMergeIO, abs,
				&MergeIOError{Op: "read", Path: abs, Package: layer.Package.Name,
					Cause: fmt.Errorf("unsupported file type %s", info.Mode().Type())}))
			return nil
		}
		if target, ok := p.add(i, rel, abs); ok && onAdd != nil {
			onAdd(target)
		}
		return nil
	})
	return diags
}

// resolveLink returns the directory a symlinked dir points to, so that a
// linked pack directory is walked like a real one. Other paths, and link
// chains longer than maxLinkHops, are returned unchanged.
func (e *Engine) resolveLink(dir string) string {
	lstater, ok := e.fs.(afero.Lstater)
	if !ok {
		return dir
	}
	reader, ok := e.fs.(afero.LinkReader)
	if !ok {
		return dir
	}

	current := dir
	for range maxLinkHops {
		info, _, err := lstater.LstatIfPossible(current)
		if err != nil {
			return dir
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current
		}
		dest, err := reader.ReadlinkIfPossible(current)
		if err != nil {
			return dir
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(current), dest)
		}
		current = filepath.Clean(dest)
	}
	return dir
}

// Merge plans order into target and applies the whole plan. The returned
// Plan can be passed to MergePaths for incremental updates.
func (e *Engine) Merge(ctx context.Context, order depgraph.MergeOrder, target string) (*Plan, *Report, error) {
	p, diags, err := e.Plan(ctx, order, target)
	if err != nil {
		return nil, nil, err
	}
	rep, err := e.Apply(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	rep.Diagnostics = append(diags, rep.Diagnostics...)
	return p, rep, nil
}

// Apply materializes every target path of p, synthesizes map reference
// documents and, with Options.Clean, prunes stale files.
func (e *Engine) Apply(ctx context.Context, p *Plan) (*Report, error) {
	rep := &Report{}
	for _, target := range p.Targets() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.materialize(p, target, rep)
	}
	if p.ProjectType == manifest.ProjectTypeMap {
		e.synthesize(p, rep)
	}
	if e.opts.Clean {
		e.clean(p, rep)
	}

	e.logger.Info("merge complete", "target", p.Target, "written", rep.Written, "unchanged", rep.Unchanged, "removed", rep.Removed, "warnings", len(rep.Diagnostics))
	return rep, nil
}

// MergePaths updates p for the changed absolute source paths and
// re-materializes only the affected target paths. A path that no longer
// exists is treated as a deletion: its target is rewritten from the
// remaining contributors, or removed when none remain.
func (e *Engine) MergePaths(ctx context.Context, p *Plan, changed []string) (*Report, error) {
	rep := &Report{}
	affected := make(map[string]bool)
	mark := func(target string) { affected[target] = true }

	for _, abs := range changed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		abs = filepath.Clean(abs)
		if fspath.Within(p.Target, abs) {
			continue
		}
		i, rel, ok := p.Locate(abs)
		if !ok || (rel != "." && p.policy.Excluded(rel)) {
			continue
		}

		info, err := e.fs.Stat(abs)
		switch {
		case errors.Is(err, os.ErrNotExist):
			for _, t := range p.remove(abs) {
				mark(t)
			}
		case err != nil:
			rep.add(diag.Error(diag.CodeMergeIO, abs,
				&MergeIOError{Op: "read", Path: abs, Package: p.Layers[i].Package.Name, Cause: err}))
		case info.IsDir():
			// Drop what was under the directory, then re-add what is there now.
			for _, t := range p.remove(abs) {
				mark(t)
			}
			for _, d := range e.walkLayer(p, i, abs, mark) {
				rep.add(d)
			}
		case info.Mode().IsRegular():
			if t, ok := p.add(i, rel, abs); ok {
				mark(t)
			}
		}
	}

	targets := slices.Sorted(maps.Keys(affected))

	resynthesize := false
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.materialize(p, target, rep)
		if isIdentityTarget(target) {
			resynthesize = true
		}
	}
	if resynthesize && p.ProjectType == manifest.ProjectTypeMap {
		e.synthesize(p, rep)
	}

	e.logger.Debug("incremental merge", "changed", len(changed), "targets", len(targets), "written", rep.Written, "removed", rep.Removed)
	return rep, nil
}

// materialize brings one target path in line with its contributions.
func (e *Engine) materialize(p *Plan, target string, rep *Report) {
	dst := filepath.Join(p.Target, filepath.FromSlash(target))
	list := p.entries[target]
	if len(list) == 0 {
		e.removeFile(dst, rep)
		return
	}

	strategy := list[len(list)-1].strategy
	if strategy.Kind == IdentitySynthesize {
		return
	}

	var (
		docs    [][]byte
		sources []contribution
	)
	for _, c := range list {
		data, err := afero.ReadFile(e.fs, c.source)
		if err != nil {
			rep.add(diag.Error(diag.CodeMergeIO, c.source,
				&MergeIOError{Op: "read", Path: c.source, Package: p.Layers[c.layer].Package.Name, Cause: err}))
			continue
		}
		docs = append(docs, data)
		sources = append(sources, c)
	}
	if len(docs) == 0 {
		return
	}

	last := docs[len(docs)-1]
	winner := p.Layers[sources[len(sources)-1].layer].Package.Name
	out := last

	if len(docs) > 1 {
		switch strategy.Kind {
		case SemanticJSON:
			merged, err := mergeJSON(strategy, docs)
			if err != nil {
				rep.add(diag.Warning(diag.CodeMergeFallback, target,
					&MergeIOError{Op: "merge", Path: target, Package: winner, Cause: err}))
			} else {
				out = merged
			}
		case KeyValueUnion:
			out = mergeLang(docs)
		default:
			e.reportOverwrite(p, target, docs, sources, rep)
		}
	}

	e.writeFile(dst, out, target, winner, strategy, rep)
}

// reportOverwrite notes contributions whose bytes are replaced by the last one.
func (e *Engine) reportOverwrite(p *Plan, target string, docs [][]byte, sources []contribution, rep *Report) {
	last := docs[len(docs)-1]
	winner := p.Layers[sources[len(sources)-1].layer].Package.Name
	for i, data := range docs[:len(docs)-1] {
		if bytes.Equal(data, last) {
			continue
		}
		loser := p.Layers[sources[i].layer].Package.Name
		if e.opts.ForceMerge {
			rep.add(diag.Diagnostic{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeForcedOverwrite,
				Message:  fmt.Sprintf("%s overwrites the version from %s", winner, loser),
				Path:     target,
			})
			continue
		}
		e.logger.Debug("overwrite", "path", target, "package", winner, "shadowed", loser)
	}
}

func (e *Engine) writeFile(dst string, data []byte, target, pkg string, s Strategy, rep *Report) {
	if existing, err := afero.ReadFile(e.fs, dst); err == nil && bytes.Equal(existing, data) {
		rep.Unchanged++
		return
	}
	if err := e.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		rep.add(diag.Error(diag.CodeMergeIO, target, &MergeIOError{Op: "write", Path: dst, Package: pkg, Cause: err}))
		return
	}
	if err := afero.WriteFile(e.fs, dst, data, 0o644); err != nil {
		rep.add(diag.Error(diag.CodeMergeIO, target, &MergeIOError{Op: "write", Path: dst, Package: pkg, Cause: err}))
		return
	}
	rep.Written++
	e.logger.Debug("write", "path", target, "package", pkg, "strategy", s.Kind)
}

func (e *Engine) removeFile(dst string, rep *Report) {
	err := e.fs.Remove(dst)
	switch {
	case err == nil:
		rep.Removed++
		e.logger.Debug("remove", "path", dst)
	case !errors.Is(err, os.ErrNotExist):
		rep.add(diag.Error(diag.CodeMergeIO, dst, &MergeIOError{Op: "remove", Path: dst, Cause: err}))
	}
}

// synthesize writes the world pack reference documents of a map target.
func (e *Engine) synthesize(p *Plan, rep *Report) {
	for _, doc := range referenceDocs {
		refs := []PackReference{}
		for _, c := range p.packCandidates(doc.packDir) {
			data, err := afero.ReadFile(e.fs, c.source)
			if err != nil {
				rep.add(diag.Error(diag.CodeMergeIO, c.source, &MergeIOError{Op: "read", Path: c.source, Cause: err}))
				continue
			}
			ref, err := parseIdentity(data)
			if err != nil {
				rep.add(diag.Warning(diag.CodeIdentityInvalid, c.source,
					fmt.Errorf("pack %s/%s left out of %s: %w", doc.packDir, c.packDir, doc.target, err)))
				continue
			}
			refs = append(refs, ref)
		}

		data, err := encodeJSON(refs, "  ")
		if err != nil {
			rep.add(diag.Error(diag.CodeMergeIO, doc.target, &MergeIOError{Op: "write", Path: doc.target, Cause: err}))
			continue
		}
		e.writeFile(filepath.Join(p.Target, doc.target), data, doc.target, "", Strategy{Kind: IdentitySynthesize}, rep)
	}
}

// clean removes files under the managed prefixes that the plan no longer
// produces, then any directories left empty.
func (e *Engine) clean(p *Plan, rep *Report) {
	keep := make(map[string]bool, len(p.entries)+len(referenceDocs))
	for target := range p.entries {
		keep[target] = true
	}
	if p.ProjectType == manifest.ProjectTypeMap {
		for _, doc := range referenceDocs {
			keep[doc.target] = true
		}
	}

	for _, prefix := range p.managed {
		base := filepath.Join(p.Target, filepath.FromSlash(prefix))
		var dirs []string
		_ = afero.Walk(e.fs, base, func(abs string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(p.Target, abs)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if info.IsDir() {
				if abs != base {
					dirs = append(dirs, abs)
				}
				return nil
			}
			if !keep[rel] {
				e.removeFile(abs, rep)
			}
			return nil
		})

		// Deepest directories first.
		slices.SortFunc(dirs, func(a, b string) int {
			return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
		})
		for _, dir := range dirs {
			if entries, err := afero.ReadDir(e.fs, dir); err == nil && len(entries) == 0 {
				_ = e.fs.Remove(dir)
			}
		}
	}
}
