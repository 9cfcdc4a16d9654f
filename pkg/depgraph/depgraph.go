// SPDX-License-Identifier: MPL-2.0

package depgraph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mcwrap/mcwrap/internal/dag"
	"github.com/mcwrap/mcwrap/pkg/diag"
	"github.com/mcwrap/mcwrap/pkg/locator"
	"github.com/mcwrap/mcwrap/pkg/manifest"
)

var (
	// ErrUnresolvedDependency is the sentinel wrapped by UnresolvedDependencyError.
	ErrUnresolvedDependency = errors.New("unresolved dependency")

	// ErrCyclicDependency is the sentinel wrapped by CyclicDependencyError.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

type (
	// Locator resolves package names to source roots.
	// *locator.Index satisfies it.
	Locator interface {
		Lookup(ctx context.Context, name string) (string, error)
		InstalledVersion(ctx context.Context, name string) string
	}

	// ManifestReader loads the package whose manifest lives under root.
	ManifestReader func(root string) (*manifest.Package, error)

	// Options configures a Builder.
	Options struct {
		// Strict turns unresolved dependencies into fatal errors.
		Strict bool
		// ReadManifest overrides manifest.Read. Used by tests.
		ReadManifest ManifestReader
		// Logger receives resolution progress. Nil uses log.Default().
		Logger *log.Logger
	}

	// Builder resolves dependency graphs. A Builder holds no per-resolution
	// state and may be reused.
	Builder struct {
		locator Locator
		opts    Options
	}

	// Node is one resolved package and its resolved direct dependencies.
	// Children is keyed by dependency name; ChildNames keeps declaration order.
	Node struct {
		Package    *manifest.Package
		Children   map[string]*Node
		ChildNames []string
	}

	// MergeOrder lists packages so that every package follows all of its
	// dependencies. Each package appears once and the root package is last.
	MergeOrder []*manifest.Package

	// Result is the outcome of one resolution pass.
	Result struct {
		Order MergeOrder
		// Tree is the resolved dependency tree rooted at the root package.
		// Shared dependencies are the same *Node under every consumer.
		Tree *Node
		// Diagnostics are the non-fatal problems met during resolution.
		Diagnostics []diag.Diagnostic
	}

	// UnresolvedDependencyError reports a declared dependency that is not
	// installed locally, or whose install record could not be used.
	UnresolvedDependencyError struct {
		// Consumer is the package that declared the dependency.
		Consumer   string
		Dependency string
		Cause      error
	}

	// CyclicDependencyError reports a dependency cycle. Cycle is the closed
	// path, e.g. [a b a].
	CyclicDependencyError struct {
		Cycle []string
	}

	// resolution is the state of one Resolve call.
	resolution struct {
		*Builder
		ctx      context.Context
		arena    map[string]*Node
		onPath   map[string]bool
		path     []string
		excluded map[string]bool
		graph    *dag.Graph
		diags    []diag.Diagnostic
	}
)

// Error implements the error interface.
func (e *UnresolvedDependencyError) Error() string {
	msg := fmt.Sprintf("%s depends on %s, which is not installed locally", e.Consumer, e.Dependency)
	if e.Cause != nil && !errors.Is(e.Cause, ErrUnresolvedDependency) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes ErrUnresolvedDependency and the locator error.
func (e *UnresolvedDependencyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrUnresolvedDependency}
	}
	return []error{ErrUnresolvedDependency, e.Cause}
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return "dependency cycle: " + strings.Join(e.Cycle, " -> ")
}

// Unwrap returns ErrCyclicDependency.
func (e *CyclicDependencyError) Unwrap() error {
	return ErrCyclicDependency
}

// New creates a Builder that resolves names through loc.
func New(loc Locator, opts Options) *Builder {
	if opts.ReadManifest == nil {
		opts.ReadManifest = manifest.Read
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Builder{locator: loc, opts: opts}
}

// Resolve builds the merge order for root. It fails with a
// *CyclicDependencyError when the declarations contain a cycle, and, in
// strict mode, with an *UnresolvedDependencyError for the first dependency
// that cannot be located. Otherwise unresolved or broken dependencies are
// left out and reported in Result.Diagnostics.
func (b *Builder) Resolve(ctx context.Context, root *manifest.Package) (*Result, error) {
	if root == nil {
		return nil, errors.New("resolve: nil root package")
	}

	r := &resolution{
		Builder:  b,
		ctx:      ctx,
		arena:    make(map[string]*Node),
		onPath:   make(map[string]bool),
		excluded: make(map[string]bool),
		graph:    dag.New(),
	}

	tree, err := r.visit(root)
	if err != nil {
		return nil, err
	}

	names, err := r.graph.TopologicalSort()
	if err != nil {
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			return nil, &CyclicDependencyError{Cycle: cycleErr.Cycle}
		}
		return nil, err
	}

	order := make(MergeOrder, 0, len(names))
	for _, name := range names {
		order = append(order, r.arena[name].Package)
	}

	b.opts.Logger.Debug("resolved merge order", "root", root.Name, "order", strings.Join(order.Names(), ","))
	return &Result{Order: order, Tree: tree, Diagnostics: r.diags}, nil
}

func (r *resolution) visit(pkg *manifest.Package) (*Node, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	node := &Node{Package: pkg, Children: make(map[string]*Node)}
	r.graph.AddNode(pkg.Name)
	r.onPath[pkg.Name] = true
	r.path = append(r.path, pkg.Name)
	defer func() {
		r.path = r.path[:len(r.path)-1]
		delete(r.onPath, pkg.Name)
	}()

	for _, dep := range pkg.Dependencies {
		if r.onPath[dep.Name] {
			start := slices.Index(r.path, dep.Name)
			cycle := append(slices.Clone(r.path[start:]), dep.Name)
			return nil, &CyclicDependencyError{Cycle: cycle}
		}
		if r.excluded[dep.Name] {
			continue
		}

		child, ok := r.arena[dep.Name]
		if !ok {
			childPkg, err := r.load(pkg.Name, dep)
			if err != nil {
				return nil, err
			}
			if childPkg == nil {
				continue
			}
			if child, err = r.visit(childPkg); err != nil {
				return nil, err
			}
		}

		if _, dup := node.Children[dep.Name]; !dup {
			node.ChildNames = append(node.ChildNames, dep.Name)
		}
		node.Children[dep.Name] = child
		r.graph.AddEdge(dep.Name, pkg.Name)
	}

	r.arena[pkg.Name] = node
	return node, nil
}

// load locates and reads one dependency. It returns (nil, nil) when the
// dependency is excluded with a diagnostic.
func (r *resolution) load(consumer string, dep manifest.Dependency) (*manifest.Package, error) {
	root, err := r.locator.Lookup(r.ctx, dep.Name)
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		unresolved := &UnresolvedDependencyError{Consumer: consumer, Dependency: dep.Name, Cause: err}
		if r.opts.Strict {
			return nil, unresolved
		}
		code := diag.CodeUnresolvedDependency
		if errors.Is(err, locator.ErrLocator) {
			code = diag.CodeLocatorRecord
		}
		r.exclude(dep.Name, diag.Warning(code, "", unresolved))
		return nil, nil
	}

	pkg, err := r.opts.ReadManifest(root)
	if err != nil {
		r.exclude(dep.Name, diag.Warning(diag.CodeDependencyManifest, root,
			fmt.Errorf("dependency %s of %s excluded: %w", dep.Name, consumer, err)))
		return nil, nil
	}

	// The arena and graph are keyed by the requested name; the installed
	// manifest's own name only matters if it is a different distribution.
	if manifest.NormalizeName(pkg.Name) != manifest.NormalizeName(dep.Name) {
		d := diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Code:     diag.CodeNameMismatch,
			Message: fmt.Sprintf("%s requires %s, but the package found at %s declares itself %s; using %s",
				consumer, dep.Name, root, pkg.Name, dep.Name),
			Path: root,
		}
		r.diags = append(r.diags, d)
		r.opts.Logger.Warn(d.Message, "code", d.Code)
	}
	pkg.Name = dep.Name

	r.checkVersion(consumer, dep, pkg)
	r.opts.Logger.Debug("resolved dependency", "package", dep.Name, "consumer", consumer, "root", root)
	return pkg, nil
}

func (r *resolution) checkVersion(consumer string, dep manifest.Dependency, pkg *manifest.Package) {
	version := pkg.Version
	if version == "" {
		version = r.locator.InstalledVersion(r.ctx, dep.Name)
	}
	satisfied, ok := dep.SatisfiedBy(version)
	if !ok || satisfied {
		return
	}
	r.diags = append(r.diags, diag.Diagnostic{
		Severity: diag.SeverityWarning,
		Code:     diag.CodeVersionMismatch,
		Message:  fmt.Sprintf("%s requires %s, but %s is installed", consumer, dep, version),
		Path:     pkg.SourceRoot,
	})
}

func (r *resolution) exclude(name string, d diag.Diagnostic) {
	r.excluded[name] = true
	r.diags = append(r.diags, d)
	r.opts.Logger.Warn(d.Message, "code", d.Code)
}

// Names returns the package names in merge order.
func (o MergeOrder) Names() []string {
	names := make([]string, len(o))
	for i, p := range o {
		names[i] = p.Name
	}
	return names
}

// Root returns the last package, which is the root of the resolution.
func (o MergeOrder) Root() *manifest.Package {
	if len(o) == 0 {
		return nil
	}
	return o[len(o)-1]
}

// Dependencies returns every package except the root, in merge order.
func (o MergeOrder) Dependencies() MergeOrder {
	if len(o) == 0 {
		return nil
	}
	return o[:len(o)-1]
}

// Index returns the position of the named package, or -1.
func (o MergeOrder) Index(name string) int {
	return slices.IndexFunc(o, func(p *manifest.Package) bool { return p.Name == name })
}
