// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ManifestNotFoundId Id = iota + 1
	ManifestParseErrorId
	DependencyNotFoundId
	DependencyCycleId
	LocatorRecordId
	UnsafeTargetId
	MergeFailedId
	WatchFailedId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // external references listed under "See also"
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also:\n"
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# No mcwrap project found!

mcwrap looks for a ` + "`pyproject.toml`" + ` with a ` + "`[tool.mcpywrap]`" + ` table in the
current directory.

## Things you can try:
- Run the command from the project root
- Add the project table:
~~~toml
[project]
name = "my-addon"
version = "0.1.0"
dependencies = ["core-lib>=1.0"]

[tool.mcpywrap]
project_type = "addon"
~~~`,
		extLinks: []HttpLink{"https://packaging.python.org/en/latest/specifications/pyproject-toml/"},
	}

	manifestParseErrorIssue = &Issue{
		id: ManifestParseErrorId,
		mdMsg: `
# Failed to parse pyproject.toml!

The project manifest is not valid TOML or does not match what mcwrap expects.

## Common causes:
- Unbalanced quotes or brackets
- ` + "`project.dependencies`" + ` is not a list of strings
- ` + "`tool.mcpywrap.project_type`" + ` is neither ` + "`addon`" + ` nor ` + "`map`",
		extLinks: []HttpLink{"https://toml.io/en/v1.0.0"},
	}

	dependencyNotFoundIssue = &Issue{
		id: DependencyNotFoundId,
		mdMsg: `
# Dependency not installed!

A declared dependency is not installed in any scanned site-packages directory.

## Things you can try:
- Install the dependency in editable mode:
~~~
$ pip install -e ../core-lib
~~~

- Add the environment's site-packages to ` + "`site_packages`" + ` in your config
- Drop ` + "`--strict`" + ` to build without the missing package`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle detected!

Packages depend on each other in a loop, so no merge order exists.

## Things you can try:
- Run ` + "`mcwrap deps`" + ` to inspect the dependency tree
- Move the shared files into a new package both sides depend on`,
	}

	locatorRecordIssue = &Issue{
		id: LocatorRecordId,
		mdMsg: `
# Broken install record!

An installed package has a ` + "`direct_url.json`" + ` that mcwrap cannot follow.

## Things you can try:
- Reinstall the package:
~~~
$ pip install --force-reinstall -e ../the-package
~~~`,
	}

	unsafeTargetIssue = &Issue{
		id: UnsafeTargetId,
		mdMsg: `
# Unsafe build target!

The target directory contains a package source tree. Writing there could
overwrite your sources.

## Things you can try:
- Pick a target outside every package directory with ` + "`--target`" + `
- Set ` + "`target_dir`" + ` under ` + "`[tool.mcpywrap]`",
	}

	mergeFailedIssue = &Issue{
		id: MergeFailedId,
		mdMsg: `
# Merge failed!

Some files could not be read or written. The target may be partially updated.

## Things you can try:
- Check the warnings printed above for the affected paths
- Make sure the game is not holding the target files open
- Run the build again; unchanged files are skipped`,
	}

	watchFailedIssue = &Issue{
		id: WatchFailedId,
		mdMsg: `
# File watching stopped!

The filesystem watcher failed repeatedly and could not be restarted.

## Things you can try:
- Raise the inotify watch limit:
~~~
$ sudo sysctl fs.inotify.max_user_watches=524288
~~~

- Increase ` + "`watch.max_resubscribe`" + ` in your config`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Show the effective configuration:
~~~
$ mcwrap config show
~~~

- Write a fresh default file:
~~~
$ mcwrap config init
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

mcwrap could not write to the build target.

## Things you can try:
- Check the target directory permissions
- Close tools that lock files in the target
- Build into a directory you own`,
	}

	issues = map[Id]*Issue{
		manifestNotFoundIssue.Id():   manifestNotFoundIssue,
		manifestParseErrorIssue.Id(): manifestParseErrorIssue,
		dependencyNotFoundIssue.Id(): dependencyNotFoundIssue,
		dependencyCycleIssue.Id():    dependencyCycleIssue,
		locatorRecordIssue.Id():      locatorRecordIssue,
		unsafeTargetIssue.Id():       unsafeTargetIssue,
		mergeFailedIssue.Id():        mergeFailedIssue,
		watchFailedIssue.Id():        watchFailedIssue,
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		permissionDeniedIssue.Id():   permissionDeniedIssue,
	}
)

func Get(id Id) *Issue {
	return issues[id]
}
