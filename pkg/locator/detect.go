// SPDX-License-Identifier: MPL-2.0

package locator

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// detectTimeout bounds the interpreter query in DetectSitePackages.
const detectTimeout = 10 * time.Second

var (
	// envPrefixes name an active Python environment, most specific first.
	envPrefixes = []string{"VIRTUAL_ENV", "CONDA_PREFIX"}

	// sitePatterns match site-packages under an environment prefix: the
	// POSIX layout first, then the Windows one.
	sitePatterns = []string{"lib/python3*/site-packages", "Lib/site-packages"}

	pythonCommands = []string{"python3", "python"}
)

const siteQuery = "import site; print('\\n'.join(site.getsitepackages()))"

// DetectSitePackages returns the site-packages directories of the active
// Python environment. An environment named by VIRTUAL_ENV or CONDA_PREFIX
// wins; otherwise the python interpreter on PATH is asked. It returns nil
// when nothing is found.
func DetectSitePackages(ctx context.Context) []string {
	for _, env := range envPrefixes {
		prefix := os.Getenv(env)
		if prefix == "" {
			continue
		}
		if dirs := prefixSitePackages(prefix); len(dirs) > 0 {
			return dirs
		}
	}
	return interpreterSitePackages(ctx)
}

func prefixSitePackages(prefix string) []string {
	fsys := os.DirFS(prefix)
	var dirs []string
	for _, pattern := range sitePatterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			dir := filepath.Join(prefix, filepath.FromSlash(m))
			if isDir(dir) && !slices.Contains(dirs, dir) {
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs
}

func interpreterSitePackages(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	for _, name := range pythonCommands {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		out, err := exec.CommandContext(ctx, path, "-c", siteQuery).Output()
		if err != nil {
			continue
		}
		var dirs []string
		sc := bufio.NewScanner(bytes.NewReader(out))
		for sc.Scan() {
			if dir := string(bytes.TrimSpace(sc.Bytes())); dir != "" && isDir(dir) {
				dirs = append(dirs, dir)
			}
		}
		if len(dirs) > 0 {
			return dirs
		}
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
