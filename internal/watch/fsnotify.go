// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/mcwrap/mcwrap/pkg/fspath"
)

// defaultIgnores lists path patterns that are always excluded from watching,
// regardless of user-supplied ignore patterns. These cover VCS metadata,
// Python caches, editor scratch files, and OS metadata files that generate
// high-frequency noise. Dot-prefixed entries are never pack content, so the
// dotfile patterns also catch .git, .DS_Store and vim's .name.swp.
var defaultIgnores = []string{
	"**/.*/**",
	"**/.*",
	"**/__pycache__/**",
	"**/__pycache__",
	"**/*.egg-info/**",
	"**/*.pyc",
	"**/*.swp",
	"**/*.swo",
	"**/*.tmp",
	"**/*~",
	"**/Thumbs.db",
}

type (
	// FSNotifySource is the EventSource backed by fsnotify. Every directory
	// under each root is registered; directories created later are added as
	// their Create events arrive.
	FSNotifySource struct {
		// Ignore holds extra doublestar patterns, matched against the path
		// relative to its root.
		Ignore []string
		Logger *log.Logger
	}

	fsnotifySubscription struct {
		fsw     *fsnotify.Watcher
		roots   []string
		ignores []string
		logger  *log.Logger
		events  chan ChangeEvent
		errors  chan error
		done    chan struct{}
	}
)

// Subscribe registers every non-ignored directory under roots and starts
// translating fsnotify events.
func (s *FSNotifySource) Subscribe(ctx context.Context, roots []string) (Subscription, error) {
	if err := validatePatterns(s.Ignore); err != nil {
		return nil, err
	}
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	sub := &fsnotifySubscription{
		fsw:     fsw,
		roots:   roots,
		ignores: append(append([]string{}, defaultIgnores...), s.Ignore...),
		logger:  logger,
		events:  make(chan ChangeEvent),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	for _, root := range roots {
		if err := sub.addDirectories(root); err != nil {
			fsw.Close() //nolint:errcheck // best-effort cleanup
			return nil, err
		}
	}

	go sub.loop(ctx)
	return sub, nil
}

func (s *fsnotifySubscription) Events() <-chan ChangeEvent { return s.events }

func (s *fsnotifySubscription) Errors() <-chan error { return s.errors }

// Close stops the translation loop and releases the fsnotify watcher.
func (s *fsnotifySubscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.fsw.Close()
}

func (s *fsnotifySubscription) loop(ctx context.Context) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return

		case evt, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			ev, ok := s.translate(evt)
			if !ok {
				continue
			}
			// Auto-add newly created directories so recursive watches
			// extend to directories created after startup.
			if ev.Kind == Created {
				s.maybeAddDir(ev.Root, ev.Path)
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			// isFatalFsnotifyError is platform-specific (see watcher_fatal_*.go).
			if isFatalFsnotifyError(err) {
				select {
				case s.errors <- fmt.Errorf("watch: fatal fsnotify error: %w", err):
				default:
				}
				return
			}
			s.logger.Warn("fsnotify error", "err", err)
		}
	}
}

func (s *fsnotifySubscription) translate(evt fsnotify.Event) (ChangeEvent, bool) {
	root, rel, ok := s.locate(evt.Name)
	if !ok || s.isIgnored(rel) {
		return ChangeEvent{}, false
	}

	ev := ChangeEvent{Path: evt.Name, Root: root}
	switch {
	case evt.Has(fsnotify.Create):
		ev.Kind = Created
	case evt.Has(fsnotify.Write):
		ev.Kind = Modified
	case evt.Has(fsnotify.Remove):
		ev.Kind = Deleted
	case evt.Has(fsnotify.Rename):
		ev.Kind = Moved
	default:
		// Chmod only.
		return ChangeEvent{}, false
	}
	return ev, true
}

// locate returns the innermost root containing path.
func (s *fsnotifySubscription) locate(path string) (root, rel string, ok bool) {
	return fspath.Innermost(s.roots, path)
}

// addDirectories walks root and adds every non-ignored directory to the
// fsnotify watcher.
func (s *fsnotifySubscription) addDirectories(root string) error {
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			// Best-effort: skip directories we cannot access rather than
			// aborting the entire walk.
			s.logger.Warn("skipping inaccessible path", "path", path, "err", walkDirErr)
			return nil //nolint:nilerr // intentional skip of inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil //nolint:nilerr // skip paths that cannot be made relative
		}
		if rel != "." && s.isIgnored(rel) {
			return filepath.SkipDir
		}

		if addErr := s.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir registers path (and any directories already created under it)
// when it is a directory.
func (s *fsnotifySubscription) maybeAddDir(root, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil //nolint:nilerr // best effort
		}
		if rel, relErr := filepath.Rel(root, p); relErr == nil && s.isIgnored(rel) {
			return filepath.SkipDir
		}
		if addErr := s.fsw.Add(p); addErr != nil {
			s.logger.Warn("add new directory", "path", p, "err", addErr)
		}
		return nil
	})
}

// isIgnored returns true if rel (relative to its root) matches any ignore pattern.
func (s *fsnotifySubscription) isIgnored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	// The root itself is never ignored.
	if normalized == "." || normalized == "" {
		return false
	}
	for _, pat := range s.ignores {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	out := make([]string, len(defaultIgnores))
	copy(out, defaultIgnores)
	return out
}

// validatePatterns checks that every pattern is a valid doublestar glob.
func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}
	return nil
}
