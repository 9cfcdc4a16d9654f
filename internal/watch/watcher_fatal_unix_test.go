// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
)

// TestSubscriptionBreakingErrors checks which inotify failures end a dev
// session's subscription (so the Watcher resubscribes) and which are only
// logged while watching pack directories.
func TestSubscriptionBreakingErrors(t *testing.T) {
	t.Parallel()

	addDir := func(err error) error {
		return fmt.Errorf("watch: add directory %q: %w", "/proj/resource_pack/textures",
			&os.PathError{Op: "inotify_add_watch", Path: "/proj/resource_pack/textures", Err: err})
	}

	tests := []struct {
		name   string
		err    error
		breaks bool
	}{
		{name: "watch limit reached on a large resource pack", err: addDir(syscall.ENOSPC), breaks: true},
		{name: "descriptor limit reached by the dev process", err: syscall.EMFILE, breaks: true},
		{name: "system descriptor table full", err: syscall.ENFILE, breaks: true},
		{name: "pack directory not readable", err: addDir(syscall.EACCES), breaks: false},
		{name: "pack directory owned by another user", err: syscall.EPERM, breaks: false},
		{name: "pack directory removed before it was watched", err: addDir(syscall.ENOENT), breaks: false},
		{name: "queue overflow is recovered by rescanning", err: errors.New("fsnotify: queue or buffer overflow"), breaks: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isFatalFsnotifyError(tt.err); got != tt.breaks {
				t.Errorf("isFatalFsnotifyError(%v) = %v, want %v", tt.err, got, tt.breaks)
			}
		})
	}
}
