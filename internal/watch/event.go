// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

const (
	// Created is reported for new files and directories.
	Created EventKind = iota + 1
	// Modified is reported for content changes.
	Modified
	// Deleted is reported for removed paths.
	Deleted
	// Moved is reported for the old name of a renamed path. The new name
	// arrives as a separate Created event.
	Moved
)

// ErrWatchDelivery is the sentinel wrapped by WatchDeliveryError.
var ErrWatchDelivery = errors.New("watch delivery failed")

type (
	// EventKind classifies a filesystem change.
	EventKind int

	// ChangeEvent is one filesystem change under a watched root.
	ChangeEvent struct {
		// Path is the absolute path that changed.
		Path string
		// Root is the watched root the path lies under.
		Root string
		Kind EventKind
		// Package is the package owning Path. It is filled in by the Watcher.
		Package string
	}

	// EventSource opens subscriptions to filesystem change notifications.
	EventSource interface {
		Subscribe(ctx context.Context, roots []string) (Subscription, error)
	}

	// Subscription delivers events for the roots it was opened with. Delivery
	// is best-effort: events may be duplicated, reordered or coalesced. A
	// value on Errors, or a closed Events channel, means the subscription is
	// broken and must be replaced.
	Subscription interface {
		Events() <-chan ChangeEvent
		Errors() <-chan error
		Close() error
	}

	// WatchDeliveryError reports that the notification source could not be
	// re-established. The watcher stops after returning it.
	//
	//nolint:revive // WatchDeliveryError reads better at call sites than watch.DeliveryError
	WatchDeliveryError struct {
		Attempts int
		Cause    error
	}

	// batch is the deduplicated set of pending events keyed by path. The
	// latest kind for a path wins.
	batch struct {
		events map[string]ChangeEvent
	}
)

var kindNames = map[EventKind]string{
	Created:  "created",
	Modified: "modified",
	Deleted:  "deleted",
	Moved:    "moved",
}

// String returns the lower-case kind name.
func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Error implements the error interface.
func (e *WatchDeliveryError) Error() string {
	return fmt.Sprintf("file change notifications lost after %d resubscription attempt(s): %v", e.Attempts, e.Cause)
}

// Unwrap exposes ErrWatchDelivery and the last cause.
func (e *WatchDeliveryError) Unwrap() []error {
	return []error{ErrWatchDelivery, e.Cause}
}

func newBatch() *batch {
	return &batch{events: make(map[string]ChangeEvent)}
}

func (b *batch) add(ev ChangeEvent) {
	b.events[ev.Path] = ev
}

func (b *batch) len() int {
	return len(b.events)
}

// drain returns the pending events sorted by path and empties the batch.
func (b *batch) drain() []ChangeEvent {
	out := make([]ChangeEvent, 0, len(b.events))
	for _, p := range slices.Sorted(maps.Keys(b.events)) {
		out = append(out, b.events[p])
	}
	clear(b.events)
	return out
}

// Paths returns the changed paths of events.
func Paths(events []ChangeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Path
	}
	return out
}
