// SPDX-License-Identifier: MPL-2.0

// Package watch turns filesystem change notifications for a set of package
// roots into serialized, debounced batches.
//
// A Watcher runs two goroutines under one errgroup. The pump owns the
// notification subscription, forwards events into a queue and resubscribes
// with backoff when delivery breaks. The worker runs the debounce state
// machine (Idle, Debouncing, Merging) and is the only caller of OnChange, so
// no two change batches are ever handled concurrently.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcwrap/mcwrap/internal/clock"
)

const (
	// DefaultDebounce is the cooldown used when Config.Debounce is not set.
	DefaultDebounce = 2 * time.Second

	// DefaultMaxResubscribe is used when Config.MaxResubscribe is not set.
	DefaultMaxResubscribe = 5

	queueSize = 256
)

const (
	// Idle means no change is pending.
	Idle State = iota
	// Debouncing means changes are being collected until the cooldown ends.
	Debouncing
	// Merging means OnChange is running for a drained batch.
	Merging
)

type (
	// State is the debounce state of a Watcher.
	State int32

	// Config holds the parameters for a Watcher.
	Config struct {
		// Roots are the directories to watch.
		Roots []string
		// Source opens notification subscriptions. Nil uses an FSNotifySource.
		Source EventSource
		// Clock drives the debounce and resubscription timers. Nil uses the
		// real clock.
		Clock clock.Clock
		// Debounce is the cooldown measured from the first event of a batch.
		Debounce time.Duration
		// MaxResubscribe is the number of consecutive failed subscriptions
		// tolerated before Run fails with a *WatchDeliveryError.
		MaxResubscribe int
		// Backoff returns the delay policy between resubscription attempts.
		// Nil uses an exponential policy starting at 200ms.
		Backoff func() backoff.BackOff
		// PackageOf maps a changed path to its owning package name. Optional.
		PackageOf func(path string) string
		// OnChange is called with each debounced batch, sorted by path.
		// Calls never overlap. An error is logged and watching continues.
		OnChange func(ctx context.Context, events []ChangeEvent) error
		Logger   *log.Logger
	}

	// Watcher monitors package roots and serializes change batches.
	// Run must be called exactly once.
	Watcher struct {
		cfg     Config
		state   atomic.Int32
		pending atomic.Int64
		batches atomic.Int64
		started atomic.Bool
	}
)

var stateNames = [...]string{Idle: "idle", Debouncing: "debouncing", Merging: "merging"}

// String returns the lower-case state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// New validates cfg and creates a Watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("watch: no roots to watch")
	}
	if cfg.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Source == nil {
		cfg.Source = &FSNotifySource{Logger: cfg.Logger}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxResubscribe <= 0 {
		cfg.MaxResubscribe = DefaultMaxResubscribe
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}

	roots := make([]string, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve root %q: %w", r, err)
		}
		roots = append(roots, abs)
	}
	cfg.Roots = roots

	return &Watcher{cfg: cfg}, nil
}

// State returns the current debounce state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Pending returns the number of distinct paths waiting for the next batch.
func (w *Watcher) Pending() int {
	return int(w.pending.Load())
}

// Batches returns the number of batches handed to OnChange so far.
func (w *Watcher) Batches() int64 {
	return w.batches.Load()
}

// Run blocks until ctx is cancelled or delivery fails for good. It returns
// nil on cancellation and a *WatchDeliveryError when resubscription is
// exhausted.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	queue := make(chan ChangeEvent, queueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pump(gctx, queue) })
	g.Go(func() error { return w.work(gctx, queue) })

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// work is the serialized merge worker.
func (w *Watcher) work(ctx context.Context, queue <-chan ChangeEvent) error {
	pending := newBatch()
	var cooldown <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-queue:
			w.enqueue(pending, ev)
			if w.State() == Idle {
				// The window is fixed from the first event of a batch.
				cooldown = w.cfg.Clock.After(w.cfg.Debounce)
				w.setState(Debouncing)
			}

		case <-cooldown:
			cooldown = nil
			w.setState(Merging)
			events := pending.drain()
			w.pending.Store(0)
			w.batches.Add(1)
			w.cfg.Logger.Debug("change batch", "events", len(events))
			if err := w.cfg.OnChange(ctx, events); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.cfg.Logger.Error("handling changes failed", "err", err)
			}

			// Anything that arrived while merging starts the next cycle.
			for drained := false; !drained; {
				select {
				case ev := <-queue:
					w.enqueue(pending, ev)
				default:
					drained = true
				}
			}
			if pending.len() > 0 {
				cooldown = w.cfg.Clock.After(w.cfg.Debounce)
				w.setState(Debouncing)
			} else {
				w.setState(Idle)
			}
		}
	}
}

func (w *Watcher) enqueue(pending *batch, ev ChangeEvent) {
	if ev.Package == "" && w.cfg.PackageOf != nil {
		ev.Package = w.cfg.PackageOf(ev.Path)
	}
	pending.add(ev)
	w.pending.Store(int64(pending.len()))
}

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
}

// pump keeps a subscription open and forwards its events to queue.
func (w *Watcher) pump(ctx context.Context, queue chan<- ChangeEvent) error {
	policy := w.cfg.Backoff()
	failures := 0
	resubscribed := false

	for {
		sub, err := w.cfg.Source.Subscribe(ctx, w.cfg.Roots)
		if err == nil {
			if resubscribed {
				// Changes may have been missed while disconnected; rescan every root.
				w.cfg.Logger.Info("file watching resumed", "roots", len(w.cfg.Roots))
				for _, root := range w.cfg.Roots {
					if !send(ctx, queue, ChangeEvent{Path: root, Root: root, Kind: Modified}) {
						sub.Close() //nolint:errcheck // shutting down
						return nil
					}
				}
			}
			var delivered bool
			delivered, err = forward(ctx, sub, queue)
			if closeErr := sub.Close(); closeErr != nil {
				w.cfg.Logger.Debug("close subscription", "err", closeErr)
			}
			if ctx.Err() != nil {
				return nil
			}
			if delivered {
				failures = 0
				policy.Reset()
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		failures++
		if failures > w.cfg.MaxResubscribe {
			return &WatchDeliveryError{Attempts: failures - 1, Cause: err}
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			return &WatchDeliveryError{Attempts: failures, Cause: err}
		}
		w.cfg.Logger.Warn("file change notifications interrupted, resubscribing", "err", err, "attempt", failures, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-w.cfg.Clock.After(delay):
		}
		resubscribed = true
	}
}

// forward copies events until the subscription breaks or ctx ends. It
// reports whether any event was delivered and why forwarding stopped.
func forward(ctx context.Context, sub Subscription, queue chan<- ChangeEvent) (bool, error) {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case err := <-sub.Errors():
			if err == nil {
				err = errors.New("subscription reported a nil error")
			}
			return delivered, err
		case ev, ok := <-sub.Events():
			if !ok {
				return delivered, errors.New("event channel closed")
			}
			if !send(ctx, queue, ev) {
				return delivered, ctx.Err()
			}
			delivered = true
		}
	}
}

func send(ctx context.Context, queue chan<- ChangeEvent, ev ChangeEvent) bool {
	select {
	case queue <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
