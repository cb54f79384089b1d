// Package monitor re-patches extensions whenever the extensions manifest
// changes, until the process it was started for exits.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"codepatch/internal/logging"
)

// ErrWatcherClosed is returned when the filesystem subscription ends on its
// own.
var ErrWatcherClosed = errors.New("watcher closed")

// Monitor reacts to writes of the manifest file.
type Monitor struct {
	manifest string
	rescan   func()
	debounce time.Duration
	log      *logging.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce sets how long a manifest change must settle before rescan
// runs. Further changes seen meanwhile are folded into the same rescan.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		m.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

// New creates a Monitor calling rescan after each settled change of the
// manifest file.
func New(manifest string, rescan func(), opts ...Option) *Monitor {
	m := &Monitor{
		manifest: filepath.Clean(manifest),
		rescan:   rescan,
		debounce: 5 * time.Second,
		log:      logging.Discard(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Run blocks until live reports that the parent exited (nil), ctx is
// cancelled (nil) or one of the inputs fails (error).
func (m *Monitor) Run(ctx context.Context, live *Liveness) error {
	dir := filepath.Dir(m.manifest)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// A manifest replaced by rename is a new inode; watch its directory.
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	m.log.Info("monitoring manifest", "path", m.manifest, "debounce", m.debounce)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped", "reason", context.Cause(ctx))
			return nil

		case err := <-live.Done():
			if err != nil {
				return fmt.Errorf("liveness pipe: %w", err)
			}
			m.log.Info("parent exited, monitor stopping")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if !m.relevant(ev) {
				continue
			}

			m.log.Debug("manifest changed", "op", ev.Op.String())
			if err := m.settle(ctx, w); err != nil {
				return err
			}
			if ctx.Err() != nil {
				continue
			}
			m.rescan()

		case err, ok := <-w.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}

func (m *Monitor) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != m.manifest {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

// settle waits out the debounce interval, draining events so that a burst
// of writes yields one rescan.
func (m *Monitor) settle(ctx context.Context, w *fsnotify.Watcher) error {
	timer := time.NewTimer(m.debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return nil
		case _, ok := <-w.Events:
			if !ok {
				return ErrWatcherClosed
			}
		case err, ok := <-w.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			return fmt.Errorf("watch %s: %w", filepath.Dir(m.manifest), err)
		}
	}
}
