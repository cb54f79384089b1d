// Package patch rewrites the interpreter of the bundle's ELF binaries.
//
// A rewrite of one file goes through three steps: the edited copy is written
// to a hidden temp file, the original is renamed to a hidden backup, and the
// temp file is renamed over the original. A crash can leave the backup in
// place; the next attempt restores it before doing anything else, so every
// patch starts from the pristine file.
package patch

import (
	"codepatch/internal/elfedit"
	"codepatch/internal/layout"
	"codepatch/internal/logging"
)

// Patcher applies the interpreter patch protocol to files and trees.
type Patcher struct {
	oldLoader string
	newLoader string
	editor    elfedit.Editor
	tracker   *Tracker
	log       *logging.Logger
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithLogger sets the logger used for per-file results.
func WithLogger(l *logging.Logger) Option {
	return func(p *Patcher) {
		p.log = l
	}
}

// WithForce ignores existing markers. Markers are still written.
func WithForce(force bool) Option {
	return func(p *Patcher) {
		p.tracker = NewTracker(force)
	}
}

// New creates a Patcher replacing l.OldLoader with l.Loader.
func New(l *layout.Layout, editor elfedit.Editor, opts ...Option) *Patcher {
	p := &Patcher{
		oldLoader: l.OldLoader,
		newLoader: l.Loader,
		editor:    editor,
		tracker:   NewTracker(false),
		log:       logging.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}
