package patch

import (
	"os"
	"path/filepath"
)

// Tracker records which targets were completely patched, keyed by their
// canonical path. A marker is trusted only while the target still
// canonicalizes to the path stored in it.
type Tracker struct {
	force bool
}

// NewTracker returns a Tracker. With force set Done always reports false, so
// every target is re-verified.
func NewTracker(force bool) *Tracker {
	return &Tracker{force: force}
}

// Done reports whether path carries a valid marker. Any error reads as
// "not done".
func (t *Tracker) Done(path string) bool {
	if t.force {
		return false
	}

	abs, err := canonical(path)
	if err != nil {
		return false
	}

	prev, err := os.ReadFile(MarkerPath(path))
	if err != nil {
		return false
	}

	return string(prev) == abs
}

// MarkDone writes the canonical form of path into its marker, creating or
// truncating it.
func (t *Tracker) MarkDone(path string) error {
	abs, err := canonical(path)
	if err != nil {
		return &Error{Kind: KindCanonicalize, Path: path, Err: err}
	}

	marker := MarkerPath(path)
	if err := os.WriteFile(marker, []byte(abs), 0o644); err != nil {
		return &Error{Kind: KindMarker, Path: marker, Err: err}
	}
	return nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
