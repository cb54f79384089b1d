// Package manifest lists the extension directories recorded in the
// extensions manifest and patches each of them.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"

	"golang.org/x/sys/unix"

	"codepatch/internal/logging"
	"codepatch/internal/model"
)

// ErrMalformed is returned when the manifest is not a JSON array.
var ErrMalformed = errors.New("malformed extensions manifest")

// entry is the only part of a manifest element we care about.
type entry struct {
	Location *struct {
		Path *string `json:"path"`
	} `json:"location"`
}

// Dirs returns the extension directories listed in manifest. The extensions
// directory and an empty manifest are created when missing; an empty
// manifest lists nothing. Elements without a string location.path are
// skipped.
func Dirs(extDir, manifest string) (iter.Seq[string], error) {
	if err := os.MkdirAll(extDir, 0o777); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(manifest, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return func(func(string) bool) {}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", manifest, err)
	}
	defer unix.Munmap(data)

	// RawMessage copies, so elements outlive the mapping.
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, manifest, err)
	}

	return func(yield func(string) bool) {
		for _, raw := range elems {
			var e entry
			if err := json.Unmarshal(raw, &e); err != nil {
				continue
			}
			if e.Location == nil || e.Location.Path == nil || *e.Location.Path == "" {
				continue
			}
			if !yield(*e.Location.Path) {
				return
			}
		}
	}, nil
}

// TreePatcher patches one directory tree.
type TreePatcher interface {
	PatchTree(root string) (model.Stats, error)
}

// PatchExtensions patches every directory listed in manifest. A directory
// that cannot be patched is logged and reported; only a manifest that
// cannot be read or parsed is returned as an error.
func PatchExtensions(tp TreePatcher, extDir, manifest string, log *logging.Logger) ([]model.Target, error) {
	dirs, err := Dirs(extDir, manifest)
	if err != nil {
		return nil, err
	}

	var targets []model.Target
	for dir := range dirs {
		stats, err := tp.PatchTree(dir)
		if err != nil {
			log.Error("cannot patch extension", "path", dir, "err", err)
		}
		targets = append(targets, model.Target{Kind: "extension", Path: dir, Stats: stats, Err: err})
	}

	return targets, nil
}
