package patch

import (
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"codepatch/internal/model"
)

// Candidate is one entry produced by Walk.
type Candidate struct {
	Path string
	Info fs.FileInfo
}

// Walk yields every entry under root, root included, depth first and
// without following symbolic links. Entries that cannot be read are yielded
// with their error; entries that vanish during the walk are dropped.
func Walk(root string) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(Candidate{Path: path}, err) {
					return filepath.SkipAll
				}
				return nil
			}

			info, err := d.Info()
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if !yield(Candidate{Path: path, Info: info}, err) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// PatchTree patches every file under root and marks root done once the
// whole walk finished. A valid marker skips the walk entirely. Failures on
// single files are logged and counted; only an unreadable root or a marker
// write failure is returned.
func (p *Patcher) PatchTree(root string) (model.Stats, error) {
	var stats model.Stats

	if p.tracker.Done(root) {
		stats.Cached = true
		return stats, nil
	}

	for c, err := range Walk(root) {
		if err != nil {
			if c.Path == root {
				return stats, &Error{Kind: KindWalk, Path: root, Err: err}
			}
			p.log.Warn("cannot read entry", "path", c.Path, "err", err)
			stats.Failed++
			continue
		}

		p.record(&stats, c.Path, c.Info)
	}

	if err := p.tracker.MarkDone(root); err != nil {
		return stats, err
	}
	return stats, nil
}

// PatchFile applies the protocol to the single file at path under the same
// marker bookkeeping as PatchTree. A failed patch is returned.
func (p *Patcher) PatchFile(path string) (model.Stats, error) {
	var stats model.Stats

	if p.tracker.Done(path) {
		stats.Cached = true
		return stats, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return stats, &Error{Kind: KindStat, Path: path, Err: err}
	}

	if err := p.record(&stats, path, info); err != nil {
		return stats, err
	}

	if err := p.tracker.MarkDone(path); err != nil {
		return stats, err
	}
	return stats, nil
}

func (p *Patcher) record(stats *model.Stats, path string, info fs.FileInfo) error {
	outcome, err := p.MaybePatch(path, info)
	stats.Add(outcome)

	switch outcome {
	case model.Patched:
		p.log.Info("patched interpreter", "path", path, "interpreter", p.newLoader)
	case model.Failed:
		p.log.Error("patch failed", "path", path, "err", err)
	default:
		p.log.Debug("not applicable", "path", path)
	}
	return err
}
