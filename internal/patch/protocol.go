package patch

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"

	"codepatch/internal/model"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// MaybePatch rewrites the interpreter of the file at path if it is an ELF
// binary linked against the old loader. info is the Lstat result of path.
//
// A hidden backup whose original is missing is the trace of a crash between
// backup and install; it is restored and the restored file is evaluated
// instead.
func (p *Patcher) MaybePatch(path string, info fs.FileInfo) (model.Outcome, error) {
	if isArtifact(path) {
		if owner, ok := backupOwner(path); ok {
			return p.recoverOrphan(path, owner)
		}
		return model.NotApplicable, nil
	}

	if !info.Mode().IsRegular() || info.Size() <= int64(len(elfMagic)) {
		return model.NotApplicable, nil
	}

	isELF, err := hasELFMagic(path)
	if err != nil {
		return model.Failed, &Error{Kind: KindRead, Path: path, Err: err}
	}
	if !isELF {
		return model.NotApplicable, nil
	}

	tmp, bak := TempPath(path), BackupPath(path)

	if _, err := os.Lstat(bak); err == nil {
		if err := os.Rename(bak, path); err != nil {
			return model.Failed, &Error{Kind: KindRestore, Path: bak, Err: err}
		}
	}

	interp, err := p.editor.Interpreter(path)
	if err != nil {
		// statically linked or unparsable
		return model.NotApplicable, nil
	}
	if interp != p.oldLoader {
		return model.NotApplicable, nil
	}

	if err := p.editor.SetInterpreter(path, tmp, p.newLoader); err != nil {
		return model.Failed, &Error{Kind: KindEdit, Path: path, Err: err}
	}
	if err := os.Rename(path, bak); err != nil {
		return model.Failed, &Error{Kind: KindBackup, Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return model.Failed, &Error{Kind: KindInstall, Path: path, Err: err}
	}

	return model.Patched, nil
}

func (p *Patcher) recoverOrphan(bak, owner string) (model.Outcome, error) {
	if _, err := os.Lstat(owner); !errors.Is(err, fs.ErrNotExist) {
		return model.NotApplicable, nil
	}

	if err := os.Rename(bak, owner); err != nil {
		return model.Failed, &Error{Kind: KindRestore, Path: bak, Err: err}
	}

	info, err := os.Lstat(owner)
	if err != nil {
		return model.Failed, &Error{Kind: KindStat, Path: owner, Err: err}
	}
	return p.MaybePatch(owner, info)
}

func hasELFMagic(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, len(elfMagic))
	if _, err := io.ReadFull(f, buf); err != nil {
		return false, err
	}
	return bytes.Equal(buf, elfMagic), nil
}
