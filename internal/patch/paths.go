package patch

import (
	"path/filepath"
	"strings"
)

const (
	BackupSuffix = ".patchbak"
	TempSuffix   = ".patchtmp"
	MarkerSuffix = ".patched"
)

// BackupPath returns the hidden backup of path, .<base>.patchbak.
func BackupPath(path string) string {
	return hidden(path, BackupSuffix)
}

// TempPath returns the hidden temp file of path, .<base>.patchtmp.
func TempPath(path string) string {
	return hidden(path, TempSuffix)
}

// MarkerPath returns the idempotency marker of path, .<base>.patched.
func MarkerPath(path string) string {
	return hidden(path, MarkerSuffix)
}

func hidden(path, suffix string) string {
	path = filepath.Clean(path)
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+suffix)
}

// isArtifact reports whether path is a backup or temp file of some other
// file. Those are never patch candidates.
func isArtifact(path string) bool {
	return strings.HasSuffix(path, BackupSuffix) || strings.HasSuffix(path, TempSuffix)
}

// backupOwner returns the file a backup artifact belongs to. ok is false if
// path is not a hidden backup name.
func backupOwner(path string) (owner string, ok bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, ".") || !strings.HasSuffix(base, BackupSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(strings.TrimPrefix(base, "."), BackupSuffix)
	if name == "" {
		return "", false
	}
	return filepath.Join(filepath.Dir(path), name), true
}
