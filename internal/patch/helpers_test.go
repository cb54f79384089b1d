package patch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"codepatch/internal/elfedit"
	"codepatch/internal/elfedit/elftest"
	"codepatch/internal/layout"
)

const oldLoader = "/lib64/ld-linux-x86-64.so.2"

// pad leaves room in PT_INTERP for a temp dir based replacement loader.
const pad = 512

// countingEditor wraps the real editor, counts calls and can be told to
// fail SetInterpreter for one source path.
type countingEditor struct {
	elfedit.Editor

	mu       sync.Mutex
	interps  int
	sets     int
	failPath string
}

func (e *countingEditor) Interpreter(path string) (string, error) {
	e.mu.Lock()
	e.interps++
	e.mu.Unlock()
	return e.Editor.Interpreter(path)
}

func (e *countingEditor) SetInterpreter(src, dst, interp string) error {
	e.mu.Lock()
	e.sets++
	fail := e.failPath == src
	e.mu.Unlock()
	if fail {
		return errors.New("injected failure")
	}
	return e.Editor.SetInterpreter(src, dst, interp)
}

func (e *countingEditor) calls() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interps, e.sets
}

func testLayout(dir string) *layout.Layout {
	return &layout.Layout{
		Dir:       dir,
		OldLoader: oldLoader,
		Loader:    filepath.Join(dir, "gnu", "ld-linux-x86-64.so.2"),
	}
}

func newTestPatcher(t *testing.T, opts ...Option) (*Patcher, *countingEditor, *layout.Layout) {
	t.Helper()
	l := testLayout(t.TempDir())
	ed := &countingEditor{Editor: elfedit.New(filepath.Join(l.Dir, "no-patchelf"))}
	return New(l, ed, opts...), ed, l
}

func writeELF(t *testing.T, path, interp string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	elftest.Write(t, path, interp, pad)
}

func writeText(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func interpOf(t *testing.T, path string) string {
	t.Helper()
	got, err := elfedit.New("").Interpreter(path)
	require.NoError(t, err)
	return got
}

func lstat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	return info
}
