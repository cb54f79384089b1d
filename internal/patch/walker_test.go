package patch

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepatch/internal/logging"
	"codepatch/internal/model"
)

// buildTree lays out a small server-like tree and returns its root and the
// two binaries linked against the old loader.
func buildTree(t *testing.T) (root string, bins []string) {
	t.Helper()
	root = filepath.Join(t.TempDir(), "server")

	bins = []string{
		filepath.Join(root, "bin", "code-server"),
		filepath.Join(root, "node_modules", "pty", "build", "pty.node"),
	}
	for _, b := range bins {
		writeELF(t, b, oldLoader)
	}
	writeELF(t, filepath.Join(root, "bin", "static-helper"), "")
	writeELF(t, filepath.Join(root, "lib", "musl-tool"), "/lib/ld-musl-x86_64.so.1")
	writeText(t, filepath.Join(root, "package.json"), `{"name":"server"}`)
	writeText(t, filepath.Join(root, "bin", "code"), "#!/bin/sh\nexec node \"$@\"\n")

	return root, bins
}

func TestPatchTree(t *testing.T) {
	p, _, l := newTestPatcher(t)
	root, bins := buildTree(t)

	stats, err := p.PatchTree(root)
	require.NoError(t, err)

	assert.False(t, stats.Cached)
	assert.Equal(t, 2, stats.Patched)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, stats.Visited, stats.Patched+stats.Skipped)
	for _, b := range bins {
		assert.Equal(t, l.Loader, interpOf(t, b))
	}
	assert.FileExists(t, MarkerPath(root))
}

func TestPatchTree_Idempotent(t *testing.T) {
	p, ed, _ := newTestPatcher(t)
	root, bins := buildTree(t)

	_, err := p.PatchTree(root)
	require.NoError(t, err)
	interps, sets := ed.calls()

	before := lstat(t, bins[0]).ModTime()
	markerBefore := lstat(t, MarkerPath(root)).ModTime()
	time.Sleep(10 * time.Millisecond)

	stats, err := p.PatchTree(root)
	require.NoError(t, err)

	assert.Equal(t, model.Stats{Cached: true}, stats)
	interps2, sets2 := ed.calls()
	assert.Equal(t, interps, interps2)
	assert.Equal(t, sets, sets2)
	assert.Equal(t, before, lstat(t, bins[0]).ModTime())
	assert.Equal(t, markerBefore, lstat(t, MarkerPath(root)).ModTime())
}

func TestPatchTree_PathChangeRewalks(t *testing.T) {
	p, _, _ := newTestPatcher(t)
	dir := t.TempDir()
	v1 := filepath.Join(dir, "ext-1.0")
	v2 := filepath.Join(dir, "ext-1.1")
	link := filepath.Join(dir, "ext")
	writeELF(t, filepath.Join(v1, "bin", "tool"), oldLoader)
	writeELF(t, filepath.Join(v2, "bin", "tool"), oldLoader)
	require.NoError(t, os.Symlink(v1, link))

	stats, err := p.PatchTree(link)
	require.NoError(t, err)
	assert.False(t, stats.Cached)

	stats, err = p.PatchTree(link)
	require.NoError(t, err)
	assert.True(t, stats.Cached)

	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(v2, link))

	stats, err = p.PatchTree(link)
	require.NoError(t, err)
	assert.False(t, stats.Cached)
	assert.NotZero(t, stats.Visited)
}

func TestPatchTree_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	p, ed, l := newTestPatcher(t, WithLogger(logging.New(&buf, logging.Config{})))
	root, bins := buildTree(t)
	ed.failPath = bins[0]

	stats, err := p.PatchTree(root)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Patched)
	assert.Equal(t, oldLoader, interpOf(t, bins[0]))
	assert.Equal(t, l.Loader, interpOf(t, bins[1]))
	assert.FileExists(t, MarkerPath(root))
	assert.Contains(t, buf.String(), `msg="patch failed"`)
	assert.Contains(t, buf.String(), "injected failure")
	assert.Contains(t, buf.String(), `msg="patched interpreter"`)
}

func TestPatchTree_MissingRoot(t *testing.T) {
	p, _, _ := newTestPatcher(t)
	root := filepath.Join(t.TempDir(), "missing")

	_, err := p.PatchTree(root)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindWalk, perr.Kind)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, MarkerPath(root))
}

func TestPatchTree_DoesNotFollowSymlinks(t *testing.T) {
	p, _, _ := newTestPatcher(t)
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside", "tool")
	writeELF(t, outside, oldLoader)

	root := filepath.Join(dir, "tree")
	writeText(t, filepath.Join(root, "README"), "readme")
	require.NoError(t, os.Symlink(filepath.Dir(outside), filepath.Join(root, "linked")))

	_, err := p.PatchTree(root)
	require.NoError(t, err)
	assert.Equal(t, oldLoader, interpOf(t, outside))
}

func TestPatchTree_Force(t *testing.T) {
	p, _, _ := newTestPatcher(t)
	root, _ := buildTree(t)
	_, err := p.PatchTree(root)
	require.NoError(t, err)

	forced := New(testLayout(t.TempDir()), p.editor, WithForce(true))
	stats, err := forced.PatchTree(root)
	require.NoError(t, err)
	assert.False(t, stats.Cached)
	assert.NotZero(t, stats.Visited)
}

func TestPatchFile(t *testing.T) {
	p, _, l := newTestPatcher(t)
	cli := filepath.Join(t.TempDir(), "code-cli")
	writeELF(t, cli, oldLoader)

	stats, err := p.PatchFile(cli)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Patched)
	assert.Equal(t, l.Loader, interpOf(t, cli))
	assert.FileExists(t, MarkerPath(cli))

	stats, err = p.PatchFile(cli)
	require.NoError(t, err)
	assert.True(t, stats.Cached)
}

func TestPatchFile_NotApplicableIsMarked(t *testing.T) {
	p, _, _ := newTestPatcher(t)
	cli := filepath.Join(t.TempDir(), "code-cli")
	writeText(t, cli, "#!/bin/sh\necho cli\n")

	stats, err := p.PatchFile(cli)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.FileExists(t, MarkerPath(cli))
}

func TestPatchFile_Errors(t *testing.T) {
	p, ed, _ := newTestPatcher(t)
	dir := t.TempDir()

	_, err := p.PatchFile(filepath.Join(dir, "missing"))
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindStat, perr.Kind)

	cli := filepath.Join(dir, "code-cli")
	writeELF(t, cli, oldLoader)
	ed.failPath = cli

	stats, err := p.PatchFile(cli)
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindEdit, perr.Kind)
	assert.Equal(t, 1, stats.Failed)
	assert.NoFileExists(t, MarkerPath(cli))
}

func TestWalk_EarlyExit(t *testing.T) {
	root, _ := buildTree(t)

	var seen []string
	for c, err := range Walk(root) {
		require.NoError(t, err)
		seen = append(seen, c.Path)
		if len(seen) == 2 {
			break
		}
	}

	require.Len(t, seen, 2)
	assert.Equal(t, root, seen[0])
}
