package elfedit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepatch/internal/elfedit/elftest"
)

const oldLoader = "/lib64/ld-linux-x86-64.so.2"

func TestInterpreter(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	elftest.Write(t, bin, oldLoader, 0)

	got, err := New("").Interpreter(bin)
	require.NoError(t, err)
	assert.Equal(t, oldLoader, got)
}

func TestInterpreter_Static(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "static")
	elftest.Write(t, bin, "", 0)

	_, err := New("").Interpreter(bin)
	assert.ErrorIs(t, err, ErrNoInterpreter)
}

func TestInterpreter_NotELF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o755))

	_, err := New("").Interpreter(path)
	assert.Error(t, err)
}

func TestSetInterpreter_InPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bin")
	dst := filepath.Join(dir, ".bin.patchtmp")
	elftest.Write(t, src, oldLoader, 64)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	ed := New(filepath.Join(dir, "no-such-patchelf"))
	repl := "/opt/vscode/gnu/ld-linux-x86-64.so.2"
	require.NoError(t, ed.SetInterpreter(src, dst, repl))

	got, err := ed.Interpreter(dst)
	require.NoError(t, err)
	assert.Equal(t, repl, got)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after, "source must not be modified")

	dstData, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Len(t, dstData, len(before))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestSetInterpreter_ShorterPadsWithNUL(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bin")
	dst := filepath.Join(dir, "out")
	elftest.Write(t, src, oldLoader, 0)

	ed := New("")
	require.NoError(t, ed.SetInterpreter(src, dst, "/l/ld.so"))

	got, err := ed.Interpreter(dst)
	require.NoError(t, err)
	assert.Equal(t, "/l/ld.so", got)
}

func TestSetInterpreter_GrowsWithTool(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bin")
	dst := filepath.Join(dir, "out")
	argsFile := filepath.Join(dir, "args")
	elftest.Write(t, src, oldLoader, 0)

	tool := filepath.Join(dir, "fake-patchelf")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	repl := "/" + strings.Repeat("x", 64) + "/ld-linux-x86-64.so.2"
	require.NoError(t, New(tool).SetInterpreter(src, dst, repl))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--set-interpreter "+repl+" "+dst+"\n", string(args))
	assert.FileExists(t, dst)
}

func TestSetInterpreter_ToolFailureRemovesDst(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bin")
	dst := filepath.Join(dir, "out")
	elftest.Write(t, src, oldLoader, 0)

	tool := filepath.Join(dir, "fake-patchelf")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o755))

	err := New(tool).SetInterpreter(src, dst, "/"+strings.Repeat("y", 80))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NoFileExists(t, dst)
}

func TestSetInterpreter_Static(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "static")
	elftest.Write(t, src, "", 0)

	err := New("").SetInterpreter(src, filepath.Join(dir, "out"), "/l/ld.so")
	assert.ErrorIs(t, err, ErrNoInterpreter)
	assert.NoFileExists(t, filepath.Join(dir, "out"))
}

func TestSetRPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bin")
	dst := filepath.Join(dir, "out")
	argsFile := filepath.Join(dir, "args")
	elftest.Write(t, src, oldLoader, 0)

	tool := filepath.Join(dir, "fake-patchelf")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n"
	require.NoError(t, os.WriteFile(tool, []byte(script), 0o755))

	require.NoError(t, New(tool).SetRPath(src, dst, "$ORIGIN/../lib"))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--set-rpath $ORIGIN/../lib "+dst+"\n", string(args))
}
