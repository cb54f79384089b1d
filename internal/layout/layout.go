// Package layout derives every fixed filesystem location of the server
// bundle from the launcher's own install path.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
)

// MaxPath mirrors PATH_MAX on Linux. Every derived path must be shorter.
const MaxPath = 4096

var (
	ErrReadlink          = errors.New("cannot resolve own executable")
	ErrUnexpectedName    = errors.New("unexpected executable name")
	ErrPathTooLong       = errors.New("path too long")
	ErrUnsupportedArch   = errors.New("unsupported CPU architecture")
	executableNameRegexp = regexp.MustCompile(`^code-([0-9a-f]{40})$`)
)

// Loader describes the glibc dynamic loader binaries of one architecture
// are linked against.
type Loader struct {
	Dir  string // e.g. /lib64
	Name string // e.g. ld-linux-x86-64.so.2
}

// Path returns the absolute loader path embedded in PT_INTERP.
func (l Loader) Path() string {
	return l.Dir + "/" + l.Name
}

// Loaders maps GOARCH to the loader the upstream binaries expect.
var Loaders = map[string]Loader{
	"386":   {Dir: "/lib", Name: "ld-linux.so.2"},
	"amd64": {Dir: "/lib64", Name: "ld-linux-x86-64.so.2"},
	"arm":   {Dir: "/lib", Name: "ld-linux-armhf.so.3"},
	"arm64": {Dir: "/lib", Name: "ld-linux-aarch64.so.1"},
}

// Layout is computed once at startup and never modified.
type Layout struct {
	Dir        string // directory holding the launcher
	Name       string // launcher file name, code-<commit>
	Commit     string // 40 hex digit commit id
	ServerDir  string // server tree patched on every start
	Extensions string // extensions root
	Manifest   string // extensions.json
	CLI        string // wrapped CLI binary
	LogFile    string
	OldLoader  string // interpreter the bundle binaries were built against
	Loader     string // replacement interpreter shipped in the bundle
}

// Resolve builds the layout from the running executable.
func Resolve() (*Layout, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadlink, err)
	}
	return FromExecutable(exe, runtime.GOARCH)
}

// FromExecutable builds the layout for a launcher installed at exe on the
// given architecture.
func FromExecutable(exe, goarch string) (*Layout, error) {
	if len(exe) >= MaxPath {
		return nil, fmt.Errorf("%w: %s", ErrPathTooLong, exe)
	}

	loader, ok := Loaders[goarch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArch, goarch)
	}

	dir, name := filepath.Dir(exe), filepath.Base(exe)
	m := executableNameRegexp.FindStringSubmatch(name)
	if m == nil {
		return nil, fmt.Errorf("%w: %s: unknown commit id", ErrUnexpectedName, name)
	}

	l := &Layout{
		Dir:        dir,
		Name:       name,
		Commit:     m[1],
		ServerDir:  dir + "/cli/servers/Stable-" + m[1] + "/server",
		Extensions: dir + "/extensions",
		Manifest:   dir + "/extensions/extensions.json",
		CLI:        dir + "/" + name + "-cli",
		LogFile:    dir + "/patch.log",
		OldLoader:  loader.Path(),
		Loader:     dir + "/gnu/" + loader.Name,
	}

	for _, p := range []string{l.ServerDir, l.Extensions, l.Manifest, l.CLI, l.LogFile, l.Loader} {
		if len(p) >= MaxPath {
			return nil, fmt.Errorf("%w: %s", ErrPathTooLong, p)
		}
	}

	return l, nil
}
