// Package elfedit reads and rewrites the dynamic loader (PT_INTERP) and
// RPATH of ELF executables.
//
// Interpreters are read with debug/elf. A new interpreter that fits in the
// existing PT_INTERP segment is written in place into a copy of the file;
// anything that needs the segment to grow is delegated to the patchelf tool.
package elfedit

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ErrNoInterpreter is returned for ELF files without a PT_INTERP segment,
// typically statically linked binaries.
var ErrNoInterpreter = errors.New("no PT_INTERP segment")

// Editor is the ELF editing capability the patch protocol depends on.
// Set* never modify src; they write the edited file to dst.
type Editor interface {
	Interpreter(path string) (string, error)
	SetInterpreter(src, dst, interpreter string) error
	SetRPath(src, dst, rpath string) error
}

// Patchelf implements Editor natively where possible and falls back to the
// patchelf executable.
type Patchelf struct {
	Tool string
}

// New returns an editor that runs tool for edits it cannot do natively.
// An empty tool means "patchelf" looked up on $PATH.
func New(tool string) *Patchelf {
	if tool == "" {
		tool = "patchelf"
	}
	return &Patchelf{Tool: tool}
}

// Interpreter returns the PT_INTERP string of the ELF file at path.
func (p *Patchelf) Interpreter(path string) (string, error) {
	f, err := elf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	prog := interpProg(f)
	if prog == nil {
		return "", fmt.Errorf("%s: %w", path, ErrNoInterpreter)
	}

	data, err := io.ReadAll(prog.Open())
	if err != nil {
		return "", fmt.Errorf("read PT_INTERP of %s: %w", path, err)
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

// SetInterpreter writes dst as a copy of src whose interpreter is replaced.
func (p *Patchelf) SetInterpreter(src, dst, interpreter string) error {
	data, mode, err := readFile(src)
	if err != nil {
		return err
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", src, err)
	}
	prog := interpProg(f)
	if prog == nil {
		return fmt.Errorf("%s: %w", src, ErrNoInterpreter)
	}

	if uint64(len(interpreter)) < prog.Filesz && prog.Off+prog.Filesz <= uint64(len(data)) {
		seg := data[prog.Off : prog.Off+prog.Filesz]
		n := copy(seg, interpreter)
		clear(seg[n:])
		return writeFile(dst, data, mode)
	}

	if err := writeFile(dst, data, mode); err != nil {
		return err
	}
	if err := p.run("--set-interpreter", interpreter, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

// SetRPath writes dst as a copy of src with its RPATH replaced.
func (p *Patchelf) SetRPath(src, dst, rpath string) error {
	data, mode, err := readFile(src)
	if err != nil {
		return err
	}
	if err := writeFile(dst, data, mode); err != nil {
		return err
	}
	if err := p.run("--set-rpath", rpath, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func (p *Patchelf) run(args ...string) error {
	out, err := exec.Command(p.Tool, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s %s: %w", p.Tool, strings.Join(args, " "), err)
		}
		return fmt.Errorf("%s %s: %w: %s", p.Tool, strings.Join(args, " "), err, msg)
	}
	return nil
}

func interpProg(f *elf.File) *elf.Prog {
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_INTERP {
			return prog
		}
	}
	return nil
}

func readFile(path string) ([]byte, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return data, info.Mode().Perm(), nil
}

// writeFile creates or truncates path and forces mode regardless of umask.
func writeFile(path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
