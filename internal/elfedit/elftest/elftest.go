// Package elftest writes minimal ELF64 executables for tests.
package elftest

import (
	"encoding/binary"
	"os"
	"testing"
)

const (
	ehdrSize  = 64
	phdrSize  = 56
	ptInterp  = 3
	emX86_64  = 62
	etExec    = 2
	dataStart = ehdrSize + phdrSize
)

// Build returns an ELF64 little-endian executable. When interp is empty the
// file has no program headers, like a statically linked binary. pad adds
// spare NUL bytes to the PT_INTERP segment.
func Build(interp string, pad int) []byte {
	phnum := uint16(1)
	if interp == "" {
		phnum = 0
	}
	segSize := uint64(len(interp) + 1 + pad)

	buf := make([]byte, dataStart, dataStart+int(segSize))
	le := binary.LittleEndian

	copy(buf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	le.PutUint16(buf[16:], etExec)
	le.PutUint16(buf[18:], emX86_64)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[32:], ehdrSize)
	le.PutUint16(buf[52:], ehdrSize)
	le.PutUint16(buf[54:], phdrSize)
	le.PutUint16(buf[56:], phnum)
	le.PutUint16(buf[58:], 64)

	if phnum == 0 {
		return buf
	}

	ph := buf[ehdrSize:]
	le.PutUint32(ph[0:], ptInterp)
	le.PutUint32(ph[4:], 4)
	le.PutUint64(ph[8:], dataStart)
	le.PutUint64(ph[16:], 0x400000+dataStart)
	le.PutUint64(ph[24:], 0x400000+dataStart)
	le.PutUint64(ph[32:], segSize)
	le.PutUint64(ph[40:], segSize)
	le.PutUint64(ph[48:], 1)

	buf = append(buf, interp...)
	return append(buf, make([]byte, 1+pad)...)
}

// Write stores Build(interp, pad) at path as an executable file.
func Write(t testing.TB, path, interp string, pad int) {
	t.Helper()
	if err := os.WriteFile(path, Build(interp, pad), 0o755); err != nil {
		t.Fatalf("write ELF fixture %s: %v", path, err)
	}
}
