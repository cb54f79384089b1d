package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// inherit clears close-on-exec so f survives the image replacement.
func inherit(f *os.File) error {
	_, err := unix.FcntlInt(f.Fd(), unix.F_SETFD, 0)
	return err
}

// become replaces the current process with path. It only returns on error.
func become(path string, argv, env []string) (int, error) {
	err := unix.Exec(path, argv, env)
	return ExitFailure, err
}
