//go:build !linux

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func detached() *syscall.SysProcAttr {
	return nil
}

// inherit is a no-op: the launcher outlives the CLI here and holds the
// pipe itself.
func inherit(*os.File) error {
	return nil
}

// become runs path as a child and waits for it, returning its exit code.
func become(path string, argv, env []string) (int, error) {
	cmd := exec.Command(path)
	cmd.Args = argv
	cmd.Env = env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return ExitFailure, nil
	}
	if err != nil {
		return ExitFailure, err
	}
	return 0, nil
}
