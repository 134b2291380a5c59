//go:build !windows

package shell

import (
	"errors"
	"os/exec"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts cmd in a process group of its own, so that
// killProcessGroup also reaches the commands the shell spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
