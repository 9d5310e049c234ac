//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so that the
// entire subtree can be signalled with one kill.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup forcibly terminates the child's whole process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil // already gone
	}
	return err
}
