//go:build !unix

package runner

import "os/exec"

// Process groups are a unix concept; elsewhere we fall back to killing
// the direct child only.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
