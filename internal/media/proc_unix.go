//go:build !windows

package media

import (
	"os/exec"
	"syscall"
)

func hideWindow(cmd *exec.Cmd) {}

// terminate asks the process to exit cleanly. The caller escalates to
// Kill after the grace period.
func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}
