//go:build !windows

package taskqueue

import (
	"os/exec"
	"syscall"
)

func terminateProcess(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}
