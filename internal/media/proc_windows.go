//go:build windows

package media

import (
	"os/exec"
	"syscall"
)

// hideWindow prevents console windows from flashing up for each
// ffmpeg invocation on desktop installs.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}

// Windows has no SIGTERM equivalent for console children; go straight
// to Kill and let the caller's grace wait absorb the teardown.
func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
