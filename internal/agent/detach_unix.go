//go:build !windows

package agent

import (
	"os/exec"
	"syscall"
)

// detach starts the child in a new session so it outlives the supervisor
// and can be signalled as a group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func terminateGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return syscall.Kill(pid, syscall.SIGTERM)
	}
	return nil
}
