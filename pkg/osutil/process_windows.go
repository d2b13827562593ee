//go:build windows

package osutil

import (
	"os"
	"os/exec"
	"syscall"
)

// SetProcessGroup starts the command in a new process group.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
	cmd.SysProcAttr.HideWindow = true
}

// SetProcessGroupKill terminates the main process on cancellation. Windows has
// no Unix-style process groups, so grandchildren may outlive it.
func SetProcessGroupKill(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(os.Kill)
	}
	cmd.WaitDelay = KillWaitDelay
}

// KillProcessGroup is a no-op once the main process has been waited on.
// Windows has no group to signal.
func KillProcessGroup(cmd *exec.Cmd) error {
	return nil
}
