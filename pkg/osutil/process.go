// Package osutil holds the small amount of OS-specific process plumbing the
// script sandbox needs: spawning children in their own process group, killing
// that whole group on cancellation, and checking whether a pid is still alive.
package osutil

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// KillWaitDelay bounds how long Wait keeps draining a killed child's pipes.
// Descendants that inherited stdout/stderr would otherwise hold Wait open.
const KillWaitDelay = 2 * time.Second

// IsProcessAlive checks if a process with the given PID is still running
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	found, _ := process.PidExists(int32(pid))
	if !found {
		return false
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	// A zombie has exited and only waits to be reaped.
	statuses, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return false
		}
	}
	return true
}
