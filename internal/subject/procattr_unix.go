//go:build unix

package subject

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the subject in its own process group so a timeout can
// take down everything it spawned without detaching.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
