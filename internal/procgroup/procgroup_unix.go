//go:build !windows

package procgroup

import (
	"errors"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// Terminate sends SIGTERM to the process group led by pid.
func Terminate(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

// Kill sends SIGKILL to the process group led by pid.
func Kill(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

// Alive reports whether any process in the group led by pid still exists.
func Alive(pid int) bool {
	return syscall.Kill(-pid, 0) == nil
}

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
