//go:build windows

package procgroup

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Terminate kills the process; Windows has no group-wide SIGTERM.
func Terminate(pid int) error {
	return Kill(pid)
}

// Kill terminates the process led by pid.
func Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

// Alive reports whether the process can still be found.
func Alive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
