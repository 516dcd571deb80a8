// Package procgroup starts commands in their own process group so the
// whole tree can be signalled at once.
package procgroup

import "os/exec"

// Isolate places cmd in a new process group when it starts.
func Isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = sysProcAttr()
}
