//go:build windows

package utils

import (
	"os/exec"
	"syscall"
)

// detach starts the child in a new console process group so console Ctrl+C is
// delivered to proctor alone.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
