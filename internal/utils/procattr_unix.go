//go:build !windows

package utils

import (
	"os/exec"
	"syscall"
)

// detach moves the child into its own process group. A terminal Ctrl+C then reaches
// only proctor, which winds its children down itself.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
