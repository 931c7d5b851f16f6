//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the auto-started server in its own process group so
// it outlives the CLI and ignores the terminal's Ctrl-C.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
