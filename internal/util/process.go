package util

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartBackgroundProcess launches executable in its own session so it
// survives the parent's exit. Stdout and stderr are discarded; the child
// inherits the parent's environment unless env is given.
func StartBackgroundProcess(executable string, args []string, env []string) (*os.Process, error) {
	cmd := exec.Command(executable, args...)
	cmd.Env = os.Environ()
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	return cmd.Process, nil
}

// IsProcessRunning reports whether a process with the given PID exists.
// Signal 0 probes for existence without delivering anything.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
