//go:build !windows

package supervisor

import (
	"errors"
	"syscall"
)

// detachAttr puts the child in its own session so it survives the
// terminal that started it.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// processAlive sends signal 0. EPERM means the process exists but belongs
// to another user.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
