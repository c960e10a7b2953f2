//go:build !windows

package tracker

import "syscall"

// TerminateProcess sends SIGTERM to the given process.
func TerminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
