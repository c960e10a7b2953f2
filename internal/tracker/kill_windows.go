//go:build windows

package tracker

import (
	"os/exec"
	"strconv"
)

// TerminateProcess force-kills the given process via taskkill; Windows has
// no SIGTERM equivalent the console CLI would honor.
func TerminateProcess(pid int) error {
	return exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
}
