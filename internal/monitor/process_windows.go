//go:build windows

package monitor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// createNoWindow keeps the backend from opening a console window
const createNoWindow = 0x08000000

func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
}

// requestStop asks the process tree to close without /F
func requestStop(pid int) error {
	return exec.Command("taskkill", "/PID", fmt.Sprint(pid), "/T").Run()
}

func forceKill(pid int) error {
	return exec.Command("taskkill", "/PID", fmt.Sprint(pid), "/T", "/F").Run()
}

func exitDetails(err error) (code int, signal string) {
	if err == nil {
		return 0, ""
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), ""
	}
	return -1, ""
}
