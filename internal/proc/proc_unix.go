//go:build !windows

package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

func newShellCommand(command string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", command)
}

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func startWithPty(cmd *exec.Cmd) (*os.File, error) {
	setProcessGroup(cmd)
	return pty.Start(cmd)
}

func GroupID(pid int) int {
	if pid <= 0 {
		return 0
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return 0
	}
	return pgid
}

// terminate sends SIGTERM to the whole process group.
func (h *Handle) terminate() error {
	return h.signalGroup(syscall.SIGTERM)
}

// Kill sends SIGKILL to the whole process group.
func (h *Handle) Kill() error {
	return h.signalGroup(syscall.SIGKILL)
}

func (h *Handle) signalGroup(sig syscall.Signal) error {
	pid := h.PID()
	if pid <= 0 {
		return nil
	}
	target := pid
	if h.pgid > 0 {
		target = -h.pgid
	}
	err := syscall.Kill(target, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func exitedBySignal(state *os.ProcessState) bool {
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return status.Signaled()
}
