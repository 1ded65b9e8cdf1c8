//go:build windows

package proc

import (
	"errors"
	"os"
	"os/exec"
)

var errPtyUnsupported = errors.New("pseudo-terminal processes are not supported on windows")

func newShellCommand(command string) *exec.Cmd {
	return exec.Command("cmd", "/C", command)
}

func setProcessGroup(cmd *exec.Cmd) {}

func startWithPty(cmd *exec.Cmd) (*os.File, error) {
	return nil, errPtyUnsupported
}

func GroupID(pid int) int {
	return 0
}

// terminate has no graceful signal on windows; kill outright.
func (h *Handle) terminate() error {
	return h.Kill()
}

func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func exitedBySignal(state *os.ProcessState) bool {
	return false
}
