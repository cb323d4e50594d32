//go:build windows

package launch

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func signalProcess(pid int, sig os.Signal) error {
	if pid <= 0 {
		return ErrNotRunning
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}
