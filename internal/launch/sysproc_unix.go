//go:build !windows

package launch

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group so that a stop
// reaches everything the playpen script spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalProcess(pid int, sig os.Signal) error {
	if pid <= 0 {
		return ErrNotRunning
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		p, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		return p.Signal(sig)
	}
	if err := syscall.Kill(-pid, s); err != nil {
		// Not a group leader (e.g. a terminal emulator that re-parented itself).
		return syscall.Kill(pid, s)
	}
	return nil
}
