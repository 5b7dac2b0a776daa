//go:build !windows

package bootstrap

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup starts the server as the leader of a new process group
// so that signals reach the children it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup sends sig to the process group led by p, falling back to p
// alone when the group is gone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	return p.Signal(sig)
}
