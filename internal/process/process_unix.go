//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// InterruptSupported reports whether Interrupt can reach the process group.
const InterruptSupported = true

// configureGroup starts the child as leader of a new process group so the
// whole tree can be signalled through the negative pid.
func configureGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func (p *Process) interrupt() error {
	return unix.Kill(-p.PID(), unix.SIGINT)
}

func (p *Process) terminate() error {
	return unix.Kill(p.PID(), unix.SIGTERM)
}

func (p *Process) killTree() error {
	err := unix.Kill(-p.PID(), unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	// Group kill refused; fall back to the single process.
	if kerr := p.cmd.Process.Kill(); kerr != nil {
		return errors.Join(err, kerr)
	}
	return nil
}
