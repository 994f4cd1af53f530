//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// InterruptSupported reports whether Interrupt can reach the process group.
// CTRL_BREAK only reaches children created with CREATE_NEW_PROCESS_GROUP
// that share the launcher's console; failures are reported to the caller.
const InterruptSupported = true

func configureGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func (p *Process) interrupt() error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.PID()))
}

func (p *Process) terminate() error {
	return p.cmd.Process.Kill()
}

func (p *Process) killTree() error {
	kill := exec.Command("taskkill", "/PID", strconv.Itoa(p.PID()), "/T", "/F")
	kill.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if err := kill.Run(); err != nil {
		if p.HasExited() {
			return nil
		}
		if kerr := p.cmd.Process.Kill(); kerr != nil {
			return fmt.Errorf("taskkill: %w; kill: %v", err, kerr)
		}
	}
	return nil
}
