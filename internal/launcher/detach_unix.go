//go:build unix

package launcher

import (
	"os/exec"
	"syscall"
)

// startDetached starts cmd in its own session so it outlives the daemon
func startDetached(cmd *exec.Cmd) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child so it does not linger as a zombie
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
