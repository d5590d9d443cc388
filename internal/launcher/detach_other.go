//go:build !unix

package launcher

import "os/exec"

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the child so it does not linger as a zombie
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
