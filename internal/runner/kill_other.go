//go:build !unix

package runner

import "os/exec"

func configureKill(cmd *exec.Cmd, onKill func()) {
	cmd.Cancel = func() error {
		onKill()
		return cmd.Process.Kill()
	}
}
