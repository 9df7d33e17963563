//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// Without process groups there is no graceful signal to send.
func terminateGroup(p *os.Process) error {
	return p.Kill()
}

func killGroup(p *os.Process) error {
	return p.Kill()
}
