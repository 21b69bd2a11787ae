package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// Best effort: Pdeathsig follows the OS thread that forked the child, not
// the parent process, so a child may outlive a parent that exits uncleanly.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}

func terminate(p *os.Process) error { return p.Signal(syscall.SIGTERM) }
