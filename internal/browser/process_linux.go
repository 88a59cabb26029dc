// internal/browser/process_linux.go
package browser

import (
	"os/exec"
	"syscall"
)

// killWithParent makes the kernel kill the browser if this process dies first.
// Pdeathsig is tied to the forking OS thread, so Process.run starts the child from a
// locked thread that lives as long as the child.
func killWithParent(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
