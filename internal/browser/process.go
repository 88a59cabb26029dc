// internal/browser/process.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cdpipe/pkg/devtools"
)

// ErrPipeUnsupported is returned on platforms where extra file descriptors cannot be
// handed to a child process.
var ErrPipeUnsupported = errors.New("--remote-debugging-pipe is not supported on " + goruntime.GOOS)

// Process is a running browser with its debugging pipe. The child reads commands on
// fd 3 and writes replies and events on fd 4.
type Process struct {
	cmd       *exec.Cmd
	transport *devtools.PipeTransport
	logger    *zap.Logger

	done    chan struct{}
	waitErr error

	killOnce sync.Once
}

// startProcess spawns path with args and wires up the pipe pair. The returned
// process is reaped in the background; Done closes once it has exited. The process
// outlives ctx, which only bounds the start itself.
func startProcess(ctx context.Context, path string, args []string, logger *zap.Logger) (*Process, error) {
	if goruntime.GOOS == "windows" {
		return nil, ErrPipeUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Host to browser, seen by the child as fd 3.
	childIn, hostOut, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create command pipe: %w", err)
	}
	// Browser to host, seen by the child as fd 4.
	hostIn, childOut, err := os.Pipe()
	if err != nil {
		_ = childIn.Close()
		_ = hostOut.Close()
		return nil, fmt.Errorf("failed to create reply pipe: %w", err)
	}

	cmd := exec.Command(path, args...) //nolint:gosec
	cmd.ExtraFiles = []*os.File{childIn, childOut}
	killWithParent(cmd)

	p := &Process{
		cmd:    cmd,
		logger: logger,
		done:   make(chan struct{}),
	}
	started := make(chan error, 1)
	go p.run(started)

	startErr := <-started
	// The child holds its own copies now. Dropping ours lets EOF reach the host
	// when the browser exits.
	_ = childIn.Close()
	_ = childOut.Close()
	if startErr != nil {
		_ = hostOut.Close()
		_ = hostIn.Close()
		return nil, fmt.Errorf("failed to start browser %q: %w", path, startErr)
	}

	p.transport = devtools.NewPipeTransport(hostIn, hostOut)
	p.logger.Info("Browser process started.", zap.String("path", path), zap.Int("pid", p.PID()))
	return p, nil
}

// run starts the child and reaps it on one locked OS thread. The thread outlives the
// child, so a parent-death signal bound to it only fires when this process dies.
func (p *Process) run(started chan<- error) {
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()

	if err := p.cmd.Start(); err != nil {
		started <- err
		return
	}
	pid := p.cmd.Process.Pid
	started <- nil

	err := p.cmd.Wait()
	p.waitErr = err
	if err != nil {
		p.logger.Debug("Browser process exited.", zap.Int("pid", pid), zap.Error(err))
	} else {
		p.logger.Debug("Browser process exited cleanly.", zap.Int("pid", pid))
	}
	close(p.done)
}

// Transport is the debugging pipe. It belongs to whoever runs the handshake on it.
func (p *Process) Transport() *devtools.PipeTransport { return p.transport }

// PID of the browser process.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done closes when the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits and returns its exit status.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Kill ends the process. Only the first call signals it.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		if p.Exited() {
			return
		}
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("Failed to kill browser process.", zap.Int("pid", p.PID()), zap.Error(err))
			return
		}
		p.logger.Debug("Browser process killed.", zap.Int("pid", p.PID()))
	})
}
