// Package proc starts and stops a single shell command as a managed
// child process. Each command runs in its own process group so stray
// grandchildren are torn down with it.
package proc

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Options describes one command launch.
type Options struct {
	Command string
	Dir     string
	Env     []string
	PTY     bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// Result is the outcome of an exited command. Valid once Done closes.
type Result struct {
	Code     int
	Signaled bool
	Err      error
}

// Handle is a started command. All methods are safe for concurrent use.
type Handle struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pgid int
	done chan struct{}

	mu     sync.Mutex
	result Result
}

// Start launches the command through the platform shell. The returned
// handle owns the process until Done closes.
func Start(opts Options) (*Handle, error) {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	cmd := newShellCommand(opts.Command)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	h := &Handle{cmd: cmd, done: make(chan struct{})}

	var drained chan struct{}
	if opts.PTY {
		ptmx, err := startWithPty(cmd)
		if err != nil {
			return nil, err
		}
		h.ptmx = ptmx
		drained = make(chan struct{})
		go func() {
			defer close(drained)
			// Read returns EIO on Linux once the child side closes.
			_, _ = io.Copy(opts.Stdout, ptmx)
		}()
	} else {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
		setProcessGroup(cmd)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
	}

	h.pgid = GroupID(cmd.Process.Pid)
	go h.reap(drained)
	return h, nil
}

func (h *Handle) reap(drained chan struct{}) {
	if drained != nil {
		<-drained
	}
	err := h.cmd.Wait()
	if h.ptmx != nil {
		_ = h.ptmx.Close()
	}

	result := Result{}
	switch {
	case err == nil:
		result.Code = 0
	case h.cmd.ProcessState != nil:
		result.Code = h.cmd.ProcessState.ExitCode()
		result.Signaled = exitedBySignal(h.cmd.ProcessState)
	default:
		result.Code = -1
		result.Err = err
	}

	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	close(h.done)
}

func (h *Handle) PID() int {
	if h == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Done closes once the command has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Result() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Stop asks the command to exit, escalating to a kill after the grace
// period. It returns once the process is reaped or ctx expires.
func (h *Handle) Stop(ctx context.Context, grace time.Duration) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	default:
	}

	if err := h.terminate(); err == nil {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-h.done:
			return nil
		case <-ctx.Done():
			_ = h.Kill()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := h.Kill(); err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
