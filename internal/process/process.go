package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
)

// ErrNotFound is returned by Start when the executable does not exist.
var ErrNotFound = errors.New("executable not found")

// waitDelay bounds how long Wait keeps draining pipes after the child exits
// when a grandchild still holds them open.
const waitDelay = 2 * time.Second

// Options describes a child process.
type Options struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string

	Stdout LineHandler
	Stderr LineHandler

	// PTY attaches the child to a pseudo-terminal. Both streams arrive on
	// Stdout. Falls back to plain pipes where pseudo-terminals are unsupported.
	PTY bool

	// OnExit runs once, after both output streams are drained and before
	// Done is closed. It must not wait on the process.
	OnExit func(err error)
}

// Process is a running (or finished) child.
type Process struct {
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	err       error
}

// Start launches the child described by opts.
func Start(opts Options) (*Process, error) {
	if opts.PTY {
		p, err := startPTY(opts)
		if !errors.Is(err, pty.ErrUnsupported) {
			return p, err
		}
		opts.Stderr = opts.Stdout
	}
	return startPipes(opts)
}

func newCmd(opts Options) *exec.Cmd {
	cmd := exec.Command(opts.Name, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	return cmd
}

func startPipes(opts Options) (*Process, error) {
	cmd := newCmd(opts)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	var stdout, stderr *LineWriter
	if opts.Stdout != nil {
		stdout = NewLineWriter(opts.Stdout)
		cmd.Stdout = stdout
	}
	if opts.Stderr != nil {
		stderr = NewLineWriter(opts.Stderr)
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, startError(opts.Name, err)
	}

	p := &Process{cmd: cmd, startedAt: time.Now(), done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if stdout != nil {
			stdout.Flush()
		}
		if stderr != nil {
			stderr.Flush()
		}
		p.finish(err, opts.OnExit)
	}()
	return p, nil
}

func startPTY(opts Options) (*Process, error) {
	cmd := newCmd(opts)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		if errors.Is(err, pty.ErrUnsupported) {
			return nil, err
		}
		return nil, startError(opts.Name, err)
	}

	p := &Process{cmd: cmd, startedAt: time.Now(), done: make(chan struct{})}
	out := NewLineWriter(opts.Stdout)
	copied := make(chan struct{})
	go func() {
		_, _ = io.Copy(out, ptmx)
		out.Flush()
		close(copied)
	}()
	go func() {
		err := cmd.Wait()
		select {
		case <-copied:
		case <-time.After(waitDelay):
		}
		_ = ptmx.Close()
		<-copied
		p.finish(err, opts.OnExit)
	}()
	return p, nil
}

func startError(name string, err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fmt.Errorf("start %s: %w", name, err)
}

func (p *Process) finish(err error, onExit func(error)) {
	p.err = err
	if onExit != nil {
		onExit(err)
	}
	close(p.done)
}

// ExitCode extracts the exit status from a Wait error: 0 for nil, -1 when
// the process did not exit normally.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Pid returns the operating-system process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has finished.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err is the error returned by Wait. Only meaningful after Done.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// ExitCode returns the exit status, or -1 while running or when killed by a
// signal.
func (p *Process) ExitCode() int {
	if !p.Exited() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *Process) Uptime() time.Duration {
	return time.Since(p.startedAt)
}

// Terminate asks the process to exit.
func (p *Process) Terminate() error {
	if p.Exited() {
		return nil
	}
	return terminate(p.cmd.Process)
}

// KillTree forcibly kills the process and everything it spawned.
func (p *Process) KillTree() error {
	if p.Exited() {
		return nil
	}
	return killTree(p.cmd.Process)
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the process and waits for it. If ctx expires first the
// tree is killed and Stop waits for that instead.
func (p *Process) Stop(ctx context.Context) error {
	if err := p.Terminate(); err != nil {
		return err
	}
	if err := p.Wait(ctx); err == nil {
		return nil
	}
	if err := p.KillTree(); err != nil {
		return err
	}
	<-p.done
	return nil
}

// ForceStop kills the tree and waits for the exit to be observed.
func (p *Process) ForceStop(ctx context.Context) error {
	if err := p.KillTree(); err != nil {
		return err
	}
	return p.Wait(ctx)
}
