package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a process.
type State int32

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Sentinel errors for the process package.
var (
	// ErrNotStarted is returned when an operation needs a started process.
	ErrNotStarted = errors.New("process not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrNotRunning is returned when signalling a process that has exited.
	ErrNotRunning = errors.New("process not running")
)

// Spec describes the command a Process runs.
type Spec struct {
	// Name is a human-readable label used in logs.
	Name string

	// Path is the executable.
	Path string

	// Args are the arguments after Path.
	Args []string

	// Dir is the working directory.
	Dir string

	// Env is appended to the launcher's own environment.
	Env []string
}

// Process is a child process started in its own process group, with its
// stdout and stderr exposed as readers.
//
// The output readers are plain pipes owned by Process, so reading them is
// independent of the wait goroutine: a reader reaches end-of-stream only
// once every process holding the write end (including grandchildren) has
// exited, or after Close.
type Process struct {
	// Name is a human-readable name for the process.
	Name string

	cmd     *exec.Cmd
	stdout  *os.File
	stderr  *os.File
	started time.Time

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	mu       sync.RWMutex
	exitErr  error
	waitOnce sync.Once
}

// New prepares a Process for spec without starting it.
func New(spec Spec) *Process {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	configureGroup(cmd)

	p := &Process{
		Name: spec.Name,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// Start creates and starts a Process for spec.
func Start(spec Spec) (*Process, error) {
	p := New(spec)
	if err := p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// Start launches the command with both output channels piped.
func (p *Process) Start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	p.cmd.Stdout = outW
	p.cmd.Stderr = errW

	if err := p.cmd.Start(); err != nil {
		for _, f := range []*os.File{outR, outW, errR, errW} {
			_ = f.Close()
		}
		return fmt.Errorf("start %s: %w", p.cmd.Path, err)
	}

	// The child holds its own copies of the write ends.
	_ = outW.Close()
	_ = errW.Close()

	p.stdout = outR
	p.stderr = errR
	p.started = time.Now()
	p.state.Store(int32(StateRunning))

	go p.waitLoop()

	return nil
}

// waitLoop waits for the process to exit and updates state.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		exitCode := 0
		state := StateExited

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)
	})
}

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// ExitCode returns the exit code, or -1 if the process has not exited or
// was ended by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error from waiting on the process, if any.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited returns true if the process has exited (normally or killed).
func (p *Process) HasExited() bool {
	state := p.State()
	return state == StateExited || state == StateKilled
}

// WaitTimeout blocks until the process exits or timeout elapses and
// reports whether it exited.
func (p *Process) WaitTimeout(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// Started returns the start time, or the zero time before Start.
func (p *Process) Started() time.Time {
	return p.started
}

// Runtime returns how long the process has been running.
func (p *Process) Runtime() time.Duration {
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// Stdout returns the read end of the child's standard output.
func (p *Process) Stdout() io.ReadCloser {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Stderr returns the read end of the child's standard error.
func (p *Process) Stderr() io.ReadCloser {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

// Interrupt sends a cooperative interrupt to the whole process group
// (SIGINT on Unix, CTRL_BREAK on Windows).
func (p *Process) Interrupt() error {
	if err := p.checkRunning(); err != nil {
		return err
	}
	return p.interrupt()
}

// Terminate asks the top-level process to exit (SIGTERM on Unix; Windows
// has no graceful equivalent and terminates the process).
func (p *Process) Terminate() error {
	if err := p.checkRunning(); err != nil {
		return err
	}
	return p.terminate()
}

// KillTree forcibly kills the process and every descendant in its group.
// It is attempted even when the top-level process has already exited, so
// orphaned descendants holding the output pipes are reaped too.
func (p *Process) KillTree() error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	return p.killTree()
}

// Kill forcibly kills only the top-level process.
func (p *Process) Kill() error {
	if err := p.checkRunning(); err != nil {
		return err
	}
	return p.cmd.Process.Kill()
}

func (p *Process) checkRunning() error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	if !p.IsRunning() {
		return ErrNotRunning
	}
	return nil
}

// Close closes the output readers. It does not stop the process; blocked
// reads return an error instead of waiting for end-of-stream.
func (p *Process) Close() error {
	var errs []error
	for name, f := range map[string]*os.File{"stdout": p.stdout, "stderr": p.stderr} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
