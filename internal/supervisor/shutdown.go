package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NICKLING017/ComfyUIlauncher/internal/process"
)

// Step is one stage of the shutdown escalation.
type Step int

const (
	// StepInterrupt sends a cooperative interrupt to the process group.
	StepInterrupt Step = iota
	// StepTerminate asks the top-level process to exit.
	StepTerminate
	// StepKillTree forcibly kills the process and its descendants.
	StepKillTree
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepInterrupt:
		return "interrupt"
	case StepTerminate:
		return "terminate"
	case StepKillTree:
		return "kill-tree"
	default:
		return fmt.Sprintf("step(%d)", s)
	}
}

// StepResult records what one escalation step did. It is advisory.
type StepResult struct {
	Step Step

	// Err wraps ErrShutdownStep when the step could not be delivered.
	Err error

	// Exited reports whether the child exited within the step's wait.
	Exited bool
}

// escalate runs the shutdown steps against r until the child exits.
// The kill-tree step does not wait for the child. Failures are reported
// to the run's log and never abort the sequence.
func (s *Supervisor) escalate(ctx context.Context, r *run) []StepResult {
	h := r.handle
	var results []StepResult

	try := func(step Step, signal func() error, wait time.Duration) bool {
		res := StepResult{Step: step}
		if err := signal(); err != nil && !errors.Is(err, process.ErrNotRunning) {
			res.Err = fmt.Errorf("%w: %s: %w", ErrShutdownStep, step, err)
			s.stepFailed(r, res)
		} else {
			res.Exited = waitExit(ctx, h, wait)
		}
		results = append(results, res)
		return res.Exited
	}

	if s.interruptSupported {
		r.emit("[INFO] sending interrupt to process group")
		if try(StepInterrupt, h.Interrupt, s.interruptTimeout) {
			return results
		}
	}

	r.emit("[INFO] process still running, terminating")
	if try(StepTerminate, h.Terminate, s.terminateTimeout) {
		return results
	}

	r.emit("[WARN] process did not exit, killing process tree")
	res := StepResult{Step: StepKillTree}
	if err := h.KillTree(); err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrShutdownStep, StepKillTree, err)
		s.stepFailed(r, res)
	}
	select {
	case <-h.Done():
		res.Exited = true
	default:
	}
	return append(results, res)
}

func (s *Supervisor) stepFailed(r *run, res StepResult) {
	s.logger.Warn("%v", res.Err)
	r.emit(fmt.Sprintf("[WARN] %v", res.Err))
}

// waitExit waits up to d for h to exit. A cancelled ctx ends the wait
// early so the escalation moves on to the next step.
func waitExit(ctx context.Context, h Handle, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.Done():
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}
