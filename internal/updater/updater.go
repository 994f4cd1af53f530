// Package updater brings the server's git checkout up to date before launch.
//
// Updating is advisory. Update never returns an error: every failure is
// folded into a Result with OutcomeFailed, which the launcher reports as a
// warning before launching anyway.
package updater

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/NICKLING017/ComfyUIlauncher/internal/logging"
)

// Error types for update checks.
var (
	// ErrUpdateCheckFailed wraps every failure reported in a Result.
	ErrUpdateCheckFailed = errors.New("update check failed")

	// ErrGitNotFound indicates the git executable is not installed.
	ErrGitNotFound = errors.New("git executable not found")

	// ErrConflict indicates the pull stopped on a merge conflict.
	ErrConflict = errors.New("merge conflict")
)

// DefaultTimeout bounds the whole update sequence.
const DefaultTimeout = 2 * time.Minute

// Outcome is what an update check concluded.
type Outcome int

const (
	// OutcomeNotRepository means the directory is not a git working tree.
	OutcomeNotRepository Outcome = iota
	// OutcomeUpToDate means HEAD matches its upstream, or no upstream is set.
	OutcomeUpToDate
	// OutcomeUpdated means a pull was performed.
	OutcomeUpdated
	// OutcomeFailed means some step failed; see Result.Err.
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNotRepository:
		return "not-repository"
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports an update check. It is advisory only.
type Result struct {
	Outcome Outcome

	// Local is HEAD before any pull.
	Local string

	// Remote is the upstream commit, or Local when no upstream is set.
	Remote string

	// HasUpstream reports whether an upstream tracking ref was configured.
	HasUpstream bool

	// Err is set when Outcome is OutcomeFailed and wraps ErrUpdateCheckFailed.
	Err error
}

// Message summarises the result as a log line.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeNotRepository:
		return "[INFO] not a git checkout, skipping update"
	case OutcomeUpToDate:
		return "[INFO] already up to date"
	case OutcomeUpdated:
		return "[INFO] update pulled"
	default:
		return fmt.Sprintf("[WARN] %v, launching anyway", r.Err)
	}
}

// ProgressFunc receives progress lines while an update runs.
type ProgressFunc func(msg string)

// Updater runs update checks with the git command-line tool.
type Updater struct {
	bin     string
	timeout time.Duration
	logger  *logging.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithGitBinary overrides the git executable.
func WithGitBinary(bin string) Option {
	return func(u *Updater) {
		u.bin = bin
	}
}

// WithTimeout bounds the whole update sequence.
func WithTimeout(d time.Duration) Option {
	return func(u *Updater) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(u *Updater) {
		u.logger = l
	}
}

// New creates an Updater.
func New(opts ...Option) *Updater {
	u := &Updater{
		bin:     "git",
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.WithComponent("updater")
	return u
}

// Update checks dir against its upstream and pulls when they differ.
// progress may be nil.
func (u *Updater) Update(ctx context.Context, dir string, progress ProgressFunc) Result {
	if progress == nil {
		progress = func(string) {}
	}
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	git := func(args ...string) (string, error) {
		out, err := newGitCommand(u.bin, dir, args...).run(ctx)
		return strings.TrimSpace(out), err
	}

	out, err := git("rev-parse", "--is-inside-work-tree")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return u.failed(Result{}, ErrGitNotFound)
		}
		u.logger.Debug("not a work tree: %v", err)
		return Result{Outcome: OutcomeNotRepository}
	}
	if out != "true" {
		return Result{Outcome: OutcomeNotRepository}
	}

	progress("[INFO] checking for updates")

	if _, err := git("fetch"); err != nil {
		return u.failed(Result{}, err)
	}

	local, err := git("rev-parse", "@")
	if err != nil {
		return u.failed(Result{}, err)
	}
	res := Result{Local: local, Remote: local}

	if remote, err := git("rev-parse", "@{u}"); err == nil && remote != "" {
		res.Remote = remote
		res.HasUpstream = true
	} else {
		u.logger.Debug("no upstream configured in %s", dir)
	}

	if res.Local == res.Remote {
		res.Outcome = OutcomeUpToDate
		return res
	}

	progress("[INFO] update found, pulling")
	if out, err := git("--no-pager", "pull"); err != nil {
		var cmdErr *CommandError
		if strings.Contains(out, "CONFLICT") || (errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, "CONFLICT")) {
			err = ErrConflict
		}
		return u.failed(res, err)
	}

	res.Outcome = OutcomeUpdated
	return res
}

func (u *Updater) failed(res Result, err error) Result {
	u.logger.Warn("update check failed: %v", err)
	res.Outcome = OutcomeFailed
	res.Err = fmt.Errorf("%w: %w", ErrUpdateCheckFailed, err)
	return res
}
