// Package supervisor runs the server process on behalf of an operator.
//
// A Supervisor owns at most one lifecycle at a time:
//
//	Idle -> Starting -> Running -> Stopping -> Stopped
//	           \-> Failed
//
// Launch validates the request, optionally updates the checkout, spawns
// the interpreter and streams both output channels to a Sink. Stop runs
// the shutdown escalation (interrupt, terminate, kill tree) and always
// ends in Stopped with the process handle released. A child that exits on
// its own also passes through Stopping while its output drains.
//
// Supervisor is safe for concurrent use.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/NICKLING017/ComfyUIlauncher/internal/interpreter"
	"github.com/NICKLING017/ComfyUIlauncher/internal/logging"
	"github.com/NICKLING017/ComfyUIlauncher/internal/process"
	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
	"github.com/NICKLING017/ComfyUIlauncher/internal/updater"
)

// Default timing and entry point.
const (
	DefaultInterruptTimeout = 5 * time.Second
	DefaultTerminateTimeout = 3 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
	DefaultEntryPoint       = "main.py"
)

// exitGrace is how long finalize waits for the exit status after output
// has drained.
const exitGrace = 250 * time.Millisecond

// LaunchRequest describes one launch. It is not modified once submitted.
type LaunchRequest struct {
	// TargetDir is the server installation directory.
	TargetDir string

	// Env names an environment directory under TargetDir. Empty selects
	// the first conventional environment found.
	Env string

	// Args are passed to the entry point unchanged and in order.
	Args []string

	// Update runs the repository update before spawning.
	Update bool
}

// Resolver finds the interpreter for a target directory.
type Resolver interface {
	Resolve(baseDir, env string) (string, error)
}

// Updater refreshes the target directory before launch.
type Updater interface {
	Update(ctx context.Context, dir string, progress updater.ProgressFunc) updater.Result
}

// Handle is a spawned child process.
type Handle interface {
	PID() int
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Done() <-chan struct{}
	ExitCode() int
	Interrupt() error
	Terminate() error
	KillTree() error
	Close() error
}

// SpawnFunc starts a child process.
type SpawnFunc func(spec process.Spec) (Handle, error)

func spawnProcess(spec process.Spec) (Handle, error) {
	p, err := process.Start(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Exit describes how a run ended.
type Exit struct {
	RunID string

	// Code is the child's exit code, or -1 when it was not observed.
	Code int

	// Requested reports whether the run ended through Stop.
	Requested bool

	// Steps lists the escalation steps taken by Stop.
	Steps []StepResult
}

// Status is a snapshot of the supervisor.
type Status struct {
	State       State
	RunID       string
	PID         int
	TargetDir   string
	Interpreter string
	Started     time.Time
}

// Supervisor manages the lifecycle of one server process.
type Supervisor struct {
	resolver Resolver
	updater  Updater
	sink     sink.Sink
	logger   *logging.Logger
	spawn    SpawnFunc
	encoding encoding.Encoding

	entryPoint         string
	interruptSupported bool
	interruptTimeout   time.Duration
	terminateTimeout   time.Duration
	drainTimeout       time.Duration

	state atomic.Int32

	mu        sync.Mutex
	launching bool
	current   *run
	last      *run
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithResolver sets the interpreter resolver.
func WithResolver(r Resolver) Option {
	return func(s *Supervisor) {
		s.resolver = r
	}
}

// WithUpdater sets the repository updater. A nil updater skips updates.
func WithUpdater(u Updater) Option {
	return func(s *Supervisor) {
		s.updater = u
	}
}

// WithSink sets where output and status are reported.
func WithSink(out sink.Sink) Option {
	return func(s *Supervisor) {
		if out != nil {
			s.sink = out
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithSpawner replaces the process spawner.
func WithSpawner(fn SpawnFunc) Option {
	return func(s *Supervisor) {
		s.spawn = fn
	}
}

// WithEncoding decodes child output from enc. Nil reads UTF-8.
func WithEncoding(enc encoding.Encoding) Option {
	return func(s *Supervisor) {
		s.encoding = enc
	}
}

// WithEntryPoint sets the script run inside the target directory.
func WithEntryPoint(name string) Option {
	return func(s *Supervisor) {
		if name != "" {
			s.entryPoint = name
		}
	}
}

// WithInterruptTimeout sets how long to wait after the group interrupt.
func WithInterruptTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.interruptTimeout = d
		}
	}
}

// WithTerminateTimeout sets how long to wait after terminate.
func WithTerminateTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.terminateTimeout = d
		}
	}
}

// WithDrainTimeout bounds the wait for output to reach end-of-stream once
// the child is gone.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// WithInterrupt enables or disables the group interrupt step.
func WithInterrupt(enabled bool) Option {
	return func(s *Supervisor) {
		s.interruptSupported = enabled
	}
}

// New creates a Supervisor in the Idle state.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		resolver:           interpreter.NewResolver(),
		updater:            updater.New(),
		sink:               sink.Discard,
		logger:             logging.Nop(),
		spawn:              spawnProcess,
		entryPoint:         DefaultEntryPoint,
		interruptSupported: process.InterruptSupported,
		interruptTimeout:   DefaultInterruptTimeout,
		terminateTimeout:   DefaultTerminateTimeout,
		drainTimeout:       DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("supervisor")
	return s
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// IsRunning reports whether the server is in the Running state.
func (s *Supervisor) IsRunning() bool {
	return s.State() == StateRunning
}

// Status returns a snapshot of the current lifecycle.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.State(), PID: -1}
	r := s.current
	if r == nil {
		r = s.last
	}
	if r == nil {
		return st
	}
	st.RunID = r.id
	st.TargetDir = r.dir
	st.Interpreter = r.interp
	st.Started = r.started
	if st.State.hasHandle() && r.handle != nil {
		st.PID = r.handle.PID()
	}
	return st
}

// Launch starts the server described by req and returns once it is
// Running, or with the reason it could not start.
//
// Validation errors (ErrDirectoryNotFound, ErrEntryPointNotFound,
// interpreter.ErrInterpreterNotFound) leave the state unchanged. A spawn
// error moves the supervisor to Failed and wraps ErrSpawn.
func (s *Supervisor) Launch(ctx context.Context, req LaunchRequest) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	r := newRun(req, s.sink)
	if err := s.validate(r); err != nil {
		s.logger.Warn("launch rejected: %v", err)
		r.emit("[ERROR] " + err.Error())
		r.gate.close()
		s.sink.Status(err.Error())
		return err
	}

	s.state.Store(int32(StateStarting))
	s.sink.Status("starting")

	if req.Update && s.updater != nil {
		res := s.updater.Update(ctx, r.dir, r.emit)
		r.emit(res.Message())
	}
	if err := ctx.Err(); err != nil {
		return s.fail(r, fmt.Errorf("launch cancelled: %w", err))
	}

	args := append([]string{"-u", filepath.Join(r.dir, s.entryPoint)}, req.Args...)
	r.emit("[INFO] target directory: " + r.dir)
	r.emit("[INFO] interpreter: " + r.interp)
	r.emit("[INFO] arguments: " + strings.Join(req.Args, " "))
	if !interpreter.InsideBase(r.dir, r.interp) {
		r.emit(fmt.Sprintf("[WARNING] using system interpreter %s; set VENV_DIR to use a local environment", r.interp))
	}

	h, err := s.spawn(process.Spec{
		Name: "comfyui",
		Path: r.interp,
		Args: args,
		Dir:  r.dir,
		Env:  []string{"PYTHONUNBUFFERED=1"},
	})
	if err != nil {
		return s.fail(r, fmt.Errorf("%w: %w", ErrSpawn, err))
	}

	r.handle = h
	r.started = time.Now()
	r.router = stream.NewRouter(r.gate, stream.WithRunID(r.id), stream.WithEncoding(s.encoding))
	if err := r.router.Run(h.Stdout(), h.Stderr()); err != nil {
		s.logger.Error("start output router: %v", err)
	}

	s.mu.Lock()
	s.current = r
	s.state.Store(int32(StateRunning))
	s.mu.Unlock()

	s.logger.Info("started pid %d run %s", h.PID(), r.id)
	r.emit(fmt.Sprintf("[INFO] server started (pid %d)", h.PID()))
	s.sink.Running(true)
	s.sink.Status(fmt.Sprintf("running (pid %d)", h.PID()))

	go s.monitor(r)
	return nil
}

// LaunchAsync runs Launch on its own goroutine. The returned channel
// receives Launch's result and is then closed.
func (s *Supervisor) LaunchAsync(ctx context.Context, req LaunchRequest) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- s.Launch(ctx, req)
	}()
	return ch
}

// Stop shuts the running server down and returns once it is Stopped.
//
// Stop while a stop is already in progress does nothing and returns nil.
// Stop with no running server returns ErrNotRunning. Cancelling ctx skips
// the remaining waits and kills the process tree at once.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	if r == nil || !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		st := s.State()
		s.mu.Unlock()
		if st == StateStopping {
			return nil
		}
		return fmt.Errorf("%w (%s)", ErrNotRunning, st)
	}
	r.requested.Store(true)
	s.mu.Unlock()

	s.logger.Info("stopping pid %d", r.handle.PID())
	s.sink.Status("stopping")
	r.emit("[INFO] stopping server")

	r.steps = s.escalate(ctx, r)
	s.finalize(r)
	return nil
}

// StopAsync runs Stop on its own goroutine.
func (s *Supervisor) StopAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- s.Stop(ctx)
	}()
	return ch
}

// Wait blocks until the current run is Stopped and reports how it ended.
// With no run in progress it returns the last run's result, or
// ErrNotRunning if nothing was ever launched.
func (s *Supervisor) Wait(ctx context.Context) (Exit, error) {
	s.mu.Lock()
	r := s.current
	if r == nil {
		r = s.last
	}
	s.mu.Unlock()

	if r == nil {
		return Exit{}, ErrNotRunning
	}
	select {
	case <-r.finished:
		return r.exit(), nil
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

func (s *Supervisor) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.State()
	if s.launching {
		return fmt.Errorf("%w (%s)", ErrAlreadyRunning, StateStarting)
	}
	if !st.canLaunch() {
		return fmt.Errorf("%w (%s)", ErrAlreadyRunning, st)
	}
	s.launching = true
	return nil
}

func (s *Supervisor) release() {
	s.mu.Lock()
	s.launching = false
	s.mu.Unlock()
}

func (s *Supervisor) validate(r *run) error {
	dir, err := filepath.Abs(r.req.TargetDir)
	if err != nil || r.req.TargetDir == "" {
		return fmt.Errorf("%w: %q", ErrDirectoryNotFound, r.req.TargetDir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}
	r.dir = dir

	entry := filepath.Join(dir, s.entryPoint)
	if info, err := os.Stat(entry); err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrEntryPointNotFound, entry)
	}

	interp, err := s.resolver.Resolve(dir, r.req.Env)
	if err != nil {
		return fmt.Errorf("%w in %s", err, dir)
	}
	r.interp = interp
	return nil
}

// fail ends a launch that got past validation but produced no process.
func (s *Supervisor) fail(r *run, err error) error {
	s.logger.Error("launch failed: %v", err)
	r.emit("[ERROR] " + err.Error())
	r.gate.close()
	r.exitCode = -1

	s.mu.Lock()
	s.last = r
	s.state.Store(int32(StateFailed))
	s.mu.Unlock()

	close(r.finished)
	s.sink.Running(false)
	s.sink.Status(err.Error())
	return err
}

// monitor finalizes a run whose child exits without Stop.
func (s *Supervisor) monitor(r *run) {
	<-r.handle.Done()

	s.mu.Lock()
	owned := s.current == r && s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	s.mu.Unlock()
	if !owned {
		return
	}

	s.logger.Info("pid %d exited on its own with code %d", r.handle.PID(), r.handle.ExitCode())
	s.sink.Status("process exited, draining output")
	s.finalize(r)
}

// finalize drains output, releases the handle and moves to Stopped. It
// never blocks longer than the drain timeout plus exitGrace.
func (s *Supervisor) finalize(r *run) {
	h := r.handle
	if !r.router.Wait(s.drainTimeout) {
		s.logger.Warn("output still open %s after shutdown, closing readers", s.drainTimeout)
	}
	if err := h.Close(); err != nil {
		s.logger.Warn("release output: %v", err)
	}
	if err := r.router.Err(); err != nil {
		s.logger.Debug("output errors: %v", err)
	}

	r.exitCode = -1
	select {
	case <-h.Done():
		r.exitCode = h.ExitCode()
	case <-time.After(exitGrace):
	}

	var status string
	switch {
	case r.requested.Load():
		status = "stopped"
		r.emit("[INFO] process stopped")
	case r.exitCode == 0:
		status = "exited"
		r.emit("[INFO] process exited with code 0")
	default:
		status = fmt.Sprintf("exited with code %d", r.exitCode)
		r.emit(fmt.Sprintf("[WARN] process exited with code %d", r.exitCode))
	}
	r.gate.close()

	s.mu.Lock()
	s.current = nil
	s.last = r
	s.state.Store(int32(StateStopped))
	s.mu.Unlock()

	s.sink.Running(false)
	s.sink.Status(status)
	close(r.finished)
}

// run is one launch lifecycle.
type run struct {
	id     string
	req    LaunchRequest
	dir    string
	interp string

	handle  Handle
	router  *stream.Router
	gate    *gate
	started time.Time

	requested atomic.Bool
	steps     []StepResult
	exitCode  int
	finished  chan struct{}
}

func newRun(req LaunchRequest, out stream.Emitter) *run {
	req.Args = append([]string(nil), req.Args...)
	return &run{
		id:       uuid.New().String(),
		req:      req,
		gate:     &gate{out: out},
		finished: make(chan struct{}),
	}
}

// emit reports a launcher message, classified by its marker.
func (r *run) emit(line string) {
	r.gate.Append(stream.Event{
		Severity: stream.Classify(stream.OriginLauncher, line),
		Line:     line,
		Origin:   stream.OriginLauncher,
		Time:     time.Now(),
		RunID:    r.id,
	})
}

func (r *run) exit() Exit {
	return Exit{
		RunID:     r.id,
		Code:      r.exitCode,
		Requested: r.requested.Load(),
		Steps:     r.steps,
	}
}

// gate forwards events until it is closed. Closing waits for in-flight
// Appends, so nothing reaches the sink afterwards.
type gate struct {
	mu     sync.RWMutex
	closed bool
	out    stream.Emitter
}

func (g *gate) Append(e stream.Event) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return
	}
	g.out.Append(e)
}

func (g *gate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
