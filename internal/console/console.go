// Package console is the interactive terminal frontend of the launcher.
//
// It renders the in-memory log with severity colours, a status bar and the
// current configuration, and drives a supervisor from the keyboard:
//
//	s  start server          x  stop server
//	i  toggle INFO           w  toggle WARN        e  toggle ERROR
//	/  search (Enter, Esc)   n  next match
//	a  toggle autoscroll     c  clear log
//	v  next environment      u  toggle update check
//	q  quit (stops the server first)
//
// Arrow keys, PgUp/PgDn and Home scroll back; End resumes autoscroll.
package console

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/NICKLING017/ComfyUIlauncher/internal/config"
	"github.com/NICKLING017/ComfyUIlauncher/internal/logging"
	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
	"github.com/NICKLING017/ComfyUIlauncher/internal/supervisor"
)

// Controller is the supervisor surface the console drives.
type Controller interface {
	Launch(ctx context.Context, req supervisor.LaunchRequest) error
	Stop(ctx context.Context) error
	State() supervisor.State
}

// EnvScanner lists the environment names available under dir.
type EnvScanner func(dir string) []string

// quitEvent asks the event loop to exit.
type quitEvent struct{}

// Console is a tcell frontend over a log Buffer and a Controller.
type Console struct {
	screen tcell.Screen
	buf    *sink.Buffer
	ctl    Controller
	scan   EnvScanner
	logger *logging.Logger

	mu         sync.Mutex
	rec        config.Record
	filter     sink.Filter
	pattern    string
	searching  bool
	input      []rune
	autoscroll bool
	top        int
	total      int
	page       int

	redrawPending atomic.Bool
	launchCtx     context.Context
	launchCancel  context.CancelFunc
	wg            sync.WaitGroup
}

// Option configures a Console.
type Option func(*Console)

// WithEnvScanner sets how environment names are discovered for the
// environment picker.
func WithEnvScanner(fn EnvScanner) Option {
	return func(c *Console) {
		c.scan = fn
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Console) {
		c.logger = l
	}
}

// New creates a Console. The screen is initialised by Run.
func New(screen tcell.Screen, buf *sink.Buffer, ctl Controller, rec config.Record, opts ...Option) *Console {
	c := &Console{
		screen:     screen,
		buf:        buf,
		ctl:        ctl,
		logger:     logging.Nop(),
		rec:        rec,
		filter:     sink.AllSeverities,
		autoscroll: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("console")
	c.launchCtx, c.launchCancel = context.WithCancel(context.Background())
	return c
}

// Record returns the configuration the next launch will use.
func (c *Console) Record() config.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

// SetRecord replaces the configuration, e.g. after a live reload.
func (c *Console) SetRecord(rec config.Record) {
	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()
	c.requestRedraw()
}

// Request builds the launch request from the current configuration.
func (c *Console) Request() supervisor.LaunchRequest {
	rec := c.Record()
	return supervisor.LaunchRequest{
		TargetDir: rec.ComfyUIDir,
		Env:       rec.VenvDir,
		Args:      rec.LaunchArgs(),
		Update:    rec.UpdateCheck,
	}
}

// Filter returns the active severity filter.
func (c *Console) Filter() sink.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Run shows the console until the operator quits or ctx is cancelled.
// A running server is stopped before Run returns.
func (c *Console) Run(ctx context.Context) error {
	if err := c.screen.Init(); err != nil {
		return err
	}
	defer c.screen.Fini()

	c.buf.OnChange(c.requestRedraw)
	defer c.buf.OnChange(nil)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.screen.PostEvent(tcell.NewEventInterrupt(quitEvent{}))
		case <-done:
		}
	}()

	c.draw()
	for {
		ev := c.screen.PollEvent()
		if ev == nil {
			return nil
		}
		switch ev := ev.(type) {
		case *tcell.EventResize:
			c.screen.Sync()
		case *tcell.EventKey:
			if c.handleKey(ev) {
				c.shutdown()
				return nil
			}
		case *tcell.EventInterrupt:
			if _, ok := ev.Data().(quitEvent); ok {
				c.shutdown()
				return nil
			}
			c.redrawPending.Store(false)
		}
		c.draw()
	}
}

// requestRedraw wakes the event loop once per burst of buffer changes.
func (c *Console) requestRedraw() {
	if c.redrawPending.CompareAndSwap(false, true) {
		if err := c.screen.PostEvent(tcell.NewEventInterrupt(nil)); err != nil {
			c.redrawPending.Store(false)
		}
	}
}

// shutdown cancels a pending launch and stops a live server.
func (c *Console) shutdown() {
	c.launchCancel()
	c.wg.Wait()

	switch c.ctl.State() {
	case supervisor.StateRunning, supervisor.StateStopping:
		c.buf.Status("stopping server before exit")
		c.draw()
		if err := c.ctl.Stop(context.Background()); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
			c.logger.Warn("stop on exit: %v", err)
		}
	}
}

func (c *Console) start() {
	switch c.ctl.State() {
	case supervisor.StateStarting, supervisor.StateRunning, supervisor.StateStopping:
		return
	}
	req := c.Request()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.ctl.Launch(c.launchCtx, req); err != nil {
			c.logger.Warn("launch: %v", err)
		}
	}()
}

func (c *Console) stop() {
	if c.ctl.State() != supervisor.StateRunning {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.ctl.Stop(context.Background()); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
			c.logger.Warn("stop: %v", err)
		}
	}()
}

// handleKey applies one key press and reports whether to quit.
func (c *Console) handleKey(ev *tcell.EventKey) bool {
	c.mu.Lock()
	searching := c.searching
	c.mu.Unlock()
	if searching {
		c.handleSearchKey(ev)
		return false
	}

	switch ev.Key() {
	case tcell.KeyCtrlC:
		return true
	case tcell.KeyEscape:
		c.mu.Lock()
		c.pattern = ""
		c.mu.Unlock()
	case tcell.KeyUp:
		c.scroll(-1)
	case tcell.KeyDown:
		c.scroll(1)
	case tcell.KeyPgUp:
		c.scroll(-c.pageSize())
	case tcell.KeyPgDn:
		c.scroll(c.pageSize())
	case tcell.KeyHome:
		c.mu.Lock()
		c.autoscroll, c.top = false, 0
		c.mu.Unlock()
	case tcell.KeyEnd:
		c.mu.Lock()
		c.autoscroll = true
		c.mu.Unlock()
	case tcell.KeyRune:
		if ev.Modifiers()&tcell.ModCtrl != 0 && unicode.ToLower(ev.Rune()) == 'c' {
			return true
		}
		return c.handleRune(ev.Rune())
	}
	return false
}

func (c *Console) handleRune(r rune) bool {
	switch r {
	case 'q':
		return true
	case 's':
		c.start()
	case 'x':
		c.stop()
	case 'c':
		c.buf.Clear()
	case 'i', 'w', 'e':
		sev := map[rune]stream.Severity{'i': stream.SeverityInfo, 'w': stream.SeverityWarn, 'e': stream.SeverityError}[r]
		c.mu.Lock()
		c.filter = c.filter.Toggle(sev)
		c.mu.Unlock()
	case 'a':
		c.mu.Lock()
		c.autoscroll = !c.autoscroll
		c.mu.Unlock()
	case '/':
		c.mu.Lock()
		c.searching = true
		c.input = []rune(c.pattern)
		c.mu.Unlock()
	case 'n':
		c.nextMatch()
	case 'v':
		c.nextEnv()
	case 'u':
		c.mu.Lock()
		c.rec.UpdateCheck = !c.rec.UpdateCheck
		c.mu.Unlock()
	}
	return false
}

func (c *Console) handleSearchKey(ev *tcell.EventKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Key() {
	case tcell.KeyEnter:
		c.pattern = string(c.input)
		c.searching = false
	case tcell.KeyEscape, tcell.KeyCtrlC:
		c.searching = false
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(c.input) > 0 {
			c.input = c.input[:len(c.input)-1]
		}
	case tcell.KeyRune:
		c.input = append(c.input, ev.Rune())
	}
}

func (c *Console) pageSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page < 1 {
		return 1
	}
	return c.page
}

func (c *Console) scroll(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoscroll {
		c.top = max(0, c.total-c.page)
		c.autoscroll = false
	}
	c.top = min(max(0, c.top+delta), max(0, c.total-c.page))
}

// nextMatch scrolls to the first match below the top visible line,
// wrapping to the first match.
func (c *Console) nextMatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, matches := c.buf.View(c.filter, c.pattern)
	if len(matches) == 0 {
		return
	}
	target := matches[0].Index
	for _, m := range matches {
		if m.Index > c.top {
			target = m.Index
			break
		}
	}
	c.autoscroll = false
	c.top = target
}

// nextEnv selects the next environment: automatic, then each one found
// under the target directory.
func (c *Console) nextEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()
	options := []string{""}
	if c.scan != nil {
		options = append(options, c.scan(c.rec.ComfyUIDir)...)
	}
	next := options[0]
	for i, o := range options {
		if o == c.rec.VenvDir {
			next = options[(i+1)%len(options)]
			break
		}
	}
	c.rec.VenvDir = next
}
