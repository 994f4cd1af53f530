package console

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NICKLING017/ComfyUIlauncher/internal/config"
	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
	"github.com/NICKLING017/ComfyUIlauncher/internal/supervisor"
)

const waitFor = 3 * time.Second

type fakeController struct {
	mu       sync.Mutex
	state    supervisor.State
	launches []supervisor.LaunchRequest
	stops    int
}

func (f *fakeController) Launch(_ context.Context, req supervisor.LaunchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches = append(f.launches, req)
	f.state = supervisor.StateRunning
	return nil
}

func (f *fakeController) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != supervisor.StateRunning {
		return supervisor.ErrNotRunning
	}
	f.stops++
	f.state = supervisor.StateStopped
	return nil
}

func (f *fakeController) State() supervisor.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launches), f.stops
}

type harness struct {
	t      *testing.T
	screen tcell.SimulationScreen
	buf    *sink.Buffer
	ctl    *fakeController
	con    *Console
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, opts ...Option) *harness {
	t.Helper()
	rec := config.Defaults()
	rec.ComfyUIDir = "/srv/comfy"

	h := &harness{
		t:      t,
		screen: tcell.NewSimulationScreen("UTF-8"),
		buf:    sink.NewBuffer(100),
		ctl:    &fakeController{},
		done:   make(chan error, 1),
	}
	h.con = New(h.screen, h.buf, h.ctl, rec, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.con.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(waitFor):
			t.Error("console did not exit")
		}
	})

	h.waitText("ComfyUI launcher")
	return h
}

func (h *harness) text() string {
	cells, w, height := h.screen.GetContents()
	var b strings.Builder
	for y := 0; y < height; y++ {
		for x := 0; x < w; x++ {
			r := cells[y*w+x].Runes
			if len(r) == 0 {
				b.WriteByte(' ')
				continue
			}
			b.WriteString(string(r))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (h *harness) waitText(want string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return strings.Contains(h.text(), want)
	}, waitFor, 10*time.Millisecond, "screen never showed %q", want)
}

func (h *harness) hasRow(want string) bool {
	for _, row := range strings.Split(h.text(), "\n") {
		if strings.TrimRight(row, " ") == want {
			return true
		}
	}
	return false
}

func (h *harness) key(r rune) {
	h.screen.InjectKey(tcell.KeyRune, r, tcell.ModNone)
}

func (h *harness) typeText(s string) {
	for _, r := range s {
		h.key(r)
	}
}

func (h *harness) waitExit() {
	h.t.Helper()
	select {
	case err := <-h.done:
		assert.NoError(h.t, err)
		h.done <- nil
	case <-time.After(waitFor):
		h.t.Fatal("console did not exit")
	}
}

func info(line string) stream.Event {
	return stream.Event{Severity: stream.SeverityInfo, Line: line, Origin: stream.OriginPrimary, Time: time.Now()}
}

func errorEvent(line string) stream.Event {
	return stream.Event{Severity: stream.SeverityError, Line: line, Origin: stream.OriginSecondary, Time: time.Now()}
}

func TestConsole_ShowsConfigurationAndLog(t *testing.T) {
	h := start(t)
	h.waitText("dir: /srv/comfy")
	h.waitText("args: --auto-launch")
	h.waitText("IDLE")

	h.buf.Append(info("To see the GUI go to: http://127.0.0.1:8188"))
	h.buf.Status("running (pid 42)")
	h.waitText("To see the GUI go to")
	h.waitText("running (pid 42)")
}

func TestConsole_QuitKey(t *testing.T) {
	h := start(t)
	h.key('q')
	h.waitExit()
}

func TestConsole_CtrlCQuits(t *testing.T) {
	h := start(t)
	h.screen.InjectKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	h.waitExit()
}

func TestConsole_StartAndStop(t *testing.T) {
	h := start(t)

	h.key('s')
	require.Eventually(t, func() bool {
		n, _ := h.ctl.counts()
		return n == 1
	}, waitFor, 10*time.Millisecond)

	h.ctl.mu.Lock()
	req := h.ctl.launches[0]
	h.ctl.mu.Unlock()
	assert.Equal(t, "/srv/comfy", req.TargetDir)
	assert.Equal(t, []string{"--auto-launch"}, req.Args)
	assert.True(t, req.Update)

	h.buf.Append(info("tick"))
	h.waitText("RUNNING")

	h.key('x')
	require.Eventually(t, func() bool {
		_, stops := h.ctl.counts()
		return stops == 1
	}, waitFor, 10*time.Millisecond)
}

func TestConsole_StartIgnoredWhileRunning(t *testing.T) {
	h := start(t)
	h.ctl.mu.Lock()
	h.ctl.state = supervisor.StateRunning
	h.ctl.mu.Unlock()

	h.key('s')
	h.key('a')
	h.waitText("[a]uto:off")

	n, _ := h.ctl.counts()
	assert.Zero(t, n)
}

func TestConsole_QuitStopsRunningServer(t *testing.T) {
	h := start(t)
	h.ctl.mu.Lock()
	h.ctl.state = supervisor.StateRunning
	h.ctl.mu.Unlock()

	h.key('q')
	h.waitExit()

	_, stops := h.ctl.counts()
	assert.Equal(t, 1, stops)
}

func TestConsole_ContextCancelStopsServer(t *testing.T) {
	h := start(t)
	h.ctl.mu.Lock()
	h.ctl.state = supervisor.StateRunning
	h.ctl.mu.Unlock()

	h.cancel()
	h.waitExit()

	_, stops := h.ctl.counts()
	assert.Equal(t, 1, stops)
}

func TestConsole_SeverityFilter(t *testing.T) {
	h := start(t)
	h.buf.Append(info("alpha line"))
	h.buf.Append(errorEvent("beta line"))
	h.waitText("alpha line")
	h.waitText("beta line")

	h.key('i')
	h.waitText("[i]nfo:off")
	assert.NotContains(t, h.text(), "alpha line")
	assert.Contains(t, h.text(), "beta line")
	assert.False(t, h.con.Filter().Info)

	h.key('i')
	h.waitText("alpha line")
}

func TestConsole_Search(t *testing.T) {
	h := start(t)
	h.buf.Append(info("loading model one"))
	h.buf.Append(errorEvent("model failed to load"))
	h.buf.Append(info("unrelated"))
	h.waitText("unrelated")

	h.key('/')
	h.typeText("modex")
	h.screen.InjectKey(tcell.KeyBackspace2, 0, tcell.ModNone)
	h.typeText("l")
	h.waitText("/model")
	h.screen.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	h.waitText("search: model (2)")

	// Matches are highlighted.
	require.Eventually(t, func() bool {
		cells, w, height := h.screen.GetContents()
		for y := 0; y < height; y++ {
			for x := 0; x < w; x++ {
				if cells[y*w+x].Style == styleHighlight {
					return true
				}
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)

	h.screen.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	require.Eventually(t, func() bool {
		return !strings.Contains(h.text(), "search: model")
	}, waitFor, 10*time.Millisecond)
}

func TestConsole_SearchCancel(t *testing.T) {
	h := start(t)
	h.key('/')
	h.typeText("abc")
	h.waitText("/abc")
	h.screen.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	h.key('a')
	h.waitText("[a]uto:off")
	assert.NotContains(t, h.text(), "search: abc")
}

func TestConsole_Clear(t *testing.T) {
	h := start(t)
	h.buf.Append(info("to be cleared"))
	h.waitText("to be cleared")
	h.key('c')
	require.Eventually(t, func() bool {
		return !strings.Contains(h.text(), "to be cleared")
	}, waitFor, 10*time.Millisecond)
	assert.Zero(t, h.buf.Len())
}

func TestConsole_EnvironmentCycle(t *testing.T) {
	var scanned []string
	var mu sync.Mutex
	h := start(t, WithEnvScanner(func(dir string) []string {
		mu.Lock()
		scanned = append(scanned, dir)
		mu.Unlock()
		return []string{".venv", "venv311"}
	}))

	h.waitText("env: auto")
	h.key('v')
	h.waitText("env: .venv")
	h.key('v')
	h.waitText("env: venv311")
	h.key('v')
	h.waitText("env: auto")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/srv/comfy", scanned[0])
}

func TestConsole_UpdateToggleAffectsRequest(t *testing.T) {
	h := start(t)
	h.key('u')
	h.waitText("update: off")
	assert.False(t, h.con.Request().Update)
}

func TestConsole_SetRecord(t *testing.T) {
	h := start(t)
	rec := config.Defaults()
	rec.ComfyUIDir = "/reloaded"
	rec.AutoArgs = "--cpu --listen"
	h.con.SetRecord(rec)

	h.waitText("dir: /reloaded")
	h.waitText("args: --cpu --listen")
	assert.Equal(t, []string{"--cpu", "--listen"}, h.con.Request().Args)
}

func TestConsole_ScrollBack(t *testing.T) {
	h := start(t)
	for i := 0; i < 60; i++ {
		h.buf.Append(info("line " + string(rune('A'+i%26)) + strings.Repeat("x", i)))
	}
	last := "line " + string(rune('A'+59%26)) + strings.Repeat("x", 59)
	h.waitText(last)

	h.screen.InjectKey(tcell.KeyHome, 0, tcell.ModNone)
	require.Eventually(t, func() bool {
		return h.hasRow("line A")
	}, waitFor, 10*time.Millisecond)
	h.waitText("[a]uto:off")

	h.screen.InjectKey(tcell.KeyEnd, 0, tcell.ModNone)
	h.waitText(last)
}

func TestConsole_WideCharacters(t *testing.T) {
	h := start(t)
	h.buf.Append(info("模型 loaded"))
	h.waitText("loaded")

	cells, w, height := h.screen.GetContents()
	for y := 0; y < height; y++ {
		row := cells[y*w : (y+1)*w]
		if len(row[0].Runes) > 0 && row[0].Runes[0] == '模' {
			assert.Equal(t, '型', row[2].Runes[0])
			return
		}
	}
	t.Fatal("wide line not rendered")
}
