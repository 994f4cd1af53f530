package console

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
	"github.com/NICKLING017/ComfyUIlauncher/internal/supervisor"
)

// Rows above and below the log area.
const (
	headerRows = 2
	footerRows = 1
)

var (
	styleHeader    = tcell.StyleDefault.Bold(true)
	styleControls  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleStatus    = tcell.StyleDefault.Reverse(true)
	styleHighlight = tcell.StyleDefault.Background(tcell.ColorYellow).Foreground(tcell.ColorBlack)
)

func severityStyle(s stream.Severity) tcell.Style {
	switch s {
	case stream.SeverityWarn:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case stream.SeverityError:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	}
}

// draw renders one frame from a single buffer snapshot.
func (c *Console) draw() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.screen
	s.Clear()
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return
	}

	events, matches := c.buf.View(c.filter, c.pattern)

	page := max(0, h-headerRows-footerRows)
	c.total, c.page = len(events), page
	last := max(0, len(events)-page)
	if c.autoscroll || c.top > last {
		c.top = last
	}

	byLine := make(map[int][]sink.Match)
	for _, m := range matches {
		byLine[m.Index] = append(byLine[m.Index], m)
	}

	drawText(s, 0, 0, w, styleHeader, c.headerLine())
	drawText(s, 0, 1, w, styleControls, c.controlsLine(len(matches)))
	for row := 0; row < page && c.top+row < len(events); row++ {
		i := c.top + row
		drawLine(s, headerRows+row, w, events[i], byLine[i])
	}
	if h > headerRows {
		for x := 0; x < w; x++ {
			s.SetContent(x, h-1, ' ', nil, styleStatus)
		}
		drawText(s, 0, h-1, w, styleStatus, c.statusLine())
	}
	s.Show()
}

func (c *Console) headerLine() string {
	env := c.rec.VenvDir
	if env == "" {
		env = "auto"
	}
	return fmt.Sprintf("ComfyUI launcher  dir: %s  env: %s  args: %s  update: %s",
		c.rec.ComfyUIDir, env, strings.Join(c.rec.LaunchArgs(), " "), onOff(c.rec.UpdateCheck))
}

func (c *Console) controlsLine(hits int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[s]tart [x]stop  [i]nfo:%s [w]arn:%s [e]rror:%s  [a]uto:%s",
		onOff(c.filter.Info), onOff(c.filter.Warn), onOff(c.filter.Error), onOff(c.autoscroll))
	if c.pattern != "" {
		fmt.Fprintf(&b, "  search: %s (%d)", c.pattern, hits)
	}
	b.WriteString("  [/]search [v]env [u]pdate [c]lear [q]uit")
	return b.String()
}

func (c *Console) statusLine() string {
	if c.searching {
		return "/" + string(c.input)
	}
	state := c.ctl.State()
	mark := "○"
	if state == supervisor.StateRunning {
		mark = "●"
	}
	line := fmt.Sprintf(" %s %s", mark, strings.ToUpper(state.String()))
	if msg := c.buf.StatusLine(); msg != "" {
		line += " | " + msg
	}
	if n := c.buf.Dropped(); n > 0 {
		line += fmt.Sprintf(" | %d older lines dropped", n)
	}
	return line
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// drawText writes text from column x, clipped at width, and returns the
// column after the last cell written.
func drawText(s tcell.Screen, x, y, width int, style tcell.Style, text string) int {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		w := g.Width()
		if x+w > width {
			break
		}
		x = putCluster(s, x, y, g.Runes(), w, style)
	}
	return x
}

// drawLine writes one event, highlighting the byte ranges in hits.
func drawLine(s tcell.Screen, y, width int, e stream.Event, hits []sink.Match) {
	base := severityStyle(e.Severity)
	x := 0
	g := uniseg.NewGraphemes(e.Line)
	for g.Next() {
		w := g.Width()
		if x+w > width {
			return
		}
		style := base
		from, _ := g.Positions()
		for _, m := range hits {
			if from >= m.Start && from < m.End {
				style = styleHighlight
				break
			}
		}
		x = putCluster(s, x, y, g.Runes(), w, style)
	}
}

func putCluster(s tcell.Screen, x, y int, runes []rune, width int, style tcell.Style) int {
	if len(runes) == 0 {
		return x
	}
	if runes[0] == '\t' {
		runes = []rune{' '}
		width = 1
	}
	if width == 0 {
		return x
	}
	s.SetContent(x, y, runes[0], runes[1:], style)
	return x + width
}
