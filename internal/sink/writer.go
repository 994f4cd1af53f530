package sink

import (
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
)

// Writer prints each event's line to an io.Writer, optionally coloured by
// severity. It is the sink used by the non-interactive run command.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	status io.Writer
	color  bool
	min    stream.Severity
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithColor forces colouring on or off.
func WithColor(on bool) WriterOption {
	return func(w *Writer) {
		w.color = on
	}
}

// WithStatusOutput prints status updates to out. Without it, status
// updates are dropped.
func WithStatusOutput(out io.Writer) WriterOption {
	return func(w *Writer) {
		w.status = out
	}
}

// WithMinSeverity hides events below s.
func WithMinSeverity(s stream.Severity) WriterOption {
	return func(w *Writer) {
		w.min = s
	}
}

// NewWriter creates a Writer. Colour defaults to on when out is a terminal.
func NewWriter(out io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{out: out, color: IsTerminal(out)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Append writes e.Line followed by a newline.
func (w *Writer) Append(e stream.Event) {
	if e.Severity < w.min {
		return
	}
	line := e.Line + "\n"
	if w.color {
		line = colorFor(e.Severity) + e.Line + ansiReset + "\n"
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.out, line)
}

// Status writes msg to the status output, if configured.
func (w *Writer) Status(msg string) {
	if w.status == nil || msg == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.status, msg+"\n")
}

// Running is a no-op; the process exit already shows in the log.
func (w *Writer) Running(bool) {}

func colorFor(s stream.Severity) string {
	switch s {
	case stream.SeverityWarn:
		return ansiYellow
	case stream.SeverityError:
		return ansiRed
	default:
		return ansiGreen
	}
}
