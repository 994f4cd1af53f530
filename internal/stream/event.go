package stream

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies a line of server output.
type Severity int

const (
	// SeverityInfo is ordinary progress output.
	SeverityInfo Severity = iota
	// SeverityWarn marks lines the server flagged as warnings.
	SeverityWarn
	// SeverityError marks stderr output and lines flagged as errors.
	SeverityError
)

// String returns INFO, WARN or ERROR.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity parses INFO, WARN/WARNING or ERROR, case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, true
	case "WARN", "WARNING":
		return SeverityWarn, true
	case "ERROR":
		return SeverityError, true
	default:
		return SeverityInfo, false
	}
}

// Origin identifies where a line came from.
type Origin int

const (
	// OriginPrimary is the child's standard output.
	OriginPrimary Origin = iota
	// OriginSecondary is the child's standard error.
	OriginSecondary
	// OriginLauncher marks messages produced by the launcher itself
	// (launch banner, updater progress, shutdown notices).
	OriginLauncher
)

// String returns stdout, stderr or launcher.
func (o Origin) String() string {
	switch o {
	case OriginPrimary:
		return "stdout"
	case OriginSecondary:
		return "stderr"
	case OriginLauncher:
		return "launcher"
	default:
		return "unknown"
	}
}

// Event is one classified line. Events are values and are never modified
// after they are created.
type Event struct {
	// Severity is the classification of Line.
	Severity Severity

	// Line is the raw text without its trailing newline.
	Line string

	// Origin is the channel the line was read from.
	Origin Origin

	// Time is when the line was read.
	Time time.Time

	// RunID identifies the launch lifecycle that produced the line.
	RunID string
}

// Emitter receives events. Implementations must accept concurrent calls.
type Emitter interface {
	Append(e Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(e Event)

// Append calls f(e).
func (f EmitterFunc) Append(e Event) { f(e) }
