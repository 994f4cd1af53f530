// Package sink implements the consumers of classified server output.
//
// A Sink receives every Event produced for a launch, plus status-line
// updates and the running indicator a frontend uses to enable or disable
// its start and stop controls. All implementations accept concurrent calls
// and write each event as one unit.
package sink

import (
	"sync"

	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
)

// Sink is the log and status surface the supervisor reports to.
type Sink interface {
	stream.Emitter

	// Status replaces the one-line status summary.
	Status(msg string)

	// Running reports whether a server process is currently alive.
	Running(running bool)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(stream.Event) {}
func (discard) Status(string)       {}
func (discard) Running(bool)        {}

// Multi fans every call out to each sink in order.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMulti creates a fan-out sink.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Add appends another destination.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *Multi) each(fn func(Sink)) {
	m.mu.RLock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()
	for _, s := range sinks {
		fn(s)
	}
}

// Append forwards e.
func (m *Multi) Append(e stream.Event) { m.each(func(s Sink) { s.Append(e) }) }

// Status forwards msg.
func (m *Multi) Status(msg string) { m.each(func(s Sink) { s.Status(msg) }) }

// Running forwards running.
func (m *Multi) Running(running bool) { m.each(func(s Sink) { s.Running(running) }) }
