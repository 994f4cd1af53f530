package sink

import (
	"regexp"
	"strings"
	"sync"

	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
)

// DefaultBufferSize is the number of events a Buffer keeps by default.
const DefaultBufferSize = 10000

// Filter selects which severities are visible.
type Filter struct {
	Info  bool
	Warn  bool
	Error bool
}

// AllSeverities shows every event.
var AllSeverities = Filter{Info: true, Warn: true, Error: true}

// Allows reports whether events of severity s pass the filter.
func (f Filter) Allows(s stream.Severity) bool {
	switch s {
	case stream.SeverityInfo:
		return f.Info
	case stream.SeverityWarn:
		return f.Warn
	case stream.SeverityError:
		return f.Error
	default:
		return false
	}
}

// Toggle flips the visibility of severity s.
func (f Filter) Toggle(s stream.Severity) Filter {
	switch s {
	case stream.SeverityInfo:
		f.Info = !f.Info
	case stream.SeverityWarn:
		f.Warn = !f.Warn
	case stream.SeverityError:
		f.Error = !f.Error
	}
	return f
}

// Match locates one search hit inside a filtered event list.
type Match struct {
	// Index is the position in the slice returned by Events.
	Index int
	// Start and End are byte offsets into that event's Line.
	Start, End int
}

// Buffer is an in-memory Sink holding the most recent events of the
// current session. When full, the oldest events are discarded.
type Buffer struct {
	mu      sync.RWMutex
	events  []stream.Event
	head    int
	size    int
	dropped int
	status  string
	running bool

	onChange func()
}

// NewBuffer creates a Buffer holding up to capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{events: make([]stream.Event, capacity)}
}

// OnChange registers fn to run after every mutation. fn is called without
// the buffer lock held and may read from the buffer.
func (b *Buffer) OnChange(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Buffer) notify() {
	b.mu.RLock()
	fn := b.onChange
	b.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Append stores e, evicting the oldest event when full.
func (b *Buffer) Append(e stream.Event) {
	b.mu.Lock()
	idx := (b.head + b.size) % len(b.events)
	b.events[idx] = e
	if b.size < len(b.events) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.events)
		b.dropped++
	}
	b.mu.Unlock()
	b.notify()
}

// Status records msg as the current status line.
func (b *Buffer) Status(msg string) {
	b.mu.Lock()
	b.status = msg
	b.mu.Unlock()
	b.notify()
}

// Running records the running indicator.
func (b *Buffer) Running(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
	b.notify()
}

// StatusLine returns the last status message.
func (b *Buffer) StatusLine() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// IsRunning returns the last running indicator.
func (b *Buffer) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Len returns the number of stored events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Dropped returns how many events were evicted since the last Clear.
func (b *Buffer) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Events returns the stored events that pass f, oldest first.
func (b *Buffer) Events(f Filter) []stream.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]stream.Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		e := b.events[(b.head+i)%len(b.events)]
		if f.Allows(e.Severity) {
			out = append(out, e)
		}
	}
	return out
}

// Search finds case-insensitive occurrences of pattern in the events that
// pass f. Indexes refer to the slice Events(f) would return at the same
// moment.
func (b *Buffer) Search(f Filter, pattern string) []Match {
	_, matches := b.View(f, pattern)
	return matches
}

// View returns Events(f) and the Search matches for pattern taken from
// the same snapshot, so match indexes line up with the events.
func (b *Buffer) View(f Filter, pattern string) ([]stream.Event, []Match) {
	events := b.Events(f)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return events, nil
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))

	var matches []Match
	for i, e := range events {
		for _, loc := range re.FindAllStringIndex(e.Line, -1) {
			matches = append(matches, Match{Index: i, Start: loc[0], End: loc[1]})
		}
	}
	return events, matches
}

// Clear removes every stored event. Status and running state are kept.
func (b *Buffer) Clear() {
	b.mu.Lock()
	for i := range b.events {
		b.events[i] = stream.Event{}
	}
	b.head, b.size, b.dropped = 0, 0, 0
	b.mu.Unlock()
	b.notify()
}
