package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// ErrRouterStarted is returned when Run is called twice on one Router.
var ErrRouterStarted = errors.New("router already started")

const (
	defaultQueueSize  = 256
	defaultReaderSize = 64 * 1024
)

// Router drains a child process's two output channels concurrently and
// delivers one classified Event per line to an Emitter.
//
// Each channel is read by its own goroutine into its own queue, so lines
// keep their order within a channel. A single merge goroutine forwards both
// queues to the Emitter; no ordering holds between the two channels.
type Router struct {
	out     Emitter
	runID   string
	decoder encoding.Encoding
	queue   int
	now     func() time.Time

	started atomic.Bool
	done    chan struct{}

	mu     sync.Mutex
	errs   []error
	counts map[Origin]int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRunID stamps every event with id.
func WithRunID(id string) RouterOption {
	return func(r *Router) {
		r.runID = id
	}
}

// WithEncoding decodes child output from enc before splitting lines.
// A nil encoding reads the output as UTF-8.
func WithEncoding(enc encoding.Encoding) RouterOption {
	return func(r *Router) {
		r.decoder = enc
	}
}

// WithQueueSize sets the per-channel queue length.
func WithQueueSize(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.queue = n
		}
	}
}

// NewRouter creates a Router that forwards to out.
func NewRouter(out Emitter, opts ...RouterOption) *Router {
	r := &Router{
		out:    out,
		queue:  defaultQueueSize,
		now:    time.Now,
		done:   make(chan struct{}),
		counts: make(map[Origin]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts draining primary and secondary and returns immediately.
// A nil reader counts as an already-closed channel.
func (r *Router) Run(primary, secondary io.Reader) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRouterStarted
	}

	stdout := make(chan Event, r.queue)
	stderr := make(chan Event, r.queue)

	go r.drain(primary, OriginPrimary, stdout)
	go r.drain(secondary, OriginSecondary, stderr)
	go r.merge(stdout, stderr)

	return nil
}

// Done is closed once both channels reached end-of-stream and every event
// has been handed to the Emitter.
func (r *Router) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until Done is closed or timeout elapses. It reports whether
// the router finished.
func (r *Router) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
		return false
	}
}

// Count returns the number of lines read from origin so far.
func (r *Router) Count(origin Origin) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[origin]
}

// Err returns read errors other than end-of-stream, if any.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

func (r *Router) drain(src io.Reader, origin Origin, queue chan<- Event) {
	defer close(queue)
	if src == nil {
		return
	}
	if r.decoder != nil {
		src = transform.NewReader(src, r.decoder.NewDecoder())
	}

	br := bufio.NewReaderSize(src, defaultReaderSize)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.ToValidUTF8(strings.TrimRight(line, "\r\n"), "")
			r.mu.Lock()
			r.counts[origin]++
			r.mu.Unlock()
			queue <- Event{
				Severity: Classify(origin, line),
				Line:     line,
				Origin:   origin,
				Time:     r.now(),
				RunID:    r.runID,
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.mu.Lock()
				r.errs = append(r.errs, fmt.Errorf("read %s: %w", origin, err))
				r.mu.Unlock()
			}
			return
		}
	}
}

func (r *Router) merge(stdout, stderr <-chan Event) {
	defer close(r.done)
	for stdout != nil || stderr != nil {
		select {
		case e, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			r.out.Append(e)
		case e, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			r.out.Append(e)
		}
	}
}
