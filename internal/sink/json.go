package sink

import (
	"io"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
)

// JSON writes one JSON object per line: log events, status changes and
// running-indicator changes, distinguished by the "type" field.
type JSON struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewJSON creates a JSON-lines sink writing to out.
func NewJSON(out io.Writer) *JSON {
	return &JSON{out: out, now: time.Now}
}

// Append writes a "log" record.
func (j *JSON) Append(e stream.Event) {
	doc := `{"type":"log"}`
	doc, _ = sjson.Set(doc, "time", e.Time.UTC().Format(time.RFC3339Nano))
	doc, _ = sjson.Set(doc, "severity", e.Severity.String())
	doc, _ = sjson.Set(doc, "origin", e.Origin.String())
	doc, _ = sjson.Set(doc, "line", e.Line)
	if e.RunID != "" {
		doc, _ = sjson.Set(doc, "run_id", e.RunID)
	}
	j.write(doc)
}

// Status writes a "status" record.
func (j *JSON) Status(msg string) {
	doc := `{"type":"status"}`
	doc, _ = sjson.Set(doc, "time", j.now().UTC().Format(time.RFC3339Nano))
	doc, _ = sjson.Set(doc, "status", msg)
	j.write(doc)
}

// Running writes a "running" record.
func (j *JSON) Running(running bool) {
	doc := `{"type":"running"}`
	doc, _ = sjson.Set(doc, "time", j.now().UTC().Format(time.RFC3339Nano))
	doc, _ = sjson.Set(doc, "running", running)
	j.write(doc)
}

func (j *JSON) write(doc string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, _ = io.WriteString(j.out, doc+"\n")
}
