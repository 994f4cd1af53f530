package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Append(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) byOrigin(o Origin) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Origin == o {
			out = append(out, e)
		}
	}
	return out
}

func lines(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Line
	}
	return out
}

func TestRouter_ClassifiesBothChannels(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec, WithRunID("run-1"))

	stdout := strings.NewReader("starting\n[ERROR] disk full\n")
	stderr := strings.NewReader("loading model\n[INFO] device cuda:0\n")
	require.NoError(t, r.Run(stdout, stderr))
	require.True(t, r.Wait(time.Second))

	out := rec.byOrigin(OriginPrimary)
	require.Len(t, out, 2)
	assert.Equal(t, SeverityInfo, out[0].Severity)
	assert.Equal(t, SeverityError, out[1].Severity)

	errs := rec.byOrigin(OriginSecondary)
	require.Len(t, errs, 2)
	assert.Equal(t, SeverityError, errs[0].Severity)
	assert.Equal(t, SeverityInfo, errs[1].Severity)

	for _, e := range append(out, errs...) {
		assert.Equal(t, "run-1", e.RunID)
		assert.False(t, e.Time.IsZero())
	}
	assert.Equal(t, 2, r.Count(OriginPrimary))
	assert.Equal(t, 2, r.Count(OriginSecondary))
	assert.NoError(t, r.Err())
}

func TestRouter_PreservesOrderWithinChannel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	for i := 0; i < 500; i++ {
		stdout.WriteString("out " + strings.Repeat("x", i%7) + "\n")
		stderr.WriteString("err " + strings.Repeat("y", i%5) + "\n")
	}
	wantOut := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	wantErr := strings.Split(strings.TrimSuffix(stderr.String(), "\n"), "\n")

	rec := &recorder{}
	r := NewRouter(rec, WithQueueSize(4))
	require.NoError(t, r.Run(&stdout, &stderr))
	require.True(t, r.Wait(5*time.Second))

	assert.Equal(t, wantOut, lines(rec.byOrigin(OriginPrimary)))
	assert.Equal(t, wantErr, lines(rec.byOrigin(OriginSecondary)))
}

func TestRouter_TrailingLineWithoutNewline(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec)
	require.NoError(t, r.Run(strings.NewReader("first\r\nlast"), nil))
	require.True(t, r.Wait(time.Second))

	assert.Equal(t, []string{"first", "last"}, lines(rec.byOrigin(OriginPrimary)))
}

func TestRouter_OneSlowChannelDoesNotHoldTheOther(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec)

	slowR, slowW := io.Pipe()
	require.NoError(t, r.Run(strings.NewReader("a\nb\nc\n"), slowR))

	require.Eventually(t, func() bool {
		return len(rec.byOrigin(OriginPrimary)) == 3
	}, time.Second, 5*time.Millisecond)

	select {
	case <-r.Done():
		t.Fatal("router finished before stderr closed")
	default:
	}

	_, _ = slowW.Write([]byte("late\n"))
	require.NoError(t, slowW.Close())
	require.True(t, r.Wait(time.Second))
	assert.Equal(t, []string{"late"}, lines(rec.byOrigin(OriginSecondary)))
}

func TestRouter_RunTwice(t *testing.T) {
	r := NewRouter(&recorder{})
	require.NoError(t, r.Run(nil, nil))
	assert.ErrorIs(t, r.Run(nil, nil), ErrRouterStarted)
	assert.True(t, r.Wait(time.Second))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRouter_ReadErrorEndsChannel(t *testing.T) {
	r := NewRouter(&recorder{})
	require.NoError(t, r.Run(failingReader{}, strings.NewReader("ok\n")))
	require.True(t, r.Wait(time.Second))

	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read stdout")
}

func TestRouter_DecodesLegacyEncoding(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String("[INFO] 已是最新\n")
	require.NoError(t, err)

	enc, err := LookupEncoding("gbk")
	require.NoError(t, err)

	rec := &recorder{}
	r := NewRouter(rec, WithEncoding(enc))
	require.NoError(t, r.Run(strings.NewReader(encoded), nil))
	require.True(t, r.Wait(time.Second))

	assert.Equal(t, []string{"[INFO] 已是最新"}, lines(rec.byOrigin(OriginPrimary)))
}

func TestRouter_DropsInvalidUTF8(t *testing.T) {
	rec := &recorder{}
	r := NewRouter(rec)
	require.NoError(t, r.Run(strings.NewReader("ok\xff\xfe done\n"), nil))
	require.True(t, r.Wait(time.Second))

	assert.Equal(t, []string{"ok done"}, lines(rec.byOrigin(OriginPrimary)))
}

func TestLookupEncoding(t *testing.T) {
	for _, label := range []string{"", "utf-8", "UTF8"} {
		enc, err := LookupEncoding(label)
		assert.NoError(t, err)
		assert.Nil(t, enc, label)
	}

	enc, err := LookupEncoding("windows-1252")
	assert.NoError(t, err)
	assert.NotNil(t, enc)

	_, err = LookupEncoding("klingon")
	assert.Error(t, err)
}
