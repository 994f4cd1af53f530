package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SettingsFileName is the optional tunables file next to the launcher.
const SettingsFileName = "launcher.toml"

// Settings holds tunables that operators rarely change.
type Settings struct {
	Supervisor SupervisorSettings `toml:"supervisor" yaml:"supervisor"`
	Log        LogSettings        `toml:"log" yaml:"log"`
	Stream     StreamSettings     `toml:"stream" yaml:"stream"`
}

// SupervisorSettings configures launch and shutdown.
type SupervisorSettings struct {
	// InterruptTimeout is how long to wait after the group interrupt.
	InterruptTimeout string `toml:"interrupt_timeout" yaml:"interrupt_timeout"`

	// TerminateTimeout is how long to wait after terminate.
	TerminateTimeout string `toml:"terminate_timeout" yaml:"terminate_timeout"`

	// DrainTimeout bounds the wait for output after the child is gone.
	DrainTimeout string `toml:"drain_timeout" yaml:"drain_timeout"`

	// EntryPoint is the script run inside the target directory.
	EntryPoint string `toml:"entry_point" yaml:"entry_point"`
}

// LogSettings configures diagnostics and the in-memory log.
type LogSettings struct {
	// Level is the launcher's own diagnostic level.
	Level string `toml:"level" yaml:"level"`

	// BufferSize is how many server lines the console keeps.
	BufferSize int `toml:"buffer_size" yaml:"buffer_size"`
}

// StreamSettings configures output decoding.
type StreamSettings struct {
	// Encoding names the server's output encoding, e.g. gbk. Empty means
	// UTF-8.
	Encoding string `toml:"encoding" yaml:"encoding"`
}

// DefaultSettings returns the built-in tunables.
func DefaultSettings() Settings {
	return Settings{
		Supervisor: SupervisorSettings{
			InterruptTimeout: "5s",
			TerminateTimeout: "3s",
			DrainTimeout:     "5s",
			EntryPoint:       "main.py",
		},
		Log: LogSettings{
			Level:      "info",
			BufferSize: 10000,
		},
	}
}

// LoadSettings reads path over DefaultSettings. A missing file is not an
// error.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return DefaultSettings(), fmt.Errorf("reading settings file %s: %w", path, err)
	}
	return ParseSettings(path, bytes.NewReader(data))
}

// ParseSettings decodes TOML over DefaultSettings and validates it.
// source names the input in errors.
func ParseSettings(source string, r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			perr.Message = fmt.Sprintf("line %d, column %d: %s", row, col, derr.Error())
		}
		return DefaultSettings(), perr
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), err
	}
	return s, nil
}

// Validate checks every duration parses and the buffer size is positive.
func (s Settings) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"supervisor.interrupt_timeout": s.Supervisor.InterruptTimeout,
		"supervisor.terminate_timeout": s.Supervisor.TerminateTimeout,
		"supervisor.drain_timeout":     s.Supervisor.DrainTimeout,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s = %q", ErrInvalidValue, name, v))
		}
	}
	if s.Log.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: log.buffer_size = %d", ErrInvalidValue, s.Log.BufferSize))
	}
	if strings.TrimSpace(s.Supervisor.EntryPoint) == "" {
		errs = append(errs, fmt.Errorf("%w: supervisor.entry_point is empty", ErrInvalidValue))
	}
	return errors.Join(errs...)
}

// InterruptTimeout returns the parsed interrupt wait, or its default.
func (s Settings) InterruptTimeout() time.Duration {
	return parseDuration(s.Supervisor.InterruptTimeout, 5*time.Second)
}

// TerminateTimeout returns the parsed terminate wait, or its default.
func (s Settings) TerminateTimeout() time.Duration {
	return parseDuration(s.Supervisor.TerminateTimeout, 3*time.Second)
}

// DrainTimeout returns the parsed drain wait, or its default.
func (s Settings) DrainTimeout() time.Duration {
	return parseDuration(s.Supervisor.DrainTimeout, 5*time.Second)
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// EncodeTOML writes s as TOML.
func (s Settings) EncodeTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(s)
}
