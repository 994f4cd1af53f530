package config

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileName is the config record's file name next to the launcher.
const FileName = "launcher_config.ini"

// Record keys.
const (
	KeyComfyUIDir  = "COMFYUI_DIR"
	KeyVenvDir     = "VENV_DIR"
	KeyAutoArgs    = "AUTO_ARGS"
	KeyUpdateCheck = "UPDATE_CHECK"
	KeyIconPath    = "ICON_PATH"
)

// Keys lists the recognised keys in file order.
var Keys = []string{KeyComfyUIDir, KeyVenvDir, KeyAutoArgs, KeyUpdateCheck, KeyIconPath}

// Default values.
const (
	DefaultComfyUIDir = `C:\ComFyUI\ComfyUI`
	DefaultAutoArgs   = "--auto-launch"
)

const header = "# ComfyUI Launcher Config"

// Record is the persisted launcher configuration.
type Record struct {
	// ComfyUIDir is the server installation directory.
	ComfyUIDir string

	// VenvDir names an environment directory under ComfyUIDir. Empty
	// selects the first conventional environment, then the system one.
	VenvDir string

	// AutoArgs are whitespace-separated launch arguments.
	AutoArgs string

	// UpdateCheck runs the repository update before each launch.
	UpdateCheck bool

	// IconPath is cosmetic and unused by the launcher core.
	IconPath string

	// Extra holds unrecognised keys so they survive a rewrite.
	Extra map[string]string
}

// Defaults returns a Record with every key at its default.
func Defaults() Record {
	return Record{
		ComfyUIDir:  DefaultComfyUIDir,
		AutoArgs:    DefaultAutoArgs,
		UpdateCheck: true,
	}
}

// LaunchArgs splits AutoArgs on whitespace. An empty value yields the
// default flag.
func (r Record) LaunchArgs() []string {
	args := strings.Fields(r.AutoArgs)
	if len(args) == 0 {
		return strings.Fields(DefaultAutoArgs)
	}
	return args
}

// Parse reads KEY=VALUE lines. Blank lines, lines starting with # and
// lines without = are skipped. Keys are matched exactly after trimming.
// Missing or unusable values of the recognised keys keep their defaults.
func Parse(src io.Reader) (Record, error) {
	rec := Defaults()
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(strings.ToValidUTF8(line, ""))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		rec.apply(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if err := sc.Err(); err != nil {
		return Defaults(), err
	}
	return rec, nil
}

// apply stores value under key, ignoring values the key cannot hold.
func (r *Record) apply(key, value string) {
	switch key {
	case KeyComfyUIDir:
		if value != "" {
			r.ComfyUIDir = value
		}
	case KeyVenvDir:
		r.VenvDir = value
	case KeyAutoArgs:
		if value != "" {
			r.AutoArgs = value
		}
	case KeyUpdateCheck:
		switch value {
		case "1":
			r.UpdateCheck = true
		case "0":
			r.UpdateCheck = false
		}
	case KeyIconPath:
		r.IconPath = value
	case "":
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[key] = value
	}
}

// Read loads the record at path. A missing file yields Defaults and no
// error. An unreadable file yields Defaults and a *ReadError.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Defaults(), &ReadError{Path: path, Err: err}
	}
	rec, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Defaults(), &ReadError{Path: path, Err: err}
	}
	return rec, nil
}

// Encode writes the record as KEY=VALUE lines: a header comment, the
// recognised keys in fixed order, then extra keys sorted by name.
func (r Record) Encode(w io.Writer) error {
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, k := range Keys {
		v, _ := r.Get(k)
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	extra := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(&b, "%s=%s\n", k, r.Extra[k])
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Write saves the record to path, replacing the file atomically.
func Write(path string, r Record) error {
	var buf bytes.Buffer
	if err := r.Encode(&buf); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".launcher-*.ini")
	if err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// Get returns the stored text for key.
func (r Record) Get(key string) (string, bool) {
	switch key {
	case KeyComfyUIDir:
		return r.ComfyUIDir, true
	case KeyVenvDir:
		return r.VenvDir, true
	case KeyAutoArgs:
		return r.AutoArgs, true
	case KeyUpdateCheck:
		if r.UpdateCheck {
			return "1", true
		}
		return "0", true
	case KeyIconPath:
		return r.IconPath, true
	}
	v, ok := r.Extra[key]
	return v, ok
}

// Set stores value under key. UPDATE_CHECK accepts 1, 0, true or false.
// Unrecognised keys are kept in Extra.
func (r *Record) Set(key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || strings.ContainsAny(key, "=#\n") {
		return fmt.Errorf("%w: key %q", ErrInvalidValue, key)
	}
	if strings.Contains(value, "\n") {
		return fmt.Errorf("%w: %s contains a newline", ErrInvalidValue, key)
	}
	switch key {
	case KeyUpdateCheck:
		switch strings.ToLower(value) {
		case "1", "true":
			r.UpdateCheck = true
		case "0", "false":
			r.UpdateCheck = false
		default:
			return fmt.Errorf("%w: %s must be 1 or 0, got %q", ErrInvalidValue, key, value)
		}
		return nil
	case KeyComfyUIDir:
		if value == "" {
			return fmt.Errorf("%w: %s cannot be empty", ErrInvalidValue, key)
		}
	case KeyAutoArgs:
		if value == "" {
			value = DefaultAutoArgs
		}
	}
	r.apply(key, value)
	return nil
}

// Map returns every key and its stored text.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(Keys)+len(r.Extra))
	for k, v := range r.Extra {
		m[k] = v
	}
	for _, k := range Keys {
		m[k], _ = r.Get(k)
	}
	return m
}
