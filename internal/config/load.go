package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Paths locates the two configuration files.
type Paths struct {
	Record   string
	Settings string
}

// DefaultPaths returns the files inside dir.
func DefaultPaths(dir string) Paths {
	return Paths{
		Record:   filepath.Join(dir, FileName),
		Settings: filepath.Join(dir, SettingsFileName),
	}
}

// Loaded is the effective configuration after every source was applied.
type Loaded struct {
	Record   Record
	Settings Settings
	Paths    Paths

	// Env lists the environment variables that overrode a value.
	Env []string

	// RecordErr is a recovered *ReadError; Record then holds defaults.
	RecordErr error
}

// Load reads the record and settings at paths and applies env. Only a
// malformed settings file is returned as an error; an unreadable record is
// reported in RecordErr. A nil env skips environment overrides.
func Load(paths Paths, env *EnvLoader) (Loaded, error) {
	l := Loaded{Paths: paths}
	l.Record, l.RecordErr = Read(paths.Record)

	set, err := LoadSettings(paths.Settings)
	if err != nil {
		return l, err
	}
	l.Settings = set

	if env != nil {
		l.Env = env.Apply(&l.Record, &l.Settings)
	}
	return l, nil
}

// document is the YAML form of the configuration.
type document struct {
	Record   yamlRecord `yaml:"record"`
	Settings *Settings  `yaml:"settings,omitempty"`
}

type yamlRecord struct {
	ComfyUIDir  string            `yaml:"COMFYUI_DIR"`
	VenvDir     string            `yaml:"VENV_DIR"`
	AutoArgs    string            `yaml:"AUTO_ARGS"`
	UpdateCheck string            `yaml:"UPDATE_CHECK"`
	IconPath    string            `yaml:"ICON_PATH"`
	Extra       map[string]string `yaml:"extra,omitempty"`
}

func toYAMLRecord(r Record) yamlRecord {
	upd, _ := r.Get(KeyUpdateCheck)
	return yamlRecord{
		ComfyUIDir:  r.ComfyUIDir,
		VenvDir:     r.VenvDir,
		AutoArgs:    r.AutoArgs,
		UpdateCheck: upd,
		IconPath:    r.IconPath,
		Extra:       r.Extra,
	}
}

func (y yamlRecord) record() Record {
	rec := Defaults()
	rec.apply(KeyComfyUIDir, strings.TrimSpace(y.ComfyUIDir))
	rec.apply(KeyVenvDir, strings.TrimSpace(y.VenvDir))
	rec.apply(KeyAutoArgs, strings.TrimSpace(y.AutoArgs))
	rec.apply(KeyUpdateCheck, strings.TrimSpace(y.UpdateCheck))
	rec.apply(KeyIconPath, strings.TrimSpace(y.IconPath))
	keys := make([]string, 0, len(y.Extra))
	for k := range y.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.apply(k, y.Extra[k])
	}
	return rec
}

// MarshalYAML renders the record and, if set is not nil, the settings.
func MarshalYAML(rec Record, set *Settings) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Record: toYAMLRecord(rec), Settings: set}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalYAML parses a document written by MarshalYAML. Missing
// settings come back as DefaultSettings.
func UnmarshalYAML(data []byte) (Record, Settings, error) {
	doc := document{Record: toYAMLRecord(Defaults())}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Defaults(), DefaultSettings(), &ParseError{Path: "<yaml>", Message: err.Error(), Err: err}
	}
	set := DefaultSettings()
	if doc.Settings != nil {
		set = *doc.Settings
		if err := set.Validate(); err != nil {
			return Defaults(), DefaultSettings(), err
		}
	}
	return doc.Record.record(), set, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Export writes rec to path. A .yaml or .yml path gets the YAML document;
// anything else gets the KEY=VALUE form.
func Export(path string, rec Record) error {
	if !isYAML(path) {
		return Write(path, rec)
	}
	data, err := MarshalYAML(rec, nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("exporting config %s: %w", path, err)
	}
	return nil
}

// Import reads a record exported by Export. Unlike Read, a missing file
// is an error.
func Import(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), &ReadError{Path: path, Err: err}
	}
	if isYAML(path) {
		rec, _, err := UnmarshalYAML(data)
		return rec, err
	}
	rec, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Defaults(), &ReadError{Path: path, Err: err}
	}
	return rec, nil
}
