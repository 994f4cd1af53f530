package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Missing(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), SettingsFileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, 5*time.Second, s.InterruptTimeout())
	assert.Equal(t, 3*time.Second, s.TerminateTimeout())
	assert.Equal(t, 5*time.Second, s.DrainTimeout())
}

func TestParseSettings(t *testing.T) {
	input := `
[supervisor]
interrupt_timeout = "2s"
drain_timeout = "1500ms"

[log]
level = "debug"

[stream]
encoding = "gbk"
`
	s, err := ParseSettings("test.toml", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, s.InterruptTimeout())
	assert.Equal(t, 3*time.Second, s.TerminateTimeout(), "unset keys keep defaults")
	assert.Equal(t, 1500*time.Millisecond, s.DrainTimeout())
	assert.Equal(t, "main.py", s.Supervisor.EntryPoint)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, 10000, s.Log.BufferSize)
	assert.Equal(t, "gbk", s.Stream.Encoding)
}

func TestParseSettings_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"syntax", "[supervisor\n"},
		{"unknown key", "[supervisor]\nrestart = true\n"},
		{"bad duration", "[supervisor]\nterminate_timeout = \"soon\"\n"},
		{"negative duration", "[supervisor]\nterminate_timeout = \"-1s\"\n"},
		{"zero buffer", "[log]\nbuffer_size = 0\n"},
		{"empty entry point", "[supervisor]\nentry_point = \"  \"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSettings("bad.toml", strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, DefaultSettings(), s)
		})
	}
}

func TestParseSettings_ParseErrorNamesSource(t *testing.T) {
	_, err := ParseSettings("launcher.toml", strings.NewReader("x = = 1"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "launcher.toml", perr.Path)
	assert.Contains(t, err.Error(), "launcher.toml")
}

func TestSettings_EncodeTOMLRoundTrip(t *testing.T) {
	s := DefaultSettings()
	s.Stream.Encoding = "shift_jis"
	s.Supervisor.InterruptTimeout = "750ms"

	var b strings.Builder
	require.NoError(t, s.EncodeTOML(&b))
	assert.Contains(t, b.String(), "750ms")

	got, err := ParseSettings("roundtrip", strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestEnvLoader_Apply(t *testing.T) {
	env := map[string]string{
		"COMFYLAUNCH_DIR":       "/env/comfy",
		"COMFYLAUNCH_ARGS":      "--cpu",
		"COMFYLAUNCH_UPDATE":    "0",
		"COMFYLAUNCH_VENV":      "",
		"COMFYLAUNCH_LOG_LEVEL": " DEBUG ",
		"UNRELATED":             "x",
	}
	loader := NewEnvLoaderWithLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	rec := Defaults()
	rec.VenvDir = "venv"
	set := DefaultSettings()
	used := loader.Apply(&rec, &set)

	assert.Equal(t, []string{
		"COMFYLAUNCH_ARGS",
		"COMFYLAUNCH_DIR",
		"COMFYLAUNCH_LOG_LEVEL",
		"COMFYLAUNCH_UPDATE",
		"COMFYLAUNCH_VENV",
	}, used)
	assert.Equal(t, "/env/comfy", rec.ComfyUIDir)
	assert.Equal(t, "--cpu", rec.AutoArgs)
	assert.False(t, rec.UpdateCheck)
	assert.Equal(t, "", rec.VenvDir, "empty value is an override")
	assert.Equal(t, "debug", set.Log.Level)
}

func TestEnvLoader_SkipsRejectedValues(t *testing.T) {
	loader := NewEnvLoaderWithLookup(func(k string) (string, bool) {
		if k == "COMFYLAUNCH_UPDATE" {
			return "sometimes", true
		}
		return "", false
	})
	rec := Defaults()
	set := DefaultSettings()
	assert.Empty(t, loader.Apply(&rec, &set))
	assert.True(t, rec.UpdateCheck)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)
	require.NoError(t, os.WriteFile(paths.Record, []byte("COMFYUI_DIR=/from/file\n"), 0o644))
	require.NoError(t, os.WriteFile(paths.Settings, []byte("[log]\nlevel = \"warn\"\n"), 0o644))

	loader := NewEnvLoaderWithLookup(func(k string) (string, bool) {
		if k == "COMFYLAUNCH_VENV" {
			return ".venv", true
		}
		return "", false
	})
	l, err := Load(paths, loader)
	require.NoError(t, err)

	assert.NoError(t, l.RecordErr)
	assert.Equal(t, "/from/file", l.Record.ComfyUIDir)
	assert.Equal(t, ".venv", l.Record.VenvDir)
	assert.Equal(t, "warn", l.Settings.Log.Level)
	assert.Equal(t, []string{"COMFYLAUNCH_VENV"}, l.Env)
}

func TestLoad_BadSettings(t *testing.T) {
	dir := t.TempDir()
	paths := DefaultPaths(dir)
	require.NoError(t, os.WriteFile(paths.Settings, []byte("[log\n"), 0o644))

	_, err := Load(paths, nil)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestYAMLRoundTrip(t *testing.T) {
	rec := Record{
		ComfyUIDir:  "/srv/comfy",
		VenvDir:     ".venv",
		AutoArgs:    "--listen",
		UpdateCheck: false,
		Extra:       map[string]string{"THEME": "dark"},
	}
	set := DefaultSettings()
	set.Log.Level = "debug"

	data, err := MarshalYAML(rec, &set)
	require.NoError(t, err)
	assert.Contains(t, string(data), "COMFYUI_DIR: /srv/comfy")
	assert.Contains(t, string(data), `UPDATE_CHECK: "0"`)
	assert.Contains(t, string(data), "interrupt_timeout: 5s")

	gotRec, gotSet, err := UnmarshalYAML(data)
	require.NoError(t, err)
	assert.Equal(t, rec, gotRec)
	assert.Equal(t, set, gotSet)
}

func TestUnmarshalYAML_PartialDocument(t *testing.T) {
	rec, set, err := UnmarshalYAML([]byte("record:\n  VENV_DIR: venv311\n"))
	require.NoError(t, err)
	assert.Equal(t, "venv311", rec.VenvDir)
	assert.Equal(t, DefaultComfyUIDir, rec.ComfyUIDir)
	assert.True(t, rec.UpdateCheck)
	assert.Equal(t, DefaultSettings(), set)

	_, _, err = UnmarshalYAML([]byte("record: [unclosed"))
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestExportImport(t *testing.T) {
	rec := Record{ComfyUIDir: "/x", AutoArgs: "--cpu", UpdateCheck: true, VenvDir: "venv"}
	for _, name := range []string{"export.ini", "export.yaml", "export.yml", "export.txt"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Export(path, rec))
			got, err := Import(path)
			require.NoError(t, err)
			assert.Equal(t, rec, got)
		})
	}

	_, err := Import(filepath.Join(t.TempDir(), "missing.ini"))
	assert.ErrorIs(t, err, ErrConfigRead)
}
