package config

import (
	"os"
	"sort"
	"strings"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "COMFYLAUNCH_"

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// EnvLoader applies environment variable overrides.
type EnvLoader struct {
	lookup  LookupFunc
	mapping map[string]string // env var -> record key or settings path
}

// NewEnvLoader creates a loader reading the process environment.
func NewEnvLoader() *EnvLoader {
	return NewEnvLoaderWithLookup(os.LookupEnv)
}

// NewEnvLoaderWithLookup creates a loader reading variables from lookup.
func NewEnvLoaderWithLookup(lookup LookupFunc) *EnvLoader {
	return &EnvLoader{
		lookup:  lookup,
		mapping: defaultEnvMapping(),
	}
}

func defaultEnvMapping() map[string]string {
	return map[string]string{
		"COMFYLAUNCH_DIR":       KeyComfyUIDir,
		"COMFYLAUNCH_VENV":      KeyVenvDir,
		"COMFYLAUNCH_ARGS":      KeyAutoArgs,
		"COMFYLAUNCH_UPDATE":    KeyUpdateCheck,
		"COMFYLAUNCH_LOG_LEVEL": "log.level",
		"COMFYLAUNCH_ENCODING":  "stream.encoding",
	}
}

// Apply overrides rec and set from the environment and returns the names
// of the variables used, sorted. Variables whose value the target key
// rejects are skipped. Empty values are treated as set.
func (l *EnvLoader) Apply(rec *Record, set *Settings) []string {
	var used []string
	for env, target := range l.mapping {
		val, ok := l.lookup(env)
		if !ok {
			continue
		}
		switch target {
		case "log.level":
			set.Log.Level = strings.ToLower(strings.TrimSpace(val))
		case "stream.encoding":
			set.Stream.Encoding = strings.TrimSpace(val)
		default:
			if err := rec.Set(target, val); err != nil {
				continue
			}
		}
		used = append(used, env)
	}
	sort.Strings(used)
	return used
}
