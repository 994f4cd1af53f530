// Package interpreter locates the Python interpreter used to run the server.
package interpreter

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrInterpreterNotFound is returned when no candidate exists and the
// system path lookup finds nothing.
var ErrInterpreterNotFound = errors.New("python interpreter not found")

// ConventionalEnvs are the environment directory names probed, in order,
// after an explicitly selected environment.
var ConventionalEnvs = []string{
	"venv",
	".venv",
	"3.11.venv",
	"3.12.venv",
	"3.13.venv",
	"venv311",
	"venv312",
	"venv313",
}

// LookPathFunc searches the system path for an executable.
type LookPathFunc func(name string) (string, error)

// Resolver finds an interpreter under a base directory.
// It performs lookups only and never modifies the filesystem.
type Resolver struct {
	goos     string
	lookPath LookPathFunc
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGOOS selects the platform layout (windows or anything else).
func WithGOOS(goos string) Option {
	return func(r *Resolver) {
		r.goos = goos
	}
}

// WithLookPath replaces the system path lookup. A nil function disables it.
func WithLookPath(fn LookPathFunc) Option {
	return func(r *Resolver) {
		r.lookPath = fn
	}
}

// NewResolver creates a Resolver for the running platform.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// envExecutable is the interpreter path inside an environment directory.
func (r *Resolver) envExecutable() []string {
	if r.goos == "windows" {
		return []string{"Scripts", "python.exe"}
	}
	return []string{"bin", "python"}
}

func (r *Resolver) bareExecutable() string {
	if r.goos == "windows" {
		return "python.exe"
	}
	return "python"
}

// systemNames are tried in order by the path lookup.
func (r *Resolver) systemNames() []string {
	if r.goos == "windows" {
		return []string{"python"}
	}
	return []string{"python3", "python"}
}

// Candidates returns the filesystem candidates for baseDir in priority
// order: the explicit environment (if env is not empty), each conventional
// environment, then an interpreter at the root of baseDir.
func (r *Resolver) Candidates(baseDir, env string) []string {
	sub := r.envExecutable()
	candidates := make([]string, 0, len(ConventionalEnvs)+2)

	if env = strings.TrimSpace(env); env != "" {
		candidates = append(candidates, filepath.Join(append([]string{baseDir, env}, sub...)...))
	}
	for _, name := range ConventionalEnvs {
		candidates = append(candidates, filepath.Join(append([]string{baseDir, name}, sub...)...))
	}
	return append(candidates, filepath.Join(baseDir, r.bareExecutable()))
}

// Resolve returns the first candidate that is a regular file. When none
// exists it falls back to the system path lookup.
func (r *Resolver) Resolve(baseDir, env string) (string, error) {
	for _, c := range r.Candidates(baseDir, env) {
		if isRegularFile(c) {
			return c, nil
		}
	}

	if r.lookPath != nil {
		for _, name := range r.systemNames() {
			if p, err := r.lookPath(name); err == nil {
				if p = firstLine(p); p != "" {
					return p, nil
				}
			}
		}
	}

	return "", ErrInterpreterNotFound
}

// Scan lists the conventional environment names under baseDir that hold an
// interpreter, in ConventionalEnvs order.
func (r *Resolver) Scan(baseDir string) []string {
	sub := r.envExecutable()
	var found []string
	for _, name := range ConventionalEnvs {
		if isRegularFile(filepath.Join(append([]string{baseDir, name}, sub...)...)) {
			found = append(found, name)
		}
	}
	return found
}

// InsideBase reports whether interpreter lives under baseDir. The launcher
// warns when a system interpreter is used instead of a local environment.
func InsideBase(baseDir, interpreter string) bool {
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return false
	}
	p, err := filepath.Abs(interpreter)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
