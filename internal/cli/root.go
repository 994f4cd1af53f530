// Package cli implements the comfylaunch command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/NICKLING017/ComfyUIlauncher/internal/config"
	"github.com/NICKLING017/ComfyUIlauncher/internal/interpreter"
	"github.com/NICKLING017/ComfyUIlauncher/internal/logging"
	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
	"github.com/NICKLING017/ComfyUIlauncher/internal/supervisor"
	"github.com/NICKLING017/ComfyUIlauncher/internal/updater"
)

// Version information (set via ldflags during build).
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ExitError ends the program with Code. Err, when set, is printed first.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// Env is the process environment commands run against.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Lookup reads environment variables.
	Lookup config.LookupFunc

	// NewScreen opens the terminal for the console command.
	NewScreen func() (tcell.Screen, error)

	// ConfigDir holds the configuration files when --config is not given.
	// Empty means the working directory.
	ConfigDir string
}

// DefaultEnv returns the environment of the running process.
func DefaultEnv() Env {
	return Env{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Lookup:    os.LookupEnv,
		NewScreen: tcell.NewScreen,
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, env Env) int {
	root := NewRootCommand(env)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintf(env.Stderr, "Error: %v\n", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintf(env.Stderr, "Error: %v\n", err)
	return 1
}

// options are the persistent flags shared by every command.
type options struct {
	env Env

	config    string
	dir       string
	venv      string
	args      string
	noUpdate  bool
	logLevel  string
	logFormat string
	logFile   string
}

// NewRootCommand builds the command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.Stdout == nil {
		env.Stdout = io.Discard
	}
	if env.Stderr == nil {
		env.Stderr = io.Discard
	}
	if env.Lookup == nil {
		env.Lookup = func(string) (string, bool) { return "", false }
	}
	o := &options{env: env}

	root := &cobra.Command{
		Use:   "comfylaunch",
		Short: "Launch and supervise a ComfyUI server",
		Long: `comfylaunch starts a ComfyUI installation with the right Python
interpreter, streams its output with severity classification and stops it
with a graceful-then-forceful shutdown.

Configuration is read from launcher_config.ini (KEY=VALUE) and the optional
launcher.toml next to it. COMFYLAUNCH_DIR, COMFYLAUNCH_VENV, COMFYLAUNCH_ARGS,
COMFYLAUNCH_UPDATE, COMFYLAUNCH_LOG_LEVEL and COMFYLAUNCH_ENCODING override
both files; command-line flags override everything.

Examples:
  comfylaunch run --dir ~/ComfyUI
  comfylaunch run --args "--listen 0.0.0.0 --port 8188" --no-update
  comfylaunch console
  comfylaunch config set VENV_DIR .venv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.validateFlags()
		},
	}
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	f := root.PersistentFlags()
	f.StringVarP(&o.config, "config", "c", "", "path to launcher_config.ini")
	f.StringVarP(&o.dir, "dir", "d", "", "ComfyUI directory (overrides COMFYUI_DIR)")
	f.StringVar(&o.venv, "venv", "", "environment directory name (overrides VENV_DIR)")
	f.StringVar(&o.args, "args", "", "server arguments (overrides AUTO_ARGS)")
	f.BoolVar(&o.noUpdate, "no-update", false, "skip the update check")
	f.StringVar(&o.logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	f.StringVar(&o.logFile, "log-file", "", "write diagnostics to a file instead of stderr")

	root.AddCommand(
		newRunCommand(o),
		newConsoleCommand(o),
		newConfigCommand(o),
		newEnvsCommand(o),
		newWhichCommand(o),
		newVersionCommand(),
	)
	return root
}

func (o *options) validateFlags() error {
	switch strings.ToLower(o.logLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return &ExitError{Code: 1, Err: fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", o.logLevel)}
	}
	switch o.logFormat {
	case "", "text", "json":
	default:
		return &ExitError{Code: 1, Err: fmt.Errorf("invalid log format %q (must be text or json)", o.logFormat)}
	}
	return nil
}

func (o *options) paths() config.Paths {
	if o.config != "" {
		return config.Paths{
			Record:   o.config,
			Settings: filepath.Join(filepath.Dir(o.config), config.SettingsFileName),
		}
	}
	return config.DefaultPaths(o.env.ConfigDir)
}

// load returns the effective configuration: files, then environment, then
// flags.
func (o *options) load(cmd *cobra.Command) (config.Loaded, error) {
	l, err := config.Load(o.paths(), config.NewEnvLoaderWithLookup(o.env.Lookup))
	if err != nil {
		return l, err
	}
	l.Record = o.override(cmd, l.Record)
	return l, nil
}

// reload re-applies environment and flag overrides to a record read by the
// watcher.
func (o *options) reload(cmd *cobra.Command, rec config.Record) config.Record {
	scratch := config.DefaultSettings()
	config.NewEnvLoaderWithLookup(o.env.Lookup).Apply(&rec, &scratch)
	return o.override(cmd, rec)
}

func (o *options) override(cmd *cobra.Command, rec config.Record) config.Record {
	flags := cmd.Flags()
	if flags.Changed("dir") {
		rec.ComfyUIDir = o.dir
	}
	if flags.Changed("venv") {
		rec.VenvDir = o.venv
	}
	if flags.Changed("args") {
		rec.AutoArgs = o.args
	}
	if o.noUpdate {
		rec.UpdateCheck = false
	}
	return rec
}

// logger builds the diagnostic logger. The caller closes the returned
// closer.
func (o *options) logger(set config.Settings, fallback io.Writer) (*logging.Logger, io.Closer, error) {
	level := set.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(level)
	cfg.Output = fallback

	var closer io.Closer = io.NopCloser(nil)
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		cfg.Output = f
		closer = f
	}
	return logging.New(cfg), closer, nil
}

func (o *options) resolver() *interpreter.Resolver {
	return interpreter.NewResolver()
}

// supervisor builds a Supervisor from the effective settings.
func (o *options) supervisor(set config.Settings, out sink.Sink, logger *logging.Logger) (*supervisor.Supervisor, error) {
	enc, err := stream.LookupEncoding(set.Stream.Encoding)
	if err != nil {
		return nil, err
	}
	return supervisor.New(
		supervisor.WithResolver(o.resolver()),
		supervisor.WithUpdater(updater.New(updater.WithLogger(logger))),
		supervisor.WithSink(out),
		supervisor.WithLogger(logger),
		supervisor.WithEncoding(enc),
		supervisor.WithEntryPoint(set.Supervisor.EntryPoint),
		supervisor.WithInterruptTimeout(set.InterruptTimeout()),
		supervisor.WithTerminateTimeout(set.TerminateTimeout()),
		supervisor.WithDrainTimeout(set.DrainTimeout()),
	), nil
}

func request(rec config.Record) supervisor.LaunchRequest {
	return supervisor.LaunchRequest{
		TargetDir: rec.ComfyUIDir,
		Env:       rec.VenvDir,
		Args:      rec.LaunchArgs(),
		Update:    rec.UpdateCheck,
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "comfylaunch %s\n", Version)
			fmt.Fprintf(out, "Commit: %s\n", Commit)
			fmt.Fprintf(out, "Built: %s\n", Date)
		},
	}
}
