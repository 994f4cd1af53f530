package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/NICKLING017/ComfyUIlauncher/internal/config"
	"github.com/NICKLING017/ComfyUIlauncher/internal/console"
	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
)

func newConsoleCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the interactive launcher console",
		Long: `console opens a full-screen view of the server log with start and stop
keys, severity filters, search and an environment picker. Edits to
launcher_config.ini are picked up while the console is open.

Diagnostics are discarded unless --log-file is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.console(cmd)
		},
	}
}

func (o *options) console(cmd *cobra.Command) error {
	loaded, err := o.load(cmd)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	logger, closer, err := o.logger(loaded.Settings, io.Discard)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer closer.Close()
	logger = logger.WithComponent("cli")

	buf := sink.NewBuffer(loaded.Settings.Log.BufferSize)
	if loaded.RecordErr != nil {
		buf.Status(loaded.RecordErr.Error() + "; using defaults")
	}

	sup, err := o.supervisor(loaded.Settings, buf, logger)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	screen, err := o.env.NewScreen()
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	con := console.New(screen, buf, sup, loaded.Record,
		console.WithEnvScanner(o.resolver().Scan),
		console.WithLogger(logger),
	)

	w, err := config.NewWatcher(loaded.Paths.Record, func(rec config.Record, err error) {
		if err != nil {
			logger.Warn("reloading config: %v", err)
			return
		}
		logger.Info("config reloaded from %s", loaded.Paths.Record)
		con.SetRecord(o.reload(cmd, rec))
	}, config.WithErrorHandler(func(err error) {
		logger.Warn("config watcher: %v", err)
	}))
	if err != nil {
		logger.Warn("live config reload disabled: %v", err)
	} else {
		defer w.Close()
	}

	return con.Run(cmd.Context())
}
