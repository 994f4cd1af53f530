package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/NICKLING017/ComfyUIlauncher/internal/sink"
	"github.com/NICKLING017/ComfyUIlauncher/internal/stream"
)

func newRunCommand(o *options) *cobra.Command {
	var minSeverity string
	var color string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the server and stream its output until it exits",
		Long: `run launches ComfyUI in the foreground. Output is printed as it arrives;
Ctrl-C stops the server with the interrupt, terminate, kill-tree sequence.

The exit status is 1 when the launch is rejected, the server's own exit
code when it exits by itself, and 0 when it was stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, ok := stream.ParseSeverity(minSeverity)
			if !ok {
				return &ExitError{Code: 1, Err: fmt.Errorf("invalid severity %q (must be info, warn, or error)", minSeverity)}
			}
			out, err := o.eventSink(cmd.OutOrStdout(), cmd.ErrOrStderr(), level, color)
			if err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			return o.run(cmd, out)
		},
	}
	cmd.Flags().StringVar(&o.logFormat, "log-format", "text", "output format (text or json)")
	cmd.Flags().StringVar(&minSeverity, "min-severity", "info", "hide lines below this severity (text format)")
	cmd.Flags().StringVar(&color, "color", "auto", "colour output by severity (auto, always, never)")
	return cmd
}

// eventSink picks the sink for the run command's output.
func (o *options) eventSink(stdout, stderr io.Writer, level stream.Severity, color string) (sink.Sink, error) {
	if o.logFormat == "json" {
		return sink.NewJSON(stdout), nil
	}
	opts := []sink.WriterOption{
		sink.WithStatusOutput(stderr),
		sink.WithMinSeverity(level),
	}
	switch color {
	case "auto":
	case "always":
		opts = append(opts, sink.WithColor(true))
	case "never":
		opts = append(opts, sink.WithColor(false))
	default:
		return nil, fmt.Errorf("invalid color mode %q (must be auto, always, or never)", color)
	}
	return sink.NewWriter(stdout, opts...), nil
}

func (o *options) run(cmd *cobra.Command, out sink.Sink) error {
	ctx := cmd.Context()

	loaded, err := o.load(cmd)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	logger, closer, err := o.logger(loaded.Settings, cmd.ErrOrStderr())
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	defer closer.Close()

	if loaded.RecordErr != nil {
		logger.Warn("%v; using defaults", loaded.RecordErr)
	}
	if len(loaded.Env) > 0 {
		logger.Debug("environment overrides: %v", loaded.Env)
	}

	sup, err := o.supervisor(loaded.Settings, out, logger)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if err := sup.Launch(ctx, request(loaded.Record)); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("stop requested")
			if err := sup.Stop(context.Background()); err != nil {
				logger.Debug("stop: %v", err)
			}
		case <-done:
		}
	}()

	exit, err := sup.Wait(context.Background())
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	switch {
	case exit.Requested:
		return nil
	case exit.Code < 0:
		return &ExitError{Code: 1}
	case exit.Code > 0:
		return &ExitError{Code: exit.Code}
	}
	return nil
}
