package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NICKLING017/ComfyUIlauncher/internal/interpreter"
)

func newEnvsCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List Python environments found in the ComfyUI directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := o.load(cmd)
			if err != nil {
				return err
			}
			dir := loaded.Record.ComfyUIDir
			envs := o.resolver().Scan(dir)
			out := cmd.OutOrStdout()
			if len(envs) == 0 {
				fmt.Fprintf(out, "no environments found in %s\n", dir)
				return nil
			}
			for _, name := range envs {
				mark := " "
				if name == loaded.Record.VenvDir {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s\n", mark, name)
			}
			return nil
		},
	}
}

func newWhichCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "which",
		Short: "Print the interpreter a launch would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := o.load(cmd)
			if err != nil {
				return err
			}
			dir := loaded.Record.ComfyUIDir
			path, err := o.resolver().Resolve(dir, loaded.Record.VenvDir)
			if err != nil {
				return &ExitError{Code: 1, Err: fmt.Errorf("%w in %s", err, dir)}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if !interpreter.InsideBase(dir, path) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not inside %s; set VENV_DIR to use a local environment\n", path, dir)
			}
			return nil
		},
	}
}
