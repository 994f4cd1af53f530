package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NICKLING017/ComfyUIlauncher/internal/config"
)

func newConfigCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the launcher configuration",
	}
	cmd.AddCommand(
		newConfigShowCommand(o),
		newConfigSetCommand(o),
		newConfigExportCommand(o),
		newConfigImportCommand(o),
		newConfigPathCommand(o),
	)
	return cmd
}

func newConfigShowCommand(o *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `show prints the configuration a launch would use, after environment
variables and flags were applied. The ini format prints the record only,
toml prints the settings only and yaml prints both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := o.load(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "ini":
				if err := loaded.Record.Encode(out); err != nil {
					return err
				}
				if len(loaded.Env) > 0 {
					fmt.Fprintf(out, "# overridden by %s\n", strings.Join(loaded.Env, ", "))
				}
			case "yaml", "yml":
				data, err := config.MarshalYAML(loaded.Record, &loaded.Settings)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			case "toml":
				return loaded.Settings.EncodeTOML(out)
			default:
				return fmt.Errorf("unknown format %q (must be ini, yaml, or toml)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "ini", "output format (ini, yaml, toml)")
	return cmd
}

// readRecord reads the record file for editing. An unreadable file is an
// error here; it must not be overwritten with defaults.
func (o *options) readRecord() (string, config.Record, error) {
	path := o.paths().Record
	rec, err := config.Read(path)
	return path, rec, err
}

func newConfigSetCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set one key in launcher_config.ini",
		Long: `set stores VALUE under KEY. Known keys are COMFYUI_DIR, VENV_DIR,
AUTO_ARGS, UPDATE_CHECK (1/0/true/false) and ICON_PATH; other keys are kept
as they are.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, rec, err := o.readRecord()
			if err != nil {
				return err
			}
			key := strings.ToUpper(strings.TrimSpace(args[0]))
			if err := rec.Set(key, args[1]); err != nil {
				return err
			}
			if err := config.Write(path, rec); err != nil {
				return err
			}
			v, _ := rec.Get(key)
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", key, v)
			return nil
		},
	}
}

func newConfigExportCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Copy launcher_config.ini to FILE (.yaml/.yml writes YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, rec, err := o.readRecord()
			if err != nil {
				return err
			}
			if err := config.Export(args[0], rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", args[0])
			return nil
		},
	}
}

func newConfigImportCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace launcher_config.ini with the contents of FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := config.Import(args[0])
			if err != nil {
				return err
			}
			path := o.paths().Record
			if err := config.Write(path, rec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s into %s\n", args[0], path)
			return nil
		},
	}
}

func newConfigPathCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := o.paths()
			out := cmd.OutOrStdout()
			for _, f := range []string{p.Record, p.Settings} {
				state := "present"
				if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
					state = "missing"
				}
				fmt.Fprintf(out, "%s (%s)\n", f, state)
			}
			return nil
		},
	}
}
