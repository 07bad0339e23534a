package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Digital-Shane/title-resolve/internal/config"
)

func (a *app) configCommand() *cobra.Command {
	var initFile bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print every configuration key with the value in effect after applying the
config file, TITLE_RESOLVE_* environment variables and flags. API keys and
PINs are masked. With --init a config file holding the defaults is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initFile {
				return a.writeConfig()
			}

			_, loadErr := config.Load(a.v, a.configFile)
			rows := lo.Map(config.Settings(a.v), func(s config.Setting, _ int) []string {
				return []string{s.Key, s.Value}
			})
			fmt.Fprintln(a.env.Out, renderTable([]string{"Key", "Value"}, rows))
			if used := a.v.ConfigFileUsed(); used != "" && loadErr == nil {
				fmt.Fprintf(a.env.Out, "Config file: %s\n", used)
			}
			if loadErr != nil {
				return fmt.Errorf("invalid configuration: %w", loadErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&initFile, "init", false, "Write a config file with the default values")
	return cmd
}

func (a *app) writeConfig() error {
	path := a.configFile
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		path = p
	}
	if err := a.env.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.WriteDefault(a.v, path); err != nil {
		return err
	}
	fmt.Fprintf(a.env.Out, "Wrote default configuration to %s\n", path)
	return nil
}
