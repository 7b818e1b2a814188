package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/pathutil"
	"github.com/Quidge/oenv/internal/state"
	"github.com/Quidge/oenv/internal/toolutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit configuration",
	Long: `View or edit the oenv configuration.

Configuration is layered: built-in defaults, then the global file
(~/.config/oenv/config.yaml), then .oenv.yaml found from the current
directory upwards, then command line flags.

Subcommands:
  show   Print the merged configuration
  path   Print the global configuration file path
  edit   Open the global configuration in $EDITOR`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the global configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := config.GlobalConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the global configuration in $EDITOR",
	Long: `Open the global configuration in $EDITOR (vi if unset). The file is created
from a commented template first if it does not exist.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)

	configShowCmd.Flags().Bool("show-secrets", false, "print passwords instead of redacting them")
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	showSecrets, _ := cmd.Flags().GetBool("show-secrets")

	merged, err := config.Load(flagOverrides())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if merged.StateDB == "" {
		if merged.StateDB, err = state.DefaultDBPath(); err != nil {
			return err
		}
	}
	if !showSecrets {
		merged = redact(merged)
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// redact hides every password in merged.
func redact(merged config.MergedConfig) config.MergedConfig {
	if merged.Database.Password != "" {
		merged.Database.Password = redacted
	}
	if merged.AdminPassword != "" {
		merged.AdminPassword = redacted
	}
	return merged
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	path, err := config.GlobalConfigPath()
	if err != nil {
		return err
	}

	if !pathutil.Exists(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.GlobalConfigTemplate), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Created %s\n", path)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	err = toolutil.Run(cmd.Context(), toolutil.Command{
		Args:   []string{editor, path},
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	if errors.Is(err, toolutil.ErrNotInstalled) {
		return fmt.Errorf("editor %q not found, set $EDITOR", editor)
	}
	if err != nil {
		return err
	}

	// report mistakes now rather than on the next command
	if _, err := config.LoadGlobalConfigFile(path); err != nil {
		return err
	}
	return nil
}
