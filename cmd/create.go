package cmd

import (
	"fmt"

	"github.com/Quidge/oenv/internal/provision"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create and provision an environment",
	Long: `Create an environment called <name> installed under --path and make it
the current environment.

Provisioning runs these steps in order and stops at the first failure:

  pyenv         install pyenv if it is missing and add it to ~/.bashrc
  fetch         download the Odoo sources into <path>/odoo
  requirements  pip install the Odoo requirements
  database      write docker-compose.yml here and start PostgreSQL
  config        write <path>/odoo.conf

A failed environment stays registered with the failing step recorded.
Re-creating an existing name replaces its path.`,
	Example: `  oenv create 17.0 -p ~/odoo/v17
  oenv create legacy -p /opt/odoo/v10 --odoo-version 10.0
  oenv create dev -p ./dev --skip pyenv,database`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringP("path", "p", "", "installation directory (required)")
	createCmd.Flags().String("odoo-version", "", "Odoo branch to install (default from config)")
	createCmd.Flags().StringSlice("skip", nil, "provisioning steps to skip")
	_ = createCmd.MarkFlagRequired("path")
}

func runCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	path, _ := cmd.Flags().GetString("path")
	version, _ := cmd.Flags().GetString("odoo-version")
	skip, _ := cmd.Flags().GetStringSlice("skip")

	if err := provision.ValidateSkip(skip); err != nil {
		return err
	}

	overrides := flagOverrides()
	overrides.Skip = skip

	return withSession(cmd, overrides, func(s *session) error {
		env, err := s.registry(cmd).Create(cmd.Context(), name, path, version)
		if err != nil {
			if env != nil {
				return fmt.Errorf("environment %q registered but not ready: %w", name, err)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created environment %q at %s (Odoo %s)\n", env.Name, env.Path, env.Version)
		return nil
	})
}
