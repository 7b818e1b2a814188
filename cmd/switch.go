package cmd

import (
	"errors"
	"fmt"

	"github.com/Quidge/oenv/internal/registry"
	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make an environment the current one",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

func runSwitch(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withSession(cmd, flagOverrides(), func(s *session) error {
		if err := s.registry(cmd).Switch(name); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "Environment %q not found\n", name)
				return nil
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Switched to environment %q\n", name)
		return nil
	})
}
