package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the current environment",
	Args:  cobra.NoArgs,
	RunE:  runCurrent,
}

func init() {
	rootCmd.AddCommand(currentCmd)
}

func runCurrent(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, flagOverrides(), func(s *session) error {
		name, err := s.registry(cmd).Current()
		if err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No environment selected")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	})
}
