package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Remove an environment from the registry",
	Long: `Remove an environment from the registry. If it is the current environment,
no environment is selected afterwards.

Installed files and the database container are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withSession(cmd, flagOverrides(), func(s *session) error {
		removed, err := s.registry(cmd).Delete(name)
		if err != nil {
			return err
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Environment %q not found\n", name)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted environment %q\n", name)
		return nil
	})
}
