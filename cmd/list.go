package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/Quidge/oenv/internal/state"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List environments",
	Long: `List all environments in the order they were created, one "name path"
pair per line. Use --long for a table that also shows the Odoo version,
provisioning status and creation time. The current environment is marked
with * in the long listing. --status limits the output to environments in
the given states.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("long", "l", false, "show version, status and creation time")
	listCmd.Flags().StringSlice("status", nil, "only show environments with these statuses (provisioning, ready, failed)")
}

func runList(cmd *cobra.Command, _ []string) error {
	long, _ := cmd.Flags().GetBool("long")
	statusFilter, _ := cmd.Flags().GetStringSlice("status")

	statuses := make([]state.EnvironmentStatus, len(statusFilter))
	for i, name := range statusFilter {
		statuses[i] = state.EnvironmentStatus(name)
	}

	return withSession(cmd, flagOverrides(), func(s *session) error {
		reg := s.registry(cmd)
		envs, err := reg.List(statuses...)
		if err != nil {
			return fmt.Errorf("failed to list environments: %w", err)
		}

		out := cmd.OutOrStdout()
		if !long {
			for _, env := range envs {
				fmt.Fprintln(out, env.Name, env.Path)
			}
			return nil
		}

		if len(envs) == 0 {
			fmt.Fprintln(out, "No environments found.")
			return nil
		}
		current, err := reg.Current()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tNAME\tVERSION\tSTATUS\tCREATED\tPATH")
		for _, env := range envs {
			marker := ""
			if env.Name == current {
				marker = "*"
			}
			status := string(env.Status)
			if env.FailedStep != "" {
				status += " (" + env.FailedStep + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				marker, env.Name, env.Version, status, humanize.Time(env.CreatedAt), env.Path)
		}
		return w.Flush()
	})
}
