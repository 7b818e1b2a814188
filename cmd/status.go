package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/docker"
	"github.com/Quidge/oenv/internal/pathutil"
	"github.com/Quidge/oenv/internal/provision"
	"github.com/Quidge/oenv/internal/registry"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show details of an environment",
	Long: `Show the registry entry of an environment along with what is on disk and
the state of its database container.

The container is looked up through the Docker daemon as the "db" service of
the compose project in the current directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withSession(cmd, flagOverrides(), func(s *session) error {
		reg := s.registry(cmd)
		env, err := reg.Get(name)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return fmt.Errorf("%q: %w", name, err)
			}
			return err
		}
		current, err := reg.Current()
		if err != nil {
			return err
		}

		status := string(env.Status)
		if env.FailedStep != "" {
			status += fmt.Sprintf(" (step %q)", env.FailedStep)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Name:\t%s\n", env.Name)
		fmt.Fprintf(w, "Path:\t%s\n", env.Path)
		fmt.Fprintf(w, "Version:\t%s\n", env.Version)
		fmt.Fprintf(w, "Status:\t%s\n", status)
		fmt.Fprintf(w, "Current:\t%s\n", yesNo(env.Name == current))
		fmt.Fprintf(w, "Created:\t%s (%s)\n", env.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(env.CreatedAt))
		fmt.Fprintf(w, "Sources:\t%s\n", presence(filepath.Join(env.Path, provision.SourceDir)))
		fmt.Fprintf(w, "Config:\t%s\n", presence(filepath.Join(env.Path, provision.ConfigFile)))
		fmt.Fprintf(w, "Database:\t%s\n", databaseState(cmd.Context(), s.merged))
		return w.Flush()
	})
}

// databaseState describes the compose database container, or "unavailable"
// when the daemon cannot be reached.
func databaseState(ctx context.Context, merged config.MergedConfig) string {
	composeFile, err := pathutil.Resolve(merged.ComposeFile)
	if err != nil {
		return "unknown"
	}

	client, err := docker.NewClient()
	if err != nil {
		return "unavailable"
	}
	defer client.Close()
	if err := client.Ping(ctx); err != nil {
		return "unavailable"
	}

	info, err := client.ComposeService(ctx, docker.ProjectName(filepath.Dir(composeFile)), provision.DatabaseService)
	if err != nil {
		if errors.Is(err, docker.ErrNoContainer) {
			return "not created"
		}
		return "unavailable"
	}
	return fmt.Sprintf("%s (%s, %s)", info.State, info.Status, info.Image)
}

func presence(path string) string {
	if pathutil.Exists(path) {
		return "present"
	}
	return "missing"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
