package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/logutil"
	"github.com/Quidge/oenv/internal/provision"
	"github.com/Quidge/oenv/internal/registry"
	"github.com/Quidge/oenv/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// Version is set at build time
	Version = "dev"

	// Global flags
	dbPath    string
	verbose   bool
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "oenv",
	Short: "Manage local Odoo development environments",
	Long: `oenv creates, lists, switches between and deletes named Odoo environments.

Creating an environment installs pyenv if needed, downloads the Odoo sources
for the requested branch, installs their Python requirements, starts a
PostgreSQL container with docker compose and writes odoo.conf. The registry
of environments and the current selection persist between invocations.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "state database path (default $XDG_DATA_HOME/oenv/state.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, color or json")
}

// flagOverrides collects the global flags that override configuration.
func flagOverrides() config.FlagOverrides {
	overrides := config.FlagOverrides{
		StateDB:   dbPath,
		LogLevel:  logLevel,
		LogFormat: logFormat,
	}
	if verbose {
		overrides.LogLevel = "debug"
	}
	return overrides
}

// session holds what a command needs for one invocation.
type session struct {
	merged config.MergedConfig
	logger *zap.Logger
	db     *state.DB
}

// openSession loads configuration, builds the logger and opens the state
// database. Callers must Close the session.
func openSession(cmd *cobra.Command, overrides config.FlagOverrides) (*session, error) {
	merged, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logutil.NewLogger(cmd.ErrOrStderr(), merged.LogLevel, merged.LogFormat)
	if err != nil {
		return nil, err
	}
	if merged.ProjectFile != "" {
		logger.Debug("using project config", zap.String("path", merged.ProjectFile))
	}

	db, err := state.Open(merged.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	logger.Debug("opened state database", zap.String("path", db.Path()))

	return &session{
		merged: merged,
		logger: logger,
		db:     db,
	}, nil
}

// registry returns a Registry provisioning through the standard pipeline.
func (s *session) registry(cmd *cobra.Command) *registry.Registry {
	pipeline := provision.New(s.logger, provision.WithOutput(cmd.ErrOrStderr()))
	return registry.New(s.db, pipeline, s.merged, s.logger)
}

func (s *session) Close() error {
	_ = s.logger.Sync()
	return s.db.Close()
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, overrides config.FlagOverrides, fn func(*session) error) (retErr error) {
	s, err := openSession(cmd, overrides)
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, s.Close())
	}()
	return fn(s)
}
