package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/toolutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// DatabaseService is the compose service name of the PostgreSQL container.
	DatabaseService = "db"

	postgresPort = 5432
)

// ComposeFile is the subset of the compose file format oenv writes.
type ComposeFile struct {
	Services map[string]ComposeService `yaml:"services"`
}

// ComposeService is one service of a ComposeFile.
type ComposeService struct {
	Image       string            `yaml:"image"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
}

// ComposeDocument renders the compose file declaring the database service.
func ComposeDocument(db config.Database) ([]byte, error) {
	port := db.Port
	if port == 0 {
		port = postgresPort
	}
	doc := ComposeFile{
		Services: map[string]ComposeService{
			DatabaseService: {
				Image: db.Image,
				Environment: map[string]string{
					"POSTGRES_DB":       db.Name,
					"POSTGRES_USER":     db.User,
					"POSTGRES_PASSWORD": db.Password,
				},
				Ports: []string{fmt.Sprintf("%d:%d", port, postgresPort)},
			},
		},
	}
	return yaml.Marshal(doc)
}

type databaseStep struct {
	logger *zap.Logger
	runner Runner
	pinger Pinger
}

func newDatabaseStep(logger *zap.Logger, runner Runner, pinger Pinger) *databaseStep {
	return &databaseStep{
		logger: logger.With(zap.String("step", StepDatabase)),
		runner: runner,
		pinger: pinger,
	}
}

func (s *databaseStep) Name() string { return StepDatabase }

// Run writes the compose file and starts the database service with it.
func (s *databaseStep) Run(ctx context.Context, cfg *config.ProvisionConfig) error {
	if cfg.ComposeFile == "" {
		return fmt.Errorf("%w: no compose file configured", ErrContainerStartFailed)
	}
	if len(cfg.ComposeCommand) == 0 {
		return fmt.Errorf("%w: no compose command configured", ErrContainerStartFailed)
	}

	data, err := ComposeDocument(cfg.Database)
	if err != nil {
		return fmt.Errorf("%w: failed to render compose file: %w", ErrContainerStartFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.ComposeFile), 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrContainerStartFailed, err)
	}
	if err := os.WriteFile(cfg.ComposeFile, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write compose file: %w", ErrContainerStartFailed, err)
	}
	s.logger.Debug("wrote compose file", zap.String("path", cfg.ComposeFile))

	if err := s.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%w: docker daemon unreachable: %w", ErrContainerStartFailed, err)
	}

	args := append(slices.Clone(cfg.ComposeCommand), "-f", cfg.ComposeFile, "up", "-d")
	s.logger.Info("starting database container", zap.String("image", cfg.Database.Image))
	if err := s.runner.Run(ctx, toolutil.Command{Args: args, Dir: filepath.Dir(cfg.ComposeFile)}); err != nil {
		return fmt.Errorf("%w: %w", ErrContainerStartFailed, err)
	}
	return nil
}
