package provision

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/pathutil"
	"github.com/Quidge/oenv/internal/toolutil"
	"go.uber.org/zap"
)

const requirementsFile = "requirements.txt"

type requirementsStep struct {
	logger *zap.Logger
	runner Runner
}

func newRequirementsStep(logger *zap.Logger, runner Runner) *requirementsStep {
	return &requirementsStep{
		logger: logger.With(zap.String("step", StepRequirements)),
		runner: runner,
	}
}

func (s *requirementsStep) Name() string { return StepRequirements }

func (s *requirementsStep) Run(ctx context.Context, cfg *config.ProvisionConfig) error {
	file, err := FindRequirements(cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDependencyInstallFailed, err)
	}
	if len(cfg.PipCommand) == 0 {
		return fmt.Errorf("%w: no pip command configured", ErrDependencyInstallFailed)
	}

	args := append(slices.Clone(cfg.PipCommand), "install", "-r", file)
	s.logger.Info("installing python requirements", zap.String("file", file))
	if err := s.runner.Run(ctx, toolutil.Command{Args: args, Dir: cfg.Path}); err != nil {
		return fmt.Errorf("%w: %w", ErrDependencyInstallFailed, err)
	}
	return nil
}

// FindRequirements returns the requirements file of an environment,
// preferring the one shipped with the Odoo sources.
func FindRequirements(envPath string) (string, error) {
	candidates := []string{
		filepath.Join(envPath, SourceDir, requirementsFile),
		filepath.Join(envPath, requirementsFile),
	}
	for _, candidate := range candidates {
		if pathutil.ExistsAndIsFile(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no %s under %s", requirementsFile, envPath)
}
