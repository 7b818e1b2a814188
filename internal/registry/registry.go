// Package registry manages named Odoo environments: it records them in the
// state database, tracks which one is current and drives provisioning when
// one is created.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/pathutil"
	"github.com/Quidge/oenv/internal/provision"
	"github.com/Quidge/oenv/internal/state"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no environment has the given name.
var ErrNotFound = state.ErrEnvironmentNotFound

// Provisioner sets up the files and services of an environment.
type Provisioner interface {
	Provision(ctx context.Context, cfg *config.ProvisionConfig) error
}

// Registry is the set of known environments plus the current selection.
type Registry struct {
	db     *state.DB
	prov   Provisioner
	merged config.MergedConfig
	logger *zap.Logger
	now    func() time.Time
}

// New returns a Registry backed by db. merged supplies the defaults used
// when creating environments.
func New(db *state.DB, prov Provisioner, merged config.MergedConfig, logger *zap.Logger) *Registry {
	return &Registry{
		db:     db,
		prov:   prov,
		merged: merged,
		logger: logger.Named("registry"),
		now:    time.Now,
	}
}

// Create records name → path, makes it current and provisions it.
//
// An existing entry with the same name is overwritten. The entry is kept
// when provisioning fails: its status becomes failed and FailedStep names
// the step, and the provisioning error is returned along with the entry.
// An empty version selects the configured default.
func (r *Registry) Create(ctx context.Context, name, path, version string) (*state.Environment, error) {
	absPath, err := pathutil.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	cfg, err := config.NewProvisionConfig(r.merged, name, absPath, version)
	if err != nil {
		return nil, err
	}
	if err := provision.ValidateSkip(cfg.Skip); err != nil {
		return nil, err
	}

	now := r.now()
	env := &state.Environment{
		Name:      cfg.Name,
		Path:      cfg.Path,
		Version:   cfg.Version,
		Status:    state.StatusProvisioning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := r.db.GetEnvironment(name); err == nil {
		r.logger.Info("overwriting environment", zap.String("env", name), zap.String("old_path", existing.Path))
		env.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, state.ErrEnvironmentNotFound) {
		return nil, err
	}
	if err := r.db.PutEnvironment(env); err != nil {
		return nil, err
	}
	if err := r.db.SetCurrent(name); err != nil {
		return nil, err
	}

	logger := r.logger.With(zap.String("env", name))
	logger.Info("provisioning environment", zap.String("path", cfg.Path), zap.String("version", cfg.Version))

	provErr := r.prov.Provision(ctx, &cfg)
	if provErr != nil {
		env.Status = state.StatusFailed
		var stepErr *provision.StepError
		if errors.As(provErr, &stepErr) {
			env.FailedStep = stepErr.Step
		}
		logger.Warn("provisioning failed", zap.String("step", env.FailedStep), zap.Error(provErr))
	} else {
		env.Status = state.StatusReady
		logger.Info("environment ready")
	}
	env.UpdatedAt = r.now()

	if err := r.db.SetStatus(name, env.Status, env.FailedStep, env.UpdatedAt); err != nil {
		return env, multierr.Append(provErr, err)
	}
	return env, provErr
}

// Delete removes name from the registry, clearing the current selection if
// it pointed at it. Files and containers are left alone. It reports whether
// an entry was removed; an unknown name is not an error.
func (r *Registry) Delete(name string) (bool, error) {
	if err := r.db.DeleteEnvironment(name); err != nil {
		if errors.Is(err, state.ErrEnvironmentNotFound) {
			return false, nil
		}
		return false, err
	}
	r.logger.Debug("deleted environment", zap.String("env", name))
	return true, nil
}

// List returns environments in creation order, limited to the given
// statuses when any are passed.
func (r *Registry) List(statuses ...state.EnvironmentStatus) ([]*state.Environment, error) {
	for _, status := range statuses {
		if !state.IsValidStatus(status) {
			return nil, fmt.Errorf("%w: %q (valid statuses: provisioning, ready, failed)", state.ErrInvalidStatus, status)
		}
	}
	return r.db.ListEnvironments(state.ListOptions{Statuses: statuses})
}

// Switch makes name the current environment.
// Returns ErrNotFound, leaving the selection unchanged, if name is unknown.
func (r *Registry) Switch(name string) error {
	return r.db.SetCurrent(name)
}

// Current returns the current environment name, or "" when none is selected.
func (r *Registry) Current() (string, error) {
	return r.db.Current()
}

// Get returns the environment called name, or ErrNotFound.
func (r *Registry) Get(name string) (*state.Environment, error) {
	return r.db.GetEnvironment(name)
}
