// Package provision runs the ordered setup steps that turn a directory into
// a working Odoo environment: pyenv, source fetch, Python requirements, the
// PostgreSQL container and odoo.conf.
//
// Steps run strictly in order and the pipeline stops at the first failure.
// The failing step is reported as a *StepError wrapping one of the sentinel
// errors below, so callers can both name the step and match the cause with
// errors.Is.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/docker"
	"github.com/Quidge/oenv/internal/logutil"
	"github.com/Quidge/oenv/internal/toolutil"
	"go.uber.org/zap"
)

// Step names, in pipeline order.
const (
	StepPyenv        = "pyenv"
	StepFetch        = "fetch"
	StepRequirements = "requirements"
	StepDatabase     = "database"
	StepConfig       = "config"
)

var stepNames = []string{StepPyenv, StepFetch, StepRequirements, StepDatabase, StepConfig}

var (
	// ErrPyenvSetupFailed is returned when pyenv could not be probed or installed.
	ErrPyenvSetupFailed = errors.New("pyenv setup failed")

	// ErrDownloadFailed is returned when the source archive could not be downloaded.
	ErrDownloadFailed = errors.New("download failed")

	// ErrExtractFailed is returned when the archive is corrupt, unsafe or
	// does not contain the expected top-level folder.
	ErrExtractFailed = errors.New("extraction failed")

	// ErrRenameCollision is returned when the extracted folder cannot be
	// renamed to odoo, usually because odoo already exists.
	ErrRenameCollision = errors.New("rename failed")

	// ErrDependencyInstallFailed is returned when requirements.txt is missing
	// or pip exits non-zero.
	ErrDependencyInstallFailed = errors.New("dependency install failed")

	// ErrContainerStartFailed is returned when the database container could
	// not be started.
	ErrContainerStartFailed = errors.New("container start failed")

	// ErrConfigPatchFailed is returned when odoo.conf could not be written.
	ErrConfigPatchFailed = errors.New("config patch failed")
)

// StepError reports which step of the pipeline failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepNames returns the names of all steps in pipeline order.
func StepNames() []string {
	return slices.Clone(stepNames)
}

// ValidateSkip returns an error if any name is not a known step.
func ValidateSkip(names []string) error {
	for _, name := range names {
		if !slices.Contains(stepNames, name) {
			return fmt.Errorf("unknown step %q (valid steps: %s)", name, strings.Join(stepNames, ", "))
		}
	}
	return nil
}

// Step is one unit of the provisioning pipeline.
type Step interface {
	// Name returns the step name used in errors, logs and --skip.
	Name() string

	// Run performs the step for the given environment.
	Run(ctx context.Context, cfg *config.ProvisionConfig) error
}

// Runner executes external programs.
type Runner interface {
	Run(ctx context.Context, c toolutil.Command) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, c toolutil.Command) error

func (f RunnerFunc) Run(ctx context.Context, c toolutil.Command) error {
	return f(ctx, c)
}

// Pinger checks that the container engine is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Option configures a Pipeline built with New.
type Option func(*options)

type options struct {
	runner     Runner
	httpClient *http.Client
	pinger     Pinger
	output     io.Writer
}

// WithRunner replaces the runner used for external programs.
func WithRunner(runner Runner) Option {
	return func(o *options) {
		o.runner = runner
	}
}

// WithHTTPClient replaces the client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithPinger replaces the container engine check.
func WithPinger(pinger Pinger) Option {
	return func(o *options) {
		o.pinger = pinger
	}
}

// WithOutput sets where the output of external programs goes.
// The default is os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// Pipeline runs steps in order.
type Pipeline struct {
	logger *zap.Logger
	steps  []Step
}

// New returns the standard pipeline: pyenv, fetch, requirements, database
// and config.
func New(logger *zap.Logger, opts ...Option) *Pipeline {
	o := options{
		httpClient: http.DefaultClient,
		pinger:     PingerFunc(docker.Ping),
		output:     os.Stderr,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = hostRunner{output: o.output}
	}

	logger = logger.Named("provision")
	return NewWithSteps(logger,
		newPyenvStep(logger, o.runner, o.httpClient),
		newFetchStep(logger, o.httpClient),
		newRequirementsStep(logger, o.runner),
		newDatabaseStep(logger, o.runner, o.pinger),
		newConfigStep(logger),
	)
}

// NewWithSteps returns a pipeline running the given steps.
func NewWithSteps(logger *zap.Logger, steps ...Step) *Pipeline {
	return &Pipeline{
		logger: logger,
		steps:  steps,
	}
}

// Steps returns the step names of the pipeline in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// Provision runs every step not listed in cfg.Skip. It stops at the first
// failing step and returns a *StepError naming it.
func (p *Pipeline) Provision(ctx context.Context, cfg *config.ProvisionConfig) error {
	for _, step := range p.steps {
		name := step.Name()
		if cfg.Skips(name) {
			p.logger.Info("skipping step", zap.String("step", name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StepError{Step: name, Err: err}
		}
		if err := p.runStep(ctx, step, cfg); err != nil {
			return &StepError{Step: name, Err: err}
		}
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, cfg *config.ProvisionConfig) (retErr error) {
	p.logger.Info("running step", zap.String("step", step.Name()), zap.String("env", cfg.Name))
	defer logutil.DeferWithError(p.logger, "step finished", &retErr, zap.String("step", step.Name()))()
	return step.Run(ctx, cfg)
}

// hostRunner runs programs on the host, sending their output to output.
type hostRunner struct {
	output io.Writer
}

func (r hostRunner) Run(ctx context.Context, c toolutil.Command) error {
	if c.Stdout == nil {
		c.Stdout = r.output
	}
	if c.Stderr == nil {
		c.Stderr = r.output
	}
	return toolutil.Run(ctx, c)
}
