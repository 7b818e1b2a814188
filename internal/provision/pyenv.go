package provision

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/logutil"
	"github.com/Quidge/oenv/internal/toolutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// pyenvFallback is where the pyenv installer puts the binary before the
// shell profile adds it to PATH.
const pyenvFallback = "~/.pyenv/bin/pyenv"

// ProfileLines are the shell profile lines that put pyenv on PATH.
var ProfileLines = []string{
	`export PATH="$HOME/.pyenv/bin:$PATH"`,
	`eval "$(pyenv init -)"`,
	`eval "$(pyenv virtualenv-init -)"`,
}

type pyenvStep struct {
	logger     *zap.Logger
	runner     Runner
	httpClient *http.Client
	find       func(name string, candidates ...string) (string, error)
}

func newPyenvStep(logger *zap.Logger, runner Runner, httpClient *http.Client) *pyenvStep {
	return &pyenvStep{
		logger:     logger.With(zap.String("step", StepPyenv)),
		runner:     runner,
		httpClient: httpClient,
		find:       toolutil.Find,
	}
}

func (s *pyenvStep) Name() string { return StepPyenv }

// Run installs pyenv only when it is absent, then adds ProfileLines to the
// shell profile.
func (s *pyenvStep) Run(ctx context.Context, cfg *config.ProvisionConfig) error {
	path, err := s.find("pyenv", pyenvFallback)
	if err == nil {
		var out bytes.Buffer
		if err := s.runner.Run(ctx, toolutil.Command{Args: []string{path, "--version"}, Stdout: &out}); err != nil {
			return fmt.Errorf("%w: %s --version: %w", ErrPyenvSetupFailed, path, err)
		}
		s.logger.Info("pyenv already installed, skipping", zap.String("version", strings.TrimSpace(out.String())))
		return nil
	}
	if !errors.Is(err, toolutil.ErrNotInstalled) {
		return fmt.Errorf("%w: %w", ErrPyenvSetupFailed, err)
	}

	s.logger.Info("pyenv not found, installing", zap.String("installer", cfg.PyenvInstallerURL))
	installer, err := s.fetchInstaller(ctx, cfg.PyenvInstallerURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPyenvSetupFailed, err)
	}
	if err := s.runner.Run(ctx, toolutil.Command{
		Args:  []string{cfg.Shell},
		Stdin: bytes.NewReader(installer),
	}); err != nil {
		return fmt.Errorf("%w: installer: %w", ErrPyenvSetupFailed, err)
	}

	if cfg.ShellProfile == "" {
		return nil
	}
	added, err := EnsureProfileLines(cfg.ShellProfile, ProfileLines)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPyenvSetupFailed, err)
	}
	if added > 0 {
		s.logger.Info("updated shell profile, restart your shell to use pyenv",
			zap.String("profile", cfg.ShellProfile), zap.Int("lines", added))
	}
	return nil
}

func (s *pyenvStep) fetchInstaller(ctx context.Context, url string) (_ []byte, retErr error) {
	defer logutil.Defer(s.logger, "installer download finished", zap.String("url", url))()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to download installer: %w", err)
	}
	defer func() {
		retErr = multierr.Append(retErr, response.Body.Close())
	}()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download installer: expected HTTP status code %d to be %d", response.StatusCode, http.StatusOK)
	}
	return io.ReadAll(response.Body)
}

// EnsureProfileLines appends each line not already present in the file at
// path, creating the file if needed. It returns how many lines were added.
func EnsureProfileLines(path string, lines []string) (_ int, retErr error) {
	existing := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("failed to read profile: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		existing[strings.TrimSpace(scanner.Text())] = true
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read profile: %w", err)
	}

	var missing []string
	for _, line := range lines {
		if !existing[line] {
			missing = append(missing, line)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create profile directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open profile: %w", err)
	}
	defer func() {
		retErr = multierr.Append(retErr, f.Close())
	}()

	var b strings.Builder
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		b.WriteString("\n")
	}
	for _, line := range missing {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return 0, fmt.Errorf("failed to write profile: %w", err)
	}
	return len(missing), nil
}
