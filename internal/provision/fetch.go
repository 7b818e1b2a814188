package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/logutil"
	"github.com/Quidge/oenv/internal/pathutil"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// SourceDir is the folder the Odoo sources end up in under the environment path.
	SourceDir = "odoo"

	lockSuffix        = ".oenv.lock"
	lockRetryInterval = 200 * time.Millisecond
	defaultLockWait   = 10 * time.Second
)

type fetchStep struct {
	logger     *zap.Logger
	httpClient *http.Client
	lockWait   time.Duration
}

func newFetchStep(logger *zap.Logger, httpClient *http.Client) *fetchStep {
	return &fetchStep{
		logger:     logger.With(zap.String("step", StepFetch)),
		httpClient: httpClient,
		lockWait:   defaultLockWait,
	}
}

func (s *fetchStep) Name() string { return StepFetch }

// Run downloads the archive for cfg.Version, extracts it into cfg.Path and
// renames the odoo-<version> folder to odoo.
func (s *fetchStep) Run(ctx context.Context, cfg *config.ProvisionConfig) (retErr error) {
	target := filepath.Join(cfg.Path, SourceDir)
	if pathutil.Exists(target) {
		return fmt.Errorf("%w: %s already exists", ErrRenameCollision, target)
	}
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrExtractFailed, cfg.Path, err)
	}

	// the lock file sits next to the environment directory
	lockPath := filepath.Clean(cfg.Path) + lockSuffix
	lock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("could not get file lock %q: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("could not lock %q", lockPath)
	}
	defer func() {
		retErr = multierr.Append(retErr, lock.Unlock())
		// best effort, another process may hold it again by now
		_ = os.Remove(lockPath)
	}()

	archive, err := os.CreateTemp("", "oenv-odoo-*.zip")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary file: %w", ErrDownloadFailed, err)
	}
	defer func() {
		retErr = multierr.Append(retErr, archive.Close())
		retErr = multierr.Append(retErr, os.Remove(archive.Name()))
	}()

	size, err := s.download(ctx, cfg.ArchiveURL, archive)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	s.logger.Info("downloaded archive",
		zap.String("url", cfg.ArchiveURL),
		zap.String("size", humanize.Bytes(uint64(size))),
	)

	files, err := unzip(ctx, archive, size, cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtractFailed, err)
	}
	s.logger.Debug("extracted archive", zap.Int("files", files), zap.String("path", cfg.Path))

	extracted := filepath.Join(cfg.Path, "odoo-"+cfg.Version)
	if !pathutil.ExistsAndIsDir(extracted) {
		return fmt.Errorf("%w: archive did not contain %s", ErrExtractFailed, filepath.Base(extracted))
	}
	if pathutil.Exists(target) {
		return fmt.Errorf("%w: %s already exists", ErrRenameCollision, target)
	}
	if err := os.Rename(extracted, target); err != nil {
		return fmt.Errorf("%w: %w", ErrRenameCollision, err)
	}
	return nil
}

func (s *fetchStep) download(ctx context.Context, url string, w io.Writer) (_ int64, retErr error) {
	defer logutil.Defer(s.logger, "download finished", zap.String("url", url))()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	response, err := s.httpClient.Do(request)
	if err != nil {
		return 0, err
	}
	defer func() {
		retErr = multierr.Append(retErr, response.Body.Close())
	}()
	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: expected HTTP status code %d to be %d", url, response.StatusCode, http.StatusOK)
	}
	n, err := io.Copy(w, response.Body)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	return n, nil
}
