package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Quidge/oenv/internal/pathutil"
)

// VersionPlaceholder is replaced in ArchiveURL with the requested version.
const VersionPlaceholder = "{version}"

// NewProvisionConfig builds a ProvisionConfig from a MergedConfig and the
// arguments of a create call. path must already be absolute. An empty
// version selects the merged default.
func NewProvisionConfig(merged MergedConfig, name, path, version string) (ProvisionConfig, error) {
	if strings.TrimSpace(name) == "" {
		return ProvisionConfig{}, fmt.Errorf("environment name is required")
	}
	if path == "" {
		return ProvisionConfig{}, fmt.Errorf("installation path is required")
	}
	if !filepath.IsAbs(path) {
		return ProvisionConfig{}, fmt.Errorf("installation path must be absolute: %s", path)
	}

	if version == "" {
		version = merged.DefaultVersion
	}
	if version == "" {
		return ProvisionConfig{}, fmt.Errorf("odoo version is required")
	}

	composeFile := merged.ComposeFile
	if composeFile != "" && !filepath.IsAbs(composeFile) {
		resolved, err := pathutil.Resolve(composeFile)
		if err != nil {
			return ProvisionConfig{}, fmt.Errorf("compose file: %w", err)
		}
		composeFile = resolved
	}

	return ProvisionConfig{
		Name:              name,
		Path:              filepath.Clean(path),
		Version:           version,
		ArchiveURL:        strings.ReplaceAll(merged.ArchiveURL, VersionPlaceholder, version),
		ComposeFile:       composeFile,
		PipCommand:        merged.PipCommand,
		ComposeCommand:    merged.ComposeCommand,
		Shell:             merged.Shell,
		PyenvInstallerURL: merged.PyenvInstallerURL,
		ShellProfile:      merged.ShellProfile,
		Database:          merged.Database,
		AdminPassword:     merged.AdminPassword,
		DBFilter:          merged.DBFilter,
		Skip:              merged.Skip,
	}, nil
}
