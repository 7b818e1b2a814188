package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFilename is the name of the project configuration file.
const ProjectConfigFilename = ".oenv.yaml"

// FindProjectConfig searches for a .oenv.yaml file starting from the given
// directory and walking up to parent directories until it finds one or reaches
// the filesystem root. Returns "" if there is none.
func FindProjectConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ProjectConfigFilename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadProjectConfig loads the project configuration from .oenv.yaml.
// If configPath is empty, searches from the current directory.
// If the file doesn't exist, returns default configuration (not an error).
// If the file exists but is invalid YAML, returns an error.
func LoadProjectConfig(configPath string) (ProjectConfig, error) {
	if configPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return DefaultProjectConfig(), nil
		}
		configPath = FindProjectConfig(cwd)
		if configPath == "" {
			return DefaultProjectConfig(), nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultProjectConfig(), nil
		}
		return ProjectConfig{}, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ProjectConfig{}, fmt.Errorf("invalid YAML in %s: %w", configPath, err)
	}
	if cfg.Version == 0 {
		cfg.Version = DefaultProjectConfig().Version
	}
	cfg.dir = filepath.Dir(configPath)

	return cfg, nil
}

// Path returns the file the project config was read from, or "" for defaults.
func (p ProjectConfig) Path() string {
	if p.dir == "" {
		return ""
	}
	return filepath.Join(p.dir, ProjectConfigFilename)
}

// ProjectConfigExists checks if a .oenv.yaml file exists in the given directory.
func ProjectConfigExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ProjectConfigFilename))
	return err == nil
}
