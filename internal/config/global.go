package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfigPath returns the path to the global configuration file.
func GlobalConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "oenv", "config.yaml"), nil
}

// LoadGlobalConfig loads the global configuration from ~/.config/oenv/config.yaml.
// If the file doesn't exist, returns default configuration (not an error).
// If the file exists but is invalid YAML, returns an error.
func LoadGlobalConfig() (GlobalConfig, error) {
	configPath, err := GlobalConfigPath()
	if err != nil {
		return DefaultGlobalConfig(), nil
	}
	return LoadGlobalConfigFile(configPath)
}

// LoadGlobalConfigFile loads a global configuration from an explicit path.
func LoadGlobalConfigFile(configPath string) (GlobalConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultGlobalConfig(), nil
		}
		return GlobalConfig{}, fmt.Errorf("failed to read global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("invalid YAML in %s: %w", configPath, err)
	}

	return applyGlobalDefaults(cfg), nil
}

// applyGlobalDefaults fills in missing fields with default values.
func applyGlobalDefaults(cfg GlobalConfig) GlobalConfig {
	defaults := DefaultGlobalConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	setDefault(&cfg.DefaultVersion, defaults.DefaultVersion)
	setDefault(&cfg.ArchiveURL, defaults.ArchiveURL)
	setDefault(&cfg.ComposeFile, defaults.ComposeFile)

	if len(cfg.Tools.Pip) == 0 {
		cfg.Tools.Pip = defaults.Tools.Pip
	}
	if len(cfg.Tools.Compose) == 0 {
		cfg.Tools.Compose = defaults.Tools.Compose
	}
	setDefault(&cfg.Tools.Shell, defaults.Tools.Shell)

	setDefault(&cfg.Pyenv.InstallerURL, defaults.Pyenv.InstallerURL)
	setDefault(&cfg.Pyenv.Profile, defaults.Pyenv.Profile)

	cfg.Database = overlayDatabase(defaults.Database, cfg.Database)
	cfg.Odoo = overlayOdoo(defaults.Odoo, cfg.Odoo)

	setDefault(&cfg.Log.Level, defaults.Log.Level)
	setDefault(&cfg.Log.Format, defaults.Log.Format)

	return cfg
}

// overlayDatabase returns base with every non-zero field of top applied.
func overlayDatabase(base, top DatabaseConfig) DatabaseConfig {
	setDefault(&top.Image, base.Image)
	setDefault(&top.Name, base.Name)
	setDefault(&top.User, base.User)
	setDefault(&top.Host, base.Host)
	if top.Password.IsZero() {
		top.Password = base.Password
	}
	if top.Port == 0 {
		top.Port = base.Port
	}
	return top
}

// overlayOdoo returns base with every non-zero field of top applied.
func overlayOdoo(base, top OdooConfig) OdooConfig {
	if top.AdminPassword.IsZero() {
		top.AdminPassword = base.AdminPassword
	}
	setDefault(&top.DBFilter, base.DBFilter)
	return top
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
