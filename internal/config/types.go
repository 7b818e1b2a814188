package config

import (
	"gopkg.in/yaml.v3"
)

// GlobalConfig represents the global configuration loaded from
// ~/.config/oenv/config.yaml
type GlobalConfig struct {
	Version        int            `yaml:"version"`
	DefaultVersion string         `yaml:"default_version"`
	ArchiveURL     string         `yaml:"archive_url"`
	StateDB        string         `yaml:"state_db,omitempty"`
	ComposeFile    string         `yaml:"compose_file"`
	Tools          ToolsConfig    `yaml:"tools"`
	Pyenv          PyenvConfig    `yaml:"pyenv"`
	Database       DatabaseConfig `yaml:"database"`
	Odoo           OdooConfig     `yaml:"odoo"`
	Log            LogConfig      `yaml:"log"`
}

// ToolsConfig names the external programs the provisioning steps invoke.
type ToolsConfig struct {
	Pip     []string `yaml:"pip"`
	Compose []string `yaml:"compose"`
	Shell   string   `yaml:"shell"`
}

// PyenvConfig controls the pyenv setup step.
type PyenvConfig struct {
	InstallerURL string `yaml:"installer_url"`
	Profile      string `yaml:"profile"`
}

// DatabaseConfig describes the PostgreSQL container and how Odoo reaches it.
type DatabaseConfig struct {
	Image    string `yaml:"image,omitempty"`
	Name     string `yaml:"name,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password Secret `yaml:"password,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// OdooConfig holds the odoo.conf values that are not database connection settings.
type OdooConfig struct {
	AdminPassword Secret `yaml:"admin_password,omitempty"`
	DBFilter      string `yaml:"dbfilter,omitempty"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProjectConfig represents the project configuration loaded from
// .oenv.yaml in the working directory or one of its parents.
// Every field is optional and overrides the global value when set.
type ProjectConfig struct {
	Version        int             `yaml:"version"`
	DefaultVersion string          `yaml:"default_version,omitempty"`
	ComposeFile    string          `yaml:"compose_file,omitempty"`
	Database       *DatabaseConfig `yaml:"database,omitempty"`
	Odoo           *OdooConfig     `yaml:"odoo,omitempty"`
	Skip           []string        `yaml:"skip,omitempty"`

	// dir is the directory holding the file; relative paths resolve against it.
	dir string
}

// Secret is a credential value. It can be either a literal string or a
// from_file reference.
type Secret struct {
	Value    string // Literal value (may contain ${VAR})
	FromFile string // Path to file containing value
}

// IsZero reports whether neither a value nor a file is set.
func (s Secret) IsZero() bool {
	return s.Value == "" && s.FromFile == ""
}

// UnmarshalYAML implements custom unmarshaling for Secret to handle
// both string values and {from_file: path} objects.
func (s *Secret) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		s.Value = str
		return nil
	}

	var obj struct {
		FromFile string `yaml:"from_file"`
	}
	if err := value.Decode(&obj); err != nil {
		return err
	}
	s.FromFile = obj.FromFile
	return nil
}

// MarshalYAML writes a Secret back in the form it was read.
func (s Secret) MarshalYAML() (any, error) {
	if s.FromFile != "" {
		return map[string]string{"from_file": s.FromFile}, nil
	}
	return s.Value, nil
}

// Database is the resolved database configuration: secrets read, variables expanded.
type Database struct {
	Image    string `yaml:"image"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// MergedConfig represents the final merged configuration
// after applying precedence rules (defaults → global → project → flags).
type MergedConfig struct {
	DefaultVersion string   `yaml:"default_version"`
	ArchiveURL     string   `yaml:"archive_url"`
	StateDB        string   `yaml:"state_db"`
	ComposeFile    string   `yaml:"compose_file"`
	PipCommand     []string `yaml:"pip"`
	ComposeCommand []string `yaml:"compose"`
	Shell          string   `yaml:"shell"`

	PyenvInstallerURL string `yaml:"pyenv_installer_url"`
	ShellProfile      string `yaml:"shell_profile"`

	Database      Database `yaml:"database"`
	AdminPassword string   `yaml:"admin_password"`
	DBFilter      string   `yaml:"dbfilter"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Skip lists provisioning steps that create will not run.
	Skip []string `yaml:"skip,omitempty"`

	// ProjectFile is the .oenv.yaml that contributed to this config, if any.
	ProjectFile string `yaml:"project_file,omitempty"`
}

// ProvisionConfig is the unified configuration passed to the provisioning
// pipeline for one environment. It combines merged configuration with the
// arguments of a single create call.
type ProvisionConfig struct {
	// Name is the environment name.
	Name string

	// Path is the absolute installation directory.
	Path string

	// Version is the Odoo branch to fetch (e.g. "17.0").
	Version string

	// ArchiveURL is the download URL with the version substituted.
	ArchiveURL string

	// ComposeFile is the absolute path of the container definition to write.
	ComposeFile string

	PipCommand     []string
	ComposeCommand []string
	Shell          string

	PyenvInstallerURL string
	ShellProfile      string

	Database      Database
	AdminPassword string
	DBFilter      string

	// Skip lists step names that must not run.
	Skip []string
}

// Skips reports whether the named step is excluded.
func (c *ProvisionConfig) Skips(step string) bool {
	for _, s := range c.Skip {
		if s == step {
			return true
		}
	}
	return false
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Version:        1,
		DefaultVersion: "17.0",
		ArchiveURL:     "https://github.com/odoo/odoo/archive/refs/heads/{version}.zip",
		ComposeFile:    "docker-compose.yml",
		Tools: ToolsConfig{
			Pip:     []string{"pip"},
			Compose: []string{"docker", "compose"},
			Shell:   "bash",
		},
		Pyenv: PyenvConfig{
			InstallerURL: "https://pyenv.run",
			Profile:      "~/.bashrc",
		},
		Database: DatabaseConfig{
			Image:    "postgres:latest",
			Name:     "odoo",
			User:     "odoo",
			Password: Secret{Value: "odoo"},
			Host:     "localhost",
			Port:     5432,
		},
		Odoo: OdooConfig{
			AdminPassword: Secret{Value: "odoo"},
			DBFilter:      "odoo",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultProjectConfig returns a ProjectConfig with sensible defaults.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
	}
}
