package config

import (
	"fmt"

	"github.com/Quidge/oenv/internal/pathutil"
)

// FlagOverrides contains CLI flag values that override configuration.
type FlagOverrides struct {
	StateDB   string
	Version   string
	LogLevel  string
	LogFormat string
	Skip      []string
}

// Merge combines global config, project config, and CLI flag overrides
// following the precedence order: defaults → global → project → flags.
// Returns the merged configuration ready for use.
func Merge(global GlobalConfig, project ProjectConfig, flags FlagOverrides) (MergedConfig, error) {
	merged := MergedConfig{
		DefaultVersion:    global.DefaultVersion,
		ArchiveURL:        global.ArchiveURL,
		ComposeFile:       global.ComposeFile,
		PipCommand:        global.Tools.Pip,
		ComposeCommand:    global.Tools.Compose,
		Shell:             global.Tools.Shell,
		PyenvInstallerURL: global.Pyenv.InstallerURL,
		LogLevel:          global.Log.Level,
		LogFormat:         global.Log.Format,
		ProjectFile:       project.Path(),
	}

	dbCfg := global.Database
	odooCfg := global.Odoo

	// Project config overrides global values
	if project.DefaultVersion != "" {
		merged.DefaultVersion = project.DefaultVersion
	}
	if project.ComposeFile != "" {
		merged.ComposeFile = project.ComposeFile
		if project.dir != "" {
			merged.ComposeFile = pathutil.ResolveRelative(project.dir, project.ComposeFile)
		}
	}
	if project.Database != nil {
		dbCfg = overlayDatabase(dbCfg, *project.Database)
	}
	if project.Odoo != nil {
		odooCfg = overlayOdoo(odooCfg, *project.Odoo)
	}
	merged.Skip = append(merged.Skip, project.Skip...)

	// CLI flags override everything
	if flags.Version != "" {
		merged.DefaultVersion = flags.Version
	}
	if flags.LogLevel != "" {
		merged.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		merged.LogFormat = flags.LogFormat
	}
	merged.Skip = append(merged.Skip, flags.Skip...)

	var err error
	stateDB := global.StateDB
	if flags.StateDB != "" {
		stateDB = flags.StateDB
	}
	if merged.StateDB, err = ExpandPath(ExpandEnvVars(stateDB)); err != nil {
		return MergedConfig{}, fmt.Errorf("failed to expand state_db: %w", err)
	}
	if merged.ShellProfile, err = ExpandPath(ExpandEnvVars(global.Pyenv.Profile)); err != nil {
		return MergedConfig{}, fmt.Errorf("failed to expand pyenv profile: %w", err)
	}
	if merged.ComposeFile, err = ExpandPath(merged.ComposeFile); err != nil {
		return MergedConfig{}, fmt.Errorf("failed to expand compose_file: %w", err)
	}

	if merged.Database, err = ExpandDatabase(dbCfg); err != nil {
		return MergedConfig{}, fmt.Errorf("failed to expand database config: %w", err)
	}
	if merged.AdminPassword, err = odooCfg.AdminPassword.Resolve(); err != nil {
		return MergedConfig{}, fmt.Errorf("failed to expand admin_password: %w", err)
	}
	merged.DBFilter = ExpandEnvVars(odooCfg.DBFilter)

	return merged, nil
}

// Load loads both global and project configuration, then merges them
// with the provided flag overrides. The project config is searched from the
// current working directory upwards.
func Load(flags FlagOverrides) (MergedConfig, error) {
	global, err := LoadGlobalConfig()
	if err != nil {
		return MergedConfig{}, fmt.Errorf("failed to load global config: %w", err)
	}

	project, err := LoadProjectConfig("")
	if err != nil {
		return MergedConfig{}, fmt.Errorf("failed to load project config: %w", err)
	}

	return Merge(global, project, flags)
}
