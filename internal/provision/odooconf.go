package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Quidge/oenv/internal/config"
	"github.com/Quidge/oenv/internal/pathutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// ConfigFile is the Odoo server configuration under the environment path.
	ConfigFile = "odoo.conf"

	// ExampleFile keeps the configuration as it was before the first patch.
	ExampleFile = "odoo.conf.example"

	optionsSection = "[options]"
)

// shippedConfig is where the Odoo sources carry a sample configuration.
var shippedConfig = filepath.Join(SourceDir, "debian", ConfigFile)

// defaultConfig seeds odoo.conf when the sources ship none.
const defaultConfig = `[options]
; This is the password that allows database operations:
; admin_passwd = admin
db_host = False
db_port = False
db_user = odoo
db_password = False
; dbfilter =
`

// Setting is one key = value line of odoo.conf.
type Setting struct {
	Key   string
	Value string
}

// Settings returns the odoo.conf values an environment needs, in the
// order they are applied.
func Settings(cfg *config.ProvisionConfig) []Setting {
	return []Setting{
		{Key: "db_user", Value: cfg.Database.User},
		{Key: "db_password", Value: cfg.Database.Password},
		{Key: "admin_passwd", Value: cfg.AdminPassword},
		{Key: "dbfilter", Value: cfg.DBFilter},
		{Key: "db_host", Value: cfg.Database.Host},
		{Key: "db_port", Value: strconv.Itoa(cfg.Database.Port)},
	}
}

// Patch applies settings to the content of an INI style odoo.conf.
//
// For each key the first line assigning it, commented out or not, becomes
// "key = value" and later uncommented assignments are commented out. Keys
// that appear nowhere are added at the end of the [options] section, which
// is created when missing. Patching already patched content returns it
// unchanged.
func Patch(content []byte, settings []Setting) []byte {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var missing []string
	for _, setting := range settings {
		pattern := keyPattern(setting.Key)
		assignment := setting.Key + " = " + setting.Value
		found := false
		for i, line := range lines {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			commented := m[1] != ""
			if !found {
				lines[i] = assignment
				found = true
				continue
			}
			if !commented {
				lines[i] = "; " + line
			}
		}
		if !found {
			missing = append(missing, assignment)
		}
	}

	if len(missing) > 0 {
		lines = insertIntoOptions(lines, missing)
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func keyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*([;#]\s*)?` + regexp.QuoteMeta(key) + `\s*=`)
}

// insertIntoOptions adds entries after the last non-blank line of the
// [options] section, prepending the section header when there is none.
func insertIntoOptions(lines, entries []string) []string {
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == optionsSection {
			start = i
			break
		}
	}
	if start == -1 {
		lines = append([]string{optionsSection}, lines...)
		start = 0
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			end = i
			break
		}
	}
	insertAt := end
	for insertAt > start+1 && strings.TrimSpace(lines[insertAt-1]) == "" {
		insertAt--
	}

	out := make([]string, 0, len(lines)+len(entries))
	out = append(out, lines[:insertAt]...)
	out = append(out, entries...)
	out = append(out, lines[insertAt:]...)
	return out
}

type configStep struct {
	logger *zap.Logger
}

func newConfigStep(logger *zap.Logger) *configStep {
	return &configStep{
		logger: logger.With(zap.String("step", StepConfig)),
	}
}

func (s *configStep) Name() string { return StepConfig }

// Run makes sure odoo.conf and its example copy exist, then patches odoo.conf.
func (s *configStep) Run(ctx context.Context, cfg *config.ProvisionConfig) error {
	confPath := filepath.Join(cfg.Path, ConfigFile)
	if err := s.seed(confPath, cfg.Path); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigPatchFailed, err)
	}

	examplePath := filepath.Join(cfg.Path, ExampleFile)
	if !pathutil.Exists(examplePath) {
		if err := copyFile(confPath, examplePath); err != nil {
			return fmt.Errorf("%w: failed to write %s: %w", ErrConfigPatchFailed, ExampleFile, err)
		}
	}

	info, err := os.Stat(confPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigPatchFailed, err)
	}
	content, err := os.ReadFile(confPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigPatchFailed, err)
	}
	if err := os.WriteFile(confPath, Patch(content, Settings(cfg)), info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigPatchFailed, err)
	}
	s.logger.Info("patched odoo configuration", zap.String("path", confPath))
	return nil
}

func (s *configStep) seed(confPath, envPath string) error {
	if pathutil.Exists(confPath) {
		return nil
	}
	if err := os.MkdirAll(envPath, 0755); err != nil {
		return err
	}
	shipped := filepath.Join(envPath, shippedConfig)
	if pathutil.ExistsAndIsFile(shipped) {
		s.logger.Debug("seeding configuration from sources", zap.String("from", shipped))
		return copyFile(shipped, confPath)
	}
	s.logger.Debug("seeding default configuration")
	return os.WriteFile(confPath, []byte(defaultConfig), 0644)
}

// copyFile copies a single file from src to dst using streaming to handle large files.
func copyFile(src, dst string) (retErr error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, in.Close())
	}()

	srcInfo, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}
