package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Quidge/oenv/internal/pathutil"
)

// envVarPattern matches ${VAR} or ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	return pathutil.ExpandTilde(path)
}

// ExpandEnvVars expands ${VAR} patterns in a string using environment variables.
// If a variable is not set, it expands to an empty string.
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]

		// ${VAR:-default}
		if idx := strings.Index(varName, ":-"); idx != -1 {
			name := varName[:idx]
			defaultVal := varName[idx+2:]
			if val, ok := os.LookupEnv(name); ok {
				return val
			}
			return defaultVal
		}

		return os.Getenv(varName)
	})
}

// ReadFromFile reads the contents of a file and returns it as a string.
// The path is first expanded (~ expansion) before reading.
func ReadFromFile(path string) (string, error) {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	// Trim trailing newlines (common in secret files)
	return strings.TrimRight(string(data), "\n\r"), nil
}

// Resolve returns the secret's value: the file contents for a from_file
// reference, otherwise the literal with ${VAR} expanded.
func (s Secret) Resolve() (string, error) {
	if s.FromFile != "" {
		return ReadFromFile(ExpandEnvVars(s.FromFile))
	}
	return ExpandEnvVars(s.Value), nil
}

// ExpandDatabase resolves secrets and variables in a DatabaseConfig.
func ExpandDatabase(db DatabaseConfig) (Database, error) {
	password, err := db.Password.Resolve()
	if err != nil {
		return Database{}, fmt.Errorf("password: %w", err)
	}
	return Database{
		Image:    ExpandEnvVars(db.Image),
		Name:     ExpandEnvVars(db.Name),
		User:     ExpandEnvVars(db.User),
		Password: password,
		Host:     ExpandEnvVars(db.Host),
		Port:     db.Port,
	}, nil
}
