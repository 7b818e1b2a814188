package state

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EnvironmentStatus represents the provisioning state of an environment.
type EnvironmentStatus string

const (
	StatusProvisioning EnvironmentStatus = "provisioning"
	StatusReady        EnvironmentStatus = "ready"
	StatusFailed       EnvironmentStatus = "failed"
)

// ValidStatuses contains all valid environment status values.
var ValidStatuses = []EnvironmentStatus{
	StatusProvisioning,
	StatusReady,
	StatusFailed,
}

// IsValidStatus returns true if s is a valid status.
func IsValidStatus(s EnvironmentStatus) bool {
	for _, valid := range ValidStatuses {
		if s == valid {
			return true
		}
	}
	return false
}

// Environment is a registry entry. Name is its identity.
type Environment struct {
	Name       string
	Path       string
	Version    string // Odoo branch the environment was created from
	Status     EnvironmentStatus
	FailedStep string // May be empty
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	// ErrEnvironmentNotFound is returned when no environment has the given name.
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrInvalidStatus is returned when an invalid status is provided.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrEmptyName is returned when an environment has no name.
	ErrEmptyName = errors.New("environment name is empty")
)

const environmentColumns = `name, path, version, status, failed_step, created_at, updated_at`

// PutEnvironment inserts env, or overwrites the entry with the same name.
// An overwritten entry keeps its original position in ListEnvironments.
func (db *DB) PutEnvironment(env *Environment) error {
	if strings.TrimSpace(env.Name) == "" {
		return ErrEmptyName
	}
	if !IsValidStatus(env.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, env.Status)
	}
	if env.UpdatedAt.IsZero() {
		env.UpdatedAt = env.CreatedAt
	}

	_, err := db.Exec(`
		INSERT INTO environments (`+environmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			version = excluded.version,
			status = excluded.status,
			failed_step = excluded.failed_step,
			updated_at = excluded.updated_at`,
		env.Name,
		env.Path,
		env.Version,
		string(env.Status),
		nullString(env.FailedStep),
		formatTime(env.CreatedAt),
		formatTime(env.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put environment: %w", err)
	}
	return nil
}

// GetEnvironment retrieves an environment by name.
func (db *DB) GetEnvironment(name string) (*Environment, error) {
	row := db.QueryRow(`SELECT `+environmentColumns+` FROM environments WHERE name = ?`, name)

	env, err := scanEnvironment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnvironmentNotFound
		}
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}
	return env, nil
}

// SetStatus records the outcome of provisioning for an environment.
// failedStep is cleared unless status is StatusFailed.
func (db *DB) SetStatus(name string, status EnvironmentStatus, failedStep string, at time.Time) error {
	if !IsValidStatus(status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if status != StatusFailed {
		failedStep = ""
	}

	result, err := db.Exec(`
		UPDATE environments SET status = ?, failed_step = ?, updated_at = ?
		WHERE name = ?`,
		string(status), nullString(failedStep), formatTime(at), name,
	)
	if err != nil {
		return fmt.Errorf("failed to update environment status: %w", err)
	}
	return checkAffected(result)
}

// DeleteEnvironment removes an environment and clears the current selection
// if it pointed at it. Returns ErrEnvironmentNotFound if nothing was removed.
func (db *DB) DeleteEnvironment(name string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM environments WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete environment: %w", err)
	}
	if err := checkAffected(result); err != nil {
		return err
	}

	if _, err := tx.Exec("UPDATE selection SET name = NULL WHERE id = 1 AND name = ?", name); err != nil {
		return fmt.Errorf("failed to clear current environment: %w", err)
	}
	return tx.Commit()
}

// ListOptions specifies filters for listing environments.
type ListOptions struct {
	Statuses []EnvironmentStatus // Filter by status (any of these)
}

// ListEnvironments returns environments in insertion order.
// If no filters are specified, returns all environments.
func (db *DB) ListEnvironments(opts ListOptions) ([]*Environment, error) {
	query := `SELECT ` + environmentColumns + ` FROM environments`

	var args []any
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY seq ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	var envs []*Environment
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan environment: %w", err)
		}
		envs = append(envs, env)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating environments: %w", err)
	}

	return envs, nil
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEnvironment scans a row into an Environment struct.
func scanEnvironment(s scanner) (*Environment, error) {
	var env Environment
	var failedStep sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&env.Name,
		&env.Path,
		&env.Version,
		&env.Status,
		&failedStep,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	env.FailedStep = failedStep.String

	if env.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if env.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &env, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrEnvironmentNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// nullString converts an empty string to sql.NullString for optional fields.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
